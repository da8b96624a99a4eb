package trader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"voice-trading-assistant-go/internal/broker"
	"voice-trading-assistant-go/internal/config"
	"voice-trading-assistant-go/internal/database"
	"voice-trading-assistant-go/internal/intent"
	"voice-trading-assistant-go/internal/models"
	"voice-trading-assistant-go/internal/validation"
)

// MockGateway is a mock implementation of broker.Gateway.
type MockGateway struct {
	mock.Mock
}

var _ broker.Gateway = (*MockGateway)(nil)

func (m *MockGateway) CreateOrder(ctx context.Context, in intent.TradeIntent) (*broker.Order, error) {
	args := m.Called(ctx, in)
	order, _ := args.Get(0).(*broker.Order)
	return order, args.Error(1)
}

func (m *MockGateway) GetOpenOrders(ctx context.Context) ([]broker.Order, error) {
	args := m.Called(ctx)
	return args.Get(0).([]broker.Order), args.Error(1)
}

func (m *MockGateway) GetAllOrders(ctx context.Context, limit int) ([]broker.Order, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]broker.Order), args.Error(1)
}

func (m *MockGateway) CancelOrder(ctx context.Context, orderID string) error {
	return m.Called(ctx, orderID).Error(0)
}

func (m *MockGateway) CancelOrdersBySymbol(ctx context.Context, symbol string) ([]broker.Order, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).([]broker.Order), args.Error(1)
}

func (m *MockGateway) GetPositions(ctx context.Context) ([]broker.Position, error) {
	args := m.Called(ctx)
	return args.Get(0).([]broker.Position), args.Error(1)
}

func (m *MockGateway) GetPosition(ctx context.Context, symbol string) (*broker.Position, error) {
	args := m.Called(ctx, symbol)
	pos, _ := args.Get(0).(*broker.Position)
	return pos, args.Error(1)
}

func (m *MockGateway) GetAccount(ctx context.Context) (*broker.Account, error) {
	args := m.Called(ctx)
	acct, _ := args.Get(0).(*broker.Account)
	return acct, args.Error(1)
}

// MockTranscriber is a mock implementation of Transcriber.
type MockTranscriber struct {
	mock.Mock
}

func (m *MockTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	args := m.Called(ctx, audio)
	return args.String(0), args.Error(1)
}

// setupTest creates an engine over mocks, the rule parser, the real
// validator and an in-memory database.
func setupTest(t *testing.T) (*Engine, *MockGateway, *MockTranscriber, *gorm.DB) {
	db, err := database.NewDatabase(config.Database{DSN: "file::memory:"})
	require.NoError(t, err)

	gateway := new(MockGateway)
	transcriber := new(MockTranscriber)
	logger := zap.NewNop()

	engine := NewEngine(logger, config.Trading{ConfirmationToken: "confirmed"}, Components{
		Transcriber: transcriber,
		Parser:      intent.NewParser(logger, nil),
		Validator:   validation.NewValidator(gateway, 0, logger, nil),
		Gateway:     gateway,
		DB:          db,
	})
	engine.now = func() time.Time { return time.Unix(1700000000, 0) }
	return engine, gateway, transcriber, db
}

func TestEngine_Analyze_RecordsCommand(t *testing.T) {
	// Arrange
	engine, gateway, _, db := setupTest(t)

	// Act
	a := engine.Analyze(context.Background(), "buy 10 shares of Apple", SourceHTTP)

	// Assert
	assert.Equal(t, intent.ActionBuy, a.Intent.Action)
	assert.Equal(t, "AAPL", a.Intent.Symbol)
	assert.True(t, a.Validation.IsValid)
	assert.True(t, a.RequiresConfirmation)
	assert.False(t, a.RequiresStrongConfirmation)
	gateway.AssertNotCalled(t, "GetAccount", mock.Anything)

	var cmds []models.Command
	require.NoError(t, db.Find(&cmds).Error)
	require.Len(t, cmds, 1)
	assert.Equal(t, "AAPL", cmds[0].Symbol)
	assert.Equal(t, "buy", cmds[0].Action)
	assert.True(t, cmds[0].Valid)
	assert.Contains(t, cmds[0].IntentJSON, `"symbol":"AAPL"`)
}

func TestEngine_RecordCommand(t *testing.T) {
	engine, _, _, db := setupTest(t)
	in := intent.ParseRules("sell 5 TSLA")
	res := validation.Result{IsValid: false, Errors: []string{"No position in TSLA to sell"}, Warnings: []string{}}

	engine.RecordCommand(SourceRealtime, "sell 5 TSLA", in, res)

	var cmds []models.Command
	require.NoError(t, db.Find(&cmds).Error)
	require.Len(t, cmds, 1)
	assert.Equal(t, "realtime", cmds[0].Source)
	assert.Equal(t, "sell 5 TSLA", cmds[0].Transcript)
	assert.Equal(t, "TSLA", cmds[0].Symbol)
	assert.False(t, cmds[0].Valid)
	assert.Equal(t, "No position in TSLA to sell", cmds[0].Errors)
}

func TestEngine_ProcessAudio(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		engine, gateway, transcriber, _ := setupTest(t)
		transcriber.On("Transcribe", mock.Anything, []byte("pcm")).Return("sell 5 tesla", nil)
		gateway.On("GetPosition", mock.Anything, "TSLA").Return(nil, nil)

		a, err := engine.ProcessAudio(context.Background(), []byte("pcm"), SourceRealtime)

		require.NoError(t, err)
		assert.Equal(t, "sell 5 tesla", a.Transcript)
		assert.Equal(t, "TSLA", a.Intent.Symbol)
		assert.Contains(t, a.Validation.Warnings, "No position found for TSLA - sell order may fail")
	})

	t.Run("TranscriptionFailure", func(t *testing.T) {
		engine, _, transcriber, db := setupTest(t)
		transcriber.On("Transcribe", mock.Anything, mock.Anything).Return("", errors.New("no backend"))

		_, err := engine.ProcessAudio(context.Background(), []byte("pcm"), SourceRealtime)

		assert.EqualError(t, err, "no backend")
		var count int64
		db.Model(&models.Command{}).Count(&count)
		assert.Zero(t, count)
	})
}

func TestEngine_Execute_RequiresToken(t *testing.T) {
	engine, gateway, _, _ := setupTest(t)
	in := intent.ParseRules("buy 10 AAPL")

	for _, token := range []string{"", "yes", "CONFIRMED"} {
		_, err := engine.Execute(context.Background(), in, token)
		assert.ErrorIs(t, err, ErrConfirmationRequired)
	}
	gateway.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
	gateway.AssertNotCalled(t, "GetAccount", mock.Anything)
}

func TestEngine_Execute_InvalidIntent(t *testing.T) {
	engine, gateway, _, _ := setupTest(t)

	_, err := engine.Execute(context.Background(), intent.ParseRules("buy some stuff"), "confirmed")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.False(t, verr.Result.IsValid)
	assert.Contains(t, verr.Result.Errors, "Symbol is required")
	gateway.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestEngine_Execute_Success_RecordsOrder(t *testing.T) {
	// Arrange
	engine, gateway, _, db := setupTest(t)
	in := intent.ParseRules("buy 5 Tesla limit 230")
	gateway.On("GetAccount", mock.Anything).Return(&broker.Account{
		BuyingPower: decimal.NewFromInt(50000),
		Status:      "ACTIVE",
	}, nil)
	gateway.On("CreateOrder", mock.Anything, in).Return(&broker.Order{
		ID:     "ord-1",
		Symbol: "TSLA",
		Status: "accepted",
	}, nil).Once()

	// Act
	order, err := engine.Execute(context.Background(), in, "confirmed")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "ord-1", order.ID)
	gateway.AssertExpectations(t)

	var rows []models.Order
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "ord-1", rows[0].BrokerOrderID)
	assert.Equal(t, "limit", rows[0].Type)
	assert.Equal(t, 5, rows[0].Quantity)
	require.NotNil(t, rows[0].LimitPrice)
	assert.Equal(t, 230.0, *rows[0].LimitPrice)
	assert.Nil(t, rows[0].StopPrice)
	assert.Equal(t, SourceHTTP, rows[0].Source)
	assert.Equal(t, int64(1700000000), rows[0].SubmittedAt)
}

func TestEngine_CreateOrder_GatewayError(t *testing.T) {
	engine, gateway, _, db := setupTest(t)
	in := intent.ParseRules("sell 3 MSFT")
	gateway.On("CreateOrder", mock.Anything, in).Return(nil, errors.New("broker down"))

	_, err := engine.CreateOrder(context.Background(), in, SourceCLI)

	assert.ErrorContains(t, err, "broker down")
	var count int64
	db.Model(&models.Order{}).Count(&count)
	assert.Zero(t, count)
}

func TestEngine_Orders(t *testing.T) {
	engine, gateway, _, _ := setupTest(t)
	open := []broker.Order{{ID: "a"}}
	all := []broker.Order{{ID: "a"}, {ID: "b"}}
	gateway.On("GetOpenOrders", mock.Anything).Return(open, nil)
	gateway.On("GetAllOrders", mock.Anything, 50).Return(all, nil)

	got, err := engine.Orders(context.Background(), "open", 0)
	require.NoError(t, err)
	assert.Equal(t, open, got)

	got, err = engine.Orders(context.Background(), "all", 0)
	require.NoError(t, err)
	assert.Equal(t, all, got)

	got, err = engine.Orders(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, all, got)
}

func TestEngine_LeveragedPositions(t *testing.T) {
	engine, gateway, _, _ := setupTest(t)
	gateway.On("GetPositions", mock.Anything).Return([]broker.Position{
		{Symbol: "TQQQ"}, {Symbol: "AAPL"}, {Symbol: "SQQQ"}, {Symbol: "UVXY"},
	}, nil)

	view, err := engine.LeveragedPositions(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 4, view.Total)
	assert.Equal(t, 3, view.LeveragedCount)
	assert.Len(t, view.Grouped["3x"], 1)
	assert.Len(t, view.Grouped["-3x"], 1)
	assert.Len(t, view.Grouped["other"], 1)
	assert.Empty(t, view.Grouped["2x"])
}
