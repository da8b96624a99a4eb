package leverage

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

	"voice-trading-assistant-go/internal/broker"
	"voice-trading-assistant-go/internal/cache"
	"voice-trading-assistant-go/internal/llm"
)

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Configured() bool {
	return m.Called().Bool(0)
}

func (m *MockCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func positions(symbols ...string) []broker.Position {
	out := make([]broker.Position, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, broker.Position{Symbol: s, Qty: decimal.NewFromInt(10), Side: "long"})
	}
	return out
}

func symbolsOf(ps []Position) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Symbol)
	}
	return out
}

func TestLookup(t *testing.T) {
	info, ok := Lookup("tqqq")
	require.True(t, ok)
	assert.Equal(t, Info{
		Symbol:      "TQQQ",
		IsLeveraged: true,
		Name:        "ProShares UltraPro QQQ",
		Leverage:    "3x",
		Type:        "Bull",
		Underlying:  "NASDAQ-100",
		Source:      SourceCatalog,
	}, info)

	_, ok = Lookup("AAPL")
	assert.False(t, ok)

	all := Catalog()
	assert.Contains(t, all, "UVXY")
	assert.Equal(t, "1.5x", all["UVXY"].Leverage)
	delete(all, "UVXY")
	_, ok = Lookup("UVXY")
	assert.True(t, ok, "catalog must not be mutable through Catalog()")
}

func TestClassifier_FilterLeveraged_Catalog(t *testing.T) {
	c := NewClassifier(nil, nil, time.Hour, zap.NewNop())

	got := c.FilterLeveraged(context.Background(), positions("TQQQ", "SOXL", "AAPL", "UVXY", "YINN", "NVDA"))

	assert.Equal(t, []string{"TQQQ", "SOXL", "UVXY", "YINN"}, symbolsOf(got))
	assert.Equal(t, "3x", got[0].LeverageInfo.Leverage)
	assert.True(t, got[0].Qty.Equal(decimal.NewFromInt(10)))
}

func TestClassifier_PrefersModel(t *testing.T) {
	// Arrange
	completer := new(MockCompleter)
	completer.On("Configured").Return(true)
	completer.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.CompletionRequest) bool {
		return req.Temperature == 0.1 && req.Messages[1].Content == "Analyze these symbols: TQQQ, AAPL, XYZ"
	})).Return(`{"TQQQ":{"isLeveraged":true,"leverage":"3x","type":"Bull","name":"ProShares UltraPro QQQ","underlying":"NASDAQ-100"},
		"AAPL":{"isLeveraged":false,"leverage":null,"type":null,"name":null,"underlying":null},
		"XYZ":{"isLeveraged":true,"leverage":"2x","type":"Bull","name":"Example 2X","underlying":"Example"}}`, nil).Once()

	mem := cache.NewMemory()
	c := NewClassifier(completer, mem, time.Hour, zap.NewNop())

	// Act
	got := c.FilterLeveraged(context.Background(), positions("TQQQ", "AAPL", "XYZ"))

	// Assert
	assert.Equal(t, []string{"TQQQ", "XYZ"}, symbolsOf(got))
	assert.Equal(t, SourceLLM, got[1].LeverageInfo.Source)

	// Second call is served from the cache.
	again := c.FilterLeveraged(context.Background(), positions("TQQQ", "AAPL", "XYZ"))
	assert.Equal(t, []string{"TQQQ", "XYZ"}, symbolsOf(again))
	completer.AssertNumberOfCalls(t, "Complete", 1)
}

func TestClassifier_ModelOmitsSymbol(t *testing.T) {
	completer := new(MockCompleter)
	completer.On("Configured").Return(true)
	completer.On("Complete", mock.Anything, mock.Anything).Return(`{"AAPL":{"isLeveraged":false}}`, nil)

	c := NewClassifier(completer, nil, time.Hour, zap.NewNop())
	got := c.Classify(context.Background(), []string{"SOXL", "AAPL"})

	assert.False(t, got["SOXL"].IsLeveraged, "model answers are used as is")
	assert.False(t, got["AAPL"].IsLeveraged)
}

func TestClassifier_ModelFailureFallsBackToCatalog(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		err     error
	}{
		{"TransportError", "", errors.New("timeout")},
		{"InvalidJSON", "TQQQ is leveraged", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			completer := new(MockCompleter)
			completer.On("Configured").Return(true)
			completer.On("Complete", mock.Anything, mock.Anything).Return(tc.content, tc.err)

			c := NewClassifier(completer, nil, time.Hour, zap.NewNop())
			got := c.FilterLeveraged(context.Background(), positions("TQQQ", "AAPL", "SQQQ"))

			assert.Equal(t, []string{"TQQQ", "SQQQ"}, symbolsOf(got))
			assert.Equal(t, SourceCatalog, got[0].LeverageInfo.Source)
		})
	}
}

func TestGroupByLeverage(t *testing.T) {
	c := NewClassifier(nil, nil, time.Hour, zap.NewNop())
	leveraged := c.FilterLeveraged(context.Background(), positions("TQQQ", "SQQQ", "QLD", "SDS", "UVXY", "WEAT", "AAPL"))

	groups := GroupByLeverage(leveraged)

	assert.Len(t, groups, 5)
	assert.Equal(t, []string{"TQQQ"}, symbolsOf(groups["3x"]))
	assert.Equal(t, []string{"QLD"}, symbolsOf(groups["2x"]))
	assert.Equal(t, []string{"SQQQ"}, symbolsOf(groups["-3x"]))
	assert.Equal(t, []string{"SDS"}, symbolsOf(groups["-2x"]))
	assert.Equal(t, []string{"UVXY", "WEAT"}, symbolsOf(groups["other"]))

	empty := GroupByLeverage(nil)
	for _, k := range groupKeys {
		assert.NotNil(t, empty[k])
		assert.Empty(t, empty[k])
	}
}
