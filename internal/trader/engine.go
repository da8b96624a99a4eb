// Package trader runs the voice trading pipeline: audio to transcript, transcript
// to intent, intent to a validated order, and the order to the brokerage.
package trader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"voice-trading-assistant-go/internal/broker"
	"voice-trading-assistant-go/internal/config"
	"voice-trading-assistant-go/internal/intent"
	"voice-trading-assistant-go/internal/leverage"
	"voice-trading-assistant-go/internal/metrics"
	"voice-trading-assistant-go/internal/models"
	"voice-trading-assistant-go/internal/validation"
)

// Sources recorded on audit rows.
const (
	SourceHTTP     = "http"
	SourceRealtime = "realtime"
	SourceCLI      = "cli"
)

const defaultConfirmationToken = "confirmed"

// ErrConfirmationRequired is returned by Execute when the caller did not
// supply the confirmation token.
var ErrConfirmationRequired = errors.New("order requires confirmation")

// ValidationError carries the failed validation verdict of an execution attempt.
type ValidationError struct {
	Result validation.Result
}

func (e *ValidationError) Error() string {
	return "order validation failed: " + strings.Join(e.Result.Errors, "; ")
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// IntentParser turns a transcript into a trade intent. It never fails.
type IntentParser interface {
	ParseIntent(ctx context.Context, text string) intent.TradeIntent
}

// OrderValidator checks an intent before execution.
type OrderValidator interface {
	ValidateOrder(ctx context.Context, in intent.TradeIntent) validation.Result
	RequiresStrongConfirmation(in intent.TradeIntent) bool
}

// Components are the collaborators of the engine. DB, Metrics and Leverage may be nil.
type Components struct {
	Transcriber Transcriber
	Parser      IntentParser
	Validator   OrderValidator
	Gateway     broker.Gateway
	Leverage    *leverage.Classifier
	DB          *gorm.DB
	Metrics     *metrics.Metrics
}

// Analysis is the outcome of running a command up to, but not including, execution.
type Analysis struct {
	Transcript                 string             `json:"transcript"`
	Intent                     intent.TradeIntent `json:"intent"`
	Validation                 validation.Result  `json:"validation"`
	RequiresConfirmation       bool               `json:"requiresConfirmation"`
	RequiresStrongConfirmation bool               `json:"requiresStrongConfirmation"`
}

// LeveragedView summarizes the leveraged positions of the account.
type LeveragedView struct {
	Total          int                            `json:"total"`
	LeveragedCount int                            `json:"leveragedCount"`
	Positions      []leverage.Position            `json:"positions"`
	Grouped        map[string][]leverage.Position `json:"grouped"`
}

// Engine drives a command through the pipeline stages.
type Engine struct {
	logger      *zap.Logger
	cfg         config.Trading
	transcriber Transcriber
	parser      IntentParser
	validator   OrderValidator
	gateway     broker.Gateway
	leverage    *leverage.Classifier
	db          *gorm.DB
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewEngine creates a new pipeline engine.
func NewEngine(logger *zap.Logger, cfg config.Trading, c Components) *Engine {
	if cfg.ConfirmationToken == "" {
		cfg.ConfirmationToken = defaultConfirmationToken
	}
	if cfg.OrderHistoryLimit <= 0 {
		cfg.OrderHistoryLimit = 50
	}
	classifier := c.Leverage
	if classifier == nil {
		classifier = leverage.NewClassifier(nil, nil, 0, logger)
	}
	return &Engine{
		logger:      logger.Named("engine"),
		cfg:         cfg,
		transcriber: c.Transcriber,
		parser:      c.Parser,
		validator:   c.Validator,
		gateway:     c.Gateway,
		leverage:    classifier,
		db:          c.DB,
		metrics:     c.Metrics,
		now:         time.Now,
	}
}

// Transcribe converts a full audio buffer to text.
func (e *Engine) Transcribe(ctx context.Context, audio []byte) (string, error) {
	transcript, err := e.transcriber.Transcribe(ctx, audio)
	if err != nil {
		e.metrics.StageFailure("transcription")
		return "", err
	}
	e.logger.Info("Audio transcribed", zap.String("transcript", transcript))
	return transcript, nil
}

func (e *Engine) ParseIntent(ctx context.Context, text string) intent.TradeIntent {
	return e.parser.ParseIntent(ctx, text)
}

func (e *Engine) ValidateOrder(ctx context.Context, in intent.TradeIntent) validation.Result {
	return e.validator.ValidateOrder(ctx, in)
}

func (e *Engine) RequiresStrongConfirmation(in intent.TradeIntent) bool {
	return e.validator.RequiresStrongConfirmation(in)
}

// Analyze parses and validates text and records the command.
func (e *Engine) Analyze(ctx context.Context, text, source string) Analysis {
	in := e.ParseIntent(ctx, text)
	res := e.ValidateOrder(ctx, in)
	a := Analysis{
		Transcript:                 text,
		Intent:                     in,
		Validation:                 res,
		RequiresConfirmation:       true,
		RequiresStrongConfirmation: e.RequiresStrongConfirmation(in),
	}

	e.logger.Info("Command analysed",
		zap.String("source", source),
		zap.String("intent", in.Summary()),
		zap.Bool("valid", res.IsValid),
		zap.Strings("errors", res.Errors))
	e.recordCommand(source, a)
	return a
}

// ProcessAudio transcribes audio and analyses the transcript.
func (e *Engine) ProcessAudio(ctx context.Context, audio []byte, source string) (Analysis, error) {
	transcript, err := e.Transcribe(ctx, audio)
	if err != nil {
		return Analysis{}, err
	}
	return e.Analyze(ctx, transcript, source), nil
}

// Execute submits an order on behalf of an HTTP caller. The confirmation token
// is checked before anything else.
func (e *Engine) Execute(ctx context.Context, in intent.TradeIntent, confirmation string) (*broker.Order, error) {
	if confirmation != e.cfg.ConfirmationToken {
		return nil, ErrConfirmationRequired
	}
	return e.ExecuteConfirmed(ctx, in, SourceHTTP)
}

// ExecuteConfirmed re-validates an intent the user already confirmed and
// submits it. A failed validation is returned as *ValidationError and the
// gateway is not called.
func (e *Engine) ExecuteConfirmed(ctx context.Context, in intent.TradeIntent, source string) (*broker.Order, error) {
	in = in.Normalized()
	res := e.ValidateOrder(ctx, in)
	if !res.IsValid {
		e.logger.Warn("Confirmed order failed validation",
			zap.String("intent", in.Summary()),
			zap.Strings("errors", res.Errors))
		return nil, &ValidationError{Result: res}
	}
	return e.CreateOrder(ctx, in, source)
}

// CreateOrder submits in to the gateway and records the outcome.
func (e *Engine) CreateOrder(ctx context.Context, in intent.TradeIntent, source string) (*broker.Order, error) {
	order, err := e.gateway.CreateOrder(ctx, in)
	if err != nil {
		e.metrics.StageFailure("execution")
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	e.metrics.OrderSubmitted(string(in.Side), order.Simulated)

	e.logger.Info("Order submitted",
		zap.String("source", source),
		zap.String("order_id", order.ID),
		zap.String("intent", in.Summary()),
		zap.String("status", order.Status),
		zap.Bool("simulated", order.Simulated))
	e.recordOrder(source, in, order)
	return order, nil
}

// Orders lists open orders when status is "open", otherwise the most recent
// orders of any status.
func (e *Engine) Orders(ctx context.Context, status string, limit int) ([]broker.Order, error) {
	if status == "open" {
		return e.gateway.GetOpenOrders(ctx)
	}
	if limit <= 0 {
		limit = e.cfg.OrderHistoryLimit
	}
	return e.gateway.GetAllOrders(ctx, limit)
}

func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	return e.gateway.CancelOrder(ctx, orderID)
}

func (e *Engine) CancelOrdersBySymbol(ctx context.Context, symbol string) ([]broker.Order, error) {
	return e.gateway.CancelOrdersBySymbol(ctx, strings.ToUpper(symbol))
}

func (e *Engine) Positions(ctx context.Context) ([]broker.Position, error) {
	return e.gateway.GetPositions(ctx)
}

// Position returns nil without error when there is no position in symbol.
func (e *Engine) Position(ctx context.Context, symbol string) (*broker.Position, error) {
	return e.gateway.GetPosition(ctx, strings.ToUpper(symbol))
}

func (e *Engine) Account(ctx context.Context) (*broker.Account, error) {
	return e.gateway.GetAccount(ctx)
}

// LeveragedPositions filters the account positions down to leveraged ETFs.
func (e *Engine) LeveragedPositions(ctx context.Context) (LeveragedView, error) {
	positions, err := e.gateway.GetPositions(ctx)
	if err != nil {
		return LeveragedView{}, fmt.Errorf("failed to get positions: %w", err)
	}
	leveraged := e.leverage.FilterLeveraged(ctx, positions)
	return LeveragedView{
		Total:          len(positions),
		LeveragedCount: len(leveraged),
		Positions:      leveraged,
		Grouped:        leverage.GroupByLeverage(leveraged),
	}, nil
}

// RecordCommand stores an analysis performed outside Analyze, such as the
// step-by-step flow of a real-time session.
func (e *Engine) RecordCommand(source, transcript string, in intent.TradeIntent, res validation.Result) {
	e.recordCommand(source, Analysis{Transcript: transcript, Intent: in, Validation: res})
}

func (e *Engine) recordCommand(source string, a Analysis) {
	if e.db == nil {
		return
	}
	data, err := a.Intent.MarshalJSON()
	if err != nil {
		e.logger.Warn("Failed to encode intent for audit", zap.Error(err))
	}
	cmd := models.Command{
		Source:     source,
		Transcript: a.Transcript,
		Action:     string(a.Intent.Action),
		Symbol:     a.Intent.Symbol,
		IntentJSON: string(data),
		Valid:      a.Validation.IsValid,
		Errors:     strings.Join(a.Validation.Errors, "\n"),
	}
	if err := e.db.Create(&cmd).Error; err != nil {
		e.logger.Error("Failed to record command", zap.Error(err))
	}
}

func (e *Engine) recordOrder(source string, in intent.TradeIntent, order *broker.Order) {
	if e.db == nil {
		return
	}
	row := models.Order{
		BrokerOrderID: order.ID,
		Symbol:        in.Symbol,
		Side:          string(in.Side),
		Type:          string(in.OrderType),
		TimeInForce:   string(in.TimeInForce),
		Quantity:      in.Quantity,
		LimitPrice:    positive(in.LimitPrice),
		StopPrice:     positive(in.StopPrice),
		Status:        order.Status,
		Simulated:     order.Simulated,
		Error:         order.Error,
		Source:        source,
		SubmittedAt:   e.now().Unix(),
	}
	if err := e.db.Create(&row).Error; err != nil {
		e.logger.Error("Failed to record order", zap.String("order_id", order.ID), zap.Error(err))
	}
}

func positive(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}
