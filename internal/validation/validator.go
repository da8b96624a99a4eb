// Package validation checks a trade intent against basic rules and the
// brokerage account before it may be executed.
package validation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"voice-trading-assistant-go/internal/broker"
	"voice-trading-assistant-go/internal/intent"
	"voice-trading-assistant-go/internal/metrics"
)

// DefaultCriticalThreshold is the order value above which extra confirmation is advised.
const DefaultCriticalThreshold = 10000.0

// Result is the verdict for one validation pass. IsValid is false iff Errors
// is non-empty.
type Result struct {
	IsValid        bool     `json:"isValid"`
	Errors         []string `json:"errors"`
	Warnings       []string `json:"warnings"`
	EstimatedTotal *float64 `json:"estimatedTotal"`
	EstimatedPrice *float64 `json:"estimatedPrice"`
}

func (r *Result) fail(msg string) Result {
	r.IsValid = false
	r.Errors = append(r.Errors, msg)
	return *r
}

func (r *Result) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// AccountReader is the part of the brokerage the validator consults.
type AccountReader interface {
	GetAccount(ctx context.Context) (*broker.Account, error)
	GetPosition(ctx context.Context, symbol string) (*broker.Position, error)
}

var _ AccountReader = (broker.Gateway)(nil)

// Validator runs the ordered validation checks.
type Validator struct {
	accounts  AccountReader
	threshold decimal.Decimal
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewValidator creates a validator. A non-positive threshold selects DefaultCriticalThreshold.
func NewValidator(accounts AccountReader, threshold float64, logger *zap.Logger, m *metrics.Metrics) *Validator {
	if threshold <= 0 {
		threshold = DefaultCriticalThreshold
	}
	return &Validator{
		accounts:  accounts,
		threshold: decimal.NewFromFloat(threshold),
		logger:    logger.Named("validation"),
		metrics:   m,
	}
}

// ValidateOrder never fails outward: brokerage problems become warnings. The
// symbol, quantity, side and buying-power checks stop validation at the first
// fatal error.
func (v *Validator) ValidateOrder(ctx context.Context, in intent.TradeIntent) Result {
	res := v.validate(ctx, in)
	v.metrics.Validation(res.IsValid)
	return res
}

func (v *Validator) validate(ctx context.Context, in intent.TradeIntent) Result {
	res := Result{IsValid: true, Errors: []string{}, Warnings: []string{}}

	if in.Symbol == "" {
		return res.fail("Symbol is required")
	}
	if in.Quantity <= 0 {
		return res.fail("Quantity must be greater than 0")
	}
	side := strings.ToLower(string(in.Side))
	if side != string(intent.SideBuy) && side != string(intent.SideSell) {
		return res.fail(`Side must be "buy" or "sell"`)
	}

	var estimatedTotal decimal.Decimal
	qty := decimal.NewFromInt(int64(in.Quantity))

	if side == string(intent.SideBuy) {
		switch {
		case in.OrderType == intent.OrderTypeLimit && in.LimitPrice > 0:
			price := decimal.NewFromFloat(in.LimitPrice)
			estimatedTotal = qty.Mul(price)
			total := estimatedTotal.InexactFloat64()
			res.EstimatedTotal = &total
			res.EstimatedPrice = &in.LimitPrice

			account, err := v.accounts.GetAccount(ctx)
			if err != nil || account == nil {
				v.logger.Warn("Could not verify buying power", zap.String("symbol", in.Symbol), zap.Error(err))
				res.warn("Unable to verify buying power - API unavailable")
				break
			}
			if estimatedTotal.GreaterThan(account.BuyingPower) {
				return res.fail(fmt.Sprintf("Insufficient buying power. Required: $%s, Available: $%s",
					estimatedTotal.StringFixed(2), account.BuyingPower.StringFixed(2)))
			}
		case in.OrderType == intent.OrderTypeMarket:
			res.warn("Market order - price will be determined at execution")
		}
	}

	if side == string(intent.SideSell) {
		position, err := v.accounts.GetPosition(ctx, in.Symbol)
		switch {
		case err != nil:
			v.logger.Warn("Could not verify position", zap.String("symbol", in.Symbol), zap.Error(err))
			res.warn("Unable to verify position - API unavailable")
		case position == nil:
			res.warn(fmt.Sprintf("No position found for %s - sell order may fail", in.Symbol))
		default:
			held := position.Qty.Abs()
			if qty.GreaterThan(held) {
				res.warn(fmt.Sprintf("May have insufficient shares. Requested: %d, Available: %s", in.Quantity, held.String()))
			}
		}
	}

	if estimatedTotal.GreaterThan(v.threshold) {
		res.warn(fmt.Sprintf("Large order detected ($%s). Additional confirmation may be required.", estimatedTotal.StringFixed(2)))
	}

	if in.OrderType == intent.OrderTypeLimit && in.LimitPrice > 0 {
		res.warn("Limit order at $" + strconv.FormatFloat(in.LimitPrice, 'f', -1, 64))
	}

	return res
}

// RequiresStrongConfirmation reports whether the limit value of the order
// exceeds the critical threshold.
func (v *Validator) RequiresStrongConfirmation(in intent.TradeIntent) bool {
	if in.LimitPrice <= 0 || in.Quantity <= 0 {
		return false
	}
	value := decimal.NewFromInt(int64(in.Quantity)).Mul(decimal.NewFromFloat(in.LimitPrice))
	return value.GreaterThan(v.threshold)
}
