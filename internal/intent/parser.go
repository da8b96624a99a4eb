package intent

import (
	"context"

	"go.uber.org/zap"

	"voice-trading-assistant-go/internal/metrics"
)

// Strategy is one way of turning text into an intent.
type Strategy interface {
	Name() string
	Available() bool
	Parse(ctx context.Context, text string) (TradeIntent, error)
}

// Parser tries its strategies in order and returns the first success.
// The rule strategy always terminates the chain, so ParseIntent never fails.
type Parser struct {
	strategies []Strategy
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewParser builds a parser over the given strategies. A RuleStrategy is
// appended when the list does not already end with one.
func NewParser(logger *zap.Logger, m *metrics.Metrics, strategies ...Strategy) *Parser {
	if n := len(strategies); n == 0 || !isRules(strategies[n-1]) {
		strategies = append(strategies, RuleStrategy{})
	}
	return &Parser{
		strategies: strategies,
		logger:     logger.Named("intent"),
		metrics:    m,
	}
}

// NewDefaultParser prefers the language model and falls back to rules.
func NewDefaultParser(completer Completer, logger *zap.Logger, m *metrics.Metrics) *Parser {
	return NewParser(logger, m, NewLLMStrategy(completer), RuleStrategy{})
}

// ParseIntent returns the normalized intent for text.
func (p *Parser) ParseIntent(ctx context.Context, text string) TradeIntent {
	for _, s := range p.strategies {
		if !s.Available() {
			continue
		}
		result, err := s.Parse(ctx, text)
		if err != nil {
			p.logger.Warn("Intent strategy failed, falling back",
				zap.String("strategy", s.Name()),
				zap.Error(err))
			continue
		}
		p.metrics.IntentParsed(s.Name())
		p.logger.Debug("Parsed intent",
			zap.String("strategy", s.Name()),
			zap.String("action", string(result.Action)),
			zap.String("symbol", result.Symbol))
		return result
	}

	p.metrics.IntentParsed(RuleStrategy{}.Name())
	return ParseRules(text)
}

func isRules(s Strategy) bool {
	_, ok := s.(RuleStrategy)
	return ok
}
