package leverage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"voice-trading-assistant-go/internal/broker"
	"voice-trading-assistant-go/internal/cache"
	"voice-trading-assistant-go/internal/llm"
)

const classifyPrompt = `You are a financial analyst expert in ETFs. For each stock symbol provided, determine if it is a leveraged or inverse ETF.

Reply ONLY with a valid JSON object (no markdown, no explanation), where each key is the symbol and value is an object with these fields:
- isLeveraged: boolean
- leverage: string such as "2x", "3x", "-2x", "-3x", or null
- type: "Bull", "Bear", "Volatility", or null
- name: full ETF name or null
- underlying: tracked index or sector, or null

Example: {"TQQQ":{"isLeveraged":true,"leverage":"3x","type":"Bull","name":"ProShares UltraPro QQQ","underlying":"NASDAQ-100"},"AAPL":{"isLeveraged":false,"leverage":null,"type":null,"name":null,"underlying":null}}`

// Group keys used by GroupByLeverage.
var groupKeys = []string{"3x", "2x", "-3x", "-2x", "other"}

// Completer is the subset of the LLM client the classifier needs.
type Completer interface {
	Configured() bool
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// Position is a brokerage position annotated with its leverage profile.
type Position struct {
	broker.Position
	LeverageInfo Info `json:"leverageInfo"`
}

// Classifier decides which symbols are leveraged. When a model is configured
// its answer is used as is; otherwise, or when the model fails, the static
// catalog decides.
type Classifier struct {
	completer Completer
	cache     cache.Cache
	ttl       time.Duration
	logger    *zap.Logger
}

// NewClassifier creates a classifier. completer and c may be nil.
func NewClassifier(completer Completer, c cache.Cache, ttl time.Duration, logger *zap.Logger) *Classifier {
	if c == nil {
		c = cache.NewMemory()
	}
	return &Classifier{
		completer: completer,
		cache:     c,
		ttl:       ttl,
		logger:    logger.Named("leverage"),
	}
}

func (c *Classifier) useModel() bool {
	return c.completer != nil && c.completer.Configured()
}

// Classify returns the leverage profile of every symbol.
func (c *Classifier) Classify(ctx context.Context, symbols []string) map[string]Info {
	results := make(map[string]Info, len(symbols))
	if !c.useModel() {
		for _, s := range symbols {
			results[s] = catalogOrPlain(s)
		}
		return results
	}

	var missing []string
	for _, s := range symbols {
		var info Info
		ok, err := c.cache.Get(ctx, cacheKey(s), &info)
		if err != nil {
			c.logger.Warn("Leverage cache read failed", zap.String("symbol", s), zap.Error(err))
		}
		if ok {
			results[s] = info
			continue
		}
		missing = append(missing, s)
	}
	if len(missing) == 0 {
		return results
	}

	classified, err := c.classifyWithModel(ctx, missing)
	if err != nil {
		c.logger.Warn("Model classification failed, using catalog", zap.Error(err))
		for _, s := range missing {
			results[s] = catalogOrPlain(s)
		}
		return results
	}

	for _, s := range missing {
		info := classified[s]
		results[s] = info
		if err := c.cache.Set(ctx, cacheKey(s), info, c.ttl); err != nil {
			c.logger.Warn("Leverage cache write failed", zap.String("symbol", s), zap.Error(err))
		}
	}
	c.logger.Debug("Model classification completed", zap.Int("symbols", len(missing)))
	return results
}

func (c *Classifier) classifyWithModel(ctx context.Context, symbols []string) (map[string]Info, error) {
	content, err := c.completer.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: classifyPrompt},
			{Role: "user", Content: "Analyze these symbols: " + strings.Join(symbols, ", ")},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, err
	}

	var parsed map[string]Info
	if err := json.Unmarshal([]byte(llm.ExtractJSON(content)), &parsed); err != nil {
		return nil, fmt.Errorf("model returned invalid JSON: %w", err)
	}

	out := make(map[string]Info, len(symbols))
	for _, s := range symbols {
		info, ok := parsed[s]
		if !ok {
			out[s] = Info{Symbol: s, Source: SourceLLM}
			continue
		}
		info.Symbol = s
		info.Source = SourceLLM
		out[s] = info
	}
	return out, nil
}

// FilterLeveraged keeps only the leveraged positions, annotated with their profile.
func (c *Classifier) FilterLeveraged(ctx context.Context, positions []broker.Position) []Position {
	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		symbols = append(symbols, p.Symbol)
	}
	infos := c.Classify(ctx, symbols)

	leveraged := make([]Position, 0, len(positions))
	for _, p := range positions {
		if info := infos[p.Symbol]; info.IsLeveraged {
			leveraged = append(leveraged, Position{Position: p, LeverageInfo: info})
		}
	}
	return leveraged
}

// GroupByLeverage buckets positions by multiplier: 3x, 2x, -3x, -2x and other.
func GroupByLeverage(positions []Position) map[string][]Position {
	groups := make(map[string][]Position, len(groupKeys))
	for _, k := range groupKeys {
		groups[k] = []Position{}
	}
	for _, p := range positions {
		key := p.LeverageInfo.Leverage
		if _, ok := groups[key]; !ok {
			key = "other"
		}
		groups[key] = append(groups[key], p)
	}
	return groups
}

func catalogOrPlain(symbol string) Info {
	if info, ok := Lookup(symbol); ok {
		return info
	}
	return Info{Symbol: strings.ToUpper(symbol), Source: SourceCatalog}
}

func cacheKey(symbol string) string {
	return "leverage:" + strings.ToUpper(symbol)
}
