package intent

import (
	"context"
	"encoding/json"
	"fmt"

	"voice-trading-assistant-go/internal/llm"
)

const systemPrompt = "You are a trading order parser. Always respond with valid JSON only."

const userPromptTemplate = `Extract the trading order from the command below. The command may be in English or Chinese.

Reply with a single JSON object with these fields:
- action: "buy", "sell", "cancel", "check" or "unknown"
- symbol: the US stock ticker in uppercase (map company names such as Apple or 英伟达 to AAPL or NVDA), or null
- quantity: number of shares as an integer, or null
- orderType: "market", "limit" or "stop" (default "market")
- limitPrice: limit price as a number, or null
- stopPrice: stop price as a number, or null
- timeInForce: "day", "gtc", "opg", "cls", "ioc" or "fok" (default "day")

Examples:
"Buy 100 shares of NVDA at market" -> {"action":"buy","symbol":"NVDA","quantity":100,"orderType":"market","limitPrice":null,"stopPrice":null,"timeInForce":"day"}
"Sell 50 AAPL if it hits 230" -> {"action":"sell","symbol":"AAPL","quantity":50,"orderType":"limit","limitPrice":230,"stopPrice":null,"timeInForce":"day"}
"买入10股特斯拉" -> {"action":"buy","symbol":"TSLA","quantity":10,"orderType":"market","limitPrice":null,"stopPrice":null,"timeInForce":"day"}

Command: %q`

// Completer is the subset of the LLM client the parser needs.
type Completer interface {
	Configured() bool
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// LLMStrategy asks a language model for the intent.
type LLMStrategy struct {
	completer Completer
}

var _ Strategy = (*LLMStrategy)(nil)

// NewLLMStrategy returns a strategy backed by completer. A nil completer is
// never available.
func NewLLMStrategy(completer Completer) *LLMStrategy {
	return &LLMStrategy{completer: completer}
}

func (s *LLMStrategy) Name() string { return "llm" }

func (s *LLMStrategy) Available() bool {
	return s.completer != nil && s.completer.Configured()
}

func (s *LLMStrategy) Parse(ctx context.Context, text string) (TradeIntent, error) {
	content, err := s.completer.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(userPromptTemplate, text)},
		},
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil {
		return TradeIntent{}, err
	}

	var raw Raw
	if err := json.Unmarshal([]byte(llm.ExtractJSON(content)), &raw); err != nil {
		return TradeIntent{}, fmt.Errorf("model returned invalid JSON: %w", err)
	}
	return Normalize(raw), nil
}
