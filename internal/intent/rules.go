package intent

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// keywordSet matches ASCII terms on word boundaries and CJK terms by
// containment.
type keywordSet struct {
	words *regexp.Regexp
	cjk   []string
}

func newKeywordSet(ascii []string, cjk ...string) keywordSet {
	quoted := make([]string, len(ascii))
	for i, w := range ascii {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return keywordSet{
		words: regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`),
		cjk:   cjk,
	}
}

func (k keywordSet) match(lower string) bool {
	if k.words.MatchString(lower) {
		return true
	}
	for _, term := range k.cjk {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

type symbolAlias struct {
	alias  string
	symbol string
}

var (
	actionKeywords = []struct {
		action Action
		set    keywordSet
	}{
		{ActionBuy, newKeywordSet([]string{"buy", "purchase"}, "买入", "购买")},
		{ActionSell, newKeywordSet([]string{"sell"}, "卖出", "出售")},
		{ActionCancel, newKeywordSet([]string{"cancel"}, "取消")},
		{ActionCheck, newKeywordSet([]string{"check", "position"}, "查看", "检查", "持仓")},
	}

	marketKeywords = newKeywordSet([]string{"market", "at market"}, "市价")
	limitKeywords  = newKeywordSet([]string{"limit", "if it hits", "when it reaches", "at"}, "限价")
	stopKeywords   = newKeywordSet([]string{"stop"}, "止损")

	// Searched in order; the first alias contained in the text wins.
	symbolAliases = []symbolAlias{
		{"apple", "AAPL"}, {"aapl", "AAPL"}, {"苹果", "AAPL"},
		{"nvidia", "NVDA"}, {"nvda", "NVDA"}, {"英伟达", "NVDA"},
		{"microsoft", "MSFT"}, {"msft", "MSFT"}, {"微软", "MSFT"},
		{"tesla", "TSLA"}, {"tsla", "TSLA"}, {"特斯拉", "TSLA"},
		{"amazon", "AMZN"}, {"amzn", "AMZN"}, {"亚马逊", "AMZN"},
		{"google", "GOOGL"}, {"googl", "GOOGL"}, {"谷歌", "GOOGL"},
		{"meta", "META"}, {"facebook", "META"}, {"脸书", "META"},
		{"netflix", "NFLX"}, {"nflx", "NFLX"}, {"奈飞", "NFLX"},
		{"amd", "AMD"},
		{"intel", "INTC"}, {"intc", "INTC"}, {"英特尔", "INTC"},
	}

	tickerPattern   = regexp.MustCompile(`\b([A-Z]{2,5})\b`)
	quantityPattern = regexp.MustCompile(`\b(\d+)(?:\s*(?:shares?|股))?`)

	limitPricePattern = regexp.MustCompile(
		`(?:\b(?:limit(?:\s+price)?(?:\s+(?:of|at))?|if it hits|when it reaches|at)\b|@|限价)\s*\$?\s*(\d+(?:\.\d+)?)`)
	stopPricePattern = regexp.MustCompile(
		`(?:\bstop(?:[\s-]+loss)?(?:\s+(?:price|at|of))?\b|止损(?:价)?)\s*\$?\s*(\d+(?:\.\d+)?)`)
	dollarPattern = regexp.MustCompile(`\$\s*(\d+(?:\.\d+)?)`)
)

// RuleStrategy is the deterministic keyword parser. It is always available
// and never fails.
type RuleStrategy struct{}

var _ Strategy = RuleStrategy{}

func (RuleStrategy) Name() string { return "rules" }

func (RuleStrategy) Available() bool { return true }

func (RuleStrategy) Parse(_ context.Context, text string) (TradeIntent, error) {
	return ParseRules(text), nil
}

// ParseRules extracts an intent from English or Chinese text using keyword
// and alias tables. The result is already normalized.
func ParseRules(text string) TradeIntent {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	raw := Raw{Action: string(ActionUnknown)}
	for _, ak := range actionKeywords {
		if ak.set.match(lower) {
			raw.Action = string(ak.action)
			break
		}
	}

	if sym := findSymbol(trimmed, lower); sym != "" {
		raw.Symbol = sym
	}

	if m := quantityPattern.FindStringSubmatch(lower); m != nil {
		raw.Quantity = m[1]
	}

	switch {
	case marketKeywords.match(lower):
		raw.OrderType = string(OrderTypeMarket)
	case limitKeywords.match(lower):
		raw.OrderType = string(OrderTypeLimit)
		raw.LimitPrice = findPrice(lower, limitPricePattern)
	case stopKeywords.match(lower):
		raw.OrderType = string(OrderTypeStop)
		raw.StopPrice = findPrice(lower, stopPricePattern)
	}

	return Normalize(raw)
}

func findSymbol(original, lower string) string {
	for _, a := range symbolAliases {
		if strings.Contains(lower, a.alias) {
			return a.symbol
		}
	}
	if m := tickerPattern.FindStringSubmatch(original); m != nil {
		return m[1]
	}
	return ""
}

// findPrice returns the first number following a trigger phrase, falling back
// to the first dollar amount. Nil when none is present.
func findPrice(lower string, trigger *regexp.Regexp) any {
	m := trigger.FindStringSubmatch(lower)
	if m == nil {
		m = dollarPattern.FindStringSubmatch(lower)
	}
	if m == nil {
		return nil
	}
	p, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return p
}
