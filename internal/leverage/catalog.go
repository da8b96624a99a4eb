// Package leverage identifies leveraged and inverse ETFs among positions.
package leverage

import "strings"

// Info describes the leverage profile of a symbol.
type Info struct {
	Symbol      string `json:"symbol"`
	IsLeveraged bool   `json:"isLeveraged"`
	Name        string `json:"name,omitempty"`
	Leverage    string `json:"leverage,omitempty"`
	Type        string `json:"type,omitempty"`
	Underlying  string `json:"underlying,omitempty"`
	Source      string `json:"source,omitempty"`
}

const (
	SourceCatalog = "catalog"
	SourceLLM     = "llm"
)

type etf struct {
	name, leverage, kind, underlying string
}

var catalog = map[string]etf{
	// 3x
	"TQQQ": {"ProShares UltraPro QQQ", "3x", "Bull", "NASDAQ-100"},
	"SQQQ": {"ProShares UltraPro Short QQQ", "-3x", "Bear", "NASDAQ-100"},
	"UPRO": {"ProShares UltraPro S&P500", "3x", "Bull", "S&P 500"},
	"SPXU": {"ProShares UltraPro Short S&P500", "-3x", "Bear", "S&P 500"},
	"SOXL": {"Direxion Semiconductor Bull 3X", "3x", "Bull", "Semiconductor"},
	"SOXS": {"Direxion Semiconductor Bear 3X", "-3x", "Bear", "Semiconductor"},
	"LABU": {"Direxion Biotech Bull 3X", "3x", "Bull", "Biotech"},
	"LABD": {"Direxion Biotech Bear 3X", "-3x", "Bear", "Biotech"},
	"FNGU": {"MicroSectors FANG+ Bull 3X", "3x", "Bull", "FANG+"},
	"FNGD": {"MicroSectors FANG+ Bear 3X", "-3x", "Bear", "FANG+"},
	"TNA":  {"Direxion Small Cap Bull 3X", "3x", "Bull", "Russell 2000"},
	"TZA":  {"Direxion Small Cap Bear 3X", "-3x", "Bear", "Russell 2000"},
	"TECL": {"Direxion Technology Bull 3X", "3x", "Bull", "Technology"},
	"TECS": {"Direxion Technology Bear 3X", "-3x", "Bear", "Technology"},
	"FAS":  {"Direxion Financial Bull 3X", "3x", "Bull", "Financial"},
	"FAZ":  {"Direxion Financial Bear 3X", "-3x", "Bear", "Financial"},
	"CURE": {"Direxion Healthcare Bull 3X", "3x", "Bull", "Healthcare"},
	"NAIL": {"Direxion Homebuilders Bull 3X", "3x", "Bull", "Homebuilders"},
	"WEBL": {"Direxion Internet Bull 3X", "3x", "Bull", "Internet"},
	"WEBS": {"Direxion Internet Bear 3X", "-3x", "Bear", "Internet"},
	"DPST": {"Direxion Regional Banks Bull 3X", "3x", "Bull", "Regional Banks"},
	"SPXL": {"Direxion S&P 500 Bull 3X", "3x", "Bull", "S&P 500"},
	"SPXS": {"Direxion S&P 500 Bear 3X", "-3x", "Bear", "S&P 500"},

	// 2x
	"NUGT": {"Direxion Gold Miners Bull 2X", "2x", "Bull", "Gold Miners"},
	"DUST": {"Direxion Gold Miners Bear 2X", "-2x", "Bear", "Gold Miners"},
	"JNUG": {"Direxion Junior Gold Miners Bull 2X", "2x", "Bull", "Jr Gold Miners"},
	"JDST": {"Direxion Junior Gold Miners Bear 2X", "-2x", "Bear", "Jr Gold Miners"},
	"ERX":  {"Direxion Energy Bull 2X", "2x", "Bull", "Energy"},
	"ERY":  {"Direxion Energy Bear 2X", "-2x", "Bear", "Energy"},
	"BOIL": {"ProShares Ultra Bloomberg Natural Gas", "2x", "Bull", "Natural Gas"},
	"KOLD": {"ProShares UltraShort Bloomberg Natural Gas", "-2x", "Bear", "Natural Gas"},
	"QLD":  {"ProShares Ultra QQQ", "2x", "Bull", "NASDAQ-100"},
	"QID":  {"ProShares UltraShort QQQ", "-2x", "Bear", "NASDAQ-100"},
	"SSO":  {"ProShares Ultra S&P500", "2x", "Bull", "S&P 500"},
	"SDS":  {"ProShares UltraShort S&P500", "-2x", "Bear", "S&P 500"},
	"UCO":  {"ProShares Ultra Bloomberg Crude Oil", "2x", "Bull", "Crude Oil"},
	"SCO":  {"ProShares UltraShort Bloomberg Crude Oil", "-2x", "Bear", "Crude Oil"},
	"UGL":  {"ProShares Ultra Gold", "2x", "Bull", "Gold"},
	"GLL":  {"ProShares UltraShort Gold", "-2x", "Bear", "Gold"},
	"AGQ":  {"ProShares Ultra Silver", "2x", "Bull", "Silver"},
	"ZSL":  {"ProShares UltraShort Silver", "-2x", "Bear", "Silver"},
	"UWM":  {"ProShares Ultra Russell2000", "2x", "Bull", "Russell 2000"},
	"TWM":  {"ProShares UltraShort Russell2000", "-2x", "Bear", "Russell 2000"},
	"ROM":  {"ProShares Ultra Technology", "2x", "Bull", "Technology"},
	"REW":  {"ProShares UltraShort Technology", "-2x", "Bear", "Technology"},
	"UYG":  {"ProShares Ultra Financials", "2x", "Bull", "Financials"},
	"SKF":  {"ProShares UltraShort Financials", "-2x", "Bear", "Financials"},
	"DIG":  {"ProShares Ultra Energy", "2x", "Bull", "Energy"},
	"DUG":  {"ProShares UltraShort Energy", "-2x", "Bear", "Energy"},
	"USD":  {"ProShares Ultra Semiconductors", "2x", "Bull", "Semiconductors"},
	"SSG":  {"ProShares UltraShort Semiconductors", "-2x", "Bear", "Semiconductors"},

	// Volatility and commodities
	"UVXY": {"ProShares Ultra VIX Short-Term", "1.5x", "Volatility", "VIX"},
	"SVXY": {"ProShares Short VIX Short-Term", "-0.5x", "Inverse Vol", "VIX"},
	"WEAT": {"Teucrium Wheat Fund", "1x", "Commodity", "Wheat"},

	// China
	"YINN": {"Direxion China Bull 3X", "3x", "Bull", "China Large Cap"},
	"YANG": {"Direxion China Bear 3X", "-3x", "Bear", "China Large Cap"},
	"XPP":  {"ProShares Ultra FTSE China 50", "2x", "Bull", "China 50"},
	"FXP":  {"ProShares UltraShort FTSE China 50", "-2x", "Bear", "China 50"},
	"CWEB": {"Direxion China Internet Bull 2X", "2x", "Bull", "China Internet"},
}

// Lookup returns the catalog entry for symbol, case-insensitively.
func Lookup(symbol string) (Info, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	e, ok := catalog[symbol]
	if !ok {
		return Info{}, false
	}
	return e.info(symbol), true
}

// Catalog returns a copy of every known leveraged ETF keyed by ticker.
func Catalog() map[string]Info {
	out := make(map[string]Info, len(catalog))
	for symbol, e := range catalog {
		out[symbol] = e.info(symbol)
	}
	return out
}

func (e etf) info(symbol string) Info {
	return Info{
		Symbol:      symbol,
		IsLeveraged: true,
		Name:        e.name,
		Leverage:    e.leverage,
		Type:        e.kind,
		Underlying:  e.underlying,
		Source:      SourceCatalog,
	}
}
