package alpaca

import (
	"github.com/shopspring/decimal"

	"voice-trading-assistant-go/internal/broker"
)

// demoPositions is the fixed book served in simulated mode. It mixes
// leveraged ETFs with plain equities so the leveraged views have data.
func demoPositions() []broker.Position {
	rows := [][8]string{
		// symbol, qty, avg entry, current, market value, unrealized P/L, P/L %, side
		{"TQQQ", "50", "45.20", "48.75", "2437.50", "177.50", "0.0785", "long"},
		{"SOXL", "30", "22.80", "25.40", "762.00", "78.00", "0.1140", "long"},
		{"AAPL", "20", "178.50", "182.30", "3646.00", "76.00", "0.0213", "long"},
		{"UVXY", "100", "28.50", "26.20", "2620.00", "-230.00", "-0.0807", "long"},
		{"YINN", "40", "8.20", "9.15", "366.00", "38.00", "0.1159", "long"},
		{"NVDA", "15", "485.00", "520.00", "7800.00", "525.00", "0.0722", "long"},
	}

	positions := make([]broker.Position, 0, len(rows))
	for _, r := range rows {
		positions = append(positions, broker.Position{
			Symbol:              r[0],
			Qty:                 decimal.RequireFromString(r[1]),
			AvgEntryPrice:       decimal.RequireFromString(r[2]),
			CurrentPrice:        decimal.RequireFromString(r[3]),
			MarketValue:         decimal.RequireFromString(r[4]),
			UnrealizedPL:        decimal.RequireFromString(r[5]),
			UnrealizedPLPercent: decimal.RequireFromString(r[6]),
			Side:                r[7],
		})
	}
	return positions
}
