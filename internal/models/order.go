package models

import "gorm.io/gorm"

// Order is an audit record of every order the assistant submitted to the
// brokerage gateway, live or simulated.
type Order struct {
	gorm.Model
	BrokerOrderID string   `gorm:"index" json:"broker_order_id"`
	Symbol        string   `gorm:"index;not null" json:"symbol"`
	Side          string   `json:"side"` // "buy" or "sell"
	Type          string   `json:"type"` // "market", "limit" or "stop"
	TimeInForce   string   `json:"time_in_force"`
	Quantity      int      `json:"quantity"`
	LimitPrice    *float64 `json:"limit_price,omitempty"`
	StopPrice     *float64 `json:"stop_price,omitempty"`
	Status        string   `json:"status"`
	Simulated     bool     `json:"simulated"`
	Error         string   `json:"error,omitempty"`
	Source        string   `json:"source"` // "http", "realtime" or "cli"
	SubmittedAt   int64    `json:"submitted_at"`
}
