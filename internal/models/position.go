package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BrokerPosition: открытая позиция на стороне брокера.
type BrokerPosition struct {
	PositionID int64           `json:"position_id"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Volume     decimal.Decimal `json:"volume"`
	OpenPrice  decimal.Decimal `json:"open_price"`
	Profit     decimal.Decimal `json:"profit"`
	Magic      int64           `json:"magic"`
	OpenedAt   time.Time       `json:"opened_at"`
}

// RequestResult is the broker's answer to a trade request.
type RequestResult struct {
	Success        bool
	Deal           int64
	ServerCode     int
	ServerMessage  string
	ExecutedVolume decimal.Decimal
	ExecutionPrice decimal.Decimal
}

type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)
