package store

import "time"

// TradeStatus 标记纸面交易的生命周期。
type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "OPEN"
	TradeStatusClosed TradeStatus = "CLOSED"
)

// 平仓原因。
const (
	OutcomeStop       = "stop"
	OutcomeTarget     = "target"
	OutcomeSessionEnd = "session_end"
)

// PaperTradeRecord 是一笔纸面交易的台账视图。
type PaperTradeRecord struct {
	TradeID     string      `json:"trade_id"`
	SignalID    string      `json:"signal_id"`
	TradingDate string      `json:"trading_date"`
	Instrument  string      `json:"instrument"`
	Action      string      `json:"action"`
	Strike      float64     `json:"strike"`
	Expiry      string      `json:"expiry"`
	LotSize     int         `json:"lot_size"`
	Entry       float64     `json:"entry"`
	StopLoss    float64     `json:"stop_loss"`
	Target      float64     `json:"target"`
	Exit        float64     `json:"exit,omitempty"`
	Outcome     string      `json:"outcome,omitempty"`
	PnlPoints   float64     `json:"pnl_points"`
	PnlRupees   float64     `json:"pnl_rupees"`
	Status      TradeStatus `json:"status"`
	OpenedAt    time.Time   `json:"opened_at"`
	ClosedAt    time.Time   `json:"closed_at,omitempty"`
}

// DaySummaryRecord 是单标的单交易日的聚合结果，日界翻转时落库。
type DaySummaryRecord struct {
	TradingDate string    `json:"trading_date"`
	Instrument  string    `json:"instrument"`
	Signals     int       `json:"signals"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	Flat        int       `json:"flat"`
	NetPoints   float64   `json:"net_points"`
	NetRupees   float64   `json:"net_rupees"`
	Scenarios   []string  `json:"scenarios,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
