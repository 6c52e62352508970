package model

import "gorm.io/datatypes"

// SignalModel maps to the 'signals' table.
type SignalModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	SignalID      string         `gorm:"column:signal_id;uniqueIndex"`
	TradingDate   string         `gorm:"column:trading_date;index"`
	Instrument    string         `gorm:"column:instrument;index"`
	Action        string         `gorm:"column:action"`
	Strike        float64        `gorm:"column:strike"`
	Expiry        string         `gorm:"column:expiry"`
	LotSize       int            `gorm:"column:lot_size"`
	ScenarioID    string         `gorm:"column:scenario_id"`
	Label         string         `gorm:"column:label"`
	Bias          string         `gorm:"column:bias"`
	Confidence    int            `gorm:"column:confidence"`
	Entry         float64        `gorm:"column:entry"`
	StopLoss      float64        `gorm:"column:stop_loss"`
	Target        float64        `gorm:"column:target"`
	RiskReward    float64        `gorm:"column:risk_reward"`
	Reasons       datatypes.JSON `gorm:"column:reasons"`
	Indicators    datatypes.JSON `gorm:"column:indicators"`
	CreatedAtUnix int64          `gorm:"column:created_at;index"`
}

func (SignalModel) TableName() string { return "signals" }

// PaperTradeModel maps to the 'paper_trades' table.
type PaperTradeModel struct {
	ID           int64   `gorm:"column:id;primaryKey"`
	TradeID      string  `gorm:"column:trade_id;uniqueIndex"`
	SignalID     string  `gorm:"column:signal_id;index"`
	TradingDate  string  `gorm:"column:trading_date;index"`
	Instrument   string  `gorm:"column:instrument;index"`
	Action       string  `gorm:"column:action"`
	Strike       float64 `gorm:"column:strike"`
	Expiry       string  `gorm:"column:expiry"`
	LotSize      int     `gorm:"column:lot_size"`
	Entry        float64 `gorm:"column:entry"`
	StopLoss     float64 `gorm:"column:stop_loss"`
	Target       float64 `gorm:"column:target"`
	ExitPrice    float64 `gorm:"column:exit_price"`
	Outcome      string  `gorm:"column:outcome"`
	PnlPoints    float64 `gorm:"column:pnl_points"`
	PnlRupees    float64 `gorm:"column:pnl_rupees"`
	Status       string  `gorm:"column:status;index"`
	OpenedAtUnix int64   `gorm:"column:opened_at"`
	ClosedAtUnix int64   `gorm:"column:closed_at"`
}

func (PaperTradeModel) TableName() string { return "paper_trades" }

// DaySummaryModel maps to the 'day_summaries' table.
type DaySummaryModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	TradingDate   string         `gorm:"column:trading_date;uniqueIndex:idx_day_instrument"`
	Instrument    string         `gorm:"column:instrument;uniqueIndex:idx_day_instrument"`
	Signals       int            `gorm:"column:signals"`
	Wins          int            `gorm:"column:wins"`
	Losses        int            `gorm:"column:losses"`
	Flat          int            `gorm:"column:flat"`
	NetPoints     float64        `gorm:"column:net_points"`
	NetRupees     float64        `gorm:"column:net_rupees"`
	Scenarios     datatypes.JSON `gorm:"column:scenarios"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (DaySummaryModel) TableName() string { return "day_summaries" }
