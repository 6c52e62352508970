package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"oipulse/internal/chain"
	"oipulse/internal/signal"
	"oipulse/internal/store"
	storemodel "oipulse/internal/store/model"
)

type signalModel = storemodel.SignalModel
type paperTradeModel = storemodel.PaperTradeModel
type daySummaryModel = storemodel.DaySummaryModel

// Ledger 用 Gorm + SQLite 持久化信号、纸面交易与日汇总。
type Ledger struct {
	db *gorm.DB
}

func NewLedger(path string) (*Ledger, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("ledger: 台账路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	// DriverName "sqlite" binds to the pure-Go modernc.org/sqlite driver,
	// required because the build runs with CGO_ENABLED=0 (the DSN already
	// uses modernc's _pragma= syntax).
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&signalModel{}, &paperTradeModel{}, &daySummaryModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Ledger{db: db}, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ signal.Ledger = (*Ledger)(nil)

// --------------------- Signals -------------------------

func (l *Ledger) AppendSignal(ctx context.Context, sig signal.Signal) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("ledger 未初始化")
	}
	if strings.TrimSpace(sig.ID) == "" {
		return fmt.Errorf("signal id 必填")
	}
	model := newSignalModel(sig)
	return l.db.WithContext(ctx).Create(&model).Error
}

func (l *Ledger) ListRecentSignals(ctx context.Context, limit int) ([]signal.Signal, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("ledger 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var models []signalModel
	if err := l.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]signal.Signal, 0, len(models))
	for _, m := range models {
		out = append(out, signalModelToRecord(m))
	}
	return out, nil
}

func (l *Ledger) SignalsOn(ctx context.Context, tradingDate string) ([]signal.Signal, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("ledger 未初始化")
	}
	var models []signalModel
	if err := l.db.WithContext(ctx).
		Where("trading_date = ?", strings.TrimSpace(tradingDate)).
		Order("created_at ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]signal.Signal, 0, len(models))
	for _, m := range models {
		out = append(out, signalModelToRecord(m))
	}
	return out, nil
}

// --------------------- Paper Trades -------------------------

func (l *Ledger) OpenPaperTrade(ctx context.Context, rec store.PaperTradeRecord) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("ledger 未初始化")
	}
	if strings.TrimSpace(rec.TradeID) == "" {
		return fmt.Errorf("trade id 必填")
	}
	if rec.Status == "" {
		rec.Status = store.TradeStatusOpen
	}
	if rec.OpenedAt.IsZero() {
		rec.OpenedAt = time.Now()
	}
	model := newPaperTradeModel(rec)
	return l.db.WithContext(ctx).Create(&model).Error
}

func (l *Ledger) ClosePaperTrade(ctx context.Context, tradeID string, exit float64, outcome string, pnlPoints, pnlRupees float64, closedAt time.Time) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("ledger 未初始化")
	}
	tradeID = strings.TrimSpace(tradeID)
	if tradeID == "" {
		return fmt.Errorf("trade id 必填")
	}
	if closedAt.IsZero() {
		closedAt = time.Now()
	}
	res := l.db.WithContext(ctx).Model(&paperTradeModel{}).
		Where("trade_id = ? AND status = ?", tradeID, string(store.TradeStatusOpen)).
		Updates(map[string]interface{}{
			"exit_price": exit,
			"outcome":    outcome,
			"pnl_points": pnlPoints,
			"pnl_rupees": pnlRupees,
			"status":     string(store.TradeStatusClosed),
			"closed_at":  closedAt.UnixMilli(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (l *Ledger) ListOpenTrades(ctx context.Context, instrument string) ([]store.PaperTradeRecord, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("ledger 未初始化")
	}
	query := l.db.WithContext(ctx).Where("status = ?", string(store.TradeStatusOpen))
	if inst := strings.ToUpper(strings.TrimSpace(instrument)); inst != "" {
		query = query.Where("instrument = ?", inst)
	}
	var models []paperTradeModel
	if err := query.Order("opened_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.PaperTradeRecord, 0, len(models))
	for _, m := range models {
		out = append(out, paperTradeModelToRecord(m))
	}
	return out, nil
}

func (l *Ledger) TradesOn(ctx context.Context, tradingDate string) ([]store.PaperTradeRecord, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("ledger 未初始化")
	}
	var models []paperTradeModel
	if err := l.db.WithContext(ctx).
		Where("trading_date = ?", strings.TrimSpace(tradingDate)).
		Order("opened_at ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.PaperTradeRecord, 0, len(models))
	for _, m := range models {
		out = append(out, paperTradeModelToRecord(m))
	}
	return out, nil
}

// --------------------- Day Summaries -------------------------

func (l *Ledger) UpsertDaySummary(ctx context.Context, rec store.DaySummaryRecord) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("ledger 未初始化")
	}
	if strings.TrimSpace(rec.TradingDate) == "" || strings.TrimSpace(rec.Instrument) == "" {
		return fmt.Errorf("day summary 需要 trading_date 与 instrument")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	model := newDaySummaryModel(rec)
	return l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "trading_date"}, {Name: "instrument"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"signals", "wins", "losses", "flat", "net_points", "net_rupees", "scenarios", "updated_at",
			}),
		}).
		Create(&model).Error
}

func (l *Ledger) GetDaySummary(ctx context.Context, tradingDate, instrument string) (store.DaySummaryRecord, bool, error) {
	if l == nil || l.db == nil {
		return store.DaySummaryRecord{}, false, fmt.Errorf("ledger 未初始化")
	}
	var model daySummaryModel
	err := l.db.WithContext(ctx).
		Where("trading_date = ? AND instrument = ?", strings.TrimSpace(tradingDate), strings.ToUpper(strings.TrimSpace(instrument))).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return store.DaySummaryRecord{}, false, nil
		}
		return store.DaySummaryRecord{}, false, err
	}
	return daySummaryModelToRecord(model), true, nil
}

func (l *Ledger) SummariesOn(ctx context.Context, tradingDate string) ([]store.DaySummaryRecord, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("ledger 未初始化")
	}
	var models []daySummaryModel
	if err := l.db.WithContext(ctx).
		Where("trading_date = ?", strings.TrimSpace(tradingDate)).
		Order("instrument ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.DaySummaryRecord, 0, len(models))
	for _, m := range models {
		out = append(out, daySummaryModelToRecord(m))
	}
	return out, nil
}

// --------------------------- Model Helpers ------------------------------

func newSignalModel(sig signal.Signal) signalModel {
	reasons, _ := json.Marshal(sig.Scenario.Reasons)
	indicators, _ := json.Marshal(sig.Scenario.Indicators)
	return signalModel{
		SignalID:      strings.TrimSpace(sig.ID),
		TradingDate:   strings.TrimSpace(sig.TradingDate),
		Instrument:    strings.ToUpper(strings.TrimSpace(sig.Instrument)),
		Action:        string(sig.Action),
		Strike:        sig.Strike,
		Expiry:        strings.TrimSpace(sig.Expiry),
		LotSize:       sig.LotSize,
		ScenarioID:    sig.Scenario.ScenarioID,
		Label:         sig.Scenario.Label,
		Bias:          string(sig.Scenario.Bias),
		Confidence:    sig.Scenario.Confidence,
		Entry:         sig.Risk.Entry,
		StopLoss:      sig.Risk.StopLoss,
		Target:        sig.Risk.Target,
		RiskReward:    sig.Risk.RiskReward,
		Reasons:       datatypes.JSON(reasons),
		Indicators:    datatypes.JSON(indicators),
		CreatedAtUnix: sig.CreatedAt.UnixMilli(),
	}
}

func signalModelToRecord(m signalModel) signal.Signal {
	var reasons []string
	if len(m.Reasons) > 0 {
		_ = json.Unmarshal(m.Reasons, &reasons)
	}
	var indicators chain.IndicatorSet
	if len(m.Indicators) > 0 {
		_ = json.Unmarshal(m.Indicators, &indicators)
	}
	return signal.Signal{
		ID:          m.SignalID,
		TradingDate: m.TradingDate,
		Instrument:  m.Instrument,
		Action:      signal.Action(m.Action),
		Strike:      m.Strike,
		Expiry:      m.Expiry,
		LotSize:     m.LotSize,
		Scenario: signal.MatchedScenario{
			ScenarioID: m.ScenarioID,
			Label:      m.Label,
			Bias:       signal.Bias(m.Bias),
			Confidence: m.Confidence,
			Indicators: indicators,
			MatchedAt:  indicators.CapturedAt,
			Reasons:    reasons,
		},
		Risk: signal.RiskProfile{
			Entry:      m.Entry,
			StopLoss:   m.StopLoss,
			Target:     m.Target,
			RiskReward: m.RiskReward,
		},
		CreatedAt: millisToTime(m.CreatedAtUnix),
	}
}

func newPaperTradeModel(rec store.PaperTradeRecord) paperTradeModel {
	return paperTradeModel{
		TradeID:      strings.TrimSpace(rec.TradeID),
		SignalID:     strings.TrimSpace(rec.SignalID),
		TradingDate:  strings.TrimSpace(rec.TradingDate),
		Instrument:   strings.ToUpper(strings.TrimSpace(rec.Instrument)),
		Action:       rec.Action,
		Strike:       rec.Strike,
		Expiry:       rec.Expiry,
		LotSize:      rec.LotSize,
		Entry:        rec.Entry,
		StopLoss:     rec.StopLoss,
		Target:       rec.Target,
		ExitPrice:    rec.Exit,
		Outcome:      rec.Outcome,
		PnlPoints:    rec.PnlPoints,
		PnlRupees:    rec.PnlRupees,
		Status:       string(rec.Status),
		OpenedAtUnix: rec.OpenedAt.UnixMilli(),
		ClosedAtUnix: timeToMillis(rec.ClosedAt),
	}
}

func paperTradeModelToRecord(m paperTradeModel) store.PaperTradeRecord {
	return store.PaperTradeRecord{
		TradeID:     m.TradeID,
		SignalID:    m.SignalID,
		TradingDate: m.TradingDate,
		Instrument:  m.Instrument,
		Action:      m.Action,
		Strike:      m.Strike,
		Expiry:      m.Expiry,
		LotSize:     m.LotSize,
		Entry:       m.Entry,
		StopLoss:    m.StopLoss,
		Target:      m.Target,
		Exit:        m.ExitPrice,
		Outcome:     m.Outcome,
		PnlPoints:   m.PnlPoints,
		PnlRupees:   m.PnlRupees,
		Status:      store.TradeStatus(m.Status),
		OpenedAt:    millisToTime(m.OpenedAtUnix),
		ClosedAt:    millisToTime(m.ClosedAtUnix),
	}
}

func newDaySummaryModel(rec store.DaySummaryRecord) daySummaryModel {
	scenarios, _ := json.Marshal(rec.Scenarios)
	return daySummaryModel{
		TradingDate:   strings.TrimSpace(rec.TradingDate),
		Instrument:    strings.ToUpper(strings.TrimSpace(rec.Instrument)),
		Signals:       rec.Signals,
		Wins:          rec.Wins,
		Losses:        rec.Losses,
		Flat:          rec.Flat,
		NetPoints:     rec.NetPoints,
		NetRupees:     rec.NetRupees,
		Scenarios:     datatypes.JSON(scenarios),
		UpdatedAtUnix: rec.UpdatedAt.UnixMilli(),
	}
}

func daySummaryModelToRecord(m daySummaryModel) store.DaySummaryRecord {
	var scenarios []string
	if len(m.Scenarios) > 0 {
		_ = json.Unmarshal(m.Scenarios, &scenarios)
	}
	return store.DaySummaryRecord{
		TradingDate: m.TradingDate,
		Instrument:  m.Instrument,
		Signals:     m.Signals,
		Wins:        m.Wins,
		Losses:      m.Losses,
		Flat:        m.Flat,
		NetPoints:   m.NetPoints,
		NetRupees:   m.NetRupees,
		Scenarios:   scenarios,
		UpdatedAt:   millisToTime(m.UpdatedAtUnix),
	}
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisToTime(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}
