package chainlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"oipulse/internal/chain"

	_ "modernc.org/sqlite"
)

// ChainLogStore 归档每轮期权链快照与派生指标，供日终报表与复盘查询。
type ChainLogStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// ChainRecord 是一条归档行：快照汇总 + 当轮指标。
type ChainRecord struct {
	ID             int64               `json:"id"`
	TradingDate    string              `json:"trading_date"`
	Timestamp      int64               `json:"ts"`
	Instrument     string              `json:"instrument"`
	Expiry         string              `json:"expiry"`
	Spot           float64             `json:"spot"`
	ATMStrike      float64             `json:"atm_strike"`
	TotalCallOI    float64             `json:"total_call_oi"`
	TotalPutOI     float64             `json:"total_put_oi"`
	CallOiDelta    float64             `json:"call_oi_delta"`
	PutOiDelta     float64             `json:"put_oi_delta"`
	Pcr            float64             `json:"pcr"`
	Vwap           float64             `json:"vwap"`
	PriceDirection string              `json:"price_direction"`
	Strikes        []chain.StrikeQuote `json:"strikes,omitempty"`
}

// NewChainLogStore 初始化 SQLite 归档库。
func NewChainLogStore(path string) (*ChainLogStore, error) {
	if path == "" {
		return nil, fmt.Errorf("chain log path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureChainLogSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &ChainLogStore{db: db, path: path}, nil
}

// Close 关闭底层 DB。
func (s *ChainLogStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureChainLogSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chain_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trading_date TEXT NOT NULL,
			ts INTEGER NOT NULL,
			instrument TEXT NOT NULL,
			expiry TEXT,
			spot REAL NOT NULL DEFAULT 0,
			atm_strike REAL NOT NULL DEFAULT 0,
			total_call_oi REAL NOT NULL DEFAULT 0,
			total_put_oi REAL NOT NULL DEFAULT 0,
			call_oi_delta REAL NOT NULL DEFAULT 0,
			put_oi_delta REAL NOT NULL DEFAULT 0,
			pcr REAL NOT NULL DEFAULT 0,
			vwap REAL NOT NULL DEFAULT 0,
			price_direction TEXT,
			strikes_json TEXT,
			created_at INTEGER NOT NULL
		);
		`,
		`CREATE INDEX IF NOT EXISTS idx_chain_snapshots_day_ts ON chain_snapshots(instrument, trading_date, ts);`,
		`CREATE INDEX IF NOT EXISTS idx_chain_snapshots_ts ON chain_snapshots(ts);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append 归档一轮快照及其指标，返回自增 ID。
func (s *ChainLogStore) Append(ctx context.Context, tradingDate string, snap chain.Snapshot, ind chain.IndicatorSet) (int64, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return 0, fmt.Errorf("chain log store 未初始化")
	}
	tradingDate = strings.TrimSpace(tradingDate)
	if tradingDate == "" {
		return 0, fmt.Errorf("trading date 必填")
	}
	ts := snap.CapturedAt.UnixMilli()
	if snap.CapturedAt.IsZero() {
		ts = time.Now().UnixMilli()
	}
	strikesBlob := ""
	if len(snap.Strikes) > 0 {
		if b, err := json.Marshal(snap.Strikes); err == nil {
			strikesBlob = string(b)
		}
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO chain_snapshots
			(trading_date, ts, instrument, expiry, spot, atm_strike, total_call_oi, total_put_oi,
			 call_oi_delta, put_oi_delta, pcr, vwap, price_direction, strikes_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tradingDate,
		ts,
		strings.ToUpper(strings.TrimSpace(snap.Instrument)),
		snap.Expiry,
		snap.Spot,
		snap.ATMStrike,
		snap.TotalCallOI(),
		snap.TotalPutOI(),
		ind.CallOiDelta,
		ind.PutOiDelta,
		ind.Pcr,
		ind.Vwap,
		string(ind.PriceDirection),
		strikesBlob,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// ListByDay 按时间升序返回某标的某交易日的全部归档行。
func (s *ChainLogStore) ListByDay(ctx context.Context, instrument, tradingDate string) ([]ChainRecord, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("chain log store 未初始化")
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, trading_date, ts, instrument, expiry, spot, atm_strike, total_call_oi, total_put_oi,
		       call_oi_delta, put_oi_delta, pcr, vwap, price_direction, strikes_json
		FROM chain_snapshots
		WHERE instrument = ? AND trading_date = ?
		ORDER BY ts ASC, id ASC`,
		strings.ToUpper(strings.TrimSpace(instrument)), strings.TrimSpace(tradingDate))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []ChainRecord
	for rows.Next() {
		rec, err := scanChainRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// LatestByInstrument 返回某标的最近 limit 条归档行，按时间倒序。
func (s *ChainLogStore) LatestByInstrument(ctx context.Context, instrument string, limit int) ([]ChainRecord, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("chain log store 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, trading_date, ts, instrument, expiry, spot, atm_strike, total_call_oi, total_put_oi,
		       call_oi_delta, put_oi_delta, pcr, vwap, price_direction, strikes_json
		FROM chain_snapshots
		WHERE instrument = ?
		ORDER BY ts DESC, id DESC LIMIT ?`,
		strings.ToUpper(strings.TrimSpace(instrument)), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []ChainRecord
	for rows.Next() {
		rec, err := scanChainRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// PruneBefore 删除指定时间之前的归档行，返回删除数量。
func (s *ChainLogStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return 0, fmt.Errorf("chain log store 未初始化")
	}
	res, err := db.ExecContext(ctx, `DELETE FROM chain_snapshots WHERE ts < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanChainRecord(rows *sql.Rows) (ChainRecord, error) {
	var rec ChainRecord
	var expiry, direction, strikesBlob sql.NullString
	if err := rows.Scan(
		&rec.ID,
		&rec.TradingDate,
		&rec.Timestamp,
		&rec.Instrument,
		&expiry,
		&rec.Spot,
		&rec.ATMStrike,
		&rec.TotalCallOI,
		&rec.TotalPutOI,
		&rec.CallOiDelta,
		&rec.PutOiDelta,
		&rec.Pcr,
		&rec.Vwap,
		&direction,
		&strikesBlob,
	); err != nil {
		return ChainRecord{}, err
	}
	rec.Expiry = expiry.String
	rec.PriceDirection = direction.String
	if strikesBlob.Valid && strikesBlob.String != "" {
		_ = json.Unmarshal([]byte(strikesBlob.String), &rec.Strikes)
	}
	return rec, nil
}
