package trader

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"oipulse/internal/chain"
	"oipulse/internal/gateway/notifier"
	"oipulse/internal/logger"
	"oipulse/internal/signal"
	"oipulse/internal/store"
)

// TradeLedger 是纸面交易需要的台账能力子集。
type TradeLedger interface {
	OpenPaperTrade(ctx context.Context, rec store.PaperTradeRecord) error
	ClosePaperTrade(ctx context.Context, tradeID string, exit float64, outcome string, pnlPoints, pnlRupees float64, closedAt time.Time) error
	ListOpenTrades(ctx context.Context, instrument string) ([]store.PaperTradeRecord, error)
	TradesOn(ctx context.Context, tradingDate string) ([]store.PaperTradeRecord, error)
	SignalsOn(ctx context.Context, tradingDate string) ([]signal.Signal, error)
}

type openTrade struct {
	rec         store.PaperTradeRecord
	lastPremium float64
}

// PaperTracker 跟踪模拟买方持仓：信号落地即开仓，之后每轮用最新权利金
// 对照止损/目标价，收盘前仍未触发的按最后权利金平仓。
type PaperTracker struct {
	ledger TradeLedger
	sender notifier.TextNotifier

	mu   sync.Mutex
	open map[string][]*openTrade

	newID func() string
	now   func() time.Time
}

type TrackerOption func(*PaperTracker)

func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *PaperTracker) {
		if now != nil {
			t.now = now
		}
	}
}

func WithTrackerIDSource(newID func() string) TrackerOption {
	return func(t *PaperTracker) {
		if newID != nil {
			t.newID = newID
		}
	}
}

func NewPaperTracker(ledger TradeLedger, sender notifier.TextNotifier, opts ...TrackerOption) *PaperTracker {
	if sender == nil {
		sender = notifier.Nop{}
	}
	t := &PaperTracker{
		ledger: ledger,
		sender: sender,
		open:   make(map[string][]*openTrade),
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Restore 启动时把台账里仍处于 OPEN 的交易加载回内存，避免重启后失管。
func (t *PaperTracker) Restore(ctx context.Context) error {
	if t.ledger == nil {
		return nil
	}
	recs, err := t.ledger.ListOpenTrades(ctx, "")
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range recs {
		rec := recs[i]
		t.open[rec.Instrument] = append(t.open[rec.Instrument], &openTrade{rec: rec, lastPremium: rec.Entry})
	}
	if len(recs) > 0 {
		logger.Infof("恢复 %d 笔未平仓纸面交易", len(recs))
	}
	return nil
}

// Open 依据已发出的信号开一笔纸面交易。
func (t *PaperTracker) Open(ctx context.Context, sig signal.Signal) (store.PaperTradeRecord, error) {
	rec := store.PaperTradeRecord{
		TradeID:     t.newID(),
		SignalID:    sig.ID,
		TradingDate: sig.TradingDate,
		Instrument:  strings.ToUpper(sig.Instrument),
		Action:      string(sig.Action),
		Strike:      sig.Strike,
		Expiry:      sig.Expiry,
		LotSize:     sig.LotSize,
		Entry:       sig.Risk.Entry,
		StopLoss:    sig.Risk.StopLoss,
		Target:      sig.Risk.Target,
		Status:      store.TradeStatusOpen,
		OpenedAt:    t.now(),
	}
	if t.ledger != nil {
		if err := t.ledger.OpenPaperTrade(ctx, rec); err != nil {
			return store.PaperTradeRecord{}, err
		}
	}
	t.mu.Lock()
	t.open[rec.Instrument] = append(t.open[rec.Instrument], &openTrade{rec: rec, lastPremium: rec.Entry})
	t.mu.Unlock()
	logger.Infof("纸面开仓 %s %s %.0f @ %.2f (止损 %.2f 目标 %.2f)",
		rec.Instrument, rec.Action, rec.Strike, rec.Entry, rec.StopLoss, rec.Target)
	return rec, nil
}

// Evaluate 用最新快照刷新同标的的全部在途交易，返回本轮触发平仓的记录。
// 行权价已滑出跟踪窗口时该轮跳过，等待下一轮报价。
func (t *PaperTracker) Evaluate(ctx context.Context, snap chain.Snapshot) []store.PaperTradeRecord {
	instrument := strings.ToUpper(snap.Instrument)

	t.mu.Lock()
	trades := t.open[instrument]
	var keep []*openTrade
	var toClose []closeRequest
	for _, ot := range trades {
		q, ok := snap.Quote(ot.rec.Strike)
		if !ok {
			keep = append(keep, ot)
			continue
		}
		premium := q.CallLTP
		if strings.HasPrefix(ot.rec.Action, "PE") {
			premium = q.PutLTP
		}
		if premium <= 0 {
			keep = append(keep, ot)
			continue
		}
		ot.lastPremium = premium
		switch {
		case premium <= ot.rec.StopLoss:
			toClose = append(toClose, closeRequest{trade: ot, exit: premium, outcome: store.OutcomeStop})
		case premium >= ot.rec.Target:
			toClose = append(toClose, closeRequest{trade: ot, exit: premium, outcome: store.OutcomeTarget})
		default:
			keep = append(keep, ot)
		}
	}
	t.open[instrument] = keep
	t.mu.Unlock()

	closed := make([]store.PaperTradeRecord, 0, len(toClose))
	for _, req := range toClose {
		closed = append(closed, t.close(ctx, req))
	}
	return closed
}

// CloseSession 在交易时段结束时按最后已知权利金平掉某标的的所有在途交易。
func (t *PaperTracker) CloseSession(ctx context.Context, instrument string) []store.PaperTradeRecord {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))

	t.mu.Lock()
	trades := t.open[instrument]
	delete(t.open, instrument)
	t.mu.Unlock()

	closed := make([]store.PaperTradeRecord, 0, len(trades))
	for _, ot := range trades {
		exit := ot.lastPremium
		if exit <= 0 {
			exit = ot.rec.Entry
		}
		closed = append(closed, t.close(ctx, closeRequest{trade: ot, exit: exit, outcome: store.OutcomeSessionEnd}))
	}
	return closed
}

// OpenCount 返回某标的在途交易数，供状态接口上报。
func (t *PaperTracker) OpenCount(instrument string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open[strings.ToUpper(strings.TrimSpace(instrument))])
}

type closeRequest struct {
	trade   *openTrade
	exit    float64
	outcome string
}

func (t *PaperTracker) close(ctx context.Context, req closeRequest) store.PaperTradeRecord {
	rec := req.trade.rec
	closedAt := t.now()
	pnlPoints := req.exit - rec.Entry
	pnlRupees := pnlPoints * float64(rec.LotSize)

	rec.Exit = req.exit
	rec.Outcome = req.outcome
	rec.PnlPoints = pnlPoints
	rec.PnlRupees = pnlRupees
	rec.Status = store.TradeStatusClosed
	rec.ClosedAt = closedAt

	if t.ledger != nil {
		if err := t.ledger.ClosePaperTrade(ctx, rec.TradeID, req.exit, req.outcome, pnlPoints, pnlRupees, closedAt); err != nil {
			logger.Errorf("纸面平仓落库失败 %s: %v", rec.TradeID, err)
		}
	}
	logger.Infof("纸面平仓 %s %s %.0f @ %.2f (%s, %+.2f pts)",
		rec.Instrument, rec.Action, rec.Strike, req.exit, req.outcome, pnlPoints)

	msg := notifier.PaperCloseAlert(notifier.PaperCloseInput{
		Instrument: rec.Instrument,
		Action:     rec.Action,
		Strike:     rec.Strike,
		Expiry:     rec.Expiry,
		LotSize:    rec.LotSize,
		Entry:      rec.Entry,
		Exit:       req.exit,
		Outcome:    req.outcome,
		PnlPoints:  pnlPoints,
		PnlRupees:  pnlRupees,
		ClosedAt:   closedAt,
	})
	if err := t.sender.SendText(msg.RenderHTML()); err != nil {
		logger.Warnf("纸面平仓通知发送失败 %s: %v", rec.TradeID, err)
	}
	return rec
}

// SummarizeDay 从台账聚合某标的某交易日的信号与纸面结果。
func (t *PaperTracker) SummarizeDay(ctx context.Context, tradingDate, instrument string) (store.DaySummaryRecord, error) {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	summary := store.DaySummaryRecord{
		TradingDate: tradingDate,
		Instrument:  instrument,
		UpdatedAt:   t.now(),
	}
	if t.ledger == nil {
		return summary, nil
	}

	sigs, err := t.ledger.SignalsOn(ctx, tradingDate)
	if err != nil {
		return summary, err
	}
	seen := make(map[string]bool)
	for _, sig := range sigs {
		if !strings.EqualFold(sig.Instrument, instrument) {
			continue
		}
		summary.Signals++
		if id := sig.Scenario.ScenarioID; id != "" && !seen[id] {
			seen[id] = true
			summary.Scenarios = append(summary.Scenarios, id)
		}
	}

	trades, err := t.ledger.TradesOn(ctx, tradingDate)
	if err != nil {
		return summary, err
	}
	for _, trade := range trades {
		if trade.Instrument != instrument || trade.Status != store.TradeStatusClosed {
			continue
		}
		switch {
		case trade.PnlPoints > 0:
			summary.Wins++
		case trade.PnlPoints < 0:
			summary.Losses++
		default:
			summary.Flat++
		}
		summary.NetPoints += trade.PnlPoints
		summary.NetRupees += trade.PnlRupees
	}
	return summary, nil
}
