package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oipulse/internal/chain"
	"oipulse/internal/config"
	"oipulse/internal/gateway/notifier"
	"oipulse/internal/market"
	"oipulse/internal/signal"
	"oipulse/internal/store"
	"oipulse/internal/trader"
)

type scriptFetcher struct {
	mu         sync.Mutex
	snaps      []chain.Snapshot
	errs       []error
	calls      int
	lastExpiry string
}

func (f *scriptFetcher) FetchChain(_ context.Context, _ market.Instrument, expiryDate string) (chain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.lastExpiry = expiryDate
	if i < len(f.errs) && f.errs[i] != nil {
		return chain.Snapshot{}, f.errs[i]
	}
	if i >= len(f.snaps) {
		return chain.Snapshot{}, errors.New("fetch script exhausted")
	}
	return f.snaps[i], nil
}

// memLedger 同时实现 signal.Ledger 与 trader.TradeLedger。
type memLedger struct {
	mu      sync.Mutex
	signals []signal.Signal
	trades  map[string]*store.PaperTradeRecord
	order   []string
}

func (m *memLedger) AppendSignal(_ context.Context, sig signal.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, sig)
	return nil
}

func (m *memLedger) SignalsOn(_ context.Context, tradingDate string) ([]signal.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []signal.Signal
	for _, sig := range m.signals {
		if sig.TradingDate == tradingDate {
			out = append(out, sig)
		}
	}
	return out, nil
}

func (m *memLedger) OpenPaperTrade(_ context.Context, rec store.PaperTradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trades == nil {
		m.trades = make(map[string]*store.PaperTradeRecord)
	}
	cp := rec
	m.trades[rec.TradeID] = &cp
	m.order = append(m.order, rec.TradeID)
	return nil
}

func (m *memLedger) ClosePaperTrade(_ context.Context, tradeID string, exit float64, outcome string, pnlPoints, pnlRupees float64, closedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.trades[tradeID]
	if !ok || rec.Status != store.TradeStatusOpen {
		return errors.New("trade not open")
	}
	rec.Exit = exit
	rec.Outcome = outcome
	rec.PnlPoints = pnlPoints
	rec.PnlRupees = pnlRupees
	rec.Status = store.TradeStatusClosed
	rec.ClosedAt = closedAt
	return nil
}

func (m *memLedger) ListOpenTrades(_ context.Context, instrument string) ([]store.PaperTradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.PaperTradeRecord
	for _, id := range m.order {
		rec := m.trades[id]
		if rec.Status != store.TradeStatusOpen {
			continue
		}
		if instrument != "" && rec.Instrument != instrument {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (m *memLedger) TradesOn(_ context.Context, tradingDate string) ([]store.PaperTradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.PaperTradeRecord
	for _, id := range m.order {
		rec := m.trades[id]
		if rec.TradingDate == tradingDate {
			out = append(out, *rec)
		}
	}
	return out, nil
}

type captureSender struct {
	mu   sync.Mutex
	sent []string
}

func (c *captureSender) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

func (c *captureSender) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *captureSender) contains(sub string) bool {
	for _, s := range c.all() {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

type archiveEntry struct {
	tradingDate string
	snap        chain.Snapshot
	ind         chain.IndicatorSet
}

type captureArchive struct {
	mu      sync.Mutex
	entries []archiveEntry
}

func (c *captureArchive) Append(_ context.Context, tradingDate string, snap chain.Snapshot, ind chain.IndicatorSet) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, archiveEntry{tradingDate, snap, ind})
	return int64(len(c.entries)), nil
}

type captureSummaries struct {
	mu      sync.Mutex
	upserts []store.DaySummaryRecord
}

func (c *captureSummaries) UpsertDaySummary(_ context.Context, rec store.DaySummaryRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upserts = append(c.upserts, rec)
	return nil
}

var istZone = time.FixedZone("IST", int(5.5*3600))

type engineHarness struct {
	eng       *Engine
	fetcher   *scriptFetcher
	ledger    *memLedger
	sender    *captureSender
	archive   *captureArchive
	summaries *captureSummaries
	tracker   *trader.PaperTracker
	inst      market.Instrument
	clock     time.Time
}

func newHarness(t *testing.T, start time.Time, snaps []chain.Snapshot, errs []error) *engineHarness {
	t.Helper()
	h := &engineHarness{
		clock:     start,
		fetcher:   &scriptFetcher{snaps: snaps, errs: errs},
		ledger:    &memLedger{},
		sender:    &captureSender{},
		archive:   &captureArchive{},
		summaries: &captureSummaries{},
	}
	nowFn := func() time.Time { return h.clock }

	cfg := &config.Config{}
	cfg.Market.OpenTime = "09:15"
	cfg.Market.CloseTime = "15:30"
	cfg.Market.ScanIntervalSeconds = 60
	cfg.Market.Instruments = []string{"NIFTY"}
	cfg.Indicators = config.IndicatorConfig{
		VWAPWindow:       30,
		VWAPMinSamples:   1,
		BaselineWindow:   2,
		DirectionBandPct: 0.1,
		MinOIDelta:       1000,
		PCRSupport:       2.5,
		PCRResistance:    0.5,
		VWAPBufferPct:    0.1,
		VWAPPenalty:      15,
	}
	cfg.Governor = config.GovernorConfig{MaxSignalsPerDay: 3, MinConfidence: 70, ExpiryMinConfidence: 85, CooldownSeconds: 180}
	cfg.Paper.Enabled = true

	h.inst = market.Instrument{
		Name:             "NIFTY",
		InstrumentKey:    "NSE_INDEX|Nifty 50",
		StrikeGap:        50,
		LotSize:          50,
		ExpiryWeekday:    2,
		StrikesAroundATM: 2,
	}

	cal := market.NewCalendar(istZone, 9*60+15, 15*60+30)
	gov := signal.NewGovernor(cfg.Governor.MaxSignalsPerDay, cfg.Governor.MinConfidence, cfg.Governor.ExpiryMinConfidence, cfg.Governor.Cooldown())
	render := func(sig signal.Signal) string { return notifier.SignalAlert(sig).RenderHTML() }
	emitter := signal.NewEmitter(gov, h.ledger, h.sender, render, signal.WithEmitterClock(nowFn))
	h.tracker = trader.NewPaperTracker(h.ledger, h.sender, trader.WithTrackerClock(nowFn))

	h.eng = NewEngine(EngineParams{
		Config:    cfg,
		Calendar:  cal,
		Fetcher:   h.fetcher,
		Analyzer:  chain.NewAnalyzer(cfg.Indicators.VWAPMinSamples, cfg.Indicators.DirectionBandPct),
		Matcher:   signal.NewMatcher(signal.Thresholds{MinOiDelta: cfg.Indicators.MinOIDelta, PcrSupport: cfg.Indicators.PCRSupport, PcrResistance: cfg.Indicators.PCRResistance}, cfg.Indicators.VWAPBufferPct, cfg.Indicators.VWAPPenalty),
		Annotator: signal.NewAnnotator(30, 60, 20, 40),
		Emitter:   emitter,
		Tracker:   h.tracker,
		Archive:   h.archive,
		Summaries: h.summaries,
		Notifier:  h.sender,
	})
	h.eng.SetClock(nowFn)
	return h
}

func (h *engineHarness) tick(t *testing.T) {
	t.Helper()
	require.NoError(t, h.eng.tick(context.Background(), h.inst))
}

func (h *engineHarness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}

func chainSnap(at time.Time, spot, atm, callOI, putOI, callLTP, putLTP float64) chain.Snapshot {
	return chain.Snapshot{
		Instrument: "NIFTY",
		Expiry:     "2025-08-26",
		CapturedAt: at,
		Spot:       spot,
		ATMStrike:  atm,
		Strikes: []chain.StrikeQuote{{
			Strike:     atm,
			CallOI:     callOI,
			PutOI:      putOI,
			CallVolume: 10000,
			PutVolume:  10000,
			CallLTP:    callLTP,
			PutLTP:     putLTP,
		}},
	}
}

func TestEngineEmitsCEBuyOnPutUnwinding(t *testing.T) {
	start := time.Date(2025, 8, 25, 10, 0, 0, 0, istZone)
	snaps := []chain.Snapshot{
		chainSnap(start, 24000, 24000, 480000, 480000, 140, 140),
		chainSnap(start.Add(time.Minute), 24060, 24050, 480000, 300000, 150, 90),
	}
	h := newHarness(t, start, snaps, nil)

	h.tick(t)
	assert.Empty(t, h.ledger.signals, "first cycle has no deltas to act on")
	assert.Len(t, h.archive.entries, 1)

	h.advance(time.Minute)
	h.tick(t)

	require.Len(t, h.ledger.signals, 1)
	sig := h.ledger.signals[0]
	assert.Equal(t, signal.ActionCEBuy, sig.Action)
	assert.Equal(t, "NIFTY", sig.Instrument)
	assert.Equal(t, "2025-08-25", sig.TradingDate)
	assert.Equal(t, "2025-08-26", sig.Expiry)
	assert.InDelta(t, 24050, sig.Strike, 1e-9)
	assert.Equal(t, 50, sig.LotSize)
	assert.Equal(t, "put_unwinding_bull", sig.Scenario.ScenarioID)
	assert.Equal(t, 90, sig.Scenario.Confidence)
	assert.InDelta(t, 150, sig.Risk.Entry, 1e-9)
	assert.InDelta(t, 105, sig.Risk.StopLoss, 1e-9, "stop sits 30 percent under entry")
	assert.InDelta(t, 240, sig.Risk.Target, 1e-9)
	assert.InDelta(t, 2, sig.Risk.RiskReward, 1e-9)

	assert.Equal(t, "2025-08-26", h.fetcher.lastExpiry, "weekly expiry lands on Tuesday")
	assert.True(t, h.sender.contains("24050 CE BUY"), "alert goes out over telegram")
	assert.Equal(t, 1, h.tracker.OpenCount("NIFTY"), "paper trade opened alongside the signal")

	archived := h.archive.entries[1]
	assert.Equal(t, "2025-08-25", archived.tradingDate)
	assert.InDelta(t, -180000, archived.ind.PutOiDelta, 1e-9)
	assert.Equal(t, chain.DirectionUp, archived.ind.PriceDirection)

	status := h.eng.Status()
	require.Len(t, status.Instruments, 1)
	st := status.Instruments[0]
	assert.True(t, status.MarketOpen)
	assert.Equal(t, 1, st.SignalsEmitted)
	assert.Equal(t, string(signal.GateOpen), st.Gate)
	assert.Equal(t, "put_unwinding_bull", st.LastScenario)
	assert.InDelta(t, 24060, st.Spot, 1e-9)
	assert.Equal(t, 1, st.OpenTrades)

	ind, ok := h.eng.Indicators("nifty")
	require.True(t, ok)
	assert.InDelta(t, -180000, ind.PutOiDelta, 1e-9)
}

func TestEngineSupportZoneSignal(t *testing.T) {
	start := time.Date(2025, 8, 25, 10, 0, 0, 0, istZone)
	snaps := []chain.Snapshot{
		chainSnap(start, 24000, 24000, 250000, 750000, 150, 150),
	}
	h := newHarness(t, start, snaps, nil)

	h.tick(t)

	require.Len(t, h.ledger.signals, 1, "zone scenarios need no deltas, PCR alone carries them")
	sig := h.ledger.signals[0]
	assert.Equal(t, "support_zone", sig.Scenario.ScenarioID)
	assert.Equal(t, signal.ActionCEBuy, sig.Action)
	assert.Equal(t, 80, sig.Scenario.Confidence)
	assert.InDelta(t, 3.0, sig.Scenario.Indicators.Pcr, 1e-9)
	assert.InDelta(t, 105, sig.Risk.StopLoss, 1e-9)
}

func TestEngineDailyLimitLatchesGate(t *testing.T) {
	start := time.Date(2025, 8, 25, 10, 0, 0, 0, istZone)
	snaps := []chain.Snapshot{
		chainSnap(start, 24000, 24000, 480000, 600000, 140, 140),
		chainSnap(start.Add(4*time.Minute), 24060, 24050, 480000, 450000, 150, 90),
		chainSnap(start.Add(8*time.Minute), 24120, 24100, 480000, 300000, 150, 80),
		chainSnap(start.Add(12*time.Minute), 24180, 24200, 480000, 150000, 150, 70),
		chainSnap(start.Add(16*time.Minute), 24240, 24250, 480000, 50000, 150, 60),
	}
	h := newHarness(t, start, snaps, nil)

	for i := 0; i < len(snaps); i++ {
		h.tick(t)
		h.advance(4 * time.Minute)
	}

	assert.Len(t, h.ledger.signals, 3, "fourth qualifying cycle is suppressed")
	status := h.eng.Status()
	require.Len(t, status.Instruments, 1)
	assert.Equal(t, string(signal.GateLimitReached), status.Instruments[0].Gate)
	assert.Equal(t, 3, status.Instruments[0].SignalsEmitted)
	assert.Equal(t, 5, h.fetcher.calls, "polling continues even after the gate closes")
}

func TestEnginePaperTradeTargetThenSessionClose(t *testing.T) {
	start := time.Date(2025, 8, 25, 10, 0, 0, 0, istZone)
	snaps := []chain.Snapshot{
		chainSnap(start, 24000, 24000, 480000, 480000, 140, 140),
		chainSnap(start.Add(time.Minute), 24060, 24050, 480000, 300000, 150, 90),
		chainSnap(start.Add(2*time.Minute), 24060, 24050, 480000, 300000, 245, 90),
	}
	h := newHarness(t, start, snaps, nil)

	h.tick(t)
	h.advance(time.Minute)
	h.tick(t)
	require.Len(t, h.ledger.signals, 1)
	require.Equal(t, 1, h.tracker.OpenCount("NIFTY"))

	h.advance(time.Minute)
	h.tick(t)
	assert.Zero(t, h.tracker.OpenCount("NIFTY"), "premium through target closes the paper trade")

	trades, err := h.ledger.TradesOn(context.Background(), "2025-08-25")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, store.TradeStatusClosed, trades[0].Status)
	assert.Equal(t, store.OutcomeTarget, trades[0].Outcome)
	assert.InDelta(t, 95, trades[0].PnlPoints, 1e-9)
	assert.InDelta(t, 4750, trades[0].PnlRupees, 1e-9)

	// Past the close the engine stops fetching and finalizes the day once.
	h.clock = time.Date(2025, 8, 25, 15, 45, 0, 0, istZone)
	h.tick(t)
	assert.Equal(t, 3, h.fetcher.calls, "no fetches after market close")

	require.Len(t, h.summaries.upserts, 1)
	summary := h.summaries.upserts[0]
	assert.Equal(t, "2025-08-25", summary.TradingDate)
	assert.Equal(t, "NIFTY", summary.Instrument)
	assert.Equal(t, 1, summary.Signals)
	assert.Equal(t, 1, summary.Wins)
	assert.InDelta(t, 95, summary.NetPoints, 1e-9)
	assert.InDelta(t, 4750, summary.NetRupees, 1e-9)
	assert.True(t, h.sender.contains("NIFTY daily summary 2025-08-25"))

	h.advance(time.Minute)
	h.tick(t)
	assert.Len(t, h.summaries.upserts, 1, "finalization runs once per trading day")
}

func TestEngineFetchFailureSkipsCycle(t *testing.T) {
	start := time.Date(2025, 8, 25, 10, 0, 0, 0, istZone)
	snaps := []chain.Snapshot{
		{},
		chainSnap(start.Add(time.Minute), 24000, 24000, 480000, 480000, 140, 140),
	}
	h := newHarness(t, start, snaps, []error{errors.New("upstream 502")})

	err := h.eng.tick(context.Background(), h.inst)
	require.Error(t, err)
	assert.Empty(t, h.ledger.signals)
	assert.Empty(t, h.archive.entries, "failed cycle archives nothing")

	h.advance(time.Minute)
	h.tick(t)
	assert.Len(t, h.archive.entries, 1, "next cycle recovers")
}

func TestEngineExpiryDayRiskAndFloor(t *testing.T) {
	// 2025-08-26 is a Tuesday, the weekly expiry for this instrument.
	start := time.Date(2025, 8, 26, 10, 0, 0, 0, istZone)

	t.Run("tighter stops on expiry day", func(t *testing.T) {
		snaps := []chain.Snapshot{
			chainSnap(start, 24000, 24000, 480000, 480000, 140, 140),
			chainSnap(start.Add(time.Minute), 24060, 24050, 480000, 300000, 150, 90),
		}
		h := newHarness(t, start, snaps, nil)
		h.tick(t)
		h.advance(time.Minute)
		h.tick(t)

		require.Len(t, h.ledger.signals, 1)
		sig := h.ledger.signals[0]
		assert.InDelta(t, 120, sig.Risk.StopLoss, 1e-9, "expiry day stop is 20 percent")
		assert.InDelta(t, 210, sig.Risk.Target, 1e-9)
		assert.Equal(t, "2025-08-26", sig.Expiry)

		status := h.eng.Status()
		assert.True(t, status.Instruments[0].ExpiryDay)
	})

	t.Run("confidence floor rises on expiry day", func(t *testing.T) {
		snaps := []chain.Snapshot{
			chainSnap(start, 24000, 24000, 250000, 750000, 150, 150),
		}
		h := newHarness(t, start, snaps, nil)
		h.tick(t)

		assert.Empty(t, h.ledger.signals, "support zone at 80 misses the 85 expiry floor")
		status := h.eng.Status()
		assert.Equal(t, string(signal.GateOpen), status.Instruments[0].Gate)
		assert.Zero(t, status.Instruments[0].SignalsEmitted)
	})
}

func TestEngineDayRolloverResetsState(t *testing.T) {
	start := time.Date(2025, 8, 25, 15, 0, 0, 0, istZone)
	nextDay := time.Date(2025, 8, 26, 10, 0, 0, 0, istZone)
	snaps := []chain.Snapshot{
		chainSnap(start, 24000, 24000, 250000, 750000, 150, 150),
		chainSnap(nextDay, 24000, 24000, 480000, 480000, 140, 140),
	}
	h := newHarness(t, start, snaps, nil)

	h.tick(t)
	require.Len(t, h.ledger.signals, 1)

	h.clock = nextDay
	h.tick(t)

	status := h.eng.Status()
	require.Len(t, status.Instruments, 1)
	st := status.Instruments[0]
	assert.Equal(t, "2025-08-26", st.TradingDate)
	assert.Zero(t, st.SignalsEmitted, "day rollover clears the quota")
	assert.Equal(t, string(signal.GateOpen), st.Gate)
	assert.True(t, st.ExpiryDay)
}

// 未接目录时 tick 直接使用启动时解析的标的，不应崩溃(newHarness 即此形态)。
// 接上目录后，每轮轮询要以目录里的最新条目为准，热更新下一轮生效。
func TestEngineTickRefreshesInstrumentFromCatalog(t *testing.T) {
	catalogPath := filepath.Join(t.TempDir(), "instruments.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(`
instruments:
  nifty:
    instrument_key: "NSE_INDEX|Nifty 50"
    strike_gap: 50
    lot_size: 75
    expiry_weekday: 2
`), 0o644))
	cat, err := market.NewCatalog(catalogPath)
	require.NoError(t, err)

	start := time.Date(2025, 8, 25, 10, 0, 0, 0, istZone)
	snaps := []chain.Snapshot{
		chainSnap(start, 24000, 24000, 480000, 480000, 140, 140),
		chainSnap(start.Add(time.Minute), 24060, 24050, 480000, 300000, 150, 90),
	}
	h := newHarness(t, start, snaps, nil)
	h.eng.Catalog = cat

	h.tick(t)
	h.advance(time.Minute)
	h.tick(t)

	require.Len(t, h.ledger.signals, 1)
	assert.Equal(t, 75, h.ledger.signals[0].LotSize, "手数取目录当前值，而非启动时的副本")

	status := h.eng.Status()
	require.Len(t, status.Instruments, 1)
	assert.Equal(t, "NIFTY", status.Instruments[0].Instrument)
}
