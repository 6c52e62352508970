package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"oipulse/internal/chain"
	"oipulse/internal/config"
	"oipulse/internal/gateway/notifier"
	"oipulse/internal/logger"
	"oipulse/internal/market"
	"oipulse/internal/pkg/circuit"
	"oipulse/internal/scheduler"
	"oipulse/internal/signal"
	"oipulse/internal/store"
	"oipulse/internal/trader"
)

// ChainFetcher 拉取某标的指定到期日的期权链快照。
type ChainFetcher interface {
	FetchChain(ctx context.Context, inst market.Instrument, expiryDate string) (chain.Snapshot, error)
}

// ChainArchive 归档每轮快照与派生指标。
type ChainArchive interface {
	Append(ctx context.Context, tradingDate string, snap chain.Snapshot, ind chain.IndicatorSet) (int64, error)
}

// SummaryStore 落库日终汇总。
type SummaryStore interface {
	UpsertDaySummary(ctx context.Context, rec store.DaySummaryRecord) error
}

// ReportBuilder 生成某标的某交易日的走势报告，返回产物路径。
type ReportBuilder interface {
	BuildDay(ctx context.Context, instrument, tradingDate string) (string, error)
}

// Engine 驱动每个标的的轮询循环：抓链、派生指标、场景匹配、风险标注、发信号。
// 交易日翻转与日终处理也在这里完成。
type Engine struct {
	Config    *config.Config
	Catalog   *market.Catalog
	Calendar  *market.Calendar
	Fetcher   ChainFetcher
	Analyzer  *chain.Analyzer
	Matcher   *signal.Matcher
	Annotator *signal.Annotator
	Emitter   *signal.Emitter
	Tracker   *trader.PaperTracker
	Archive   ChainArchive
	Summaries SummaryStore
	Reports   ReportBuilder
	Notifier  notifier.TextNotifier

	mu     sync.Mutex
	states map[string]*instrumentState
	nowFn  func() time.Time
}

type EngineParams struct {
	Config    *config.Config
	Catalog   *market.Catalog
	Calendar  *market.Calendar
	Fetcher   ChainFetcher
	Analyzer  *chain.Analyzer
	Matcher   *signal.Matcher
	Annotator *signal.Annotator
	Emitter   *signal.Emitter
	Tracker   *trader.PaperTracker
	Archive   ChainArchive
	Summaries SummaryStore
	Reports   ReportBuilder
	Notifier  notifier.TextNotifier
}

func NewEngine(p EngineParams) *Engine {
	n := p.Notifier
	if n == nil {
		n = notifier.Nop{}
	}
	return &Engine{
		Config:    p.Config,
		Catalog:   p.Catalog,
		Calendar:  p.Calendar,
		Fetcher:   p.Fetcher,
		Analyzer:  p.Analyzer,
		Matcher:   p.Matcher,
		Annotator: p.Annotator,
		Emitter:   p.Emitter,
		Tracker:   p.Tracker,
		Archive:   p.Archive,
		Summaries: p.Summaries,
		Reports:   p.Reports,
		Notifier:  n,
		states:    make(map[string]*instrumentState),
	}
}

// SetClock 固定引擎时钟，仅用于测试。
func (e *Engine) SetClock(fn func() time.Time) {
	e.nowFn = fn
}

func (e *Engine) now() time.Time {
	if e.nowFn != nil {
		return e.nowFn().In(e.Calendar.Location())
	}
	return e.Calendar.Now()
}

type instrumentState struct {
	inst      market.Instrument
	hist      *chain.History
	day       *signal.DayState
	finalized bool
	breaker   *circuit.Breaker

	lastCycleAt  time.Time
	lastError    string
	lastScenario string
	lastInd      chain.IndicatorSet
	hasInd       bool
}

// Run 为每个标的开一条对齐轮询循环，阻塞到 ctx 取消。
func (e *Engine) Run(ctx context.Context) error {
	instruments := e.resolveInstruments()
	if len(instruments) == 0 {
		logger.Warnf("Engine: 没有可轮询的标的")
		<-ctx.Done()
		return ctx.Err()
	}

	interval := e.Config.Market.ScanInterval()
	logger.Infof("Engine: 启动 %d 个标的轮询循环 interval=%s paper=%v", len(instruments), interval, e.Config.Paper.Enabled)

	if e.Tracker != nil {
		if err := e.Tracker.Restore(ctx); err != nil {
			logger.Warnf("Engine: 恢复未平仓纸面交易失败: %v", err)
		}
	}
	e.sendStartupBanner(instruments)

	group, gctx := errgroup.WithContext(ctx)
	for _, inst := range instruments {
		inst := inst
		group.Go(func() error {
			st := e.state(inst)
			sched := scheduler.NewAlignedScheduler(gctx, interval, 0)
			sched.RunImmediately = true
			sched.Start(func() {
				if !st.breaker.Allow() {
					logger.Warnf("Engine: 熔断器打开，跳过本轮 %s", inst.Name)
					return
				}
				if err := e.tick(gctx, inst); err != nil {
					logger.Errorf("Engine: 轮询失败 %s: %v", inst.Name, err)
					e.recordFailure(st, err)
					return
				}
				st.breaker.RecordSuccess()
			})
			return nil
		})
	}
	return group.Wait()
}

// tick 执行一轮完整的轮询周期。返回错误表示本轮数据不可用，整轮跳过。
// 标的参数每轮都从目录重新取，热更新的行权价间距/手数下一轮即生效。
func (e *Engine) tick(ctx context.Context, inst market.Instrument) error {
	now := e.now()
	st := e.state(inst)
	if e.Catalog != nil {
		if cur, ok := e.Catalog.Instrument(inst.Name); ok {
			inst = cur
			e.mu.Lock()
			st.inst = cur
			e.mu.Unlock()
		}
	}

	if !e.Calendar.IsOpen(now) {
		e.finalizeSession(ctx, st)
		logger.Debugf("Engine: 休市中，跳过 %s", inst.Name)
		return nil
	}

	tradingDate := e.Calendar.TradingDate(now)
	expiryDay := e.Calendar.IsExpiryDay(now, inst)
	expiryDate := e.Calendar.ExpiryDate(now, inst)
	e.rollover(st, tradingDate, expiryDay)

	snap, err := e.Fetcher.FetchChain(ctx, inst, expiryDate)
	if err != nil {
		return fmt.Errorf("期权链抓取失败: %w", err)
	}

	prev := st.hist.Prev()
	ind := e.Analyzer.Derive(prev, snap, st.hist)

	e.mu.Lock()
	st.lastCycleAt = now
	st.lastError = ""
	st.lastInd = ind
	st.hasInd = true
	e.mu.Unlock()

	if e.Archive != nil {
		if _, err := e.Archive.Append(ctx, tradingDate, snap, ind); err != nil {
			logger.Errorf("Engine: 期权链归档失败 %s: %v", inst.Name, err)
		}
	}

	if e.Tracker != nil {
		e.Tracker.Evaluate(ctx, snap)
	}

	m, ok := e.Matcher.Match(ind)
	if !ok {
		logger.Debugf("Engine: 本轮无场景命中 %s (PCR %.2f 方向 %s)", inst.Name, ind.Pcr, ind.PriceDirection)
		return nil
	}
	logger.Infof("Engine: 场景命中 %s %s 置信度 %d", inst.Name, m.ScenarioID, m.Confidence)
	e.mu.Lock()
	st.lastScenario = m.ScenarioID
	e.mu.Unlock()

	premium := snap.ATMPremium(m.Bias == signal.BiasBullish)
	rp := e.Annotator.Annotate(m, premium, expiryDay)
	if rp.Entry <= 0 {
		logger.Warnf("Engine: 平值权利金缺失，放弃 %s %s", inst.Name, m.ScenarioID)
		return nil
	}

	tc := signal.TradeContext{
		TradingDate: tradingDate,
		Instrument:  inst.Name,
		Strike:      snap.ATMStrike,
		Expiry:      expiryDate,
		LotSize:     inst.LotSize,
	}
	sig, emitted, err := e.Emitter.Emit(ctx, st.day, m, rp, tc)
	if err != nil {
		// 落库失败已由 Emitter 记录，信号本身有效，本轮继续。
		logger.Warnf("Engine: 信号持久化异常 %s: %v", inst.Name, err)
	}
	if emitted && e.Tracker != nil && e.Config.Paper.Enabled {
		if _, err := e.Tracker.Open(ctx, sig); err != nil {
			logger.Errorf("Engine: 纸面开仓失败 %s: %v", inst.Name, err)
		}
	}
	return nil
}

// rollover 在交易日翻转时重置日状态与指标窗口。
func (e *Engine) rollover(st *instrumentState, tradingDate string, expiryDay bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st.day == nil {
		st.day = signal.NewDayState(tradingDate, expiryDay)
		logger.Infof("Engine: 开始交易日 %s %s (到期日=%v)", st.inst.Name, tradingDate, expiryDay)
		return
	}
	if st.day.TradingDate == tradingDate {
		return
	}
	logger.Infof("Engine: 交易日翻转 %s %s -> %s", st.inst.Name, st.day.TradingDate, tradingDate)
	st.day.Reset(tradingDate, expiryDay)
	st.hist = chain.NewHistory(e.Config.Indicators.VWAPWindow, e.Config.Indicators.BaselineWindow)
	st.finalized = false
}

// finalizeSession 在收盘后的第一轮执行一次日终处理：
// 强平纸面持仓、聚合并落库日汇总、推送汇总消息、生成日报。
func (e *Engine) finalizeSession(ctx context.Context, st *instrumentState) {
	e.mu.Lock()
	if st.day == nil || st.finalized {
		e.mu.Unlock()
		return
	}
	st.finalized = true
	tradingDate := st.day.TradingDate
	e.mu.Unlock()

	logger.Infof("Engine: 交易时段结束，日终处理 %s %s", st.inst.Name, tradingDate)

	if e.Tracker != nil {
		e.Tracker.CloseSession(ctx, st.inst.Name)
		summary, err := e.Tracker.SummarizeDay(ctx, tradingDate, st.inst.Name)
		if err != nil {
			logger.Errorf("Engine: 日汇总聚合失败 %s: %v", st.inst.Name, err)
		} else {
			if e.Summaries != nil {
				if err := e.Summaries.UpsertDaySummary(ctx, summary); err != nil {
					logger.Errorf("Engine: 日汇总落库失败 %s: %v", st.inst.Name, err)
				}
			}
			msg := notifier.DailySummary(notifier.DailySummaryInput{
				Instrument:  st.inst.Name,
				TradingDate: tradingDate,
				Signals:     summary.Signals,
				Wins:        summary.Wins,
				Losses:      summary.Losses,
				Flat:        summary.Flat,
				NetPoints:   summary.NetPoints,
				NetRupees:   summary.NetRupees,
				Scenarios:   summary.Scenarios,
				At:          e.now(),
			})
			if err := e.Notifier.SendText(msg.RenderHTML()); err != nil {
				logger.Warnf("Engine: 日汇总通知发送失败 %s: %v", st.inst.Name, err)
			}
		}
	}

	if e.Reports != nil {
		path, err := e.Reports.BuildDay(ctx, st.inst.Name, tradingDate)
		if err != nil {
			logger.Errorf("Engine: 日报生成失败 %s: %v", st.inst.Name, err)
		} else if path != "" {
			logger.Infof("Engine: 日报已生成 %s -> %s", st.inst.Name, path)
		}
	}
}

func (e *Engine) recordFailure(st *instrumentState, err error) {
	e.mu.Lock()
	st.lastError = err.Error()
	e.mu.Unlock()

	before := st.breaker.State()
	st.breaker.RecordFailure()
	if before != circuit.StateOpen && st.breaker.State() == circuit.StateOpen {
		msg := notifier.ErrorNote("engine",
			fmt.Sprintf("%s polling suspended after repeated failures: %v", st.inst.Name, err), e.now())
		if sendErr := e.Notifier.SendText(msg.RenderHTML()); sendErr != nil {
			logger.Warnf("Engine: 异常通知发送失败: %v", sendErr)
		}
	}
}

func (e *Engine) state(inst market.Instrument) *instrumentState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.states == nil {
		e.states = make(map[string]*instrumentState)
	}
	st, ok := e.states[inst.Name]
	if !ok {
		st = &instrumentState{
			inst:    inst,
			hist:    chain.NewHistory(e.Config.Indicators.VWAPWindow, e.Config.Indicators.BaselineWindow),
			breaker: circuit.NewBreaker("Engine."+inst.Name, 5, 2*time.Minute),
		}
		e.states[inst.Name] = st
	}
	return st
}

func (e *Engine) resolveInstruments() []market.Instrument {
	if e == nil || e.Catalog == nil || e.Config == nil {
		return nil
	}
	names := e.Config.Market.Instruments
	if len(names) == 0 {
		names = e.Catalog.Names()
	}
	seen := make(map[string]bool)
	out := make([]market.Instrument, 0, len(names))
	for _, name := range names {
		n := strings.ToUpper(strings.TrimSpace(name))
		if n == "" || seen[n] {
			continue
		}
		inst, ok := e.Catalog.Instrument(n)
		if !ok {
			logger.Warnf("Engine: 标的 %s 不在标的目录中，跳过", n)
			continue
		}
		seen[n] = true
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (e *Engine) sendStartupBanner(instruments []market.Instrument) {
	names := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		names = append(names, inst.Name)
	}
	msg := notifier.StartupBanner(notifier.StartupInfo{
		Instruments:  names,
		SessionOpen:  e.Config.Market.OpenTime,
		SessionClose: e.Config.Market.CloseTime,
		Interval:     e.Config.Market.ScanInterval(),
		MaxPerDay:    e.Config.Governor.MaxSignalsPerDay,
		PaperTrading: e.Config.Paper.Enabled,
		At:           e.now(),
	})
	if err := e.Notifier.SendText(msg.RenderHTML()); err != nil {
		logger.Warnf("Engine: 启动通知发送失败: %v", err)
	}
}
