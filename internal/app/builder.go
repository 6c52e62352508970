package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"oipulse/internal/chain"
	oicfg "oipulse/internal/config"
	"oipulse/internal/engine"
	"oipulse/internal/gateway/notifier"
	"oipulse/internal/gateway/upstox"
	"oipulse/internal/logger"
	"oipulse/internal/market"
	"oipulse/internal/report"
	"oipulse/internal/signal"
	"oipulse/internal/store/chainlog"
	"oipulse/internal/store/gormstore"
	"oipulse/internal/trader"
	statushttp "oipulse/internal/transport/http/status"
)

// AppBuilder 按配置装配应用依赖。各构造函数可注入，便于替换与测试。
type AppBuilder struct {
	cfg *oicfg.Config

	catalogFn    func(string) (*market.Catalog, error)
	fetcherFn    func(*oicfg.Config) (engine.ChainFetcher, error)
	ledgerFn     func(string) (*gormstore.Ledger, error)
	chainLogFn   func(string) (*chainlog.ChainLogStore, error)
	statusHTTPFn func(oicfg.ServerConfig, statushttp.EngineSource, statushttp.LedgerSource) (*statushttp.Server, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *oicfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:          cfg,
		catalogFn:    market.NewCatalog,
		fetcherFn:    buildChainFetcher,
		ledgerFn:     gormstore.NewLedger,
		chainLogFn:   chainlog.NewChainLogStore,
		statusHTTPFn: buildStatusServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	loc, err := cfg.Market.Location()
	if err != nil {
		return nil, fmt.Errorf("解析市场时区失败: %w", err)
	}
	logger.SetTimezone(loc)

	openMin, err := oicfg.ParseClock(cfg.Market.OpenTime)
	if err != nil {
		return nil, fmt.Errorf("解析开盘时间失败: %w", err)
	}
	closeMin, err := oicfg.ParseClock(cfg.Market.CloseTime)
	if err != nil {
		return nil, fmt.Errorf("解析收盘时间失败: %w", err)
	}
	calendar := market.NewCalendar(loc, openMin, closeMin)

	catalog, err := b.catalogFn(cfg.Market.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("加载标的目录失败: %w", err)
	}
	catalog.Subscribe(func(snap market.CatalogSnapshot) {
		logger.Infof("标的目录已热更新: version=%d instruments=%d", snap.Version, len(snap.Instruments))
	})
	instruments, err := resolveConfiguredInstruments(catalog, cfg.Market.Instruments)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		names = append(names, inst.Name)
	}
	logger.Infof("✓ 已加载 %d 个标的: %v", len(instruments), names)

	fetcher, err := b.fetcherFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化期权链数据源失败: %w", err)
	}

	ledger, err := b.ledgerFn(cfg.Store.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("初始化信号台账失败: %w", err)
	}
	archive, err := b.chainLogFn(cfg.Store.ArchivePath)
	if err != nil {
		closeQuietly(ledger)
		return nil, fmt.Errorf("初始化期权链归档失败: %w", err)
	}

	tgClient := newTelegram(cfg.Notify)
	var textNotifier notifier.TextNotifier
	if tgClient != nil {
		textNotifier = tgClient
		logger.Infof("✓ Telegram 通知已启用")
	}

	analyzer := chain.NewAnalyzer(cfg.Indicators.VWAPMinSamples, cfg.Indicators.DirectionBandPct)
	matcher := signal.NewMatcher(signal.Thresholds{
		MinOiDelta:    cfg.Indicators.MinOIDelta,
		PcrSupport:    cfg.Indicators.PCRSupport,
		PcrResistance: cfg.Indicators.PCRResistance,
	}, cfg.Indicators.VWAPBufferPct, cfg.Indicators.VWAPPenalty)
	annotator := signal.NewAnnotator(cfg.Risk.StopLossPct, cfg.Risk.TargetPct,
		cfg.Risk.ExpiryStopLossPct, cfg.Risk.ExpiryTargetPct)
	governor := signal.NewGovernor(cfg.Governor.MaxSignalsPerDay, cfg.Governor.MinConfidence,
		cfg.Governor.ExpiryMinConfidence, cfg.Governor.Cooldown())
	emitter := signal.NewEmitter(governor, ledger, textNotifier, renderSignalAlert)
	tracker := trader.NewPaperTracker(ledger, textNotifier)
	reports := report.NewBuilder(archive, cfg.Report.Dir, cfg.Report.PNG, report.WithLocation(loc))

	eng := engine.NewEngine(engine.EngineParams{
		Config:    cfg,
		Catalog:   catalog,
		Calendar:  calendar,
		Fetcher:   fetcher,
		Analyzer:  analyzer,
		Matcher:   matcher,
		Annotator: annotator,
		Emitter:   emitter,
		Tracker:   tracker,
		Archive:   archive,
		Summaries: ledger,
		Reports:   reports,
		Notifier:  textNotifier,
	})

	var statusServer *statushttp.Server
	if cfg.Server.Enabled() {
		statusServer, err = b.statusHTTPFn(cfg.Server, eng, ledger)
		if err != nil {
			closeQuietly(ledger)
			closeQuietly(archive)
			return nil, fmt.Errorf("初始化状态接口失败: %w", err)
		}
	}

	return &App{
		cfg:        cfg,
		engine:     eng,
		statusHTTP: statusServer,
		closers:    []func() error{ledger.Close, archive.Close},
		Summary: &StartupSummary{
			Session: SessionSummary{
				Timezone: cfg.Market.Timezone,
				Open:     cfg.Market.OpenTime,
				Close:    cfg.Market.CloseTime,
				Interval: cfg.Market.ScanInterval(),
			},
			Instruments: instruments,
			Signals: SignalSummary{
				MaxPerDay:           cfg.Governor.MaxSignalsPerDay,
				MinConfidence:       cfg.Governor.MinConfidence,
				ExpiryMinConfidence: cfg.Governor.ExpiryMinConfidence,
				Cooldown:            cfg.Governor.Cooldown(),
			},
			Storage: StorageSummary{
				LedgerPath:  cfg.Store.LedgerPath,
				ArchivePath: cfg.Store.ArchivePath,
				ReportDir:   cfg.Report.Dir,
				ReportPNG:   cfg.Report.PNG,
			},
			Telegram: tgClient != nil,
			Paper:    cfg.Paper.Enabled,
			HTTPAddr: cfg.Server.Addr,
		},
	}, nil
}

// resolveConfiguredInstruments 校验配置里的标的都在目录中，缺失即启动失败。
func resolveConfiguredInstruments(catalog *market.Catalog, configured []string) ([]market.Instrument, error) {
	seen := make(map[string]bool, len(configured))
	out := make([]market.Instrument, 0, len(configured))
	var missing []string
	for _, name := range configured {
		n := strings.ToUpper(strings.TrimSpace(name))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		inst, ok := catalog.Instrument(n)
		if !ok {
			missing = append(missing, n)
			continue
		}
		out = append(out, inst)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("标的 %s 不在标的目录中，请检查 market.instruments 与目录文件", strings.Join(missing, ", "))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("market.instruments 没有可用标的")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func buildChainFetcher(cfg *oicfg.Config) (engine.ChainFetcher, error) {
	return upstox.NewClient(cfg.Upstox)
}

func buildStatusServer(cfg oicfg.ServerConfig, eng statushttp.EngineSource, ledger statushttp.LedgerSource) (*statushttp.Server, error) {
	server, err := statushttp.NewServer(statushttp.ServerConfig{
		Addr:   cfg.Addr,
		Engine: eng,
		Ledger: ledger,
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ 状态接口监听 %s", server.Addr())
	return server, nil
}

func newTelegram(cfg oicfg.NotifyConfig) *notifier.Telegram {
	if !cfg.Telegram.Enabled {
		return nil
	}
	return notifier.NewTelegram(cfg.Telegram.ResolveToken(), cfg.Telegram.ChatID)
}

func renderSignalAlert(sig signal.Signal) string {
	return notifier.SignalAlert(sig).RenderHTML()
}

func closeQuietly(c interface{ Close() error }) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warnf("关闭存储失败: %v", err)
	}
}

func WithCatalogLoader(fn func(string) (*market.Catalog, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.catalogFn = fn
		}
	}
}

func WithChainFetcher(fn func(*oicfg.Config) (engine.ChainFetcher, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.fetcherFn = fn
		}
	}
}

func WithLedgerStore(fn func(string) (*gormstore.Ledger, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.ledgerFn = fn
		}
	}
}

func WithChainLogStore(fn func(string) (*chainlog.ChainLogStore, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.chainLogFn = fn
		}
	}
}

func WithStatusServer(fn func(oicfg.ServerConfig, statushttp.EngineSource, statushttp.LedgerSource) (*statushttp.Server, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.statusHTTPFn = fn
		}
	}
}
