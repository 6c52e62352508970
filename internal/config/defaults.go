package config

import "strings"

// 默认值常量
const (
	defaultAppEnv       = "dev"
	defaultAppLogLevel  = "info"
	defaultAppLogPath   = "/data/logs/oipulse-live.log"
	defaultAppDataDir   = "/data"
	defaultServerAddr   = ":9990"
	defaultLedgerPath   = "/data/db/ledger.db"
	defaultArchivePath  = "/data/db/chains.db"
	defaultReportDir    = "/data/reports"
	defaultCatalogPath  = "configs/instruments.yaml"
	defaultInstrument   = "NIFTY"
	defaultScanSeconds  = 60
	defaultMarketOpen   = "09:15"
	defaultMarketClose  = "15:30"
	defaultUpstoxBase   = "https://api.upstox.com"
	defaultUpstoxWait   = 10
	defaultUpstoxRetry  = 3
	defaultVWAPWindow   = 30
	defaultVWAPSamples  = 3
	defaultBaselineWin  = 20
	defaultBandPct      = 0.1
	defaultPCRSupport   = 2.5
	defaultPCRResist    = 0.5
	defaultVWAPBuffer   = 0.1
	defaultVWAPPenalty  = 15
	defaultStopLossPct  = 30
	defaultTargetPct    = 60
	defaultExpiryStop   = 20
	defaultExpiryTarget = 40
	defaultDayLimit     = 3
	defaultMinConf      = 70
	defaultExpiryConf   = 85
	defaultCooldownSecs = 180

	defaultMarketTimezone = "Asia/Kolkata"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Upstox.applyDefaults(keys)
	c.Indicators.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Governor.applyDefaults(keys)
	c.Paper.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Report.applyDefaults(keys)
	c.Server.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.data_dir", &a.DataDir, defaultAppDataDir),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.timezone", &m.Timezone, defaultMarketTimezone),
		stringFieldDefault("market.catalog_path", &m.CatalogPath, defaultCatalogPath),
		stringFieldDefault("market.open_time", &m.OpenTime, defaultMarketOpen),
		stringFieldDefault("market.close_time", &m.CloseTime, defaultMarketClose),
		fieldDefault{
			key:   "market.scan_interval_seconds",
			need:  func() bool { return m.ScanIntervalSeconds <= 0 },
			apply: func() { m.ScanIntervalSeconds = defaultScanSeconds },
		},
	)
	m.Instruments = normalizeInstrumentList(m.Instruments)
	if len(m.Instruments) == 0 {
		m.Instruments = []string{defaultInstrument}
	}
}

func (u *UpstoxConfig) applyDefaults(keys keySet) {
	if u == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("upstox.base_url", &u.BaseURL, defaultUpstoxBase),
		fieldDefault{
			key:   "upstox.timeout_seconds",
			need:  func() bool { return u.TimeoutSeconds <= 0 },
			apply: func() { u.TimeoutSeconds = defaultUpstoxWait },
		},
		fieldDefault{
			key:   "upstox.max_retries",
			need:  func() bool { return u.MaxRetries <= 0 },
			apply: func() { u.MaxRetries = defaultUpstoxRetry },
		},
	)
}

func (i *IndicatorConfig) applyDefaults(keys keySet) {
	if i == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "indicators.vwap_window",
			need:  func() bool { return i.VWAPWindow <= 0 },
			apply: func() { i.VWAPWindow = defaultVWAPWindow },
		},
		fieldDefault{
			key:   "indicators.vwap_min_samples",
			need:  func() bool { return i.VWAPMinSamples <= 0 },
			apply: func() { i.VWAPMinSamples = defaultVWAPSamples },
		},
		fieldDefault{
			key:   "indicators.baseline_window",
			need:  func() bool { return i.BaselineWindow <= 0 },
			apply: func() { i.BaselineWindow = defaultBaselineWin },
		},
		fieldDefault{
			key:   "indicators.direction_band_pct",
			need:  func() bool { return i.DirectionBandPct <= 0 },
			apply: func() { i.DirectionBandPct = defaultBandPct },
		},
		fieldDefault{
			key:   "indicators.pcr_support",
			need:  func() bool { return i.PCRSupport <= 0 },
			apply: func() { i.PCRSupport = defaultPCRSupport },
		},
		fieldDefault{
			key:   "indicators.pcr_resistance",
			need:  func() bool { return i.PCRResistance <= 0 },
			apply: func() { i.PCRResistance = defaultPCRResist },
		},
		fieldDefault{
			key:   "indicators.vwap_buffer_pct",
			need:  func() bool { return i.VWAPBufferPct <= 0 },
			apply: func() { i.VWAPBufferPct = defaultVWAPBuffer },
		},
		fieldDefault{
			key:   "indicators.vwap_penalty",
			need:  func() bool { return i.VWAPPenalty <= 0 },
			apply: func() { i.VWAPPenalty = defaultVWAPPenalty },
		},
	)
	if i.MinOIDelta < 0 {
		i.MinOIDelta = 0
	}
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.stop_loss_pct",
			need:  func() bool { return r.StopLossPct <= 0 },
			apply: func() { r.StopLossPct = defaultStopLossPct },
		},
		fieldDefault{
			key:   "risk.target_pct",
			need:  func() bool { return r.TargetPct <= 0 },
			apply: func() { r.TargetPct = defaultTargetPct },
		},
		fieldDefault{
			key:   "risk.expiry_stop_loss_pct",
			need:  func() bool { return r.ExpiryStopLossPct <= 0 },
			apply: func() { r.ExpiryStopLossPct = defaultExpiryStop },
		},
		fieldDefault{
			key:   "risk.expiry_target_pct",
			need:  func() bool { return r.ExpiryTargetPct <= 0 },
			apply: func() { r.ExpiryTargetPct = defaultExpiryTarget },
		},
	)
}

func (g *GovernorConfig) applyDefaults(keys keySet) {
	if g == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "governor.max_signals_per_day",
			need:  func() bool { return g.MaxSignalsPerDay <= 0 },
			apply: func() { g.MaxSignalsPerDay = defaultDayLimit },
		},
		fieldDefault{
			key:   "governor.min_confidence",
			need:  func() bool { return g.MinConfidence <= 0 },
			apply: func() { g.MinConfidence = defaultMinConf },
		},
		fieldDefault{
			key:   "governor.expiry_min_confidence",
			need:  func() bool { return g.ExpiryMinConfidence <= 0 },
			apply: func() { g.ExpiryMinConfidence = defaultExpiryConf },
		},
		fieldDefault{
			key:   "governor.cooldown_seconds",
			need:  func() bool { return g.CooldownSeconds <= 0 },
			apply: func() { g.CooldownSeconds = defaultCooldownSecs },
		},
	)
}

func (p *PaperConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("paper.enabled", &p.Enabled, true),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.ledger_path", &s.LedgerPath, defaultLedgerPath),
		stringFieldDefault("store.archive_path", &s.ArchivePath, defaultArchivePath),
	)
}

func (r *ReportConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("report.dir", &r.Dir, defaultReportDir),
		boolFieldDefault("report.png", &r.PNG, false),
	)
}

func (s *ServerConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("server.addr", &s.Addr, defaultServerAddr),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func normalizeInstrumentList(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
