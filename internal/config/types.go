package config

import (
	"os"
	"strings"
	"time"
)

// Config 是 oipulse 的主配置载体。
type Config struct {
	App        AppConfig       `toml:"app"`
	Market     MarketConfig    `toml:"market"`
	Upstox     UpstoxConfig    `toml:"upstox"`
	Indicators IndicatorConfig `toml:"indicators"`
	Risk       RiskConfig      `toml:"risk"`
	Governor   GovernorConfig  `toml:"governor"`
	Paper      PaperConfig     `toml:"paper"`
	Notify     NotifyConfig    `toml:"notify"`
	Store      StoreConfig     `toml:"store"`
	Report     ReportConfig    `toml:"report"`
	Server     ServerConfig    `toml:"server"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	DataDir  string `toml:"data_dir"`
}

// MarketConfig 描述交易时段与要轮询的标的列表。
type MarketConfig struct {
	Timezone            string   `toml:"timezone"`
	CatalogPath         string   `toml:"catalog_path"`
	Instruments         []string `toml:"instruments"`
	ScanIntervalSeconds int      `toml:"scan_interval_seconds"`
	OpenTime            string   `toml:"open_time"`
	CloseTime           string   `toml:"close_time"`
}

func (m MarketConfig) ScanInterval() time.Duration {
	if m.ScanIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(m.ScanIntervalSeconds) * time.Second
}

// Location 解析配置时区，解析失败时返回 IST 以外不做兜底(由 validate 保证)。
func (m MarketConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(m.Timezone)
	if tz == "" {
		tz = defaultMarketTimezone
	}
	return time.LoadLocation(tz)
}

// UpstoxConfig 描述期权链数据源的访问方式。
type UpstoxConfig struct {
	BaseURL        string `toml:"base_url"`
	AccessToken    string `toml:"access_token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
}

func (u UpstoxConfig) Timeout() time.Duration {
	if u.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(u.TimeoutSeconds) * time.Second
}

// ResolveToken 优先使用 UPSTOX_ACCESS_TOKEN 环境变量，其次配置文件。
func (u UpstoxConfig) ResolveToken() string {
	if env := strings.TrimSpace(os.Getenv("UPSTOX_ACCESS_TOKEN")); env != "" {
		return env
	}
	return strings.TrimSpace(u.AccessToken)
}

// IndicatorConfig 控制情绪指标的窗口与阈值。
type IndicatorConfig struct {
	VWAPWindow       int     `toml:"vwap_window"`
	VWAPMinSamples   int     `toml:"vwap_min_samples"`
	BaselineWindow   int     `toml:"baseline_window"`
	DirectionBandPct float64 `toml:"direction_band_pct"`
	MinOIDelta       float64 `toml:"min_oi_delta"`
	PCRSupport       float64 `toml:"pcr_support"`
	PCRResistance    float64 `toml:"pcr_resistance"`
	VWAPBufferPct    float64 `toml:"vwap_buffer_pct"`
	VWAPPenalty      int     `toml:"vwap_penalty"`
}

// RiskConfig 控制期权权利金的止损/止盈比例(百分数)。
type RiskConfig struct {
	StopLossPct       float64 `toml:"stop_loss_pct"`
	TargetPct         float64 `toml:"target_pct"`
	ExpiryStopLossPct float64 `toml:"expiry_stop_loss_pct"`
	ExpiryTargetPct   float64 `toml:"expiry_target_pct"`
}

// GovernorConfig 控制每日信号闸门。
type GovernorConfig struct {
	MaxSignalsPerDay    int `toml:"max_signals_per_day"`
	MinConfidence       int `toml:"min_confidence"`
	ExpiryMinConfidence int `toml:"expiry_min_confidence"`
	CooldownSeconds     int `toml:"cooldown_seconds"`
}

func (g GovernorConfig) Cooldown() time.Duration {
	if g.CooldownSeconds <= 0 {
		return 0
	}
	return time.Duration(g.CooldownSeconds) * time.Second
}

type PaperConfig struct {
	Enabled bool `toml:"enabled"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// ResolveToken 优先使用 TELEGRAM_BOT_TOKEN 环境变量，其次配置文件。
func (t TelegramConfig) ResolveToken() string {
	if env := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")); env != "" {
		return env
	}
	return strings.TrimSpace(t.BotToken)
}

type StoreConfig struct {
	LedgerPath  string `toml:"ledger_path"`
	ArchivePath string `toml:"archive_path"`
}

type ReportConfig struct {
	Dir string `toml:"dir"`
	PNG bool   `toml:"png"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

func (s ServerConfig) Enabled() bool {
	return strings.TrimSpace(s.Addr) != ""
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
