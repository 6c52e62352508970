package config

import (
	"fmt"
	"strconv"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Upstox.validate(); err != nil {
		return err
	}
	if err := c.Indicators.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Governor.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if _, err := m.Location(); err != nil {
		return fmt.Errorf("market.timezone is invalid: %w", err)
	}
	if strings.TrimSpace(m.CatalogPath) == "" {
		return fmt.Errorf("market.catalog_path cannot be empty")
	}
	if len(m.Instruments) == 0 {
		return fmt.Errorf("market.instruments requires at least one instrument")
	}
	if m.ScanIntervalSeconds <= 0 {
		return fmt.Errorf("market.scan_interval_seconds must be > 0")
	}
	openMin, err := ParseClock(m.OpenTime)
	if err != nil {
		return fmt.Errorf("market.open_time is invalid: %w", err)
	}
	closeMin, err := ParseClock(m.CloseTime)
	if err != nil {
		return fmt.Errorf("market.close_time is invalid: %w", err)
	}
	if openMin >= closeMin {
		return fmt.Errorf("market.open_time must be before market.close_time")
	}
	return nil
}

func (u *UpstoxConfig) validate() error {
	if strings.TrimSpace(u.BaseURL) == "" {
		return fmt.Errorf("upstox.base_url cannot be empty")
	}
	if u.TimeoutSeconds <= 0 || u.TimeoutSeconds > 120 {
		return fmt.Errorf("upstox.timeout_seconds must be in (0,120]")
	}
	if u.MaxRetries < 1 || u.MaxRetries > 10 {
		return fmt.Errorf("upstox.max_retries must be in [1,10]")
	}
	return nil
}

func (i *IndicatorConfig) validate() error {
	if i.VWAPWindow < 2 {
		return fmt.Errorf("indicators.vwap_window must be >= 2")
	}
	if i.VWAPMinSamples < 1 || i.VWAPMinSamples > i.VWAPWindow {
		return fmt.Errorf("indicators.vwap_min_samples must be in [1, vwap_window]")
	}
	if i.BaselineWindow < 2 {
		return fmt.Errorf("indicators.baseline_window must be >= 2")
	}
	if i.DirectionBandPct <= 0 {
		return fmt.Errorf("indicators.direction_band_pct must be > 0")
	}
	if i.MinOIDelta < 0 {
		return fmt.Errorf("indicators.min_oi_delta must be >= 0")
	}
	if i.PCRResistance <= 0 {
		return fmt.Errorf("indicators.pcr_resistance must be > 0")
	}
	if i.PCRSupport <= i.PCRResistance {
		return fmt.Errorf("indicators.pcr_support must be > pcr_resistance")
	}
	if i.VWAPBufferPct < 0 {
		return fmt.Errorf("indicators.vwap_buffer_pct must be >= 0")
	}
	if i.VWAPPenalty < 0 || i.VWAPPenalty > 100 {
		return fmt.Errorf("indicators.vwap_penalty must be in [0,100]")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.StopLossPct <= 0 || r.StopLossPct >= 100 {
		return fmt.Errorf("risk.stop_loss_pct must be in (0,100)")
	}
	if r.TargetPct <= 0 {
		return fmt.Errorf("risk.target_pct must be > 0")
	}
	if r.ExpiryStopLossPct <= 0 || r.ExpiryStopLossPct >= 100 {
		return fmt.Errorf("risk.expiry_stop_loss_pct must be in (0,100)")
	}
	if r.ExpiryTargetPct <= 0 {
		return fmt.Errorf("risk.expiry_target_pct must be > 0")
	}
	return nil
}

func (g *GovernorConfig) validate() error {
	if g.MaxSignalsPerDay < 1 {
		return fmt.Errorf("governor.max_signals_per_day must be >= 1")
	}
	if g.MinConfidence < 0 || g.MinConfidence > 100 {
		return fmt.Errorf("governor.min_confidence must be in [0,100]")
	}
	if g.ExpiryMinConfidence < g.MinConfidence || g.ExpiryMinConfidence > 100 {
		return fmt.Errorf("governor.expiry_min_confidence must be in [min_confidence,100]")
	}
	if g.CooldownSeconds < 0 {
		return fmt.Errorf("governor.cooldown_seconds must be >= 0")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.ResolveToken() == "" || strings.TrimSpace(n.Telegram.ChatID) == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if strings.TrimSpace(s.LedgerPath) == "" {
		return fmt.Errorf("store.ledger_path cannot be empty")
	}
	if strings.TrimSpace(s.ArchivePath) == "" {
		return fmt.Errorf("store.archive_path cannot be empty")
	}
	return nil
}

// ParseClock 把 "HH:MM" 解析为当日分钟数。
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("clock must look like HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("clock hour is not a number: %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("clock minute is not a number: %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock out of range: %q", s)
	}
	return h*60 + m, nil
}
