package engine

import (
	"sort"
	"strings"
	"time"

	"oipulse/internal/chain"
)

// InstrumentStatus 是单标的运行状态的只读视图。
type InstrumentStatus struct {
	Instrument     string    `json:"instrument"`
	TradingDate    string    `json:"trading_date"`
	ExpiryDay      bool      `json:"expiry_day"`
	Gate           string    `json:"gate"`
	SignalsEmitted int       `json:"signals_emitted"`
	Scenarios      []string  `json:"scenarios,omitempty"`
	LastSignalAt   time.Time `json:"last_signal_at"`
	LastCycleAt    time.Time `json:"last_cycle_at"`
	LastScenario   string    `json:"last_scenario,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	Breaker        string    `json:"breaker"`
	OpenTrades     int       `json:"open_paper_trades"`
	Spot           float64   `json:"spot"`
	Vwap           float64   `json:"vwap"`
	Pcr            float64   `json:"pcr"`
	PriceDirection string    `json:"price_direction,omitempty"`
}

// Status 是整机运行状态。
type Status struct {
	MarketOpen  bool               `json:"market_open"`
	Instruments []InstrumentStatus `json:"instruments"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Status 汇总所有标的的当前状态，供 HTTP 接口上报。
func (e *Engine) Status() Status {
	now := e.now()
	out := Status{
		MarketOpen: e.Calendar.IsOpen(now),
		UpdatedAt:  now,
	}

	e.mu.Lock()
	names := make([]string, 0, len(e.states))
	for name := range e.states {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := e.states[name]
		item := InstrumentStatus{
			Instrument:  name,
			LastCycleAt: st.lastCycleAt,
			LastError:   st.lastError,
			Breaker:     st.breaker.State().String(),
		}
		if st.day != nil {
			item.TradingDate = st.day.TradingDate
			item.ExpiryDay = st.day.ExpiryDay
			item.Gate = string(st.day.Gate)
			item.SignalsEmitted = st.day.Emitted
			item.Scenarios = append([]string(nil), st.day.Scenarios...)
			item.LastSignalAt = st.day.LastSignalAt
		}
		if st.hasInd {
			item.LastScenario = st.lastScenario
			item.Spot = st.lastInd.Spot
			item.Vwap = st.lastInd.Vwap
			item.Pcr = st.lastInd.Pcr
			item.PriceDirection = string(st.lastInd.PriceDirection)
		}
		out.Instruments = append(out.Instruments, item)
	}
	e.mu.Unlock()

	if e.Tracker != nil {
		for i := range out.Instruments {
			out.Instruments[i].OpenTrades = e.Tracker.OpenCount(out.Instruments[i].Instrument)
		}
	}
	return out
}

// Indicators 返回某标的最近一轮的指标，没有数据时 ok 为 false。
func (e *Engine) Indicators(instrument string) (chain.IndicatorSet, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[strings.ToUpper(strings.TrimSpace(instrument))]
	if !ok || !st.hasInd {
		return chain.IndicatorSet{}, false
	}
	return st.lastInd, true
}
