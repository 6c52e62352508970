package signal

import (
	"fmt"
	"time"
)

// GateState 是每日信号闸门的状态。
type GateState string

const (
	GateOpen         GateState = "OPEN"
	GateLimitReached GateState = "LIMIT_REACHED"
)

// DayState 是单个标的在一个交易日内的信号账目。
// 只由该标的的引擎循环读写，日界翻转时整体重置。
type DayState struct {
	TradingDate  string    `json:"trading_date"`
	Emitted      int       `json:"emitted"`
	Scenarios    []string  `json:"scenarios"`
	ExpiryDay    bool      `json:"expiry_day"`
	LastSignalAt time.Time `json:"last_signal_at"`
	Gate         GateState `json:"gate"`
}

// NewDayState 在交易日开始时建立账目。
func NewDayState(tradingDate string, expiryDay bool) *DayState {
	return &DayState{
		TradingDate: tradingDate,
		ExpiryDay:   expiryDay,
		Gate:        GateOpen,
	}
}

// Reset 把账目翻转到新的交易日。这是 LIMIT_REACHED 复位的唯一途径。
func (d *DayState) Reset(tradingDate string, expiryDay bool) {
	d.TradingDate = tradingDate
	d.Emitted = 0
	d.Scenarios = nil
	d.ExpiryDay = expiryDay
	d.LastSignalAt = time.Time{}
	d.Gate = GateOpen
}

// Verdict 解释一次放行判定。
type Verdict struct {
	Allowed bool
	Reason  string
}

// Governor 是每日信号闸门:日上限、置信度下限、到期日加严、冷却间隔。
// 被拒绝的信号不消耗当日额度。
type Governor struct {
	maxPerDay           int
	minConfidence       int
	expiryMinConfidence int
	cooldown            time.Duration
}

func NewGovernor(maxPerDay, minConfidence, expiryMinConfidence int, cooldown time.Duration) *Governor {
	if maxPerDay < 1 {
		maxPerDay = 3
	}
	if minConfidence < 0 {
		minConfidence = 0
	}
	if expiryMinConfidence < minConfidence {
		expiryMinConfidence = minConfidence
	}
	if cooldown < 0 {
		cooldown = 0
	}
	return &Governor{
		maxPerDay:           maxPerDay,
		minConfidence:       minConfidence,
		expiryMinConfidence: expiryMinConfidence,
		cooldown:            cooldown,
	}
}

// Admit 判定一条命中场景当下是否可以放行。
func (g *Governor) Admit(state *DayState, m MatchedScenario, now time.Time) Verdict {
	if state == nil {
		return Verdict{Reason: "day state missing"}
	}
	if state.Gate == GateLimitReached || state.Emitted >= g.maxPerDay {
		state.Gate = GateLimitReached
		return Verdict{Reason: fmt.Sprintf("daily limit of %d signals reached", g.maxPerDay)}
	}
	if state.ExpiryDay && m.Confidence < g.expiryMinConfidence {
		return Verdict{Reason: fmt.Sprintf("expiry day needs confidence >= %d, got %d", g.expiryMinConfidence, m.Confidence)}
	}
	if m.Confidence < g.minConfidence {
		return Verdict{Reason: fmt.Sprintf("confidence %d below minimum %d", m.Confidence, g.minConfidence)}
	}
	if g.cooldown > 0 && !state.LastSignalAt.IsZero() && now.Sub(state.LastSignalAt) < g.cooldown {
		remain := g.cooldown - now.Sub(state.LastSignalAt)
		return Verdict{Reason: fmt.Sprintf("cooldown active for another %s", remain.Truncate(time.Second))}
	}
	return Verdict{Allowed: true}
}

// Note 记账一次已放行的信号，额度用尽时合上闸门。
func (g *Governor) Note(state *DayState, m MatchedScenario, now time.Time) {
	if state == nil {
		return
	}
	state.Emitted++
	state.Scenarios = append(state.Scenarios, m.ScenarioID)
	state.LastSignalAt = now
	if state.Emitted >= g.maxPerDay {
		state.Gate = GateLimitReached
	}
}
