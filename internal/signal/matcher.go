package signal

import (
	"fmt"
	"math"
	"strings"

	"oipulse/internal/chain"
	"oipulse/internal/pkg/format"
)

// Matcher 按固定优先级在九条场景规则上做首条命中匹配。
type Matcher struct {
	rules         []ScenarioRule
	th            Thresholds
	vwapBufferPct float64
	vwapPenalty   int
}

func NewMatcher(th Thresholds, vwapBufferPct float64, vwapPenalty int) *Matcher {
	if th.PcrSupport <= 0 {
		th.PcrSupport = 2.5
	}
	if th.PcrResistance <= 0 {
		th.PcrResistance = 0.5
	}
	if th.MinOiDelta < 0 {
		th.MinOiDelta = 0
	}
	if vwapBufferPct < 0 {
		vwapBufferPct = 0
	}
	return &Matcher{
		rules:         Scenarios(),
		th:            th,
		vwapBufferPct: vwapBufferPct,
		vwapPenalty:   vwapPenalty,
	}
}

// Match 返回优先级最高的命中场景；没有命中返回 false。
// 命中后按 VWAP 口径做一次置信度确认调整。
func (m *Matcher) Match(ind chain.IndicatorSet) (MatchedScenario, bool) {
	for _, rule := range m.rules {
		if rule.When == nil || !rule.When(ind, m.th) {
			continue
		}
		matched := MatchedScenario{
			ScenarioID: rule.ID,
			Label:      rule.Label,
			Bias:       rule.Bias,
			Confidence: rule.Confidence,
			Indicators: ind,
			MatchedAt:  ind.CapturedAt,
			Reasons:    m.reasons(rule, ind),
		}
		m.applyVwapConfirmation(&matched)
		return matched, true
	}
	return MatchedScenario{}, false
}

// applyVwapConfirmation 对与 VWAP 口径相反的命中扣减置信度。
// 价格在 VWAP 缓冲带内视为中性，不调整。
func (m *Matcher) applyVwapConfirmation(s *MatchedScenario) {
	if m.vwapPenalty <= 0 {
		return
	}
	ind := s.Indicators
	if ind.Vwap <= 0 {
		return
	}
	devPct := (ind.Spot - ind.Vwap) / ind.Vwap * 100
	if math.Abs(devPct) <= m.vwapBufferPct {
		return
	}
	switch {
	case s.Bias == BiasBullish && devPct < 0:
		s.Confidence -= m.vwapPenalty
		s.Reasons = append(s.Reasons, fmt.Sprintf("Price %.2f%% below VWAP, bullish confidence reduced", -devPct))
	case s.Bias == BiasBearish && devPct > 0:
		s.Confidence -= m.vwapPenalty
		s.Reasons = append(s.Reasons, fmt.Sprintf("Price %.2f%% above VWAP, bearish confidence reduced", devPct))
	}
	if s.Confidence < 0 {
		s.Confidence = 0
	}
}

func (m *Matcher) reasons(rule ScenarioRule, ind chain.IndicatorSet) []string {
	var head string
	switch rule.ID {
	case "put_unwinding_bull":
		head = fmt.Sprintf("Put OI down %s while price trends up", format.OI(-ind.PutOiDelta))
	case "call_unwinding_bull":
		head = fmt.Sprintf("Call OI down %s while price trends up, short covering", format.OI(-ind.CallOiDelta))
	case "call_unwinding_bear":
		head = fmt.Sprintf("Call OI down %s while price trends down", format.OI(-ind.CallOiDelta))
	case "put_unwinding_bear":
		head = fmt.Sprintf("Put OI down %s while price trends down, support withdrawn", format.OI(-ind.PutOiDelta))
	case "support_zone":
		head = fmt.Sprintf("PCR %.2f above support threshold with price sideways", ind.Pcr)
	case "resistance_zone":
		head = fmt.Sprintf("PCR %.2f below resistance threshold with price sideways", ind.Pcr)
	case "support_building":
		head = fmt.Sprintf("Put OI up %s into the decline, support building", format.OI(ind.PutOiDelta))
	case "resistance_building":
		head = fmt.Sprintf("Call OI up %s into the rally, resistance building", format.OI(ind.CallOiDelta))
	case "put_hedging":
		head = fmt.Sprintf("Put OI up %s on a rising tape, hedging flow", format.OI(ind.PutOiDelta))
	default:
		head = rule.Label
	}
	context := fmt.Sprintf("PCR %.2f, direction %s, spot %.2f vs VWAP %.2f",
		ind.Pcr, strings.ToLower(string(ind.PriceDirection)), ind.Spot, ind.Vwap)
	return []string{head, context}
}
