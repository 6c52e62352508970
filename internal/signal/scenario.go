package signal

import (
	"time"

	"oipulse/internal/chain"
)

// Bias 是场景的方向倾向。
type Bias string

const (
	BiasBullish Bias = "BULLISH"
	BiasBearish Bias = "BEARISH"
)

// Thresholds 是场景判定用到的可配置阈值。
type Thresholds struct {
	MinOiDelta    float64
	PcrSupport    float64
	PcrResistance float64
}

// Predicate 在一组指标上判定场景是否成立。
type Predicate func(ind chain.IndicatorSet, th Thresholds) bool

// ScenarioRule 是一条声明式场景规则，运行期不可变。
// 规则顺序即优先级，匹配器取第一条成立的。
type ScenarioRule struct {
	ID         string
	Label      string
	Bias       Bias
	Confidence int
	When       Predicate
}

// MatchedScenario 是一次命中，含调整后的置信度与触发它的指标。
type MatchedScenario struct {
	ScenarioID string             `json:"scenario_id"`
	Label      string             `json:"label"`
	Bias       Bias               `json:"bias"`
	Confidence int                `json:"confidence"`
	Indicators chain.IndicatorSet `json:"indicators"`
	MatchedAt  time.Time          `json:"matched_at"`
	Reasons    []string           `json:"reasons"`
}

// Scenarios 返回九条场景规则。
// 解缠(unwinding)类优先于区间类，区间类优先于建仓(building)类与对冲类。
func Scenarios() []ScenarioRule {
	return []ScenarioRule{
		{
			ID:         "put_unwinding_bull",
			Label:      "Put Unwinding (Bullish)",
			Bias:       BiasBullish,
			Confidence: 90,
			When: func(ind chain.IndicatorSet, th Thresholds) bool {
				return ind.PriceDirection == chain.DirectionUp && ind.PutOiDelta < -th.MinOiDelta
			},
		},
		{
			ID:         "call_unwinding_bull",
			Label:      "Call Unwinding (Bullish)",
			Bias:       BiasBullish,
			Confidence: 90,
			When: func(ind chain.IndicatorSet, th Thresholds) bool {
				return ind.PriceDirection == chain.DirectionUp && ind.CallOiDelta < -th.MinOiDelta
			},
		},
		{
			ID:         "call_unwinding_bear",
			Label:      "Call Unwinding (Bearish)",
			Bias:       BiasBearish,
			Confidence: 90,
			When: func(ind chain.IndicatorSet, th Thresholds) bool {
				return ind.PriceDirection == chain.DirectionDown && ind.CallOiDelta < -th.MinOiDelta
			},
		},
		{
			ID:         "put_unwinding_bear",
			Label:      "Put Unwinding (Bearish)",
			Bias:       BiasBearish,
			Confidence: 90,
			When: func(ind chain.IndicatorSet, th Thresholds) bool {
				return ind.PriceDirection == chain.DirectionDown && ind.PutOiDelta < -th.MinOiDelta
			},
		},
		{
			ID:         "support_zone",
			Label:      "Support Zone (Bullish)",
			Bias:       BiasBullish,
			Confidence: 80,
			When: func(ind chain.IndicatorSet, th Thresholds) bool {
				return ind.PriceDirection == chain.DirectionSideways && ind.Pcr > th.PcrSupport
			},
		},
		{
			ID:         "resistance_zone",
			Label:      "Resistance Zone (Bearish)",
			Bias:       BiasBearish,
			Confidence: 80,
			When: func(ind chain.IndicatorSet, th Thresholds) bool {
				return ind.PriceDirection == chain.DirectionSideways && ind.Pcr < th.PcrResistance
			},
		},
		{
			ID:         "support_building",
			Label:      "Support Building (Bullish)",
			Bias:       BiasBullish,
			Confidence: 75,
			When: func(ind chain.IndicatorSet, th Thresholds) bool {
				return ind.PriceDirection == chain.DirectionDown && ind.PutOiDelta > th.MinOiDelta
			},
		},
		{
			ID:         "resistance_building",
			Label:      "Resistance Building (Bearish)",
			Bias:       BiasBearish,
			Confidence: 75,
			When: func(ind chain.IndicatorSet, th Thresholds) bool {
				return ind.PriceDirection == chain.DirectionUp && ind.CallOiDelta > th.MinOiDelta
			},
		},
		{
			ID:         "put_hedging",
			Label:      "Put Hedging (Bearish)",
			Bias:       BiasBearish,
			Confidence: 70,
			When: func(ind chain.IndicatorSet, th Thresholds) bool {
				return ind.PriceDirection == chain.DirectionUp && ind.PutOiDelta > th.MinOiDelta
			},
		},
	}
}
