package signal

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	decOne     = decimal.NewFromInt(1)
	decHundred = decimal.NewFromInt(100)
	decTick    = decimal.NewFromFloat(0.05)
)

// RiskProfile 定义一笔期权买入的入场、止损、止盈与盈亏比。
type RiskProfile struct {
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stop_loss"`
	Target     float64 `json:"target"`
	RiskReward float64 `json:"risk_reward"`
}

// Annotator 按权利金比例折算风险档位，到期日用更紧的一组比例。
// 档位按交易所 0.05 的最小报价单位取整。
type Annotator struct {
	stopPct         float64
	targetPct       float64
	expiryStopPct   float64
	expiryTargetPct float64
}

// NewAnnotator 接受百分数形式的比例(如 30 表示 30%)。
func NewAnnotator(stopPct, targetPct, expiryStopPct, expiryTargetPct float64) *Annotator {
	if stopPct <= 0 {
		stopPct = 30
	}
	if targetPct <= 0 {
		targetPct = 60
	}
	if expiryStopPct <= 0 {
		expiryStopPct = 20
	}
	if expiryTargetPct <= 0 {
		expiryTargetPct = 40
	}
	return &Annotator{
		stopPct:         stopPct,
		targetPct:       targetPct,
		expiryStopPct:   expiryStopPct,
		expiryTargetPct: expiryTargetPct,
	}
}

// Annotate 以当前平值权利金为入场价生成风险档位。权利金非正时返回零值。
func (a *Annotator) Annotate(m MatchedScenario, premium float64, expiryDay bool) RiskProfile {
	if premium <= 0 {
		return RiskProfile{}
	}
	stopPct, targetPct := a.stopPct, a.targetPct
	if expiryDay {
		stopPct, targetPct = a.expiryStopPct, a.expiryTargetPct
	}
	entry := decFromFloat(premium)
	stop := roundToTick(entry.Mul(decOne.Sub(pctFactor(stopPct))))
	target := roundToTick(entry.Mul(decOne.Add(pctFactor(targetPct))))

	profile := RiskProfile{
		Entry:    decToFloat(entry),
		StopLoss: decToFloat(stop),
		Target:   decToFloat(target),
	}
	stopDist := entry.Sub(stop)
	if stopDist.IsPositive() {
		profile.RiskReward = decToFloat(target.Sub(entry).Div(stopDist).Round(2))
	}
	return profile
}

func pctFactor(pct float64) decimal.Decimal {
	return decFromFloat(pct).Div(decHundred)
}

func roundToTick(v decimal.Decimal) decimal.Decimal {
	return v.Div(decTick).Round(0).Mul(decTick)
}

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}
