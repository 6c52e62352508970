package chain

import (
	"math"
	"time"

	"github.com/markcheno/go-talib"
)

// PcrMax 是 Call OI 合计为零(或 PCR 失真地大)时的封顶哨兵值。
const PcrMax = 10.0

// PriceDirection 描述现货价相对短期均线基线的位置。
type PriceDirection string

const (
	DirectionUp       PriceDirection = "UP"
	DirectionDown     PriceDirection = "DOWN"
	DirectionSideways PriceDirection = "SIDEWAYS"
)

// IndicatorSet 是单个轮询周期派生出的情绪指标。
// CallOiDelta/PutOiDelta/Pcr/Vwap/PriceDirection 参与场景判定，
// 其余为通知与排查用的参考字段。
type IndicatorSet struct {
	Instrument string    `json:"instrument"`
	CapturedAt time.Time `json:"captured_at"`
	Spot       float64   `json:"spot"`

	CallOiDelta    float64        `json:"call_oi_delta"`
	PutOiDelta     float64        `json:"put_oi_delta"`
	Pcr            float64        `json:"pcr"`
	Vwap           float64        `json:"vwap"`
	PriceDirection PriceDirection `json:"price_direction"`

	CallOiPctChange  float64 `json:"call_oi_pct_change"`
	PutOiPctChange   float64 `json:"put_oi_pct_change"`
	VwapDeviationPct float64 `json:"vwap_deviation_pct"`
	TotalCallOI      float64 `json:"total_call_oi"`
	TotalPutOI       float64 `json:"total_put_oi"`
}

// Analyzer 从相邻快照与滚动窗口派生 IndicatorSet。
type Analyzer struct {
	vwapMinSamples   int
	directionBandPct float64
}

func NewAnalyzer(vwapMinSamples int, directionBandPct float64) *Analyzer {
	if vwapMinSamples < 1 {
		vwapMinSamples = 1
	}
	if directionBandPct <= 0 {
		directionBandPct = 0.1
	}
	return &Analyzer{
		vwapMinSamples:   vwapMinSamples,
		directionBandPct: directionBandPct,
	}
}

// Derive 计算当前周期的指标并把 curr 写入历史窗口。
// 退化数据(首轮、零成交量、零 OI)一律退回中性默认值，从不报错。
func (a *Analyzer) Derive(prev *Snapshot, curr Snapshot, hist *History) IndicatorSet {
	ind := IndicatorSet{
		Instrument:     curr.Instrument,
		CapturedAt:     curr.CapturedAt,
		Spot:           curr.Spot,
		TotalCallOI:    curr.TotalCallOI(),
		TotalPutOI:     curr.TotalPutOI(),
		PriceDirection: DirectionSideways,
	}

	if prev != nil {
		prevCall := prev.TotalCallOI()
		prevPut := prev.TotalPutOI()
		ind.CallOiDelta = ind.TotalCallOI - prevCall
		ind.PutOiDelta = ind.TotalPutOI - prevPut
		if prevCall > 0 {
			ind.CallOiPctChange = ind.CallOiDelta / prevCall * 100
		}
		if prevPut > 0 {
			ind.PutOiPctChange = ind.PutOiDelta / prevPut * 100
		}
	}

	if ind.TotalCallOI <= 0 {
		ind.Pcr = PcrMax
	} else {
		ind.Pcr = ind.TotalPutOI / ind.TotalCallOI
		if ind.Pcr > PcrMax {
			ind.Pcr = PcrMax
		}
	}

	hist.Push(curr)

	ind.Vwap = hist.VWAP(a.vwapMinSamples, curr.Spot)
	if ind.Vwap > 0 {
		ind.VwapDeviationPct = (curr.Spot - ind.Vwap) / ind.Vwap * 100
	}
	ind.PriceDirection = a.direction(curr.Spot, hist.SpotSeries(), hist.baselineWindow)
	return ind
}

func (a *Analyzer) direction(spot float64, spots []float64, window int) PriceDirection {
	if window < 2 || len(spots) < window || spot <= 0 {
		return DirectionSideways
	}
	baseline := lastValid(talib.Sma(spots, window))
	if baseline <= 0 {
		return DirectionSideways
	}
	band := baseline * a.directionBandPct / 100
	switch {
	case spot > baseline+band:
		return DirectionUp
	case spot < baseline-band:
		return DirectionDown
	default:
		return DirectionSideways
	}
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return 0
}
