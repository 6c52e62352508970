package chain

// vwapSample 记录单次轮询的现货价与当时的链上总成交量。
type vwapSample struct {
	price  float64
	volume float64
}

// History 持有指标计算所需的滚动窗口，超出容量时旧样本先出。
// 每个标的一份，由该标的的引擎循环独占,不做并发保护。
type History struct {
	vwapWindow     int
	baselineWindow int

	prev  *Snapshot
	vwap  []vwapSample
	spots []float64
}

func NewHistory(vwapWindow, baselineWindow int) *History {
	if vwapWindow <= 0 {
		vwapWindow = 30
	}
	if baselineWindow <= 0 {
		baselineWindow = 20
	}
	return &History{
		vwapWindow:     vwapWindow,
		baselineWindow: baselineWindow,
	}
}

// Push 把一次快照记入窗口，并把它设为下一轮的"上一份快照"。
func (h *History) Push(s Snapshot) {
	cp := s
	h.prev = &cp
	h.vwap = append(h.vwap, vwapSample{price: s.Spot, volume: s.TotalVolume()})
	if len(h.vwap) > h.vwapWindow {
		h.vwap = h.vwap[len(h.vwap)-h.vwapWindow:]
	}
	h.spots = append(h.spots, s.Spot)
	if len(h.spots) > h.baselineWindow {
		h.spots = h.spots[len(h.spots)-h.baselineWindow:]
	}
}

// Prev 返回上一份快照，首轮为 nil。
func (h *History) Prev() *Snapshot {
	return h.prev
}

// Samples 返回 VWAP 窗口当前的样本数。
func (h *History) Samples() int {
	return len(h.vwap)
}

// SpotSeries 返回基线窗口内的现货序列副本，旧在前。
func (h *History) SpotSeries() []float64 {
	out := make([]float64, len(h.spots))
	copy(out, h.spots)
	return out
}

// VWAP 计算窗口内的量加权均价。样本不足 minSamples 或总量为零时返回 fallback。
func (h *History) VWAP(minSamples int, fallback float64) float64 {
	if minSamples < 1 {
		minSamples = 1
	}
	if len(h.vwap) < minSamples {
		return fallback
	}
	var pv, vol float64
	for _, s := range h.vwap {
		pv += s.price * s.volume
		vol += s.volume
	}
	if vol <= 0 {
		return fallback
	}
	return pv / vol
}
