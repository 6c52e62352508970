package chain

import "time"

// StrikeQuote 汇总单个行权价上 CE/PE 两腿的盘口数据。
type StrikeQuote struct {
	Strike     float64 `json:"strike"`
	CallOI     float64 `json:"call_oi"`
	PutOI      float64 `json:"put_oi"`
	CallVolume float64 `json:"call_volume"`
	PutVolume  float64 `json:"put_volume"`
	CallLTP    float64 `json:"call_ltp"`
	PutLTP     float64 `json:"put_ltp"`
}

// Snapshot 是一次期权链轮询的不可变快照，只保留 ATM 附近被跟踪的行权价。
type Snapshot struct {
	Instrument string        `json:"instrument"`
	Expiry     string        `json:"expiry"`
	CapturedAt time.Time     `json:"captured_at"`
	Spot       float64       `json:"spot"`
	ATMStrike  float64       `json:"atm_strike"`
	Strikes    []StrikeQuote `json:"strikes"`
}

func (s Snapshot) TotalCallOI() float64 {
	var total float64
	for _, q := range s.Strikes {
		total += q.CallOI
	}
	return total
}

func (s Snapshot) TotalPutOI() float64 {
	var total float64
	for _, q := range s.Strikes {
		total += q.PutOI
	}
	return total
}

func (s Snapshot) TotalCallVolume() float64 {
	var total float64
	for _, q := range s.Strikes {
		total += q.CallVolume
	}
	return total
}

func (s Snapshot) TotalPutVolume() float64 {
	var total float64
	for _, q := range s.Strikes {
		total += q.PutVolume
	}
	return total
}

func (s Snapshot) TotalVolume() float64 {
	return s.TotalCallVolume() + s.TotalPutVolume()
}

// Quote 返回指定行权价的报价。
func (s Snapshot) Quote(strike float64) (StrikeQuote, bool) {
	for _, q := range s.Strikes {
		if q.Strike == strike {
			return q, true
		}
	}
	return StrikeQuote{}, false
}

// ATMQuote 返回平值行权价的报价。
func (s Snapshot) ATMQuote() (StrikeQuote, bool) {
	return s.Quote(s.ATMStrike)
}

// ATMPremium 返回信号方向对应的平值权利金，call 为 true 取 CE 腿。
func (s Snapshot) ATMPremium(call bool) float64 {
	q, ok := s.ATMQuote()
	if !ok {
		return 0
	}
	if call {
		return q.CallLTP
	}
	return q.PutLTP
}
