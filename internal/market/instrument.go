package market

import (
	"math"
	"strings"
	"time"
)

// Instrument 描述一个被轮询的期权标的及其合约参数。
type Instrument struct {
	Name             string  `mapstructure:"name" yaml:"name"`
	InstrumentKey    string  `mapstructure:"instrument_key" yaml:"instrument_key"`
	StrikeGap        float64 `mapstructure:"strike_gap" yaml:"strike_gap"`
	LotSize          int     `mapstructure:"lot_size" yaml:"lot_size"`
	ExpiryWeekday    int     `mapstructure:"expiry_weekday" yaml:"expiry_weekday"` // 1=周一 .. 5=周五
	MonthlyExpiry    bool    `mapstructure:"monthly_expiry" yaml:"monthly_expiry"`
	StrikesAroundATM int     `mapstructure:"strikes_around_atm" yaml:"strikes_around_atm"`
}

// Weekday 返回到期星期，越界时回落到周二(NSE 指数周期权的常规到期日)。
func (i Instrument) Weekday() time.Weekday {
	if i.ExpiryWeekday < 1 || i.ExpiryWeekday > 5 {
		return time.Tuesday
	}
	return time.Weekday(i.ExpiryWeekday)
}

// ATMStrike 把现货价取整到最近的行权价档位。
func (i Instrument) ATMStrike(spot float64) float64 {
	if i.StrikeGap <= 0 || spot <= 0 {
		return 0
	}
	return math.Round(spot/i.StrikeGap) * i.StrikeGap
}

// TrackedStrikes 返回 ATM 上下各 StrikesAroundATM 档的行权价，含 ATM 本身。
func (i Instrument) TrackedStrikes(spot float64) []float64 {
	atm := i.ATMStrike(spot)
	if atm <= 0 {
		return nil
	}
	n := i.StrikesAroundATM
	if n < 0 {
		n = 0
	}
	out := make([]float64, 0, 2*n+1)
	for k := -n; k <= n; k++ {
		strike := atm + float64(k)*i.StrikeGap
		if strike <= 0 {
			continue
		}
		out = append(out, strike)
	}
	return out
}

func normalizeInstrument(name string, inst Instrument) Instrument {
	inst.Name = strings.ToUpper(strings.TrimSpace(inst.Name))
	if inst.Name == "" {
		inst.Name = strings.ToUpper(strings.TrimSpace(name))
	}
	inst.InstrumentKey = strings.TrimSpace(inst.InstrumentKey)
	if inst.StrikesAroundATM <= 0 {
		inst.StrikesAroundATM = 2
	}
	return inst
}
