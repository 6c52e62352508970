package market

import "time"

// NextExpiry 返回 t 之后(含当日)最近的到期日零点。
// 周期权取下一个到期星期，月期权取当月该星期的最后一次，已过则顺延到下月。
func (c *Calendar) NextExpiry(t time.Time, inst Instrument) time.Time {
	t = t.In(c.loc)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
	wd := inst.Weekday()
	if inst.MonthlyExpiry {
		exp := lastWeekdayOfMonth(day.Year(), day.Month(), wd, c.loc)
		if exp.Before(day) {
			next := day.AddDate(0, 1, 0)
			exp = lastWeekdayOfMonth(next.Year(), next.Month(), wd, c.loc)
		}
		return exp
	}
	offset := (int(wd) - int(day.Weekday()) + 7) % 7
	return day.AddDate(0, 0, offset)
}

// IsExpiryDay 判断 t 所在交易日是否为该标的的到期日。到期当日直到收盘都算。
func (c *Calendar) IsExpiryDay(t time.Time, inst Instrument) bool {
	return c.TradingDate(t) == c.TradingDate(c.NextExpiry(t, inst))
}

// ExpiryDate 返回行情 API 使用的到期日串，如 "2025-08-26"。
func (c *Calendar) ExpiryDate(t time.Time, inst Instrument) string {
	return c.NextExpiry(t, inst).Format("2006-01-02")
}

func lastWeekdayOfMonth(year int, month time.Month, wd time.Weekday, loc *time.Location) time.Time {
	last := time.Date(year, month+1, 1, 0, 0, 0, 0, loc).AddDate(0, 0, -1)
	offset := (int(last.Weekday()) - int(wd) + 7) % 7
	return last.AddDate(0, 0, -offset)
}
