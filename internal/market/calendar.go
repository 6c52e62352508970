package market

import "time"

// Calendar 负责交易时段判断与交易日键的计算。
type Calendar struct {
	loc      *time.Location
	openMin  int
	closeMin int
	nowFn    func() time.Time
}

func NewCalendar(loc *time.Location, openMin, closeMin int) *Calendar {
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{
		loc:      loc,
		openMin:  openMin,
		closeMin: closeMin,
		nowFn:    time.Now,
	}
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Now 返回行情时区下的当前时间。
func (c *Calendar) Now() time.Time {
	return c.nowFn().In(c.loc)
}

// IsOpen 判断 t 是否处于交易时段。周一至周五，开盘分钟含、收盘分钟不含。
func (c *Calendar) IsOpen(t time.Time) bool {
	t = t.In(c.loc)
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	mins := t.Hour()*60 + t.Minute()
	return mins >= c.openMin && mins < c.closeMin
}

// TradingDate 返回日界翻转使用的交易日键，如 "2025-08-25"。
func (c *Calendar) TradingDate(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

// SessionEnd 返回 t 所在日期的收盘时刻。
func (c *Calendar) SessionEnd(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), c.closeMin/60, c.closeMin%60, 0, 0, c.loc)
}

// SessionOpen 返回 t 所在日期的开盘时刻。
func (c *Calendar) SessionOpen(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), c.openMin/60, c.openMin%60, 0, 0, c.loc)
}
