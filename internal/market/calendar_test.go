package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func istCalendar(t *testing.T) *Calendar {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return NewCalendar(loc, 9*60+15, 15*60+30)
}

func istTime(t *testing.T, value string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	ts, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	require.NoError(t, err)
	return ts
}

func TestCalendarIsOpen(t *testing.T) {
	c := istCalendar(t)

	cases := []struct {
		name string
		at   string
		want bool
	}{
		{name: "monday mid session", at: "2025-08-25 10:00", want: true},
		{name: "just before open", at: "2025-08-25 09:14", want: false},
		{name: "at open", at: "2025-08-25 09:15", want: true},
		{name: "last minute", at: "2025-08-25 15:29", want: true},
		{name: "at close", at: "2025-08-25 15:30", want: false},
		{name: "saturday", at: "2025-08-23 11:00", want: false},
		{name: "sunday", at: "2025-08-24 11:00", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.IsOpen(istTime(t, tc.at)))
		})
	}
}

func TestCalendarIsOpenConvertsTimezone(t *testing.T) {
	c := istCalendar(t)
	// 03:46 UTC == 09:16 IST
	utc := time.Date(2025, 8, 25, 3, 46, 0, 0, time.UTC)
	assert.True(t, c.IsOpen(utc))
	assert.Equal(t, "2025-08-25", c.TradingDate(utc))
}

func TestCalendarSessionBounds(t *testing.T) {
	c := istCalendar(t)
	at := istTime(t, "2025-08-25 12:00")

	open := c.SessionOpen(at)
	end := c.SessionEnd(at)
	assert.Equal(t, "2025-08-25 09:15", open.Format("2006-01-02 15:04"))
	assert.Equal(t, "2025-08-25 15:30", end.Format("2006-01-02 15:04"))
}

func TestNextExpiryWeekly(t *testing.T) {
	c := istCalendar(t)
	nifty := Instrument{Name: "NIFTY", StrikeGap: 50, ExpiryWeekday: 2}

	t.Run("monday rolls to tuesday", func(t *testing.T) {
		exp := c.NextExpiry(istTime(t, "2025-08-25 10:00"), nifty)
		assert.Equal(t, "2025-08-26", exp.Format("2006-01-02"))
	})

	t.Run("expiry day counts as expiry until close", func(t *testing.T) {
		exp := c.NextExpiry(istTime(t, "2025-08-26 15:29"), nifty)
		assert.Equal(t, "2025-08-26", exp.Format("2006-01-02"))
		assert.True(t, c.IsExpiryDay(istTime(t, "2025-08-26 15:29"), nifty))
	})

	t.Run("day after expiry moves to next week", func(t *testing.T) {
		exp := c.NextExpiry(istTime(t, "2025-08-27 10:00"), nifty)
		assert.Equal(t, "2025-09-02", exp.Format("2006-01-02"))
		assert.False(t, c.IsExpiryDay(istTime(t, "2025-08-27 10:00"), nifty))
	})
}

func TestNextExpiryMonthly(t *testing.T) {
	c := istCalendar(t)
	monthly := Instrument{Name: "NIFTY", StrikeGap: 50, ExpiryWeekday: 2, MonthlyExpiry: true}

	t.Run("within month picks last tuesday", func(t *testing.T) {
		exp := c.NextExpiry(istTime(t, "2025-08-05 10:00"), monthly)
		assert.Equal(t, "2025-08-26", exp.Format("2006-01-02"))
	})

	t.Run("monthly expiry day still matches", func(t *testing.T) {
		assert.True(t, c.IsExpiryDay(istTime(t, "2025-08-26 10:00"), monthly))
	})

	t.Run("past last tuesday rolls to next month", func(t *testing.T) {
		exp := c.NextExpiry(istTime(t, "2025-08-27 10:00"), monthly)
		assert.Equal(t, "2025-09-30", exp.Format("2006-01-02"))
	})
}

func TestExpiryDateFormat(t *testing.T) {
	c := istCalendar(t)
	inst := Instrument{Name: "NIFTY", StrikeGap: 50, ExpiryWeekday: 2}
	assert.Equal(t, "2025-08-26", c.ExpiryDate(istTime(t, "2025-08-25 10:00"), inst))
}
