package notifier

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oipulse/internal/chain"
	"oipulse/internal/signal"
)

func TestRenderHTML(t *testing.T) {
	msg := StructuredMessage{
		Icon:  "📊",
		Title: "Daily summary",
		Sections: []MessageSection{
			{Title: "Session", Lines: []string{"Signals: 2", "", "Net: +10.00 pts"}},
			{Title: "Empty", Lines: []string{"  "}},
		},
		Footer:    "paper only",
		Timestamp: time.Date(2025, 8, 25, 15, 30, 0, 0, time.UTC),
	}

	out := msg.RenderHTML()

	assert.True(t, strings.HasPrefix(out, "<b>📊 Daily summary</b>"))
	assert.Contains(t, out, "<pre>")
	assert.Contains(t, out, "- Signals: 2")
	assert.Contains(t, out, "- Net: +10.00 pts")
	assert.NotContains(t, out, "Empty", "sections with only blank lines are dropped")
	assert.Contains(t, out, "<i>paper only</i>")
	assert.Contains(t, out, "Time: 2025-08-25 15:30:00 UTC")
}

func TestRenderHTMLEscapes(t *testing.T) {
	msg := StructuredMessage{
		Title:    "a <b> & c",
		Sections: []MessageSection{{Lines: []string{"x < y > z"}}},
	}

	out := msg.RenderHTML()

	assert.Contains(t, out, "a &lt;b&gt; &amp; c")
	assert.Contains(t, out, "x &lt; y &gt; z")
}

func TestRenderHTMLTruncates(t *testing.T) {
	msg := StructuredMessage{
		Sections: []MessageSection{{Lines: []string{strings.Repeat("x", 5000)}}},
	}

	out := msg.RenderHTML()

	assert.LessOrEqual(t, len(out), maxStructuredMessageLen+3)
	assert.True(t, strings.HasSuffix(out, "..."))
}

func TestSignalAlert(t *testing.T) {
	sig := signal.Signal{
		ID:         "sig-1",
		Instrument: "NIFTY",
		Action:     signal.ActionCEBuy,
		Strike:     24000,
		Expiry:     "2025-08-26",
		LotSize:    50,
		Scenario: signal.MatchedScenario{
			Label:      "Put Unwinding (Bullish)",
			Confidence: 90,
			Reasons:    []string{"Put OI down 4.50 L while price trends up"},
			Indicators: chain.IndicatorSet{
				CallOiDelta:    120000,
				PutOiDelta:     -450000,
				Pcr:            1.23,
				Spot:           24012.5,
				Vwap:           23998.75,
				PriceDirection: chain.DirectionUp,
			},
		},
		Risk:      signal.RiskProfile{Entry: 150, StopLoss: 105, Target: 240, RiskReward: 2},
		CreatedAt: time.Date(2025, 8, 25, 10, 30, 0, 0, time.UTC),
	}

	msg := SignalAlert(sig)
	out := msg.RenderHTML()

	assert.Equal(t, "🟢", msg.Icon)
	assert.Contains(t, out, "NIFTY 24000 CE BUY")
	assert.Contains(t, out, "Entry: ₹150.00")
	assert.Contains(t, out, "Stop: ₹105.00 / Target: ₹240.00 (RR 2.00)")
	assert.Contains(t, out, "Put OI change: -4.50 L")
	assert.Contains(t, out, "Call OI change: +1.20 L")
	assert.Contains(t, out, "PCR: 1.23, direction up")
	assert.Contains(t, out, "confidence 90")

	t.Run("bearish uses PE", func(t *testing.T) {
		sig.Action = signal.ActionPEBuy
		msg := SignalAlert(sig)
		assert.Equal(t, "🔴", msg.Icon)
		assert.Contains(t, msg.Title, "PE BUY")
	})
}

func TestPaperCloseAlert(t *testing.T) {
	msg := PaperCloseAlert(PaperCloseInput{
		Instrument: "NIFTY",
		Action:     "CE_BUY",
		Strike:     24000,
		Expiry:     "2025-08-26",
		LotSize:    50,
		Entry:      150,
		Exit:       240,
		Outcome:    "target",
		PnlPoints:  90,
		PnlRupees:  4500,
		ClosedAt:   time.Date(2025, 8, 25, 14, 0, 0, 0, time.UTC),
	})

	require.Equal(t, "✅", msg.Icon)
	out := msg.RenderHTML()
	assert.Contains(t, out, "NIFTY paper close: target")
	assert.Contains(t, out, "Entry: ₹150.00, exit: ₹240.00 (target)")
	assert.Contains(t, out, "P&amp;L: +90.00 pts = ₹4500.00")

	t.Run("loss icon", func(t *testing.T) {
		msg := PaperCloseAlert(PaperCloseInput{PnlPoints: -45})
		assert.Equal(t, "❌", msg.Icon)
	})
}

func TestDailySummary(t *testing.T) {
	msg := DailySummary(DailySummaryInput{
		Instrument:  "NIFTY",
		TradingDate: "2025-08-25",
		Signals:     3,
		Wins:        2,
		Losses:      1,
		NetPoints:   135,
		NetRupees:   6750,
		Scenarios:   []string{"put_unwinding_bull", "support_zone"},
		At:          time.Date(2025, 8, 25, 15, 31, 0, 0, time.UTC),
	})

	out := msg.RenderHTML()
	assert.Contains(t, out, "NIFTY daily summary 2025-08-25")
	assert.Contains(t, out, "Signals: 3 (W 2 / L 1 / flat 0)")
	assert.Contains(t, out, "Net: +135.00 pts = ₹6750.00")
	assert.Contains(t, out, "put_unwinding_bull, support_zone")
}

func TestStartupBanner(t *testing.T) {
	msg := StartupBanner(StartupInfo{
		Instruments:  []string{"NIFTY", "BANKNIFTY"},
		SessionOpen:  "09:15",
		SessionClose: "15:30",
		Interval:     time.Minute,
		MaxPerDay:    3,
		PaperTrading: true,
		At:           time.Date(2025, 8, 25, 9, 0, 0, 0, time.UTC),
	})

	out := msg.RenderHTML()
	assert.Contains(t, out, "OI Pulse online")
	assert.Contains(t, out, "Instruments: NIFTY, BANKNIFTY")
	assert.Contains(t, out, "Session: 09:15-15:30 IST")
	assert.Contains(t, out, "cap 3 signals/day")
	assert.Contains(t, out, "Mode: paper trading")
}
