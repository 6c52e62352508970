package notifier

import (
	"fmt"
	"strings"
	"time"

	"oipulse/internal/pkg/format"
	"oipulse/internal/signal"
)

// SignalAlert 把一条放行信号渲染成推送消息。
func SignalAlert(sig signal.Signal) StructuredMessage {
	kind := "CE"
	icon := "🟢"
	if sig.Action == signal.ActionPEBuy {
		kind = "PE"
		icon = "🔴"
	}
	ind := sig.Scenario.Indicators

	trade := []string{
		fmt.Sprintf("Strike: %.0f %s x %d (expiry %s)", sig.Strike, kind, sig.LotSize, sig.Expiry),
		"Entry: " + format.Rupees(sig.Risk.Entry),
		fmt.Sprintf("Stop: %s / Target: %s (RR %.2f)",
			format.Rupees(sig.Risk.StopLoss), format.Rupees(sig.Risk.Target), sig.Risk.RiskReward),
	}
	scenario := append([]string{
		fmt.Sprintf("%s, confidence %d", sig.Scenario.Label, sig.Scenario.Confidence),
	}, sig.Scenario.Reasons...)
	chainLines := []string{
		"Call OI change: " + format.SignedOI(ind.CallOiDelta),
		"Put OI change: " + format.SignedOI(ind.PutOiDelta),
		fmt.Sprintf("PCR: %.2f, direction %s", ind.Pcr, strings.ToLower(string(ind.PriceDirection))),
		fmt.Sprintf("Spot: %.2f vs VWAP: %.2f", ind.Spot, ind.Vwap),
	}

	return StructuredMessage{
		Icon:  icon,
		Title: fmt.Sprintf("%s %.0f %s BUY", sig.Instrument, sig.Strike, kind),
		Sections: []MessageSection{
			{Title: "Trade", Lines: trade},
			{Title: "Scenario", Lines: scenario},
			{Title: "Option Chain", Lines: chainLines},
		},
		Footer:    "Paper signal. Not investment advice.",
		Timestamp: sig.CreatedAt,
	}
}

// StartupInfo 汇总启动横幅需要的运行参数。
type StartupInfo struct {
	Instruments  []string
	SessionOpen  string
	SessionClose string
	Interval     time.Duration
	MaxPerDay    int
	PaperTrading bool
	At           time.Time
}

// StartupBanner 渲染启动横幅。
func StartupBanner(info StartupInfo) StructuredMessage {
	mode := "signals only"
	if info.PaperTrading {
		mode = "paper trading"
	}
	lines := []string{
		"Instruments: " + strings.Join(info.Instruments, ", "),
		fmt.Sprintf("Session: %s-%s IST", info.SessionOpen, info.SessionClose),
		fmt.Sprintf("Scan: every %s, cap %d signals/day", info.Interval, info.MaxPerDay),
		"Mode: " + mode,
	}
	return StructuredMessage{
		Icon:      "📟",
		Title:     "OI Pulse online",
		Sections:  []MessageSection{{Title: "Setup", Lines: lines}},
		Timestamp: info.At,
	}
}

// PaperCloseInput 汇总一笔纸面平仓的推送字段。
type PaperCloseInput struct {
	Instrument string
	Action     string
	Strike     float64
	Expiry     string
	LotSize    int
	Entry      float64
	Exit       float64
	Outcome    string
	PnlPoints  float64
	PnlRupees  float64
	ClosedAt   time.Time
}

// PaperCloseAlert 渲染纸面平仓通知。
func PaperCloseAlert(in PaperCloseInput) StructuredMessage {
	icon := "➖"
	if in.PnlPoints > 0 {
		icon = "✅"
	} else if in.PnlPoints < 0 {
		icon = "❌"
	}
	kind := "CE"
	if strings.HasPrefix(in.Action, "PE") {
		kind = "PE"
	}
	lines := []string{
		fmt.Sprintf("Strike: %.0f %s x %d (expiry %s)", in.Strike, kind, in.LotSize, in.Expiry),
		fmt.Sprintf("Entry: %s, exit: %s (%s)", format.Rupees(in.Entry), format.Rupees(in.Exit), in.Outcome),
		fmt.Sprintf("P&L: %s = %s", format.Points(in.PnlPoints), format.Rupees(in.PnlRupees)),
	}
	return StructuredMessage{
		Icon:      icon,
		Title:     fmt.Sprintf("%s paper close: %s", in.Instrument, in.Outcome),
		Sections:  []MessageSection{{Title: "Result", Lines: lines}},
		Timestamp: in.ClosedAt,
	}
}

// DailySummaryInput 汇总日终推送字段。
type DailySummaryInput struct {
	Instrument  string
	TradingDate string
	Signals     int
	Wins        int
	Losses      int
	Flat        int
	NetPoints   float64
	NetRupees   float64
	Scenarios   []string
	At          time.Time
}

// DailySummary 渲染日终汇总。
func DailySummary(in DailySummaryInput) StructuredMessage {
	lines := []string{
		fmt.Sprintf("Signals: %d (W %d / L %d / flat %d)", in.Signals, in.Wins, in.Losses, in.Flat),
		fmt.Sprintf("Net: %s = %s", format.Points(in.NetPoints), format.Rupees(in.NetRupees)),
	}
	if len(in.Scenarios) > 0 {
		lines = append(lines, "Scenarios: "+strings.Join(in.Scenarios, ", "))
	}
	title := "Daily summary " + in.TradingDate
	if in.Instrument != "" {
		title = in.Instrument + " daily summary " + in.TradingDate
	}
	return StructuredMessage{
		Icon:      "📊",
		Title:     title,
		Sections:  []MessageSection{{Title: "Session", Lines: lines}},
		Timestamp: in.At,
	}
}

// ErrorNote 渲染运行异常提醒。
func ErrorNote(component, detail string, at time.Time) StructuredMessage {
	return StructuredMessage{
		Icon:      "⚠️",
		Title:     "OI Pulse error",
		Sections:  []MessageSection{{Title: component, Lines: []string{detail}}},
		Timestamp: at,
	}
}
