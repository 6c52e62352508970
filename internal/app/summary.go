package app

import (
	"fmt"
	"strings"
	"time"

	"oipulse/internal/market"
)

// StartupSummary 汇总启动时生效的配置，启动后打印一次。
type StartupSummary struct {
	Session     SessionSummary
	Instruments []market.Instrument
	Signals     SignalSummary
	Storage     StorageSummary
	Telegram    bool
	Paper       bool
	HTTPAddr    string
}

type SessionSummary struct {
	Timezone string
	Open     string
	Close    string
	Interval time.Duration
}

type SignalSummary struct {
	MaxPerDay           int
	MinConfidence       int
	ExpiryMinConfidence int
	Cooldown            time.Duration
}

type StorageSummary struct {
	LedgerPath  string
	ArchivePath string
	ReportDir   string
	ReportPNG   bool
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[交易时段 (SESSION)]")
	fmt.Printf("  时区: %s\n", s.Session.Timezone)
	fmt.Printf("  开收盘: %s - %s\n", s.Session.Open, s.Session.Close)
	fmt.Printf("  轮询间隔: %s\n", s.Session.Interval)
	fmt.Println()

	fmt.Println("[标的 (INSTRUMENTS)]")
	if len(s.Instruments) == 0 {
		fmt.Println("  (无配置)")
	}
	for _, inst := range s.Instruments {
		fmt.Printf("  > %s lot=%d gap=%.0f expiry=%s atm±%d\n",
			inst.Name, inst.LotSize, inst.StrikeGap, inst.Weekday(), inst.StrikesAroundATM)
	}
	fmt.Println()

	fmt.Println("[信号闸门 (SIGNAL GATE)]")
	fmt.Printf("  每日上限: %d\n", s.Signals.MaxPerDay)
	fmt.Printf("  置信度下限: %d (到期日 %d)\n", s.Signals.MinConfidence, s.Signals.ExpiryMinConfidence)
	fmt.Printf("  冷却间隔: %s\n", s.Signals.Cooldown)
	fmt.Println()

	fmt.Println("[存储 (STORAGE)]")
	fmt.Printf("  信号台账: %s\n", s.Storage.LedgerPath)
	fmt.Printf("  期权链归档: %s\n", s.Storage.ArchivePath)
	fmt.Printf("  日报目录: %s (png=%v)\n", s.Storage.ReportDir, s.Storage.ReportPNG)
	fmt.Println()

	fmt.Println("[通道 (CHANNELS)]")
	fmt.Printf("  Telegram: %v\n", s.Telegram)
	fmt.Printf("  纸面交易: %v\n", s.Paper)
	if s.HTTPAddr != "" {
		fmt.Printf("  状态接口: %s\n", s.HTTPAddr)
	} else {
		fmt.Println("  状态接口: 关闭")
	}
	fmt.Println(strings.Repeat("=", 80))
}
