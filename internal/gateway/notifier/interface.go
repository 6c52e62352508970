package notifier

// TextNotifier defines a minimal text notification interface.
// It is intentionally small so different components can depend on it without
// importing concrete implementations (e.g. Telegram).
type TextNotifier interface {
	SendText(text string) error
}

// Nop 丢弃所有通知，供未配置推送渠道时占位。
type Nop struct{}

func (Nop) SendText(string) error { return nil }
