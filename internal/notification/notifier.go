package notification

// Notifier delivers short operator-facing messages about trading
// events. Implementations are best-effort: delivery failures are
// reported but never block the decision loop.
type Notifier interface {
	Notify(text string) error
}

// Nop discards every message. Used when Telegram is not configured.
type Nop struct{}

func (Nop) Notify(string) error { return nil }
