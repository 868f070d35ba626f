package telegram

import "sync/atomic"

// Switch is the operator's master trading toggle. The decision loop
// reads it every cycle; the command bot and the HTTP API flip it.
type Switch struct {
	enabled atomic.Bool
}

func NewSwitch(initial bool) *Switch {
	s := &Switch{}
	s.enabled.Store(initial)
	return s
}

func (s *Switch) Enable()  { s.enabled.Store(true) }
func (s *Switch) Disable() { s.enabled.Store(false) }

func (s *Switch) Enabled() bool { return s.enabled.Load() }
