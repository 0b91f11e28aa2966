// Package hitl implements the human-in-the-loop approval gate that sits
// between agents and sensitive actions (sending messages, spending money,
// publishing content).
package hitl

import "fmt"

// Mode is the configured policy for an (agent, action) pair.
type Mode int

const (
	// ModeApprove queues the action for a human decision. It is the
	// fail-safe default: an unconfigured controlled action always
	// requires a human.
	ModeApprove Mode = iota
	// ModeAuto lets the action proceed without a human.
	ModeAuto
	// ModeManual blocks the action entirely; a human must perform it
	// through some pathway outside the engine.
	ModeManual
)

// String returns the wire representation stored in action-mode config.
func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeManual:
		return "manual"
	default:
		return "approve"
	}
}

// ParseMode converts a stored mode string. Unknown values are an error so
// a typo in configuration can never silently downgrade to auto.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "auto":
		return ModeAuto, nil
	case "approve":
		return ModeApprove, nil
	case "manual":
		return ModeManual, nil
	}
	return ModeApprove, fmt.Errorf("unknown action mode %q", s)
}
