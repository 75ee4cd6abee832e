package engine

import (
	"time"
)

// Mode is the invocation variant, selected once at startup. Each mode maps
// to a distinct run profile rather than branching inside the engine.
type Mode int

const (
	// ModeInteractive runs on the local terminal and prints fetched data.
	ModeInteractive Mode = iota
	// ModeBotUpdate fetches and notifies over the bot transport, no API.
	ModeBotUpdate
	// ModeAPISync fetches and posts to the external REST API.
	ModeAPISync
	// ModeBotTest only checks bot connectivity.
	ModeBotTest
)

func (m Mode) String() string {
	switch m {
	case ModeInteractive:
		return "interactive"
	case ModeBotUpdate:
		return "update-bot"
	case ModeAPISync:
		return "update-api"
	case ModeBotTest:
		return "test-bot"
	}
	return "unknown"
}

// Default look-back windows per mode.
const (
	InteractiveLookbackDays = 100
	BotLookbackDays         = 30
)

// Profile fixes the per-mode behavior of one run: fetch window, balance
// forwarding policy, and what the notify step still has to say.
type Profile struct {
	Mode Mode

	// StartDate bounds the fetch window explicitly; when zero,
	// LookbackDays counts back from today.
	StartDate    time.Time
	LookbackDays int

	// ForwardBalanceAlways posts the balance once per run even when it
	// did not change (the API sink is idempotent on identical
	// balance/date pairs). When false the balance is only forwarded on
	// change.
	ForwardBalanceAlways bool

	// NotifyDetails includes per-transaction lines in the summary
	// notification. Off when a bot forwarder already delivered them.
	NotifyDetails bool
}

// Since resolves the start of the fetch window.
func (p Profile) Since(now time.Time) time.Time {
	if !p.StartDate.IsZero() {
		return p.StartDate
	}
	days := p.LookbackDays
	if days <= 0 {
		days = BotLookbackDays
	}
	return now.AddDate(0, 0, -days)
}
