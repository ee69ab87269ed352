// Package mailbox runs IMAP mailbox sessions: a per-mailbox state machine
// that connects, watches for new mail via IDLE or timed polling, hands raw
// messages to a processing callback, and flags them seen only when the
// callback succeeds. Reconnects follow a bounded linear backoff with a long
// cooldown once the attempt budget is spent.
package mailbox

import "time"

// Backoff is the reconnect policy: delay grows linearly with the attempt
// number up to Cap; after MaxAttempts failures the session idles for Cooldown
// and the counter resets.
type Backoff struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
	Cooldown    time.Duration
}

// Delay returns the wait before reconnect attempt k (1-based):
// min(Base*k, Cap). Attempt numbers below 1 are treated as 1.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base * time.Duration(attempt)
	if d > b.Cap {
		return b.Cap
	}
	return d
}

// Exhausted reports whether the attempt counter has spent the budget.
func (b Backoff) Exhausted(attempt int) bool {
	return attempt >= b.MaxAttempts
}
