package mailbox

import "time"

// Profile captures a provider's quirks so one Session implementation can
// serve both mail hosts the pipeline watches.
type Profile struct {
	// Provider names the upstream in logs and dedup keys ("mailru",
	// "generic").
	Provider string

	// PreferIdle makes the session try IMAP IDLE before falling back to
	// polling at PollInterval.
	PreferIdle   bool
	PollInterval time.Duration

	// KeepAlive bounds how long a single IDLE command is allowed to sit
	// before being cycled, so broken connections surface.
	KeepAlive time.Duration

	// InitialWindow is how far back the first unseen-search after a mailbox
	// open reaches. Subsequent searches take all unseen mail.
	InitialWindow time.Duration

	Backoff Backoff
}

// MailRuProfile returns the tuned profile for mail.ru mailboxes: IDLE first,
// tight 10s polling fallback, a short initial window, five reconnect
// attempts.
func MailRuProfile() Profile {
	return Profile{
		Provider:      "mailru",
		PreferIdle:    true,
		PollInterval:  10 * time.Second,
		KeepAlive:     5 * time.Minute,
		InitialWindow: 10 * time.Minute,
		Backoff: Backoff{
			Base:        30 * time.Second,
			Cap:         5 * time.Minute,
			MaxAttempts: 5,
			Cooldown:    5 * time.Minute,
		},
	}
}

// GenericProfile returns the conservative profile for arbitrary IMAP hosts:
// pure 30s polling, an unseen-since-yesterday initial window, three
// reconnect attempts with a fixed 30s delay.
func GenericProfile() Profile {
	return Profile{
		Provider:      "generic",
		PreferIdle:    false,
		PollInterval:  30 * time.Second,
		KeepAlive:     5 * time.Minute,
		InitialWindow: 24 * time.Hour,
		Backoff: Backoff{
			Base:        30 * time.Second,
			Cap:         30 * time.Second,
			MaxAttempts: 3,
			Cooldown:    5 * time.Minute,
		},
	}
}
