package mailbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RawMessage is one fetched mail: the sequence number needed to flag it and
// the full RFC 5322 literal.
type RawMessage struct {
	SeqNum uint32
	Body   []byte
}

// Conn is the narrow IMAP surface the session state machine drives. A real
// connection wraps go-imap; tests substitute a fake.
type Conn interface {
	// Select opens the mailbox read-write so seen flags can be stored.
	Select(ctx context.Context, mailbox string) error
	// SupportsIdle reports whether the server advertises the IDLE capability.
	SupportsIdle() bool
	// SearchUnseen returns sequence numbers of unseen messages received
	// after since, ascending. A zero since means all unseen.
	SearchUnseen(ctx context.Context, since time.Time) ([]uint32, error)
	// Fetch retrieves full message bodies for the given sequence numbers.
	Fetch(ctx context.Context, seqs []uint32) ([]RawMessage, error)
	// AddSeen stores the \Seen flag on one message.
	AddSeen(ctx context.Context, seq uint32) error
	// Idle blocks until the server pushes a mailbox update, the keepalive
	// window elapses, or ctx is done. A nil return means "wake and search".
	Idle(ctx context.Context, keepAlive time.Duration) error
	// Logout closes the connection.
	Logout() error
}

// Dialer establishes a fresh Conn. Called on every (re)connect.
type Dialer func(ctx context.Context) (Conn, error)

// Handler processes one fetched message. A nil return lets the session flag
// the message seen; any error leaves it unseen for the next cycle.
type Handler func(ctx context.Context, raw RawMessage) error

// Session owns one mailbox connection lifecycle. All mutable session state
// lives on the struct, so several sessions can run side by side and one can
// be unit-tested in isolation.
type Session struct {
	profile Profile
	mailbox string
	dial    Dialer
	handle  Handler
	log     zerolog.Logger

	// processing coalesces overlapping wake-ups: one fetch/process cycle per
	// session at a time.
	processing sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}

	// now is swapped in tests.
	now func() time.Time
	// sleep is swapped in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSession builds a session for one mailbox. The mailbox name defaults to
// INBOX.
func NewSession(profile Profile, mailbox string, dial Dialer, handle Handler) *Session {
	if mailbox == "" {
		mailbox = "INBOX"
	}
	return &Session{
		profile: profile,
		mailbox: mailbox,
		dial:    dial,
		handle:  handle,
		log:     log.With().Str("component", "mailbox").Str("provider", profile.Provider).Logger(),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Start launches the session loop in its own goroutine.
func (s *Session) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.run(runCtx)
	}()
}

// Stop cancels the loop and waits for it to exit or ctx to expire.
func (s *Session) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the outer reconnect loop: dial, watch, and on failure back off
// linearly until the attempt budget is spent, then cool down and start over.
func (s *Session) run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dial(ctx)
		if err == nil {
			err = conn.Select(ctx, s.mailbox)
			if err != nil {
				_ = conn.Logout()
			}
		}
		if err != nil {
			attempt++
			if s.profile.Backoff.Exhausted(attempt) {
				s.log.Error().Err(err).Int("attempts", attempt).
					Dur("cooldown", s.profile.Backoff.Cooldown).
					Msg("reconnect budget spent, cooling down")
				if s.sleep(ctx, s.profile.Backoff.Cooldown) != nil {
					return
				}
				attempt = 0
				continue
			}
			delay := s.profile.Backoff.Delay(attempt)
			s.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).
				Msg("connect failed, backing off")
			if s.sleep(ctx, delay) != nil {
				return
			}
			continue
		}

		attempt = 0
		s.log.Info().Str("mailbox", s.mailbox).Msg("mailbox open")

		err = s.watch(ctx, conn)
		_ = conn.Logout()
		if ctx.Err() != nil {
			return
		}
		s.log.Warn().Err(err).Msg("session interrupted, reconnecting")
		attempt = 1
		if s.sleep(ctx, s.profile.Backoff.Delay(attempt)) != nil {
			return
		}
	}
}

// watch runs the waiting/processing cycle on one live connection. It returns
// when the connection errors or ctx is done.
func (s *Session) watch(ctx context.Context, conn Conn) error {
	since := s.now().Add(-s.profile.InitialWindow)

	// Immediate first check before any idle wait or timer tick.
	if err := s.process(ctx, conn, since); err != nil {
		return err
	}
	since = time.Time{}

	useIdle := s.profile.PreferIdle && conn.SupportsIdle()
	if s.profile.PreferIdle && !useIdle {
		s.log.Warn().Msg("server lacks IDLE, polling instead")
	}

	if useIdle {
		for {
			if err := conn.Idle(ctx, s.profile.KeepAlive); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
			if err := s.process(ctx, conn, time.Time{}); err != nil {
				return err
			}
		}
	}

	ticker := time.NewTicker(s.profile.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.process(ctx, conn, time.Time{}); err != nil {
				return err
			}
		}
	}
}

// process runs one search/fetch/handle cycle. Handler failures and per
// message parse trouble are isolated: the message stays unseen and the cycle
// moves on. Only transport errors propagate.
func (s *Session) process(ctx context.Context, conn Conn, since time.Time) error {
	if !s.processing.TryLock() {
		// A cycle is already in flight; its next search picks the mail up.
		return nil
	}
	defer s.processing.Unlock()

	seqs, err := conn.SearchUnseen(ctx, since)
	if err != nil {
		return err
	}
	if len(seqs) == 0 {
		return nil
	}

	msgs, err := conn.Fetch(ctx, seqs)
	if err != nil {
		return err
	}

	for _, m := range msgs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.handle(ctx, m); err != nil {
			s.log.Error().Err(err).Uint32("seq", m.SeqNum).
				Msg("message handling failed, leaving unseen")
			continue
		}
		if err := conn.AddSeen(ctx, m.SeqNum); err != nil {
			if isTransport(err) {
				return err
			}
			s.log.Warn().Err(err).Uint32("seq", m.SeqNum).Msg("store seen flag failed")
		}
	}
	return nil
}

// errTransport marks connection-level failures that must trigger reconnect.
var errTransport = errors.New("transport")

// TransportError wraps err so the session treats it as a connection failure.
func TransportError(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(errTransport, err)
}

func isTransport(err error) bool {
	return errors.Is(err, errTransport)
}
