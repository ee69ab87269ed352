package mailbox

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// DialConfig holds the IMAP endpoint credentials.
type DialConfig struct {
	Host     string
	Port     int
	TLS      bool
	User     string
	Password string
}

// imapConn adapts a go-imap client to the Conn interface.
type imapConn struct {
	client  *imapclient.Client
	updates chan struct{}
}

// NewDialer returns a Dialer that connects and authenticates against cfg.
func NewDialer(cfg DialConfig) Dialer {
	return func(ctx context.Context) (Conn, error) {
		return dialIMAP(ctx, cfg)
	}
}

func dialIMAP(_ context.Context, cfg DialConfig) (Conn, error) {
	c := &imapConn{updates: make(chan struct{}, 1)}

	opts := &imapclient.Options{
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(_ *imapclient.UnilateralDataMailbox) {
				select {
				case c.updates <- struct{}{}:
				default:
				}
			},
		},
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	var (
		cl  *imapclient.Client
		err error
	)
	if cfg.TLS {
		cl, err = imapclient.DialTLS(addr, opts)
	} else {
		cl, err = imapclient.DialInsecure(addr, opts)
	}
	if err != nil {
		return nil, TransportError(err)
	}
	if err := cl.Login(cfg.User, cfg.Password).Wait(); err != nil {
		_ = cl.Logout().Wait()
		return nil, TransportError(fmt.Errorf("login: %w", err))
	}
	c.client = cl
	return c, nil
}

func (c *imapConn) Select(_ context.Context, mailbox string) error {
	// Read-write select: the session stores \Seen flags after processing.
	_, err := c.client.Select(mailbox, &imap.SelectOptions{ReadOnly: false}).Wait()
	if err != nil {
		return TransportError(fmt.Errorf("select %s: %w", mailbox, err))
	}
	return nil
}

func (c *imapConn) SupportsIdle() bool {
	caps, err := c.client.Capability().Wait()
	if err != nil {
		return false
	}
	return caps.Has(imap.CapIdle)
}

func (c *imapConn) SearchUnseen(_ context.Context, since time.Time) ([]uint32, error) {
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	if !since.IsZero() {
		criteria.Since = since
	}
	data, err := c.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, TransportError(fmt.Errorf("search unseen: %w", err))
	}
	uids := data.AllUIDs()
	out := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		out = append(out, uint32(uid))
	}
	return out, nil
}

func (c *imapConn) Fetch(_ context.Context, seqs []uint32) ([]RawMessage, error) {
	uids := make([]imap.UID, 0, len(seqs))
	for _, s := range seqs {
		uids = append(uids, imap.UID(s))
	}
	fetchSet := imap.UIDSetNum(uids...)
	bodySection := &imap.FetchItemBodySection{}
	cmd := c.client.Fetch(fetchSet, &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer cmd.Close()

	var out []RawMessage
	for {
		msg := cmd.Next()
		if msg == nil {
			break
		}
		var (
			uid  imap.UID
			body []byte
		)
		for {
			item := msg.Next()
			if item == nil {
				break
			}
			switch it := item.(type) {
			case imapclient.FetchItemDataUID:
				uid = it.UID
			case imapclient.FetchItemDataBodySection:
				// The literal must be drained immediately or the client
				// parser stalls on the next item.
				if it.Literal == nil {
					continue
				}
				b, err := io.ReadAll(it.Literal)
				if err != nil {
					continue
				}
				body = b
			}
		}
		if uid == 0 || len(body) == 0 {
			continue
		}
		out = append(out, RawMessage{SeqNum: uint32(uid), Body: body})
	}
	if err := cmd.Close(); err != nil {
		return out, TransportError(fmt.Errorf("fetch: %w", err))
	}
	return out, nil
}

func (c *imapConn) AddSeen(_ context.Context, seq uint32) error {
	set := imap.UIDSetNum(imap.UID(seq))
	cmd := c.client.Store(set, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Flags:  []imap.Flag{imap.FlagSeen},
		Silent: true,
	}, nil)
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("store seen: %w", err)
	}
	return nil
}

// Idle issues an IDLE command and waits for a server push, the keepalive
// deadline, or cancellation. Waking on keepalive reissues IDLE on the next
// loop turn, which doubles as a liveness probe.
func (c *imapConn) Idle(ctx context.Context, keepAlive time.Duration) error {
	if c.client.State() != imap.ConnStateSelected {
		return TransportError(fmt.Errorf("connection not in selected state"))
	}
	idleCmd, err := c.client.Idle()
	if err != nil {
		return TransportError(fmt.Errorf("idle: %w", err))
	}

	done := make(chan error, 1)
	go func() { done <- idleCmd.Wait() }()

	keep := time.NewTimer(keepAlive)
	defer keep.Stop()

	select {
	case <-ctx.Done():
		_ = idleCmd.Close()
		<-done
		return ctx.Err()
	case <-c.updates:
		_ = idleCmd.Close()
		if err := <-done; err != nil {
			return TransportError(fmt.Errorf("idle ended: %w", err))
		}
		return nil
	case <-keep.C:
		_ = idleCmd.Close()
		if err := <-done; err != nil {
			return TransportError(fmt.Errorf("idle keepalive: %w", err))
		}
		return nil
	case err := <-done:
		if err != nil {
			return TransportError(fmt.Errorf("idle ended: %w", err))
		}
		return nil
	}
}

func (c *imapConn) Logout() error {
	return c.client.Logout().Wait()
}
