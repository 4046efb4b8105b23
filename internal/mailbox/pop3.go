package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	pop3client "github.com/knadh/go-pop3"

	"github.com/tracyhatemice/mailwake/internal/config"
)

// POP3Session emulates push mode for servers that only speak POP3. A POP3
// maildrop is snapshotted per connection, so every operation opens a short
// lived connection and PollWait checks the message count on an interval.
// Message numbers serve as ids; they only grow while nothing is deleted.
// Connections are closed when the session's ctx is cancelled.
type POP3Session struct {
	client       *pop3client.Client
	dialer       *ctxDialer
	host         string
	pollInterval time.Duration
	logger       *slog.Logger

	username string
	password string
	count    int
}

var _ Session = (*POP3Session)(nil)

// NewPOP3 creates a POP3 session for acct. No connection is made until Login.
func NewPOP3(ctx context.Context, acct config.Account, logger *slog.Logger) *POP3Session {
	dialer := &ctxDialer{ctx: ctx}
	return &POP3Session{
		client: pop3client.New(pop3client.Opt{
			Host:       acct.Host,
			Port:       acct.GetPort(),
			TLSEnabled: acct.Secure(),
			Dialer:     dialer,
		}),
		dialer:       dialer,
		host:         acct.Host,
		pollInterval: acct.PollInterval(),
		logger:       logger,
	}
}

func (s *POP3Session) withConn(fn func(*pop3client.Conn) error) error {
	conn, err := s.client.NewConn()
	defer s.dialer.release()
	if err != nil {
		return fmt.Errorf("pop3 connect %s: %w", s.host, err)
	}
	defer conn.Quit()

	if err := conn.Auth(s.username, s.password); err != nil {
		return fmt.Errorf("pop3 auth %s: %w", s.username, err)
	}
	if fn == nil {
		return nil
	}
	return fn(conn)
}

func (s *POP3Session) stat() (int, error) {
	var count int
	err := s.withConn(func(conn *pop3client.Conn) error {
		n, _, err := conn.Stat()
		if err != nil {
			return fmt.Errorf("pop3 stat: %w", err)
		}
		count = n
		return nil
	})
	return count, err
}

func (s *POP3Session) Login(identity, secret string) error {
	s.username = identity
	s.password = secret
	return s.withConn(nil)
}

// SelectInbox is a no-op; a POP3 maildrop is the inbox.
func (s *POP3Session) SelectInbox() error { return nil }

func (s *POP3Session) ListIDs() ([]uint32, error) {
	n, err := s.stat()
	if err != nil {
		return nil, err
	}
	s.count = n
	ids := make([]uint32, n)
	for i := range ids {
		ids[i] = uint32(i + 1)
	}
	return ids, nil
}

func (s *POP3Session) EnterWait() error { return nil }

func (s *POP3Session) PollWait(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		wait := min(time.Until(deadline), s.pollInterval)
		if wait <= 0 {
			return false, nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}

		n, err := s.stat()
		if err != nil {
			return false, err
		}
		if n > s.count {
			s.logger.Debug("pop3 maildrop grew", "account", s.username, "count", n)
			return true, nil
		}
		s.count = n
	}
}

func (s *POP3Session) ExitWait() error { return nil }

func (s *POP3Session) FetchSummary(id uint32) (Summary, error) {
	var sum Summary
	err := s.withConn(func(conn *pop3client.Conn) error {
		raw, err := conn.RetrRaw(int(id))
		if err != nil {
			return fmt.Errorf("pop3 retrieve %d: %w", id, err)
		}
		sum = ParseMessage(raw.Bytes())
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return sum.withDefaults(), nil
}

func (s *POP3Session) KeepAlive() error {
	return s.withConn(func(conn *pop3client.Conn) error {
		if err := conn.Noop(); err != nil {
			return fmt.Errorf("pop3 noop: %w", err)
		}
		return nil
	})
}

func (s *POP3Session) Close() error {
	s.dialer.release()
	return nil
}

// ctxDialer ties each connection to ctx, so a read blocked on a silent
// server fails once ctx is cancelled.
type ctxDialer struct {
	ctx  context.Context
	conn net.Conn
}

func (d *ctxDialer) Dial(network, addr string) (net.Conn, error) {
	conn, err := (&net.Dialer{Timeout: dialTimeout}).DialContext(d.ctx, network, addr)
	if err != nil {
		return nil, err
	}
	w := &watchedConn{Conn: conn}
	stop := context.AfterFunc(d.ctx, func() { _ = w.Close() })
	w.mu.Lock()
	w.stop = stop
	w.mu.Unlock()
	d.conn = w
	return w, nil
}

// release closes the last dialed connection. go-pop3 leaves it open when
// the greeting or QUIT fails.
func (d *ctxDialer) release() {
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}
}

type watchedConn struct {
	net.Conn

	mu     sync.Mutex
	stop   func() bool
	closed bool
}

func (c *watchedConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.stop != nil {
		c.stop()
	}
	return c.Conn.Close()
}
