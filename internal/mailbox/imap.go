package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/tracyhatemice/mailwake/internal/config"
)

const (
	dialTimeout = 30 * time.Second
	// fetchLimit bounds how much of a message is downloaded for a preview.
	fetchLimit = 64 * 1024
)

var errIdleEnded = errors.New("server ended IDLE")

// IMAPSession is a Session over IMAP using IDLE as push mode.
type IMAPSession struct {
	client  *imapclient.Client
	logger  *slog.Logger
	signals chan struct{}
	unwatch func() bool

	idle    *imapclient.IdleCommand
	idleErr chan error
}

var _ Session = (*IMAPSession)(nil)

// DialIMAP connects to the account's IMAP server. The connection is torn down
// when ctx is cancelled.
func DialIMAP(ctx context.Context, acct config.Account, logger *slog.Logger) (*IMAPSession, error) {
	addr := net.JoinHostPort(acct.Host, strconv.Itoa(acct.GetPort()))

	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("imap connect %s: %w", addr, err)
	}
	if acct.Secure() {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: acct.Host})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("imap tls handshake %s: %w", addr, err)
		}
		conn = tlsConn
	}

	s := &IMAPSession{
		logger:  logger,
		signals: make(chan struct{}, 1),
	}
	s.client = imapclient.New(conn, &imapclient.Options{
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages != nil {
					s.notify()
				}
			},
		},
	})
	s.unwatch = context.AfterFunc(ctx, func() {
		_ = s.client.Close()
	})
	return s, nil
}

// notify records a pending signal without blocking the client's reader.
func (s *IMAPSession) notify() {
	select {
	case s.signals <- struct{}{}:
	default:
	}
}

func (s *IMAPSession) Login(identity, secret string) error {
	if err := s.client.Login(identity, secret).Wait(); err != nil {
		return fmt.Errorf("imap login %s: %w", identity, err)
	}
	return nil
}

func (s *IMAPSession) SelectInbox() error {
	if _, err := s.client.Select("INBOX", nil).Wait(); err != nil {
		return fmt.Errorf("imap select INBOX: %w", err)
	}
	return nil
}

func (s *IMAPSession) ListIDs() ([]uint32, error) {
	data, err := s.client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	uids := data.AllUIDs()
	ids := make([]uint32, len(uids))
	for i, uid := range uids {
		ids[i] = uint32(uid)
	}
	return ids, nil
}

func (s *IMAPSession) EnterWait() error {
	if s.idle != nil {
		return nil
	}
	idle, err := s.client.Idle()
	if err != nil {
		return fmt.Errorf("imap idle: %w", err)
	}
	done := make(chan error, 1)
	go func() { done <- idle.Wait() }()
	s.idle = idle
	s.idleErr = done
	return nil
}

func (s *IMAPSession) PollWait(ctx context.Context, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-s.signals:
		return true, nil
	case err := <-s.idleErr:
		s.idle = nil
		if err == nil {
			err = errIdleEnded
		}
		return false, fmt.Errorf("imap idle: %w", err)
	case <-timer.C:
		return false, nil
	}
}

func (s *IMAPSession) ExitWait() error {
	if s.idle == nil {
		return nil
	}
	idle := s.idle
	s.idle = nil
	if err := idle.Close(); err != nil {
		return fmt.Errorf("imap idle done: %w", err)
	}
	if err := <-s.idleErr; err != nil {
		return fmt.Errorf("imap idle done: %w", err)
	}
	return nil
}

func (s *IMAPSession) FetchSummary(id uint32) (Summary, error) {
	section := &imap.FetchItemBodySection{
		Peek:    true,
		Partial: &imap.SectionPartial{Offset: 0, Size: fetchLimit},
	}
	options := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}

	buffers, err := s.client.Fetch(imap.UIDSetNum(imap.UID(id)), options).Collect()
	if err != nil {
		return Summary{}, fmt.Errorf("imap fetch %d: %w", id, err)
	}
	if len(buffers) == 0 {
		return Summary{}, fmt.Errorf("imap fetch %d: message not found", id)
	}
	buf := buffers[0]

	sum := ParseMessage(buf.FindBodySection(section))
	if env := buf.Envelope; env != nil {
		if len(env.From) > 0 {
			sum.From = formatAddress(env.From[0].Name, env.From[0].Addr())
		}
		if env.Subject != "" {
			sum.Subject = env.Subject
		}
	}
	return sum.withDefaults(), nil
}

func (s *IMAPSession) KeepAlive() error {
	if err := s.client.Noop().Wait(); err != nil {
		return fmt.Errorf("imap noop: %w", err)
	}
	return nil
}

func (s *IMAPSession) Close() error {
	s.unwatch()
	if err := s.ExitWait(); err != nil {
		s.logger.Debug("leaving idle on close", "error", err)
	}
	if err := s.client.Logout().Wait(); err != nil {
		s.logger.Debug("imap logout", "error", err)
	}
	if err := s.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
