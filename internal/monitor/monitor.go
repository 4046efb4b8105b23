package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tracyhatemice/mailwake/internal/config"
	"github.com/tracyhatemice/mailwake/internal/credential"
	"github.com/tracyhatemice/mailwake/internal/dedup"
	"github.com/tracyhatemice/mailwake/internal/event"
	"github.com/tracyhatemice/mailwake/internal/mailbox"
)

// Submitter receives new-mail events. The debounce aggregator implements it.
type Submitter interface {
	Submit(ev event.RawEvent)
}

// CredentialError means no secret could be found for the account. It stops
// that account's monitor for good.
type CredentialError struct {
	Identity string
	Err      error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("no credential for %s: %v", e.Identity, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// Settings are the timing knobs of a Monitor.
type Settings struct {
	IdleTimeout       time.Duration
	ReconnectInterval time.Duration
}

// Monitor watches one account's inbox and submits an event for each new
// message it notices.
type Monitor struct {
	account  config.Account
	dialer   mailbox.Dialer
	creds    credential.Resolver
	sink     Submitter
	settings Settings
	logger   *slog.Logger

	mark    dedup.HighWaterMark
	backoff *Backoff
	state   atomic.Int32

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	onState func(State)
}

// New creates a Monitor for acct.
func New(
	acct config.Account,
	dialer mailbox.Dialer,
	creds credential.Resolver,
	sink Submitter,
	settings Settings,
	logger *slog.Logger,
) *Monitor {
	if settings.IdleTimeout <= 0 {
		settings.IdleTimeout = 300 * time.Second
	}
	if settings.ReconnectInterval <= 0 {
		settings.ReconnectInterval = 900 * time.Second
	}
	return &Monitor{
		account:  acct,
		dialer:   dialer,
		creds:    creds,
		sink:     sink,
		settings: settings,
		logger:   logger.With("account", acct.Identity()),
		backoff:  NewBackoff(BackoffFloor, BackoffCeiling),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// HighWaterMark returns the last message id accounted for.
func (m *Monitor) HighWaterMark() (uint32, bool) {
	return m.mark.Value()
}

func (m *Monitor) setState(s State) {
	if State(m.state.Swap(int32(s))) == s {
		return
	}
	m.logger.Debug("state change", "state", s)
	if m.onState != nil {
		m.onState(s)
	}
}

// Run drives the connection until ctx is cancelled, reconnecting with
// backoff after any transport or protocol error. It returns nil on
// cancellation and a *CredentialError when the account has no secret.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("starting monitor",
		"host", m.account.Host,
		"protocol", m.account.GetProtocol(),
		"idle_timeout", m.settings.IdleTimeout,
	)

	for {
		err := m.connectAndWait(ctx)
		m.setState(Disconnected)

		if ctx.Err() != nil {
			m.logger.Info("monitor stopped")
			return nil
		}
		var credErr *CredentialError
		if errors.As(err, &credErr) {
			m.logger.Error("giving up on account", "error", err)
			return err
		}

		delay := m.backoff.Next()
		m.logger.Error("connection error", "error", err)
		m.logger.Info("reconnecting", "delay", delay)
		if err := m.sleep(ctx, delay); err != nil {
			m.logger.Info("monitor stopped")
			return nil
		}
	}
}

// connectAndWait runs one connection from dial to failure.
func (m *Monitor) connectAndWait(ctx context.Context) error {
	m.setState(Connecting)
	identity := m.account.Identity()

	secret, err := m.creds.Resolve(ctx, identity)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &CredentialError{Identity: identity, Err: err}
	}

	m.logger.Info("connecting", "host", m.account.Host, "port", m.account.GetPort())
	sess, err := m.dialer.Dial(ctx, m.account)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			m.logger.Debug("closing session", "error", err)
		}
	}()

	if err := sess.Login(identity, secret); err != nil {
		return err
	}
	if err := sess.SelectInbox(); err != nil {
		return err
	}
	ids, err := sess.ListIDs()
	if err != nil {
		return err
	}
	if latest, ok := dedup.Max(ids); ok {
		m.mark.Baseline(latest)
	}
	mark, _ := m.mark.Value()
	m.logger.Info("starting from id", "id", mark, "messages", len(ids))

	if err := sess.EnterWait(); err != nil {
		return err
	}
	m.backoff.Reset()
	m.setState(Waiting)
	m.logger.Info("idle monitoring active")

	return m.wait(ctx, sess)
}

// wait blocks in push mode, draining on signals and refreshing the
// connection once it has idled for the reconnect interval.
func (m *Monitor) wait(ctx context.Context, sess mailbox.Session) error {
	since := m.now()
	for {
		remaining := m.settings.ReconnectInterval - m.now().Sub(since)
		if remaining <= 0 {
			if err := m.refresh(sess); err != nil {
				return err
			}
			since = m.now()
			continue
		}

		signaled, err := sess.PollWait(ctx, min(m.settings.IdleTimeout, remaining))
		if err != nil {
			return err
		}
		if !signaled {
			continue
		}

		m.logger.Info("idle notification received")
		m.setState(Draining)
		if err := m.drain(sess); err != nil {
			return err
		}
		m.setState(Waiting)
		since = m.now()
	}
}

// drain checks for a message newer than the high-water mark. Only the
// newest message is reported per cycle; ones that arrived in between are
// covered by the mark and never reported.
func (m *Monitor) drain(sess mailbox.Session) error {
	if err := sess.ExitWait(); err != nil {
		return err
	}

	ids, err := sess.ListIDs()
	if err != nil {
		return err
	}
	if latest, ok := dedup.Max(ids); ok && m.mark.IsNew(latest) {
		sum, err := sess.FetchSummary(latest)
		if err != nil {
			return err
		}
		if m.mark.Advance(latest) {
			m.sink.Submit(event.RawEvent{
				Account:   m.account.Identity(),
				MessageID: latest,
				From:      sum.From,
				Subject:   sum.Subject,
				Preview:   event.Truncate(sum.Preview, event.PreviewLimit),
				Arrived:   m.now(),
			})
			m.logger.Info("new mail", "id", latest, "from", event.Truncate(sum.From, 50))
		}
	}

	return sess.EnterWait()
}

// refresh leaves IDLE, pings the server and idles again so a silently dead
// connection surfaces as an error.
func (m *Monitor) refresh(sess mailbox.Session) error {
	m.logger.Info("periodic refresh")
	if err := sess.ExitWait(); err != nil {
		return err
	}
	if err := sess.KeepAlive(); err != nil {
		return err
	}
	return sess.EnterWait()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
