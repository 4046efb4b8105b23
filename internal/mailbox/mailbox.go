package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tracyhatemice/mailwake/internal/config"
)

// Summary is the part of a message a notification needs.
type Summary struct {
	From    string
	Subject string
	Preview string
}

// Session is one authenticated connection to a mailbox. A Session is owned by
// a single goroutine and is not safe for concurrent use. Every method may
// fail with a transport or protocol error.
type Session interface {
	// Login authenticates the connection.
	Login(identity, secret string) error
	// SelectInbox opens INBOX for reading.
	SelectInbox() error
	// ListIDs returns the ids of all messages in the inbox.
	ListIDs() ([]uint32, error)
	// EnterWait starts the server push mode (IMAP IDLE).
	EnterWait() error
	// PollWait blocks until a new-mail signal arrives, timeout elapses or
	// ctx is done. It reports whether a signal arrived.
	PollWait(ctx context.Context, timeout time.Duration) (bool, error)
	// ExitWait leaves push mode so regular commands can be issued.
	ExitWait() error
	// FetchSummary reads sender, subject and a body preview for id.
	FetchSummary(id uint32) (Summary, error)
	// KeepAlive issues a no-op round trip.
	KeepAlive() error
	// Close logs out and releases the connection.
	Close() error
}

// Dialer opens sessions. Sessions are closed when ctx is cancelled so that
// blocking calls unwind.
type Dialer interface {
	Dial(ctx context.Context, acct config.Account) (Session, error)
}

// ProtocolDialer picks the implementation matching the account protocol.
type ProtocolDialer struct {
	logger *slog.Logger
}

var _ Dialer = (*ProtocolDialer)(nil)

// NewDialer creates a ProtocolDialer.
func NewDialer(logger *slog.Logger) *ProtocolDialer {
	return &ProtocolDialer{logger: logger}
}

func (d *ProtocolDialer) Dial(ctx context.Context, acct config.Account) (Session, error) {
	switch acct.GetProtocol() {
	case "imap":
		return DialIMAP(ctx, acct, d.logger)
	case "pop3":
		return NewPOP3(ctx, acct, d.logger), nil
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", acct.Protocol)
	}
}
