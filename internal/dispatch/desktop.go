package dispatch

import (
	"context"
	"fmt"
	"strings"

	notifyd "github.com/TheCreeper/go-notify"

	"github.com/tracyhatemice/mailwake/internal/notify"
)

const appName = "mailwake"

// Desktop shows notifications on the freedesktop notification daemon.
type Desktop struct {
	icon    string
	timeout int32 // milliseconds
}

var _ Sink = (*Desktop)(nil)

// NewDesktop creates a Desktop sink.
func NewDesktop() *Desktop {
	return &Desktop{icon: "mail-unread", timeout: 10000}
}

func (d *Desktop) Name() string { return "desktop" }

func (d *Desktop) Send(ctx context.Context, n notify.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	summary, body, _ := strings.Cut(n.Text, "\n")

	ntf := notifyd.NewNotification(summary, strings.TrimSpace(body))
	ntf.AppName = appName
	ntf.AppIcon = d.icon
	ntf.Timeout = d.timeout
	if n.Mode == notify.ModeNow {
		ntf.Timeout = notifyd.ExpiresNever
	}
	if _, err := ntf.Show(); err != nil {
		return fmt.Errorf("show desktop notification: %w", err)
	}
	return nil
}
