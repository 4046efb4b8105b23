package mailbox

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	imapUser     = "user"
	imapPassword = "pass"
)

const firstMessage = "From: Alice <alice@example.com>\r\n" +
	"Subject: Hello\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"first\r\n"

const secondMessage = "From: Bob Builder <bob@example.com>\r\n" +
	"Subject: Invoice ready\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Your invoice\r\n  is attached.\r\n"

// startIMAPServer runs an in-memory IMAP server with one user and an INBOX.
func startIMAPServer(t *testing.T) net.Listener {
	t.Helper()

	mem := imapmemserver.New()
	user := imapmemserver.NewUser(imapUser, imapPassword)
	require.NoError(t, user.Create("INBOX", nil))
	mem.AddUser(user)

	server := imapserver.New(&imapserver.Options{
		NewSession: func(*imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return mem.NewSession(), nil, nil
		},
		InsecureAuth: true,
		Caps: imap.CapSet{
			imap.CapIMAP4rev1: {},
			imap.CapIMAP4rev2: {},
		},
	})

	ln := listenLocal(t)
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { server.Close() })
	return ln
}

// appendMessage delivers raw to INBOX over a separate connection.
func appendMessage(t *testing.T, ln net.Listener, raw string) {
	t.Helper()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	c := imapclient.New(conn, nil)
	defer c.Close()

	require.NoError(t, c.Login(imapUser, imapPassword).Wait())
	cmd := c.Append("INBOX", int64(len(raw)), nil)
	_, err = cmd.Write([]byte(raw))
	require.NoError(t, err)
	require.NoError(t, cmd.Close())
	_, err = cmd.Wait()
	require.NoError(t, err)
}

func dialTestIMAP(t *testing.T, ctx context.Context, ln net.Listener) *IMAPSession {
	t.Helper()

	sess, err := DialIMAP(ctx, localAccount(t, ln, "imap"), discardLogger())
	require.NoError(t, err)
	require.NoError(t, sess.Login(imapUser, imapPassword))
	require.NoError(t, sess.SelectInbox())
	return sess
}

func TestIMAPSessionSignalsNewMailDuringIdle(t *testing.T) {
	t.Parallel()

	ln := startIMAPServer(t)
	appendMessage(t, ln, firstMessage)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess := dialTestIMAP(t, ctx, ln)

	ids, err := sess.ListIDs()
	require.NoError(t, err)
	require.Len(t, ids, 1)
	baseline := ids[0]

	require.NoError(t, sess.EnterWait())
	appendMessage(t, ln, secondMessage)

	signaled, err := sess.PollWait(ctx, 5*time.Second)
	require.NoError(t, err)
	require.True(t, signaled)

	require.NoError(t, sess.ExitWait())
	ids, err = sess.ListIDs()
	require.NoError(t, err)
	require.Len(t, ids, 2)
	latest := ids[1]
	assert.Greater(t, latest, baseline)

	sum, err := sess.FetchSummary(latest)
	require.NoError(t, err)
	assert.Equal(t, "Bob Builder <bob@example.com>", sum.From)
	assert.Equal(t, "Invoice ready", sum.Subject)
	assert.Equal(t, "Your invoice is attached.", sum.Preview)

	require.NoError(t, sess.KeepAlive())
	require.NoError(t, sess.EnterWait())
	require.NoError(t, sess.ExitWait())
	_ = sess.Close()
}

func TestIMAPSessionPollWaitTimesOut(t *testing.T) {
	t.Parallel()

	ln := startIMAPServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess := dialTestIMAP(t, ctx, ln)
	defer sess.Close()

	require.NoError(t, sess.EnterWait())
	signaled, err := sess.PollWait(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, signaled)
	require.NoError(t, sess.ExitWait())
}

func TestIMAPSessionClosedOnCancel(t *testing.T) {
	t.Parallel()

	ln := startIMAPServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	sess := dialTestIMAP(t, ctx, ln)

	require.NoError(t, sess.EnterWait())

	done := make(chan error, 1)
	go func() {
		_, err := sess.PollWait(ctx, time.Minute)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("PollWait still blocked after cancel")
	}

	closed := make(chan struct{})
	go func() {
		_ = sess.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on a cancelled session")
	}
}
