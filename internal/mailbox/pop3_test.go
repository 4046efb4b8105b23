package mailbox

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracyhatemice/mailwake/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func listenLocal(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln
}

func localAccount(t *testing.T, ln net.Listener, protocol string) config.Account {
	t.Helper()
	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	insecure := false
	return config.Account{
		Protocol: protocol,
		Host:     host,
		Port:     p,
		Username: "user",
		UseTLS:   &insecure,
	}
}

// serveSilent accepts connections and never writes a byte.
func serveSilent(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			_, _ = io.Copy(io.Discard, conn)
		}()
	}
}

// servePOP3 answers a minimal POP3 dialogue for a maildrop of count messages.
func servePOP3(ln net.Listener, count int) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			r := bufio.NewReader(conn)
			w := bufio.NewWriter(conn)
			reply := func(s string) {
				_, _ = w.WriteString(s + "\r\n")
				_ = w.Flush()
			}
			reply("+OK ready")
			for {
				line, err := r.ReadString('\n')
				if err != nil {
					return
				}
				cmd, _, _ := strings.Cut(strings.TrimSpace(line), " ")
				switch strings.ToUpper(cmd) {
				case "USER", "PASS", "NOOP":
					reply("+OK")
				case "STAT":
					reply("+OK " + strconv.Itoa(count) + " 1024")
				case "QUIT":
					reply("+OK bye")
					return
				default:
					reply("-ERR unknown command")
				}
			}
		}()
	}
}

func TestPOP3LoginUnwindsOnCancel(t *testing.T) {
	t.Parallel()

	ln := listenLocal(t)
	go serveSilent(ln)

	ctx, cancel := context.WithCancel(context.Background())
	sess := NewPOP3(ctx, localAccount(t, ln, "pop3"), discardLogger())

	done := make(chan error, 1)
	go func() { done <- sess.Login("user", "pw") }()

	select {
	case err := <-done:
		t.Fatalf("Login returned before cancel: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Login still blocked after cancel")
	}
	require.NoError(t, sess.Close())
}

func TestPOP3ListIDsUsesMessageNumbers(t *testing.T) {
	t.Parallel()

	ln := listenLocal(t)
	go servePOP3(ln, 3)

	sess := NewPOP3(context.Background(), localAccount(t, ln, "pop3"), discardLogger())
	defer sess.Close()

	require.NoError(t, sess.Login("user", "pw"))
	require.NoError(t, sess.SelectInbox())
	ids, err := sess.ListIDs()
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3}, ids)
	require.NoError(t, sess.KeepAlive())
}

func TestPOP3PollWaitTimesOutWithoutNewMail(t *testing.T) {
	t.Parallel()

	ln := listenLocal(t)
	go servePOP3(ln, 2)

	acct := localAccount(t, ln, "pop3")
	acct.PollIntervalSeconds = 1
	sess := NewPOP3(context.Background(), acct, discardLogger())
	defer sess.Close()

	require.NoError(t, sess.Login("user", "pw"))
	_, err := sess.ListIDs()
	require.NoError(t, err)

	signaled, err := sess.PollWait(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, signaled)
}
