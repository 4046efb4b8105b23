package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracyhatemice/mailwake/internal/config"
	"github.com/tracyhatemice/mailwake/internal/credential"
	"github.com/tracyhatemice/mailwake/internal/mailbox"
)

const checkTimeout = 30 * time.Second

func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Connect to every account once and report the inbox size",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logger, closeLog, err := setupLogger(cfg.LogLevel, "", cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()

			dialer := mailbox.NewDialer(logger)
			creds := newResolver(cfg, logger)

			failed := 0
			for _, acct := range cfg.Accounts {
				n, err := checkAccount(cmd.Context(), dialer, creds, acct)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "❌ %s: %v\n", acct.Label(), err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ %s: connected, %d messages in INBOX\n", acct.Label(), n)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d accounts failed", failed, len(cfg.Accounts))
			}
			return nil
		},
	}
}

// checkAccount logs in, opens INBOX and counts its messages.
func checkAccount(ctx context.Context, dialer mailbox.Dialer, creds credential.Resolver, acct config.Account) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	secret, err := creds.Resolve(ctx, acct.Identity())
	if err != nil {
		return 0, err
	}
	sess, err := dialer.Dial(ctx, acct)
	if err != nil {
		return 0, err
	}
	defer sess.Close()

	if err := sess.Login(acct.Identity(), secret); err != nil {
		return 0, err
	}
	if err := sess.SelectInbox(); err != nil {
		return 0, err
	}
	ids, err := sess.ListIDs()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
