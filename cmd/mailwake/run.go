package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tracyhatemice/mailwake/internal/config"
	"github.com/tracyhatemice/mailwake/internal/credential"
	"github.com/tracyhatemice/mailwake/internal/debounce"
	"github.com/tracyhatemice/mailwake/internal/dispatch"
	"github.com/tracyhatemice/mailwake/internal/mailbox"
	"github.com/tracyhatemice/mailwake/internal/monitor"
	"github.com/tracyhatemice/mailwake/internal/notify"
)

var errAllMonitorsExited = errors.New("every account monitor has exited")

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch all configured mailboxes (default command)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCommand(cmd, *configPath)
		},
	}
}

func runCommand(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, closeLog, err := setupLogger(cfg.LogLevel, cfg.LogFile, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Force exit on second signal.
	go func() {
		<-ctx.Done()
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Warn("forced shutdown")
		os.Exit(1)
	}()

	return listen(ctx, cfg, mailbox.NewDialer(logger), newResolver(cfg, logger), newSinks(cfg), logger)
}

func newSinks(cfg *config.Config) []dispatch.Sink {
	sinks := []dispatch.Sink{dispatch.NewWebhook(cfg.WebhookURL, cfg.WebhookToken)}
	if cfg.DesktopNotify {
		sinks = append(sinks, dispatch.NewDesktop())
	}
	return sinks
}

// listen runs one monitor per account until ctx is cancelled, then flushes
// whatever the aggregator still holds.
func listen(
	ctx context.Context,
	cfg *config.Config,
	dialer mailbox.Dialer,
	creds credential.Resolver,
	sinks []dispatch.Sink,
	logger *slog.Logger,
) error {
	formatter := notify.NewFormatter(cfg.GetServices(), cfg.GetWebhookMode())
	dispatcher := dispatch.New(formatter, logger, sinks...)
	agg := debounce.New(cfg.Debounce(), dispatcher, logger)
	defer agg.Close()

	settings := monitor.Settings{
		IdleTimeout:       cfg.IdleTimeout(),
		ReconnectInterval: cfg.ReconnectInterval(),
	}

	logger.Info("mailwake starting", "accounts", len(cfg.Accounts), "debounce", cfg.Debounce())

	var wg sync.WaitGroup
	for _, acct := range cfg.Accounts {
		mon := monitor.New(acct, dialer, creds, agg, settings, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mon.Run(ctx); err != nil {
				logger.Error("monitor exited", "account", acct.Identity(), "error", err)
			}
		}()
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down, waiting for monitors to finish...")
		<-finished
		logger.Info("mailwake stopped")
		return nil
	case <-finished:
		if ctx.Err() != nil {
			return nil
		}
		return errAllMonitorsExited
	}
}
