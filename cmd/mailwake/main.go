package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tracyhatemice/mailwake/internal/config"
	"github.com/tracyhatemice/mailwake/internal/credential"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "mailwake",
		Short:        "Turn IMAP IDLE new-mail signals into webhook notifications",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCommand(cmd, configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file (default: search ~/.config/mailwake, ~/.openclaw)")

	root.AddCommand(
		newRunCmd(&configPath),
		newCheckCmd(&configPath),
		newSetupCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "mailwake", version)
		},
	}
}

// loadConfig reads the explicit path or the first file on the search path.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		path, err = config.Find(home)
		if errors.Is(err, config.ErrNotFound) {
			return nil, fmt.Errorf("%w (searched %v); run 'mailwake setup' to create one", err, config.SearchPaths(home))
		}
		if err != nil {
			return nil, err
		}
	}
	return config.Load(path)
}

// setupLogger builds the process logger. Logs go to file when one is
// configured, stderr otherwise.
func setupLogger(level, file string, stderr io.Writer) (*slog.Logger, func(), error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	out := stderr
	closeFn := func() {}
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})), closeFn, nil
}

// newResolver chains the OS keyring in front of the passwords in the config
// file. Without a usable keyring only the config passwords are consulted.
func newResolver(cfg *config.Config, logger *slog.Logger) credential.Resolver {
	static := credential.Static{}
	for _, acct := range cfg.Accounts {
		if acct.Password != "" {
			static[acct.Identity()] = acct.Password
		}
	}

	var primary credential.Resolver
	ring, err := credential.OpenKeyring(cfg.GetKeyringService())
	if err != nil {
		logger.Warn("keyring unavailable, using config passwords only", "error", err)
	} else {
		primary = ring
	}
	return credential.NewChain(primary, static)
}
