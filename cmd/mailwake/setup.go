package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tracyhatemice/mailwake/internal/config"
	"github.com/tracyhatemice/mailwake/internal/credential"
	"github.com/tracyhatemice/mailwake/internal/mailbox"
)

const defaultWebhookURL = "http://127.0.0.1:18789/hooks/wake"

type accountAnswers struct {
	Name     string
	Protocol string
	Host     string
	Port     string
	Username string
	Password string
	TLS      bool
}

type setupAnswers struct {
	Accounts      []accountAnswers
	WebhookURL    string
	WebhookToken  string
	LogFile       string
	DesktopNotify bool
	UseKeyring    bool
}

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactively create a configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("resolve home directory: %w", err)
			}
			path := config.SearchPaths(home)[0]

			answers, err := askSetup(&path)
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Fprintln(cmd.OutOrStdout(), "Setup cancelled.")
				return nil
			}
			if err != nil {
				return err
			}

			cfg, err := buildConfig(answers)
			if err != nil {
				return err
			}
			if answers.UseKeyring {
				if err := storeSecrets(cfg, answers); err != nil {
					return err
				}
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			fmt.Fprint(cmd.OutOrStdout(), nextSteps(home, path))

			test := true
			if err := huh.NewConfirm().
				Title("Test the connections now?").
				Value(&test).
				Run(); err != nil || !test {
				return nil
			}

			logger, closeLog, err := setupLogger("warn", "", cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()
			dialer := mailbox.NewDialer(logger)
			creds := newResolver(cfg, logger)
			for _, acct := range cfg.Accounts {
				n, err := checkAccount(cmd.Context(), dialer, creds, acct)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "❌ %s: %v\n", acct.Label(), err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ %s: %d messages in INBOX\n", acct.Label(), n)
			}
			return nil
		},
	}
}

func askSetup(path *string) (setupAnswers, error) {
	var answers setupAnswers

	for {
		acct := accountAnswers{Protocol: "imap", TLS: true}
		more := false
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Name").
					Description("A label for this mailbox (optional)").
					Placeholder("Work").
					Value(&acct.Name),
				huh.NewSelect[string]().
					Title("Protocol").
					Options(
						huh.NewOption("IMAP (push via IDLE)", "imap"),
						huh.NewOption("POP3 (polled)", "pop3"),
					).
					Value(&acct.Protocol),
				huh.NewInput().
					Title("Host").
					Placeholder("imap.example.com").
					Value(&acct.Host).
					Validate(validateRequired("Host")),
				huh.NewInput().
					Title("Port").
					Description("Leave empty for the protocol default").
					Value(&acct.Port).
					Validate(validatePort),
				huh.NewInput().
					Title("Username").
					Placeholder("user@example.com").
					Value(&acct.Username).
					Validate(validateRequired("Username")),
				huh.NewInput().
					Title("Password").
					Description("Account password or app password").
					EchoMode(huh.EchoModePassword).
					Value(&acct.Password).
					Validate(validateRequired("Password")),
				huh.NewConfirm().
					Title("Use TLS").
					Affirmative("Yes").
					Negative("No").
					Value(&acct.TLS),
			),
			huh.NewGroup(
				huh.NewConfirm().
					Title("Add another account?").
					Value(&more),
			),
		)
		if err := form.Run(); err != nil {
			return setupAnswers{}, err
		}
		answers.Accounts = append(answers.Accounts, acct)
		if !more {
			break
		}
	}

	answers.WebhookURL = defaultWebhookURL
	answers.UseKeyring = true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Webhook URL").
				Value(&answers.WebhookURL).
				Validate(validateRequired("Webhook URL")),
			huh.NewInput().
				Title("Webhook token").
				EchoMode(huh.EchoModePassword).
				Value(&answers.WebhookToken),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Store passwords in the system keyring?").
				Description("Otherwise they are written to the config file").
				Value(&answers.UseKeyring),
			huh.NewConfirm().
				Title("Also show desktop notifications?").
				Value(&answers.DesktopNotify),
			huh.NewInput().
				Title("Log file").
				Description("Leave empty to log to stderr").
				Value(&answers.LogFile),
			huh.NewInput().
				Title("Config path").
				Value(path).
				Validate(validateRequired("Config path")),
		),
	)
	if err := form.Run(); err != nil {
		return setupAnswers{}, err
	}
	return answers, nil
}

// buildConfig turns wizard answers into a Config. Passwords are kept inline
// unless the keyring was chosen.
func buildConfig(a setupAnswers) (*config.Config, error) {
	cfg := &config.Config{
		LogLevel:      "info",
		LogFile:       expandHome(strings.TrimSpace(a.LogFile)),
		WebhookURL:    strings.TrimSpace(a.WebhookURL),
		WebhookToken:  a.WebhookToken,
		DesktopNotify: a.DesktopNotify,
	}
	for _, in := range a.Accounts {
		acct := config.Account{
			Name:     strings.TrimSpace(in.Name),
			Protocol: in.Protocol,
			Host:     strings.TrimSpace(in.Host),
			Username: strings.TrimSpace(in.Username),
		}
		if acct.Protocol == "imap" {
			acct.Protocol = ""
		}
		if in.Port != "" {
			port, err := strconv.Atoi(in.Port)
			if err != nil {
				return nil, fmt.Errorf("account %s: invalid port %q", acct.Username, in.Port)
			}
			acct.Port = port
		}
		if !in.TLS {
			insecure := false
			acct.UseTLS = &insecure
		}
		if !a.UseKeyring {
			acct.Password = in.Password
		}
		cfg.Accounts = append(cfg.Accounts, acct)
	}
	return cfg, nil
}

func storeSecrets(cfg *config.Config, a setupAnswers) error {
	ring, err := credential.OpenKeyring(cfg.GetKeyringService())
	if err != nil {
		return fmt.Errorf("open keyring: %w", err)
	}
	for i, acct := range cfg.Accounts {
		if err := ring.Store(acct.Identity(), a.Accounts[i].Password); err != nil {
			return fmt.Errorf("store password for %s: %w", acct.Identity(), err)
		}
	}
	return nil
}

// nextSteps tells the user how to start the listener. A file outside the
// default location is only found with --config.
func nextSteps(home, path string) string {
	flag := ""
	if path != config.SearchPaths(home)[0] {
		flag = " --config " + path
	}
	return fmt.Sprintf("\nNext steps:\n  mailwake check%s\n  mailwake run%s\n", flag, flag)
}

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validatePort(s string) error {
	if s == "" {
		return nil
	}
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		return errors.New("port must be a number between 1 and 65535")
	}
	return nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
