package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
)

// Keyring resolves secrets from the operating system's secure store.
type Keyring struct {
	ring keyring.Keyring
}

var _ Resolver = (*Keyring)(nil)

// OpenKeyring opens the system keyring under the given service name.
func OpenKeyring(service string) (*Keyring, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
		},
		FileDir:                  filepath.Join(home, ".config", service, "credentials"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Keyring{ring: ring}, nil
}

// NewKeyring wraps an already opened keyring.
func NewKeyring(ring keyring.Keyring) *Keyring {
	return &Keyring{ring: ring}
}

func (k *Keyring) Resolve(ctx context.Context, identity string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	item, err := k.ring.Get(identity)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("keyring secret for %q: %w", identity, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting keyring secret for %q: %w", identity, err)
	}
	return string(item.Data), nil
}

// Store saves secret for identity in the keyring.
func (k *Keyring) Store(identity, secret string) error {
	err := k.ring.Set(keyring.Item{
		Key:         identity,
		Data:        []byte(secret),
		Label:       "mailwake: " + identity,
		Description: "IMAP password",
	})
	if err != nil {
		return fmt.Errorf("setting keyring secret for %q: %w", identity, err)
	}
	return nil
}
