// Package credentials stores the Notion integration token in the OS keyring
// with a fallback to the TODOSYNC_NOTION_TOKEN environment variable.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"todosync/internal/syncer"
	"todosync/internal/utils"
)

const (
	// ServiceName is the keyring service the API key is stored under.
	ServiceName = "todosync-notion"
	// AccountName is the keyring account for the API key.
	AccountName = "api-key"
	// EnvToken is consulted when the keyring holds no key.
	EnvToken = "TODOSYNC_NOTION_TOKEN"
)

// Source indicates where the API key was found.
type Source string

const (
	SourceKeyring     Source = "keyring"
	SourceEnvironment Source = "environment"
	SourceNone        Source = "none"
)

// Status describes the stored credential without revealing it.
type Status struct {
	Source Source
	Found  bool
	Masked string // last four characters only
}

// JSON serializes the status. The key itself is never included.
func (s Status) JSON() ([]byte, error) {
	return json.Marshal(struct {
		Source string `json:"source"`
		Found  bool   `json:"found"`
		Masked string `json:"masked,omitempty"`
	}{string(s.Source), s.Found, s.Masked})
}

// Keyring is the interface for keyring operations.
type Keyring interface {
	Set(service, account, secret string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// Manager reads and writes the Notion API key.
type Manager struct {
	keyring Keyring
	getenv  func(string) string
}

var _ syncer.CredentialSource = (*Manager)(nil)

// ManagerOption is a functional option for Manager.
type ManagerOption func(*Manager)

// WithKeyring sets a custom keyring implementation.
func WithKeyring(k Keyring) ManagerOption {
	return func(m *Manager) {
		m.keyring = k
	}
}

// WithGetenv replaces the environment lookup.
func WithGetenv(getenv func(string) string) ManagerOption {
	return func(m *Manager) {
		m.getenv = getenv
	}
}

// NewManager creates a credential manager backed by the system keyring.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		keyring: &systemKeyring{},
		getenv:  os.Getenv,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetAPIKey returns the stored key, the environment key, or "" when neither
// is set. An unreachable keyring is not an error as long as the environment
// variable can be consulted.
func (m *Manager) GetAPIKey(ctx context.Context) (string, error) {
	key, _, err := m.lookup()
	return key, err
}

// StoreAPIKey saves the key in the keyring.
func (m *Manager) StoreAPIKey(ctx context.Context, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errors.New("API key cannot be empty")
	}
	if err := m.keyring.Set(ServiceName, AccountName, apiKey); err != nil {
		if errors.Is(err, ErrKeyringNotAvailable) {
			return utils.WrapWithSuggestion(err,
				fmt.Sprintf("Export the key instead: export %s=\"secret_...\"", EnvToken))
		}
		return fmt.Errorf("failed to store API key: %w", err)
	}
	utils.Debugf("[Credentials] API key stored in keyring")
	return nil
}

// DeleteAPIKey removes the key from the keyring. Removing a missing key is not an error.
func (m *Manager) DeleteAPIKey(ctx context.Context) error {
	err := m.keyring.Delete(ServiceName, AccountName)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to delete API key: %w", err)
	}
	return nil
}

// Status reports where the key would be read from.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	key, source, err := m.lookup()
	if err != nil {
		return Status{Source: SourceNone}, err
	}
	if key == "" {
		return Status{Source: SourceNone}, nil
	}
	return Status{Source: source, Found: true, Masked: mask(key)}, nil
}

func (m *Manager) lookup() (string, Source, error) {
	key, err := m.keyring.Get(ServiceName, AccountName)
	switch {
	case err == nil && key != "":
		return key, SourceKeyring, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		utils.Debugf("[Credentials] keyring lookup failed: %v", err)
	}

	if env := strings.TrimSpace(m.getenv(EnvToken)); env != "" {
		return env, SourceEnvironment, nil
	}
	return "", SourceNone, nil
}

func mask(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
