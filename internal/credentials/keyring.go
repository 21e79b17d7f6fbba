package credentials

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// ErrKeyringNotAvailable is returned when the OS keyring cannot be reached
// (no Secret Service on headless Linux, locked keychain, ...).
var ErrKeyringNotAvailable = errors.New("system keyring not available")

// ErrNotFound is returned by a Keyring when no secret is stored.
var ErrNotFound = errors.New("secret not found in keyring")

// systemKeyring stores secrets in the OS keyring.
type systemKeyring struct{}

func (s *systemKeyring) Set(service, account, secret string) error {
	if err := keyring.Set(service, account, secret); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyringNotAvailable, err)
	}
	return nil
}

func (s *systemKeyring) Get(service, account string) (string, error) {
	secret, err := keyring.Get(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyringNotAvailable, err)
	}
	return secret, nil
}

func (s *systemKeyring) Delete(service, account string) error {
	err := keyring.Delete(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyringNotAvailable, err)
	}
	return nil
}

// MockKeyring is an in-memory Keyring for tests.
type MockKeyring struct {
	mu    sync.RWMutex
	store map[string]string // service/account -> secret

	// Unavailable makes every call fail like a headless system without a keyring.
	Unavailable bool
}

// NewMockKeyring creates an empty mock keyring.
func NewMockKeyring() *MockKeyring {
	return &MockKeyring{store: make(map[string]string)}
}

func (m *MockKeyring) Set(service, account, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return ErrKeyringNotAvailable
	}
	m.store[service+"/"+account] = secret
	return nil
}

func (m *MockKeyring) Get(service, account string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Unavailable {
		return "", ErrKeyringNotAvailable
	}
	secret, ok := m.store[service+"/"+account]
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

func (m *MockKeyring) Delete(service, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return ErrKeyringNotAvailable
	}
	key := service + "/" + account
	if _, ok := m.store[key]; !ok {
		return ErrNotFound
	}
	delete(m.store, key)
	return nil
}
