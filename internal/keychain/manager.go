// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain keeps iampl secrets in the OS credential store. The only secret
// today is the PostgreSQL DSN used by `iampl export`.
//
// On macOS the `security` command is used directly; elsewhere the keyring library
// picks a native backend (Secret Service, KWallet, pass or Windows Credential
// Manager). There is no plain-file fallback.
package keychain

import (
	stderrors "errors"
	"runtime"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

var (
	globalManager *Manager
	mu            sync.Mutex
)

// ErrNotFound is returned when no secret is stored under a key.
var ErrNotFound = stderrors.New("secret not found")

// ServiceName identifies our keychain namespace.
const ServiceName = "iampl"

// KeyExportDSN stores the export database DSN.
const KeyExportDSN = "export_dsn"

// store is the minimal surface both backends provide.
type store interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// Manager provides thread-safe access to the credential store.
type Manager struct {
	mu    sync.RWMutex
	store store
}

// NewManager opens the platform credential store.
func NewManager() (*Manager, error) {
	if runtime.GOOS == "darwin" {
		if b, err := newSecurityBackend(); err == nil {
			return &Manager{store: b}, nil
		}
	}
	ring, err := openRing()
	if err != nil {
		return nil, err
	}
	return NewManagerWithRing(ring), nil
}

// NewManagerWithRing wraps an already opened keyring, such as keyring.NewArrayKeyring
// in tests.
func NewManagerWithRing(ring keyring.Keyring) *Manager {
	return &Manager{store: ringStore{ring: ring}}
}

// GetManager returns the process-wide manager, retrying initialisation after a
// failure.
func GetManager() (*Manager, error) {
	mu.Lock()
	defer mu.Unlock()
	if globalManager != nil {
		return globalManager, nil
	}
	m, err := NewManager()
	if err != nil {
		return nil, err
	}
	globalManager = m
	return m, nil
}

func allowedBackends() []keyring.BackendType {
	switch runtime.GOOS {
	case "darwin":
		return []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		return []keyring.BackendType{keyring.WinCredBackend}
	}
	return []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend}
}

func openRing() (keyring.Keyring, error) {
	cfg := keyring.Config{
		ServiceName:             ServiceName,
		AllowedBackends:         allowedBackends(),
		PassPrefix:              ServiceName,
		WinCredPrefix:           ServiceName,
		LibSecretCollectionName: ServiceName,
		KWalletAppID:            ServiceName,
		KWalletFolder:           ServiceName,
	}
	ring, err := keyring.Open(cfg)
	if err != nil {
		if runtime.GOOS == "darwin" {
			return nil, stderrors.New("macOS Keychain unavailable; install 'pass': brew install pass gnupg && pass init <gpg-key-id>")
		}
		return nil, err
	}
	return ring, nil
}

// SaveExportDSN stores the export DSN.
func (m *Manager) SaveExportDSN(dsn string) error {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return stderrors.New("empty DSN")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Set(KeyExportDSN, dsn)
}

// LoadExportDSN returns the stored export DSN or ErrNotFound.
func (m *Manager) LoadExportDSN() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dsn, err := m.store.Get(KeyExportDSN)
	if err != nil {
		return "", err
	}
	if dsn == "" {
		return "", ErrNotFound
	}
	return dsn, nil
}

// ClearExportDSN removes the export DSN. Removing a missing entry is not an error.
func (m *Manager) ClearExportDSN() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Delete(KeyExportDSN)
}

// ringStore adapts keyring.Keyring to store.
type ringStore struct {
	ring keyring.Keyring
}

func (r ringStore) Set(key, value string) error {
	return r.ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: ServiceName + " " + key})
}

func (r ringStore) Get(key string) (string, error) {
	it, err := r.ring.Get(key)
	if stderrors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(it.Data), nil
}

func (r ringStore) Delete(key string) error {
	err := r.ring.Remove(key)
	if stderrors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}
