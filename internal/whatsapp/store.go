// Package whatsapp integrates the whatsmeow protocol library behind the
// domain's protocol-client and credential-store ports.
package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"walink/internal/domain"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// credentialBundle wraps one whatsmeow device store entry. The key is the
// (user, device) namespace, never a bare device ID.
type credentialBundle struct {
	key    string
	device *store.Device
}

func (b *credentialBundle) Key() string {
	return b.key
}

func credKey(userID domain.UserID, deviceID domain.DeviceID) string {
	return userID.String() + "/" + deviceID.String()
}

// StoreManager persists credential bundles in whatsmeow's sqlstore,
// one namespace per (user, device). Implements domain.CredentialStore.
type StoreManager struct {
	container *sqlstore.Container

	mu    sync.Mutex
	cache map[string]*store.Device
}

// NewStoreManager wraps the application database with whatsmeow's sqlstore
// and upgrades its schema.
func NewStoreManager(ctx context.Context, db *sql.DB, logger waLog.Logger) (*StoreManager, error) {
	sqlstore.PostgresArrayWrapper = pq.Array

	container := sqlstore.NewWithDB(db, "postgres", logger)
	if err := container.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("failed to upgrade whatsmeow schema: %w", err)
	}

	log.Info().Msg("Credential store initialized")
	return &StoreManager{
		container: container,
		cache:     make(map[string]*store.Device),
	}, nil
}

// Load returns the credential bundle for (user, device), creating a fresh
// unpaired entry when none is stored yet. The (user, device) namespace is
// recorded on the store entry itself so a device ID alone can never reach
// another tenant's credentials.
func (m *StoreManager) Load(ctx context.Context, userID domain.UserID, deviceID domain.DeviceID) (domain.CredentialBundle, error) {
	key := credKey(userID, deviceID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if device, ok := m.cache[key]; ok {
		return &credentialBundle{key: key, device: device}, nil
	}

	devices, err := m.container.GetAllDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored credentials: %w", err)
	}
	for _, device := range devices {
		if device.BusinessName == key {
			m.cache[key] = device
			log.Debug().Str("cred_key", key).Msg("Restored credential bundle")
			return &credentialBundle{key: key, device: device}, nil
		}
	}

	device := m.container.NewDevice()
	device.BusinessName = key
	m.cache[key] = device

	log.Info().Str("cred_key", key).Msg("Created fresh credential bundle, pairing required")
	return &credentialBundle{key: key, device: device}, nil
}

// Forget drops the in-memory reference for (user, device). The next Load
// starts from whatever the protocol client left in durable storage.
func (m *StoreManager) Forget(userID domain.UserID, deviceID domain.DeviceID) {
	key := credKey(userID, deviceID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cache[key]; ok {
		delete(m.cache, key)
		log.Debug().Str("cred_key", key).Msg("Credential bundle forgotten")
	}
}

// Delete permanently removes the stored bundle. Used on device deletion.
func (m *StoreManager) Delete(ctx context.Context, creds domain.CredentialBundle) error {
	bundle, ok := creds.(*credentialBundle)
	if !ok {
		return fmt.Errorf("unexpected credential bundle type %T", creds)
	}

	m.mu.Lock()
	delete(m.cache, bundle.key)
	m.mu.Unlock()

	if bundle.device.ID != nil {
		if err := m.container.DeleteDevice(ctx, bundle.device); err != nil {
			return fmt.Errorf("failed to delete credentials %s: %w", bundle.key, err)
		}
	}

	log.Info().Str("cred_key", bundle.key).Msg("Credential bundle deleted")
	return nil
}

// Close releases the underlying container
func (m *StoreManager) Close() error {
	m.mu.Lock()
	m.cache = make(map[string]*store.Device)
	m.mu.Unlock()

	return m.container.Close()
}
