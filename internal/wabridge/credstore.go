package wabridge

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	wstore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CredentialStore keeps protocol credentials in the application database,
// sharing the gorm connection pool instead of opening a second one.
type CredentialStore struct {
	container *sqlstore.Container
}

// NewCredentialStore wraps the application's database with the protocol
// credential schema, creating or upgrading its tables as needed.
func NewCredentialStore(ctx context.Context, db *gorm.DB, dbType string) (*CredentialStore, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "credstore: unwrap sql.DB")
	}
	driver := "postgres"
	if dbType != "postgres" {
		driver = "sqlite3"
		if _, err := sqlDB.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
			zap.L().Warn("credstore enable foreign keys", zap.Error(err))
		}
	}
	container := sqlstore.NewWithDB(sqlDB, driver, nil)
	if err := container.Upgrade(ctx); err != nil {
		return nil, errors.Wrap(err, "credstore: upgrade schema")
	}
	return &CredentialStore{container: container}, nil
}

// LoadDevice resolves a persisted credential reference to a device record.
// An empty or unresolvable reference yields a fresh unpaired device, which
// forces the pairing flow on the next connect.
func (s *CredentialStore) LoadDevice(ctx context.Context, deviceJid string) (*wstore.Device, error) {
	if strings.TrimSpace(deviceJid) == "" {
		return s.container.NewDevice(), nil
	}
	jid, err := types.ParseJID(deviceJid)
	if err != nil {
		zap.L().Warn("credstore invalid device reference, pairing fresh",
			zap.String("deviceJid", deviceJid), zap.Error(err))
		return s.container.NewDevice(), nil
	}
	dev, err := s.container.GetDevice(ctx, jid)
	if err != nil {
		return nil, errors.Wrap(err, "credstore: load device")
	}
	if dev == nil {
		zap.L().Warn("credstore device not found, pairing fresh", zap.String("deviceJid", deviceJid))
		return s.container.NewDevice(), nil
	}
	return dev, nil
}

// DeleteDevice removes a credential record after a permanent logout.
func (s *CredentialStore) DeleteDevice(ctx context.Context, dev *wstore.Device) error {
	return s.container.DeleteDevice(ctx, dev)
}

// Container exposes the raw credential container.
func (s *CredentialStore) Container() *sqlstore.Container {
	return s.container
}
