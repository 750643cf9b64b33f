package store

import (
	"context"
	"errors"
	"time"

	"github.com/chatmux/chatmux/internal/domain"
	"github.com/chatmux/chatmux/pkg/common"
	"gorm.io/gorm"
)

// GormContactRepository is the GORM implementation of ContactRepository
type GormContactRepository struct {
	db *gorm.DB
}

// NewGormContactRepository creates a new GORM-based contact repository
func NewGormContactRepository(db *gorm.DB) *GormContactRepository {
	return &GormContactRepository{db: db}
}

func (r *GormContactRepository) GetByJid(ctx context.Context, tenantId int64, jid string) (*domain.ChatContact, error) {
	var contact domain.ChatContact
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND jid = ?", tenantId, jid).
		First(&contact).Error
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// lidExpr returns the JSON-path expression for the stored alternate
// identifier. The mapping lives in the metadata column, so the lookup
// branches on the configured dialect.
func (r *GormContactRepository) lidExpr() string {
	if r.db.Dialector.Name() == "postgres" {
		return "metadata::jsonb ->> 'lid' = ?"
	}
	return "json_extract(metadata, '$.lid') = ?"
}

func (r *GormContactRepository) FindByLid(ctx context.Context, tenantId int64, lid string) (*domain.ChatContact, error) {
	var contact domain.ChatContact
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantId).
		Where(r.lidExpr(), lid).
		First(&contact).Error
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

func (r *GormContactRepository) TouchOnMessage(ctx context.Context, tenantId, sessionId int64, jid, name string, at time.Time, inbound bool) error {
	var contact domain.ChatContact
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND jid = ?", tenantId, jid).
		First(&contact).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		contact = domain.ChatContact{
			ID:            common.UUIDint64(),
			TenantId:      tenantId,
			SessionId:     sessionId,
			Jid:           jid,
			Name:          name,
			LastMessageAt: at,
		}
		if inbound {
			contact.Unread = 1
		}
		return r.db.WithContext(ctx).Create(&contact).Error
	case err != nil:
		return err
	}

	updates := map[string]interface{}{
		"session_id":      sessionId,
		"last_message_at": at,
	}
	if name != "" {
		updates["name"] = name
	}
	if inbound {
		updates["unread"] = gorm.Expr("unread + 1")
	}
	return r.db.WithContext(ctx).
		Model(&domain.ChatContact{}).
		Where("id = ?", contact.ID).
		Updates(updates).Error
}

func (r *GormContactRepository) UpsertName(ctx context.Context, tenantId, sessionId int64, jid, name string) error {
	if jid == "" || name == "" {
		return nil
	}
	var contact domain.ChatContact
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND jid = ?", tenantId, jid).
		First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		contact = domain.ChatContact{
			ID:        common.UUIDint64(),
			TenantId:  tenantId,
			SessionId: sessionId,
			Jid:       jid,
			Name:      name,
		}
		return r.db.WithContext(ctx).Create(&contact).Error
	}
	if err != nil {
		return err
	}
	if contact.Name == name {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&domain.ChatContact{}).
		Where("id = ?", contact.ID).
		Update("name", name).Error
}

func (r *GormContactRepository) SaveMapping(ctx context.Context, tenantId, sessionId int64, jid, lid string) error {
	if jid == "" || lid == "" {
		return nil
	}
	var contact domain.ChatContact
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND jid = ?", tenantId, jid).
		First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		contact = domain.ChatContact{
			ID:        common.UUIDint64(),
			TenantId:  tenantId,
			SessionId: sessionId,
			Jid:       jid,
			Metadata:  domain.ContactMeta{Lid: lid}.Encode(),
		}
		return r.db.WithContext(ctx).Create(&contact).Error
	}
	if err != nil {
		return err
	}

	// Merge into the existing map so concurrent partial updates don't erase
	// each other.
	meta := domain.DecodeContactMeta(contact.Metadata).Merge(domain.ContactMeta{Lid: lid})
	return r.db.WithContext(ctx).
		Model(&domain.ChatContact{}).
		Where("id = ?", contact.ID).
		Update("metadata", meta.Encode()).Error
}
