package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chatmux/chatmux/internal/domain"
	"gorm.io/gorm"
)

// GormSessionRepository is the GORM implementation of SessionRepository
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository creates a new GORM-based session repository
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

func (r *GormSessionRepository) Create(ctx context.Context, sess *domain.ChatSession) error {
	return r.db.WithContext(ctx).Create(sess).Error
}

func (r *GormSessionRepository) GetByID(ctx context.Context, id int64) (*domain.ChatSession, error) {
	var sess domain.ChatSession
	err := r.db.WithContext(ctx).First(&sess, id).Error
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (r *GormSessionRepository) GetBySid(ctx context.Context, sid string) (*domain.ChatSession, error) {
	var sess domain.ChatSession
	err := r.db.WithContext(ctx).Where("sid = ?", sid).First(&sess).Error
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (r *GormSessionRepository) FindDesired(ctx context.Context) ([]*domain.ChatSession, error) {
	var sessions []*domain.ChatSession
	err := r.db.WithContext(ctx).
		Where("status IN ?", domain.DesiredStatuses).
		Order("created_at ASC").
		Find(&sessions).Error
	return sessions, err
}

func (r *GormSessionRepository) UpdateStatus(ctx context.Context, id int64, status, errMsg string) error {
	return r.db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"err_message": errMsg,
		}).Error
}

func (r *GormSessionRepository) SetPairing(ctx context.Context, id int64, code string, issuedAt time.Time) error {
	// Read-modify-write so only the pairing fields are overwritten and the
	// rest of the metadata map is preserved.
	var sess domain.ChatSession
	if err := r.db.WithContext(ctx).Select("id", "metadata").First(&sess, id).Error; err != nil {
		return err
	}
	meta := domain.DecodeSessionMeta(sess.Metadata)
	meta.Pairing = domain.PairingInfo{Code: code, IssuedAt: issuedAt}
	return r.db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":   domain.SessionQrRequired,
			"metadata": meta.Encode(),
		}).Error
}

func (r *GormSessionRepository) MarkConnected(ctx context.Context, id int64, phone, name string) error {
	updates := map[string]interface{}{
		"status":            domain.SessionConnected,
		"err_message":       "",
		"last_connected_at": time.Now(),
	}
	if phone != "" {
		updates["phone"] = phone
	}
	if name != "" {
		updates["name"] = name
	}
	return r.db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *GormSessionRepository) SetDeviceJid(ctx context.Context, id int64, jid string) error {
	return r.db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", id).
		Update("device_jid", jid).Error
}

func (r *GormSessionRepository) SoftDelete(ctx context.Context, id int64) error {
	var sess domain.ChatSession
	if err := r.db.WithContext(ctx).Select("id", "sid").First(&sess, id).Error; err != nil {
		return err
	}
	marker := fmt.Sprintf("deleted:%d:%s", time.Now().Unix(), sess.Sid)
	return r.db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sid":    marker,
			"status": domain.SessionDisconnected,
		}).Error
}
