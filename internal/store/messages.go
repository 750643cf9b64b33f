package store

import (
	"context"
	"time"

	"github.com/chatmux/chatmux/internal/domain"
	"github.com/chatmux/chatmux/pkg/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormMessageRepository is the GORM implementation of MessageRepository
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

func (r *GormMessageRepository) Insert(ctx context.Context, msg *domain.ChatMessage) (bool, error) {
	if msg.ID == 0 {
		msg.ID = common.UUIDint64()
	}
	// Idempotent on the (session_id, msg_id) natural key: a second insert
	// with the same pair is a silent no-op.
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "msg_id"}},
			DoNothing: true,
		}).
		Create(msg)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormMessageRepository) Get(ctx context.Context, sessionId int64, msgId string) (*domain.ChatMessage, error) {
	var msg domain.ChatMessage
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND msg_id = ?", sessionId, msgId).
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *GormMessageRepository) MarkSent(ctx context.Context, sessionId int64, msgId, via string) error {
	msg, err := r.Get(ctx, sessionId, msgId)
	if err != nil {
		return err
	}
	meta := domain.DecodeMessageMeta(msg.Metadata)
	meta.Lock = domain.ProcessingLock{}
	meta.DeliveredVia = via
	return r.db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Where("session_id = ? AND msg_id = ?", sessionId, msgId).
		Updates(map[string]interface{}{
			"status":       domain.MessageSent,
			"err_message":  "",
			"delivered_at": time.Now(),
			"metadata":     meta.Encode(),
		}).Error
}

func (r *GormMessageRepository) MarkFailed(ctx context.Context, sessionId int64, msgId, errMsg string) error {
	msg, err := r.Get(ctx, sessionId, msgId)
	if err != nil {
		return err
	}
	meta := domain.DecodeMessageMeta(msg.Metadata)
	meta.Lock = domain.ProcessingLock{}
	return r.db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Where("session_id = ? AND msg_id = ?", sessionId, msgId).
		Updates(map[string]interface{}{
			"status":      domain.MessageFailed,
			"err_message": errMsg,
			"metadata":    meta.Encode(),
		}).Error
}

func (r *GormMessageRepository) UpdateStatusByMsgIds(ctx context.Context, sessionId int64, msgIds []string, status string) error {
	if len(msgIds) == 0 {
		return nil
	}
	// Receipts only upgrade the status: a READ receipt racing a DELIVERED
	// one must not downgrade the row.
	allowed := []string{domain.MessageSent}
	if status == domain.MessageRead {
		allowed = append(allowed, domain.MessageDelivered)
	}
	return r.db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Where("session_id = ? AND msg_id IN ?", sessionId, msgIds).
		Where("status IN ?", allowed).
		Update("status", status).Error
}

func (r *GormMessageRepository) FindPendingOutbound(ctx context.Context, window time.Duration, limit int) ([]*domain.ChatMessage, error) {
	var msgs []*domain.ChatMessage
	err := r.db.WithContext(ctx).
		Where("status = ? AND direction = ?", domain.MessagePending, domain.DirectionOutbound).
		Where("created_at > ?", time.Now().Add(-window)).
		Order("created_at ASC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

func (r *GormMessageRepository) WriteLock(ctx context.Context, sessionId int64, msgId string, lock domain.ProcessingLock) error {
	msg, err := r.Get(ctx, sessionId, msgId)
	if err != nil {
		return err
	}
	meta := domain.DecodeMessageMeta(msg.Metadata)
	meta.Lock = lock
	return r.db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Where("session_id = ? AND msg_id = ?", sessionId, msgId).
		Update("metadata", meta.Encode()).Error
}
