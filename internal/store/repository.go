package store

import (
	"context"
	"time"

	"github.com/chatmux/chatmux/internal/domain"
	"gorm.io/gorm"
)

// SessionRepository handles database operations for chat sessions
type SessionRepository interface {
	// Create inserts a new session record
	Create(ctx context.Context, sess *domain.ChatSession) error

	// GetByID retrieves a session by primary key
	GetByID(ctx context.Context, id int64) (*domain.ChatSession, error)

	// GetBySid retrieves a session by its external identifier
	GetBySid(ctx context.Context, sid string) (*domain.ChatSession, error)

	// FindDesired retrieves all sessions whose status demands a live
	// connection manager
	FindDesired(ctx context.Context) ([]*domain.ChatSession, error)

	// UpdateStatus updates the status and error message of a session
	UpdateStatus(ctx context.Context, id int64, status, errMsg string) error

	// SetPairing overwrites only the pairing code and capture timestamp in
	// the session metadata, preserving the rest of the map
	SetPairing(ctx context.Context, id int64, code string, issuedAt time.Time) error

	// MarkConnected records a successful handshake: status, discovered
	// phone identifier and display name, cleared error
	MarkConnected(ctx context.Context, id int64, phone, name string) error

	// SetDeviceJid persists the credential reference for the session
	SetDeviceJid(ctx context.Context, id int64, jid string) error

	// SoftDelete renames the session with a reversible marker instead of
	// purging it, so historical messages and contacts survive
	SoftDelete(ctx context.Context, id int64) error
}

// ContactRepository handles database operations for chat contacts
type ContactRepository interface {
	// GetByJid retrieves a contact by (tenant, identifier)
	GetByJid(ctx context.Context, tenantId int64, jid string) (*domain.ChatContact, error)

	// FindByLid resolves a previously stored alternate-identifier mapping
	FindByLid(ctx context.Context, tenantId int64, lid string) (*domain.ChatContact, error)

	// TouchOnMessage creates or updates the contact for a message: display
	// name, last-message timestamp, unread increment for inbound
	TouchOnMessage(ctx context.Context, tenantId, sessionId int64, jid, name string, at time.Time, inbound bool) error

	// SaveMapping persists a discovered (identifier, alternate identifier)
	// association into the contact metadata, merging rather than overwriting
	SaveMapping(ctx context.Context, tenantId, sessionId int64, jid, lid string) error

	// UpsertName creates or renames a contact without touching the message
	// bookkeeping fields
	UpsertName(ctx context.Context, tenantId, sessionId int64, jid, name string) error
}

// MessageRepository handles database operations for chat messages
type MessageRepository interface {
	// Insert creates a message row if the (session, message-id) natural key
	// is unused; it reports false without error when the row already exists
	Insert(ctx context.Context, msg *domain.ChatMessage) (bool, error)

	// Get retrieves a message by its natural key
	Get(ctx context.Context, sessionId int64, msgId string) (*domain.ChatMessage, error)

	// MarkSent stamps a successful send: status, delivered timestamp and
	// the delivery path used, with the processing lock cleared
	MarkSent(ctx context.Context, sessionId int64, msgId, via string) error

	// MarkFailed records a failed send and clears the processing lock
	MarkFailed(ctx context.Context, sessionId int64, msgId, errMsg string) error

	// UpdateStatusByMsgIds applies a delivery-receipt status to a batch of
	// message ids within one session
	UpdateStatusByMsgIds(ctx context.Context, sessionId int64, msgIds []string, status string) error

	// FindPendingOutbound retrieves pending outbound messages created
	// within the window, oldest first
	FindPendingOutbound(ctx context.Context, window time.Duration, limit int) ([]*domain.ChatMessage, error)

	// WriteLock persists a cooperative processing lock on the message
	WriteLock(ctx context.Context, sessionId int64, msgId string, lock domain.ProcessingLock) error
}

// Repositories bundles the Gorm implementations over one database handle.
type Repositories struct {
	Sessions SessionRepository
	Contacts ContactRepository
	Messages MessageRepository
}

// NewRepositories creates the Gorm-backed repository bundle.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Sessions: NewGormSessionRepository(db),
		Contacts: NewGormContactRepository(db),
		Messages: NewGormMessageRepository(db),
	}
}
