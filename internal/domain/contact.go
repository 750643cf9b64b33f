package domain

import "time"

// ChatContact is one (tenant, external identifier) pair. Created or updated
// on the first message touching the identifier; never deleted automatically.
type ChatContact struct {
	ID            int64     `json:"id,string" form:"id" gorm:"primaryKey"`
	TenantId      int64     `json:"tenant_id,string" form:"tenant_id" gorm:"uniqueIndex:uk_contact_tenant_jid"`
	Jid           string    `json:"jid" form:"jid" gorm:"uniqueIndex:uk_contact_tenant_jid"` // canonical phone-derived identifier
	SessionId     int64     `json:"session_id,string" form:"session_id" gorm:"index"`
	Name          string    `json:"name" form:"name"`
	Unread        int       `json:"unread" form:"unread"`
	Metadata      string    `json:"metadata"` // ContactMeta JSON, holds the discovered alternate identifier
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName Specify table name
func (ChatContact) TableName() string {
	return "chat_contact"
}
