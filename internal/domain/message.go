package domain

import "time"

// Message direction flags
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

// Message delivery status values
const (
	MessagePending   = "PENDING"
	MessageSent      = "SENT"
	MessageDelivered = "DELIVERED"
	MessageRead      = "READ"
	MessageFailed    = "FAILED"
)

// Message kinds
const (
	KindText  = "text"
	KindImage = "image"
	KindVideo = "video"
	KindAudio = "audio"
	KindOther = "other"
)

// ChatMessage is one protocol message. (SessionId, MsgId) is the natural key:
// the enqueuing side pre-assigns MsgId so the protocol-level ID matches the
// row, and inbound ingestion dedups on the same pair. Rows are never deleted
// by this subsystem.
type ChatMessage struct {
	ID          int64     `json:"id,string" form:"id" gorm:"primaryKey"`
	SessionId   int64     `json:"session_id,string" form:"session_id" gorm:"uniqueIndex:uk_message_session_msgid"`
	MsgId       string    `json:"msg_id" form:"msg_id" gorm:"uniqueIndex:uk_message_session_msgid"`
	Jid         string    `json:"jid" form:"jid" gorm:"index"` // counterparty identifier
	Direction   string    `json:"direction" form:"direction" gorm:"index"`
	Kind        string    `json:"kind" form:"kind"`
	Content     string    `json:"content" form:"content"`
	Status      string    `json:"status" form:"status" gorm:"index"`
	ErrMessage  string    `json:"err_message" form:"err_message"`
	Metadata    string    `json:"metadata"` // MessageMeta JSON, holds the cooperative processing lock
	Timestamp   time.Time `json:"timestamp"`
	DeliveredAt time.Time `json:"delivered_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName Specify table name
func (ChatMessage) TableName() string {
	return "chat_message"
}
