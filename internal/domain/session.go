package domain

import "time"

// Session lifecycle status values. A session whose status is one of the
// "wants a live connection" set (CONNECTING, QR_REQUIRED, CONNECTED) is
// picked up by the reconciliation loop.
const (
	SessionConnecting   = "CONNECTING"
	SessionQrRequired   = "QR_REQUIRED"
	SessionConnected    = "CONNECTED"
	SessionDisconnected = "DISCONNECTED"
	SessionError        = "ERROR"
)

// DesiredStatuses is the set of statuses that demand a live connection
// manager somewhere in the fleet.
var DesiredStatuses = []string{SessionConnecting, SessionQrRequired, SessionConnected}

// ChatSession represents one tenant-device pairing and its desired
// connection state. At most one live connection manager exists per session
// across the fleet; the protocol's own conflict signal resolves races between
// worker processes.
type ChatSession struct {
	ID              int64     `json:"id,string" form:"id" gorm:"primaryKey"`
	TenantId        int64     `json:"tenant_id,string" form:"tenant_id" gorm:"index"`
	Sid             string    `json:"sid" form:"sid" gorm:"uniqueIndex"` // external session identifier
	Name            string    `json:"name" form:"name"`                  // display name
	Status          string    `json:"status" form:"status" gorm:"index"`
	Phone           string    `json:"phone" form:"phone"`           // discovered after pairing
	DeviceJid       string    `json:"device_jid" form:"device_jid"` // credential reference into the key store
	ErrMessage      string    `json:"err_message" form:"err_message"`
	Metadata        string    `json:"metadata"` // SessionMeta JSON, see metadata.go
	LastSyncAt      time.Time `json:"last_sync_at"`
	LastConnectedAt time.Time `json:"last_connected_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName Specify table name
func (ChatSession) TableName() string {
	return "chat_session"
}

// WantsConnection reports whether the persisted status demands a live
// connection manager.
func (s *ChatSession) WantsConnection() bool {
	switch s.Status {
	case SessionConnecting, SessionQrRequired, SessionConnected:
		return true
	}
	return false
}
