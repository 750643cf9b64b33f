package wabridge

import (
	"context"
	"time"

	"github.com/chatmux/chatmux/internal/domain"
)

// EventKind enumerates the protocol events the state machine dispatches on.
type EventKind int

const (
	// EventPairingCode carries a fresh pairing code. May fire repeatedly
	// before pairing completes.
	EventPairingCode EventKind = iota
	// EventOpened fires once the handshake confirms an authenticated
	// identity.
	EventOpened
	// EventClosed fires on any disconnect, with the classified reason.
	EventClosed
	// EventKeysRotated fires when the protocol rotates session keys. The
	// rotation is the durability boundary: the credential reference must be
	// persisted before anything else.
	EventKeysRotated
	// EventMessage carries one inbound chat message.
	EventMessage
	// EventContactSync carries discovered contact identities.
	EventContactSync
	// EventReceipt carries delivery receipts for previously sent messages.
	EventReceipt
)

func (k EventKind) String() string {
	switch k {
	case EventPairingCode:
		return "pairing_code"
	case EventOpened:
		return "opened"
	case EventClosed:
		return "closed"
	case EventKeysRotated:
		return "keys_rotated"
	case EventMessage:
		return "message"
	case EventContactSync:
		return "contact_sync"
	case EventReceipt:
		return "receipt"
	}
	return "unknown"
}

// CloseReason classifies a disconnect into retry policy.
type CloseReason int

const (
	// ReasonTransient covers network blips, server restarts and anything
	// else not explicitly terminal.
	ReasonTransient CloseReason = iota
	// ReasonLoggedOut is an explicit logout from the paired device.
	ReasonLoggedOut
	// ReasonConflict means another connection for the same session is
	// already active elsewhere. The loser simply stops.
	ReasonConflict
)

// Permanent reports whether the manager must stop instead of reconnecting.
func (r CloseReason) Permanent() bool {
	return r == ReasonLoggedOut || r == ReasonConflict
}

func (r CloseReason) String() string {
	switch r {
	case ReasonLoggedOut:
		return "logged_out"
	case ReasonConflict:
		return "conflict"
	}
	return "transient"
}

// InboundMessage is one received chat message, still addressed in whatever
// identifier namespace the transport delivered.
type InboundMessage struct {
	MsgId     string
	Sender    string // raw sender identifier, possibly an alternate-namespace one
	SenderAlt string // companion phone-derived identifier when the event carries one
	Chat      string
	PushName  string
	Kind      string
	Content   string
	Timestamp time.Time
}

// ContactSync is one discovered contact identity pair.
type ContactSync struct {
	Jid  string // phone-derived identifier
	Lid  string // alternate identifier, may be empty
	Name string
}

// ReceiptInfo is a delivery receipt batch for one session.
type ReceiptInfo struct {
	MsgIds []string
	Status string // domain.MessageDelivered or domain.MessageRead
}

// Event is the typed protocol event fed into the connection manager.
type Event struct {
	Kind      EventKind
	Code      string // pairing code
	Reason    CloseReason
	Detail    string // close detail or error text
	Phone     string
	PushName  string
	DeviceJid string // rotated credential reference
	Message   *InboundMessage
	Contacts  []ContactSync
	Receipt   *ReceiptInfo
}

// Transport is one live protocol connection handle.
type Transport interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	SendText(ctx context.Context, to, text, msgId string) error
}

// Dialer constructs transports from persisted credentials, wiring the event
// sink before the handshake starts.
type Dialer interface {
	Dial(ctx context.Context, sess *domain.ChatSession, sink func(Event)) (Transport, error)
}

// InboundSink consumes the domain side of inbound traffic.
type InboundSink interface {
	HandleMessage(ctx context.Context, sess *domain.ChatSession, msg *InboundMessage) error
	HandleContacts(ctx context.Context, sess *domain.ChatSession, contacts []ContactSync) error
	HandleReceipt(ctx context.Context, sess *domain.ChatSession, rcpt *ReceiptInfo) error
}
