package domain

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// The metadata columns carry small tagged structs serialized at the
// persistence boundary only. Unknown fields from other writers are preserved
// on decode failure by leaving the raw column untouched.

// PairingInfo is the ephemeral pairing code captured from the transport.
type PairingInfo struct {
	Code     string    `json:"code,omitempty"`
	IssuedAt time.Time `json:"issuedAt,omitempty"`
}

// SessionMeta is the typed view of ChatSession.Metadata.
type SessionMeta struct {
	Pairing  PairingInfo       `json:"pairing,omitempty"`
	Platform string            `json:"platform,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// ContactMeta is the typed view of ChatContact.Metadata. Lid records the
// discovered alternate identifier for the contact.
type ContactMeta struct {
	Lid      string            `json:"lid,omitempty"`
	PushName string            `json:"pushName,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// ProcessingLock is the cooperative staleness-based lock used by the
// fallback sweeper. The lock write and the send are not atomic; the
// staleness threshold bounds the crash window.
type ProcessingLock struct {
	Processing bool      `json:"processing,omitempty"`
	StartedAt  time.Time `json:"processingStartedAt,omitempty"`
	Owner      string    `json:"owner,omitempty"`
}

// MessageMeta is the typed view of ChatMessage.Metadata.
type MessageMeta struct {
	Lock         ProcessingLock `json:"lock,omitempty"`
	DeliveredVia string         `json:"deliveredVia,omitempty"` // queue | sweeper
	SenderLid    string         `json:"senderLid,omitempty"`
}

// Held reports whether the lock is currently owned by a live actor, i.e. it
// is set and younger than stale.
func (l ProcessingLock) Held(now time.Time, stale time.Duration) bool {
	return l.Processing && now.Sub(l.StartedAt) < stale
}

// Stale reports whether the lock is set but older than the staleness
// threshold, indicating a prior crash mid-send.
func (l ProcessingLock) Stale(now time.Time, stale time.Duration) bool {
	return l.Processing && now.Sub(l.StartedAt) >= stale
}

func DecodeSessionMeta(raw string) SessionMeta {
	var m SessionMeta
	if raw != "" {
		_ = json.UnmarshalFromString(raw, &m)
	}
	return m
}

func (m SessionMeta) Encode() string {
	s, _ := json.MarshalToString(m)
	return s
}

func DecodeContactMeta(raw string) ContactMeta {
	var m ContactMeta
	if raw != "" {
		_ = json.UnmarshalFromString(raw, &m)
	}
	return m
}

// Merge overlays non-empty fields of other onto m so concurrent partial
// updates don't erase each other.
func (m ContactMeta) Merge(other ContactMeta) ContactMeta {
	if other.Lid != "" {
		m.Lid = other.Lid
	}
	if other.PushName != "" {
		m.PushName = other.PushName
	}
	if len(other.Extra) > 0 {
		if m.Extra == nil {
			m.Extra = make(map[string]string, len(other.Extra))
		}
		for k, v := range other.Extra {
			m.Extra[k] = v
		}
	}
	return m
}

func (m ContactMeta) Encode() string {
	s, _ := json.MarshalToString(m)
	return s
}

func DecodeMessageMeta(raw string) MessageMeta {
	var m MessageMeta
	if raw != "" {
		_ = json.UnmarshalFromString(raw, &m)
	}
	return m
}

func (m MessageMeta) Encode() string {
	s, _ := json.MarshalToString(m)
	return s
}
