package wabridge

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/chatmux/chatmux/internal/domain"
	"github.com/chatmux/chatmux/internal/realtime"
	"github.com/chatmux/chatmux/internal/store"
	"github.com/chatmux/chatmux/pkg/metrics"
)

// State is the in-memory connection state of one manager.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateQrRequired
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateQrRequired:
		return "qr_required"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

// ManagerDeps carries everything a manager needs besides its session row.
type ManagerDeps struct {
	Dialer           Dialer
	Sessions         store.SessionRepository
	Ingest           InboundSink
	Cast             realtime.Broadcaster
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
}

// New builds a manager for one session. The session row is captured by value
// at creation time; reconciliation replaces the manager when the row changes
// in ways that matter.
func (d ManagerDeps) New(sess *domain.ChatSession) *Manager {
	cp := *sess
	return &Manager{
		sess: &cp,
		deps: d,
	}
}

// Manager owns the connection lifecycle of exactly one session. All methods
// are safe for concurrent use.
type Manager struct {
	sess *domain.ChatSession
	deps ManagerDeps

	mu               sync.Mutex
	state            State
	transport        Transport
	attempt          uint64
	destroyed        bool
	reconnectPending bool
}

func (m *Manager) SessionID() int64 { return m.sess.ID }
func (m *Manager) TenantID() int64  { return m.sess.TenantId }
func (m *Manager) Sid() string      { return m.sess.Sid }

// State returns the current in-memory connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the session can deliver messages right now.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	t := m.transport
	st := m.state
	m.mu.Unlock()
	return st == StateConnected && t != nil && t.IsConnected()
}

// Transport returns the live transport, or nil when disconnected.
func (m *Manager) Transport() Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transport
}

// Connect dials and starts the handshake. Calling it while a connection
// attempt is already in flight, or after Destroy, is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.destroyed || m.state != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.attempt++
	attempt := m.attempt
	m.mu.Unlock()

	if err := m.deps.Sessions.UpdateStatus(ctx, m.sess.ID, domain.SessionConnecting, ""); err != nil {
		zap.L().Error("session status persist failed", zap.String("sid", m.sess.Sid), zap.Error(err))
	}

	dctx, cancel := context.WithTimeout(ctx, m.deps.HandshakeTimeout)
	defer cancel()
	transport, err := m.deps.Dialer.Dial(dctx, m.sess, m.handleEvent)
	if err != nil {
		m.fail(err)
		return err
	}

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		transport.Disconnect()
		return nil
	}
	m.transport = transport
	m.mu.Unlock()

	if err := transport.Connect(); err != nil {
		m.fail(err)
		return err
	}
	// A session still CONNECTING with no pairing code after the handshake
	// window is stuck; surface it instead of spinning silently. The timer
	// carries the attempt it was armed for so it cannot fire into a later
	// reconnect attempt.
	time.AfterFunc(m.deps.HandshakeTimeout, func() { m.handshakeExpired(attempt) })
	return nil
}

func (m *Manager) handshakeExpired(attempt uint64) {
	m.mu.Lock()
	if m.destroyed || m.attempt != attempt || m.state != StateConnecting {
		m.mu.Unlock()
		return
	}
	t := m.transport
	m.transport = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if t != nil {
		t.Disconnect()
	}
	zap.L().Warn("handshake timed out", zap.String("sid", m.sess.Sid))
	if err := m.deps.Sessions.UpdateStatus(context.Background(), m.sess.ID, domain.SessionError, "handshake timeout"); err != nil {
		zap.L().Error("session status persist failed", zap.String("sid", m.sess.Sid), zap.Error(err))
	}
}

func (m *Manager) fail(err error) {
	m.mu.Lock()
	m.state = StateDisconnected
	m.transport = nil
	m.mu.Unlock()
	if perr := m.deps.Sessions.UpdateStatus(context.Background(), m.sess.ID, domain.SessionError, err.Error()); perr != nil {
		zap.L().Error("session status persist failed", zap.String("sid", m.sess.Sid), zap.Error(perr))
	}
}

// Destroy tears the manager down for good. Idempotent. It only releases the
// transport and flags the manager dead; session status is owned by whoever
// decided the session should stop.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	t := m.transport
	m.transport = nil
	m.state = StateDisconnected
	m.mu.Unlock()
	if t != nil {
		t.Disconnect()
	}
}

func (m *Manager) handleEvent(evt Event) {
	switch evt.Kind {
	case EventPairingCode:
		m.onPairingCode(evt.Code)
	case EventOpened:
		m.onOpened(evt.Phone, evt.PushName)
	case EventKeysRotated:
		m.onKeysRotated(evt.DeviceJid)
	case EventClosed:
		m.onClosed(evt.Reason, evt.Detail)
	case EventMessage:
		if err := m.deps.Ingest.HandleMessage(context.Background(), m.sess, evt.Message); err != nil {
			zap.L().Error("inbound message ingest failed", zap.String("sid", m.sess.Sid), zap.Error(err))
		}
	case EventContactSync:
		if err := m.deps.Ingest.HandleContacts(context.Background(), m.sess, evt.Contacts); err != nil {
			zap.L().Error("contact sync failed", zap.String("sid", m.sess.Sid), zap.Error(err))
		}
	case EventReceipt:
		if err := m.deps.Ingest.HandleReceipt(context.Background(), m.sess, evt.Receipt); err != nil {
			zap.L().Error("receipt update failed", zap.String("sid", m.sess.Sid), zap.Error(err))
		}
	}
}

func (m *Manager) onPairingCode(code string) {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.state = StateQrRequired
	m.mu.Unlock()

	zap.L().Info("pairing code issued", zap.String("sid", m.sess.Sid))
	if err := m.deps.Sessions.SetPairing(context.Background(), m.sess.ID, code, time.Now()); err != nil {
		zap.L().Error("pairing code persist failed", zap.String("sid", m.sess.Sid), zap.Error(err))
	}

	payload := map[string]interface{}{
		"sid":  m.sess.Sid,
		"code": code,
	}
	if png, err := qrcode.Encode(code, qrcode.Medium, 256); err == nil {
		payload["qr"] = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	}
	m.deps.Cast.Trigger(sessionChannel(m.sess.Sid), realtime.EventCodeIssued, payload)
}

func (m *Manager) onOpened(phone, pushName string) {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.state = StateConnected
	m.mu.Unlock()

	zap.L().Info("session connected", zap.String("sid", m.sess.Sid), zap.String("phone", phone))
	metrics.IncrCounter("chatmux_session_connect", 1)
	if err := m.deps.Sessions.MarkConnected(context.Background(), m.sess.ID, phone, pushName); err != nil {
		zap.L().Error("session status persist failed", zap.String("sid", m.sess.Sid), zap.Error(err))
	}
	m.deps.Cast.Trigger(sessionChannel(m.sess.Sid), realtime.EventConnected, map[string]interface{}{
		"sid":   m.sess.Sid,
		"phone": phone,
	})
}

// onKeysRotated persists the credential reference before anything else
// happens on this session. Losing it means re-pairing from scratch.
func (m *Manager) onKeysRotated(deviceJid string) {
	zap.L().Info("session keys rotated", zap.String("sid", m.sess.Sid), zap.String("device", deviceJid))
	m.sess.DeviceJid = deviceJid
	if err := m.deps.Sessions.SetDeviceJid(context.Background(), m.sess.ID, deviceJid); err != nil {
		zap.L().Error("credential reference persist failed", zap.String("sid", m.sess.Sid), zap.Error(err))
	}
}

func (m *Manager) onClosed(reason CloseReason, detail string) {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	t := m.transport
	m.transport = nil
	if reason.Permanent() {
		m.state = StateDisconnected
		m.destroyed = true
	} else {
		m.state = StateDisconnected
	}
	schedule := !reason.Permanent() && !m.reconnectPending
	if schedule {
		m.reconnectPending = true
	}
	m.mu.Unlock()

	if t != nil {
		t.Disconnect()
	}

	if reason.Permanent() {
		zap.L().Warn("session closed permanently",
			zap.String("sid", m.sess.Sid), zap.Stringer("reason", reason), zap.String("detail", detail))
		if err := m.deps.Sessions.UpdateStatus(context.Background(), m.sess.ID, domain.SessionDisconnected, detail); err != nil {
			zap.L().Error("session status persist failed", zap.String("sid", m.sess.Sid), zap.Error(err))
		}
		m.deps.Cast.Trigger(sessionChannel(m.sess.Sid), realtime.EventDisconnected, map[string]interface{}{
			"sid":    m.sess.Sid,
			"reason": reason.String(),
		})
		return
	}

	zap.L().Info("session closed, reconnect scheduled",
		zap.String("sid", m.sess.Sid), zap.String("detail", detail))
	if err := m.deps.Sessions.UpdateStatus(context.Background(), m.sess.ID, domain.SessionConnecting, detail); err != nil {
		zap.L().Error("session status persist failed", zap.String("sid", m.sess.Sid), zap.Error(err))
	}
	if schedule {
		time.AfterFunc(m.deps.ReconnectDelay, m.reconnect)
	}
}

func (m *Manager) reconnect() {
	m.mu.Lock()
	m.reconnectPending = false
	if m.destroyed || m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	metrics.IncrCounter("chatmux_session_reconnect", 1)
	if err := m.Connect(context.Background()); err != nil {
		zap.L().Error("reconnect failed", zap.String("sid", m.sess.Sid), zap.Error(err))
	}
}

func sessionChannel(sid string) string {
	return fmt.Sprintf("session.%s", sid)
}
