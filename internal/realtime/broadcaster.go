package realtime

import (
	"sync"

	"github.com/asaskevich/EventBus"
	"github.com/chatmux/chatmux/config"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

// Domain event names published on the session channels.
const (
	EventCodeIssued      = "code.issued"
	EventMessageReceived = "message.received"
	EventConnected       = "session.connected"
	EventDisconnected    = "session.disconnected"
)

// Broadcaster fans out session lifecycle and message events. Triggering is
// best-effort: failures are logged, never propagated to the caller.
type Broadcaster interface {
	Trigger(channel, event string, payload interface{})
}

// SettingsReader is the slice of the settings surface the broadcaster needs.
type SettingsReader interface {
	GetSettingsStringValue(category, key string) string
}

// Service resolves the broker from either the environment-style config or
// the persisted settings record, caches the resolution after the first
// success, and degrades to a no-op while unconfigured.
type Service struct {
	cfg      *config.AppConfig
	settings SettingsReader
	bus      EventBus.Bus

	mu      sync.Mutex
	emitter *Emitter
}

func NewService(cfg *config.AppConfig, settings SettingsReader) *Service {
	return &Service{
		cfg:      cfg,
		settings: settings,
		bus:      EventBus.New(),
	}
}

// Bus exposes the in-process event bus for local subscribers.
func (s *Service) Bus() EventBus.Bus {
	return s.bus
}

// resolve returns the cached emitter, or attempts resolution again. Only a
// successful resolution (non-empty endpoint) is cached.
func (s *Service) resolve() *Emitter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emitter != nil {
		return s.emitter
	}

	rc := s.cfg.Realtime
	if rc.Endpoint == "" && s.settings != nil {
		raw := map[string]string{
			"endpoint": s.settings.GetSettingsStringValue("realtime", "Endpoint"),
			"app_id":   s.settings.GetSettingsStringValue("realtime", "AppId"),
			"key":      s.settings.GetSettingsStringValue("realtime", "Key"),
			"secret":   s.settings.GetSettingsStringValue("realtime", "Secret"),
		}
		if err := mapstructure.Decode(raw, &rc); err != nil {
			zap.L().Warn("realtime settings decode failed", zap.Error(err))
			return nil
		}
	}
	if rc.Endpoint == "" {
		return nil
	}

	s.emitter = NewEmitter(rc)
	zap.L().Info("realtime broker resolved", zap.String("endpoint", rc.Endpoint))
	return s.emitter
}

// Trigger publishes the event on the in-process bus and, when a broker is
// configured, to the external pub/sub endpoint.
func (s *Service) Trigger(channel, event string, payload interface{}) {
	s.bus.Publish(channel, event, payload)

	em := s.resolve()
	if em == nil {
		return
	}
	if err := em.Trigger(channel, event, payload); err != nil {
		zap.L().Warn("realtime trigger failed",
			zap.String("channel", channel),
			zap.String("event", event),
			zap.Error(err))
	}
}

// Noop is a Broadcaster that drops every event, for tests and for callers
// constructed without a service.
type Noop struct{}

func (Noop) Trigger(channel, event string, payload interface{}) {}
