package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// SysConfig system configuration
type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	WorkerId int64  `yaml:"worker_id" json:"worker_id"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

// DBConfig database configuration
type DBConfig struct {
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

// LogConfig logger configuration
type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

// BridgeConfig protocol bridge tuning knobs. The defaults implement the
// documented policy; the values are deliberately tunable.
type BridgeConfig struct {
	// ReconcileInterval is the desired-state polling cadence. Kept tight
	// because pairing-code latency is user visible.
	ReconcileInterval time.Duration `yaml:"reconcile_interval" json:"reconcile_interval"`
	// ReconnectDelay is the pause before the single reconnect attempt after
	// a transient disconnect.
	ReconnectDelay time.Duration `yaml:"reconnect_delay" json:"reconnect_delay"`
	// HandshakeTimeout bounds the connect/pairing handshake.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`
}

// OutboxConfig outbound delivery configuration
type OutboxConfig struct {
	// Concurrency is the delivery consumer pool size.
	Concurrency int `yaml:"concurrency" json:"concurrency"`
	// SweepBatch limits how many pending rows one sweep cycle may claim.
	SweepBatch int `yaml:"sweep_batch" json:"sweep_batch"`
	// SweepWindow ignores pending messages older than this; they are
	// presumed abandoned.
	SweepWindow time.Duration `yaml:"sweep_window" json:"sweep_window"`
	// LockStale is the age after which another worker's processing lock is
	// treated as abandoned.
	LockStale time.Duration `yaml:"lock_stale" json:"lock_stale"`
}

// RealtimeConfig pub/sub broker configuration. All fields empty means the
// broadcaster runs as a no-op.
type RealtimeConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint" mapstructure:"endpoint"`
	AppId    string `yaml:"app_id" json:"app_id" mapstructure:"app_id"`
	Key      string `yaml:"key" json:"key" mapstructure:"key"`
	Secret   string `yaml:"secret" json:"secret" mapstructure:"secret"`
}

type AppConfig struct {
	System   SysConfig      `yaml:"system" json:"system"`
	Database DBConfig       `yaml:"database" json:"database"`
	Logger   LogConfig      `yaml:"logger" json:"logger"`
	Bridge   BridgeConfig   `yaml:"bridge" json:"bridge"`
	Outbox   OutboxConfig   `yaml:"outbox" json:"outbox"`
	Realtime RealtimeConfig `yaml:"realtime" json:"realtime"`
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "chatmux",
		Location: "Asia/Jakarta",
		Workdir:  "/var/chatmux",
		WorkerId: 1,
		Debug:    true,
	},
	Database: DBConfig{
		Type:     "postgres",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "chatmux",
		User:     "postgres",
		Passwd:   "",
		MaxConn:  100,
		IdleConn: 10,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: true,
		Filename:   "/var/chatmux/chatmux.log",
	},
	Bridge: BridgeConfig{
		ReconcileInterval: 3 * time.Second,
		ReconnectDelay:    3 * time.Second,
		HandshakeTimeout:  60 * time.Second,
	},
	Outbox: OutboxConfig{
		Concurrency: 5,
		SweepBatch:  50,
		SweepWindow: 24 * time.Hour,
		LockStale:   5 * time.Minute,
	},
	Realtime: RealtimeConfig{},
}

func setEnvValue(name string, val *string) {
	var evalue = os.Getenv(name)
	if evalue != "" {
		*val = evalue
	}
}

func setEnvBoolValue(name string, val *bool) {
	var evalue = os.Getenv(name)
	if evalue != "" {
		*val = evalue == "true" || evalue == "1" || evalue == "on"
	}
}

// LoadConfig reads the YAML configuration file and applies environment
// overrides. A missing file yields the defaults.
func LoadConfig(cfile string) *AppConfig {
	cfg := new(AppConfig)
	*cfg = *DefaultAppConfig
	if cfile != "" {
		if data, err := os.ReadFile(cfile); err == nil {
			_ = yaml.Unmarshal(data, cfg)
		}
	}

	setEnvValue("CHATMUX_SYSTEM_WORKDIR", &cfg.System.Workdir)
	setEnvBoolValue("CHATMUX_SYSTEM_DEBUG", &cfg.System.Debug)

	setEnvValue("CHATMUX_DB_TYPE", &cfg.Database.Type)
	setEnvValue("CHATMUX_DB_HOST", &cfg.Database.Host)
	setEnvValue("CHATMUX_DB_NAME", &cfg.Database.Name)
	setEnvValue("CHATMUX_DB_USER", &cfg.Database.User)
	setEnvValue("CHATMUX_DB_PWD", &cfg.Database.Passwd)

	setEnvValue("CHATMUX_REALTIME_ENDPOINT", &cfg.Realtime.Endpoint)
	setEnvValue("CHATMUX_REALTIME_APPID", &cfg.Realtime.AppId)
	setEnvValue("CHATMUX_REALTIME_KEY", &cfg.Realtime.Key)
	setEnvValue("CHATMUX_REALTIME_SECRET", &cfg.Realtime.Secret)

	if cfg.Bridge.ReconcileInterval <= 0 {
		cfg.Bridge.ReconcileInterval = DefaultAppConfig.Bridge.ReconcileInterval
	}
	if cfg.Bridge.ReconnectDelay <= 0 {
		cfg.Bridge.ReconnectDelay = DefaultAppConfig.Bridge.ReconnectDelay
	}
	if cfg.Bridge.HandshakeTimeout <= 0 {
		cfg.Bridge.HandshakeTimeout = DefaultAppConfig.Bridge.HandshakeTimeout
	}
	if cfg.Outbox.Concurrency <= 0 {
		cfg.Outbox.Concurrency = DefaultAppConfig.Outbox.Concurrency
	}
	if cfg.Outbox.SweepBatch <= 0 {
		cfg.Outbox.SweepBatch = DefaultAppConfig.Outbox.SweepBatch
	}
	if cfg.Outbox.SweepWindow <= 0 {
		cfg.Outbox.SweepWindow = DefaultAppConfig.Outbox.SweepWindow
	}
	if cfg.Outbox.LockStale <= 0 {
		cfg.Outbox.LockStale = DefaultAppConfig.Outbox.LockStale
	}
	return cfg
}
