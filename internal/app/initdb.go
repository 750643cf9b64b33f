package app

import (
	"strings"

	"github.com/chatmux/chatmux/internal/domain"
	"go.uber.org/zap"
)

// ConfigSchema describes one settings entry. The schema is versioned: bumping
// SettingsSchemaVersion after changing the list is the migration step; the
// seeder only fills in entries missing for the current version, so lookups
// never have to probe multiple historical keys.
type ConfigSchema struct {
	Key         string
	Default     string
	Description string
}

const SettingsSchemaVersion = "1"

var configSchemas = []ConfigSchema{
	{Key: "system.SchemaVersion", Default: SettingsSchemaVersion, Description: "Settings schema version"},
	{Key: "realtime.Endpoint", Default: "", Description: "Pub/sub broker HTTP endpoint (empty disables broadcasting)"},
	{Key: "realtime.AppId", Default: "", Description: "Pub/sub broker application id"},
	{Key: "realtime.Key", Default: "", Description: "Pub/sub broker auth key"},
	{Key: "realtime.Secret", Default: "", Description: "Pub/sub broker auth secret"},
	{Key: "bridge.ReconnectDelaySec", Default: "3", Description: "Delay before the single reconnect attempt after a transient disconnect"},
	{Key: "outbox.LockStaleSec", Default: "300", Description: "Age after which a sweeper processing lock is treated as abandoned"},
}

// checkSettings seeds missing sys_config entries for the current schema
// version.
func (a *Application) checkSettings() {
	for sortid, schema := range configSchemas {
		parts := strings.SplitN(schema.Key, ".", 2)
		if len(parts) != 2 {
			zap.L().Warn("invalid config key format", zap.String("key", schema.Key))
			continue
		}

		category := parts[0]
		name := parts[1]

		var count int64
		a.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", category, name).
			Count(&count)

		if count == 0 {
			a.gormDB.Create(&domain.SysConfig{
				Sort:   sortid,
				Type:   category,
				Name:   name,
				Value:  schema.Default,
				Remark: schema.Description,
			})
			zap.L().Info("initialized config",
				zap.String("key", schema.Key),
				zap.String("default", schema.Default))
		}
	}
}
