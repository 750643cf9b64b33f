package app

import (
	"errors"
	"time"

	"github.com/chatmux/chatmux/internal/domain"
	gocache "github.com/patrickmn/go-cache"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultSettingsCacheTTL bounds how stale a cached settings value may be.
const DefaultSettingsCacheTTL = 30 * time.Second

// ConfigManager reads runtime settings from the sys_config table with a
// short-lived cache in front.
type ConfigManager struct {
	app   DBProvider
	cache *gocache.Cache
}

func NewConfigManager(a DBProvider) *ConfigManager {
	return &ConfigManager{
		app:   a,
		cache: gocache.New(DefaultSettingsCacheTTL, time.Minute),
	}
}

func (m *ConfigManager) get(category, name string) (string, bool) {
	key := category + "." + name
	if v, ok := m.cache.Get(key); ok {
		return v.(string), true
	}
	var cfg domain.SysConfig
	err := m.app.DB().Where("type = ? AND name = ?", category, name).First(&cfg).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			zap.L().Warn("settings lookup failed",
				zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	m.cache.SetDefault(key, cfg.Value)
	return cfg.Value, true
}

// GetString returns the configured value or empty string.
func (m *ConfigManager) GetString(category, name string) string {
	v, _ := m.get(category, name)
	return v
}

// GetInt64 returns the configured value cast to int64, zero when unset.
func (m *ConfigManager) GetInt64(category, name string) int64 {
	v, ok := m.get(category, name)
	if !ok {
		return 0
	}
	return cast.ToInt64(v)
}

// GetInt returns the configured value cast to int, zero when unset.
func (m *ConfigManager) GetInt(category, name string) int {
	v, ok := m.get(category, name)
	if !ok {
		return 0
	}
	return cast.ToInt(v)
}

// GetBool returns the configured value cast to bool, false when unset.
func (m *ConfigManager) GetBool(category, name string) bool {
	v, ok := m.get(category, name)
	if !ok {
		return false
	}
	return cast.ToBool(v)
}

// SetValue writes a settings value and drops the cached copy.
func (m *ConfigManager) SetValue(category, name, value string) error {
	key := category + "." + name
	defer m.cache.Delete(key)
	var cfg domain.SysConfig
	err := m.app.DB().Where("type = ? AND name = ?", category, name).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return m.app.DB().Create(&domain.SysConfig{
			Type:  category,
			Name:  name,
			Value: value,
		}).Error
	}
	if err != nil {
		return err
	}
	return m.app.DB().Model(&domain.SysConfig{}).
		Where("id = ?", cfg.ID).
		Update("value", value).Error
}
