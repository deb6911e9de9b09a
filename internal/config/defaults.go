package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// SettingsDefaults is the fallback call configuration applied to shops
// that have not saved their own settings row yet.
type SettingsDefaults struct {
	Enabled         bool    `mapstructure:"enabled"`
	DelayMinutes    int     `mapstructure:"delayMinutes"`
	MaxAttempts     int     `mapstructure:"maxAttempts"`
	RetryMinutes    int     `mapstructure:"retryMinutes"`
	MinOrderValue   float64 `mapstructure:"minOrderValue"`
	Currency        string  `mapstructure:"currency"`
	CallWindowStart string  `mapstructure:"callWindowStart"`
	CallWindowEnd   string  `mapstructure:"callWindowEnd"`
}

func DefaultSettingsDefaults() SettingsDefaults {
	return SettingsDefaults{
		Enabled:         false,
		DelayMinutes:    30,
		MaxAttempts:     2,
		RetryMinutes:    180,
		MinOrderValue:   0,
		Currency:        "USD",
		CallWindowStart: "09:00",
		CallWindowEnd:   "19:00",
	}
}

// SettingsDefaultsHolder hot-reloads defaults from recova.yml so support
// can tune global pacing without a deploy.
type SettingsDefaultsHolder struct {
	current atomic.Value // holds SettingsDefaults
}

func NewSettingsDefaultsHolder() (*SettingsDefaultsHolder, error) {
	v := viper.New()

	v.SetConfigName("recova")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/recova/config")
	v.AddConfigPath("/etc/recova")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RECOVA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults are registered before the file is read so a partial
	// recova.yml merges over them instead of zeroing unset keys.
	defaults := DefaultSettingsDefaults()
	v.SetDefault("calls.enabled", defaults.Enabled)
	v.SetDefault("calls.delayMinutes", defaults.DelayMinutes)
	v.SetDefault("calls.maxAttempts", defaults.MaxAttempts)
	v.SetDefault("calls.retryMinutes", defaults.RetryMinutes)
	v.SetDefault("calls.minOrderValue", defaults.MinOrderValue)
	v.SetDefault("calls.currency", defaults.Currency)
	v.SetDefault("calls.callWindowStart", defaults.CallWindowStart)
	v.SetDefault("calls.callWindowEnd", defaults.CallWindowEnd)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg SettingsDefaults
	if err := v.UnmarshalKey("calls", &cfg); err != nil {
		return nil, err
	}
	if err := validateSettingsDefaults(cfg); err != nil {
		return nil, err
	}

	holder := &SettingsDefaultsHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SettingsDefaults
		if err := v.UnmarshalKey("calls", &updated); err != nil {
			log.Printf("[settings-defaults] reload failed: %v", err)
			return
		}
		if err := validateSettingsDefaults(updated); err != nil {
			log.Printf("[settings-defaults] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[settings-defaults] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *SettingsDefaultsHolder) Get() SettingsDefaults {
	return h.current.Load().(SettingsDefaults)
}

func validateSettingsDefaults(cfg SettingsDefaults) error {
	if cfg.MaxAttempts < 0 {
		return errors.New("calls.maxAttempts cannot be negative")
	}
	if cfg.DelayMinutes < 0 || cfg.RetryMinutes < 0 {
		return errors.New("calls delay/retry minutes cannot be negative")
	}
	return nil
}
