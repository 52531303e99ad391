// Package config loads runtime settings for the RAID engine and CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// Config holds all tunables
type Config struct {
	RAID     RAIDConfig     `mapstructure:"raid"`
	Registry RegistryConfig `mapstructure:"registry"`
	Device   DeviceConfig   `mapstructure:"device"`
	Log      LogConfig      `mapstructure:"log"`
}

// RAIDConfig holds array engine tunables
type RAIDConfig struct {
	// Proximity is the mirror read locality window in sectors
	Proximity uint64 `mapstructure:"proximity"`
	// RebuildWindow is the number of sectors copied per rebuild step
	RebuildWindow uint64 `mapstructure:"rebuild_window"`
	// CheckpointWindows is how many rebuild steps pass between cursor writebacks
	CheckpointWindows int `mapstructure:"checkpoint_windows"`
	// DefaultInterleave is the stripe unit in sectors used when create omits one
	DefaultInterleave uint32 `mapstructure:"default_interleave"`
	// DefaultFormat is the metadata family used when create omits one
	DefaultFormat string `mapstructure:"default_format"`
}

// RegistryConfig holds array registry settings
type RegistryConfig struct {
	// Salt separates arrays of different controller families sharing a tag
	Salt string `mapstructure:"salt"`
}

// DeviceConfig holds settings for file backed member devices
type DeviceConfig struct {
	SyncWrites bool `mapstructure:"sync_writes"`
	ReadOnly   bool `mapstructure:"read_only"`
}

// LogConfig selects the zap preset
type LogConfig struct {
	Mode string `mapstructure:"mode"`
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() *Config {
	return &Config{
		RAID: RAIDConfig{
			Proximity:         1024,
			RebuildWindow:     256,
			CheckpointWindows: 16,
			DefaultInterleave: 128,
			DefaultFormat:     "promise",
		},
		Device: DeviceConfig{SyncWrites: true},
		Log:    LogConfig{Mode: "prod"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("raid.proximity", d.RAID.Proximity)
	v.SetDefault("raid.rebuild_window", d.RAID.RebuildWindow)
	v.SetDefault("raid.checkpoint_windows", d.RAID.CheckpointWindows)
	v.SetDefault("raid.default_interleave", d.RAID.DefaultInterleave)
	v.SetDefault("raid.default_format", d.RAID.DefaultFormat)
	v.SetDefault("registry.salt", d.Registry.Salt)
	v.SetDefault("device.sync_writes", d.Device.SyncWrites)
	v.SetDefault("device.read_only", d.Device.ReadOnly)
	v.SetDefault("log.mode", d.Log.Mode)
}

// Load reads configuration using Viper. An explicit path wins over the search
// path; a missing config file is not an error.
func Load(path string) (*Config, error) {
	// .env only seeds the process environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ataraid-config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.ataraid")
		v.AddConfigPath("/etc/ataraid")
	}

	setDefaults(v)

	v.SetEnvPrefix("ATARAID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the engine cannot work with
func (c *Config) Validate() error {
	if c.RAID.RebuildWindow == 0 {
		return fmt.Errorf("raid.rebuild_window must be positive")
	}
	if c.RAID.CheckpointWindows <= 0 {
		return fmt.Errorf("raid.checkpoint_windows must be positive")
	}
	if !types.IsPowerOfTwo(uint64(c.RAID.DefaultInterleave)) {
		return fmt.Errorf("raid.default_interleave must be a power of two, got %d", c.RAID.DefaultInterleave)
	}
	return nil
}
