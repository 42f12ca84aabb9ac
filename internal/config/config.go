// Package config loads fpw settings from config.yaml, FPW_* environment
// variables and command-line flags through a package-level viper instance.
//
// Discovery order for config.yaml:
//  1. $FPW_CONFIG, when set
//  2. .fpw/config.yaml in the working directory or any parent
//  3. $XDG_CONFIG_HOME/fpw/config.yaml (~/.config/fpw/config.yaml)
//
// Environment variables override the file: store.mode is FPW_STORE_MODE,
// poll.error-threshold is FPW_POLL_ERROR_THRESHOLD.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DirName is the per-project configuration directory.
const DirName = ".fpw"

// Store modes.
const (
	StoreMemory       = "memory"
	StoreDoltEmbedded = "dolt-embedded"
	StoreDoltServer   = "dolt-server"
)

var v *viper.Viper

// Initialize sets up the viper instance, applying defaults, environment
// bindings and the discovered config file. It may be called again to
// re-read the environment.
func Initialize() error {
	nv := viper.New()
	nv.SetConfigType("yaml")
	nv.SetEnvPrefix("FPW")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	nv.AutomaticEnv()
	setDefaults(nv)

	if path := findConfigFile(); path != "" {
		nv.SetConfigFile(path)
		if err := nv.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", path, err)
		}
	}
	v = nv
	return nil
}

// ResetForTesting drops the viper instance so each test starts clean.
func ResetForTesting() {
	v = nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.mode", StoreDoltEmbedded)
	v.SetDefault("store.path", filepath.Join(DirName, "dolt"))
	v.SetDefault("store.database", "fpw")
	v.SetDefault("store.host", "127.0.0.1")
	v.SetDefault("store.port", 3306)
	v.SetDefault("store.user", "root")
	v.SetDefault("store.password", "")
	v.SetDefault("store.tls", false)

	v.SetDefault("fas.url", "")
	v.SetDefault("fas.token", "")
	v.SetDefault("fas.timeout", 30*time.Second)
	v.SetDefault("fas.token-ttl", 7*24*time.Hour)

	v.SetDefault("geoawareness.url", "")
	v.SetDefault("geoawareness.token", "")
	v.SetDefault("geoawareness.timeout", 30*time.Second)
	v.SetDefault("airspace.catalog", "")

	v.SetDefault("volumes.url", "")
	v.SetDefault("volumes.token", "")
	v.SetDefault("volumes.timeout", 2*time.Minute)
	v.SetDefault("volumes.trajectory-dir", filepath.Join(DirName, "trajectories"))

	v.SetDefault("poll.interval", 10*time.Second)
	v.SetDefault("poll.error-threshold", 3)
	v.SetDefault("poll.cache", filepath.Join(DirName, "snapshot.cbor"))

	v.SetDefault("callback.addr", "127.0.0.1:8686")
	v.SetDefault("callback.url", "")
	v.SetDefault("callback.secret", "")

	v.SetDefault("inbox.dir", "")
	v.SetDefault("inbox.debounce", 500*time.Millisecond)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.stdout", false)
	v.SetDefault("telemetry.otlp-endpoint", "")
	v.SetDefault("telemetry.metrics-interval", 30*time.Second)

	v.SetDefault("randomize", false)
	v.SetDefault("verbose", false)
}

// findConfigFile returns the first config file found in discovery order, or
// "" if there is none.
func findConfigFile() string {
	if p := os.Getenv("FPW_CONFIG"); p != "" {
		return p
	}
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; ; {
			candidate := filepath.Join(dir, DirName, "config.yaml")
			if fileExists(candidate) {
				return candidate
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	if dir, err := os.UserConfigDir(); err == nil {
		candidate := filepath.Join(dir, "fpw", "config.yaml")
		if fileExists(candidate) {
			return candidate
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func instance() *viper.Viper {
	if v == nil {
		nv := viper.New()
		setDefaults(nv)
		v = nv
	}
	return v
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	return instance().ConfigFileUsed()
}

// BindFlag makes flag override key when it is set on the command line.
func BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return errors.New("config: nil flag for " + key)
	}
	return instance().BindPFlag(key, flag)
}

// Set overrides key for the rest of the process.
func Set(key string, value any) {
	instance().Set(key, value)
}

// GetString retrieves a string configuration value.
func GetString(key string) string {
	return instance().GetString(key)
}

// GetBool retrieves a boolean configuration value.
func GetBool(key string) bool {
	return instance().GetBool(key)
}

// GetInt retrieves an integer configuration value.
func GetInt(key string) int {
	return instance().GetInt(key)
}

// GetDuration retrieves a duration configuration value.
func GetDuration(key string) time.Duration {
	return instance().GetDuration(key)
}

// AllSettings returns every effective setting as a nested map.
func AllSettings() map[string]any {
	return instance().AllSettings()
}

// UnmarshalKey decodes the subtree at key into out.
func UnmarshalKey(key string, out any) error {
	return instance().UnmarshalKey(key, out)
}
