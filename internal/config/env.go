// Package config handles environment-based configuration loading with an
// optional YAML overlay file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// EnvConfig holds all environment-variable-driven settings.
type EnvConfig struct {
	// Directories
	DataDir string

	// Network
	ListenAddress string
	Port          int

	// API
	APIMaxBodyBytes int
	ShutdownTimeout time.Duration

	// Auth (empty means auth disabled)
	AdminToken string

	// Protection
	BanSweepSchedule string

	// Camera identity index
	CameraIndexMaxNames int
}

// LoadEnvConfig reads environment variables, applies the YAML overlay file
// named by RUTEO_CONFIG_FILE (if any), and returns a validated EnvConfig.
// Returns an error if any required variable is missing or any value is invalid.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	cfg.DataDir = envStr("RUTEO_DATA_DIR", "/var/lib/ruteo")
	cfg.ListenAddress = strings.TrimSpace(envStr("RUTEO_LISTEN_ADDRESS", "0.0.0.0"))
	cfg.Port = envInt("RUTEO_PORT", 2280, &errs)
	cfg.APIMaxBodyBytes = envInt("RUTEO_API_MAX_BODY_BYTES", 1<<20, &errs)
	cfg.ShutdownTimeout = envDuration("RUTEO_SHUTDOWN_TIMEOUT", 10*time.Second, &errs)
	cfg.BanSweepSchedule = envStr("RUTEO_BAN_SWEEP_SCHEDULE", "@every 15m")
	cfg.CameraIndexMaxNames = envInt("RUTEO_CAMERA_INDEX_MAX_NAMES", 65536, &errs)

	// Must be defined; empty means auth disabled.
	adminToken, hasAdminToken := os.LookupEnv("RUTEO_ADMIN_TOKEN")
	cfg.AdminToken = adminToken

	if path := envStr("RUTEO_CONFIG_FILE", ""); path != "" {
		if err := applyFileOverlay(cfg, path); err != nil {
			errs = append(errs, err.Error())
		}
	}

	// --- Validation ---
	if !hasAdminToken {
		errs = append(errs, "RUTEO_ADMIN_TOKEN must be defined (can be empty)")
	}
	if cfg.ListenAddress == "" {
		errs = append(errs, "RUTEO_LISTEN_ADDRESS must not be empty")
	}
	if cfg.DataDir == "" {
		errs = append(errs, "RUTEO_DATA_DIR must not be empty")
	}
	validatePort("RUTEO_PORT", cfg.Port, &errs)
	validatePositive("RUTEO_API_MAX_BODY_BYTES", cfg.APIMaxBodyBytes, &errs)
	validatePositive("RUTEO_CAMERA_INDEX_MAX_NAMES", cfg.CameraIndexMaxNames, &errs)
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, "RUTEO_SHUTDOWN_TIMEOUT must be positive")
	}
	if _, err := cron.ParseStandard(cfg.BanSweepSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("RUTEO_BAN_SWEEP_SCHEDULE: invalid cron expression %q: %v", cfg.BanSweepSchedule, err))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}
