package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileOverlay is the YAML config file shape. Every field is optional; a set
// field overrides the corresponding environment value. Deployments that
// prefer a config file over a wall of env vars use this.
type fileOverlay struct {
	DataDir             *string   `yaml:"data_dir"`
	ListenAddress       *string   `yaml:"listen_address"`
	Port                *int      `yaml:"port"`
	APIMaxBodyBytes     *int      `yaml:"api_max_body_bytes"`
	ShutdownTimeout     *Duration `yaml:"shutdown_timeout"`
	AdminToken          *string   `yaml:"admin_token"`
	BanSweepSchedule    *string   `yaml:"ban_sweep_schedule"`
	CameraIndexMaxNames *int      `yaml:"camera_index_max_names"`
}

func applyFileOverlay(cfg *EnvConfig, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("RUTEO_CONFIG_FILE: %w", err)
	}
	var overlay fileOverlay
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&overlay); err != nil {
		return fmt.Errorf("RUTEO_CONFIG_FILE: invalid YAML in %s: %w", path, err)
	}

	if overlay.DataDir != nil {
		cfg.DataDir = *overlay.DataDir
	}
	if overlay.ListenAddress != nil {
		cfg.ListenAddress = *overlay.ListenAddress
	}
	if overlay.Port != nil {
		cfg.Port = *overlay.Port
	}
	if overlay.APIMaxBodyBytes != nil {
		cfg.APIMaxBodyBytes = *overlay.APIMaxBodyBytes
	}
	if overlay.ShutdownTimeout != nil {
		cfg.ShutdownTimeout = overlay.ShutdownTimeout.Std()
	}
	if overlay.AdminToken != nil {
		cfg.AdminToken = *overlay.AdminToken
	}
	if overlay.BanSweepSchedule != nil {
		cfg.BanSweepSchedule = *overlay.BanSweepSchedule
	}
	if overlay.CameraIndexMaxNames != nil {
		cfg.CameraIndexMaxNames = *overlay.CameraIndexMaxNames
	}
	return nil
}
