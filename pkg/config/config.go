// Package config loads the bridge configuration from the process environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/illmade-knight/go-streambridge/pkg/bridge"
	"github.com/illmade-knight/go-streambridge/pkg/logging"
	"github.com/illmade-knight/go-streambridge/pkg/mqttsession"
	"github.com/illmade-knight/go-streambridge/pkg/storage"
	"github.com/subosito/gotenv"
)

// DefaultEnvFile is read when present; a missing default file is not an error.
const DefaultEnvFile = ".env"

// Config is the complete configuration of the bridge process.
type Config struct {
	MQTT    mqttsession.Config
	Bridge  bridge.Config
	Storage storage.Config
	Log     logging.Config
}

// Load reads envFile into the environment without overriding variables that
// are already set, then parses and validates the configuration. An empty
// envFile means DefaultEnvFile. Any error is fatal at startup and names the
// offending variable.
func Load(envFile string) (*Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.MQTT.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.Validate(); err != nil {
		return nil, err
	}
	if cfg.Bridge.Workers < 0 {
		return nil, fmt.Errorf("BRIDGE_WORKERS cannot be negative, got %d", cfg.Bridge.Workers)
	}
	if cfg.Bridge.MaxPayloadBytes < 0 {
		return nil, fmt.Errorf("BRIDGE_MAX_PAYLOAD_BYTES cannot be negative, got %d", cfg.Bridge.MaxPayloadBytes)
	}
	return cfg, nil
}

func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	err := gotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load env file %s: %w", path, err)
}
