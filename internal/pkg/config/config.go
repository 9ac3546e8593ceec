// Package config resolves settings and credential file locations shared by
// the command line tools.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// configDirName matches where existing LEAP tooling keeps credentials, so
// certificates pair once and work everywhere.
const configDirName = "pylutron_caseta"

// Config carries environment-driven defaults; command line flags override
// them.
type Config struct {
	CertDir  string `env:"LEAP_CERT_DIR"`
	LogLevel string `env:"LEAP_LOG_LEVEL" envDefault:"info"`

	MQTTBroker   string `env:"LEAP_MQTT_BROKER"`
	MQTTUsername string `env:"LEAP_MQTT_USERNAME"`
	MQTTPassword string `env:"LEAP_MQTT_PASSWORD"`
}

// Load reads the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// CertPaths names the three files pairing produces for a host, under the
// configured directory or the user's config home.
type CertPaths struct {
	CA   string // <host>-bridge.crt
	Cert string // <host>.crt
	Key  string // <host>.key
}

// Paths resolves the credential files for host, creating the directory
// when create is set.
func (c *Config) Paths(host string, create bool) (CertPaths, error) {
	dir := c.CertDir
	if dir == "" {
		configHome, err := os.UserConfigDir()
		if err != nil {
			return CertPaths{}, fmt.Errorf("resolve config dir: %w", err)
		}
		dir = filepath.Join(configHome, configDirName)
	}
	if create {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return CertPaths{}, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return CertPaths{
		CA:   filepath.Join(dir, host+"-bridge.crt"),
		Cert: filepath.Join(dir, host+".crt"),
		Key:  filepath.Join(dir, host+".key"),
	}, nil
}
