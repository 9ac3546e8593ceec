package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("LEAP_CERT_DIR", "/tmp/leap-certs")
	t.Setenv("LEAP_LOG_LEVEL", "debug")
	t.Setenv("LEAP_MQTT_BROKER", "tcp://broker:1883")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/leap-certs", cfg.CertDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTTBroker)
}

func TestPathsNaming(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{CertDir: dir}

	paths, err := cfg.Paths("192.168.1.40", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "192.168.1.40-bridge.crt"), paths.CA)
	assert.Equal(t, filepath.Join(dir, "192.168.1.40.crt"), paths.Cert)
	assert.Equal(t, filepath.Join(dir, "192.168.1.40.key"), paths.Key)
}

func TestPathsCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	cfg := &Config{CertDir: dir}

	_, err := cfg.Paths("bridge", true)
	require.NoError(t, err)
	assert.DirExists(t, dir)
}
