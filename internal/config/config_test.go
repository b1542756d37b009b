package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 3001
  host: "127.0.0.1"
  grpc_port: 50060

gateway:
  url: "http://gateway:8080"
  timeout: 3s

polling:
  sensors: "@every 15s"
  latest: "@every 1s"

database:
  enabled: true
  host: "localhost"
  port: 5432
  name: "testdb"
  user: "testuser"
  password: "testpass"

logging:
  level: "debug"
  format: "text"
`)

	config, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, config)

	assert.Equal(t, 3001, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, 50060, config.Server.GRPCPort)
	assert.Equal(t, "http://gateway:8080", config.Gateway.URL)
	assert.Equal(t, 3*time.Second, config.Gateway.Timeout)
	assert.Equal(t, "@every 15s", config.Polling.Sensors)
	assert.Equal(t, "@every 1s", config.Polling.Latest)
	assert.True(t, config.Database.Enabled)
	assert.Equal(t, "testdb", config.Database.Name)
	assert.Equal(t, "debug", config.Logging.Level)

	// untouched keys keep their defaults
	assert.Equal(t, 128, config.Cache.RecordingsSize)
	assert.Equal(t, "disable", config.Database.SSLMode)
}

func TestLoadDefaults(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", config.Gateway.URL)
	assert.Equal(t, 10*time.Second, config.Gateway.Timeout)
	assert.Equal(t, "@every 10s", config.Polling.Sensors)
	assert.Equal(t, "@every 2s", config.Polling.Latest)
	assert.Equal(t, 3000, config.Server.Port)
	assert.False(t, config.Database.Enabled)
	assert.Equal(t, "json", config.Logging.Format)
}

func TestLoadWithEnvExpansion(t *testing.T) {
	t.Setenv("APP_DATABASE_HOST", "envhost")
	t.Setenv("APP_DATABASE_PORT", "5433")

	configPath := writeConfig(t, `
database:
  host: $APP_DATABASE_HOST
  port: $APP_DATABASE_PORT
  name: "testdb"
`)

	config, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "envhost", config.Database.Host)
	assert.Equal(t, 5433, config.Database.Port)
}

func TestLoadWithPrefixedOverride(t *testing.T) {
	t.Setenv("DASH_GATEWAY_URL", "http://override:9090")
	t.Setenv("DASH_SERVER_PORT", "4000")

	configPath := writeConfig(t, `
gateway:
  url: "http://gateway:8080"
`)

	config, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "http://override:9090", config.Gateway.URL)
	assert.Equal(t, 4000, config.Server.Port)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad interval",
			content: "polling:\n  latest: \"sometimes\"\n",
			wantErr: "polling.latest",
		},
		{
			name:    "empty gateway",
			content: "gateway:\n  url: \"\"\n",
			wantErr: "gateway.url is required",
		},
		{
			name:    "bad log level",
			content: "logging:\n  level: \"loud\"\n",
			wantErr: "logging.level",
		},
		{
			name:    "archive without host",
			content: "database:\n  enabled: true\n",
			wantErr: "database.host",
		},
		{
			name:    "zero cache",
			content: "cache:\n  recordings_size: 0\n",
			wantErr: "cache.recordings_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDumpMasksPassword(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)
	config.Database.Password = "secret"

	out, err := config.Dump()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "secret")

	var back map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Contains(t, back, "gateway")
	assert.Equal(t, "secret", config.Database.Password, "dump does not modify the config")
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable", ConnectionTimeout: 5}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable connect_timeout=5", d.DSN())
}
