package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthConfig(t *testing.T) {
	cfg, err := healthConfig(&flags{configPath: filepath.Join(t.TempDir(), "missing.yaml")})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:9200"}, cfg.Health.ESServers)
	assert.Equal(t, "healthfrontend", cfg.Health.Collection)

	path := filepath.Join(t.TempDir(), "mqworker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1\"\nhealth:\n  window: 5m\n  database: ops\n"), 0o644))
	cfg, err = healthConfig(&flags{configPath: path, esServers: "http://es1:9200,http://es2:9200", mongoURI: "mongodb://db:27017"})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Health.Window)
	assert.Equal(t, "ops", cfg.Health.Database)
	assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, cfg.Health.ESServers)
	assert.Equal(t, "mongodb://db:27017", cfg.Health.MongoURI)

	require.NoError(t, os.WriteFile(path, []byte("version: [\n"), 0o644))
	_, err = healthConfig(&flags{configPath: path})
	assert.Error(t, err)
}
