package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "LOG_LEVEL", "LOG_FORMAT", "STORE_DRIVER", "TOKEN_TTL", "ARCHIVE_RESULTS", "SQLITE_PATH"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, "keepbreathing.db", cfg.SQLitePath)
	assert.False(t, cfg.ArchiveResults)
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TOKEN_TTL", "90m")
	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, DriverRedis, cfg.StoreDriver)
	assert.Equal(t, 90*time.Minute, cfg.TokenTTL)
}

func TestValidate(t *testing.T) {
	cases := map[string]Config{
		"postgres without url": {StoreDriver: DriverPostgres},
		"redis without url":    {StoreDriver: DriverRedis},
		"unknown driver":       {StoreDriver: "etcd"},
		"archive without db":   {StoreDriver: DriverMemory, ArchiveResults: true},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Config{StoreDriver: DriverSQLite, SQLitePath: "x.db", ArchiveResults: true}.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("KB_TEST_ONLY=1\nSTORE_DRIVER=sqlite\n"), 0o600))
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("KB_TEST_ONLY", "")
	os.Unsetenv("KB_TEST_ONLY")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StoreDriver, "environment wins over the file")
	assert.Equal(t, "1", os.Getenv("KB_TEST_ONLY"))

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestLogger(t *testing.T) {
	log, err := Config{LogLevel: "debug", LogFormat: "json"}.Logger()
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	_, err = Config{LogLevel: "loud"}.Logger()
	assert.Error(t, err)
	_, err = Config{LogLevel: "info", LogFormat: "xml"}.Logger()
	assert.Error(t, err)
}
