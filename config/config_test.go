package config

import (
	"bytes"
	"log/slog"
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "./database.db", cfg.DatabasePath)
	assert.Equal(t, 5*time.Second, cfg.BusyTimeout())
	assert.True(t, cfg.CompressResponses)
	assert.ErrorIs(t, cfg.Validate(), ErrMissingToken)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"PORT":                "9000",
		"TOKEN":               "secrettoken",
		"DATABASE_PATH":       "/tmp/x.db",
		"BUSY_TIMEOUT_MS":     "100",
		"ENABLE_CROSS_ORIGIN": "true",
		"COMPRESS_RESPONSES":  "false",
		"AUDIT_RETENTION":     "48h",
		"LOG_LEVEL":           "debug",
	}))
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, ":9000", cfg.ListenAddr())
	assert.Equal(t, "secrettoken", cfg.Token)
	assert.Equal(t, "/tmp/x.db", cfg.DatabasePath)
	assert.Equal(t, 100*time.Millisecond, cfg.BusyTimeout())
	assert.True(t, cfg.EnableCrossOrigin)
	assert.False(t, cfg.CompressResponses)
	assert.Equal(t, 48*time.Hour, cfg.AuditRetention)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnvInvalid(t *testing.T) {
	assert.Error(t, Default().applyEnv(envMap(map[string]string{"BUSY_TIMEOUT_MS": "soon"})))
	assert.Error(t, Default().applyEnv(envMap(map[string]string{"AUDIT_RETENTION": "forever"})))
}

func TestValidatePort(t *testing.T) {
	for _, port := range []string{"", "abc", "0", "70000"} {
		cfg := Default()
		cfg.Token = "t"
		cfg.Port = port
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidPort, port)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	file := path.Join(dir, "d1lite.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
port: "7000"
token: from-file
database_path: ./file.db
audit_retention: 1h
log_format: text
`), 0600))

	for _, key := range []string{"PORT", "DATABASE_PATH", "AUDIT_RETENTION", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}
	t.Setenv("TOKEN", "from-env")

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "from-env", cfg.Token)
	assert.Equal(t, "./file.db", cfg.DatabasePath)
	assert.Equal(t, time.Hour, cfg.AuditRetention)

	var buf bytes.Buffer
	cfg.NewLogger(&buf).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(path.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}
