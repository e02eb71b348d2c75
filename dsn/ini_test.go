package dsn

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadINIClientSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.cnf")
	content := "[client]\n" +
		"host = db.internal\n" +
		"port = 3307\n" +
		"user = app\n" +
		"password = secret\n" +
		"database = orders\n" +
		"sslmode = required\n" +
		"maxpoolsize = 25\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadINI(path, "")
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 3307, cfg.Port)
	assert.Equal(t, "app", cfg.User)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, "orders", cfg.Database)
	assert.Equal(t, 25, cfg.MaxPoolSize)
}

func TestLoadINIMissingFile(t *testing.T) {
	_, err := LoadINI(filepath.Join(t.TempDir(), "missing.cnf"), "")
	assert.Error(t, err)
}
