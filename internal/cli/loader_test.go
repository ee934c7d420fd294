package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hearth.cue")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.cue"))
	assert.Error(t, err)
}

func TestLoadConfigDecodes(t *testing.T) {
	path := writeConfig(t, `
database: "/var/lib/hearth/hearth.db"
batch_size: 512
entity_id_cache_size: 4096
event_type_cache_size: 1024
filter: {
	exclude_domains: ["sensor"]
	include_entities: ["sensor.important"]
}
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/hearth/hearth.db", cfg.Database)
	assert.Equal(t, 512, cfg.BatchSize)
	assert.Equal(t, 4096, cfg.EntityIDCacheSize)
	assert.Equal(t, 1024, cfg.EventTypeCacheSize)
	assert.Equal(t, []string{"sensor"}, cfg.Filter.ExcludeDomains)
	assert.Equal(t, []string{"sensor.important"}, cfg.Filter.IncludeEntities)
}

func TestLoadConfigRejectsMalformed(t *testing.T) {
	path := writeConfig(t, `database: 42 & "conflict"`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestResolveDatabasePrecedence(t *testing.T) {
	got, err := resolveDatabase("/flag.db", Config{Database: "/config.db"})
	require.NoError(t, err)
	assert.Equal(t, "/flag.db", got)

	got, err = resolveDatabase("", Config{Database: "/config.db"})
	require.NoError(t, err)
	assert.Equal(t, "/config.db", got)

	_, err = resolveDatabase("", Config{})
	assert.Error(t, err)
}
