package configstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestStore_Load_MissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	s := NewFromFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, s.Load())

	_, ok := s.ComponentConfig("anything")
	assert.False(t, ok)
}

func TestStore_Load_ParsesComponentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
components:
  edged.example.echo:
    port: 9090
    enabled: true
`)
	s := NewFromFile(path)
	require.NoError(t, s.Load())

	cfg, ok := s.ComponentConfig("edged.example.echo")
	require.True(t, ok)
	assert.EqualValues(t, 9090, cfg["port"])
	assert.Equal(t, true, cfg["enabled"])

	_, ok = s.ComponentConfig("missing.component")
	assert.False(t, ok)
}

func TestStore_Watch_ReloadsAndNotifiesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
components:
  echo:
    port: 8080
`)
	s := NewFromFile(path)
	require.NoError(t, s.Load())

	changed := make(chan []string, 1)
	s.Watch(func(names []string) {
		select {
		case changed <- names:
		default:
		}
	})

	writeConfig(t, dir, `
components:
  echo:
    port: 9999
`)

	select {
	case names := <-changed:
		assert.Contains(t, names, "echo")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload notification")
	}

	cfg, ok := s.ComponentConfig("echo")
	require.True(t, ok)
	assert.EqualValues(t, 9999, cfg["port"])
}
