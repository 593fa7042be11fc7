package recipesource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRecipe(t *testing.T, dir, filename, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(body), 0o644))
}

func TestFilesystemSource_LoadsYAMLAndTOMLRecipes(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "echo.yaml", `
name: edged.example.echo
class: edged.example.echo
dependencies: ""
lifecycle:
  install: "true"
  run: "echo hi"
`)
	writeRecipe(t, dir, "ping.toml", `
name = "edged.example.ping"
class = "edged.example.ping"
`)
	writeRecipe(t, dir, "ignored.txt", "not a recipe")

	src := NewFilesystemSource(dir)
	require.NoError(t, src.Load())

	echo, ok := src.FindRecipe("edged.example.echo")
	require.True(t, ok)
	assert.Equal(t, "edged.example.echo", echo.Class)
	assert.Equal(t, "echo hi", echo.Lifecycle.Steps["run"].Script)

	ping, ok := src.FindRecipe("edged.example.ping")
	require.True(t, ok)
	assert.Equal(t, "edged.example.ping", ping.Class)

	_, ok = src.FindRecipe("ignored")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"edged.example.echo", "edged.example.ping"}, src.Names())
}

func TestFilesystemSource_Reload_PicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "x.yaml", `name: x`)

	src := NewFilesystemSource(dir)
	require.NoError(t, src.Load())
	_, ok := src.FindRecipe("x")
	require.True(t, ok)

	writeRecipe(t, dir, "y.yaml", `name: y`)
	require.NoError(t, src.Reload())

	_, ok = src.FindRecipe("y")
	assert.True(t, ok)
}

func TestFilesystemSource_MissingDirErrors(t *testing.T) {
	src := NewFilesystemSource("/does/not/exist/edged-recipes")
	assert.Error(t, src.Load())
}
