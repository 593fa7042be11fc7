// Package recipesource supplies registry.RecipeSource implementations that
// load component recipes from the filesystem, decoding them with the same
// YAML/TOML Node/LifecycleBlock codecs the component package defines.
package recipesource

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/edgecore/edged/component"
)

// FilesystemSource loads recipes from a directory of .yaml/.yml/.toml files,
// one recipe per file, keyed by the recipe's own name field, or by the file
// name without its extension when the recipe has none. It caches the parsed
// recipes and only re-reads the directory on Reload.
type FilesystemSource struct {
	dir string

	mu      sync.RWMutex
	recipes map[string]*component.Recipe
}

// NewFilesystemSource builds a FilesystemSource rooted at dir. Call Reload
// (or Load) before first use.
func NewFilesystemSource(dir string) *FilesystemSource {
	return &FilesystemSource{dir: dir, recipes: make(map[string]*component.Recipe)}
}

// Load reads every recipe file under dir. It is equivalent to Reload, kept
// as a separate name for call-site clarity at startup.
func (s *FilesystemSource) Load() error {
	return s.Reload()
}

// Reload re-reads every recipe file under dir, replacing the cached set in
// one step so FindRecipe never observes a half-updated directory.
func (s *FilesystemSource) Reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("recipesource: read dir %s: %w", s.dir, err)
	}

	recipes := make(map[string]*component.Recipe, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".toml" {
			continue
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("recipesource: read %s: %w", path, err)
		}

		recipe := &component.Recipe{}
		switch ext {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(raw, recipe); err != nil {
				return fmt.Errorf("recipesource: parse %s: %w", path, err)
			}
		case ".toml":
			if err := toml.Unmarshal(raw, recipe); err != nil {
				return fmt.Errorf("recipesource: parse %s: %w", path, err)
			}
		}

		name := recipe.Name
		if name == "" {
			name = strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		}
		recipes[name] = recipe
	}

	s.mu.Lock()
	s.recipes = recipes
	s.mu.Unlock()
	return nil
}

// FindRecipe implements registry.RecipeSource.
func (s *FilesystemSource) FindRecipe(name string) (*component.Recipe, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.recipes[name]
	return r, ok
}

// Names returns every recipe name currently loaded, for cmd/edged's
// component-list and graph subcommands.
func (s *FilesystemSource) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.recipes))
	for name := range s.recipes {
		out = append(out, name)
	}
	return out
}
