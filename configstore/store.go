// Package configstore loads per-component configuration overrides from a
// YAML file via viper, with environment-variable overlay and fsnotify-driven
// hot reload, grounded on memorizer's internal/config (Init/Load/Reload).
package configstore

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Listener is notified whenever the on-disk config is reloaded, with the
// names of the top-level component keys whose value changed.
type Listener func(changed []string)

// Store is a viper-backed registry.ConfigStore: component configuration is
// kept under a top-level "components" map, one key per component name.
type Store struct {
	v *viper.Viper

	mu        sync.RWMutex
	overrides map[string]map[string]any

	listenersMu sync.Mutex
	listeners   []Listener
}

// New builds a Store that searches, in priority order: the directory named
// by the EDGED_CONFIG_DIR environment variable, /etc/edged/, and the current
// working directory, for a file named "config.yaml".
func New() *Store {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("EDGED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if envPath := os.Getenv("EDGED_CONFIG_DIR"); envPath != "" {
		v.AddConfigPath(envPath)
	}
	v.AddConfigPath("/etc/edged")
	v.AddConfigPath(".")

	return &Store{v: v, overrides: make(map[string]map[string]any)}
}

// NewFromFile builds a Store reading a specific config file path, bypassing
// the search-path logic. Useful for tests and explicit --config flags.
func NewFromFile(path string) *Store {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("EDGED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Store{v: v, overrides: make(map[string]map[string]any)}
}

// Reload re-reads the config file, satisfying orchestrator.Reloadable
// alongside recipesource.FilesystemSource.
func (s *Store) Reload() error {
	return s.Load()
}

// Load reads the config file. A missing file is not an error: the store
// simply reports no overrides, since component configuration overlays are
// optional (recipes supply their own defaults).
func (s *Store) Load() error {
	err := s.v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("configstore: read config: %w", err)
	}
	return s.refresh()
}

// Watch starts watching the config file for changes, invoking l on every
// successful reload with the names of components whose override section
// changed. Reload failures retain the previous overrides and are not
// reported to listeners.
func (s *Store) Watch(l Listener) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, l)
	s.listenersMu.Unlock()

	s.v.OnConfigChange(func(e fsnotify.Event) {
		before := s.snapshot()
		if err := s.refresh(); err != nil {
			return
		}
		after := s.snapshot()
		changed := diffKeys(before, after)
		if len(changed) == 0 {
			return
		}
		s.listenersMu.Lock()
		ls := append([]Listener(nil), s.listeners...)
		s.listenersMu.Unlock()
		for _, fn := range ls {
			fn(changed)
		}
	})
	s.v.WatchConfig()
}

func (s *Store) refresh() error {
	raw := s.v.GetStringMap("components")
	overrides := make(map[string]map[string]any, len(raw))
	for name, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		overrides[name] = m
	}
	s.mu.Lock()
	s.overrides = overrides
	s.mu.Unlock()
	return nil
}

func (s *Store) snapshot() map[string]map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]any, len(s.overrides))
	for k, v := range s.overrides {
		out[k] = v
	}
	return out
}

// ComponentConfig implements registry.ConfigStore.
func (s *Store) ComponentConfig(name string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.overrides[name]
	return cfg, ok
}

// ConfigFileUsed returns the path of the loaded config file, or "" if none
// was found.
func (s *Store) ConfigFileUsed() string {
	return s.v.ConfigFileUsed()
}

func diffKeys(before, after map[string]map[string]any) []string {
	var changed []string
	seen := make(map[string]bool)
	for name, b := range before {
		seen[name] = true
		a, ok := after[name]
		if !ok || !equalConfig(a, b) {
			changed = append(changed, name)
		}
	}
	for name := range after {
		if !seen[name] {
			changed = append(changed, name)
		}
	}
	return changed
}

func equalConfig(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || fmt.Sprint(av) != fmt.Sprint(bv) {
			return false
		}
	}
	return true
}
