package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/chatrelay/internal/types"
)

// SettingsStore persists the user settings as YAML. A missing file means
// defaults.
type SettingsStore struct {
	path string

	mu      sync.Mutex
	current types.Settings
}

// OpenSettings loads path, creating nothing until the first Update.
func OpenSettings(path string) (*SettingsStore, error) {
	s := &SettingsStore{path: path, current: types.DefaultSettings()}
	if _, err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the settings file path.
func (s *SettingsStore) Path() string { return s.path }

// Get returns the current settings.
func (s *SettingsStore) Get() types.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update normalizes and writes next, then makes it current.
func (s *SettingsStore) Update(next types.Settings) (types.Settings, error) {
	return s.UpdateFunc(func(cur *types.Settings) error {
		*cur = next
		return nil
	})
}

// UpdateFunc edits a copy of the current settings with fn, writes the
// normalized result and makes it current. The store stays locked from read
// to assignment, so concurrent edits of different fields all land.
func (s *SettingsStore) UpdateFunc(fn func(*types.Settings) error) (types.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	if err := fn(&next); err != nil {
		return types.Settings{}, err
	}
	next = next.Normalize()
	data, err := yaml.Marshal(next)
	if err != nil {
		return types.Settings{}, fmt.Errorf("settings encode: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return types.Settings{}, fmt.Errorf("settings write: %w", err)
	}
	s.current = next
	slog.Info("settings updated", "path", s.path, "auto_send", next.AutoSend, "switch_tab", next.SwitchTab, "target_url", next.TargetURL)
	return next, nil
}

// Reload re-reads the file. Keys absent from the file keep their defaults.
func (s *SettingsStore) Reload() (types.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s.current, nil
	}
	if err != nil {
		return types.Settings{}, fmt.Errorf("settings read: %w", err)
	}

	next := types.DefaultSettings()
	if err := yaml.Unmarshal(data, &next); err != nil {
		return types.Settings{}, fmt.Errorf("settings parse %s: %w", s.path, err)
	}
	next = next.Normalize()

	if s.current != next {
		slog.Info("settings reloaded", "path", s.path, "auto_send", next.AutoSend, "switch_tab", next.SwitchTab, "target_url", next.TargetURL)
	}
	s.current = next
	return next, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
