package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"vartalap/internal/domain"
)

// Cached es lo que se guarda entre ejecuciones para retomar la sesión. El
// access token no se guarda: se obtiene de nuevo con el refresh token.
type Cached struct {
	User         domain.Identity `yaml:"user"`
	RefreshToken string          `yaml:"refresh_token"`
	SavedAt      time.Time       `yaml:"saved_at"`
}

// Cache persiste la sesión. Load devuelve nil, nil si no hay nada guardado.
type Cache interface {
	Load() (*Cached, error)
	Save(Cached) error
	Clear() error
}

// FileCache guarda la sesión en un archivo YAML con permisos 0600.
type FileCache struct {
	path string
}

func NewFileCache(path string) *FileCache {
	return &FileCache{path: path}
}

// DefaultCachePath devuelve <config dir>/vartalap/session.yaml.
func DefaultCachePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "vartalap", "session.yaml"), nil
}

func (c *FileCache) Load() (*Cached, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session cache: %w", err)
	}
	var cached Cached
	if err := yaml.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("parse session cache: %w", err)
	}
	if cached.RefreshToken == "" {
		return nil, nil
	}
	return &cached, nil
}

func (c *FileCache) Save(cached Cached) error {
	data, err := yaml.Marshal(cached)
	if err != nil {
		return fmt.Errorf("encode session cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session cache: %w", err)
	}
	return os.Rename(tmp, c.path)
}

func (c *FileCache) Clear() error {
	err := os.Remove(c.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session cache: %w", err)
	}
	return nil
}

// noCache no guarda nada; se usa cuando no se configura un Cache.
type noCache struct{}

func (noCache) Load() (*Cached, error) { return nil, nil }
func (noCache) Save(Cached) error      { return nil }
func (noCache) Clear() error           { return nil }
