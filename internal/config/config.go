// Package config handles repository configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents repository configuration stored in .citeweave/config.json.
type Config struct {
	Mailto       string `json:"mailto,omitempty"`        // Contact address for bibliographic API etiquette
	DefaultDepth int    `json:"default_depth,omitempty"` // Default graph build depth
	Workers      int    `json:"workers,omitempty"`       // Background worker count
}

const (
	CiteweaveDir = ".citeweave"
	ConfigFile   = "config.json"
	DBFile       = "citeweave.db"
	VectorsDir   = "vectors"
	PDFDir       = "pdfs"

	// DefaultGraphDepth bounds graph builds when no depth is configured.
	DefaultGraphDepth = 3
)

// CiteweavePath returns the path to the .citeweave directory from a root path.
func CiteweavePath(root string) string {
	return filepath.Join(root, CiteweaveDir)
}

// ConfigPath returns the path to config.json from a root path.
func ConfigPath(root string) string {
	return filepath.Join(root, CiteweaveDir, ConfigFile)
}

// DBPath returns the path to the SQLite database from a root path.
func DBPath(root string) string {
	return filepath.Join(root, CiteweaveDir, DBFile)
}

// VectorsPath returns the path to the vector index directory from a root path.
func VectorsPath(root string) string {
	return filepath.Join(root, CiteweaveDir, VectorsDir)
}

// PDFPath returns the path to the stored-PDF directory from a root path.
func PDFPath(root string) string {
	return filepath.Join(root, CiteweaveDir, PDFDir)
}

// IsRepository checks if the given path contains a citeweave repository.
func IsRepository(root string) bool {
	info, err := os.Stat(CiteweavePath(root))
	return err == nil && info.IsDir()
}

// FindRepository walks up from the given path to find a citeweave repository.
// Returns the repository root path or an error if not found.
func FindRepository(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		if IsRepository(abs) {
			return abs, nil
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("not in a citeweave repository (no .citeweave directory found)")
		}
		abs = parent
	}
}

// Load reads configuration from the repository at the given root. A missing
// config file yields defaults, not an error.
func Load(root string) (*Config, error) {
	data, err := os.ReadFile(ConfigPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

// Save writes configuration to the repository at the given root.
func (c *Config) Save(root string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(ConfigPath(root), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// GraphDepth returns the configured default graph depth.
func (c *Config) GraphDepth() int {
	if c.DefaultDepth > 0 {
		return c.DefaultDepth
	}
	return DefaultGraphDepth
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path // Return original if we can't get home directory
	}

	return filepath.Join(home, path[1:])
}
