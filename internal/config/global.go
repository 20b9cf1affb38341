// Package config handles repository and global configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GlobalConfig represents configuration stored in ~/.config/citeweave/config.yml.
type GlobalConfig struct {
	Mailto          string `yaml:"mailto,omitempty"`
	OllamaURL       string `yaml:"ollama_url,omitempty"`
	EmbeddingModel  string `yaml:"embedding_model,omitempty"`
	EmbeddingDims   int    `yaml:"embedding_dims,omitempty"`
	CrossrefBaseURL string `yaml:"crossref_base_url,omitempty"`
}

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "citeweave"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"
)

// globalConfigCache caches the loaded global config.
var globalConfigCache *GlobalConfig

// GlobalConfigPath returns the path to the global config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/citeweave/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// LoadGlobalConfig loads the global configuration file, with environment
// variables taking precedence over file values.
// Returns an empty config (not an error) if the file doesn't exist.
func LoadGlobalConfig() (*GlobalConfig, error) {
	if globalConfigCache != nil {
		return globalConfigCache, nil
	}

	cfg := GlobalConfig{}
	path := GlobalConfigPath()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("reading global config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing global config: %w", err)
			}
		}
	}

	if v := os.Getenv("CITEWEAVE_MAILTO"); v != "" {
		cfg.Mailto = v
	}
	if v := os.Getenv("CITEWEAVE_OLLAMA_URL"); v != "" {
		cfg.OllamaURL = v
	}
	if v := os.Getenv("CITEWEAVE_EMBEDDING_MODEL"); v != "" {
		cfg.EmbeddingModel = v
	}
	if v := os.Getenv("CITEWEAVE_CROSSREF_URL"); v != "" {
		cfg.CrossrefBaseURL = v
	}

	globalConfigCache = &cfg
	return &cfg, nil
}

// ResetGlobalConfigCache clears the cached global config.
// Useful for testing.
func ResetGlobalConfigCache() {
	globalConfigCache = nil
}

// GetMailto returns the bibliographic API contact address.
func GetMailto() string {
	cfg, _ := LoadGlobalConfig()
	return cfg.Mailto
}

// GetOllamaURL returns the configured embedding server URL.
func GetOllamaURL() string {
	cfg, _ := LoadGlobalConfig()
	return cfg.OllamaURL
}

// GetEmbeddingModel returns the configured embedding model name.
func GetEmbeddingModel() string {
	cfg, _ := LoadGlobalConfig()
	return cfg.EmbeddingModel
}

// GetCrossrefBaseURL returns a base URL override for the bibliographic API.
func GetCrossrefBaseURL() string {
	cfg, _ := LoadGlobalConfig()
	return cfg.CrossrefBaseURL
}

// HelpfulConfigMessage returns guidance shown when no repository is found.
func HelpfulConfigMessage() string {
	return `No citeweave repository found.

Tip: run "cw init" inside your project directory to create one, or set
mailto in ` + GlobalConfigPath() + ` for polite bibliographic API access.`
}
