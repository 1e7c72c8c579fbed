package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// BackendURLEnv overrides BackendConfig.BaseURL when set.
const BackendURLEnv = "DOCSEARCH_BACKEND_URL"

// BackendConfig holds connection details for the search and agent API.
type BackendConfig struct {
	BaseURL         string `yaml:"base_url"`
	TimeoutSecs     int    `yaml:"timeout_secs"`
	SearchCacheSecs int    `yaml:"search_cache_secs"`
}

// SearchConfig controls research panel queries.
type SearchConfig struct {
	TopK int    `yaml:"top_k"`
	Mode string `yaml:"mode"`
}

// AnalysisConfig bounds the digest sent for automatic result analysis.
type AnalysisConfig struct {
	Enabled      bool `yaml:"enabled"`
	TopN         int  `yaml:"top_n"`
	SnippetChars int  `yaml:"snippet_chars"`
}

// ChatConfig selects how conversations talk to the agent.
type ChatConfig struct {
	Stateless bool `yaml:"stateless"`
}

// ReaderConfig configures the document reader.
type ReaderConfig struct {
	DefaultZoom float64 `yaml:"default_zoom"`
	// Page size in original pixels used when the backend does not report one.
	PageWidth  float64 `yaml:"page_width"`
	PageHeight float64 `yaml:"page_height"`
}

// LogConfig configures the rotated log file.
type LogConfig struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
	Dev   bool   `yaml:"dev"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Backend  BackendConfig  `yaml:"backend"`
	Search   SearchConfig   `yaml:"search"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Chat     ChatConfig     `yaml:"chat"`
	Reader   ReaderConfig   `yaml:"reader"`
	Log      LogConfig      `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docsearch/config.yaml.
// If neither exists, it writes defaults to ~/.config/docsearch/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnv(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docsearch", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Backend:  BackendConfig{BaseURL: "http://localhost:8000", TimeoutSecs: 120, SearchCacheSecs: 60},
		Search:   SearchConfig{TopK: 20, Mode: "hybrid"},
		Analysis: AnalysisConfig{Enabled: true, TopN: 5, SnippetChars: 200},
		Reader:   ReaderConfig{DefaultZoom: 1.0, PageWidth: 1224, PageHeight: 1584},
		Log:      LogConfig{Path: "docsearch.log", Level: "info"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = def.Backend.BaseURL
	}
	if cfg.Backend.TimeoutSecs <= 0 {
		cfg.Backend.TimeoutSecs = def.Backend.TimeoutSecs
	}
	if cfg.Search.TopK <= 0 || cfg.Search.TopK > 100 {
		cfg.Search.TopK = def.Search.TopK
	}
	switch cfg.Search.Mode {
	case "hybrid", "keyword", "semantic":
	default:
		cfg.Search.Mode = def.Search.Mode
	}
	if cfg.Analysis.TopN <= 0 {
		cfg.Analysis.TopN = def.Analysis.TopN
	}
	if cfg.Analysis.SnippetChars <= 0 {
		cfg.Analysis.SnippetChars = def.Analysis.SnippetChars
	}
	if cfg.Reader.DefaultZoom < 0.5 || cfg.Reader.DefaultZoom > 3.0 {
		cfg.Reader.DefaultZoom = def.Reader.DefaultZoom
	}
	if cfg.Reader.PageWidth <= 0 || cfg.Reader.PageHeight <= 0 {
		cfg.Reader.PageWidth, cfg.Reader.PageHeight = def.Reader.PageWidth, def.Reader.PageHeight
	}
	if cfg.Log.Path == "" {
		cfg.Log.Path = def.Log.Path
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
}

func applyEnv(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(BackendURLEnv)); v != "" {
		cfg.Backend.BaseURL = v
	}
}
