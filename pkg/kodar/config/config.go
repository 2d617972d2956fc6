package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/kodar/pkg/kodar/internalerr"
	"github.com/cognicore/kodar/pkg/kodar/label"
)

// Environment variables that override the file configuration.
const (
	EnvHome      = "KODAR_HOME"
	EnvStore     = "KODAR_STORE"
	EnvLabelMode = "KODAR_LABEL_MODE"
	EnvCortical  = "CORTICAL_API_KEY"
)

// Store backends.
const (
	BackendSeqfile = "seqfile"
	BackendSQLite  = "sqlite"
	BackendMemory  = "memory"
	BackendYT      = "yt"
)

// StoreConfig selects the record store.
type StoreConfig struct {
	Backend    string   `yaml:"backend"`
	Codec      string   `yaml:"codec"`
	SQLitePath string   `yaml:"sqlite_path"`
	YT         YTConfig `yaml:"yt"`
}

// YTConfig points the yt backend at a cluster.
type YTConfig struct {
	Proxy    string `yaml:"proxy"`
	Root     string `yaml:"root"`
	TokenEnv string `yaml:"token_env"`
}

// IngestConfig configures splitting and term extraction.
type IngestConfig struct {
	StripMarkup bool   `yaml:"strip_markup"`
	Stoplist    string `yaml:"stoplist"`
	Dictionary  string `yaml:"dictionary"`
	Taxonomy    string `yaml:"taxonomy"`
}

// EngineConfig configures the clustering run.
type EngineConfig struct {
	Clusters int  `yaml:"clusters"`
	Evaluate bool `yaml:"evaluate"`
}

// CorticalConfig configures the semantic-fingerprint client.
type CorticalConfig struct {
	BaseURL     string `yaml:"base_url"`
	Retina      string `yaml:"retina"`
	APIKey      string `yaml:"-"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// LabelingConfig configures the labeling stage.
type LabelingConfig struct {
	Mode          string         `yaml:"mode"`
	Workers       int            `yaml:"workers"`
	Topics        int            `yaml:"topics"`
	TopWords      int            `yaml:"top_words"`
	LDAIterations int            `yaml:"lda_iterations"`
	Cortical      CorticalConfig `yaml:"cortical"`
}

// ExportConfig configures the export stage.
type ExportConfig struct {
	Workers int `yaml:"workers"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Home     string         `yaml:"home"`
	Store    StoreConfig    `yaml:"store"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Engine   EngineConfig   `yaml:"engine"`
	Labeling LabelingConfig `yaml:"labeling"`
	Export   ExportConfig   `yaml:"export"`
}

// Load reads a config from path, applies defaults and environment overrides
// and validates the result. A missing file yields the defaults.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", internalerr.ErrInvalidConfig, path, err)
			}
			cfg.resolvePaths(filepath.Dir(path))
		}
	}
	applyDefaults(cfg)
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendSeqfile
	}
	if cfg.Store.Codec == "" {
		cfg.Store.Codec = "none"
	}
	if cfg.Store.YT.Root == "" {
		cfg.Store.YT.Root = "//home/kodar"
	}
	if cfg.Store.YT.TokenEnv == "" {
		cfg.Store.YT.TokenEnv = "YT_TOKEN"
	}
	if cfg.Engine.Clusters == 0 {
		cfg.Engine.Clusters = 16
	}
	if cfg.Labeling.Mode == "" {
		cfg.Labeling.Mode = label.TopicModel.String()
	}
	if cfg.Labeling.Workers == 0 {
		cfg.Labeling.Workers = 4
	}
	if cfg.Labeling.Topics == 0 {
		cfg.Labeling.Topics = 3
	}
	if cfg.Labeling.TopWords == 0 {
		cfg.Labeling.TopWords = 3
	}
	if cfg.Labeling.LDAIterations == 0 {
		cfg.Labeling.LDAIterations = 100
	}
	if cfg.Labeling.Cortical.BaseURL == "" {
		cfg.Labeling.Cortical.BaseURL = "https://api.cortical.io/rest"
	}
	if cfg.Labeling.Cortical.Retina == "" {
		cfg.Labeling.Cortical.Retina = "en_associative"
	}
	if cfg.Labeling.Cortical.APIKeyEnv == "" {
		cfg.Labeling.Cortical.APIKeyEnv = EnvCortical
	}
	if cfg.Labeling.Cortical.TimeoutSecs == 0 {
		cfg.Labeling.Cortical.TimeoutSecs = 30
	}
	if cfg.Export.Workers == 0 {
		cfg.Export.Workers = 4
	}
}

func (cfg *AppConfig) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvHome)); v != "" {
		cfg.Home = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStore)); v != "" {
		cfg.Store.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLabelMode)); v != "" {
		cfg.Labeling.Mode = v
	}
	if v := os.Getenv(cfg.Labeling.Cortical.APIKeyEnv); v != "" {
		cfg.Labeling.Cortical.APIKey = v
	}
}

// resolvePaths makes file references relative to the config file.
func (cfg *AppConfig) resolvePaths(dir string) {
	for _, p := range []*string{&cfg.Ingest.Stoplist, &cfg.Ingest.Dictionary, &cfg.Ingest.Taxonomy, &cfg.Store.SQLitePath} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// Validate checks enumerations and bounds.
func (cfg *AppConfig) Validate() error {
	switch cfg.Store.Backend {
	case BackendSeqfile, BackendSQLite, BackendMemory, BackendYT:
	default:
		return fmt.Errorf("%w: unknown store backend %q", internalerr.ErrInvalidConfig, cfg.Store.Backend)
	}
	switch cfg.Store.Codec {
	case "none", "zstd":
	default:
		return fmt.Errorf("%w: unknown codec %q", internalerr.ErrInvalidConfig, cfg.Store.Codec)
	}
	if cfg.Store.Backend == BackendYT && cfg.Store.YT.Proxy == "" {
		return fmt.Errorf("%w: store.yt.proxy is required for the yt backend", internalerr.ErrInvalidConfig)
	}
	if _, err := label.ParseMode(cfg.Labeling.Mode); err != nil {
		return fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}
	if cfg.Engine.Clusters < 1 {
		return fmt.Errorf("%w: engine.clusters must be positive, got %d", internalerr.ErrInvalidConfig, cfg.Engine.Clusters)
	}
	if cfg.Labeling.Workers < 1 || cfg.Export.Workers < 1 {
		return fmt.Errorf("%w: worker counts must be positive", internalerr.ErrInvalidConfig)
	}
	return nil
}

// Taxonomy represents the taxonomy configuration
type Taxonomy struct {
	Sectors map[string][]string `yaml:"sectors"`
	Events  map[string][]string `yaml:"events"`
	Regions map[string][]string `yaml:"regions"`
}

// LoadTaxonomy loads taxonomy from a YAML file
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tax Taxonomy
	if err := yaml.Unmarshal(data, &tax); err != nil {
		return nil, err
	}

	return &tax, nil
}

// Stoplist represents the stopword list configuration
type Stoplist struct {
	Terms []string `yaml:"terms"`
}

// LoadStoplist loads stopwords from a YAML file
func LoadStoplist(path string) (*Stoplist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sl Stoplist
	if err := yaml.Unmarshal(data, &sl); err != nil {
		return nil, err
	}

	return &sl, nil
}

// DictEntry is one line of the phrase dictionary.
type DictEntry struct {
	Canonical string
	Variants  []string
}

// LoadDict loads the phrase dictionary.
// Format: one entry per line, canonical|variant1|variant2; # starts a comment.
func LoadDict(path string) ([]DictEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries []DictEntry
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, "|")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if parts[0] == "" {
			continue
		}
		entries = append(entries, DictEntry{Canonical: parts[0], Variants: parts[1:]})
	}
	return entries, nil
}
