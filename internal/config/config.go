// Package config loads the TOML configuration file that drives a run:
// scan roots and exclusions, the rules file, which LLM backend to use,
// and planner/executor/artifacts settings.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration for the organizer.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	OutputDir  string           `toml:"output_dir"` // where plans/ and logs/ are written
	RulesFile  string           `toml:"rules_file"`
	Scan       ScanConfig       `toml:"scan"`
	Classifier ClassifierConfig `toml:"classifier"`
	Planner    PlannerConfig    `toml:"planner"`
	Executor   ExecutorConfig   `toml:"executor"`
	Encryption EncryptionConfig `toml:"encryption"`
	Mirror     MirrorConfig     `toml:"mirror"`
}

// ScanConfig controls stage 1.
type ScanConfig struct {
	Roots       []string `toml:"roots"`
	MinSize     int64    `toml:"min_size"`
	ExtraIgnore []string `toml:"extra_ignore"`
}

// ClassifierConfig selects and tunes the LLM classifier backend.
type ClassifierConfig struct {
	Backend           string `toml:"backend"` // "local", "gemini", "openai", or "rules-only"
	Model             string `toml:"model"`
	Tier              string `toml:"tier"` // "cpu", "gpu-small", "gpu-large"; stored only, it sets no concurrency or other value
	OllamaBaseURL     string `toml:"ollama_base_url"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
	Concurrency       int    `toml:"concurrency"`
}

// PlannerConfig tunes destination computation.
type PlannerConfig struct {
	MinConfidence int  `toml:"min_confidence"`
	CopyMode      bool `toml:"copy_mode"`
}

// ExecutorConfig tunes apply behavior.
type ExecutorConfig struct {
	Apply bool `toml:"apply"` // false means dry-run; overridden by --apply
}

// EncryptionConfig holds paths to the age key pair used to encrypt
// persisted artifacts. Type "" or "none" disables encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"`
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// MirrorConfig optionally mirrors persisted artifacts to S3. An empty
// Bucket disables mirroring.
type MirrorConfig struct {
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint,omitempty"`
	AccessKeyID     string `toml:"access_key_id,omitempty"`
	SecretAccessKey string `toml:"secret_access_key,omitempty"`
}

// Default returns a Config with sane defaults for a fresh install
// rooted at baseDir.
func Default(baseDir string) *Config {
	return &Config{
		BaseDir:   baseDir,
		OutputDir: filepath.Join(baseDir, "runs"),
		RulesFile: filepath.Join(baseDir, "rules.yaml"),
		Scan: ScanConfig{
			Roots:   []string{filepath.Join(os.Getenv("HOME"), "Downloads")},
			MinSize: 1,
		},
		Classifier: ClassifierConfig{
			Backend:       "local",
			OllamaBaseURL: "http://localhost:11434",
			Concurrency:   4,
		},
		Planner: PlannerConfig{
			MinConfidence: 85,
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "organizer.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "organizer.key"),
		},
	}
}

// Manager reads and writes Config values.
type Manager struct{}

// Read decodes a Config from r.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// Write encodes cfg to w.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the file at path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes a new config file at path, refusing to overwrite an
// existing one.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

// Validate checks for the configuration problems that must be caught
// before Scan begins (a ConfigError in the run's error taxonomy).
func (c *Config) Validate() error {
	if len(c.Scan.Roots) == 0 {
		return fmt.Errorf("config: at least one scan root is required")
	}
	switch c.Classifier.Backend {
	case "local", "gemini", "openai", "rules-only":
	default:
		return fmt.Errorf("config: unknown classifier backend %q", c.Classifier.Backend)
	}
	if c.Planner.MinConfidence < 0 || c.Planner.MinConfidence > 100 {
		return fmt.Errorf("config: min_confidence must be between 0 and 100, got %d", c.Planner.MinConfidence)
	}
	return nil
}
