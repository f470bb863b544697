package internal

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ModelConfig struct {
	File      string `yaml:"file"`
	URL       string `yaml:"url,omitempty"`
	SHA256    string `yaml:"sha256,omitempty"`
	Dimension int    `yaml:"dimension"`
}

type RuntimeConfig struct {
	LibraryPath    string `yaml:"library_path,omitempty"`
	Device         string `yaml:"device"`
	IntraOpThreads int    `yaml:"intra_op_threads,omitempty"`
}

type IndexConfig struct {
	BatchSize int `yaml:"batch_size"`
	TopN      int `yaml:"top_n"`
}

type Config struct {
	Model    ModelConfig   `yaml:"model"`
	Runtime  RuntimeConfig `yaml:"runtime"`
	Index    IndexConfig   `yaml:"index"`
	Database string        `yaml:"database"`
}

func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			File:      DefaultModelFilename,
			URL:       DefaultModelURL,
			Dimension: 512,
		},
		Runtime: RuntimeConfig{
			Device: string(DeviceAuto),
		},
		Index: IndexConfig{
			BatchSize: 32,
			TopN:      10,
		},
		Database: "images.db",
	}
}

func (c *Config) Validate() error {
	if _, err := ParseDevice(c.Runtime.Device); err != nil {
		return err
	}
	if c.Model.Dimension < 0 {
		return fmt.Errorf("model dimension must not be negative, got %d", c.Model.Dimension)
	}
	if c.Index.BatchSize < 1 {
		return fmt.Errorf("index batch_size must be at least 1, got %d", c.Index.BatchSize)
	}
	if c.Index.TopN < 1 {
		return fmt.Errorf("index top_n must be at least 1, got %d", c.Index.TopN)
	}
	if c.Database == "" {
		return fmt.Errorf("database must be set")
	}
	return nil
}

func LoadConfig(scope Scope) (*Config, error) {
	path := scope.ConfigPath()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

func SaveConfig(scope Scope, cfg *Config) error {
	path := scope.ConfigPath()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
