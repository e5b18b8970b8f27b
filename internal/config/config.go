package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all quartz configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Tier     TierConfig     `yaml:"tier"`
	Spiral   SpiralConfig   `yaml:"spiral"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	// Path to the SQLite file. Empty resolves to store.DefaultDBPath()
	// at runtime; ":memory:" or Backend "memory" keeps everything
	// in-process.
	Path    string `yaml:"path"`
	Backend string `yaml:"backend"` // "sqlite" or "memory"
}

type EngineConfig struct {
	CrystallizationThreshold float64 `yaml:"crystallization_threshold"`
	ReclamationThreshold     float64 `yaml:"reclamation_threshold"`
	DecayRate                float64 `yaml:"decay_rate"` // decay per idle second per sweep
	DecayIntervalSecs        int     `yaml:"decay_interval"`
	ClusterIntervalSecs      int     `yaml:"cluster_interval"`
	RebalanceIntervalSecs    int     `yaml:"rebalance_interval"`
	MinClusterSize           int     `yaml:"min_cluster_size"`
	ContentType              string  `yaml:"content_type"`
	CacheSize                int     `yaml:"cache_size"`
}

type TierConfig struct {
	Enabled          bool    `yaml:"enabled"`
	ActiveWindowSecs int     `yaml:"active_window"`
	WarmWindowSecs   int     `yaml:"warm_window"`
	ColdWindowSecs   int     `yaml:"cold_window"`
	ImportanceBoost  float64 `yaml:"importance_boost"`
	MaxActive        int     `yaml:"max_active"`
	MaxWarm          int     `yaml:"max_warm"`
	MaxCold          int     `yaml:"max_cold"`
}

type SpiralConfig struct {
	Dimensions int     `yaml:"dimensions"`
	Scale      float64 `yaml:"scale"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 38111,
		},
		Database: DatabaseConfig{
			Path:    "", // resolved at runtime via store.DefaultDBPath()
			Backend: "sqlite",
		},
		Engine: EngineConfig{
			CrystallizationThreshold: 0.9,
			ReclamationThreshold:     0.95,
			DecayRate:                0.001,
			DecayIntervalSecs:        5,
			ClusterIntervalSecs:      10,
			RebalanceIntervalSecs:    30,
			MinClusterSize:           3,
			ContentType:              "memory",
			CacheSize:                1024,
		},
		Tier: TierConfig{
			Enabled:          true,
			ActiveWindowSecs: 60,
			WarmWindowSecs:   600,
			ColdWindowSecs:   3600,
			ImportanceBoost:  0.8,
			MaxActive:        1000,
			MaxWarm:          5000,
			MaxCold:          20000,
		},
		Spiral: SpiralConfig{
			Dimensions: 4,
			Scale:      1.0,
		},
	}
}

// Load reads a YAML config file over the defaults. A missing path is
// not an error — the defaults stand.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
