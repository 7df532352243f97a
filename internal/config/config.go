// Package config loads process configuration from environment variables
// with an optional YAML overlay, following the reference backend's minimal
// env-first, YAML-secondary convention.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything main needs to wire the engine and HTTP surface.
type Config struct {
	UpstreamBaseURL  string        `yaml:"upstream_base_url"`
	ListenAddr       string        `yaml:"listen_addr"`
	DataDir          string        `yaml:"data_dir"`
	UpstreamTimeout  time.Duration `yaml:"-"`
	FetchConcurrency int           `yaml:"fetch_concurrency"`
	RateLimitRPS     float64       `yaml:"rate_limit_rps"`
	RateLimitBurst   int           `yaml:"rate_limit_burst"`
}

// Default returns the configuration with every field at its env-free
// default, matching what the original mock deployment runs with.
func Default() Config {
	dataDir, err := os.UserCacheDir()
	if err != nil || dataDir == "" {
		dataDir = "."
	}
	return Config{
		UpstreamBaseURL:  "http://localhost:5000",
		ListenAddr:       ":8787",
		DataDir:          dataDir + "/dataexplorer",
		UpstreamTimeout:  15 * time.Second,
		FetchConcurrency: 4,
		RateLimitRPS:     10,
		RateLimitBurst:   20,
	}
}

// Load starts from Default, optionally overlays a YAML file at path (missing
// file is not an error), then applies environment variable overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		} else if !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if v := os.Getenv("DATAEXPLORER_UPSTREAM_URL"); v != "" {
		cfg.UpstreamBaseURL = v
	}
	if v := os.Getenv("DATAEXPLORER_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DATAEXPLORER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("DATAEXPLORER_UPSTREAM_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.UpstreamTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("DATAEXPLORER_FETCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FetchConcurrency = n
		}
	}
	if v := os.Getenv("API_RATE_LIMIT_RPS"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = n
		}
	}
	if v := os.Getenv("API_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitBurst = n
		}
	}

	return cfg, nil
}
