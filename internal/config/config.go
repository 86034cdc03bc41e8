package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var modelsYAML []byte

type Config struct {
	Database DatabaseConfig
	Embedder EmbedderConfig
	Matching MatchingConfig
	Web      WebConfig
	Models   ModelsConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type EmbedderConfig struct {
	URL     string        // embedding service base URL, defaults to http://localhost:8000
	Model   string        // model name, defaults to facenet512
	Timeout time.Duration // per-request timeout (default 15s)
}

type MatchingConfig struct {
	Threshold  float64       // maximum cosine distance for a positive match
	CacheTTL   time.Duration // candidate set TTL per scope (default 10m)
	HNSWCutoff int           // roster size at which the cache builds an HNSW index (default 2000)
}

type WebConfig struct {
	Host string
	Port int
}

type ModelsConfig struct {
	Models map[string]ModelSpec `yaml:"models"`
}

type ModelSpec struct {
	Dim       int     `yaml:"dim"`
	Threshold float64 `yaml:"threshold"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func Load() *Config {
	var models ModelsConfig
	if err := yaml.Unmarshal(modelsYAML, &models); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded models.yaml: " + err.Error())
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Embedder: EmbedderConfig{
			URL:     os.Getenv("EMBEDDER_URL"),
			Model:   os.Getenv("EMBEDDER_MODEL"),
			Timeout: time.Duration(envInt("EMBEDDER_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Matching: MatchingConfig{
			Threshold:  envFloat("MATCH_THRESHOLD", 0),
			CacheTTL:   time.Duration(envInt("CACHE_TTL_SECONDS", 600)) * time.Second,
			HNSWCutoff: envInt("HNSW_CUTOFF", 2000),
		},
		Web: WebConfig{
			Host: os.Getenv("WEB_HOST"),
			Port: envInt("WEB_PORT", 8080),
		},
		Models: models,
	}

	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = "facenet512"
	}
	if cfg.Matching.Threshold == 0 {
		cfg.Matching.Threshold = cfg.ModelSpec(cfg.Embedder.Model).Threshold
	}

	return cfg
}

// ModelSpec returns the spec for a model name, falling back to facenet512
// defaults for unknown models.
func (c *Config) ModelSpec(name string) ModelSpec {
	if spec, ok := c.Models.Models[name]; ok {
		return spec
	}
	return ModelSpec{Dim: 512, Threshold: 0.6}
}

// EmbeddingDim returns the expected vector dimensionality for the configured model.
func (c *Config) EmbeddingDim() int {
	return c.ModelSpec(c.Embedder.Model).Dim
}
