package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr         string        `yaml:"addr"`
	JWTSecret    string        `yaml:"jwt_secret"`
	APITimeout   time.Duration `yaml:"timeout"`
	DatabasePath string        `yaml:"database_path"`
	MaxPageSize  int           `yaml:"max_page_size"`
	WorkerCount  int           `yaml:"worker_count"`
	EngineConfig EngineConfig  `yaml:"engine"`
	MediaConfig  MediaConfig   `yaml:"media"`
}

// EngineConfig configures the match engine client.
type EngineConfig struct {
	BaseURL                 string        `yaml:"base_url"`
	APIKey                  string        `yaml:"api_key"`
	Timeout                 time.Duration `yaml:"timeout"`
	Retries                 int           `yaml:"retries"`
	Backoff                 time.Duration `yaml:"backoff"`
	CircuitFailureThreshold int           `yaml:"circuit_failure_threshold"`
	CircuitReset            time.Duration `yaml:"circuit_reset"`
}

// MediaConfig configures the object-store (media service) client.
type MediaConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Addr:         getEnv("SIGHTLINE_ADDR", ":8080"),
		JWTSecret:    getEnv("SIGHTLINE_JWT_SECRET", "supersecretkey"),
		APITimeout:   15 * time.Second,
		DatabasePath: getEnv("SIGHTLINE_DATABASE_PATH", "sightline.db"),
		MaxPageSize:  getEnvInt("SIGHTLINE_MAX_PAGE_SIZE", 50),
		WorkerCount:  getEnvInt("SIGHTLINE_WORKER_COUNT", 4),
		EngineConfig: EngineConfig{
			BaseURL:                 getEnv("SIGHTLINE_ENGINE_URL", "http://localhost:8000"),
			APIKey:                  getEnv("SIGHTLINE_ENGINE_API_KEY", ""),
			Timeout:                 30 * time.Second,
			Retries:                 2,
			Backoff:                 2 * time.Second,
			CircuitFailureThreshold: 5,
			CircuitReset:            30 * time.Second,
		},
		MediaConfig: MediaConfig{
			BaseURL: getEnv("SIGHTLINE_MEDIA_URL", "http://localhost:7005"),
			APIKey:  getEnv("SIGHTLINE_MEDIA_API_KEY", ""),
			Timeout: 15 * time.Second,
		},
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}

	return def
}
