// Package config loads service configuration from defaults, an optional
// .env file, and DOCQA_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Chunking  ChunkingConfig
	Embedding EmbeddingConfig
	Rerank    RerankConfig
	Upload    UploadConfig
	Storage   StorageConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type ChunkingConfig struct {
	Size    int
	Overlap int
}

type EmbeddingConfig struct {
	BaseURL   string
	Model     string
	Dimension int
}

type RerankConfig struct {
	Model   string
	Timeout time.Duration
}

type UploadConfig struct {
	MaxFileSize int64
	Dir         string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Embedding: EmbeddingConfig{
			BaseURL:   "http://localhost:11434",
			Model:     "nomic-embed-text",
			Dimension: 768,
		},
		Rerank: RerankConfig{
			Model:   "phi3.5",
			Timeout: 10 * time.Second,
		},
		Upload: UploadConfig{
			MaxFileSize: 50 << 20,
			Dir:         "uploads",
		},
		Storage: StorageConfig{
			DataDir: "data",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, a .env file in the working
// directory (if present), and DOCQA_* environment variables. Real environment
// variables win over .env entries; godotenv never overwrites existing ones.
func Load() (Config, error) {
	godotenv.Load()

	cfg := defaults()
	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunk overlap %d must be non-negative and smaller than chunk size %d",
			c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", c.Upload.MaxFileSize)
	}
	if c.Rerank.Timeout <= 0 {
		return fmt.Errorf("rerank timeout must be positive, got %s", c.Rerank.Timeout)
	}
	return nil
}
