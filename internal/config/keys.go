package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kInt64
	kDuration
)

type keySpec struct {
	env   string
	typ   keyType
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		env: "DOCQA_SERVER_PORT", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
	},
	{
		env: "DOCQA_CHUNK_SIZE", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Chunking.Size = v.(int) },
	},
	{
		env: "DOCQA_CHUNK_OVERLAP", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Chunking.Overlap = v.(int) },
	},
	{
		env: "DOCQA_EMBED_BASE_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Embedding.BaseURL = v.(string) },
	},
	{
		env: "DOCQA_EMBED_MODEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Embedding.Model = v.(string) },
	},
	{
		env: "DOCQA_EMBED_DIMENSION", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Embedding.Dimension = v.(int) },
	},
	{
		env: "DOCQA_RERANK_MODEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Rerank.Model = v.(string) },
	},
	{
		env: "DOCQA_RERANK_TIMEOUT", typ: kDuration,
		apply: func(cfg *Config, v any) { cfg.Rerank.Timeout = v.(time.Duration) },
	},
	{
		env: "DOCQA_MAX_FILE_SIZE", typ: kInt64,
		apply: func(cfg *Config, v any) { cfg.Upload.MaxFileSize = v.(int64) },
	},
	{
		env: "DOCQA_UPLOAD_DIR", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Upload.Dir = v.(string) },
	},
	{
		env: "DOCQA_DATA_DIR", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
	},
	{
		env: "DOCQA_LOG_LEVEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
	},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kInt64:
			if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
