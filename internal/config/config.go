package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port        int               `json:"port"`
	Database    DatabaseConfig    `json:"database"`
	LogConfig   logger.LogConfig  `json:"log_config"`
	FileStore   FileStoreConfig   `json:"file_store"`
	VectorStore VectorStoreConfig `json:"vector_store"`
	AI          AIConfig          `json:"ai"`
	Chunking    ChunkingConfig    `json:"chunking"`
	Query       QueryConfig       `json:"query"`
	YouTube     YouTubeConfig     `json:"youtube"`
	Jobs        JobsConfig        `json:"jobs"`
	CORSOrigins []string          `json:"cors_origins"`
	// ChatRateLimitMS throttles the chat endpoint per client; zero
	// disables the limiter.
	ChatRateLimitMS int `json:"chat_rate_limit_ms"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type VectorStoreConfig struct {
	Type string `json:"type"`
}

type AIConfig struct {
	Provider            string      `json:"provider"`
	Data                interface{} `json:"data"`
	AnswerModel         string      `json:"answer_model"`
	VisionModel         string      `json:"vision_model"`
	EmbedModel          string      `json:"embed_model"`
	TranscribeModel     string      `json:"transcribe_model"`
	Timeout             int         `json:"timeout"`
	MaxConcurrentEmbeds int         `json:"max_concurrent_embeds"`
	EmbedCacheSize      int         `json:"embed_cache_size"`
	EmbedCacheTTLMin    int         `json:"embed_cache_ttl_min"`
}

type ChunkingConfig struct {
	MaxChunkSize int `json:"max_chunk_size"`
	// Pointer so an explicit 0 survives defaulting; zero overlap is a
	// valid setting.
	Overlap *int `json:"overlap"`
}

type QueryConfig struct {
	MaxSources    int `json:"max_sources"`
	CrossRefLimit int `json:"cross_ref_limit"`
}

type YouTubeConfig struct {
	WorkDir string `json:"work_dir"`
}

type JobsConfig struct {
	ReprocessSpec  string `json:"reprocess_spec"`
	ReprocessBatch uint   `json:"reprocess_batch"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.Database.DSN == "" && (cfg.Database.Host == "" || cfg.Database.DBName == "") {
		return nil, fmt.Errorf("database.dsn or database.host/dbname is required")
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
		cfg.FileStore.Data = map[string]interface{}{"dir": "./data/files"}
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "postgres"
	}
	switch cfg.VectorStore.Type {
	case "memory", "postgres":
	default:
		return nil, fmt.Errorf("vector_store.type must be memory or postgres")
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.AnswerModel == "" {
		cfg.AI.AnswerModel = "gemini-2.0-flash"
	}
	if cfg.AI.VisionModel == "" {
		cfg.AI.VisionModel = cfg.AI.AnswerModel
	}
	if cfg.AI.EmbedModel == "" {
		cfg.AI.EmbedModel = "text-embedding-004"
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 60
	}
	if cfg.AI.MaxConcurrentEmbeds == 0 {
		cfg.AI.MaxConcurrentEmbeds = 4
	}
	if cfg.AI.EmbedCacheSize == 0 {
		cfg.AI.EmbedCacheSize = 2048
	}
	if cfg.AI.EmbedCacheTTLMin == 0 {
		cfg.AI.EmbedCacheTTLMin = 60
	}
	if cfg.Chunking.MaxChunkSize == 0 {
		cfg.Chunking.MaxChunkSize = 1000
	}
	if cfg.Chunking.Overlap == nil {
		overlap := 200
		cfg.Chunking.Overlap = &overlap
	}
	if *cfg.Chunking.Overlap < 0 || *cfg.Chunking.Overlap >= cfg.Chunking.MaxChunkSize {
		return nil, fmt.Errorf("chunking.overlap must be non-negative and smaller than chunking.max_chunk_size")
	}
	if cfg.Query.MaxSources == 0 {
		cfg.Query.MaxSources = 5
	}
	if cfg.Query.CrossRefLimit == 0 {
		cfg.Query.CrossRefLimit = 3
	}
	if cfg.YouTube.WorkDir == "" {
		cfg.YouTube.WorkDir = os.TempDir()
	}
	if cfg.Jobs.ReprocessSpec == "" {
		cfg.Jobs.ReprocessSpec = "*/10 * * * *"
	}
	if cfg.Jobs.ReprocessBatch == 0 {
		cfg.Jobs.ReprocessBatch = 10
	}
	return &cfg, nil
}
