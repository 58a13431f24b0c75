// Package config loads and validates forumrag configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // scrape.timezone must resolve on hosts without zoneinfo

	"github.com/spf13/viper"
)

// Backend and provider names accepted by Validate.
const (
	BrokerMemory  = "memory"
	BrokerPubSub  = "pubsub"
	VectorMemory  = "memory"
	VectorPG      = "postgres"
	LLMOllama     = "ollama"
	LLMOpenAI     = "openai"
	ArchiveNone   = "none"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
	defaultUA     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultMarker = "※ 發信站"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Site      SiteConfig      `mapstructure:"site"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Chunk     ChunkConfig     `mapstructure:"chunk"`
	Vectorize VectorizeConfig `mapstructure:"vectorize"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	DB        DBConfig        `mapstructure:"db"`
	Vector    VectorConfig    `mapstructure:"vector"`
	LLM       LLMConfig       `mapstructure:"llm"`
	RAG       RAGConfig       `mapstructure:"rag"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SiteConfig describes the forum being scraped and the identity presented to it.
type SiteConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	UserAgent   string `mapstructure:"user_agent"`
	Referer     string `mapstructure:"referer"`
	CookieName  string `mapstructure:"cookie_name"`
	CookieValue string `mapstructure:"cookie_value"`
}

// FetchConfig configures page fetch timeouts and retries.
type FetchConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxAttempts      int `mapstructure:"max_attempts"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	// MaxRPS caps requests per second to one host; 0 disables pacing.
	MaxRPS float64 `mapstructure:"max_rps"`
	Burst  int     `mapstructure:"burst"`
	// RespectRobots checks robots.txt before each page fetch.
	RespectRobots bool `mapstructure:"respect_robots"`
}

// ScrapeConfig governs one board pass.
type ScrapeConfig struct {
	DelayMs         int    `mapstructure:"delay_ms"`
	Timezone        string `mapstructure:"timezone"`
	SignatureMarker string `mapstructure:"signature_marker"`
}

// ChunkConfig sets the chunk window.
type ChunkConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

// VectorizeConfig controls batching and backoff for vector upserts.
type VectorizeConfig struct {
	BatchSize   int `mapstructure:"batch_size"`
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
}

// ScheduleConfig lists the boards scraped periodically.
type ScheduleConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Boards          []string `mapstructure:"boards"`
	IntervalSeconds int      `mapstructure:"interval_seconds"`
}

// PipelineConfig sizes the stage worker pools.
type PipelineConfig struct {
	Workers    int    `mapstructure:"workers"`
	Broker     string `mapstructure:"broker"`
	QueueDepth int    `mapstructure:"queue_depth"`
}

// PubSubConfig holds the topics and subscriptions of the pubsub broker.
type PubSubConfig struct {
	ProjectID             string `mapstructure:"project_id"`
	ScrapeTopic           string `mapstructure:"scrape_topic"`
	ScrapeSubscription    string `mapstructure:"scrape_subscription"`
	VectorizeTopic        string `mapstructure:"vectorize_topic"`
	VectorizeSubscription string `mapstructure:"vectorize_subscription"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// VectorConfig selects the vector index backend.
type VectorConfig struct {
	Backend    string `mapstructure:"backend"`
	Table      string `mapstructure:"table"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig configures the embedding and generation endpoints.
type LLMConfig struct {
	Provider       string  `mapstructure:"provider"`
	BaseURL        string  `mapstructure:"base_url"`
	EmbedModel     string  `mapstructure:"embed_model"`
	ChatModel      string  `mapstructure:"chat_model"`
	APIKey         string  `mapstructure:"api_key"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	Temperature    float64 `mapstructure:"temperature"`
}

// RAGConfig bounds query size and context assembly.
type RAGConfig struct {
	DefaultTopK     int `mapstructure:"default_top_k"`
	MaxTopK         int `mapstructure:"max_top_k"`
	SnippetChars    int `mapstructure:"snippet_chars"`
	MaxContextChars int `mapstructure:"max_context_chars"`
}

// ArchiveConfig selects where raw article pages are kept.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FORUMRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("site.base_url", "https://www.ptt.cc")
	v.SetDefault("site.user_agent", defaultUA)
	v.SetDefault("site.referer", "https://www.ptt.cc/")
	v.SetDefault("site.cookie_name", "over18")
	v.SetDefault("site.cookie_value", "1")
	v.SetDefault("fetch.timeout_seconds", 10)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.backoff_initial_ms", 1000)
	v.SetDefault("fetch.max_rps", 5)
	v.SetDefault("fetch.burst", 2)
	v.SetDefault("scrape.delay_ms", 500)
	v.SetDefault("scrape.timezone", "Asia/Taipei")
	v.SetDefault("scrape.signature_marker", defaultMarker)
	v.SetDefault("chunk.size", 300)
	v.SetDefault("chunk.overlap", 50)
	v.SetDefault("vectorize.batch_size", 50)
	v.SetDefault("vectorize.max_attempts", 5)
	v.SetDefault("vectorize.base_delay_ms", 2000)
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.boards", []string{"Stock", "Gossiping"})
	v.SetDefault("schedule.interval_seconds", 3600)
	v.SetDefault("pipeline.workers", 2)
	v.SetDefault("pipeline.broker", BrokerMemory)
	v.SetDefault("pipeline.queue_depth", 64)
	v.SetDefault("pubsub.scrape_topic", "forumrag-scrape")
	v.SetDefault("pubsub.scrape_subscription", "forumrag-scrape-sub")
	v.SetDefault("pubsub.vectorize_topic", "forumrag-vectorize")
	v.SetDefault("pubsub.vectorize_subscription", "forumrag-vectorize-sub")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("vector.backend", VectorMemory)
	v.SetDefault("vector.table", "article_chunks")
	v.SetDefault("vector.dimensions", 768)
	v.SetDefault("llm.provider", LLMOllama)
	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.embed_model", "nomic-embed-text")
	v.SetDefault("llm.chat_model", "llama3.1")
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("rag.default_top_k", 3)
	v.SetDefault("rag.max_top_k", 10)
	v.SetDefault("rag.snippet_chars", 500)
	v.SetDefault("rag.max_context_chars", 100000)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.base_dir", "data/pages")
	v.SetDefault("archive.prefix", "pages")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	positive := []struct {
		key   string
		value int
	}{
		{"server.port", c.Server.Port},
		{"fetch.timeout_seconds", c.Fetch.TimeoutSeconds},
		{"fetch.max_attempts", c.Fetch.MaxAttempts},
		{"chunk.size", c.Chunk.Size},
		{"vectorize.batch_size", c.Vectorize.BatchSize},
		{"vectorize.max_attempts", c.Vectorize.MaxAttempts},
		{"schedule.interval_seconds", c.Schedule.IntervalSeconds},
		{"pipeline.workers", c.Pipeline.Workers},
		{"vector.dimensions", c.Vector.Dimensions},
		{"llm.timeout_seconds", c.LLM.TimeoutSeconds},
		{"rag.default_top_k", c.RAG.DefaultTopK},
		{"rag.max_top_k", c.RAG.MaxTopK},
		{"rag.snippet_chars", c.RAG.SnippetChars},
		{"rag.max_context_chars", c.RAG.MaxContextChars},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", p.key))
		}
	}
	if c.Fetch.MaxRPS < 0 || c.Fetch.Burst < 0 {
		errs = append(errs, errors.New("fetch.max_rps and fetch.burst must be >= 0"))
	}
	if c.Scrape.DelayMs < 0 {
		errs = append(errs, errors.New("scrape.delay_ms must be >= 0"))
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		errs = append(errs, errors.New("chunk.overlap must be >= 0 and < chunk.size"))
	}
	if c.RAG.DefaultTopK > c.RAG.MaxTopK {
		errs = append(errs, errors.New("rag.default_top_k must be <= rag.max_top_k"))
	}
	switch c.Pipeline.Broker {
	case BrokerMemory:
	case BrokerPubSub:
		if c.PubSub.ProjectID == "" {
			errs = append(errs, errors.New("pubsub.project_id must be set when pipeline.broker is pubsub"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown pipeline.broker %q", c.Pipeline.Broker))
	}
	switch c.Vector.Backend {
	case VectorMemory:
	case VectorPG:
		if c.DB.DSN == "" {
			errs = append(errs, errors.New("db.dsn must be set when vector.backend is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector.backend %q", c.Vector.Backend))
	}
	switch c.LLM.Provider {
	case LLMOllama, LLMOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown llm.provider %q", c.LLM.Provider))
	}
	switch c.Archive.Backend {
	case ArchiveNone:
	case ArchiveLocal:
		if c.Archive.BaseDir == "" {
			errs = append(errs, errors.New("archive.base_dir must be set when archive.backend is local"))
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			errs = append(errs, errors.New("archive.bucket must be set when archive.backend is gcs"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown archive.backend %q", c.Archive.Backend))
	}
	if c.Schedule.Enabled && len(c.Schedule.Boards) == 0 {
		errs = append(errs, errors.New("schedule.boards must not be empty when scheduling is enabled"))
	}
	if _, err := time.LoadLocation(c.Scrape.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("scrape.timezone: %w", err))
	}
	return errors.Join(errs...)
}

// Location returns the zone post timestamps are interpreted in.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scrape.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FetchTimeout returns the per-request timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// ScrapeDelay returns the politeness delay between article fetches.
func (c Config) ScrapeDelay() time.Duration {
	return time.Duration(c.Scrape.DelayMs) * time.Millisecond
}

// ScheduleInterval returns the time between scheduled board passes.
func (c Config) ScheduleInterval() time.Duration {
	return time.Duration(c.Schedule.IntervalSeconds) * time.Second
}
