package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "https://www.ptt.cc", cfg.Site.BaseURL)
	require.Equal(t, "over18", cfg.Site.CookieName)
	require.Equal(t, 3, cfg.Fetch.MaxAttempts)
	require.InDelta(t, 5, cfg.Fetch.MaxRPS, 1e-9)
	require.Equal(t, 2, cfg.Fetch.Burst)
	require.Equal(t, 300, cfg.Chunk.Size)
	require.Equal(t, 50, cfg.Chunk.Overlap)
	require.Equal(t, 50, cfg.Vectorize.BatchSize)
	require.Equal(t, 5, cfg.Vectorize.MaxAttempts)
	require.Equal(t, []string{"Stock", "Gossiping"}, cfg.Schedule.Boards)
	require.Equal(t, time.Hour, cfg.ScheduleInterval())
	require.Equal(t, 500*time.Millisecond, cfg.ScrapeDelay())
	require.Equal(t, 10*time.Second, cfg.FetchTimeout())
	require.Equal(t, BrokerMemory, cfg.Pipeline.Broker)
	require.Equal(t, "※ 發信站", cfg.Scrape.SignatureMarker)
	require.InDelta(t, 0.3, cfg.LLM.Temperature, 1e-9)
	require.Equal(t, 100000, cfg.RAG.MaxContextChars)
	require.Equal(t, ArchiveNone, cfg.Archive.Backend)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
logging:
  development: false
schedule:
  boards: ["Tech_Job"]
  interval_seconds: 600
pipeline:
  broker: pubsub
  workers: 4
pubsub:
  project_id: local-project
db:
  dsn: postgres://forum@localhost/forum
vector:
  backend: postgres
  dimensions: 1536
llm:
  provider: openai
  api_key: sk-test
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, []string{"Tech_Job"}, cfg.Schedule.Boards)
	require.Equal(t, 10*time.Minute, cfg.ScheduleInterval())
	require.Equal(t, BrokerPubSub, cfg.Pipeline.Broker)
	require.Equal(t, "local-project", cfg.PubSub.ProjectID)
	require.Equal(t, "forumrag-scrape", cfg.PubSub.ScrapeTopic)
	require.Equal(t, VectorPG, cfg.Vector.Backend)
	require.Equal(t, 1536, cfg.Vector.Dimensions)
	require.Equal(t, LLMOpenAI, cfg.LLM.Provider)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FORUMRAG_SERVER_PORT", "7070")
	t.Setenv("FORUMRAG_RAG_DEFAULT_TOP_K", "5")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, 5, cfg.RAG.DefaultTopK)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "read config")
}

func TestLocation(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "Asia/Taipei", cfg.Location().String())

	cfg.Scrape.Timezone = "Not/AZone"
	require.Equal(t, time.UTC, cfg.Location())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port must be > 0"},
		{"overlap too large", func(c *Config) { c.Chunk.Overlap = c.Chunk.Size }, "chunk.overlap"},
		{"negative delay", func(c *Config) { c.Scrape.DelayMs = -1 }, "scrape.delay_ms"},
		{"broker", func(c *Config) { c.Pipeline.Broker = "kafka" }, `unknown pipeline.broker "kafka"`},
		{"pubsub project", func(c *Config) { c.Pipeline.Broker = BrokerPubSub }, "pubsub.project_id"},
		{"vector backend", func(c *Config) { c.Vector.Backend = "milvus" }, "unknown vector.backend"},
		{"pgvector dsn", func(c *Config) { c.Vector.Backend = VectorPG }, "db.dsn must be set"},
		{"llm provider", func(c *Config) { c.LLM.Provider = "bard" }, "unknown llm.provider"},
		{"boards", func(c *Config) { c.Schedule.Boards = nil }, "schedule.boards"},
		{"timezone", func(c *Config) { c.Scrape.Timezone = "Mars/Olympus" }, "scrape.timezone"},
		{"archive backend", func(c *Config) { c.Archive.Backend = "s3" }, `unknown archive.backend "s3"`},
		{"archive bucket", func(c *Config) { c.Archive.Backend = ArchiveGCS }, "archive.bucket"},
		{"top k", func(c *Config) { c.RAG.DefaultTopK = 20 }, "rag.default_top_k must be <= rag.max_top_k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Schedule.Boards = append([]string(nil), base.Schedule.Boards...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}

	disabled := base
	disabled.Schedule.Enabled = false
	disabled.Schedule.Boards = nil
	require.NoError(t, disabled.Validate())
}
