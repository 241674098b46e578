// Package config loads application configuration from YAML and environment.
package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/finloom/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Archive   ArchiveConfig   `yaml:"archive" mapstructure:"archive"`
	Paths     PathsConfig     `yaml:"paths" mapstructure:"paths"`
	Sections  SectionsConfig  `yaml:"sections" mapstructure:"sections"`
	Chunking  ChunkingConfig  `yaml:"chunking" mapstructure:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Keyword   KeywordConfig   `yaml:"keyword" mapstructure:"keyword"`
	Graph     GraphConfig     `yaml:"graph" mapstructure:"graph"`
	Rerank    RerankConfig    `yaml:"rerank" mapstructure:"rerank"`
	HopRAG    HopRAGConfig    `yaml:"hoprag" mapstructure:"hoprag"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ArchiveConfig configures access to the filing archive.
type ArchiveConfig struct {
	UserAgent  string  `yaml:"user_agent" mapstructure:"user_agent"`
	Rate       float64 `yaml:"rate" mapstructure:"rate"`
	Burst      int     `yaml:"burst" mapstructure:"burst"`
	MinRate    float64 `yaml:"min_rate" mapstructure:"min_rate"`
	MaxRetries int     `yaml:"max_retries" mapstructure:"max_retries"`
	TimeoutSecs     int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	FileTimeoutSecs int `yaml:"file_timeout_secs" mapstructure:"file_timeout_secs"`
	StartYear       int `yaml:"start_year" mapstructure:"start_year"`
	EndYear         int `yaml:"end_year" mapstructure:"end_year"`
}

// PathsConfig configures on-disk layout.
type PathsConfig struct {
	RawDataRoot   string `yaml:"raw_data_root" mapstructure:"raw_data_root"`
	CheckpointDir string `yaml:"checkpoint_dir" mapstructure:"checkpoint_dir"`
	ProgressDir   string `yaml:"progress_dir" mapstructure:"progress_dir"`
	ArtifactDir   string `yaml:"artifact_dir" mapstructure:"artifact_dir"`
	Database      string `yaml:"database" mapstructure:"database"`
	VectorDB      string `yaml:"vector_db" mapstructure:"vector_db"`
	KeywordIndex  string `yaml:"keyword_index" mapstructure:"keyword_index"`
	Roster        string `yaml:"roster" mapstructure:"roster"`
}

// SectionsConfig configures HTML section extraction thresholds.
type SectionsConfig struct {
	MinWordsDefault    int     `yaml:"min_words_default" mapstructure:"min_words_default"`
	MaxSectionChars    int     `yaml:"max_section_chars" mapstructure:"max_section_chars"`
	ShortPenalty       float64 `yaml:"short_penalty" mapstructure:"short_penalty"`
	TruncationPenalty  float64 `yaml:"truncation_penalty" mapstructure:"truncation_penalty"`
	CandidacyFraction  float64 `yaml:"candidacy_fraction" mapstructure:"candidacy_fraction"`
	PreserveHTMLTables bool    `yaml:"preserve_html_tables" mapstructure:"preserve_html_tables"`
}

// ChunkingConfig configures semantic chunking.
type ChunkingConfig struct {
	TargetTokens  int `yaml:"target_tokens" mapstructure:"target_tokens"`
	MinTokens     int `yaml:"min_tokens" mapstructure:"min_tokens"`
	MaxTokens     int `yaml:"max_tokens" mapstructure:"max_tokens"`
	OverlapTokens int `yaml:"overlap_tokens" mapstructure:"overlap_tokens"`
}

// EmbeddingConfig configures the embeddings provider.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	Model      string `yaml:"model" mapstructure:"model"`
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"`
	BatchSize  int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// KeywordConfig configures the keyword index.
type KeywordConfig struct {
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// GraphConfig configures the property-graph store.
type GraphConfig struct {
	URI           string `yaml:"uri" mapstructure:"uri"`
	Username      string `yaml:"username" mapstructure:"username"`
	Password      string `yaml:"password" mapstructure:"password"`
	Database      string `yaml:"database" mapstructure:"database"`
	BatchSize     int    `yaml:"batch_size" mapstructure:"batch_size"`
	MinCommunity  int    `yaml:"min_community_members" mapstructure:"min_community_members"`
	LeidenSeed    int64  `yaml:"leiden_seed" mapstructure:"leiden_seed"`
	ImportAllFacts bool  `yaml:"import_all_facts" mapstructure:"import_all_facts"`
}

// RerankConfig configures the optional reranker.
type RerankConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// HopRAGConfig holds the multi-hop retrieval knobs.
type HopRAGConfig struct {
	DefaultMaxHops      int     `yaml:"default_max_hops" mapstructure:"default_max_hops"`
	InitialTopK         int     `yaml:"initial_top_k" mapstructure:"initial_top_k"`
	NeighborsPerSeed    int     `yaml:"neighbors_per_seed" mapstructure:"neighbors_per_seed"`
	MaxCandidatesPerHop int     `yaml:"max_candidates_per_hop" mapstructure:"max_candidates_per_hop"`
	KeepPerHop          int     `yaml:"keep_per_hop" mapstructure:"keep_per_hop"`
	MinEdgeWeight       float64 `yaml:"min_edge_weight" mapstructure:"min_edge_weight"`
	HopDecay            float64 `yaml:"hop_decay" mapstructure:"hop_decay"`
	MaxPseudoPerNode    int     `yaml:"max_pseudo_per_node" mapstructure:"max_pseudo_per_node"`
	PseudoSimilarity    float64 `yaml:"pseudo_similarity" mapstructure:"pseudo_similarity"`
	PseudoConcurrency   int     `yaml:"pseudo_concurrency" mapstructure:"pseudo_concurrency"`
}

// ServerConfig configures the retrieval API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FINLOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	v.SetDefault("archive.rate", 8.0)
	v.SetDefault("archive.burst", 16)
	v.SetDefault("archive.min_rate", 1.0)
	v.SetDefault("archive.max_retries", 3)
	v.SetDefault("archive.timeout_secs", 30)
	v.SetDefault("archive.file_timeout_secs", 60)
	v.SetDefault("archive.start_year", 2019)
	v.SetDefault("archive.end_year", 2024)

	v.SetDefault("paths.raw_data_root", "data/raw")
	v.SetDefault("paths.checkpoint_dir", "data/checkpoints")
	v.SetDefault("paths.progress_dir", "data/progress")
	v.SetDefault("paths.artifact_dir", "data/artifacts")
	v.SetDefault("paths.database", "data/finloom.db")
	v.SetDefault("paths.vector_db", "data/vectors.db")
	v.SetDefault("paths.keyword_index", "data/keyword.bleve")
	v.SetDefault("paths.roster", "roster.yaml")

	v.SetDefault("sections.min_words_default", 100)
	v.SetDefault("sections.max_section_chars", 500000)
	v.SetDefault("sections.short_penalty", 0.7)
	v.SetDefault("sections.truncation_penalty", 0.9)
	v.SetDefault("sections.candidacy_fraction", 0.1)
	v.SetDefault("sections.preserve_html_tables", true)

	v.SetDefault("chunking.target_tokens", 750)
	v.SetDefault("chunking.min_tokens", 500)
	v.SetDefault("chunking.max_tokens", 1000)
	v.SetDefault("chunking.overlap_tokens", 100)

	v.SetDefault("embedding.model", "gemini-embedding-001")
	v.SetDefault("embedding.dimensions", 768)
	v.SetDefault("embedding.batch_size", 100)

	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.concurrency", 20)

	v.SetDefault("keyword.batch_size", 1000)

	v.SetDefault("graph.uri", "bolt://localhost:7687")
	v.SetDefault("graph.username", "neo4j")
	v.SetDefault("graph.database", "neo4j")
	v.SetDefault("graph.batch_size", 500)
	v.SetDefault("graph.min_community_members", 3)
	v.SetDefault("graph.leiden_seed", 42)

	v.SetDefault("rerank.base_url", "https://api.jina.ai/v1/rerank")
	v.SetDefault("rerank.model", "jina-reranker-v2-base-multilingual")

	v.SetDefault("hoprag.default_max_hops", 2)
	v.SetDefault("hoprag.initial_top_k", 10)
	v.SetDefault("hoprag.neighbors_per_seed", 15)
	v.SetDefault("hoprag.max_candidates_per_hop", 30)
	v.SetDefault("hoprag.keep_per_hop", 5)
	v.SetDefault("hoprag.min_edge_weight", 0.4)
	v.SetDefault("hoprag.hop_decay", 0.85)
	v.SetDefault("hoprag.max_pseudo_per_node", 10)
	v.SetDefault("hoprag.pseudo_similarity", 0.60)
	v.SetDefault("hoprag.pseudo_concurrency", 20)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// LoadRoster reads the company roster YAML file.
func LoadRoster(path string) ([]model.Company, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read roster %s", path)
	}

	var roster struct {
		Companies []model.Company `yaml:"companies"`
	}
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, eris.Wrap(err, "config: parse roster")
	}

	for i := range roster.Companies {
		roster.Companies[i].CIK = model.PadCIK(roster.Companies[i].CIK)
	}
	return roster.Companies, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
