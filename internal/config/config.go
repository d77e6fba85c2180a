// Package config loads runtime settings from a YAML file, a .env file and
// the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"lextransition/internal/grounding"
	"lextransition/internal/llm"
)

// DefaultPath is read when no config file is given and it exists
const DefaultPath = "lextransition.yaml"

// Config is the complete runtime configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	Mapping    MappingConfig    `yaml:"mapping"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Grounding  GroundingConfig  `yaml:"grounding"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type OllamaConfig struct {
	Host           string        `yaml:"host"`
	Model          string        `yaml:"model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	Timeout        time.Duration `yaml:"timeout"`
	// Sampling settings for answer generation
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Seed        int     `yaml:"seed"`
}

type MappingConfig struct {
	// Path to a YAML, JSON or CSV mapping file. Empty uses the built-in table.
	Path string `yaml:"path"`
}

type CorpusConfig struct {
	SnapshotDir string `yaml:"snapshot_dir"`
	Watch       bool   `yaml:"watch"`
	Concurrency int    `yaml:"concurrency"`
	ChunkSize   int    `yaml:"chunk_size"`
	Overlap     int    `yaml:"chunk_overlap"`
	Keep        int    `yaml:"keep"`
}

type GroundingConfig struct {
	Policy                 string        `yaml:"policy"`
	TopK                   int           `yaml:"top_k"`
	MinOverlap             float64       `yaml:"min_overlap"`
	MarkerOverlap          float64       `yaml:"marker_overlap"`
	MinReferenceConfidence float64       `yaml:"min_reference_confidence"`
	FallbackMessage        string        `yaml:"fallback_message"`
	RetrievalTimeout       time.Duration `yaml:"retrieval_timeout"`
	GenerationTimeout      time.Duration `yaml:"generation_timeout"`
}

// Embedding providers
const (
	ProviderOllama     = "ollama"
	ProviderHashing    = "hashing"
	ProviderExtractive = "extractive"
	ProviderAuto       = "auto"
)

type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Dimensions int    `yaml:"dimensions"`
}

type GenerationConfig struct {
	// Provider is ollama, extractive or auto (ollama when a host is set)
	Provider string `yaml:"provider"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration
func Default() Config {
	opts := grounding.DefaultOptions()
	return Config{
		Server: ServerConfig{Port: "8080"},
		Ollama: OllamaConfig{
			Model:          "llama2",
			EmbeddingModel: "nomic-embed-text",
			Timeout:        30 * time.Second,
			Temperature:    llm.DefaultTemperature,
			MaxTokens:      llm.DefaultMaxTokens,
		},
		Corpus: CorpusConfig{
			SnapshotDir: "data/snapshots",
			Concurrency: 4,
			ChunkSize:   1200,
			Overlap:     200,
			Keep:        3,
		},
		Grounding: GroundingConfig{
			Policy:                 string(opts.Policy),
			TopK:                   opts.TopK,
			MinOverlap:             opts.MinOverlap,
			MarkerOverlap:          opts.MarkerOverlap,
			MinReferenceConfidence: opts.MinReferenceConfidence,
			FallbackMessage:        opts.FallbackMessage,
			RetrievalTimeout:       10 * time.Second,
			GenerationTimeout:      15 * time.Second,
		},
		Embedding:  EmbeddingConfig{Provider: ProviderHashing, Dimensions: 256},
		Generation: GenerationConfig{Provider: ProviderAuto},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. An empty path reads DefaultPath if present.
// Values from .env never override variables already set in the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := cfg.readFile(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	return c.decode(f)
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// applyEnv overrides fields from environment variables
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Server.Port)
	str("DATABASE_URL", &c.Database.URL)
	str("LTA_OLLAMA_URL", &c.Ollama.Host)
	str("LTA_OLLAMA_MODEL", &c.Ollama.Model)
	str("LTA_EMBEDDING_MODEL", &c.Ollama.EmbeddingModel)
	str("LTA_MAPPING_DB", &c.Mapping.Path)
	str("LTA_SNAPSHOT_DIR", &c.Corpus.SnapshotDir)
	str("LTA_GROUNDING_POLICY", &c.Grounding.Policy)
	str("LTA_FALLBACK_MESSAGE", &c.Grounding.FallbackMessage)
	str("LTA_EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("LTA_GENERATION_PROVIDER", &c.Generation.Provider)
	str("LTA_LOG_LEVEL", &c.Logging.Level)
	str("LTA_LOG_FORMAT", &c.Logging.Format)

	if v, ok := lookup("LTA_USE_EMBEDDINGS"); ok && v == "1" {
		c.Embedding.Provider = ProviderOllama
	}
	if v, ok := lookup("LTA_WATCH_SNAPSHOTS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LTA_WATCH_SNAPSHOTS %q: %w", v, err)
		}
		c.Corpus.Watch = b
	}
	ints := map[string]*int{
		"LTA_TOP_K":             &c.Grounding.TopK,
		"LTA_OLLAMA_MAX_TOKENS": &c.Ollama.MaxTokens,
		"LTA_OLLAMA_SEED":       &c.Ollama.Seed,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
	}
	if v, ok := lookup("LTA_OLLAMA_TEMPERATURE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid LTA_OLLAMA_TEMPERATURE %q: %w", v, err)
		}
		c.Ollama.Temperature = f
	}

	durations := map[string]*time.Duration{
		"LTA_OLLAMA_TIMEOUT":     &c.Ollama.Timeout,
		"LTA_RETRIEVAL_TIMEOUT":  &c.Grounding.RetrievalTimeout,
		"LTA_GENERATION_TIMEOUT": &c.Grounding.GenerationTimeout,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = d
	}
	return nil
}

// Validate checks ranges and enumerations
func (c Config) Validate() error {
	var errs []error
	if _, err := grounding.ParsePolicy(c.Grounding.Policy); err != nil {
		errs = append(errs, err)
	}
	if c.Grounding.TopK <= 0 {
		errs = append(errs, fmt.Errorf("grounding.top_k must be positive, got %d", c.Grounding.TopK))
	}
	for name, v := range map[string]float64{
		"grounding.min_overlap":              c.Grounding.MinOverlap,
		"grounding.marker_overlap":           c.Grounding.MarkerOverlap,
		"grounding.min_reference_confidence": c.Grounding.MinReferenceConfidence,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %g", name, v))
		}
	}
	if c.Ollama.Temperature < 0 || c.Ollama.Temperature > 2 {
		errs = append(errs, fmt.Errorf("ollama.temperature must be within [0, 2], got %g", c.Ollama.Temperature))
	}
	if c.Ollama.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("ollama.max_tokens must be positive, got %d", c.Ollama.MaxTokens))
	}
	if c.Grounding.RetrievalTimeout <= 0 || c.Grounding.GenerationTimeout <= 0 {
		errs = append(errs, errors.New("grounding timeouts must be positive"))
	}
	switch strings.ToLower(c.Embedding.Provider) {
	case ProviderOllama, ProviderHashing:
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions))
	}
	switch strings.ToLower(c.Generation.Provider) {
	case ProviderOllama, ProviderExtractive, ProviderAuto:
	default:
		errs = append(errs, fmt.Errorf("unknown generation provider %q", c.Generation.Provider))
	}
	if c.Corpus.SnapshotDir == "" {
		errs = append(errs, errors.New("corpus.snapshot_dir is required"))
	}
	if c.Corpus.Overlap < 0 || c.Corpus.Overlap >= c.Corpus.ChunkSize {
		errs = append(errs, fmt.Errorf("corpus.chunk_overlap must be within [0, chunk_size), got %d", c.Corpus.Overlap))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// GroundingOptions converts the grounding section into assembler options
func (c Config) GroundingOptions() grounding.Options {
	policy, _ := grounding.ParsePolicy(c.Grounding.Policy)
	return grounding.Options{
		TopK:                   c.Grounding.TopK,
		MinReferenceConfidence: c.Grounding.MinReferenceConfidence,
		Policy:                 policy,
		MinOverlap:             c.Grounding.MinOverlap,
		MarkerOverlap:          c.Grounding.MarkerOverlap,
		FallbackMessage:        c.Grounding.FallbackMessage,
	}
}

// UseOllamaGenerator reports whether answers are generated by Ollama
func (c Config) UseOllamaGenerator() bool {
	switch strings.ToLower(c.Generation.Provider) {
	case ProviderOllama:
		return true
	case ProviderAuto:
		return c.Ollama.Host != ""
	}
	return false
}

// ParseLevel maps a level name to a slog level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// NewLogger builds a text or JSON logger writing to w
func NewLogger(cfg LoggingConfig, w io.Writer) *slog.Logger {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
