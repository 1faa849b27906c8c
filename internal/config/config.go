package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kaleido-search/kaleido/internal/domain"
	"github.com/kaleido-search/kaleido/internal/vectordb"
)

// Config holds the kaleido API configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Backend    BackendConfig    `yaml:"backend"`
	Collection CollectionConfig `yaml:"collection"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Cache      CacheConfig      `yaml:"cache"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// BackendConfig holds vector backend connection settings.
type BackendConfig struct {
	Driver string `yaml:"driver"` // qdrant, chromem (default: chromem)

	Qdrant QdrantConfig `yaml:"qdrant"`

	// Chromem settings; empty path means in-memory.
	ChromemPath     string `yaml:"chromem_path"`
	ChromemCompress bool   `yaml:"chromem_compress"`

	// ConnectAttempts bounds the startup retry loop.
	ConnectAttempts int `yaml:"connect_attempts"`
	// ConnectBackoffMS is the initial retry delay, doubling per attempt.
	ConnectBackoffMS int `yaml:"connect_backoff_ms"`
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

// CollectionConfig holds the collection schema settings.
type CollectionConfig struct {
	Name string `yaml:"name"`
	// Dimension is the vector length; 0 means probe the embedding provider.
	Dimension int    `yaml:"dimension"`
	Modality  string `yaml:"modality"` // text, multimodal (default: text)
	Metric    string `yaml:"metric"`   // cosine, l2, dot (default: cosine)

	HNSWM           int `yaml:"hnsw_m"`
	HNSWEFConstruct int `yaml:"hnsw_ef_construction"`
	EFSearch        int `yaml:"ef_search"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	ImageModel string `yaml:"image_model"`
	// ProbeText is embedded once at startup to infer the dimension when
	// collection.dimension is unset.
	ProbeText string `yaml:"probe_text"`
	// ImageTimeoutSec bounds each image fetch+embed call.
	ImageTimeoutSec int `yaml:"image_timeout_sec"`
}

// CacheConfig holds the optional embedding cache settings.
type CacheConfig struct {
	Addrs    []string `yaml:"addrs"` // empty disables the cache
	Password string   `yaml:"password"`
	TTLHours int      `yaml:"ttl_hours"` // 0 = no expiry
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Backend.Driver == "" {
		c.Backend.Driver = "chromem"
	}
	if c.Backend.Qdrant.Port <= 0 {
		c.Backend.Qdrant.Port = 6334
	}
	if c.Backend.ConnectAttempts <= 0 {
		c.Backend.ConnectAttempts = 3
	}
	if c.Backend.ConnectBackoffMS <= 0 {
		c.Backend.ConnectBackoffMS = 500
	}
	if c.Collection.Name == "" {
		c.Collection.Name = "documents"
	}
	if c.Collection.Modality == "" {
		c.Collection.Modality = "text"
	}
	if c.Collection.Metric == "" {
		c.Collection.Metric = "cosine"
	}
	if c.Collection.HNSWM <= 0 {
		c.Collection.HNSWM = 32
	}
	if c.Collection.HNSWEFConstruct <= 0 {
		c.Collection.HNSWEFConstruct = 400
	}
	if c.Embedding.ProbeText == "" {
		c.Embedding.ProbeText = "dimension probe"
	}
	if c.Embedding.ImageTimeoutSec <= 0 {
		c.Embedding.ImageTimeoutSec = 10
	}
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = os.Getenv("EMBEDDING_API_KEY")
	}
	if c.Backend.Qdrant.APIKey == "" {
		c.Backend.Qdrant.APIKey = os.Getenv("QDRANT_API_KEY")
	}
}

// Validate checks the configuration for correctness. All problems are
// collected into a single error so a broken deployment reports everything
// at once instead of failing field by field.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}

	switch c.Backend.Driver {
	case "chromem":
	case "qdrant":
		if c.Backend.Qdrant.Host == "" {
			errs = append(errs, errors.New("backend.qdrant.host is required for the qdrant driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("backend.driver must be \"qdrant\" or \"chromem\", got %q", c.Backend.Driver))
	}

	switch c.Collection.Modality {
	case "text", "multimodal":
	default:
		errs = append(errs, fmt.Errorf("collection.modality must be \"text\" or \"multimodal\", got %q", c.Collection.Modality))
	}

	switch vectordb.DistanceMetric(c.Collection.Metric) {
	case vectordb.MetricCosine, vectordb.MetricL2, vectordb.MetricDot:
	default:
		errs = append(errs, fmt.Errorf("collection.metric must be \"cosine\", \"l2\" or \"dot\", got %q", c.Collection.Metric))
	}

	if c.Collection.Dimension < 0 {
		errs = append(errs, fmt.Errorf("collection.dimension must not be negative, got %d", c.Collection.Dimension))
	}
	if c.Collection.Dimension == 0 && c.Embedding.Model == "" {
		errs = append(errs, errors.New("collection.dimension is unset and embedding.model is empty: the dimension cannot be probed"))
	}
	if c.Collection.Modality == "multimodal" && c.Embedding.ImageModel == "" {
		errs = append(errs, errors.New("embedding.image_model is required for multimodal collections"))
	}

	return errors.Join(errs...)
}

// Modalities returns the vector fields implied by collection.modality.
func (c *CollectionConfig) Modalities() []domain.Modality {
	if c.Modality == "multimodal" {
		return []domain.Modality{domain.ModalityText, domain.ModalityImage}
	}
	return []domain.Modality{domain.ModalityText}
}

// Schema builds the vectordb schema from the collection settings. Dimension
// may still be 0 here; the schema manager fills it from the provider probe.
func (c *CollectionConfig) Schema() vectordb.Schema {
	return vectordb.Schema{
		Collection: c.Name,
		Dimension:  c.Dimension,
		Metric:     vectordb.DistanceMetric(c.Metric),
		Modalities: c.Modalities(),
		HNSW: vectordb.HNSWParams{
			M:           c.HNSWM,
			EFConstruct: c.HNSWEFConstruct,
		},
		EFSearch: c.EFSearch,
	}
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
