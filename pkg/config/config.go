// Package config loads piclocate-engine configuration from config.yaml with
// environment variable overrides via cleanenv, matching spec.md §6's env var
// table. Secrets must only come from environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/piclocate/piclocate-engine/pkg/crypto"
)

// Config holds all configuration for piclocate-engine.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""`
	Version  string `yaml:"-"`

	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	Auth AuthConfig `yaml:"auth"`

	Database  DatabaseConfig  `yaml:"database"`
	Source    SourceConfig    `yaml:"source"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	VLM       VLMConfig       `yaml:"vlm"`
	Search    SearchConfig    `yaml:"search"`
	Cache     CacheConfig     `yaml:"cache"`
	Vision    VisionConfig    `yaml:"vision"`
	Indexing  IndexingConfig  `yaml:"indexing"`

	// ProjectCredentialsKey encrypts provider API keys at rest (pkg/crypto).
	// 32-byte key, base64 encoded. Generate with: openssl rand -base64 32
	ProjectCredentialsKey string `yaml:"-" env:"PROJECT_CREDENTIALS_KEY"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	JWKSEndpointsStr string            `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`
	JWKSEndpoints    map[string]string `yaml:"-"`
}

// DatabaseConfig holds PostgreSQL database configuration.
// MaxConnections is not fixed at load time: it is raised by
// ResolvePoolSize once the fetcher/persister/search pool sizes are known
// (see spec.md §5's "≥ fetcher_pool + persister_pool + 2·search_concurrency").
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"piclocate"`
	Password       string `yaml:"-" env:"PGPASSWORD"`
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"piclocate"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// SourceConfig configures the external image-store adapter (out of scope
// per spec.md §1, referenced only through its folder root id).
type SourceConfig struct {
	RootFolderID string `yaml:"root_folder_id" env:"SOURCE_ROOT_ID"`
	BaseURL      string `yaml:"base_url" env:"SOURCE_BASE_URL"`
	APIKey       string `yaml:"-" env:"SOURCE_API_KEY"`
}

// EmbeddingConfig configures the text embedding provider.
type EmbeddingConfig struct {
	ModelURL  string `yaml:"model_url" env:"EMBED_MODEL_URL"`
	APIKey    string `yaml:"-" env:"EMBED_API_KEY"`
	Model     string `yaml:"model" env:"EMBED_MODEL" env-default:"text-embedding-3-small"`
	Dimension int    `yaml:"dimension" env:"EMBED_DIMENSION" env-default:"1536"`
}

// VLMConfig configures the vision-language model verifier.
type VLMConfig struct {
	ModelURL       string `yaml:"model_url" env:"VLM_MODEL_URL"`
	APIKey         string `yaml:"-" env:"VLM_API_KEY"`
	Model          string `yaml:"model" env:"VLM_MODEL" env-default:"gpt-4o-mini"`
	BatchSize      int    `yaml:"batch_size" env:"BATCH_SIZE" env-default:"12"`
	Concurrency    int    `yaml:"concurrency" env:"VLM_CONCURRENCY" env-default:"4"`
	RequestsPerSec int    `yaml:"requests_per_sec" env:"VLM_RATE_LIMIT" env-default:"5"`
}

// SearchConfig configures Stage A/C of the search pipeline.
type SearchConfig struct {
	TopK        int     `yaml:"top_k" env:"TOP_K" env-default:"120"`
	Cutoff      float64 `yaml:"cutoff" env:"CUTOFF" env-default:"0.7"`
	FinalLimit  int     `yaml:"final_limit" env:"FINAL_LIMIT" env-default:"24"`
	Alpha       float64 `yaml:"alpha" env:"ALPHA" env-default:"0.75"`
	DeadlineSec int     `yaml:"deadline_sec" env:"SEARCH_DEADLINE_SEC" env-default:"30"`
}

// CacheConfig configures the VLM verdict cache.
type CacheConfig struct {
	TTLDays  int `yaml:"ttl_days" env:"CACHE_TTL_DAYS" env-default:"7"`
	MaxItems int `yaml:"max_items" env:"CACHE_MAX_ITEMS" env-default:"50000"`
}

// VisionConfig configures the indexing vision analyzer, including the
// object detector it calls out to.
type VisionConfig struct {
	MaxImagePx     int    `yaml:"max_image_px" env:"MAX_IMAGE_PX" env-default:"1024"`
	DetectModelURL string `yaml:"detect_model_url" env:"DETECT_MODEL_URL"`
	DetectAPIKey   string `yaml:"-" env:"DETECT_API_KEY"`
}

// IndexingConfig sizes the indexing pipeline's worker pools (spec.md §5).
type IndexingConfig struct {
	FetcherPoolSize int  `yaml:"fetcher_pool_size" env:"FETCHER_POOL_SIZE" env-default:"8"`
	VisionPoolSize  int  `yaml:"vision_pool_size" env:"VISION_POOL_SIZE" env-default:"0"` // 0 = min(CPU,4)
	EmbedPoolSize   int  `yaml:"embed_pool_size" env:"EMBED_POOL_SIZE" env-default:"2"`
	PersistPoolSize int  `yaml:"persist_pool_size" env:"PERSIST_POOL_SIZE" env-default:"2"`
	Incremental     bool `yaml:"incremental" env:"INDEXING_INCREMENTAL" env-default:"true"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.decryptProviderSecrets(); err != nil {
		return nil, fmt.Errorf("failed to decrypt provider secrets: %w", err)
	}

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// Validate enforces the required env vars of spec.md §6 and rejects a
// startup with an embedding dimension of zero, which would silently
// corrupt the IVFFLAT index (Fatal per spec.md §7).
func (c *Config) Validate() error {
	if c.Source.RootFolderID == "" {
		return fmt.Errorf("SOURCE_ROOT_ID is required")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("SOURCE_BASE_URL is required")
	}
	if c.Embedding.ModelURL == "" {
		return fmt.Errorf("EMBED_MODEL_URL is required")
	}
	if c.VLM.ModelURL == "" {
		return fmt.Errorf("VLM_MODEL_URL is required")
	}
	if c.Vision.DetectModelURL == "" {
		return fmt.Errorf("DETECT_MODEL_URL is required")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("EMBED_DIMENSION must be positive")
	}
	return nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)
	c.Database.Host = ResolveHostForDocker(c.Database.Host)
	return nil
}

// decryptProviderSecrets decrypts the provider API keys with
// ProjectCredentialsKey, if one is set. Operators may store
// config.yaml/env secrets pre-encrypted with crypto.CredentialEncryptor
// rather than in plaintext; when ProjectCredentialsKey is empty, every
// field is assumed to already be plaintext and is left untouched.
func (c *Config) decryptProviderSecrets() error {
	if c.ProjectCredentialsKey == "" {
		return nil
	}

	enc, err := crypto.NewCredentialEncryptor(c.ProjectCredentialsKey)
	if err != nil {
		return fmt.Errorf("invalid PROJECT_CREDENTIALS_KEY: %w", err)
	}

	fields := []*string{
		&c.Embedding.APIKey,
		&c.VLM.APIKey,
		&c.Vision.DetectAPIKey,
		&c.Source.APIKey,
	}
	for _, field := range fields {
		plain, err := enc.Decrypt(*field)
		if err != nil {
			return err
		}
		*field = plain
	}
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// parseJWKSEndpoints parses "issuer1=url1,issuer2=url2" into a map.
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	pairs := strings.Split(value, ",")
	for _, pair := range pairs {
		parts := strings.Split(pair, "=")
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// ResolvePoolSize returns the minimum database pool size required by
// spec.md §5: fetcher_pool + persister_pool + 2·search_concurrency.
func (c *Config) ResolvePoolSize(searchConcurrency int) int32 {
	min := int32(c.Indexing.FetcherPoolSize + c.Indexing.PersistPoolSize + 2*searchConcurrency)
	if c.Database.MaxConnections > min {
		return c.Database.MaxConnections
	}
	return min
}
