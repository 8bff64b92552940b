package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/cognidex/cognidex/internal/registry"
	"github.com/cognidex/cognidex/internal/store"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	// Backend lists are semicolon-separated entries of the form
	// name:kind:connection_string.
	IndexBackends  string `envconfig:"INDEX_BACKENDS" required:"true"`
	VectorBackends string `envconfig:"VECTOR_BACKENDS"`
	GraphBackends  string `envconfig:"GRAPH_BACKENDS"`

	// MigrateURL is the connection string migrations run against. Falls
	// back to the first postgres index backend when unset.
	MigrateURL string `envconfig:"MIGRATE_URL"`

	CommitTimeout   time.Duration `envconfig:"COMMIT_TIMEOUT" default:"10s"`
	DiscoverTimeout time.Duration `envconfig:"DISCOVER_TIMEOUT" default:"15s"`
	DefaultTopK     int           `envconfig:"DEFAULT_TOP_K" default:"10"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"cognidex-audit"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`

	SentryDSN        string  `envconfig:"SENTRY_DSN"`
	SentryEnv        string  `envconfig:"SENTRY_ENVIRONMENT" default:"development"`
	SentrySampleRate float64 `envconfig:"SENTRY_SAMPLE_RATE" default:"1.0"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("COGNIDEX", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	// Surface malformed backend lists at load time, not at startup wiring.
	if _, err := cfg.Backends(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Backends parses the per-role backend lists into the declared order:
// index first, then vector, then graph.
func (c *Config) Backends() ([]registry.BackendConfig, error) {
	var configs []registry.BackendConfig
	for _, group := range []struct {
		role store.Role
		list string
	}{
		{store.RoleIndex, c.IndexBackends},
		{store.RoleVector, c.VectorBackends},
		{store.RoleGraph, c.GraphBackends},
	} {
		parsed, err := parseBackendList(group.role, group.list)
		if err != nil {
			return nil, err
		}
		configs = append(configs, parsed...)
	}
	return configs, nil
}

// parseBackendList splits a semicolon-separated list of
// name:kind:connection_string entries. Connection strings themselves
// contain colons, so only the first two separators split.
func parseBackendList(role store.Role, list string) ([]registry.BackendConfig, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}

	var configs []registry.BackendConfig
	for _, entry := range strings.Split(list, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, fmt.Errorf("malformed %s backend entry %q: want name:kind:connection_string", role, entry)
		}
		configs = append(configs, registry.BackendConfig{
			Role:       role,
			Name:       parts[0],
			Kind:       parts[1],
			ConnString: parts[2],
		})
	}
	return configs, nil
}

// MigrateTarget returns the connection string migrations should run
// against, or empty when no relational index backend is configured.
func (c *Config) MigrateTarget() string {
	if c.MigrateURL != "" {
		return c.MigrateURL
	}
	configs, err := c.Backends()
	if err != nil {
		return ""
	}
	for _, bc := range configs {
		if bc.Role == store.RoleIndex && bc.Kind == "postgres" {
			return bc.ConnString
		}
	}
	return ""
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}
