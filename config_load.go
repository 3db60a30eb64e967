package contentgw

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/connectlist/contentgw/providers"
)

//go:embed config.schema.json
var configSchemaJSON string

var (
	configSchemaOnce sync.Once
	configSchema     *jsonschema.Schema
	configSchemaErr  error
)

func compiledConfigSchema() (*jsonschema.Schema, error) {
	configSchemaOnce.Do(func() {
		configSchema, configSchemaErr = jsonschema.CompileString("config.schema.json", configSchemaJSON)
	})
	return configSchema, configSchemaErr
}

// LoadConfig reads and parses a config file from the given path.
// Supported formats: JSON (.json), YAML (.yaml, .yml). ${VAR} references are
// expanded from the environment before parsing, and defaults are applied to
// the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	expanded := expandEnv(string(data))

	var cfg Config
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv resolves only the ${VAR} form. A bare $ (common in DSNs and
// tokens) is left untouched.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}

// ValidateConfig validates a Config against the embedded JSON schema and then
// checks the rules the schema cannot express.
func ValidateConfig(cfg Config) error {
	schema, err := compiledConfigSchema()
	if err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("config does not match schema: %s", verr.Error())
		}
		return fmt.Errorf("config does not match schema: %w", err)
	}

	if _, err := cfg.Cache.durations(); err != nil {
		return err
	}

	switch cfg.Cache.Durable.Backend {
	case BackendPostgres, BackendBadger:
		if strings.TrimSpace(cfg.Cache.Durable.DSN) == "" {
			return fmt.Errorf("cache.durable.dsn is required for the %s backend", cfg.Cache.Durable.Backend)
		}
	}

	seen := make(map[string]bool, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if seen[p.Name] {
			return fmt.Errorf("provider %q is configured more than once", p.Name)
		}
		seen[p.Name] = true
		if p.CircuitBreaker != nil {
			if _, err := parseDuration("providers."+p.Name+".circuit_breaker.timeout", p.CircuitBreaker.Timeout, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

// ConfigFromEnv builds a Config from environment variables, for running the
// server without a config file. getenv is usually os.Getenv.
//
// Recognised variables: TMDB_ACCESS_TOKEN, RAWG_API_KEY, GOOGLE_BOOKS_API_KEY,
// YOUTUBE_API_KEY, CACHE_BACKEND, CACHE_DSN, SESSION_JWT_SECRET, PORT,
// CORS_ORIGINS (comma separated) and RATE_LIMIT_RPM.
func ConfigFromEnv(getenv func(string) string) Config {
	var cfg Config

	for _, p := range []struct{ name, env string }{
		{providers.NameTMDB, "TMDB_ACCESS_TOKEN"},
		{providers.NameRAWG, "RAWG_API_KEY"},
		{providers.NameGoogleBooks, "GOOGLE_BOOKS_API_KEY"},
		{providers.NameYouTube, "YOUTUBE_API_KEY"},
	} {
		if key := strings.TrimSpace(getenv(p.env)); key != "" {
			cfg.Providers = append(cfg.Providers, ProviderConfig{Name: p.name, APIKey: key})
		}
	}

	cfg.Cache.Durable.Backend = DurableBackend(strings.ToLower(strings.TrimSpace(getenv("CACHE_BACKEND"))))
	cfg.Cache.Durable.DSN = getenv("CACHE_DSN")
	cfg.Server.SessionSecret = getenv("SESSION_JWT_SECRET")
	if port, err := strconv.Atoi(getenv("PORT")); err == nil {
		cfg.Server.Port = port
	}
	if rpm, err := strconv.Atoi(getenv("RATE_LIMIT_RPM")); err == nil {
		cfg.Server.RequestsPerMinute = rpm
	}
	if origins := getenv("CORS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Server.CORSOrigins = append(cfg.Server.CORSOrigins, o)
			}
		}
	}
	cfg.Logging.Level = getenv("LOG_LEVEL")
	cfg.Logging.Format = getenv("LOG_FORMAT")

	cfg.ApplyDefaults()
	return cfg
}
