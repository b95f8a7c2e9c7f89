package moviegraph

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the .moviegraph.yaml configuration file.
type Config struct {
	// Store backend name (e.g., "neo4j", "memory")
	Store string `yaml:"store" validate:"required"`

	// Connection config for the store
	Connection StoreConfig `yaml:"connection"`

	// Seed dataset for stores that support seeding (memory)
	Seed string `yaml:"seed,omitempty"`

	// Server config for the HTTP transport
	Server ServerConfig `yaml:"server"`

	// Log config
	Log LogConfig `yaml:"log"`
}

// ServerConfig holds settings for the serve command.
type ServerConfig struct {
	// Listen address (e.g., ":8080")
	Address string `yaml:"address" validate:"required"`

	// Path the GraphQL endpoint is mounted on
	Path string `yaml:"path" validate:"required,startswith=/"`

	// Allowed CORS origins; empty disables CORS
	CORSOrigins []string `yaml:"cors_origins,omitempty"`

	// Maximum number of resolvers running at once per request; 0 means unbounded
	Concurrency int `yaml:"concurrency,omitempty" validate:"gte=0"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string `yaml:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `yaml:"development,omitempty"`
}

// DefaultConfigNames are the filenames we search for.
var DefaultConfigNames = []string{".moviegraph.yaml", ".moviegraph.yml", "moviegraph.yaml", "moviegraph.yml"}

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() *Config {
	return &Config{
		Store: "memory",
		Server: ServerConfig{
			Address: ":8080",
			Path:    "/graphql",
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig finds and loads the nearest .moviegraph.yaml walking up from dir.
func LoadConfig(dir string) (*Config, error) {
	path, err := FindConfig(dir)
	if err != nil {
		return nil, err
	}

	return LoadConfigFile(path)
}

// FindConfig searches for a config file starting from dir and walking up.
func FindConfig(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for dir := absDir; ; {
		for _, name := range DefaultConfigNames {
			path := filepath.Join(dir, name)

			_, err := os.Stat(path)
			if err == nil {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrConfigNotFound
		}

		dir = parent
	}
}

// LoadConfigFile loads a config from a specific path. Unset values keep
// their defaults and a relative seed path is resolved against the file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if cfg.Seed != "" && !filepath.IsAbs(cfg.Seed) {
		cfg.Seed = filepath.Join(filepath.Dir(path), cfg.Seed)
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for missing or malformed values.
func (c *Config) Validate() error {
	err := validate.Struct(c)

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, formatFieldError(e))
		}

		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}

	if err != nil {
		return err
	}

	if c.Store == "neo4j" && c.Connection.URI == "" {
		return errors.New("invalid config: connection.uri is required for the neo4j store")
	}

	return nil
}

// StoreConfig returns the connection settings passed to the store factory.
func (c *Config) StoreConfig() StoreConfig {
	sc := c.Connection
	if sc.Seed == "" {
		sc.Seed = c.Seed
	}

	return sc
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(strings.TrimPrefix(e.Namespace(), "Config."))

	switch e.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	default:
		return field + " is invalid"
	}
}
