// Package config loads doclate settings.
//
// Values are layered, highest priority first: command-line flags bound
// by the caller, DOCLATE_* environment variables (a .env file in the
// project directory is loaded into the environment first), the
// .doclate.yaml project file, credentials stored with "doclate auth
// login", and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/minios-linux/doclate/settings"
)

// EnvPrefix is the prefix of environment overrides (DOCLATE_CACHE_DRIVER).
const EnvPrefix = "DOCLATE"

// Cache drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMinIO    = "minio"
	DriverNone     = "none"
)

// Drivers lists the valid cache.driver values.
var Drivers = []string{DriverMemory, DriverFile, DriverSQLite, DriverPostgres, DriverMinIO, DriverNone}

// Config is the merged configuration.
type Config struct {
	Backend      string        `mapstructure:"backend"`
	Model        string        `mapstructure:"model"`
	Endpoint     string        `mapstructure:"endpoint"`
	APIKey       string        `mapstructure:"api_key"`
	Proxy        string        `mapstructure:"proxy"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	Instructions string        `mapstructure:"instructions"`
	SourceLocale string        `mapstructure:"source_locale"`

	Chunk   ChunkConfig   `mapstructure:"chunk"`
	Cache   CacheConfig   `mapstructure:"cache"`
	MinIO   MinIOConfig   `mapstructure:"minio"`
	Content ContentConfig `mapstructure:"content"`
	Schema  SchemaConfig  `mapstructure:"schema"`

	// FileUsed is the project file that was read, if any.
	FileUsed string `mapstructure:"-"`
}

type ChunkConfig struct {
	MaxSegments int `mapstructure:"max_segments"`
	MaxChars    int `mapstructure:"max_chars"`
	Concurrency int `mapstructure:"concurrency"`
	// Timeout bounds one chunk including backend retries. Zero derives
	// it from timeout and max_retries.
	Timeout time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	Driver  string `mapstructure:"driver"`
	Dir     string `mapstructure:"dir"`
	DSN     string `mapstructure:"dsn"`
	Version int    `mapstructure:"version"`
	LRUSize int    `mapstructure:"lru_size"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
	Region    string `mapstructure:"region"`
}

type ContentConfig struct {
	Dir string `mapstructure:"dir"`
}

type SchemaConfig struct {
	Dir string `mapstructure:"dir"`
}

// SetDefaults registers every key with its default, which also makes
// each key visible to environment lookup.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend", "openai")
	v.SetDefault("model", "")
	v.SetDefault("endpoint", "")
	v.SetDefault("api_key", "")
	v.SetDefault("proxy", "")
	v.SetDefault("timeout", 120*time.Second)
	v.SetDefault("max_retries", 3)
	v.SetDefault("instructions", "")
	v.SetDefault("source_locale", "en")

	v.SetDefault("chunk.max_segments", 40)
	v.SetDefault("chunk.max_chars", 6000)
	v.SetDefault("chunk.concurrency", 1)
	v.SetDefault("chunk.timeout", time.Duration(0))

	v.SetDefault("cache.driver", DriverFile)
	v.SetDefault("cache.dir", ".doclate/cache")
	v.SetDefault("cache.dsn", "")
	v.SetDefault("cache.version", 1)
	v.SetDefault("cache.lru_size", 0)

	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket", "doclate")
	v.SetDefault("minio.secure", true)
	v.SetDefault("minio.region", "")

	v.SetDefault("content.dir", "content")
	v.SetDefault("schema.dir", "schemas")
}

// Load reads .env and .doclate.yaml from dir into v and returns the
// merged configuration. Flags must be bound to v before calling Load.
// Missing files are not errors.
func Load(v *viper.Viper, dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	SetDefaults(v)
	v.SetConfigName(strings.TrimSuffix(ProjectFileName, ".yaml"))
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s: %w", ProjectFileName, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg.FileUsed = v.ConfigFileUsed()
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyStored fills the API key, endpoint and model from the credential
// store when no higher layer set them.
func (c *Config) ApplyStored(info *settings.Info) {
	if info == nil {
		return
	}
	if c.APIKey == "" && info.IsAPI() {
		c.APIKey = info.Key
	}
	if c.Endpoint == "" {
		c.Endpoint = info.BaseURL
	}
	if c.Model == "" {
		c.Model = info.Model
	}
}

// Validate checks values that cannot be fixed by defaults.
func (c *Config) Validate() error {
	var errs []error
	if c.Backend == "" {
		errs = append(errs, errors.New("backend is empty"))
	}
	if !validDriver(c.Cache.Driver) {
		errs = append(errs, fmt.Errorf("cache.driver %q is not one of %s", c.Cache.Driver, strings.Join(Drivers, ", ")))
	}
	if c.Cache.Version < 1 {
		errs = append(errs, fmt.Errorf("cache.version must be at least 1, got %d", c.Cache.Version))
	}
	if c.Chunk.MaxSegments < 0 || c.Chunk.MaxChars < 0 || c.Chunk.Concurrency < 0 || c.Chunk.Timeout < 0 {
		errs = append(errs, errors.New("chunk limits must not be negative"))
	}
	switch c.Cache.Driver {
	case DriverPostgres:
		if c.Cache.DSN == "" {
			errs = append(errs, errors.New("cache.driver postgres needs cache.dsn"))
		}
	case DriverMinIO:
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			errs = append(errs, errors.New("cache.driver minio needs minio.endpoint and minio.bucket"))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func validDriver(d string) bool {
	for _, v := range Drivers {
		if v == d {
			return true
		}
	}
	return false
}
