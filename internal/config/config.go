package config

import (
	_ "embed"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gitlab.com/tozd/go/errors"
)

//go:embed sample_config.toml
var sampleConfig string

// Log configures the process logger.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Fetch configures how feeds are read from URLs.
type Fetch struct {
	TimeoutSeconds int    `toml:"timeout_seconds"`
	UserAgent      string `toml:"user_agent"`
	Discover       bool   `toml:"discover"`
	MaxBytes       int64  `toml:"max_bytes"`
}

// Timeout returns the fetch timeout as a duration.
func (f Fetch) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// Storage selects the shop and profile repository.
type Storage struct {
	Kind string `toml:"kind"`
	DSN  string `toml:"dsn"`
}

// S3 configures the object storage export target.
type S3 struct {
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	PathStyle bool   `toml:"path_style"`
	Prefix    string `toml:"prefix"`
}

// Export selects where transformed feeds are written.
type Export struct {
	Driver string `toml:"driver"`
	Dir    string `toml:"dir"`
	S3     S3     `toml:"s3"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	Backend           string   `toml:"backend"`
	Job               string   `toml:"job"`
	PushgatewayURL    string   `toml:"pushgateway_url"`
	Tags              []string `toml:"tags"`
	FlushEverySeconds int      `toml:"flush_every_seconds"`
}

// FlushEvery returns the Datadog flush interval as a duration.
func (m Metrics) FlushEvery() time.Duration {
	return time.Duration(m.FlushEverySeconds) * time.Second
}

// Proxy configures the feed relay.
type Proxy struct {
	Listen string `toml:"listen"`
}

// Config is the application configuration.
//
// Sections:
//   - Log: level and output format
//   - Fetch: URL retrieval limits and feed autodiscovery
//   - Storage: shop and mapping profile database
//   - Export: destination of transformed feeds
//   - Metrics: Datadog or Pushgateway reporting
//   - Proxy: listen address of feedproxy
type Config struct {
	Log     Log     `toml:"log"`
	Fetch   Fetch   `toml:"fetch"`
	Storage Storage `toml:"storage"`
	Export  Export  `toml:"export"`
	Metrics Metrics `toml:"metrics"`
	Proxy   Proxy   `toml:"proxy"`
}

// DefaultConfigPath returns the absolute path of the default config file.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load reads the config at path, or the default location when path is empty.
// A missing file yields the defaults. Environment overrides are applied after
// the file. It returns the resolved path and whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, "", false, errors.Errorf("open config: %w", err)
		}
		defer file.Close()

		dec := toml.NewDecoder(file)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, "", false, errors.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = defaultConfigPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, errors.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, errors.Errorf("config path %q is a directory", expanded)
	}
	return expanded, true, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("FEEDMAP_STORAGE_DSN")); v != "" {
		c.Storage.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("METRICS_BACKEND")); v != "" {
		c.Metrics.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("PUSHGATEWAY_URL")); v != "" {
		c.Metrics.PushgatewayURL = v
	}
	if v := strings.TrimSpace(os.Getenv("METRICS_TAGS")); v != "" {
		var tags []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		c.Metrics.Tags = tags
	}
}

// CreateSample writes the commented sample config to path.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return errors.Errorf("config %s already exists", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return errors.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return errors.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", errors.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
