package config

import (
	"slices"

	"gitlab.com/tozd/go/errors"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLog(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateExport(); err != nil {
		return err
	}
	return c.validateMetrics()
}

func (c *Config) validateLog() error {
	if !slices.Contains([]string{"trace", "debug", "info", "warn", "error"}, c.Log.Level) {
		return errors.Errorf("log.level must be one of trace, debug, info, warn, error (got %q)", c.Log.Level)
	}
	if !slices.Contains([]string{"console", "json"}, c.Log.Format) {
		return errors.Errorf("log.format must be console or json (got %q)", c.Log.Format)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Kind {
	case "sqlite", "postgres", "mssql":
	default:
		return errors.Errorf("storage.kind must be sqlite, postgres or mssql (got %q)", c.Storage.Kind)
	}
	if c.Storage.DSN == "" {
		return errors.Errorf("storage.dsn is required for %s (or set FEEDMAP_STORAGE_DSN)", c.Storage.Kind)
	}
	return nil
}

func (c *Config) validateExport() error {
	switch c.Export.Driver {
	case "fs", "memory":
		return nil
	case "s3":
		if c.Export.S3.Bucket == "" {
			return errors.New("export.s3.bucket is required when export.driver is s3")
		}
		return nil
	default:
		return errors.Errorf("export.driver must be fs, s3 or memory (got %q)", c.Export.Driver)
	}
}

func (c *Config) validateMetrics() error {
	switch c.Metrics.Backend {
	case "none", "datadog", "pushgateway":
		return nil
	default:
		return errors.Errorf("metrics.backend must be none, datadog or pushgateway (got %q)", c.Metrics.Backend)
	}
}
