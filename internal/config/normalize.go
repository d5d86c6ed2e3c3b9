package config

import (
	"strings"

	"gitlab.com/tozd/go/errors"
)

func (c *Config) normalize() error {
	c.normalizeLog()
	c.normalizeFetch()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	if err := c.normalizeExport(); err != nil {
		return err
	}
	c.normalizeMetrics()
	if strings.TrimSpace(c.Proxy.Listen) == "" {
		c.Proxy.Listen = defaultProxyListen
	}
	return nil
}

func (c *Config) normalizeLog() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}
}

func (c *Config) normalizeFetch() {
	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = defaultFetchTimeout
	}
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = defaultUserAgent
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = defaultMaxBytes
	}
}

func (c *Config) normalizeStorage() error {
	c.Storage.Kind = strings.ToLower(strings.TrimSpace(c.Storage.Kind))
	if c.Storage.Kind == "" {
		c.Storage.Kind = defaultStorageKind
	}
	c.Storage.DSN = strings.TrimSpace(c.Storage.DSN)
	if c.Storage.Kind != "sqlite" {
		return nil
	}
	if c.Storage.DSN == "" {
		c.Storage.DSN = defaultSQLitePath
	}
	// Only plain paths are expanded; URIs and ":memory:" pass through.
	if strings.HasPrefix(c.Storage.DSN, "file:") || strings.HasPrefix(c.Storage.DSN, ":memory:") {
		return nil
	}
	dsn, err := expandPath(c.Storage.DSN)
	if err != nil {
		return errors.Errorf("storage.dsn: %w", err)
	}
	c.Storage.DSN = dsn
	return nil
}

func (c *Config) normalizeExport() error {
	c.Export.Driver = strings.ToLower(strings.TrimSpace(c.Export.Driver))
	if c.Export.Driver == "" {
		c.Export.Driver = defaultExportDriver
	}
	if strings.TrimSpace(c.Export.Dir) == "" {
		c.Export.Dir = defaultExportDir
	}
	dir, err := expandPath(c.Export.Dir)
	if err != nil {
		return errors.Errorf("export.dir: %w", err)
	}
	c.Export.Dir = dir

	c.Export.S3.Bucket = strings.TrimSpace(c.Export.S3.Bucket)
	c.Export.S3.Region = strings.TrimSpace(c.Export.S3.Region)
	c.Export.S3.Endpoint = strings.TrimSpace(c.Export.S3.Endpoint)
	c.Export.S3.Prefix = strings.Trim(strings.TrimSpace(c.Export.S3.Prefix), "/")
	return nil
}

func (c *Config) normalizeMetrics() {
	c.Metrics.Backend = strings.ToLower(strings.TrimSpace(c.Metrics.Backend))
	if c.Metrics.Backend == "" {
		c.Metrics.Backend = defaultMetricsBackend
	}
	if strings.TrimSpace(c.Metrics.Job) == "" {
		c.Metrics.Job = defaultMetricsJob
	}
	if strings.TrimSpace(c.Metrics.PushgatewayURL) == "" {
		c.Metrics.PushgatewayURL = defaultPushgatewayURL
	}
	if c.Metrics.FlushEverySeconds <= 0 {
		c.Metrics.FlushEverySeconds = defaultMetricsFlushEvery
	}
}
