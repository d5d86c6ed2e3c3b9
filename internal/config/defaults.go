package config

const (
	defaultConfigPath        = "~/.config/feedmap/config.toml"
	defaultLogLevel          = "info"
	defaultLogFormat         = "console"
	defaultFetchTimeout      = 30
	defaultUserAgent         = "feedmap/1.0"
	defaultMaxBytes          = 64 << 20
	defaultStorageKind       = "sqlite"
	defaultSQLitePath        = "~/.local/share/feedmap/feedmap.db"
	defaultExportDriver      = "fs"
	defaultExportDir         = "."
	defaultMetricsBackend    = "none"
	defaultMetricsJob        = "feedmap"
	defaultPushgatewayURL    = "http://localhost:9091"
	defaultMetricsFlushEvery = 60
	defaultProxyListen       = ":5000"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: Log{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Fetch: Fetch{
			TimeoutSeconds: defaultFetchTimeout,
			UserAgent:      defaultUserAgent,
			Discover:       true,
			MaxBytes:       defaultMaxBytes,
		},
		Storage: Storage{
			Kind: defaultStorageKind,
			DSN:  defaultSQLitePath,
		},
		Export: Export{
			Driver: defaultExportDriver,
			Dir:    defaultExportDir,
		},
		Metrics: Metrics{
			Backend:           defaultMetricsBackend,
			Job:               defaultMetricsJob,
			PushgatewayURL:    defaultPushgatewayURL,
			FlushEverySeconds: defaultMetricsFlushEvery,
		},
		Proxy: Proxy{
			Listen: defaultProxyListen,
		},
	}
}
