// Package config loads the pipeline and service configuration from
// environment variables with defaults, and validates it on startup.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	DataMart DataMartConfig
	Portal   PortalConfig
	Pipeline PipelineConfig
	Schedule ScheduleConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"5m"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including running pipeline
	// runs (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// MaxUploadSize caps the CSV accepted by /api/classify (default: 256MB)
	MaxUploadSize int64 `env:"SERVER_MAX_UPLOAD_SIZE" default:"268435456"`
}

// DataMartConfig holds the data-mart connection settings.
type DataMartConfig struct {
	// URL is the PostgreSQL connection string. Empty disables the download
	// stage; stages then work from files already on disk.
	URL string `env:"DATAMART_URL" envAlt:"DATABASE_URL"`

	MaxConns         int           `env:"DATAMART_MAX_CONNS" default:"4"`
	ConnectTimeout   time.Duration `env:"DATAMART_CONNECT_TIMEOUT" default:"10s"`
	StatementTimeout time.Duration `env:"DATAMART_STATEMENT_TIMEOUT" default:"30m"`

	// StationsTable is the view holding StationCode and Datum.
	StationsTable string `env:"DATAMART_STATIONS_TABLE" default:"DM_WQX_Stations_MV"`
}

// PortalConfig holds the CKAN open data portal settings.
type PortalConfig struct {
	// URL is the portal base URL. Empty disables the upload stage.
	URL string `env:"PORTAL_URL" envAlt:"CK_HOST"`

	// APIKey is sent in the X-CKAN-API-Key header.
	APIKey string `env:"PORTAL_API_KEY" envAlt:"CK_KEY"`

	// ChunkSize is the multipart chunk size in bytes (default: 64MB)
	ChunkSize int64 `env:"PORTAL_CHUNK_SIZE" default:"67108864"`

	Timeout time.Duration `env:"PORTAL_TIMEOUT" default:"10m"`
}

// PipelineConfig holds file locations and stage settings.
type PipelineConfig struct {
	// DataDir holds the raw, quality and export stage directories.
	DataDir string `env:"PIPELINE_DATA_DIR" default:"data"`

	// CodeTables overrides the embedded code tables with a YAML file.
	CodeTables string `env:"PIPELINE_CODE_TABLES"`

	// Workers is the number of classification workers (default: NumCPU)
	Workers int `env:"PIPELINE_WORKERS" default:"0"`

	DatumFile      string `env:"PIPELINE_DATUM_FILE"`
	AnalytesFile   string `env:"PIPELINE_ANALYTES_FILE"`
	RegionsFile    string `env:"PIPELINE_REGIONS_FILE"`
	ReferenceFile  string `env:"PIPELINE_REFERENCE_FILE"`
	BoundariesFile string `env:"PIPELINE_BOUNDARIES_FILE"`
	RegionProperty string `env:"PIPELINE_REGION_PROPERTY" default:"rb"`

	// FilterQuality drops records outside AllowedQuality before export.
	FilterQuality  bool     `env:"PIPELINE_FILTER_QUALITY" default:"false"`
	AllowedQuality []string `env:"PIPELINE_ALLOWED_QUALITY"`

	SkipUpload bool `env:"PIPELINE_SKIP_UPLOAD" default:"false"`

	MaxConcurrentRuns int           `env:"PIPELINE_MAX_CONCURRENT_RUNS" default:"2"`
	MaxWaitTime       time.Duration `env:"PIPELINE_MAX_WAIT_TIME" default:"30s"`
	RunTimeout        time.Duration `env:"PIPELINE_RUN_TIMEOUT" default:"2h"`
}

// ScheduleConfig holds the cron trigger for full runs.
type ScheduleConfig struct {
	Enabled bool `env:"SCHEDULE_ENABLED" default:"false"`

	// Spec is a cron expression with seconds (default: 03:00 every Monday)
	Spec string `env:"SCHEDULE_SPEC" default:"0 0 3 * * MON"`

	// DataTypes are run in order on each tick. Empty means all.
	DataTypes []string `env:"SCHEDULE_DATA_TYPES"`
}

// SecurityConfig holds API protection settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey protects the /api routes that start runs.
	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys       []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
