package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Load builds a Config from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envField is the tag set of one leaf field.
type envField struct {
	name     string
	alt      string
	def      string
	required bool
}

func parseTags(tag reflect.StructTag) envField {
	return envField{
		name:     tag.Get("env"),
		alt:      tag.Get("envAlt"),
		def:      tag.Get("default"),
		required: tag.Get("required") == "true",
	}
}

// value resolves env, then envAlt, then the default.
func (f envField) value() (string, error) {
	if v := os.Getenv(f.name); v != "" {
		return v, nil
	}
	if f.alt != "" {
		if v := os.Getenv(f.alt); v != "" {
			return v, nil
		}
	}
	if f.required {
		return "", fmt.Errorf("required environment variable %s is not set", f.name)
	}
	return f.def, nil
}

// loadStruct fills every tagged field of v, descending into nested sections.
func loadStruct(v reflect.Value) error {
	t := v.Type()
	for i := range t.NumField() {
		sf, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if sf.Type.Kind() == reflect.Struct {
			if err := loadStruct(fv); err != nil {
				return err
			}
			continue
		}

		f := parseTags(sf.Tag)
		if f.name == "" {
			continue
		}
		raw, err := f.value()
		if err != nil {
			return err
		}
		if raw == "" {
			continue
		}
		if err := setField(fv, raw); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", f.name, raw, err)
		}
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func setField(fv reflect.Value, raw string) error {
	switch {
	case fv.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		fv.SetInt(int64(d))
	case fv.Kind() == reflect.String:
		fv.SetString(raw)
	case fv.CanInt():
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case fv.Kind() == reflect.Bool:
		b, err := cast.ToBoolE(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.String:
		var items []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		fv.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field type %s", fv.Type())
	}
	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.MaxUploadSize <= 0 {
		errs = append(errs, "SERVER_MAX_UPLOAD_SIZE must be positive")
	}

	// Data mart validation
	if c.DataMart.URL != "" && c.DataMart.MaxConns <= 0 {
		errs = append(errs, "DATAMART_MAX_CONNS must be positive")
	}
	if c.DataMart.StatementTimeout < 0 {
		errs = append(errs, "DATAMART_STATEMENT_TIMEOUT must be non-negative")
	}

	// Portal validation
	if c.Portal.URL != "" {
		if u, err := url.Parse(c.Portal.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("PORTAL_URL (%q) must be an absolute URL", c.Portal.URL))
		}
		if c.Portal.APIKey == "" {
			errs = append(errs, "PORTAL_API_KEY is required when PORTAL_URL is set")
		}
	}
	if c.Portal.ChunkSize <= 0 {
		errs = append(errs, "PORTAL_CHUNK_SIZE must be positive")
	}

	// Pipeline validation
	if c.Pipeline.DataDir == "" {
		errs = append(errs, "PIPELINE_DATA_DIR is required")
	}
	if c.Pipeline.Workers < 0 {
		errs = append(errs, "PIPELINE_WORKERS must be non-negative")
	}
	if c.Pipeline.MaxConcurrentRuns <= 0 {
		errs = append(errs, "PIPELINE_MAX_CONCURRENT_RUNS must be positive")
	}
	if c.Pipeline.MaxWaitTime <= 0 {
		errs = append(errs, "PIPELINE_MAX_WAIT_TIME must be positive")
	}
	if c.Pipeline.RunTimeout < 0 {
		errs = append(errs, "PIPELINE_RUN_TIMEOUT must be non-negative")
	}

	// Schedule validation
	if c.Schedule.Enabled && strings.TrimSpace(c.Schedule.Spec) == "" {
		errs = append(errs, "SCHEDULE_SPEC is required when SCHEDULE_ENABLED is true")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a representation of the config for logging with the
// data-mart URL and portal key masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("DataMart: {URL: %s, MaxConns: %d}, ", mask(c.DataMart.URL), c.DataMart.MaxConns))
	b.WriteString(fmt.Sprintf("Portal: {URL: %q, APIKey: %s, ChunkSize: %d}, ",
		c.Portal.URL, mask(c.Portal.APIKey), c.Portal.ChunkSize))
	b.WriteString(fmt.Sprintf("Pipeline: {DataDir: %q, Workers: %d, MaxConcurrentRuns: %d}, ",
		c.Pipeline.DataDir, c.Pipeline.Workers, c.Pipeline.MaxConcurrentRuns))
	b.WriteString(fmt.Sprintf("Schedule: {Enabled: %v, Spec: %q}, ", c.Schedule.Enabled, c.Schedule.Spec))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
