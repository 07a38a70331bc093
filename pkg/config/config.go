// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-s3crawl.
//
// go-s3crawl is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config loads crawler settings with viper.
// Configuration priority: flags > env vars > config file > defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jeremyhahn/go-s3crawl/pkg/adapters"
	"github.com/jeremyhahn/go-s3crawl/pkg/cache"
	"github.com/jeremyhahn/go-s3crawl/pkg/listing"
	"github.com/jeremyhahn/go-s3crawl/pkg/materialize"
	"github.com/jeremyhahn/go-s3crawl/pkg/metrics"
	"github.com/jeremyhahn/go-s3crawl/pkg/throttle"
	"github.com/jeremyhahn/go-s3crawl/pkg/walker"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. S3CRAWL_LISTING_TTL.
const EnvPrefix = "S3CRAWL"

// ErrInvalidConfig is returned by Load for settings that fail validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Keys.
const (
	KeyBackend            = "backend"
	KeyBackendRegion      = "backend-region"
	KeyBackendURL         = "backend-url"
	KeyBackendKey         = "backend-key"
	KeyBackendSecret      = "backend-secret"
	KeyBackendPathStyle   = "backend-path-style"
	KeyBackendCredentials = "backend-credentials"
	KeyBackendBuckets     = "backend-buckets"
	KeyBackendPath        = "backend-path"

	KeyListingTTL              = "listing.ttl"
	KeyListingTTI              = "listing.tti"
	KeyListingMaxEntries       = "listing.max-entries"
	KeyListingExtensions       = "listing.extensions"
	KeyListingProbe            = "listing.probe"
	KeyListingProbeConcurrency = "listing.probe-concurrency"
	KeyListingPageSize         = "listing.page-size"

	KeyObjectsTTL        = "objects.ttl"
	KeyObjectsTTI        = "objects.tti"
	KeyObjectsMaxEntries = "objects.max-entries"
	KeyObjectsTempDir    = "objects.temp-dir"
	KeyObjectsTempPrefix = "objects.temp-prefix"

	KeyCleanupInterval = "cache.cleanup-interval"
	KeyStoreRateLimit  = "store.rate-limit"
	KeyStoreBurst      = "store.burst"

	KeyLogLevel     = "log-level"
	KeyLogFormat    = "log-format"
	KeyConcurrency  = "concurrency"
	KeyOutputFormat = "output-format"
)

// ListingConfig configures the listing cache.
type ListingConfig struct {
	TTL              time.Duration `json:"ttl"`
	TTI              time.Duration `json:"tti"`
	MaxEntries       int           `json:"max_entries"`
	Extensions       []string      `json:"extensions"`
	Probe            bool          `json:"probe"`
	ProbeConcurrency int           `json:"probe_concurrency"`
	PageSize         int           `json:"page_size"`
}

// ObjectsConfig configures the materialization cache.
type ObjectsConfig struct {
	TTL        time.Duration `json:"ttl"`
	TTI        time.Duration `json:"tti"`
	MaxEntries int           `json:"max_entries"`
	TempDir    string        `json:"temp_dir"`
	TempPrefix string        `json:"temp_prefix"`
}

// Config holds the crawler configuration settings.
type Config struct {
	Backend            string `json:"backend"`
	BackendRegion      string `json:"backend_region,omitempty"`
	BackendURL         string `json:"backend_url,omitempty"`
	BackendKey         string `json:"backend_key,omitempty"`
	BackendSecret      string `json:"backend_secret,omitempty"`
	BackendPathStyle   bool   `json:"backend_path_style"`
	BackendCredentials string `json:"backend_credentials,omitempty"`
	BackendBuckets     string `json:"backend_buckets,omitempty"`
	BackendPath        string `json:"backend_path,omitempty"`

	Listing         ListingConfig `json:"listing"`
	Objects         ObjectsConfig `json:"objects"`
	CleanupInterval time.Duration `json:"cleanup_interval"`

	RateLimit float64 `json:"rate_limit"`
	Burst     int     `json:"burst"`

	LogLevel     string `json:"log_level"`
	LogFormat    string `json:"log_format"`
	Concurrency  int    `json:"concurrency"`
	OutputFormat string `json:"output_format"`
}

// SetDefaults installs the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyBackend, "s3")
	v.SetDefault(KeyBackendPathStyle, false)

	v.SetDefault(KeyListingTTL, listing.DefaultTTL)
	v.SetDefault(KeyListingTTI, listing.DefaultTTI)
	v.SetDefault(KeyListingMaxEntries, listing.DefaultMaxEntries)
	v.SetDefault(KeyListingExtensions, listing.DefaultExtensionList)
	v.SetDefault(KeyListingProbe, true)
	v.SetDefault(KeyListingProbeConcurrency, listing.DefaultProbeConcurrency)
	v.SetDefault(KeyListingPageSize, 0)

	v.SetDefault(KeyObjectsTTL, materialize.DefaultTTL)
	v.SetDefault(KeyObjectsTTI, materialize.DefaultTTI)
	v.SetDefault(KeyObjectsMaxEntries, materialize.DefaultMaxEntries)
	v.SetDefault(KeyObjectsTempDir, os.TempDir())
	v.SetDefault(KeyObjectsTempPrefix, materialize.DefaultTempPrefix)

	v.SetDefault(KeyCleanupInterval, 30*time.Second)
	v.SetDefault(KeyStoreRateLimit, 0)
	v.SetDefault(KeyStoreBurst, 0)

	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyConcurrency, walker.DefaultConcurrency)
	v.SetDefault(KeyOutputFormat, "text")
}

// Init initializes the configuration using Viper. A missing config file is
// not an error unless cfgFile names it explicitly.
func Init(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".s3crawl")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load extracts and validates the configuration.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Backend:            v.GetString(KeyBackend),
		BackendRegion:      v.GetString(KeyBackendRegion),
		BackendURL:         v.GetString(KeyBackendURL),
		BackendKey:         v.GetString(KeyBackendKey),
		BackendSecret:      v.GetString(KeyBackendSecret),
		BackendPathStyle:   v.GetBool(KeyBackendPathStyle),
		BackendCredentials: v.GetString(KeyBackendCredentials),
		BackendBuckets:     v.GetString(KeyBackendBuckets),
		BackendPath:        v.GetString(KeyBackendPath),
		Listing: ListingConfig{
			TTL:              v.GetDuration(KeyListingTTL),
			TTI:              v.GetDuration(KeyListingTTI),
			MaxEntries:       v.GetInt(KeyListingMaxEntries),
			Extensions:       splitList(v.GetStringSlice(KeyListingExtensions)),
			Probe:            v.GetBool(KeyListingProbe),
			ProbeConcurrency: v.GetInt(KeyListingProbeConcurrency),
			PageSize:         v.GetInt(KeyListingPageSize),
		},
		Objects: ObjectsConfig{
			TTL:        v.GetDuration(KeyObjectsTTL),
			TTI:        v.GetDuration(KeyObjectsTTI),
			MaxEntries: v.GetInt(KeyObjectsMaxEntries),
			TempDir:    v.GetString(KeyObjectsTempDir),
			TempPrefix: v.GetString(KeyObjectsTempPrefix),
		},
		CleanupInterval: v.GetDuration(KeyCleanupInterval),
		RateLimit:       v.GetFloat64(KeyStoreRateLimit),
		Burst:           v.GetInt(KeyStoreBurst),
		LogLevel:        v.GetString(KeyLogLevel),
		LogFormat:       v.GetString(KeyLogFormat),
		Concurrency:     v.GetInt(KeyConcurrency),
		OutputFormat:    v.GetString(KeyOutputFormat),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList accepts both YAML lists and comma or space separated strings.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		out = append(out, strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })...)
	}
	return out
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(key, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s: %s", ErrInvalidConfig, key, fmt.Sprintf(format, args...)))
	}

	if c.Backend == "" {
		invalid(KeyBackend, "must be set")
	}
	for key, d := range map[string]time.Duration{
		KeyListingTTL: c.Listing.TTL, KeyListingTTI: c.Listing.TTI,
		KeyObjectsTTL: c.Objects.TTL, KeyObjectsTTI: c.Objects.TTI,
		KeyCleanupInterval: c.CleanupInterval,
	} {
		if d < 0 {
			invalid(key, "negative duration %s", d)
		}
	}
	for key, n := range map[string]int{
		KeyListingMaxEntries: c.Listing.MaxEntries, KeyObjectsMaxEntries: c.Objects.MaxEntries,
		KeyListingPageSize: c.Listing.PageSize, KeyStoreBurst: c.Burst,
	} {
		if n < 0 {
			invalid(key, "negative value %d", n)
		}
	}
	if c.Concurrency < 1 {
		invalid(KeyConcurrency, "must be at least 1, got %d", c.Concurrency)
	}
	if c.RateLimit < 0 {
		invalid(KeyStoreRateLimit, "negative rate %g", c.RateLimit)
	}
	if _, err := adapters.ParseLogLevel(c.LogLevel); err != nil {
		invalid(KeyLogLevel, "%v", err)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		invalid(KeyLogFormat, "unsupported format %q", c.LogFormat)
	}
	switch c.OutputFormat {
	case "text", "json", "table":
	default:
		invalid(KeyOutputFormat, "unsupported format %q", c.OutputFormat)
	}
	return errors.Join(errs...)
}

// StoreSettings converts Config to the settings map of the configured
// backend.
func (c *Config) StoreSettings() map[string]string {
	settings := make(map[string]string)
	set := func(key, value string) {
		if value != "" {
			settings[key] = value
		}
	}

	switch c.Backend {
	case "minio":
		set("endpoint", c.BackendURL)
		set("accessKey", c.BackendKey)
		set("secretKey", c.BackendSecret)
		set("region", c.BackendRegion)
	case "gcs":
		set("endpoint", c.BackendURL)
		set("credentials_file", c.BackendCredentials)
	case "memory":
		set("buckets", c.BackendBuckets)
	case "local":
		set("path", c.BackendPath)
	default:
		set("region", c.BackendRegion)
		set("endpoint", c.BackendURL)
		set("access_key_id", c.BackendKey)
		set("secret_access_key", c.BackendSecret)
		if c.BackendPathStyle {
			settings["use_path_style"] = strconv.FormatBool(true)
		}
	}
	return settings
}

// Throttle returns the store throttling configuration; a zero rate disables
// throttling.
func (c *Config) Throttle() *throttle.Config {
	return &throttle.Config{RequestsPerSecond: c.RateLimit, Burst: c.Burst}
}

// ListingOptions returns the listing cache options.
func (c *Config) ListingOptions(logger adapters.Logger, m *metrics.CacheMetrics) listing.Options {
	return listing.Options{
		Extensions:       listing.NewExtensions(c.Listing.Extensions...),
		Probe:            c.Listing.Probe,
		ProbeConcurrency: c.Listing.ProbeConcurrency,
		PageSize:         c.Listing.PageSize,
		Logger:           logger,
		Cache: cache.Options{
			TTL:             c.Listing.TTL,
			TTI:             c.Listing.TTI,
			MaxEntries:      c.Listing.MaxEntries,
			CleanupInterval: c.CleanupInterval,
			Metrics:         m,
		},
	}
}

// ObjectOptions returns the materialization cache options.
func (c *Config) ObjectOptions(logger adapters.Logger, m *metrics.CacheMetrics) materialize.Options {
	return materialize.Options{
		TempDir:    c.Objects.TempDir,
		TempPrefix: c.Objects.TempPrefix,
		Logger:     logger,
		Cache: cache.Options{
			TTL:             c.Objects.TTL,
			TTI:             c.Objects.TTI,
			MaxEntries:      c.Objects.MaxEntries,
			CleanupInterval: c.CleanupInterval,
			Metrics:         m,
		},
	}
}

// NewLogger builds the logger described by the log settings.
func (c *Config) NewLogger(w io.Writer) adapters.Logger {
	level, err := adapters.ParseLogLevel(c.LogLevel)
	if err != nil {
		level = adapters.InfoLevel
	}
	return adapters.NewLogger(w, level, c.LogFormat)
}
