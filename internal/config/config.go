// Package config loads the bulk QR generator configuration from the process
// environment once at cold start and validates it.
//
// Every value the pipeline needs (bucket, event bus, brand variant, short
// domain, tuning knobs) lives in a single immutable Config that is passed to
// constructors. Nothing below cmd/ reads the environment directly.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvBucketName         = "BUCKET_NAME"
	EnvEventBusName       = "EVENT_BUS_NAME"
	EnvBrandVariant       = "BRAND_VARIANT"
	EnvShortDomain        = "SHORT_DOMAIN"
	EnvKMSKeyID           = "SSE_KMS_KEY_ID"
	EnvRenderConcurrency  = "RENDER_CONCURRENCY"
	EnvGenerationMode     = "GENERATION_MODE"
	EnvArchiveCompression = "ARCHIVE_COMPRESSION"
	EnvScratchRoot        = "SCRATCH_ROOT"
	EnvSSMPrefix          = "SSM_CONFIG_PREFIX"
)

// GenerationMode selects how image sets reach the archive.
type GenerationMode string

const (
	// ModeStream pipes rendered images straight into the streaming archive.
	ModeStream GenerationMode = "stream"
	// ModeSpool renders images into the scratch directory first and then
	// zips the directory to storage.
	ModeSpool GenerationMode = "spool"
)

// Compression selects the zip entry compression method.
type Compression string

const (
	CompressionDeflate Compression = "deflate"
	CompressionZstd    Compression = "zstd"
)

// Brand variants. The set is closed; anything else is a ConfigurationError.
const (
	BrandGov    = "gov"
	BrandEdu    = "edu"
	BrandHealth = "health"
)

// ErrMissing is wrapped by ConfigurationError for absent required values.
var ErrMissing = errors.New("required configuration missing")

// ConfigurationError reports an invalid or missing configuration value.
// It is fatal at startup and never retried.
type ConfigurationError struct {
	Key string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Config is the validated, immutable runtime configuration.
type Config struct {
	Bucket            string
	EventBus          string
	BrandVariant      string
	ShortDomain       string
	KMSKeyID          string
	RenderConcurrency int
	Mode              GenerationMode
	Compression       Compression
	ScratchRoot       string
	SSMPrefix         string
}

// Lookup abstracts os.LookupEnv so tests and the SSM resolver can supply values.
type Lookup func(key string) (string, bool)

// FromEnv reads the raw configuration from the process environment without
// validating it.
func FromEnv() Config {
	return Read(os.LookupEnv)
}

// Read builds a Config from the given lookup, applying defaults for optional
// values. Malformed optional numbers fall back to their defaults; Validate
// reports everything else.
func Read(lookup Lookup) Config {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	cfg := Config{
		Bucket:       get(EnvBucketName),
		EventBus:     get(EnvEventBusName),
		BrandVariant: strings.ToLower(get(EnvBrandVariant)),
		ShortDomain:  strings.TrimSuffix(get(EnvShortDomain), "/"),
		KMSKeyID:     get(EnvKMSKeyID),
		Mode:         GenerationMode(strings.ToLower(get(EnvGenerationMode))),
		Compression:  Compression(strings.ToLower(get(EnvArchiveCompression))),
		ScratchRoot:  get(EnvScratchRoot),
		SSMPrefix:    strings.TrimSuffix(get(EnvSSMPrefix), "/"),
	}

	cfg.RenderConcurrency = runtime.NumCPU()
	if raw := get(EnvRenderConcurrency); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			cfg.RenderConcurrency = n
		} else {
			cfg.RenderConcurrency = -1
		}
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeStream
	}
	if cfg.Compression == "" {
		cfg.Compression = CompressionDeflate
	}
	if cfg.ScratchRoot == "" {
		cfg.ScratchRoot = os.TempDir()
	}
	return cfg
}

// Validate checks required values and closed enums. The first problem found
// is returned as a *ConfigurationError.
func (c Config) Validate() error {
	required := []struct {
		key, value string
	}{
		{EnvBucketName, c.Bucket},
		{EnvEventBusName, c.EventBus},
		{EnvBrandVariant, c.BrandVariant},
		{EnvShortDomain, c.ShortDomain},
	}
	for _, r := range required {
		if r.value == "" {
			return &ConfigurationError{Key: r.key, Err: ErrMissing}
		}
	}

	if !IsBrandVariant(c.BrandVariant) {
		return &ConfigurationError{Key: EnvBrandVariant, Err: fmt.Errorf("unknown brand variant %q", c.BrandVariant)}
	}
	if strings.Contains(c.ShortDomain, "://") {
		return &ConfigurationError{Key: EnvShortDomain, Err: fmt.Errorf("domain must not include a scheme: %q", c.ShortDomain)}
	}
	if c.RenderConcurrency < 1 {
		return &ConfigurationError{Key: EnvRenderConcurrency, Err: fmt.Errorf("must be a positive integer")}
	}
	switch c.Mode {
	case ModeStream, ModeSpool:
	default:
		return &ConfigurationError{Key: EnvGenerationMode, Err: fmt.Errorf("unknown mode %q", c.Mode)}
	}
	switch c.Compression {
	case CompressionDeflate, CompressionZstd:
	default:
		return &ConfigurationError{Key: EnvArchiveCompression, Err: fmt.Errorf("unknown compression %q", c.Compression)}
	}
	return nil
}

// IsBrandVariant reports whether v names a known brand variant.
func IsBrandVariant(v string) bool {
	switch v {
	case BrandGov, BrandEdu, BrandHealth:
		return true
	}
	return false
}
