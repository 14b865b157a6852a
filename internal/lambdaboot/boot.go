// Package lambdaboot holds the cold-start wiring shared by the generator's
// entry points: AWS config, validated application config, and the S3 and
// EventBridge collaborators built from them.
package lambdaboot

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/qr-bulk-generator/internal/config"
	"github.com/fpang/qr-bulk-generator/internal/logging"
	"github.com/fpang/qr-bulk-generator/internal/notify"
	"github.com/fpang/qr-bulk-generator/internal/s3util"
)

// InitAWS loads the default AWS config. Fatals on error.
func InitAWS() aws.Config {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return cfg
}

// LoadConfig reads and validates the application config, resolving missing
// values from SSM Parameter Store when SSM_CONFIG_PREFIX is set. Any
// ConfigurationError is fatal.
func LoadConfig(awsCfg aws.Config) config.Config {
	ssmStart := time.Now()
	cfg, err := config.LoadWithSSM(context.Background(), ssm.NewFromConfig(awsCfg))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve configuration")
	}
	if cfg.SSMPrefix != "" {
		log.Debug().Str("prefix", cfg.SSMPrefix).Dur("elapsed", time.Since(ssmStart)).Msg("SSM configuration resolved")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	return cfg
}

// InitStreamer creates the S3 archive streamer for the configured bucket.
func InitStreamer(awsCfg aws.Config, cfg config.Config) *s3util.Streamer {
	return s3util.NewStreamer(s3.NewFromConfig(awsCfg), s3util.Options{
		Bucket:      cfg.Bucket,
		KMSKeyID:    cfg.KMSKeyID,
		Compression: cfg.Compression,
	})
}

// InitNotifier creates the EventBridge completion notifier.
func InitNotifier(awsCfg aws.Config, cfg config.Config) *notify.Notifier {
	return notify.New(eventbridge.NewFromConfig(awsCfg), cfg.EventBus)
}

// StartupLog returns a startup logger pre-filled with the resources and
// settings every generator process reports.
func StartupLog(name string, initStart time.Time, cfg config.Config) *logging.StartupLogger {
	l := logging.NewStartupLogger(name).
		InitDuration(time.Since(initStart)).
		S3Bucket("output", cfg.Bucket).
		EventBus("completion", cfg.EventBus).
		Feature("kmsEncryption", cfg.KMSKeyID != "").
		Config("brandVariant", cfg.BrandVariant).
		Config("shortDomain", cfg.ShortDomain).
		Config("generationMode", string(cfg.Mode)).
		Config("compression", string(cfg.Compression)).
		Config("renderConcurrency", strconv.Itoa(cfg.RenderConcurrency))
	if cfg.SSMPrefix != "" {
		l = l.SSMParam("configPrefix", cfg.SSMPrefix)
	}
	return l
}
