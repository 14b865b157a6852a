package cli

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fpang/qr-bulk-generator/internal/config"
)

// ValidateAndResolveDirectory checks that the path exists and is a directory,
// then returns the absolute path. Exits fatally on failure.
func ValidateAndResolveDirectory(dirPath string) string {
	info, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Fatal().Str("path", dirPath).Msg("Directory not found")
		}
		log.Fatal().Err(err).Str("path", dirPath).Msg("Failed to access directory")
	}
	if !info.IsDir() {
		log.Fatal().Str("path", dirPath).Msg("Path is not a directory")
	}

	absPath, err := filepath.Abs(dirPath)
	if err == nil {
		dirPath = absPath
	}

	return dirPath
}

// HandleConfigError reports a configuration problem with a hint naming the
// environment variable or flag to fix, then exits.
func HandleConfigError(err error) {
	var cfgErr *config.ConfigurationError
	if !errors.As(err, &cfgErr) {
		log.Fatal().Err(err).Msg("Unexpected configuration error")
	}
	switch cfgErr.Key {
	case config.EnvBrandVariant:
		log.Fatal().Err(err).Msg("Unknown brand. Use one of: gov, edu, health")
	case config.EnvShortDomain:
		log.Fatal().Err(err).Msg("Short domain must be a bare host such as go.example.sg")
	case config.EnvBucketName, config.EnvEventBusName:
		log.Fatal().Err(err).Msgf("Set %s in the environment or under SSM_CONFIG_PREFIX", cfgErr.Key)
	default:
		log.Fatal().Err(err).Str("key", cfgErr.Key).Msg("Invalid configuration")
	}
	os.Exit(1)
}
