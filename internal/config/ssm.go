package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/rs/zerolog/log"
)

// ParameterGetter is the subset of the SSM client used for config resolution.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ssmKeys are the values that may be supplied from Parameter Store when the
// environment leaves them empty.
var ssmKeys = []string{
	EnvBucketName,
	EnvEventBusName,
	EnvBrandVariant,
	EnvShortDomain,
	EnvKMSKeyID,
}

// LoadWithSSM reads the environment and, when SSM_CONFIG_PREFIX is set, fills
// every empty value from the parameter "{prefix}/{ENV_NAME}". Environment
// values always win. Missing parameters are skipped; any other SSM error is
// returned.
func LoadWithSSM(ctx context.Context, client ParameterGetter) (Config, error) {
	prefix, _ := os.LookupEnv(EnvSSMPrefix)
	if prefix == "" || client == nil {
		return FromEnv(), nil
	}

	resolved := make(map[string]string)
	for _, key := range ssmKeys {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			continue
		}
		name := fmt.Sprintf("%s/%s", trimSlash(prefix), key)
		ssmStart := time.Now()
		out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           &name,
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			var notFound *ssmtypes.ParameterNotFound
			if errors.As(err, &notFound) {
				log.Debug().Str("param", name).Msg("SSM parameter not found, leaving unset")
				continue
			}
			return Config{}, &ConfigurationError{Key: key, Err: fmt.Errorf("read SSM parameter %s: %w", name, err)}
		}
		if out.Parameter != nil {
			resolved[key] = aws.ToString(out.Parameter.Value)
			log.Debug().Str("param", name).Dur("elapsed", time.Since(ssmStart)).Msg("Config value loaded from SSM")
		}
	}

	return Read(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := resolved[key]
		return v, ok
	}), nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
