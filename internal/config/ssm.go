package config

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

// ParameterGetter is the subset of the SSM client used for secrets.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMSecrets reads decrypted parameters under a common prefix, e.g.
// /poetry-camera/prod/openai-api-key.
type SSMSecrets struct {
	client ParameterGetter
	prefix string
}

// NewSSMSecrets creates a secret source over an SSM client.
func NewSSMSecrets(client ParameterGetter, prefix string) *SSMSecrets {
	return &SSMSecrets{client: client, prefix: prefix}
}

// NewSSMSecretsFromDefault loads the default AWS config and returns an
// SSM-backed secret source.
func NewSSMSecretsFromDefault(ctx context.Context, prefix string) (*SSMSecrets, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return NewSSMSecrets(ssm.NewFromConfig(cfg), prefix), nil
}

// GetSecret fetches prefix/name with decryption.
func (s *SSMSecrets) GetSecret(ctx context.Context, name string) (string, error) {
	paramName := path.Join(s.prefix, name)
	start := time.Now()
	result, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read %s from SSM: %w", paramName, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("SSM parameter %s has no value", paramName)
	}
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(start)).Msg("Secret loaded from SSM")
	return *result.Parameter.Value, nil
}
