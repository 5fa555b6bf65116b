package external

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"prtrack/internal/config"
	"prtrack/internal/types"
)

// LoadAWSConfig resolves the AWS SDK configuration for the configured region.
// When an endpoint override is set (LocalStack), every service client built
// from the returned config targets it.
func LoadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return aws.Config{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to load AWS configuration",
			err,
		)
	}

	if cfg.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.EndpointURL)
	}

	return awsCfg, nil
}
