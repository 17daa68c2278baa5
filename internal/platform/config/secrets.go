package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	dErrors "cloudgate/pkg/domain-errors"
)

// SecretsAPI is the part of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// loadSecrets merges a JSON object secret into the process environment.
// Nothing happens unless AWS_SECRETS_MANAGER_SECRET_ID is set. Variables
// already present are kept unless AWS_SECRETS_MANAGER_OVERWRITE=true.
func loadSecrets(ctx context.Context, api SecretsAPI) error {
	secretID := os.Getenv("AWS_SECRETS_MANAGER_SECRET_ID")
	if secretID == "" {
		return nil
	}
	if api == nil {
		opts := []func(*awsconfig.LoadOptions) error{}
		if region := os.Getenv("AWS_SECRETS_MANAGER_REGION"); region != "" {
			opts = append(opts, awsconfig.WithRegion(region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "load aws config")
		}
		api = secretsmanager.NewFromConfig(awsCfg)
	}

	values, err := fetchSecret(ctx, api, secretID, os.Getenv("AWS_SECRETS_MANAGER_VERSION_STAGE"))
	if err != nil {
		return err
	}
	overwrite := strings.EqualFold(os.Getenv("AWS_SECRETS_MANAGER_OVERWRITE"), "true")
	for key, value := range values {
		if !overwrite && os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "set "+key)
		}
	}
	return nil
}

func fetchSecret(ctx context.Context, api SecretsAPI, secretID, versionStage string) (map[string]string, error) {
	if versionStage == "" {
		versionStage = "AWSCURRENT"
	}
	out, err := api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String(versionStage),
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "fetch secret "+secretID)
	}

	var payload []byte
	switch {
	case out.SecretString != nil:
		payload = []byte(*out.SecretString)
	case len(out.SecretBinary) > 0:
		payload = out.SecretBinary
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "secret "+secretID+" has no payload")
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "secret "+secretID+" is not a JSON object")
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		values[k] = fmt.Sprint(v)
	}
	return values, nil
}
