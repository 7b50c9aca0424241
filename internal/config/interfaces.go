package config

import "context"

// SecretProvider resolves secret pointers. SSMProvider serves deployed
// environments; EnvVarProvider serves local runs and tests.
type SecretProvider interface {
	// GetParametersBatch returns path -> plaintext for every path it could
	// resolve. Missing paths are omitted rather than reported as errors.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
