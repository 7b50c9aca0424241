package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is returned by LoadConfig and carries the failure category.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ssmParamSuffix marks pointer variables: STRIPE_SECRET_KEY_SSM_PARAM holds the
// SSM path whose value becomes STRIPE_SECRET_KEY.
const ssmParamSuffix = "_SSM_PARAM"

const localEnv = "local"

const ssmResolveTimeout = 30 * time.Second

// loaderDeps isolates the process environment so tests do not mutate globals.
type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
	dotenv    func() error
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
		dotenv:    func() error { return godotenv.Load() },
	}
}

// LoadConfig loads, resolves and validates the configuration.
//
// Steps: force UTC, load .env (missing file is fine), resolve _SSM_PARAM
// pointers outside local, process envconfig tags, attach build info, validate.
// provider may be nil when APP_ENV=local.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// godotenv never overrides variables already present in the environment.
	_ = deps.dotenv()

	if appEnv, _ := deps.lookupEnv("APP_ENV"); appEnv != localEnv {
		if err := resolveSSMParams(provider, deps); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}

// ssmBinding pairs a target variable with the SSM path that supplies it.
type ssmBinding struct {
	target string
	path   string
}

// collectSSMBindings scans the environment for pointer variables whose target
// is not already set. Explicit env values always win over SSM.
func collectSSMBindings(deps loaderDeps) []ssmBinding {
	var bindings []ssmBinding
	for _, entry := range deps.environ() {
		key, path, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasSuffix(key, ssmParamSuffix) || path == "" {
			continue
		}
		target := strings.TrimSuffix(key, ssmParamSuffix)
		if _, exists := deps.lookupEnv(target); exists {
			continue
		}
		bindings = append(bindings, ssmBinding{target: target, path: path})
	}
	sort.Slice(bindings, func(i, j int) bool { return bindings[i].target < bindings[j].target })
	return bindings
}

// resolveSSMParams fetches every pointer in one batch and injects the values
// back into the environment for envconfig to pick up.
func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	bindings := collectSSMBindings(deps)
	if len(bindings) == 0 {
		return nil
	}

	targets := make([]string, 0, len(bindings))
	paths := make([]string, 0, len(bindings))
	for _, b := range bindings {
		targets = append(targets, b.target)
		paths = append(paths, b.path)
	}

	if provider == nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SecretProvider is required outside local (need to resolve: %s)", strings.Join(targets, ", ")),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), ssmResolveTimeout)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, b := range bindings {
		value, ok := resolved[b.path]
		if !ok {
			missing = append(missing, b.target)
			continue
		}
		if err := deps.setEnv(b.target, value); err != nil {
			return &ConfigError{
				Type:    ErrSSMResolution,
				Message: fmt.Sprintf("failed to set resolved value for %s", b.target),
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SSM parameters not found for: %s", strings.Join(missing, ", ")),
		}
	}

	return nil
}
