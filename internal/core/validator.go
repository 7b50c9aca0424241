package core

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"clientdesk/internal/types"
)

// tagDashboardURL accepts only absolute http(s) URLs on the dashboard host,
// so checkout can never redirect a customer off-site.
const tagDashboardURL = "dashboard_url"

// Validator wraps go-playground/validator with the request rules of the
// billing API.
type Validator struct {
	validate      *validator.Validate
	dashboardHost string
	logger        *slog.Logger
}

// NewValidator registers the custom tags. dashboardURL is the configured
// dashboard origin; an empty value makes every dashboard_url field invalid.
func NewValidator(logger *slog.Logger, dashboardURL string) (*Validator, error) {
	v := &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}

	if dashboardURL != "" {
		u, err := url.Parse(dashboardURL)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid dashboard url %q", dashboardURL)
		}
		v.dashboardHost = strings.ToLower(u.Host)
	}

	// Report fields by their JSON name.
	v.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.validate.RegisterValidation(tagDashboardURL, v.isDashboardURL); err != nil {
		return nil, fmt.Errorf("registering %s: %w", tagDashboardURL, err)
	}
	return v, nil
}

func (v *Validator) isDashboardURL(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return true // presence is the job of "required"
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.User != nil {
		return false
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return false
	}
	return v.dashboardHost != "" && strings.EqualFold(u.Host, v.dashboardHost)
}

// ValidateStruct runs the struct tags of s and maps the first violation to an
// AppError: a dashboard_url failure is validation_invalid_redirect_url, any
// other is validation_missing_required_field. Every violation is listed in
// Details["fields"].
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		v.logger.Error("struct validation failed unexpectedly", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	fields := make([]map[string]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, map[string]string{"field": fe.Field(), "rule": fe.Tag()})
	}
	details := map[string]any{"fields": fields}

	first := verrs[0]
	if first.Tag() == tagDashboardURL {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidURL,
			fmt.Sprintf("%s must be an absolute URL on the dashboard host", first.Field()), nil, details)
	}
	return types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
		fmt.Sprintf("%s failed %q validation", first.Field(), first.Tag()), nil, details)
}
