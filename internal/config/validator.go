package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers MediGate-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("audit_output", validateAuditOutput); err != nil {
		return fmt.Errorf("failed to register audit_output validator: %w", err)
	}
	return nil
}

// validateAuditOutput validates the audit output field.
// Valid values: "armoriq", "stderr", or "file://<absolute-dir>".
func validateAuditOutput(fl validator.FieldLevel) bool {
	output := fl.Field().String()

	if output == "armoriq" || output == "stderr" {
		return true
	}
	if strings.HasPrefix(output, "file://") {
		dir := strings.TrimPrefix(output, "file://")
		return dir != "" && filepath.IsAbs(dir)
	}
	return false
}

// Validate validates the Config using struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validatePolicyBackend(); err != nil {
		return err
	}
	if err := c.validateAuditBackend(); err != nil {
		return err
	}
	if err := c.validateStorageBackend(); err != nil {
		return err
	}
	return c.validateIdentityReferences()
}

// validatePolicyBackend ensures the armoriq backend has a URL and key.
func (c *Config) validatePolicyBackend() error {
	if c.Policy.Backend != "armoriq" {
		return nil
	}
	if c.Policy.URL == "" {
		return errors.New("policy: url is required for the armoriq backend")
	}
	if c.Policy.APIKey == "" {
		return errors.New("policy: api_key is required for the armoriq backend (set MEDIGATE_POLICY_API_KEY)")
	}
	return nil
}

// validateAuditBackend ensures armoriq audit output has an engine to talk to.
func (c *Config) validateAuditBackend() error {
	if c.Audit.Output == "armoriq" && c.Policy.Backend != "armoriq" {
		return errors.New("audit: output 'armoriq' requires the armoriq policy backend")
	}
	return nil
}

// validateStorageBackend ensures the firestore backend has a project.
func (c *Config) validateStorageBackend() error {
	if c.Storage.Backend == "firestore" && c.Storage.ProjectID == "" {
		return errors.New("storage: project_id is required for the firestore backend")
	}
	return nil
}

// validateIdentityReferences ensures every API key references a known identity.
func (c *Config) validateIdentityReferences() error {
	known := make(map[string]struct{}, len(c.Auth.Identities))
	for _, identity := range c.Auth.Identities {
		known[identity.ID] = struct{}{}
	}
	for i, apiKey := range c.Auth.APIKeys {
		if _, exists := known[apiKey.IdentityID]; !exists {
			return fmt.Errorf("api_keys[%d]: references unknown identity_id: %s", i, apiKey.IdentityID)
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "audit_output":
		return fmt.Sprintf("%s must be 'armoriq', 'stderr', or 'file://<absolute-dir>'", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
