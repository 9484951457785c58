// Package validation checks generation requests before any job is created.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"genesis/internal/domain"
)

const (
	MinPromptLength = 10
	MaxPromptLength = 2000
)

// HarmfulKeywords are rejected anywhere in a prompt, case-insensitively.
var HarmfulKeywords = []string{"delete", "drop", "remove", "system", "admin"}

var validate = validator.New()

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	Prompt   string         `json:"prompt" validate:"required,min=10,max=2000"`
	Backend  string         `json:"backend,omitempty" validate:"omitempty,oneof=ollama openai"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

var fieldMessages = map[string]string{
	"Prompt.required": "Prompt cannot be empty",
	"Prompt.min":      fmt.Sprintf("Prompt must be between %d and %d characters", MinPromptLength, MaxPromptLength),
	"Prompt.max":      fmt.Sprintf("Prompt must be between %d and %d characters", MinPromptLength, MaxPromptLength),
	"Backend.oneof":   "Backend must be 'ollama' or 'openai'",
}

// Generate validates req and returns the backend to use. Failures are
// *domain.ValidationError values.
func Generate(req GenerateRequest) (domain.Backend, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", &domain.ValidationError{Messages: []string{"prompt: Prompt cannot be empty"}}
	}

	if err := validate.Struct(req); err != nil {
		return "", &domain.ValidationError{Messages: formatValidationErrors(err)}
	}

	lower := strings.ToLower(req.Prompt)
	for _, keyword := range HarmfulKeywords {
		if strings.Contains(lower, keyword) {
			return "", &domain.ValidationError{Messages: []string{"Prompt contains potentially harmful keywords"}}
		}
	}

	backend := domain.DefaultBackend
	if req.Backend != "" {
		backend = domain.Backend(req.Backend)
	}
	return backend, nil
}

func formatValidationErrors(err error) []string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.ToLower(fe.Field())
		msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("failed on the '%s' tag", fe.Tag())
		}
		out = append(out, field+": "+msg)
	}
	return out
}
