package validation

import (
	"errors"
	"strings"
	"testing"

	"genesis/internal/domain"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name        string
		req         GenerateRequest
		wantBackend domain.Backend
		wantMsg     string
	}{
		{name: "defaults to ollama", req: GenerateRequest{Prompt: "build a todo app in go"}, wantBackend: domain.BackendOllama},
		{name: "openai", req: GenerateRequest{Prompt: "build a todo app in go", Backend: "openai"}, wantBackend: domain.BackendOpenAI},
		{name: "empty", req: GenerateRequest{Prompt: ""}, wantMsg: "Prompt cannot be empty"},
		{name: "whitespace", req: GenerateRequest{Prompt: "     \n\t  "}, wantMsg: "Prompt cannot be empty"},
		{name: "too short", req: GenerateRequest{Prompt: "todo app"}, wantMsg: "between 10 and 2000"},
		{name: "too long", req: GenerateRequest{Prompt: strings.Repeat("a", 2001)}, wantMsg: "between 10 and 2000"},
		{name: "exactly max", req: GenerateRequest{Prompt: strings.Repeat("a", 2000)}, wantBackend: domain.BackendOllama},
		{name: "unknown backend", req: GenerateRequest{Prompt: "build a todo app in go", Backend: "claude"}, wantMsg: "Backend must be 'ollama' or 'openai'"},
		{name: "harmful keyword", req: GenerateRequest{Prompt: "build an app that can DROP tables"}, wantMsg: "harmful keywords"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend, err := Generate(tc.req)
			if tc.wantMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if backend != tc.wantBackend {
					t.Fatalf("backend = %s, want %s", backend, tc.wantBackend)
				}
				return
			}
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("err = %v, want validation error", err)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("err = %q, want it to mention %q", err.Error(), tc.wantMsg)
			}
		})
	}
}
