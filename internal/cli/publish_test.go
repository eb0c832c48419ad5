// Package cli — publish_test.go contains unit tests for the pure
// credential-resolution logic used by the publish command.
//
// These tests verify flag/environment precedence without requiring a
// Docker daemon or any external dependencies.
package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestResolveCredentials verifies the precedence between the credential
// flags and their environment fallbacks: an explicit flag always wins,
// and the environment fills in only what the flags left empty.
func TestResolveCredentials(t *testing.T) {
	tests := []struct {
		name         string
		flagUser     string
		flagToken    string
		envUser      string
		envToken     string
		wantUsername string
		wantToken    string
	}{
		{
			name:         "flags only",
			flagUser:     "octocat",
			flagToken:    "flag-secret",
			wantUsername: "octocat",
			wantToken:    "flag-secret",
		},
		{
			name:         "environment only",
			envUser:      "ci-bot",
			envToken:     "env-secret",
			wantUsername: "ci-bot",
			wantToken:    "env-secret",
		},
		{
			name:         "flags take precedence over environment",
			flagUser:     "octocat",
			flagToken:    "flag-secret",
			envUser:      "ci-bot",
			envToken:     "env-secret",
			wantUsername: "octocat",
			wantToken:    "flag-secret",
		},
		{
			name:         "mixed: flag user with environment token",
			flagUser:     "octocat",
			envToken:     "env-secret",
			wantUsername: "octocat",
			wantToken:    "env-secret",
		},
		{
			name: "nothing configured yields empty credentials",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(envRegistryUser, tt.envUser)
			t.Setenv(envRegistryToken, tt.envToken)

			creds := resolveCredentials(&publishFlags{
				registryUser:  tt.flagUser,
				registryToken: tt.flagToken,
			})

			assert.Equal(t, tt.wantUsername, creds.Username)
			assert.Equal(t, tt.wantToken, creds.Token)
		})
	}
}
