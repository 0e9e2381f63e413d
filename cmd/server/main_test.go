package main

import (
	"strings"
	"testing"

	"tokoledger/backend/internal/config"
)

func TestValidateSecurityConfig(t *testing.T) {
	cases := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{"empty secret", "", true},
		{"short secret", "too-short", true},
		{"exactly 32 chars", strings.Repeat("a", 32), false},
		{"long secret", strings.Repeat("a", 64), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateSecurityConfig(config.Config{AuthSecret: tc.secret})
			if tc.wantErr && err == nil {
				t.Fatalf("expected error for secret %q", tc.secret)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
