// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-s3crawl.
//
// go-s3crawl is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package common

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"simple", "data/file.nc", false},
		{"nested", "a/b/c/d.hdf", false},
		{"trailing delimiter", "data/", false},
		{"empty", "", true},
		{"null byte", "data/\x00.nc", true},
		{"invalid utf8", "data/\xff.nc", true},
		{"too long", strings.Repeat("a", MaxKeyLength+1), true},
		{"max length", strings.Repeat("a", MaxKeyLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestValidateLocalName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", "file.nc", false},
		{"dotfile", ".hidden.nc", false},
		{"empty", "", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
		{"slash", "a/b.nc", true},
		{"backslash", `a\b.nc`, true},
		{"null", "a\x00", true},
		{"too long", strings.Repeat("n", MaxLocalNameLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLocalName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateLocalName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "key", Message: "bad"}
	if got := err.Error(); got != "validation error on field 'key': bad" {
		t.Errorf("unexpected message %q", got)
	}

	err = &ValidationError{Message: "bad"}
	if got := err.Error(); got != "validation error: bad" {
		t.Errorf("unexpected message %q", got)
	}
}
