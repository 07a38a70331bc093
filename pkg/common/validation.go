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
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MaxKeyLength is the maximum allowed length for object keys
	MaxKeyLength = 1024

	// MaxLocalNameLength is the maximum length of a materialized file name
	MaxLocalNameLength = 255
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap lets callers match validation failures with ErrInvalidArgument.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidArgument
}

// ValidateKey validates an object key before it is sent to a store.
// Returns error if the key:
// - Is empty
// - Exceeds maximum length
// - Contains null bytes
// - Is not valid UTF-8
func ValidateKey(key string) error {
	if key == "" {
		return &ValidationError{
			Field:   "key",
			Message: "key cannot be empty",
		}
	}

	if len(key) > MaxKeyLength {
		return &ValidationError{
			Field:   "key",
			Message: fmt.Sprintf("key length exceeds maximum of %d bytes", MaxKeyLength),
		}
	}

	if strings.IndexByte(key, 0) >= 0 {
		return &ValidationError{
			Field:   "key",
			Message: "key cannot contain null bytes",
		}
	}

	if !utf8.ValidString(key) {
		return &ValidationError{
			Field:   "key",
			Message: "key must be valid UTF-8",
		}
	}

	return nil
}

// ValidateLocalName checks that name can be used as a single file name inside
// a directory the caller owns. Remote keys are attacker-controlled, so a
// basename such as ".." or one carrying a separator must never reach the
// local filesystem.
func ValidateLocalName(name string) error {
	switch name {
	case "":
		return &ValidationError{Field: "name", Message: "name cannot be empty"}
	case ".", "..":
		return &ValidationError{Field: "name", Message: fmt.Sprintf("name %q is reserved", name)}
	}

	if len(name) > MaxLocalNameLength {
		return &ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("name length exceeds maximum of %d bytes", MaxLocalNameLength),
		}
	}

	for i := 0; i < len(name); i++ {
		switch name[i] {
		case 0:
			return &ValidationError{Field: "name", Message: "name cannot contain null bytes"}
		case '/', '\\':
			return &ValidationError{Field: "name", Message: "name cannot contain path separators"}
		}
	}

	return nil
}
