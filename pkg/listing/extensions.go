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

package listing

import (
	"sort"
	"strings"
)

// DefaultExtensionList is the allow-list used when none is configured.
var DefaultExtensionList = []string{".hdf", ".xml", ".nc", ".bz2", ".cdp", ".jpg"}

// Extensions is a case-insensitive allow-list of file-name suffixes.
type Extensions struct {
	suffixes []string
}

// NewExtensions builds an allow-list. Entries are lower-cased and given a
// leading dot when missing; empty entries and duplicates are dropped.
func NewExtensions(exts ...string) Extensions {
	seen := make(map[string]bool, len(exts))
	suffixes := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || ext == "." {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if !seen[ext] {
			seen[ext] = true
			suffixes = append(suffixes, ext)
		}
	}
	return Extensions{suffixes: suffixes}
}

// FromMap builds an allow-list from an extension -> recognized mapping.
func FromMap(m map[string]bool) Extensions {
	exts := make([]string, 0, len(m))
	for ext, ok := range m {
		if ok {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	return NewExtensions(exts...)
}

// DefaultExtensions returns DefaultExtensionList as an allow-list.
func DefaultExtensions() Extensions {
	return NewExtensions(DefaultExtensionList...)
}

// Match reports whether key ends with a recognized extension.
func (e Extensions) Match(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range e.suffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// List returns the normalized extensions.
func (e Extensions) List() []string {
	return append([]string(nil), e.suffixes...)
}

// Len returns the number of extensions.
func (e Extensions) Len() int {
	return len(e.suffixes)
}

func (e Extensions) String() string {
	return strings.Join(e.suffixes, ",")
}
