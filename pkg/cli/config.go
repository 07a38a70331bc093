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

package cli

import (
	"fmt"
	"strings"

	"github.com/jeremyhahn/go-s3crawl/pkg/config"
)

// DisplayConfig formats and displays the current configuration. Credentials
// are masked.
func DisplayConfig(cfg *config.Config, format OutputFormat) string {
	masked := *cfg
	if masked.BackendKey != "" {
		masked.BackendKey = maskSecret(masked.BackendKey)
	}
	if masked.BackendSecret != "" {
		masked.BackendSecret = maskSecret(masked.BackendSecret)
	}

	switch format {
	case FormatJSON:
		return formatJSON(masked)
	case FormatTable:
		return formatConfigTable(configRows(&masked))
	default:
		var result string
		for _, row := range configRows(&masked) {
			result += fmt.Sprintf("%s: %s\n", row[0], row[1])
		}
		return result
	}
}

func configRows(cfg *config.Config) [][2]string {
	rows := [][2]string{{"Backend", cfg.Backend}}
	add := func(name, value string) {
		if value != "" {
			rows = append(rows, [2]string{name, value})
		}
	}
	add("Backend Region", cfg.BackendRegion)
	add("Backend URL", cfg.BackendURL)
	add("Backend Key", cfg.BackendKey)
	add("Backend Secret", cfg.BackendSecret)
	if cfg.BackendPathStyle {
		add("Path Style", "true")
	}
	add("Credentials", cfg.BackendCredentials)
	add("Buckets", cfg.BackendBuckets)
	add("Path", cfg.BackendPath)
	add("Listing TTL/TTI", fmt.Sprintf("%s / %s", cfg.Listing.TTL, cfg.Listing.TTI))
	add("Listing Entries", fmt.Sprint(cfg.Listing.MaxEntries))
	add("Extensions", strings.Join(cfg.Listing.Extensions, " "))
	add("Probe", fmt.Sprint(cfg.Listing.Probe))
	add("Objects TTL/TTI", fmt.Sprintf("%s / %s", cfg.Objects.TTL, cfg.Objects.TTI))
	add("Objects Entries", fmt.Sprint(cfg.Objects.MaxEntries))
	add("Temp Dir", cfg.Objects.TempDir)
	add("Temp Prefix", cfg.Objects.TempPrefix)
	add("Cleanup Interval", cfg.CleanupInterval.String())
	if cfg.RateLimit > 0 {
		add("Rate Limit", fmt.Sprintf("%g/s burst %d", cfg.RateLimit, cfg.Burst))
	}
	add("Concurrency", fmt.Sprint(cfg.Concurrency))
	add("Log", cfg.LogLevel+" "+cfg.LogFormat)
	add("Output Format", cfg.OutputFormat)
	return rows
}

func formatConfigTable(rows [][2]string) string {
	var result string
	result += "┌──────────────────┬────────────────────────────────────────┐\n"
	result += "│ Setting          │ Value                                  │\n"
	result += "├──────────────────┼────────────────────────────────────────┤\n"
	for _, row := range rows {
		result += fmt.Sprintf("│ %-16s │ %-38s │\n", row[0], truncate(row[1], 38))
	}
	result += "└──────────────────┴────────────────────────────────────────┘\n"
	return result
}

// maskSecret masks sensitive information, showing only first 4 characters.
func maskSecret(s string) string {
	if len(s) < 5 {
		return "****"
	}
	return s[:4] + "****"
}
