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
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/jeremyhahn/go-s3crawl/pkg/crawlable"
	"github.com/jeremyhahn/go-s3crawl/pkg/metrics"
	"github.com/jeremyhahn/go-s3crawl/pkg/walker"
)

// OutputFormat defines the output format type.
type OutputFormat string

const (
	FormatText  OutputFormat = "text"
	FormatJSON  OutputFormat = "json"
	FormatTable OutputFormat = "table"
)

// EntryInfo holds information about a dataset for output formatting.
type EntryInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Kind         string    `json:"kind"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified,omitzero"`
}

// NewEntryInfo describes d.
func NewEntryInfo(d crawlable.Dataset) EntryInfo {
	info := EntryInfo{
		Name: d.Name(),
		Path: d.Path(),
		Kind: "file",
		Size: d.Length(),
	}
	if d.IsCollection() {
		info.Kind = "directory"
	}
	if t, ok := d.LastModified(); ok {
		info.LastModified = t
	}
	return info
}

// OperationResult holds the result of an operation.
type OperationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// FormatOperationResult formats an operation result in the specified format.
func FormatOperationResult(result *OperationResult, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return formatJSON(result)
	case FormatTable:
		return formatResultTable(result)
	default:
		return formatResultText(result)
	}
}

// FormatListResult formats a directory listing in the specified format.
func FormatListResult(entries []EntryInfo, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return formatJSON(map[string]any{
			"count":   len(entries),
			"entries": entries,
		})
	case FormatTable:
		return formatListTable(entries)
	default:
		return formatListText(entries)
	}
}

// FormatStatResult formats one entry in the specified format.
func FormatStatResult(entry EntryInfo, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return formatJSON(entry)
	case FormatTable:
		return formatListTable([]EntryInfo{entry})
	default:
		var output string
		output += fmt.Sprintf("Path: %s\n", entry.Path)
		output += fmt.Sprintf("  Kind: %s\n", entry.Kind)
		output += fmt.Sprintf("  Size: %s\n", formatSize(entry.Size))
		output += fmt.Sprintf("  Last Modified: %s\n", formatTime(entry.LastModified, time.RFC3339))
		return output
	}
}

// WalkReport is the result of a walk command.
type WalkReport struct {
	Stats  walker.Stats                `json:"stats"`
	Caches map[string]metrics.Snapshot `json:"caches"`
}

// FormatWalkResult formats walk statistics and cache counters.
func FormatWalkResult(report WalkReport, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return formatJSON(report)
	case FormatTable:
		var output string
		output += "┌──────────────────┬──────────────────────────────────────┐\n"
		output += fmt.Sprintf("│ %-16s │ %-36s │\n", "Run", report.Stats.RunID)
		output += "├──────────────────┼──────────────────────────────────────┤\n"
		output += fmt.Sprintf("│ %-16s │ %-36d │\n", "Directories", report.Stats.Directories)
		output += fmt.Sprintf("│ %-16s │ %-36d │\n", "Files", report.Stats.Files)
		output += fmt.Sprintf("│ %-16s │ %-36s │\n", "Bytes", formatSize(report.Stats.Bytes))
		output += fmt.Sprintf("│ %-16s │ %-36d │\n", "Errors", report.Stats.Errors)
		output += fmt.Sprintf("│ %-16s │ %-36s │\n", "Duration", report.Stats.Duration.Round(time.Millisecond))
		for _, name := range slices.Sorted(maps.Keys(report.Caches)) {
			s := report.Caches[name]
			output += fmt.Sprintf("│ %-16s │ %-36s │\n", name+" cache",
				fmt.Sprintf("%d hits, %d misses, %.0f%%", s.Hits, s.Misses, 100*s.HitRatio()))
		}
		output += "└──────────────────┴──────────────────────────────────────┘\n"
		return output
	default:
		var output string
		output += fmt.Sprintf("Walk %s finished in %s\n", report.Stats.RunID, report.Stats.Duration.Round(time.Millisecond))
		output += fmt.Sprintf("  Directories: %d\n", report.Stats.Directories)
		output += fmt.Sprintf("  Files: %d (%s)\n", report.Stats.Files, formatSize(report.Stats.Bytes))
		output += fmt.Sprintf("  Errors: %d\n", report.Stats.Errors)
		for _, name := range slices.Sorted(maps.Keys(report.Caches)) {
			s := report.Caches[name]
			output += fmt.Sprintf("  %s cache: %d hits, %d misses, %d loads, %d failures\n",
				name, s.Hits, s.Misses, s.Loads, s.LoadFailures)
		}
		return output
	}
}

// FormatError formats an error message in the specified format.
func FormatError(err error, format OutputFormat) string {
	result := &OperationResult{
		Success: false,
		Error:   err.Error(),
	}
	return FormatOperationResult(result, format)
}

func formatResultText(result *OperationResult) string {
	if result.Success {
		if result.Message != "" {
			return result.Message + "\n"
		}
		return "Operation completed successfully\n"
	}
	return fmt.Sprintf("Error: %s\n", result.Error)
}

func formatResultTable(result *OperationResult) string {
	status, text := "SUCCESS", result.Message
	if !result.Success {
		status, text = "FAILED", result.Error
	}

	output := "┌────────────────────────────────────────────────────────┐\n"
	output += "│ Operation Result                                       │\n"
	output += "├────────────────────────────────────────────────────────┤\n"
	output += fmt.Sprintf("│ Status: %-46s │\n", status)
	if text != "" {
		for _, line := range wrapText(text, 54) {
			output += fmt.Sprintf("│ %-54s │\n", line)
		}
	}
	output += "└────────────────────────────────────────────────────────┘\n"
	return output
}

func formatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": \"failed to marshal JSON: %s\"}\n", err)
	}
	return string(data) + "\n"
}

func formatListText(entries []EntryInfo) string {
	if len(entries) == 0 {
		return "No entries found\n"
	}

	var output string
	for _, e := range entries {
		if e.Kind == "directory" {
			output += fmt.Sprintf("%-10s %20s  %s/\n", "DIR", "", e.Name)
			continue
		}
		output += fmt.Sprintf("%10s %20s  %s\n", formatSize(e.Size), formatTime(e.LastModified, "2006-01-02 15:04:05"), e.Name)
	}
	return output
}

func formatListTable(entries []EntryInfo) string {
	if len(entries) == 0 {
		return "No entries found\n"
	}

	var output string
	output += "┌────────────────────────────────────┬───────────┬──────────────┬──────────────────────┐\n"
	output += "│ Name                               │ Kind      │ Size         │ Last Modified        │\n"
	output += "├────────────────────────────────────┼───────────┼──────────────┼──────────────────────┤\n"

	for _, e := range entries {
		size := "-"
		if e.Kind != "directory" {
			size = formatSize(e.Size)
		}
		output += fmt.Sprintf("│ %-34s │ %-9s │ %-12s │ %-20s │\n",
			truncate(e.Name, 34), e.Kind, size, formatTime(e.LastModified, "2006-01-02 15:04:05"))
	}

	output += "└────────────────────────────────────┴───────────┴──────────────┴──────────────────────┘\n"
	output += fmt.Sprintf("Total: %d entries\n", len(entries))
	return output
}

func formatTime(t time.Time, layout string) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(layout)
}

// formatSize formats a byte size into a human-readable string.
func formatSize(size int64) string {
	if size < 0 {
		return "-"
	}
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}

// wrapText wraps text to fit within maxWidth characters.
func wrapText(text string, maxWidth int) []string {
	if len(text) <= maxWidth {
		return []string{text}
	}

	// Check if text has no spaces - need to hard wrap
	if !strings.Contains(text, " ") {
		var lines []string
		for len(text) > maxWidth {
			lines = append(lines, text[:maxWidth])
			text = text[maxWidth:]
		}
		if len(text) > 0 {
			lines = append(lines, text)
		}
		return lines
	}

	var lines []string
	var currentLine string
	for _, word := range strings.Fields(text) {
		switch {
		case currentLine == "":
			currentLine = word
		case len(currentLine)+1+len(word) <= maxWidth:
			currentLine += " " + word
		default:
			lines = append(lines, currentLine)
			currentLine = word
		}
	}
	if currentLine != "" {
		lines = append(lines, currentLine)
	}
	return lines
}

// truncate truncates a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
