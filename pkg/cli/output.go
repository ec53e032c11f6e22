// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-shiftsync.
//
// go-shiftsync is dual-licensed:
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
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jeremyhahn/go-shiftsync/pkg/changelog"
	"github.com/jeremyhahn/go-shiftsync/pkg/config"
	"github.com/jeremyhahn/go-shiftsync/pkg/snapshot"
	"github.com/jeremyhahn/go-shiftsync/pkg/version"
)

// OutputFormat defines the output format type.
type OutputFormat string

const (
	FormatText  OutputFormat = "text"
	FormatJSON  OutputFormat = "json"
	FormatTable OutputFormat = "table"
)

// ParseOutputFormat parses a --output flag value. Empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatTable:
		return FormatTable, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedOutputFormat, s)
	}
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

// FormatError formats an error message in the specified format.
func FormatError(err error, format OutputFormat) string {
	result := &OperationResult{
		Success: false,
		Error:   err.Error(),
	}
	return FormatOperationResult(result, format)
}

// FormatChangeLog formats change log entries in the specified format.
func FormatChangeLog(entries []changelog.Entry, format OutputFormat) string {
	switch format {
	case FormatJSON:
		if entries == nil {
			entries = []changelog.Entry{}
		}
		return formatJSON(map[string]any{"count": len(entries), "entries": entries})
	case FormatTable:
		return formatChangeLogTable(entries)
	default:
		return formatChangeLogText(entries)
	}
}

// FormatSnapshot formats a snapshot document in the specified format.
func FormatSnapshot(doc *snapshot.Document, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return formatJSON(doc)
	case FormatTable:
		return formatSnapshotTable(doc)
	default:
		return formatSnapshotText(doc)
	}
}

// FormatConfig formats the effective configuration. Secrets are never
// rendered.
func FormatConfig(cfg *config.Config, format OutputFormat) string {
	if format == FormatJSON {
		return formatJSON(cfg)
	}

	flat := flattenJSON(cfg)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if format == FormatTable {
		var b strings.Builder
		b.WriteString("┌──────────────────────────────┬──────────────────────────────────────┐\n")
		b.WriteString("│ Setting                      │ Value                                │\n")
		b.WriteString("├──────────────────────────────┼──────────────────────────────────────┤\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "│ %-28s │ %-36s │\n", truncate(k, 28), truncate(flat[k], 36))
		}
		b.WriteString("└──────────────────────────────┴──────────────────────────────────────┘\n")
		return b.String()
	}

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, flat[k])
	}
	return b.String()
}

// FormatVersion formats build information.
func FormatVersion(info version.Info, format OutputFormat) string {
	if format == FormatJSON {
		return formatJSON(info)
	}
	return info.String() + "\n"
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

func formatChangeLogText(entries []changelog.Entry) string {
	if len(entries) == 0 {
		return "No change log entries\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d entr%s:\n\n", len(entries), plural(len(entries), "y", "ies"))
	for _, e := range entries {
		fmt.Fprintf(&b, "#%d %s %s at %s\n", e.Clock, e.Type, e.StaffID, e.Timestamp.Format(time.RFC3339))
	}
	return b.String()
}

func formatChangeLogTable(entries []changelog.Entry) string {
	if len(entries) == 0 {
		return "No change log entries\n"
	}

	var b strings.Builder
	b.WriteString("┌──────────┬──────────────┬──────────────────────────────────────┬──────────────────────┐\n")
	b.WriteString("│ Clock    │ Type         │ Staff ID                             │ Timestamp            │\n")
	b.WriteString("├──────────┼──────────────┼──────────────────────────────────────┼──────────────────────┤\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "│ %-8d │ %-12s │ %-36s │ %-20s │\n",
			e.Clock, truncate(string(e.Type), 12), truncate(e.StaffID, 36),
			e.Timestamp.Format("2006-01-02 15:04:05"))
	}
	b.WriteString("└──────────┴──────────────┴──────────────────────────────────────┴──────────────────────┘\n")
	fmt.Fprintf(&b, "Total: %d entr%s\n", len(entries), plural(len(entries), "y", "ies"))
	return b.String()
}

func formatSnapshotText(doc *snapshot.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Snapshot at clock %d (%s): %d staff member(s)\n",
		doc.Clock, doc.TakenAt.Format(time.RFC3339), len(doc.Staff))
	for _, m := range doc.Staff {
		fmt.Fprintf(&b, "  %s  %s (%s, %s) v%d\n", m.ID, m.Name, m.Position, m.Type, m.Version)
	}
	return b.String()
}

func formatSnapshotTable(doc *snapshot.Document) string {
	var b strings.Builder
	b.WriteString("┌──────────────────────────────────────┬──────────────────────┬──────────────┬─────────┐\n")
	b.WriteString("│ ID                                   │ Name                 │ Type         │ Version │\n")
	b.WriteString("├──────────────────────────────────────┼──────────────────────┼──────────────┼─────────┤\n")
	for _, m := range doc.Staff {
		fmt.Fprintf(&b, "│ %-36s │ %-20s │ %-12s │ %-7d │\n",
			truncate(m.ID, 36), truncate(m.Name, 20), truncate(string(m.Type), 12), m.Version)
	}
	b.WriteString("└──────────────────────────────────────┴──────────────────────┴──────────────┴─────────┘\n")
	fmt.Fprintf(&b, "Clock: %d  Staff: %d\n", doc.Clock, len(doc.Staff))
	return b.String()
}

// flattenJSON renders v through its JSON encoding as dotted keys.
func flattenJSON(v any) map[string]string {
	out := make(map[string]string)
	data, err := json.Marshal(v)
	if err != nil {
		return out
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return out
	}
	flattenInto(out, "", tree)
	return out
}

func flattenInto(out map[string]string, prefix string, tree map[string]any) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flattenInto(out, key, val)
		case []any:
			parts := make([]string, len(val))
			for i, p := range val {
				parts[i] = fmt.Sprint(p)
			}
			out[key] = strings.Join(parts, ",")
		case float64:
			out[key] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// wrapText wraps text to fit within maxWidth characters.
func wrapText(text string, maxWidth int) []string {
	if len(text) <= maxWidth {
		return []string{text}
	}

	var lines []string
	var current string
	for _, word := range strings.Fields(text) {
		for len(word) > maxWidth {
			if current != "" {
				lines = append(lines, current)
				current = ""
			}
			lines = append(lines, word[:maxWidth])
			word = word[maxWidth:]
		}
		switch {
		case current == "":
			current = word
		case len(current)+1+len(word) <= maxWidth:
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// truncate truncates a string to maxLen characters, adding "..." if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
