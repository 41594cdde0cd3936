// Package exporter orchestrates the direct export path (spec §4.11):
// resolve path, detect collision, render Markdown, atomic write, and
// commit the audit row + status advance in one ledger transaction.
package exporter

import (
	"fmt"
	"strings"
	"time"
)

// renderMarkdown produces the fixed frontmatter+header+body+footer format
// of spec §6. The exact byte layout is an Open Question the spec leaves to
// the implementation; this shape was chosen to be the smallest
// unambiguous rendering of the four required frontmatter fields plus a
// human-readable header and a metadata footer, and is treated as a fixed
// contract once chosen (changing it is a breaking change to the vault).
func renderMarkdown(id, source, capturedAt, contentHash, body string, meta map[string]string) string {
	var b strings.Builder

	b.WriteString("---\n")
	fmt.Fprintf(&b, "id: %s\n", id)
	fmt.Fprintf(&b, "source: %s\n", source)
	fmt.Fprintf(&b, "captured_at: %s\n", capturedAt)
	fmt.Fprintf(&b, "content_hash: %s\n", contentHash)
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# Capture %s\n\n", id)

	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(meta) > 0 {
		b.WriteString("---\n")
		for _, k := range sortedKeys(meta) {
			fmt.Fprintf(&b, "%s: %s\n", k, meta[k])
		}
	}

	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Insertion sort is fine at this size (a handful of metadata fields)
	// and avoids importing sort for one call site.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// renderPlaceholder produces the Markdown for a failed_transcription ->
// exported_placeholder capture: the body is replaced with a fixed notice
// instead of the (never transcribed) voice content.
func renderPlaceholder(id, source, capturedAt, contentHash string, meta map[string]string) string {
	return renderMarkdown(id, source, capturedAt, contentHash, "_Transcription failed; original audio preserved outside the vault._", meta)
}

func nowISO(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
