package review

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
)

// RenderJSON returns the results as indented JSON for machine consumption.
func RenderJSON(results []*Result) (string, error) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode results: %w", err)
	}
	return string(data) + "\n", nil
}

// RenderMarkdown produces a human-readable review report for a batch of
// results. The report is self-contained markdown: a summary table followed
// by one section per artifact with findings, detected security posture and
// extraction quality notes.
func RenderMarkdown(policyName string, results []*Result, generatedAt time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Integration Flow Review Report\n\n")
	fmt.Fprintf(&b, "Policy: **%s**  \n", policyName)
	fmt.Fprintf(&b, "Generated: %s (%s)  \n", generatedAt.Format(time.RFC3339), humanize.Time(generatedAt))
	fmt.Fprintf(&b, "Artifacts reviewed: %s\n\n", english.Plural(len(results), "artifact", ""))

	b.WriteString("| Artifact | Size | Score | Verdict |\n")
	b.WriteString("|----------|------|-------|---------|\n")
	for _, res := range results {
		fmt.Fprintf(&b, "| %s | %s | %.1f%% | %s |\n",
			res.ArtifactName, humanize.Bytes(uint64(res.SizeBytes)), res.Score, res.Verdict)
	}
	b.WriteString("\n")

	for _, res := range results {
		renderArtifact(&b, res)
	}
	return b.String()
}

func renderArtifact(b *strings.Builder, res *Result) {
	fmt.Fprintf(b, "## %s\n\n", res.ArtifactName)
	if res.ArtifactID != "" {
		fmt.Fprintf(b, "Artifact ID: `%s`  \n", res.ArtifactID)
	}
	fmt.Fprintf(b, "Source: `%s`  \n", res.Path)
	fmt.Fprintf(b, "Verdict: **%s** (%.1f%%)\n\n", res.Verdict, res.Score)

	if res.Extraction != nil && res.Extraction.Error != "" {
		fmt.Fprintf(b, "> Analysis failed: %s\n\n", res.Extraction.Error)
		return
	}

	if res.Extraction != nil && res.Extraction.Purpose != "" {
		fmt.Fprintf(b, "Purpose: %s\n\n", res.Extraction.Purpose)
	}

	b.WriteString("| Rule | Severity | Result | Detail |\n")
	b.WriteString("|------|----------|--------|--------|\n")
	for _, f := range res.Findings {
		status := "pass"
		if !f.Passed {
			status = "**fail**"
		}
		fmt.Fprintf(b, "| %s: %s | %s | %s | %s |\n",
			f.GuidelineID, f.Title, f.Severity, status, sanitizeCell(f.Detail))
	}
	b.WriteString("\n")

	if res.Extraction == nil {
		return
	}

	if len(res.Extraction.SecurityMethods) > 0 {
		fmt.Fprintf(b, "Authentication methods: %s\n\n", strings.Join(res.Extraction.SecurityMethods, ", "))
	}
	if len(res.Extraction.AdaptersUsed) > 0 {
		fmt.Fprintf(b, "Adapters: %s\n\n", strings.Join(res.Extraction.AdaptersUsed, ", "))
	}
	if n := len(res.Extraction.ProcessingErrors); n > 0 {
		fmt.Fprintf(b, "Extraction finished with %s.\n\n", english.Plural(n, "processing error", ""))
	}
}

// sanitizeCell keeps finding details from breaking the markdown table layout.
func sanitizeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
