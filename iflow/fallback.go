package iflow

import (
	"regexp"
	"strings"
)

// Regex-based best-effort extraction, used when no namespace profile can
// make sense of the document. The patterns are intentionally loose: at
// this point the input is either malformed XML or some adjacent format,
// and partial results beat none.
var (
	reNameAttr      = regexp.MustCompile(`<[^>]+name="([^"]+)"`)
	reConnection    = regexp.MustCompile(`(?s)<(sender|receiver).*?type="([^"]+)"`)
	reAdapter       = regexp.MustCompile(`(?s)<adapter-specific.*?type="([^"]+)"`)
	reMapping       = regexp.MustCompile(`(?s)<mapping.*?type="([^"]+)"`)
	reErrSubprocess = regexp.MustCompile(`(?s)<[^>]*subProcess[^>]*>.*?<[^>]*errorEvent`)
)

func extractWithRegex(content string, res *ExtractionResult) {
	if m := reNameAttr.FindStringSubmatch(content); m != nil {
		res.ArtifactName = m[1]
	}

	for _, m := range reConnection.FindAllStringSubmatch(content, -1) {
		entry := Participant{Name: m[1], AdapterType: m[2], Properties: []Property{}}
		if m[1] == "sender" {
			res.Senders = append(res.Senders, entry)
		} else {
			res.Receivers = append(res.Receivers, entry)
		}
	}

	for _, m := range reAdapter.FindAllStringSubmatch(content, -1) {
		res.addAdapter(m[1])
	}

	seen := map[string]bool{}
	for _, m := range reMapping.FindAllStringSubmatch(content, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		res.MappingEntities = append(res.MappingEntities, MappingEntity{Name: m[1], URI: "Not specified"})
	}

	if strings.Contains(content, "<error-handling") {
		res.ErrorHandling = append(res.ErrorHandling, ErrorHandlingInfo{Details: "Basic error handling configured"})
	}
	if strings.Contains(content, "<dead-letter-queue") {
		res.ErrorHandling = append(res.ErrorHandling, ErrorHandlingInfo{Details: "Dead letter queue configured"})
	}
	if reErrSubprocess.MatchString(content) {
		res.ErrorHandling = append(res.ErrorHandling, ErrorHandlingInfo{Details: "Error handling subprocess detected"})
		res.HasProperErrorHandling = true
	}
}
