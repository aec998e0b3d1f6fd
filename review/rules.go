package review

import (
	"fmt"
	"strings"

	"cireview.evalgo.org/iflow"
)

// Built-in check names referenced from guideline files.
const (
	CheckSecurityCompliant    = "security-compliant"
	CheckErrorHandling        = "error-handling"
	CheckPurposeDocumented    = "purpose-documented"
	CheckStepsNamed           = "steps-named"
	CheckParticipantsDeclared = "participants-declared"
	CheckCleanExtraction      = "clean-extraction"
)

// Finding is the outcome of one guideline applied to one artifact.
type Finding struct {
	GuidelineID string `json:"guideline_id"`
	Title       string `json:"title"`
	Severity    string `json:"severity"`
	Passed      bool   `json:"passed"`
	Detail      string `json:"detail"`
}

// checkFunc evaluates one aspect of an extraction result. It returns whether
// the check passed and a human-readable detail either way.
type checkFunc func(res *iflow.ExtractionResult) (bool, string)

var checkRegistry = map[string]checkFunc{
	CheckSecurityCompliant:    checkSecurityCompliant,
	CheckErrorHandling:        checkErrorHandling,
	CheckPurposeDocumented:    checkPurposeDocumented,
	CheckStepsNamed:           checkStepsNamed,
	CheckParticipantsDeclared: checkParticipantsDeclared,
	CheckCleanExtraction:      checkCleanExtraction,
}

// Evaluate applies every guideline rule to the extraction result.
func Evaluate(g Guidelines, res *iflow.ExtractionResult) []Finding {
	findings := make([]Finding, 0, len(g.Rules))
	for _, rule := range g.Rules {
		check := checkRegistry[rule.Check]
		passed, detail := check(res)
		findings = append(findings, Finding{
			GuidelineID: rule.ID,
			Title:       rule.Title,
			Severity:    rule.Severity,
			Passed:      passed,
			Detail:      detail,
		})
	}
	return findings
}

func checkSecurityCompliant(res *iflow.ExtractionResult) (bool, string) {
	if res.SecurityCompliant {
		if len(res.SecurityMethods) > 0 {
			return true, "detected methods: " + strings.Join(res.SecurityMethods, ", ")
		}
		return true, "no authentication findings"
	}
	if len(res.SecurityIssues) > 0 {
		return false, strings.Join(res.SecurityIssues, "; ")
	}
	return false, "security compliance check failed"
}

func checkErrorHandling(res *iflow.ExtractionResult) (bool, string) {
	if res.HasProperErrorHandling {
		return true, "exception subprocess with error events present"
	}
	for _, eh := range res.ErrorHandling {
		if eh.Subprocess != "" || eh.Details != "No error handling detected" {
			return false, "only partial error handling found: " + eh.Details
		}
	}
	return false, "no error handling detected"
}

func checkPurposeDocumented(res *iflow.ExtractionResult) (bool, string) {
	purpose := strings.TrimSpace(res.Purpose)
	if purpose == "" || strings.HasPrefix(purpose, "Not specified") {
		return false, "collaboration carries no descriptive name"
	}
	return true, purpose
}

func checkStepsNamed(res *iflow.ExtractionResult) (bool, string) {
	var unnamed int
	for _, step := range res.KeySteps {
		if strings.HasPrefix(step.Name, "Unnamed") {
			unnamed++
		}
	}
	if unnamed > 0 {
		return false, fmt.Sprintf("%d of %d key steps are unnamed", unnamed, len(res.KeySteps))
	}
	return true, fmt.Sprintf("%d key steps, all named", len(res.KeySteps))
}

func checkParticipantsDeclared(res *iflow.ExtractionResult) (bool, string) {
	if len(res.Senders) == 0 && len(res.Receivers) == 0 {
		return false, "no sender or receiver participants found"
	}
	if len(res.Senders) == 0 {
		return false, "no sender participants found"
	}
	if len(res.Receivers) == 0 {
		return false, "no receiver participants found"
	}
	return true, fmt.Sprintf("%d sender(s), %d receiver(s)", len(res.Senders), len(res.Receivers))
}

func checkCleanExtraction(res *iflow.ExtractionResult) (bool, string) {
	if len(res.ProcessingErrors) > 0 {
		return false, fmt.Sprintf("%d processing errors during extraction", len(res.ProcessingErrors))
	}
	return true, "artifact analyzed without processing errors"
}
