package iflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// SecurityReport is the outcome of the compliance analysis for one piece
// of content.
type SecurityReport struct {
	Methods   []string `json:"detected_methods"`
	Compliant bool     `json:"is_compliant"`
	Issues    []string `json:"issues"`
	Details   []string `json:"details"`
}

// SecurityChecker runs the layered authentication-compliance heuristic
// over raw IFlow content and a resolved property map.
//
// The same fact (which authentication method a connection uses) can appear
// in four independent representations: a literal value, a parameterized
// {{name}} value resolved from a properties file, a per-message-flow
// property, or a bare keyword somewhere in the content. The checker runs
// an ordered pipeline of detector stages, each contributing partial
// findings that are merged and deduplicated at the end; no stage is
// exclusive, and Basic Authentication from any stage flips compliance.
//
// Strict controls the final missing-authentication policy: when true
// (the default), content that shows external-call patterns but yielded no
// detected method at all is reported as non-compliant. The policy is
// heuristic and can misfire on documentation-only URL mentions, so it is
// a switch rather than a hard rule.
type SecurityChecker struct {
	Strict   bool
	profiles []NamespaceProfile
	log      *logrus.Logger
}

// NewSecurityChecker returns a checker with the strict
// missing-authentication policy enabled.
func NewSecurityChecker(log *logrus.Logger) *SecurityChecker {
	return &SecurityChecker{Strict: true, profiles: DefaultProfiles(), log: log}
}

// Direct authenticationMethod declarations, in the spelling variants seen
// across SAP tooling versions: nested key/value elements and attributes.
var directAuthPatterns = []*regexp.Regexp{
	regexp.MustCompile(`<key>authenticationMethod</key>\s*<value>([^<]+)</value>`),
	regexp.MustCompile(`<key>authentication[mM]ethod</key>\s*<value>([^<]+)</value>`),
	regexp.MustCompile(`<key>auth[mM]ethod</key>\s*<value>([^<]+)</value>`),
	regexp.MustCompile(`authentication[mM]ethod="([^"]+)"`),
	regexp.MustCompile(`auth[mM]ethod="([^"]+)"`),
}

// Parameterized declarations: the same key positions carrying a {{name}}
// placeholder resolved at deployment time.
var paramAuthPatterns = []*regexp.Regexp{
	regexp.MustCompile(`<key>authenticationMethod</key>\s*<value>\{\{([^}]+)\}\}</value>`),
	regexp.MustCompile(`<key>authentication[mM]ethod</key>\s*<value>\{\{([^}]+)\}\}</value>`),
	regexp.MustCompile(`<key>auth[mM]ethod</key>\s*<value>\{\{([^}]+)\}\}</value>`),
	regexp.MustCompile(`authentication[mM]ethod="\{\{([^}]+)\}\}"`),
	regexp.MustCompile(`auth[mM]ethod="\{\{([^}]+)\}\}"`),
}

var (
	basicKeywordPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)basicAuthentication`),
		regexp.MustCompile(`(?i)Basic Authentication`),
		regexp.MustCompile(`(?i)BasicAuth`),
		regexp.MustCompile(`(?i)basic_auth`),
		regexp.MustCompile(`(?i)"authentication"\s*:\s*"basic"`),
		regexp.MustCompile(`(?i)"auth_type"\s*:\s*"basic"`),
	}
	oauthKeywordPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)oauth`),
		regexp.MustCompile(`Authorization Code`),
		regexp.MustCompile(`Client Credentials`),
		regexp.MustCompile(`Bearer`),
		regexp.MustCompile(`JWT`),
	}
	certKeywordPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)certificate`),
		regexp.MustCompile(`(?i)x509`),
		regexp.MustCompile(`(?i)client cert`),
		regexp.MustCompile(`(?i)mutual auth`),
	}
	externalCallPattern = regexp.MustCompile(`(?i)(https?://|endpoint|url|uri)`)
)

// Check analyzes content against props and returns the merged report.
// An internal error in any stage is recorded as a detail and never flips
// compliance by itself.
func (c *SecurityChecker) Check(content string, props PropertyMap) SecurityReport {
	if props == nil {
		props = PropertyMap{}
	}
	rep := SecurityReport{Compliant: true}

	c.stage(&rep, "direct pattern scan", func() { c.detectDirect(content, &rep) })
	c.stage(&rep, "parameterized pattern scan", func() { c.detectParameterized(content, props, &rep) })
	c.stage(&rep, "message flow walk", func() { c.inspectMessageFlows(content, props, &rep) })
	c.stage(&rep, "keyword fallback", func() {
		if len(rep.Methods) == 0 {
			c.keywordFallback(content, &rep)
		}
	})
	c.stage(&rep, "property cross-reference", func() { c.crossReferenceProperties(props, &rep) })

	rep.Methods = uniqueStrings(rep.Methods)
	rep.Issues = uniqueStrings(rep.Issues)
	rep.Details = uniqueStrings(rep.Details)

	if c.Strict && len(rep.Methods) == 0 && externalCallPattern.MatchString(content) {
		rep.Details = append(rep.Details, "External API calls detected but no authentication method identified")
		rep.Issues = append(rep.Issues, "Possible missing authentication for external services")
		rep.Compliant = false
	}

	return rep
}

// stage runs one detector, downgrading a panic to a detail entry.
func (c *SecurityChecker) stage(rep *SecurityReport, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("Error during security compliance check (%s): %v", name, r)
			c.log.Warn(msg)
			rep.Details = append(rep.Details, msg)
		}
	}()
	fn()
}

func isBasic(method string) bool {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "basic", "basic authentication":
		return true
	}
	return false
}

func (c *SecurityChecker) detectDirect(content string, rep *SecurityReport) {
	for _, pattern := range directAuthPatterns {
		for _, m := range pattern.FindAllStringSubmatch(content, -1) {
			method := strings.TrimSpace(m[1])
			if method == "" || strings.HasPrefix(method, "{{") {
				continue
			}
			rep.Methods = append(rep.Methods, method)
			if isBasic(method) {
				rep.Compliant = false
				rep.Issues = append(rep.Issues, fmt.Sprintf("Direct Basic Authentication detected: '%s'", method))
			}
		}
	}
}

func (c *SecurityChecker) detectParameterized(content string, props PropertyMap, rep *SecurityReport) {
	for _, pattern := range paramAuthPatterns {
		for _, m := range pattern.FindAllStringSubmatch(content, -1) {
			c.resolveParameterFinding(strings.TrimSpace(m[1]), props, rep, "")
		}
	}
}

// resolveParameterFinding resolves one {{name}} authentication parameter
// against the property map and records the outcome. An unresolved
// parameter is a detail, not an issue. The context suffix distinguishes
// global findings from per-message-flow ones.
func (c *SecurityChecker) resolveParameterFinding(paramName string, props PropertyMap, rep *SecurityReport, context string) {
	rep.Details = append(rep.Details, fmt.Sprintf("Found parameterized authentication%s: {{%s}}", context, paramName))

	resolved, ok := props.Resolve(paramName)
	if !ok {
		rep.Details = append(rep.Details, fmt.Sprintf("Could not resolve parameter%s: '%s'", context, paramName))
		return
	}
	rep.Methods = append(rep.Methods, fmt.Sprintf("%s (from %s)", resolved, paramName))
	if isBasic(resolved) {
		rep.Compliant = false
		rep.Issues = append(rep.Issues, fmt.Sprintf("Basic Authentication detected via parameter%s: '%s' = '%s'", context, paramName, resolved))
	}
}

// inspectMessageFlows re-runs the direct and parameterized checks scoped
// to each message flow's own properties, catching authentication declared
// per connection rather than globally.
func (c *SecurityChecker) inspectMessageFlows(content string, props PropertyMap, rep *SecurityReport) {
	root, err := parseDocument(content)
	if err != nil {
		rep.Details = append(rep.Details, fmt.Sprintf("XML parsing error during security check: %v", err))
		return
	}

	for _, profile := range c.profiles {
		flows := root.findAll(profile.bpmnMatcher("messageFlow"))
		if len(flows) == 0 {
			continue
		}
		for _, flow := range flows {
			for _, prop := range elementProperties(flow, profile) {
				if prop.Key != "authenticationMethod" {
					continue
				}
				value := strings.TrimSpace(prop.Value)
				if strings.HasPrefix(value, "{{") && strings.HasSuffix(value, "}}") {
					paramName := strings.TrimSpace(value[2 : len(value)-2])
					c.resolveParameterFinding(paramName, props, rep, " in message flow")
					continue
				}
				rep.Methods = append(rep.Methods, value)
				if isBasic(value) {
					rep.Compliant = false
					rep.Issues = append(rep.Issues, fmt.Sprintf("Direct Basic Authentication detected in message flow: '%s'", value))
				}
			}
		}
		// First profile that locates message flows wins.
		break
	}
}

// keywordFallback does broad pattern matching when nothing was detected
// through structured means. A Basic match is a violation; OAuth and
// Certificate matches are recorded without asserting compliance either
// way.
func (c *SecurityChecker) keywordFallback(content string, rep *SecurityReport) {
	for _, pattern := range basicKeywordPatterns {
		if pattern.MatchString(content) {
			rep.Methods = append(rep.Methods, "Basic Authentication (pattern match)")
			rep.Compliant = false
			rep.Issues = append(rep.Issues, "Basic Authentication detected via string pattern")
			break
		}
	}
	for _, pattern := range oauthKeywordPatterns {
		if pattern.MatchString(content) {
			rep.Methods = append(rep.Methods, "OAuth (pattern match)")
			break
		}
	}
	for _, pattern := range certKeywordPatterns {
		if pattern.MatchString(content) {
			rep.Methods = append(rep.Methods, "Certificate (pattern match)")
			break
		}
	}
}

// crossReferenceProperties records property-sourced, lower-confidence
// method detections from the resolved property map itself.
func (c *SecurityChecker) crossReferenceProperties(props PropertyMap, rep *SecurityReport) {
	for key, value := range props {
		lowerKey := strings.ToLower(key)
		lowerValue := strings.ToLower(value)
		if strings.Contains(lowerKey, "authenticationmethod") && strings.Contains(lowerValue, "certificate") {
			rep.Methods = append(rep.Methods, "Certificate (from property)")
		}
		if (strings.Contains(lowerKey, "authenticationmethod") || strings.Contains(lowerKey, "auth_type")) &&
			strings.Contains(lowerValue, "oauth") {
			rep.Methods = append(rep.Methods, "OAuth (from property)")
		}
	}
}

// uniqueStrings deduplicates preserving first-seen order.
func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if out == nil {
		return []string{}
	}
	return out
}
