package iflow

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Parser recovers the structural model of an IFlow definition from XML
// text. It tries each namespace profile in order and keeps the results of
// the first profile that yields any structural signal (a participant or a
// process). When the document cannot be parsed as XML at all, or no
// profile yields a signal, it degrades to regex-based extraction.
type Parser struct {
	profiles []NamespaceProfile
	log      *logrus.Logger
}

// NewParser returns a parser using the default namespace profile list.
func NewParser(log *logrus.Logger) *Parser {
	return &Parser{profiles: DefaultProfiles(), log: log}
}

// Parse extracts structural information from content into res. The return
// value reports whether a structured (profile-based) parse succeeded;
// false means the regex fallback was used. Emptiness of the result is not
// an error either way.
func (p *Parser) Parse(content string, res *ExtractionResult) bool {
	root, err := parseDocument(content)
	if err != nil {
		p.log.WithError(err).Warn("XML parsing failed, falling back to regex extraction")
		res.addProcessingError(fmt.Sprintf("xml parse failed: %v", err))
		extractWithRegex(content, res)
		return false
	}

	for _, profile := range p.profiles {
		if p.extractWithProfile(root, profile, res) {
			p.log.WithField("profile", profile.Name).Debug("structural extraction succeeded")
			return true
		}
	}

	p.log.Warn("no namespace profile yielded structural elements, falling back to regex extraction")
	extractWithRegex(content, res)
	return false
}

// extractWithProfile runs every element extractor under one profile.
// It reports false without touching res when the profile finds neither
// participants nor processes.
func (p *Parser) extractWithProfile(root *element, profile NamespaceProfile, res *ExtractionResult) bool {
	participants := root.findAll(profile.bpmnMatcher("participant"))
	processes := root.findAll(profile.bpmnMatcher("process"))
	if len(participants) == 0 && len(processes) == 0 {
		return false
	}

	p.run(res, "purpose", func() { p.extractPurpose(root, profile, res) })
	p.run(res, "workflow", func() { p.extractWorkflow(processes, profile, res) })
	p.run(res, "key steps", func() { p.extractKeySteps(root, profile, res) })
	p.run(res, "adapters", func() { p.extractAdapters(root, profile, res) })
	p.run(res, "participants", func() { p.extractParticipants(participants, profile, res) })
	p.run(res, "mappings", func() { p.extractMappings(root, profile, res) })
	p.run(res, "parameters", func() { p.extractParameters(root, profile, res) })
	p.run(res, "error handling", func() { p.extractErrorHandling(root, profile, res) })
	p.run(res, "connections", func() { p.extractConnections(root, profile, res) })
	return true
}

// run executes one extractor, converting a panic into a processing error
// so a single bad element never aborts the rest of the extraction.
func (p *Parser) run(res *ExtractionResult, step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("%s extractor failed: %v", step, r)
			p.log.Warn(msg)
			res.addProcessingError(msg)
		}
	}()
	fn()
}

func (p *Parser) extractPurpose(root *element, profile NamespaceProfile, res *ExtractionResult) {
	collaboration := root.findFirst(profile.bpmnMatcher("collaboration"))
	if collaboration == nil {
		return
	}
	purpose := collaboration.name("Not specified")
	var names []string
	for _, proc := range root.findAll(profile.bpmnMatcher("process")) {
		names = append(names, proc.name(""))
	}
	if len(names) > 0 {
		purpose += " involving processes: " + strings.Join(names, ", ")
	}
	res.Purpose = purpose
}

// workflow step element names, in the order they are searched.
var stepLocals = []string{"startEvent", "serviceTask", "callActivity", "endEvent", "subProcess"}

func (p *Parser) extractWorkflow(processes []*element, profile NamespaceProfile, res *ExtractionResult) {
	for _, proc := range processes {
		var steps []string
		for _, el := range proc.findAll(profile.anyBPMNMatcher(stepLocals...)) {
			steps = append(steps, el.name(el.Local))
		}
		if len(steps) > 0 {
			res.Workflow = append(res.Workflow, ProcessFlow{Process: proc.name("Unnamed Process"), Steps: steps})
		}
	}
}

func (p *Parser) extractKeySteps(root *element, profile NamespaceProfile, res *ExtractionResult) {
	for _, task := range root.findAll(profile.anyBPMNMatcher("serviceTask", "callActivity")) {
		props := elementProperties(task, profile)
		activityType := ""
		for _, prop := range props {
			switch strings.ToLower(prop.Key) {
			case "activitytype", "activity_type", "type":
				activityType = prop.Value
			}
			if activityType != "" {
				break
			}
		}
		if activityType == "" {
			activityType = task.Local
		}
		res.KeySteps = append(res.KeySteps, KeyStep{
			Name:       task.name("Unnamed Task"),
			Type:       activityType,
			Properties: props,
		})
	}
}

func (p *Parser) extractAdapters(root *element, profile NamespaceProfile, res *ExtractionResult) {
	for _, flow := range root.findAll(profile.bpmnMatcher("messageFlow")) {
		componentType := ""
		for _, prop := range elementProperties(flow, profile) {
			switch prop.Key {
			case "ComponentType", "adapterType", "adapter", "type":
				componentType = prop.Value
			}
			if componentType != "" {
				break
			}
		}
		if componentType == "" {
			componentType, _ = flow.attr("type")
		}
		if componentType != "" {
			res.addAdapter(componentType)
		}
	}
}

func (p *Parser) extractParticipants(participants []*element, profile NamespaceProfile, res *ExtractionResult) {
	for _, part := range participants {
		participantType, ok := part.attrNS(nsIFL, "type")
		if !ok {
			participantType, _ = part.attr("type")
		}

		name := part.name("Unnamed")
		props := elementProperties(part, profile)

		if participantType == "" {
			for _, prop := range props {
				switch strings.ToLower(prop.Key) {
				case "type", "participanttype", "role":
					participantType = prop.Value
				}
				if participantType != "" {
					break
				}
			}
		}

		entry := Participant{Name: name, Properties: props}
		for _, prop := range props {
			if prop.Key == "ComponentType" {
				entry.AdapterType = prop.Value
				break
			}
		}

		// Explicit type classification wins; the name heuristic only
		// applies to participants that look like endpoints but carry no
		// type information. A participant is never classified as both.
		lowerType := strings.ToLower(participantType)
		switch {
		case strings.Contains(lowerType, "sender"):
			res.Senders = append(res.Senders, entry)
		case strings.Contains(lowerType, "receiver"):
			res.Receivers = append(res.Receivers, entry)
		case participantType == "" && looksLikeEndpoint(props):
			lowerName := strings.ToLower(name)
			if containsAny(lowerName, "sender", "source", "from") {
				res.Senders = append(res.Senders, entry)
			} else if containsAny(lowerName, "receiver", "target", "to", "destination") {
				res.Receivers = append(res.Receivers, entry)
			}
		}
	}
}

func looksLikeEndpoint(props []Property) bool {
	for _, prop := range props {
		lower := strings.ToLower(prop.Key)
		if lower == "address" || strings.Contains(lower, "url") {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (p *Parser) extractMappings(root *element, profile NamespaceProfile, res *ExtractionResult) {
	for _, activity := range root.findAll(profile.bpmnMatcher("callActivity")) {
		props := elementProperties(activity, profile)

		mappingName := ""
		mappingURI := "Not specified"
		for _, prop := range props {
			switch strings.ToLower(prop.Key) {
			case "mappingname", "mapping_name":
				mappingName = prop.Value
			case "mappinguri", "mapping_uri":
				mappingURI = prop.Value
			}
		}
		if mappingName == "" {
			if name, ok := activity.attr("name"); ok && strings.Contains(strings.ToLower(name), "map") {
				mappingName = name
			}
		}
		if mappingName != "" {
			res.MappingEntities = append(res.MappingEntities, MappingEntity{
				Name:       mappingName,
				URI:        mappingURI,
				Properties: props,
			})
		}
	}

	// Direct mapping elements outside call activities.
	isMapping := func(e *element) bool { return profile.matchIFL(e, "mapping") }
	for _, mapping := range root.findAll(isMapping) {
		props := elementProperties(mapping, profile)
		name := mapping.name("Unnamed Mapping")
		uri := "Not specified"
		if v, ok := mapping.attr("uri"); ok {
			uri = v
		}
		for _, prop := range props {
			switch strings.ToLower(prop.Key) {
			case "name":
				name = prop.Value
			case "uri":
				uri = prop.Value
			}
		}
		res.MappingEntities = append(res.MappingEntities, MappingEntity{
			Name:       name,
			URI:        uri,
			Properties: props,
		})
	}
}

func (p *Parser) extractParameters(root *element, profile NamespaceProfile, res *ExtractionResult) {
	isProperty := func(e *element) bool { return e.Local == "property" }
	for _, prop := range root.findAll(isProperty) {
		keyEl := prop.childFirst(func(e *element) bool { return e.Local == "key" })
		valueEl := prop.childFirst(func(e *element) bool { return e.Local == "value" })

		switch {
		case keyEl != nil && valueEl != nil:
			res.Parameters = append(res.Parameters, Property{Key: keyEl.text(), Value: valueEl.text()})
		default:
			if k, ok := prop.attr("key"); ok {
				if v, ok := prop.attr("value"); ok {
					res.Parameters = append(res.Parameters, Property{Key: k, Value: v})
					continue
				}
			}
			if n, ok := prop.attr("name"); ok {
				if v, ok := prop.attr("value"); ok {
					res.Parameters = append(res.Parameters, Property{Key: n, Value: v})
				}
			}
		}
	}
}

func (p *Parser) extractErrorHandling(root *element, profile NamespaceProfile, res *ExtractionResult) {
	isErrorEvent := func(e *element) bool { return e.Local == "errorEventDefinition" }

	for _, sub := range root.findAll(profile.bpmnMatcher("subProcess")) {
		if sub.findFirst(isErrorEvent) != nil {
			res.ErrorHandling = append(res.ErrorHandling, ErrorHandlingInfo{
				Subprocess: sub.name("Unnamed Subprocess"),
				Details:    "Handles errors with error start and end events",
			})
			// Only an actual error-event definition counts as proper
			// error handling, not just error-flavored configuration.
			res.HasProperErrorHandling = true
			continue
		}
		for _, prop := range elementProperties(sub, profile) {
			if strings.EqualFold(prop.Key, "activityType") && strings.Contains(strings.ToLower(prop.Value), "error") {
				res.ErrorHandling = append(res.ErrorHandling, ErrorHandlingInfo{
					Subprocess: sub.name("Unnamed Subprocess"),
					Details:    "Error handling subprocess: " + prop.Value,
				})
				break
			}
		}
	}

	for _, local := range []string{"errorHandler", "deadLetterQueue"} {
		local := local
		matches := root.findAll(func(e *element) bool { return e.Local == local })
		for range matches {
			res.ErrorHandling = append(res.ErrorHandling, ErrorHandlingInfo{Details: local + " configured"})
		}
	}

	switch {
	case res.HasProperErrorHandling && len(res.ErrorHandling) == 0:
		res.ErrorHandling = append(res.ErrorHandling, ErrorHandlingInfo{
			Details: "Error handling properly configured with error subprocesses",
		})
	case len(res.ErrorHandling) > 0 && !res.HasProperErrorHandling:
		res.ErrorHandling = append(res.ErrorHandling, ErrorHandlingInfo{
			Details: "Basic error handling elements found but no proper error subprocesses",
		})
	case len(res.ErrorHandling) == 0:
		res.ErrorHandling = append(res.ErrorHandling, ErrorHandlingInfo{Details: "No error handling detected"})
	}
}

func (p *Parser) extractConnections(root *element, profile NamespaceProfile, res *ExtractionResult) {
	for _, flow := range root.findAll(profile.bpmnMatcher("messageFlow")) {
		props := elementProperties(flow, profile)
		conn := ConnectionDetail{
			Name:       flow.name("Unnamed Flow"),
			Properties: props,
		}
		for _, prop := range props {
			switch strings.ToLower(prop.Key) {
			case "address", "url", "uri", "endpoint":
				conn.Address = prop.Value
			case "transportprotocol", "transport_protocol", "protocol":
				conn.Protocol = prop.Value
			case "messageprotocol", "message_protocol", "format":
				conn.MessageProtocol = prop.Value
			}
		}
		res.ConnectionDetails = append(res.ConnectionDetails, conn)
	}
}

// elementProperties extracts key/value property pairs from the subtree of
// el. SAP tooling versions disagree on the property schema, so nested
// <key>/<value> child elements (namespaced or bare) are tried first, with
// key/value and name/value attribute pairs directly on property elements
// as fallbacks.
func elementProperties(el *element, profile NamespaceProfile) []Property {
	var props []Property
	isProperty := func(e *element) bool { return e.Local == "property" }

	for _, prop := range el.findAll(isProperty) {
		keyEl := prop.childFirst(func(e *element) bool { return e.Local == "key" })
		valueEl := prop.childFirst(func(e *element) bool { return e.Local == "value" })
		if keyEl != nil && valueEl != nil && keyEl.text() != "" {
			props = append(props, Property{Key: keyEl.text(), Value: valueEl.text()})
		}
	}

	if len(props) == 0 {
		if k, ok := el.attr("key"); ok {
			if v, ok := el.attr("value"); ok {
				props = append(props, Property{Key: k, Value: v})
			}
		}
		if n, ok := el.attr("name"); ok {
			if v, ok := el.attr("value"); ok {
				props = append(props, Property{Key: n, Value: v})
			}
		}
	}
	return props
}
