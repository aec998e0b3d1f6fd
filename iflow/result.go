// Package iflow implements extraction and structural analysis of SAP
// Integration Suite design-time artifacts. Given a downloaded artifact
// archive (or a bare process definition), it recovers a normalized model
// of the integration flow (participants, adapters, mappings, parameters,
// error handling, connection details) and runs a layered security
// compliance check over the raw content and resolved configuration
// properties.
//
// The package is deliberately tolerant of malformed input: individual
// extraction steps degrade into entries of ExtractionResult.ProcessingErrors
// instead of failing the whole analysis, and XML parsing falls back to
// regex-based best-effort extraction when every namespace profile fails.
package iflow

// Property is a single key/value configuration pair attached to a BPMN
// element. Order of appearance in the source document is preserved.
type Property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ProcessFlow describes one BPMN process and the ordered names of its steps.
type ProcessFlow struct {
	Process string   `json:"process"`
	Steps   []string `json:"steps"`
}

// KeyStep is a service task or call activity considered a key processing
// step of the flow.
type KeyStep struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Properties []Property `json:"properties"`
}

// Participant is a collaboration participant classified as a sender or
// receiver system boundary.
type Participant struct {
	Name        string     `json:"name"`
	AdapterType string     `json:"adapter_type,omitempty"`
	Properties  []Property `json:"properties"`
}

// MappingEntity is a message or data mapping referenced by the flow.
type MappingEntity struct {
	Name       string     `json:"name"`
	URI        string     `json:"uri"`
	Properties []Property `json:"properties"`
}

// ErrorHandlingInfo describes one detected error-handling construct.
type ErrorHandlingInfo struct {
	Subprocess string `json:"subprocess,omitempty"`
	Details    string `json:"details"`
}

// ConnectionDetail describes one message flow between participants,
// including the adapter endpoint configuration when present.
type ConnectionDetail struct {
	Name            string     `json:"name"`
	Address         string     `json:"address,omitempty"`
	Protocol        string     `json:"protocol,omitempty"`
	MessageProtocol string     `json:"message_protocol,omitempty"`
	Properties      []Property `json:"properties"`
}

// ExtractionResult is the structured outcome of analyzing one artifact.
// It is created fresh per Analyze call and fully populated in one pass;
// callers treat it as an immutable snapshot.
//
// A non-empty Error field means the artifact could not be analyzed at all
// (missing file, unreadable archive). ProcessingErrors collect non-fatal
// issues encountered along the way and serve as a quality signal.
type ExtractionResult struct {
	SourcePath   string `json:"source_path"`
	ArtifactID   string `json:"artifact_id"`
	ArtifactName string `json:"artifact_name"`

	Purpose string `json:"purpose"`

	Workflow        []ProcessFlow       `json:"workflow"`
	KeySteps        []KeyStep           `json:"key_steps"`
	AdaptersUsed    []string            `json:"adapters_used"`
	Senders         []Participant       `json:"senders"`
	Receivers       []Participant       `json:"receivers"`
	MappingEntities []MappingEntity     `json:"mapping_entities"`
	Parameters      []Property          `json:"parameters"`
	ErrorHandling   []ErrorHandlingInfo `json:"error_handling"`

	HasProperErrorHandling bool `json:"has_proper_error_handling"`

	ConnectionDetails []ConnectionDetail `json:"connection_details"`

	SecurityMethods   []string `json:"security_methods"`
	SecurityCompliant bool     `json:"security_compliant"`
	SecurityIssues    []string `json:"security_issues"`
	SecurityDetails   []string `json:"security_details"`

	ProjectFiles []string          `json:"project_files"`
	MetaInfo     map[string]string `json:"meta_info"`
	Manifest     map[string]string `json:"manifest"`

	ProcessingErrors []string `json:"processing_errors"`
	Error            string   `json:"error,omitempty"`
}

// NewExtractionResult returns a result record with all collections
// initialized so that JSON serialization yields arrays and objects
// instead of nulls.
func NewExtractionResult(sourcePath string) *ExtractionResult {
	return &ExtractionResult{
		SourcePath:        sourcePath,
		ArtifactName:      "Unknown IFlow",
		Workflow:          []ProcessFlow{},
		KeySteps:          []KeyStep{},
		AdaptersUsed:      []string{},
		Senders:           []Participant{},
		Receivers:         []Participant{},
		MappingEntities:   []MappingEntity{},
		Parameters:        []Property{},
		ErrorHandling:     []ErrorHandlingInfo{},
		ConnectionDetails: []ConnectionDetail{},
		SecurityMethods:   []string{},
		SecurityIssues:    []string{},
		SecurityDetails:   []string{},
		ProjectFiles:      []string{},
		MetaInfo:          map[string]string{},
		Manifest:          map[string]string{},
		ProcessingErrors:  []string{},
	}
}

// addProcessingError records a non-fatal issue on the result.
func (r *ExtractionResult) addProcessingError(msg string) {
	r.ProcessingErrors = append(r.ProcessingErrors, msg)
}

// addAdapter records an adapter type once.
func (r *ExtractionResult) addAdapter(name string) {
	for _, a := range r.AdaptersUsed {
		if a == name {
			return
		}
	}
	r.AdaptersUsed = append(r.AdaptersUsed, name)
}
