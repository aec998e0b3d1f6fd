package iflow

// XML namespace URIs emitted by the SAP Integration Suite design-time
// tooling. Different tooling versions prefix them differently (bpmn2:,
// bpmn:, or no prefix at all), which is why element lookup goes through
// an ordered list of namespace profiles instead of a single dictionary.
const (
	nsBPMNModel = "http://www.omg.org/spec/BPMN/20100524/MODEL"
	nsIFL       = "http:///com.sap.ifl.model/Ifl.xsd"
	nsBPMNDI    = "http://www.omg.org/spec/BPMN/20100524/DI"
)

// NamespaceProfile is an immutable description of one namespace layout an
// IFlow document may use. An empty URI means "accept elements in any
// namespace, including none", which makes the bare profile the last resort
// for documents that drop namespaces entirely.
type NamespaceProfile struct {
	Name string
	BPMN string
	IFL  string
	DI   string
}

// DefaultProfiles returns the ordered profile list tried by the structural
// parser, most specific first. The parser short-circuits on the first
// profile that yields any structural signal.
func DefaultProfiles() []NamespaceProfile {
	return []NamespaceProfile{
		{Name: "bpmn2+ifl+di", BPMN: nsBPMNModel, IFL: nsIFL, DI: nsBPMNDI},
		{Name: "bpmn+ifl", BPMN: nsBPMNModel, IFL: nsIFL},
		{Name: "bare"},
	}
}

// matchBPMN reports whether an element belongs to the profile's BPMN model
// namespace and has the given local name.
func (p NamespaceProfile) matchBPMN(e *element, local string) bool {
	if e.Local != local {
		return false
	}
	if p.BPMN == "" {
		return true
	}
	return e.Space == p.BPMN || e.Space == ""
}

// matchIFL is matchBPMN for the SAP IFL extension namespace.
func (p NamespaceProfile) matchIFL(e *element, local string) bool {
	if e.Local != local {
		return false
	}
	if p.IFL == "" {
		return true
	}
	return e.Space == p.IFL || e.Space == ""
}

// bpmnMatcher returns a predicate matching a BPMN element by local name
// under this profile.
func (p NamespaceProfile) bpmnMatcher(local string) func(*element) bool {
	return func(e *element) bool { return p.matchBPMN(e, local) }
}

// anyBPMNMatcher returns a predicate matching any of the local names.
func (p NamespaceProfile) anyBPMNMatcher(locals ...string) func(*element) bool {
	return func(e *element) bool {
		for _, l := range locals {
			if p.matchBPMN(e, l) {
				return true
			}
		}
		return false
	}
}
