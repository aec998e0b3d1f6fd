package iflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleIFlowXML is a trimmed but structurally faithful IFlow definition:
// one sender, one receiver, one message flow and a process with an
// error-handling subprocess.
const sampleIFlowXML = `<?xml version="1.0" encoding="UTF-8"?>
<bpmn2:definitions xmlns:bpmn2="http://www.omg.org/spec/BPMN/20100524/MODEL"
                   xmlns:ifl="http:///com.sap.ifl.model/Ifl.xsd"
                   xmlns:bpmndi="http://www.omg.org/spec/BPMN/20100524/DI">
  <bpmn2:collaboration id="Collaboration_1" name="Order Replication">
    <bpmn2:participant id="Participant_1" ifl:type="EndpointSender" name="ERP Sender">
      <bpmn2:extensionElements>
        <ifl:property><key>ComponentType</key><value>HTTPS</value></ifl:property>
      </bpmn2:extensionElements>
    </bpmn2:participant>
    <bpmn2:participant id="Participant_2" ifl:type="EndpointReceiver" name="CRM Receiver">
      <bpmn2:extensionElements>
        <ifl:property><key>ComponentType</key><value>SOAP</value></ifl:property>
      </bpmn2:extensionElements>
    </bpmn2:participant>
    <bpmn2:messageFlow id="MessageFlow_1" name="SOAP Outbound" sourceRef="Participant_1" targetRef="Participant_2">
      <bpmn2:extensionElements>
        <ifl:property><key>ComponentType</key><value>SOAP</value></ifl:property>
        <ifl:property><key>address</key><value>https://crm.example.com/orders</value></ifl:property>
        <ifl:property><key>transportProtocol</key><value>HTTPS</value></ifl:property>
      </bpmn2:extensionElements>
    </bpmn2:messageFlow>
  </bpmn2:collaboration>
  <bpmn2:process id="Process_1" name="Integration Process">
    <bpmn2:startEvent id="StartEvent_1" name="Start"/>
    <bpmn2:callActivity id="CallActivity_1" name="Map Order">
      <bpmn2:extensionElements>
        <ifl:property><key>activityType</key><value>Mapping</value></ifl:property>
        <ifl:property><key>mappingname</key><value>OrderMapping</value></ifl:property>
        <ifl:property><key>mappinguri</key><value>dir://mmap/src/main/resources/mapping/OrderMapping.mmap</value></ifl:property>
      </bpmn2:extensionElements>
    </bpmn2:callActivity>
    <bpmn2:serviceTask id="ServiceTask_1" name="Enrich Order">
      <bpmn2:extensionElements>
        <ifl:property><key>activityType</key><value>Enricher</value></ifl:property>
      </bpmn2:extensionElements>
    </bpmn2:serviceTask>
    <bpmn2:subProcess id="SubProcess_1" name="Exception Subprocess">
      <bpmn2:startEvent id="StartEvent_2" name="Error Start">
        <bpmn2:errorEventDefinition/>
      </bpmn2:startEvent>
      <bpmn2:endEvent id="EndEvent_2" name="Error End"/>
    </bpmn2:subProcess>
    <bpmn2:endEvent id="EndEvent_1" name="End"/>
  </bpmn2:process>
</bpmn2:definitions>`

// TestParser_Parse_StructuredDocument tests the full extraction pass over a BPMN2 document
func TestParser_Parse_StructuredDocument(t *testing.T) {
	parser := NewParser(testLogger())
	res := NewExtractionResult("sample.iflw")

	ok := parser.Parse(sampleIFlowXML, res)
	require.True(t, ok, "structured parse should succeed")

	assert.Contains(t, res.Purpose, "Order Replication")
	assert.Contains(t, res.Purpose, "Integration Process")

	require.Len(t, res.Senders, 1)
	assert.Equal(t, "ERP Sender", res.Senders[0].Name)
	assert.Equal(t, "HTTPS", res.Senders[0].AdapterType)

	require.Len(t, res.Receivers, 1)
	assert.Equal(t, "CRM Receiver", res.Receivers[0].Name)
	assert.Equal(t, "SOAP", res.Receivers[0].AdapterType)

	assert.Contains(t, res.AdaptersUsed, "SOAP")

	require.Len(t, res.Workflow, 1)
	assert.Equal(t, "Integration Process", res.Workflow[0].Process)
	assert.Contains(t, res.Workflow[0].Steps, "Start")
	assert.Contains(t, res.Workflow[0].Steps, "Enrich Order")
	assert.Contains(t, res.Workflow[0].Steps, "End")

	var stepTypes []string
	for _, step := range res.KeySteps {
		stepTypes = append(stepTypes, step.Type)
	}
	assert.Contains(t, stepTypes, "Mapping")
	assert.Contains(t, stepTypes, "Enricher")

	require.NotEmpty(t, res.MappingEntities)
	assert.Equal(t, "OrderMapping", res.MappingEntities[0].Name)
	assert.Contains(t, res.MappingEntities[0].URI, "OrderMapping.mmap")

	assert.True(t, res.HasProperErrorHandling)
	var errDetails []string
	for _, eh := range res.ErrorHandling {
		errDetails = append(errDetails, eh.Details)
	}
	assert.Contains(t, errDetails, "Handles errors with error start and end events")

	require.Len(t, res.ConnectionDetails, 1)
	assert.Equal(t, "SOAP Outbound", res.ConnectionDetails[0].Name)
	assert.Equal(t, "https://crm.example.com/orders", res.ConnectionDetails[0].Address)
	assert.Equal(t, "HTTPS", res.ConnectionDetails[0].Protocol)

	assert.Empty(t, res.ProcessingErrors)
}

// TestParser_Parse_UnprefixedNamespace tests that documents without namespace prefixes still parse
func TestParser_Parse_UnprefixedNamespace(t *testing.T) {
	content := `<?xml version="1.0"?>
<definitions>
  <collaboration name="Plain Flow">
    <participant name="Sender System" type="EndpointSender"/>
    <participant name="Receiver System" type="EndpointReceiver"/>
  </collaboration>
  <process name="Main">
    <startEvent name="Start"/>
    <endEvent name="End"/>
  </process>
</definitions>`

	parser := NewParser(testLogger())
	res := NewExtractionResult("plain.xml")

	ok := parser.Parse(content, res)
	require.True(t, ok)

	require.Len(t, res.Senders, 1)
	assert.Equal(t, "Sender System", res.Senders[0].Name)
	require.Len(t, res.Receivers, 1)
	require.Len(t, res.Workflow, 1)
	assert.Equal(t, []string{"Start", "End"}, res.Workflow[0].Steps)
}

// TestParser_Parse_MalformedXMLFallsBack tests regex degradation on broken XML
func TestParser_Parse_MalformedXMLFallsBack(t *testing.T) {
	content := `<sender type="HTTP"></sender><receiver type="SOAP"></receiver><broken`

	parser := NewParser(testLogger())
	res := NewExtractionResult("broken.xml")

	ok := parser.Parse(content, res)
	assert.False(t, ok)
	assert.NotEmpty(t, res.ProcessingErrors)
	require.Len(t, res.Senders, 1)
	assert.Equal(t, "HTTP", res.Senders[0].AdapterType)
	require.Len(t, res.Receivers, 1)
	assert.Equal(t, "SOAP", res.Receivers[0].AdapterType)
}

// TestParser_Parse_NoStructuralSignalFallsBack tests fallback on valid but unrelated XML
func TestParser_Parse_NoStructuralSignalFallsBack(t *testing.T) {
	content := `<config name="SomeConfig"><entry>value</entry></config>`

	parser := NewParser(testLogger())
	res := NewExtractionResult("config.xml")

	ok := parser.Parse(content, res)
	assert.False(t, ok)
	assert.Equal(t, "SomeConfig", res.ArtifactName)
}

// TestParser_Parse_Idempotent tests that parsing the same content twice yields equal results
func TestParser_Parse_Idempotent(t *testing.T) {
	parser := NewParser(testLogger())

	first := NewExtractionResult("sample.iflw")
	second := NewExtractionResult("sample.iflw")
	parser.Parse(sampleIFlowXML, first)
	parser.Parse(sampleIFlowXML, second)

	assert.Equal(t, first, second)
}
