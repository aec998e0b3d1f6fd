package iflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertNoScratchDirs fails when leftover extraction directories exist in dir.
func assertNoScratchDirs(t *testing.T, dir string) {
	t.Helper()
	leftovers, err := filepath.Glob(filepath.Join(dir, "extracted_*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "scratch directories must be removed after analysis")
}

// TestAnalyzer_MissingFile tests that a nonexistent path yields an error record
func TestAnalyzer_MissingFile(t *testing.T) {
	analyzer := NewAnalyzer(testLogger())
	res := analyzer.Analyze(filepath.Join(t.TempDir(), "nope.zip"))

	require.NotNil(t, res)
	assert.Contains(t, res.Error, "file does not exist")
	assert.Empty(t, res.Senders)
}

// TestAnalyzer_CorruptArchive tests that an unreadable ZIP yields an error record, not a panic
func TestAnalyzer_CorruptArchive(t *testing.T) {
	dir := t.TempDir()
	badPath := filepath.Join(dir, "corrupt.zip")
	require.NoError(t, os.WriteFile(badPath, []byte("PK garbage garbage"), 0o644))

	analyzer := NewAnalyzer(testLogger())
	res := analyzer.Analyze(badPath)

	assert.Contains(t, res.Error, "extraction error")
	assertNoScratchDirs(t, dir)
}

// TestAnalyzer_ArchiveWithoutDefinitions tests metadata extraction from a definition-free archive
func TestAnalyzer_ArchiveWithoutDefinitions(t *testing.T) {
	dir := t.TempDir()
	zipPath := createTestZip(t, dir, "empty.zip", map[string]string{
		"metainfo.prop": "iflowName=Metadata Only",
	})

	analyzer := NewAnalyzer(testLogger())
	res := analyzer.Analyze(zipPath)

	assert.Empty(t, res.Error)
	assert.Equal(t, "Metadata Only", res.ArtifactName)
	assert.Contains(t, res.ProcessingErrors, "no IFlow definition files found in archive")
	assertNoScratchDirs(t, dir)
}

// TestAnalyzer_FullArchive tests the end-to-end analysis of a realistic artifact archive
func TestAnalyzer_FullArchive(t *testing.T) {
	dir := t.TempDir()
	zipPath := createTestZip(t, dir, "orderflow.zip", map[string]string{
		".project":        `<projectDescription><name>ProjectName</name></projectDescription>`,
		"metainfo.prop":   "artifactDisplayName=Order Flow\ndescription=replicates orders",
		"parameters.prop": "AUTH_METHOD=OAuth2ClientCredentials",
		"META-INF/MANIFEST.MF": "Manifest-Version: 1.0\nBundle-SymbolicName: com.example.order\n" +
			" flow\n",
		"src/main/resources/scenarioflows/integrationflow/orderflow.iflw": sampleIFlowXML,
	})

	analyzer := NewAnalyzer(testLogger())
	res := analyzer.Analyze(zipPath)

	require.Empty(t, res.Error)
	assert.Equal(t, "Order Flow", res.ArtifactName)
	assert.Equal(t, "replicates orders", res.MetaInfo["description"])
	assert.Equal(t, "com.example.orderflow", res.Manifest["Bundle-SymbolicName"])

	require.Len(t, res.Senders, 1)
	require.Len(t, res.Receivers, 1)
	assert.True(t, res.HasProperErrorHandling)

	assert.Contains(t, res.ProjectFiles, ".project")
	assert.Contains(t, res.ProjectFiles, "metainfo.prop")
	assert.Contains(t, res.ProjectFiles, filepath.Join("src", "main", "resources", "scenarioflows", "integrationflow", "orderflow.iflw"))

	assertNoScratchDirs(t, dir)
}

// TestAnalyzer_SecurityParameterResolution tests that archive properties feed the security check
func TestAnalyzer_SecurityParameterResolution(t *testing.T) {
	flowWithParam := `<?xml version="1.0"?>
<bpmn2:definitions xmlns:bpmn2="http://www.omg.org/spec/BPMN/20100524/MODEL"
                   xmlns:ifl="http:///com.sap.ifl.model/Ifl.xsd">
  <bpmn2:collaboration name="Secured Flow">
    <bpmn2:participant name="Sender" ifl:type="EndpointSender"/>
    <bpmn2:participant name="Receiver" ifl:type="EndpointReceiver"/>
    <bpmn2:messageFlow name="Out">
      <bpmn2:extensionElements>
        <ifl:property><key>authenticationMethod</key><value>{{AUTH_METHOD}}</value></ifl:property>
      </bpmn2:extensionElements>
    </bpmn2:messageFlow>
  </bpmn2:collaboration>
</bpmn2:definitions>`

	tests := []struct {
		name          string
		authValue     string
		wantCompliant bool
		wantMethod    string
	}{
		{
			name:          "ResolvedToBasic",
			authValue:     "Basic",
			wantCompliant: false,
			wantMethod:    "Basic (from AUTH_METHOD)",
		},
		{
			name:          "ResolvedToCertificate",
			authValue:     "Client Certificate",
			wantCompliant: true,
			wantMethod:    "Client Certificate (from AUTH_METHOD)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			zipPath := createTestZip(t, dir, "secured.zip", map[string]string{
				"parameters.prop": "AUTH_METHOD=" + tt.authValue,
				"flow.iflw":       flowWithParam,
			})

			analyzer := NewAnalyzer(testLogger())
			res := analyzer.Analyze(zipPath)

			require.Empty(t, res.Error)
			assert.Equal(t, tt.wantCompliant, res.SecurityCompliant)
			assert.Contains(t, res.SecurityMethods, tt.wantMethod)
		})
	}
}

// TestAnalyzer_BareXMLFile tests analyzing a definition file outside an archive
func TestAnalyzer_BareXMLFile(t *testing.T) {
	dir := t.TempDir()
	xmlPath := filepath.Join(dir, "flow.xml")
	require.NoError(t, os.WriteFile(xmlPath, []byte(sampleIFlowXML), 0o644))

	analyzer := NewAnalyzer(testLogger())
	res := analyzer.AnalyzeArtifact(xmlPath, "artifact-42", "Named Flow")

	require.Empty(t, res.Error)
	assert.Equal(t, "artifact-42", res.ArtifactID)
	assert.Equal(t, "Named Flow", res.ArtifactName)
	require.Len(t, res.Senders, 1)
	require.Len(t, res.Receivers, 1)
	assert.Contains(t, res.ProjectFiles, "flow.xml")
}

// TestAnalyzer_SiblingParametersForBareFile tests parameters.prop pickup next to a bare definition
func TestAnalyzer_SiblingParametersForBareFile(t *testing.T) {
	dir := t.TempDir()
	xmlPath := filepath.Join(dir, "flow.xml")
	content := `<definitions>
  <collaboration name="Flow">
    <participant name="Sender" type="EndpointSender"/>
    <messageFlow name="Out">
      <extensionElements>
        <property><key>authenticationMethod</key><value>{{AUTH_METHOD}}</value></property>
      </extensionElements>
    </messageFlow>
  </collaboration>
</definitions>`
	require.NoError(t, os.WriteFile(xmlPath, []byte(content), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "parameters.prop"), []byte("AUTH_METHOD=OAuth"), 0o644))

	analyzer := NewAnalyzer(testLogger())
	res := analyzer.Analyze(xmlPath)

	assert.Contains(t, res.SecurityMethods, "OAuth (from AUTH_METHOD)")
	assert.Contains(t, res.ProjectFiles, "parameters.prop")
	assert.True(t, res.SecurityCompliant)
}

// TestAnalyzer_MisnamedZip tests content sniffing for a ZIP with a wrong extension
func TestAnalyzer_MisnamedZip(t *testing.T) {
	dir := t.TempDir()
	zipPath := createTestZip(t, dir, "artifact.dat", map[string]string{
		"flow.iflw": sampleIFlowXML,
	})

	analyzer := NewAnalyzer(testLogger())
	res := analyzer.Analyze(zipPath)

	require.Empty(t, res.Error)
	require.Len(t, res.Senders, 1)
	assertNoScratchDirs(t, dir)
}

// TestAnalyzer_NameFromDownloadConvention tests artifact naming from the download filename pattern
func TestAnalyzer_NameFromDownloadConvention(t *testing.T) {
	dir := t.TempDir()
	xmlPath := filepath.Join(dir, "Order_Sync____20240101120000.xml")
	require.NoError(t, os.WriteFile(xmlPath, []byte(sampleIFlowXML), 0o644))

	analyzer := NewAnalyzer(testLogger())
	res := analyzer.Analyze(xmlPath)

	assert.Equal(t, "Order_Sync", res.ArtifactName)
}

// TestAnalyzer_Idempotent tests that analyzing the same artifact twice yields equal results
func TestAnalyzer_Idempotent(t *testing.T) {
	dir := t.TempDir()
	zipPath := createTestZip(t, dir, "orderflow.zip", map[string]string{
		"metainfo.prop": "iflowName=Order Flow",
		"flow.iflw":     sampleIFlowXML,
	})

	analyzer := NewAnalyzer(testLogger())
	first := analyzer.Analyze(zipPath)
	second := analyzer.Analyze(zipPath)

	assert.Equal(t, first, second)
	assertNoScratchDirs(t, dir)
}
