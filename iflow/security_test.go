package iflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSecurityChecker_DirectBasicAuth tests that a literal Basic value is flagged
func TestSecurityChecker_DirectBasicAuth(t *testing.T) {
	content := `<ifl:property><key>authenticationMethod</key><value>Basic</value></ifl:property>`

	checker := NewSecurityChecker(testLogger())
	rep := checker.Check(content, nil)

	assert.False(t, rep.Compliant)
	assert.Contains(t, rep.Methods, "Basic")
	assert.Contains(t, rep.Issues, "Direct Basic Authentication detected: 'Basic'")
}

// TestSecurityChecker_DirectNonBasicAuth tests that a literal certificate value passes
func TestSecurityChecker_DirectNonBasicAuth(t *testing.T) {
	content := `<ifl:property><key>authenticationMethod</key><value>ClientCertificate</value></ifl:property>`

	checker := NewSecurityChecker(testLogger())
	rep := checker.Check(content, nil)

	assert.True(t, rep.Compliant)
	assert.Contains(t, rep.Methods, "ClientCertificate")
	assert.Empty(t, rep.Issues)
}

// TestSecurityChecker_UnresolvedParameter tests that an unresolvable placeholder stays neutral
func TestSecurityChecker_UnresolvedParameter(t *testing.T) {
	content := `<ifl:property><key>authenticationMethod</key><value>{{AUTH_METHOD}}</value></ifl:property>`

	checker := NewSecurityChecker(testLogger())
	rep := checker.Check(content, PropertyMap{})

	assert.True(t, rep.Compliant)
	assert.Empty(t, rep.Issues)
	assert.Contains(t, rep.Details, "Found parameterized authentication: {{AUTH_METHOD}}")
	assert.Contains(t, rep.Details, "Could not resolve parameter: 'AUTH_METHOD'")
}

// TestSecurityChecker_ParameterResolution tests placeholder resolution against the property map
func TestSecurityChecker_ParameterResolution(t *testing.T) {
	content := `<ifl:property><key>authenticationMethod</key><value>{{AUTH_METHOD}}</value></ifl:property>`

	tests := []struct {
		name          string
		props         PropertyMap
		wantCompliant bool
		wantMethod    string
	}{
		{
			name:          "ResolvedToBasic",
			props:         PropertyMap{"AUTH_METHOD": "Basic"},
			wantCompliant: false,
			wantMethod:    "Basic (from AUTH_METHOD)",
		},
		{
			name:          "ResolvedToCertificate",
			props:         PropertyMap{"AUTH_METHOD": "Client Certificate"},
			wantCompliant: true,
			wantMethod:    "Client Certificate (from AUTH_METHOD)",
		},
		{
			name:          "ResolvedToOAuth",
			props:         PropertyMap{"AUTH_METHOD": "OAuth2ClientCredentials"},
			wantCompliant: true,
			wantMethod:    "OAuth2ClientCredentials (from AUTH_METHOD)",
		},
		{
			name:          "ResolvedViaSuffix",
			props:         PropertyMap{"receiver_AUTH_METHOD": "OAuth"},
			wantCompliant: true,
			wantMethod:    "OAuth (from AUTH_METHOD)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewSecurityChecker(testLogger())
			rep := checker.Check(content, tt.props)

			assert.Equal(t, tt.wantCompliant, rep.Compliant)
			assert.Contains(t, rep.Methods, tt.wantMethod)
		})
	}
}

// TestSecurityChecker_MessageFlowAuth tests per-message-flow authentication detection
func TestSecurityChecker_MessageFlowAuth(t *testing.T) {
	content := `<?xml version="1.0"?>
<bpmn2:definitions xmlns:bpmn2="http://www.omg.org/spec/BPMN/20100524/MODEL"
                   xmlns:ifl="http:///com.sap.ifl.model/Ifl.xsd">
  <bpmn2:collaboration>
    <bpmn2:messageFlow name="Outbound">
      <bpmn2:extensionElements>
        <ifl:property><key>authenticationMethod</key><value>Basic</value></ifl:property>
      </bpmn2:extensionElements>
    </bpmn2:messageFlow>
  </bpmn2:collaboration>
</bpmn2:definitions>`

	checker := NewSecurityChecker(testLogger())
	rep := checker.Check(content, nil)

	assert.False(t, rep.Compliant)
	assert.Contains(t, rep.Issues, "Direct Basic Authentication detected in message flow: 'Basic'")
}

// TestSecurityChecker_KeywordFallback tests broad matching when no structured method was found
func TestSecurityChecker_KeywordFallback(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		wantCompliant bool
		wantMethod    string
	}{
		{
			name:          "BasicKeyword",
			content:       `<setting>basicAuthentication enabled</setting>`,
			wantCompliant: false,
			wantMethod:    "Basic Authentication (pattern match)",
		},
		{
			name:          "OAuthKeyword",
			content:       `<setting>uses OAuth Client Credentials</setting>`,
			wantCompliant: true,
			wantMethod:    "OAuth (pattern match)",
		},
		{
			name:          "CertificateKeyword",
			content:       `<setting>client certificate required</setting>`,
			wantCompliant: true,
			wantMethod:    "Certificate (pattern match)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewSecurityChecker(testLogger())
			rep := checker.Check(tt.content, nil)

			assert.Equal(t, tt.wantCompliant, rep.Compliant)
			assert.Contains(t, rep.Methods, tt.wantMethod)
		})
	}
}

// TestSecurityChecker_StrictMissingAuth tests the external-call-without-auth policy
func TestSecurityChecker_StrictMissingAuth(t *testing.T) {
	content := `<connection address="https://api.example.com/v1/orders"/>`

	strict := NewSecurityChecker(testLogger())
	rep := strict.Check(content, nil)
	assert.False(t, rep.Compliant)
	assert.Contains(t, rep.Issues, "Possible missing authentication for external services")

	relaxed := NewSecurityChecker(testLogger())
	relaxed.Strict = false
	rep = relaxed.Check(content, nil)
	assert.True(t, rep.Compliant)
	assert.Empty(t, rep.Issues)
}

// TestSecurityChecker_PropertyCrossReference tests method detection from the property map alone
func TestSecurityChecker_PropertyCrossReference(t *testing.T) {
	checker := NewSecurityChecker(testLogger())
	rep := checker.Check("<flow/>", PropertyMap{
		"receiver.authenticationMethod": "ClientCertificate",
		"sender.auth_type":              "oauth2",
	})

	assert.Contains(t, rep.Methods, "Certificate (from property)")
	assert.Contains(t, rep.Methods, "OAuth (from property)")
	assert.True(t, rep.Compliant)
}

// TestSecurityChecker_Deduplication tests that repeated findings collapse to one entry
func TestSecurityChecker_Deduplication(t *testing.T) {
	content := `<a><key>authenticationMethod</key><value>Basic</value></a>
<b><key>authenticationMethod</key><value>Basic</value></b>`

	checker := NewSecurityChecker(testLogger())
	rep := checker.Check(content, nil)

	assert.Equal(t, []string{"Basic"}, rep.Methods)
	assert.Len(t, rep.Issues, 1)
}
