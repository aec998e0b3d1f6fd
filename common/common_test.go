package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMaskSecret tests masking of sensitive values for logging
func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		expected string
	}{
		{name: "Empty", secret: "", expected: "<not set>"},
		{name: "Short", secret: "short", expected: "***"},
		{name: "ExactlyEight", secret: "12345678", expected: "***"},
		{name: "Long", secret: "sb-clientid!b1234|it!b5678", expected: "sb-c...5678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskSecret(tt.secret))
		})
	}
}

// TestGetEnv tests environment lookup with defaults
func TestGetEnv(t *testing.T) {
	t.Setenv("CIREVIEW_TEST_STR", "configured")
	assert.Equal(t, "configured", GetEnv("CIREVIEW_TEST_STR", "fallback"))
	assert.Equal(t, "fallback", GetEnv("CIREVIEW_TEST_MISSING", "fallback"))
}

// TestGetEnvInt tests integer parsing with fallback on bad input
func TestGetEnvInt(t *testing.T) {
	t.Setenv("CIREVIEW_TEST_INT", "42")
	assert.Equal(t, 42, GetEnvInt("CIREVIEW_TEST_INT", 7))

	t.Setenv("CIREVIEW_TEST_INT_BAD", "not-a-number")
	assert.Equal(t, 7, GetEnvInt("CIREVIEW_TEST_INT_BAD", 7))
	assert.Equal(t, 7, GetEnvInt("CIREVIEW_TEST_INT_MISSING", 7))
}

// TestGetEnvBool tests the accepted truthy and falsy spellings
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value    string
		expected bool
	}{
		{"true", true}, {"1", true}, {"yes", true}, {"on", true},
		{"false", false}, {"0", false}, {"no", false}, {"off", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("CIREVIEW_TEST_BOOL", tt.value)
			assert.Equal(t, tt.expected, GetEnvBool("CIREVIEW_TEST_BOOL", !tt.expected))
		})
	}

	t.Setenv("CIREVIEW_TEST_BOOL", "maybe")
	assert.True(t, GetEnvBool("CIREVIEW_TEST_BOOL", true))
}

// TestMust tests fail-fast initialization helpers
func TestMust(t *testing.T) {
	assert.Equal(t, "value", Must("value", nil))
	assert.Panics(t, func() {
		Must("", assert.AnError)
	})
	assert.NotPanics(t, func() {
		MustNoError(nil)
	})
	assert.Panics(t, func() {
		MustNoError(assert.AnError)
	})
}

// TestPtr tests pointer helpers
func TestPtr(t *testing.T) {
	p := Ptr(42)
	require.NotNil(t, p)
	assert.Equal(t, 42, *p)

	assert.Equal(t, 42, PtrValue(p))
	assert.Equal(t, 0, PtrValue[int](nil))
}
