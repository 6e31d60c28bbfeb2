package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormPhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"(555) 123-4567", "+15551234567"},
		{"555.123.4567", "+15551234567"},
		{"1 555 123 4567", "+15551234567"},
		{"+1 (555) 123-4567", "+15551234567"},
		{"0044 20 7946 0958", "+442079460958"},
		{"+44 20 7946 0958", "+442079460958"},
		{"", ""},
		{"call me", ""},
		{"555#1234", ""},
		{"123", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormPhone(tt.in))
		})
	}
}

func TestAltPhones(t *testing.T) {
	got := altPhones("(555) 123-4567")
	assert.Equal(t, []string{"+15551234567", "(555) 123-4567", "5551234567", "15551234567"}, got)
}

func TestNormEmail(t *testing.T) {
	e, ok := NormEmail("  Ruth@Example.ORG ")
	assert.True(t, ok)
	assert.Equal(t, "ruth@example.org", e)

	_, ok = NormEmail("")
	assert.False(t, ok)
	_, ok = NormEmail("not-an-address")
	assert.False(t, ok)
}
