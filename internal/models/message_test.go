package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnrecoverableText(t *testing.T) {
	text := UnrecoverableText("message deleted or inaccessible")
	assert.Equal(t, "__UNRECOVERABLE__:message deleted or inaccessible", text)
}

func TestIsUnrecoverable(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected bool
	}{
		{"placeholder text", UnrecoverableText("gone"), true},
		{"empty reason", UnrecoverableText(""), true},
		{"regular text", "hello there", false},
		{"empty text", "", false},
		{"prefix in the middle", "note: __UNRECOVERABLE__: is a marker", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsUnrecoverable(tt.text))
		})
	}
}

func TestConfigError(t *testing.T) {
	err := ConfigError{Message: "recentSlots cannot exceed concurrency"}
	assert.Equal(t, "recentSlots cannot exceed concurrency", err.Error())
}
