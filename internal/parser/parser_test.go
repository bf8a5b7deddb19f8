package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCodeBareSixDigitsWinsOverLabeledCode(t *testing.T) {
	// The pre-keyword 6-digit rule steals the match from the labeled code
	// later in the text. That is long-standing behavior callers depend on.
	code, ok := ExtractCode("Your package 654321 shipped. Use code: 1234 to track it.")
	assert.True(t, ok)
	assert.Equal(t, "654321", code)
}

func TestExtractCodeOTP(t *testing.T) {
	code, ok := ExtractCode("Your OTP is 824913")
	assert.True(t, ok)
	assert.Equal(t, "824913", code)
}

func TestExtractCodeKeywordPatterns(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"code with colon", "your code: 1234", "1234"},
		{"code with dash", "Code - 98765", "98765"},
		{"verification code", "Verification code: 4321", "4321"},
		{"pin", "Your PIN: 5678", "5678"},
		{"otp labeled", "OTP: 24689", "24689"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := ExtractCode(tt.text)
			assert.True(t, ok)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestExtractCodeStandaloneFallback(t *testing.T) {
	code, ok := ExtractCode("Your Uber code 9065 expires soon")
	assert.True(t, ok)
	assert.Equal(t, "9065", code)
}

func TestExtractCodeNoMatch(t *testing.T) {
	_, ok := ExtractCode("no digits to be found here")
	assert.False(t, ok)

	// Three digits are too short for the standalone fallback.
	_, ok = ExtractCode("order ref 123")
	assert.False(t, ok)
}

func TestStripHTML(t *testing.T) {
	got := StripHTML("<p>Hi <b>123456</b></p><script>evil()</script>")
	assert.Equal(t, "Hi 123456", got)
}

func TestStripHTMLStyleBlocksAndMultiline(t *testing.T) {
	markup := "<STYLE type=\"text/css\">\nbody { color: red }\n</STYLE>\n<div>\n  Your\n  code\n</div>"
	assert.Equal(t, "Your code", StripHTML(markup))
}
