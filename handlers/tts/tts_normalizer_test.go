package tts

import "testing"

func TestNormalizeTextForTTS(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"markdown stripped", "**Bold** and *italic* with `code`", "Bold and italic with code"},
		{"headers stripped", "# Heading text", "Heading text"},
		{"emoji removed", "Great job! 🎉🎉", "Great job!"},
		{"whitespace collapsed", "too   many\n\nspaces", "too many spaces"},
		{"plain text untouched", "Hello, how can I help?", "Hello, how can I help?"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizeTextForTTS(tc.in); got != tc.want {
				t.Fatalf("normalizeTextForTTS(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
