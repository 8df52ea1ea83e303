package compiler

import "testing"

func TestToDOS(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"print \"hello\"\n", "print \"hello\"\r\n"},
		{"a\r\nb\r\n", "a\r\nb\r\n"},
		{"a\rb\nc", "ab\r\nc"},
		{"", ""},
		{"no newline", "no newline"},
	}
	for _, tt := range tests {
		if got := ToDOS(tt.in); got != tt.want {
			t.Errorf("ToDOS(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToUnix(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello\r\n", "hello\n"},
		{"a\r\nb\r\nc", "a\nb\nc"},
		{"stray\rcr\n", "straycr\n"},
		{"plain\n", "plain\n"},
	}
	for _, tt := range tests {
		if got := ToUnix(tt.in); got != tt.want {
			t.Errorf("ToUnix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
