package compiler

import "strings"

// ToDOS converts any line-ending convention to CRLF.
func ToDOS(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r", ""), "\n", "\r\n")
}

// ToUnix converts program output to LF-only endings. Every carriage return
// is dropped, including stray ones outside CRLF pairs.
func ToUnix(s string) string {
	return strings.ReplaceAll(s, "\r", "")
}
