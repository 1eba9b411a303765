// Package util provides helpers for parsing host command lines.
package util

import "strings"

// ArgSeparator separates the command and its arguments on a host line.
const ArgSeparator = "|"

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// CleanArg trims surrounding whitespace and, when the argument is wrapped in
// double quotes, removes them and unescapes doubled quotes inside.
func CleanArg(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return FixEscapeQuotes(s[1 : len(s)-1])
	}
	return s
}

// SplitCommand splits a host line of the form COMMAND|arg|arg into the
// command and its cleaned arguments. args is nil when there are none.
func SplitCommand(line string) (command string, args []string) {
	parts := strings.Split(strings.TrimSpace(line), ArgSeparator)
	command = strings.TrimSpace(parts[0])
	for _, p := range parts[1:] {
		args = append(args, CleanArg(p))
	}
	return command, args
}
