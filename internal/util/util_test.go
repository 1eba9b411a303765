package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixEscapeQuotes(t *testing.T) {
	tests := map[string]struct{ in, want string }{
		"empty":          {"", ""},
		"nothing to fix": {"Player A", "Player A"},
		"nickname":       {`Player ""Ace"" A`, `Player "Ace" A`},
		"json keys":      {`{""grip"":0.8}`, `{"grip":0.8}`},
		"doubled pair":   {`x""""y`, `x""y`},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, FixEscapeQuotes(tt.in))
		})
	}
}

func TestCleanArg(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"plain number", " 16.5 ", "16.5"},
		{"quoted", `"hello"`, "hello"},
		{"only quotes", `""`, ""},
		{"single quote char", `"`, `"`},
		{"quoted with escapes", `"Player ""A"""`, `Player "A"`},
		{"quoted json", `"[{""name"":""Red""}]"`, `[{"name":"Red"}]`},
		{"bare json untouched", `[{"name":"Red"}]`, `[{"name":"Red"}]`},
		{"quote on one side", `"open`, `"open`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanArg(tt.input))
		})
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		command string
		args    []string
	}{
		{"command only", ":VERSION:", ":VERSION:", nil},
		{"surrounding whitespace", "  :RACE:TICK:|16 \r", ":RACE:TICK:", []string{"16"}},
		{"empty argument kept", ":RACE:START:||x", ":RACE:START:", []string{"", "x"}},
		{"quoted argument", `:RACE:CONFIG:|"[1,2]"`, ":RACE:CONFIG:", []string{"[1,2]"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			command, args := SplitCommand(tt.line)
			assert.Equal(t, tt.command, command)
			assert.Equal(t, tt.args, args)
		})
	}
}
