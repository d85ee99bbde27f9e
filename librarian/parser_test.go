package librarian

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRawToken(t *testing.T) {
	tests := []struct {
		raw      string
		expected tokenType
		token    string
	}{
		{raw: "hello", expected: tokenPlain, token: "hello"},
		{raw: "", expected: tokenPlain, token: ""},
		{raw: "<@123456>", expected: tokenUser, token: "@123456>"},
		{raw: "<@!123456>", expected: tokenUser, token: "@!123456>"},
		{raw: "<#123456>", expected: tokenPlain, token: "<#123456>"},
	}
	for _, tt := range tests {
		t.Run(
			tt.raw, func(t *testing.T) {
				parsed := parseRawToken(tt.raw)
				assert.Equal(t, tt.expected, parsed.Type)
				assert.Equal(t, tt.token, parsed.Token)
				assert.Equal(t, tt.raw, parsed.Raw)
			},
		)
	}
}

func TestParseWords(t *testing.T) {
	t.Run(
		"no mention", func(t *testing.T) {
			words, mentioned := parseWords("what does the bot do")
			assert.False(t, mentioned)
			require.Len(t, words, 1)
			assert.Equal(
				t,
				[]string{"what", "does", "the", "bot", "do"},
				words[0],
			)
		},
	)

	t.Run(
		"mention at line start", func(t *testing.T) {
			words, mentioned := parseWords("<@42> what is moonstream")
			assert.True(t, mentioned)
			require.Len(t, words, 1)
			assert.Equal(t, []string{"what", "is", "moonstream"}, words[0])
		},
	)

	t.Run(
		"only final mention issues the command", func(t *testing.T) {
			content := "ask <@42> things like <@42> what is moonstream"
			words, mentioned := parseWords(content)
			assert.True(t, mentioned)
			require.Len(t, words, 1)
			assert.Equal(t, []string{"what", "is", "moonstream"}, words[0])
		},
	)

	t.Run(
		"multiline keeps lines separate", func(t *testing.T) {
			content := "discussing the bot here\n<@42> what is moonstream"
			words, mentioned := parseWords(content)
			assert.True(t, mentioned)
			require.Len(t, words, 2)
			assert.Equal(
				t,
				[]string{"discussing", "the", "bot", "here"},
				words[0],
			)
			assert.Equal(t, []string{"what", "is", "moonstream"}, words[1])
		},
	)

	t.Run(
		"blank lines are dropped", func(t *testing.T) {
			words, mentioned := parseWords("hello\n\n\nworld")
			assert.False(t, mentioned)
			require.Len(t, words, 2)
		},
	)

	t.Run(
		"trailing mention leaves empty command", func(t *testing.T) {
			words, mentioned := parseWords("hey <@42>")
			assert.True(t, mentioned)
			require.Len(t, words, 1)
			assert.Empty(t, words[0])
			assert.Empty(t, strings.Join(words[0], " "))
		},
	)
}
