package librarian

import "strings"

// tokenType classifies a token found in the text of a Discord message.
type tokenType int

const (
	tokenPlain tokenType = iota + 1
	tokenUser
)

// textToken is one whitespace-separated token of a Discord message.
type textToken struct {
	Raw   string
	Type  tokenType
	Token string
}

// parseRawToken classifies a single raw token. User mentions come over
// the wire as `<@USER_ID>` or `<@!USER_ID>`.
func parseRawToken(raw string) textToken {
	parsed := textToken{
		Raw:   raw,
		Type:  tokenPlain,
		Token: raw,
	}
	if strings.HasPrefix(raw, "<@") {
		parsed.Type = tokenUser
		parsed.Token = raw[1:]
	}
	return parsed
}

// parseWords splits a message into lines of plain words, treating only
// the final mention on each line as addressing the bot. Words before
// that mention are dropped, so users can discuss the bot's behavior and
// issue a command on the same line. The second return value reports
// whether any line mentioned a user at all.
func parseWords(content string) ([][]string, bool) {
	mentioned := false
	var words [][]string
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		tokens := make([]textToken, 0, len(fields))
		lastMention := -1
		for i, raw := range fields {
			token := parseRawToken(raw)
			if token.Type == tokenUser {
				lastMention = i
			}
			tokens = append(tokens, token)
		}

		var plain []string
		if lastMention >= 0 {
			mentioned = true
			for _, token := range tokens[lastMention+1:] {
				plain = append(plain, token.Raw)
			}
		} else {
			for _, token := range tokens {
				plain = append(plain, token.Raw)
			}
		}
		words = append(words, plain)
	}
	return words, mentioned
}
