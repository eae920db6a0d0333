package widgets

import (
	"encoding/json"
	"strings"

	"github.com/havenapp/haven/pkg/logger"
)

// Command is one parsed inline widget instruction for the rendering layer.
// Wire form: [WIDGET:<ID>|<json-object>].
type Command struct {
	ID     string
	Params map[string]interface{}
}

const tokenPrefix = "[WIDGET:"

type paramKind int

const (
	kindString paramKind = iota
	kindNumber
)

type paramSpec struct {
	name string
	kind paramKind
}

// knownWidgets maps widget identifiers to their required parameters.
// Unknown identifiers are stripped from assistant text.
var knownWidgets = map[string][]paramSpec{
	"BREATHING":      {{name: "seconds", kind: kindNumber}},
	"MOOD_CHECK":     {},
	"URGE_SURF":      {{name: "minutes", kind: kindNumber}},
	"GROUNDING":      {{name: "steps", kind: kindNumber}},
	"JOURNAL_PROMPT": {{name: "prompt", kind: kindString}},
}

// Sanitize scans assistant text for widget tokens. Well-formed tokens for
// known widgets are kept in place and returned as Commands; malformed or
// unknown tokens are logged and stripped. Surrounding text always
// survives.
func Sanitize(text string) (string, []Command) {
	var out strings.Builder
	var commands []Command

	rest := text
	for {
		start := strings.Index(rest, tokenPrefix)
		if start < 0 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:start])
		token := rest[start:]

		cmd, consumed, ok := parseToken(token)
		if consumed == 0 {
			// Unterminated or trailing-junk token; drop everything through
			// its closing bracket (or the rest of the text) so no token
			// body leaks into the output.
			logger.WarnCF("widgets", "Malformed widget token stripped", nil)
			if end := strings.IndexByte(token[len(tokenPrefix):], ']'); end >= 0 {
				rest = token[len(tokenPrefix)+end+1:]
			} else {
				rest = ""
			}
			continue
		}
		if ok {
			out.WriteString(token[:consumed])
			commands = append(commands, cmd)
		} else {
			logger.WarnCF("widgets", "Invalid widget token stripped",
				map[string]interface{}{"token": truncate(token[:consumed], 120)})
		}
		rest = token[consumed:]
	}

	return out.String(), commands
}

// parseToken parses one token starting at tokenPrefix. consumed is the
// byte length of the token (0 when unterminated); ok reports validity.
func parseToken(token string) (Command, int, bool) {
	body := token[len(tokenPrefix):]

	pipe := strings.IndexByte(body, '|')
	if pipe < 0 {
		end := strings.IndexByte(body, ']')
		if end < 0 {
			return Command{}, 0, false
		}
		return Command{}, len(tokenPrefix) + end + 1, false
	}
	id := body[:pipe]

	// Balance braces so JSON objects containing ']' parse correctly.
	jsonStart := pipe + 1
	depth := 0
	inString := false
	escaped := false
	jsonEnd := -1
	for i := jsonStart; i < len(body); i++ {
		c := body[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				jsonEnd = i + 1
			}
		case ']':
			if depth == 0 {
				// Closing bracket before any JSON object.
				return Command{}, len(tokenPrefix) + i + 1, false
			}
		}
		if jsonEnd > 0 {
			break
		}
	}
	if jsonEnd < 0 || jsonEnd >= len(body) || body[jsonEnd] != ']' {
		return Command{}, 0, false
	}
	consumed := len(tokenPrefix) + jsonEnd + 1

	specs, known := knownWidgets[id]
	if !known {
		return Command{}, consumed, false
	}

	var params map[string]interface{}
	if err := json.Unmarshal([]byte(body[jsonStart:jsonEnd]), &params); err != nil {
		return Command{}, consumed, false
	}

	for _, spec := range specs {
		value, present := params[spec.name]
		if !present {
			return Command{}, consumed, false
		}
		switch spec.kind {
		case kindNumber:
			if _, isNum := value.(float64); !isNum {
				return Command{}, consumed, false
			}
		case kindString:
			if _, isStr := value.(string); !isStr {
				return Command{}, consumed, false
			}
		}
	}

	return Command{ID: id, Params: params}, consumed, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
