package reply

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// maxDecodeDepth bounds how many times a JSON string literal is unwrapped
// when the decoded value is itself encoded JSON.
const maxDecodeDepth = 3

var fencePattern = regexp.MustCompile("^```(?:json)?\\s*|\\s*```$")

// Aliases the classifier may use instead of the canonical keys.
var keyAliases = map[string]string{
	"категория":   KeyCategory,
	"описание":    KeyDescription,
	"Category":    KeyCategory,
	"Description": KeyDescription,
}

// Normalize collapses an assistant reply into a Record.
//
// Structured replies are returned as is (with alias keys folded). Text replies
// are repaired in order: one level of outer quoting is removed, doubled quotes
// are collapsed, a Markdown code fence is stripped, and the rest is decoded as
// JSON. Empty text fails with ErrNoReply; text that does not decode to an
// object fails with a *MalformedError; failures and the zero value fail with
// ErrUnsupported.
func Normalize(raw Raw) (Record, error) {
	switch raw.kind {
	case KindStructured:
		if raw.fields == nil {
			return nil, ErrNoReply
		}
		return canonical(raw.fields), nil
	case KindText:
		return normalizeText(raw.text)
	default:
		return nil, ErrUnsupported
	}
}

func normalizeText(s string) (Record, error) {
	if strings.TrimSpace(s) == "" {
		return nil, ErrNoReply
	}
	original := s

	s = unquote(s)
	s = strings.ReplaceAll(s, `""`, `"`)
	s = fencePattern.ReplaceAllString(strings.TrimSpace(s), "")

	fields, err := decodeObject(s)
	if err != nil {
		return nil, &MalformedError{Raw: original, Cause: err}
	}
	return canonical(fields), nil
}

// unquote removes a single pair of surrounding double quotes. The inner text
// is unescaped as a JSON string, then as a Go string literal, and finally
// leniently: \" \' and \\ are resolved and any other escape is kept as is.
func unquote(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	var js string
	if err := json.Unmarshal([]byte(s), &js); err == nil {
		return js
	}
	if u, err := strconv.Unquote(s); err == nil {
		return u
	}
	return unescapeQuotes(s[1 : len(s)-1])
}

func unescapeQuotes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '"', '\'', '\\':
				b.WriteByte(s[i+1])
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

var errNotObject = errors.New("reply is not a JSON object")

func decodeObject(s string) (map[string]any, error) {
	for range maxDecodeDepth {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, err
		}
		switch t := v.(type) {
		case map[string]any:
			return t, nil
		case string:
			s = strings.TrimSpace(t)
		default:
			return nil, errNotObject
		}
	}
	return nil, errNotObject
}

func canonical(fields map[string]any) Record {
	out := make(Record, len(fields))
	for k, v := range fields {
		if alias, ok := keyAliases[k]; ok {
			if _, taken := fields[alias]; !taken {
				out[alias] = v
				continue
			}
		}
		out[k] = v
	}
	return out
}
