package docstore

import (
	"strings"

	"github.com/pkg/errors"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func splitByte(s string, sep byte) (string, string, bool) {
	i := strings.IndexByte(s, sep)
	if i < 0 {
		return s, "", false
	} else {
		return s[:i], s[i+1:], true
	}
}

// escapeField makes s safe to embed in an index line: the line, field and
// id separators and the escape character itself are prefixed with a backslash.
func escapeField(s string) string {
	if !strings.ContainsAny(s, "\\|;\n") {
		return s
	}
	var buf strings.Builder
	buf.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', '|', ';':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\n':
			buf.WriteString(`\n`)
		default:
			buf.WriteByte(c)
		}
	}
	return buf.String()
}

var errDanglingEscape = errors.New("dangling escape character")

// splitEscaped splits s on unescaped occurrences of sep and unescapes
// every part.
func splitEscaped(s string, sep byte) ([]string, error) {
	var parts []string
	var buf strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' {
			i++
			if i >= len(s) {
				return nil, errDanglingEscape
			}
			if s[i] == 'n' {
				buf.WriteByte('\n')
			} else {
				buf.WriteByte(s[i])
			}
			continue
		}
		if c == sep {
			parts = append(parts, buf.String())
			buf.Reset()
			continue
		}
		buf.WriteByte(c)
	}
	parts = append(parts, buf.String())
	return parts, nil
}

func shiftPosition(pos uint64, delta int64) uint64 {
	if delta < 0 {
		return pos - uint64(-delta)
	}
	return pos + uint64(delta)
}

func cloneJSON(v any) any {
	switch v := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, e := range v {
			m[k] = cloneJSON(e)
		}
		return m
	case []any:
		a := make([]any, len(v))
		for i, e := range v {
			a[i] = cloneJSON(e)
		}
		return a
	default:
		return v
	}
}
