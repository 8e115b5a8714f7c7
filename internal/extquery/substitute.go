// Package extquery composes Extended Query protocol bursts (spec.md §4.5):
// substituting named parameters into positional form, and driving the
// resulting Parse/Bind/Describe/Execute/Sync exchange to either a streaming
// reader, an affected-row count, or (for simple transaction-control
// statements) a bare round trip. Grounded on the teacher's message-relay
// idiom in internal/proxy/pg_relay.go, generalized from relaying to
// composing.
package extquery

import (
	"fmt"
	"strings"
)

// Substitute scans sql for tokens of the form @word and rewrites each to a
// positional $n placeholder, numbered in 1-based first-occurrence order and
// matched case-insensitively (spec.md §4.5). It returns the rewritten SQL and
// the ordered list of distinct names referenced, index i corresponding to
// placeholder $(i+1).
func Substitute(sql string) (rewritten string, names []string) {
	var out strings.Builder
	index := make(map[string]int) // lowercased name -> 1-based position

	i := 0
	for i < len(sql) {
		c := sql[i]
		if c != '@' || !isNameStart(peek(sql, i+1)) {
			out.WriteByte(c)
			i++
			continue
		}

		j := i + 1
		for j < len(sql) && isNameChar(sql[j]) {
			j++
		}
		name := sql[i+1 : j]
		key := strings.ToLower(name)

		pos, seen := index[key]
		if !seen {
			names = append(names, name)
			pos = len(names)
			index[key] = pos
		}
		fmt.Fprintf(&out, "$%d", pos)
		i = j
	}
	return out.String(), names
}

func peek(s string, i int) byte {
	if i >= len(s) {
		return 0
	}
	return s[i]
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}

// Resolve looks up the wire value for each referenced name, case-sensitively
// failing closed: a name referenced by the SQL but absent from values is a
// fatal programming error (spec.md §4.5's "Failing to find a name ... is a
// fatal programming error"), reported as an error rather than panicking so
// the caller can surface it through the normal error path.
func Resolve[V any](names []string, values map[string]V) ([]V, error) {
	out := make([]V, len(names))
	for i, name := range names {
		v, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("extquery: parameter %q referenced in SQL but not supplied", name)
		}
		out[i] = v
	}
	return out, nil
}
