// Package strings normalizes operator-supplied string lists such as CORS
// origins and trusted public keys.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each value and drops empties and repeats, keeping the
// first occurrence. The result is never nil.
func DedupeAndTrim(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SplitList splits a comma-separated value and normalizes it with
// DedupeAndTrim.
func SplitList(raw string) []string {
	return DedupeAndTrim(strings.Split(raw, ","))
}
