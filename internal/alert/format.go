package alert

import (
	"fmt"
	"sort"
	"strings"
)

// substitute replaces every occurrence of each key of values in s. At any
// position the longest matching key wins, and replaced text is never scanned
// again. Empty keys are ignored.
func substitute(s string, values map[string]string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 || s == "" {
		return s
	}

	// strings.Replacer prefers earlier pairs when two keys match at the same
	// position, so order longest first.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, k, values[k])
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// sprintf formats s with positional values. Values beyond the verbs in s are
// ignored, so text and subject can share one value list while using a
// different number of them. An empty s stays empty so that an absent subject
// is never turned into a formatting artifact.
func sprintf(s string, values []any) string {
	if s == "" {
		return s
	}
	out := fmt.Sprintf(s, values...)
	if !strings.Contains(out, extraMarker) {
		return out
	}
	// fmt renders the consumed values, then appends the surplus. Find the
	// prefix that matches the output right before that suffix.
	for n := len(values) - 1; n >= 0; n-- {
		prefix := fmt.Sprintf(s, values[:n]...)
		if strings.HasPrefix(out, prefix+extraMarker) {
			return prefix
		}
	}
	return out
}

const extraMarker = "%!(EXTRA "
