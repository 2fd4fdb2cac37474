package cache

import (
	"sort"
	"strings"
)

// keyNamespace prefixes every cache key so shared Redis instances can tell
// this service's entries apart.
const keyNamespace = "kukla"

// Key builds a deterministic cache key from a kind and identifying parts.
// Parts are sorted, so callers need not worry about ordering.
//
// Example:
//
//	Key("categories", map[string]string{"fingerprint": "ab12"})
//	=> "kukla:categories:fingerprint=ab12"
func Key(kind string, parts map[string]string) string {
	segments := []string{keyNamespace, kind}

	if len(parts) > 0 {
		keys := make([]string, 0, len(parts))
		for k := range parts {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			segments = append(segments, k+"="+parts[k])
		}
	}

	return strings.Join(segments, ":")
}
