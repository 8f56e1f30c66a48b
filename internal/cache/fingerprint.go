package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Fingerprint computes a stable cache key from a query, its filters, and
// the workspace it runs against, per spec's "stable hash of a
// query+filters+workspace" definition. Filter iteration order is
// normalized (sorted by key) so equivalent filter sets always fingerprint
// identically regardless of map iteration order.
func Fingerprint(workspace, query string, filters map[string]string) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(workspace)
	b.WriteByte('\x00')
	b.WriteString(query)
	for _, k := range keys {
		b.WriteByte('\x00')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(filters[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
