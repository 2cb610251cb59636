package report

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Hash computes the dedup key of r under strategy s.
//
// A non-empty Fingerprint is returned as-is. Otherwise StrategyNone yields
// the empty string (never deduplicate) and any other strategy yields the
// hex SHA-256 of the selected components, concatenated in a fixed order:
// application name, message, classifiers, stack trace. The stack trace
// component is always included once deduplication is enabled; it is the set
// of distinct function names sorted in descending order, so frame order and
// repetition do not affect the key.
func Hash(r *Report, s Strategy) string {
	if r == nil {
		return ""
	}
	if r.Fingerprint != "" {
		return r.Fingerprint
	}
	if !s.Enabled() {
		return ""
	}

	var b strings.Builder
	if s.Has(StrategyLibraryName) {
		writeComponent(&b, r.Application())
	}
	if s.Has(StrategyMessage) {
		writeComponent(&b, r.Message)
	}
	if s.Has(StrategyClassifier) {
		writeComponent(&b, strings.Join(r.Classifier, ","))
	}
	writeComponent(&b, stackSignature(r.StackTrace))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// stackSignature returns the distinct frame function names, sorted
// descending and joined.
func stackSignature(frames []Frame) string {
	if len(frames) == 0 {
		return ""
	}
	seen := make(map[string]struct{}, len(frames))
	names := make([]string, 0, len(frames))
	for _, f := range frames {
		if _, ok := seen[f.Function]; ok {
			continue
		}
		seen[f.Function] = struct{}{}
		names = append(names, f.Function)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return strings.Join(names, "\n")
}

// writeComponent appends v length-prefixed.
func writeComponent(b *strings.Builder, v string) {
	b.WriteString(strconv.Itoa(len(v)))
	b.WriteByte(':')
	b.WriteString(v)
	b.WriteByte(';')
}
