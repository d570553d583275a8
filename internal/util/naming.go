package util

import (
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"
)

// IsDNSLabel reports whether s is a valid RFC 1123 DNS label. Claim
// namespaces and names must pass this before any policy evaluation runs.
func IsDNSLabel(s string) bool {
	return len(validation.IsDNS1123Label(s)) == 0
}

// MatchGlob reports whether name matches a namespace pattern. Patterns
// support a single '*' wildcard: "production-*", "*-prod", "*", or an exact
// name. Anything more elaborate is rejected by policy validation before it
// gets here.
func MatchGlob(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	star := strings.IndexByte(pattern, '*')
	if star < 0 {
		return pattern == name
	}
	prefix, suffix := pattern[:star], pattern[star+1:]
	return len(name) >= len(prefix)+len(suffix) &&
		strings.HasPrefix(name, prefix) &&
		strings.HasSuffix(name, suffix)
}

// ValidGlob reports whether a namespace pattern is well-formed: non-empty
// and containing at most one '*'.
func ValidGlob(pattern string) bool {
	return pattern != "" && strings.Count(pattern, "*") <= 1
}

// UniqueStrings returns a deduplicated copy of the slice preserving insertion order.
// Returns nil for empty or nil input.
func UniqueStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(s))
	result := make([]string, 0, len(s))
	for _, v := range s {
		if _, exists := seen[v]; !exists {
			seen[v] = struct{}{}
			result = append(result, v)
		}
	}
	return result
}
