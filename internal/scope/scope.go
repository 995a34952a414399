// Package scope implements exact-string scope sets as exchanged in OAuth "scope" parameters.
//
// Membership is exact string equality; there is no hierarchy or wildcard
// subsumption ("read:facilities" does not imply "read:facilities:archived").
package scope

import (
	"slices"
	"strings"
)

// Parse splits a scope parameter on spaces and commas, dropping empties and duplicates.
// The result is sorted.
func Parse(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n' || r == '\r'
	})
	return Normalize(fields)
}

// Normalize trims, de-duplicates and sorts scopes. It never returns nil.
func Normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Valid reports whether s is a scope-token per RFC 6749 §3.3:
// 1*( %x21 / %x23-5B / %x5D-7E ).
func Valid(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x21 || c > 0x7e || c == '"' || c == '\\' {
			return false
		}
	}
	return true
}

// AllValid reports whether every scope in set is valid.
func AllValid(set []string) bool {
	for _, s := range set {
		if !Valid(s) {
			return false
		}
	}
	return true
}

// Contains reports whether set holds s.
func Contains(set []string, s string) bool {
	return slices.Contains(set, s)
}

// SubsetOf reports whether every element of sub is in super.
func SubsetOf(sub, super []string) bool {
	return len(Missing(sub, super)) == 0
}

// Missing returns the elements of required that are absent from have.
func Missing(required, have []string) []string {
	var out []string
	for _, r := range required {
		if !slices.Contains(have, r) {
			out = append(out, r)
		}
	}
	return out
}

// Intersect returns the sorted elements present in both a and b.
func Intersect(a, b []string) []string {
	out := make([]string, 0, min(len(a), len(b)))
	for _, s := range a {
		if slices.Contains(b, s) {
			out = append(out, s)
		}
	}
	return Normalize(out)
}

// Join renders a set as a space-delimited scope parameter.
func Join(set []string) string {
	return strings.Join(set, " ")
}
