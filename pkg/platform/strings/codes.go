// Package strings normalizes the code lists used in workflow configuration
// (section names, attachment types).
package strings

import (
	"strings"
)

// NormalizeCodes trims and upper-cases each element, dropping empties and
// duplicates. Order of first occurrence is preserved.
//
//	NormalizeCodes([]string{" bca", "Housing", "BCA", ""})
//	// Returns: []string{"BCA", "HOUSING"}
func NormalizeCodes(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		code := strings.ToUpper(strings.TrimSpace(v))
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		result = append(result, code)
	}

	return result
}

// Missing returns the members of required absent from present, in the order of
// required.
func Missing(required []string, present map[string]struct{}) []string {
	var out []string
	for _, r := range required {
		if _, ok := present[r]; !ok {
			out = append(out, r)
		}
	}
	return out
}
