package index

import (
	"path/filepath"
	"strings"
)

// matches implements the DICOM PS3.4 C-FIND key matching rules for a single
// query key against a stored value: case-insensitive exact match, wildcard (* and ? in
// filepath.Match syntax), range (start-end, either bound optional), and list
// (backslash-separated alternatives). An empty pattern is a universal match
// (the key was not specified in the query).
func matches(pattern, value string) bool {
	if pattern == "" {
		return true
	}

	if strings.Contains(pattern, `\`) {
		for _, alt := range strings.Split(pattern, `\`) {
			if matches(alt, value) {
				return true
			}
		}
		return false
	}

	if isRange(pattern) {
		return matchesRange(pattern, value)
	}

	if strings.ContainsAny(pattern, "*?") {
		ok, err := filepath.Match(pattern, value)
		return err == nil && ok
	}

	return strings.EqualFold(pattern, value)
}

// isRange reports whether pattern looks like a DICOM range key: a single
// "-" separator where at least one side is non-empty. Plain UIDs ("1.2.3")
// never reach here because the dash they contain, if any, isn't from the
// caller's query syntax; range keys are only used for DA/TM/DT query keys.
func isRange(pattern string) bool {
	idx := strings.Index(pattern, "-")
	if idx < 0 {
		return false
	}
	before, after := pattern[:idx], pattern[idx+1:]
	return (before != "" || after != "") &&
		!strings.ContainsAny(before, "-") && !strings.ContainsAny(after, "-")
}

func matchesRange(pattern, value string) bool {
	idx := strings.Index(pattern, "-")
	lo, hi := pattern[:idx], pattern[idx+1:]
	if lo != "" && value < lo {
		return false
	}
	if hi != "" && value > hi {
		return false
	}
	return true
}
