package classifier

import (
	"strconv"
	"strings"
)

// Sanitize lowercases name and reduces it to [a-z0-9_], collapsing runs of
// underscores and trimming them from both ends.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	lastUnderscore := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}

// DigitRuns returns every run of ASCII digits in s, in order of appearance.
func DigitRuns(s string) []string {
	var runs []string
	start := -1
	for i := 0; i < len(s); i++ {
		isDigit := s[i] >= '0' && s[i] <= '9'
		switch {
		case isDigit && start < 0:
			start = i
		case !isDigit && start >= 0:
			runs = append(runs, s[start:i])
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, s[start:])
	}
	return runs
}

// normalizeNumber strips leading zeros ("07" -> "7") without overflowing on
// absurdly long runs.
func normalizeNumber(run string) string {
	if n, err := strconv.Atoi(run); err == nil {
		return strconv.Itoa(n)
	}
	trimmed := strings.TrimLeft(run, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

// instanceOf returns the trailing numeric segment of a hardware identifier,
// e.g. 1 for "/gpu-nvidia/1". Identifiers without one are instance 0.
func instanceOf(parentID string) int {
	parentID = strings.TrimRight(parentID, "/")
	idx := strings.LastIndexByte(parentID, '/')
	n, err := strconv.Atoi(parentID[idx+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}
