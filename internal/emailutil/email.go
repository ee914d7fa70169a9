package emailutil

import "strings"

// Normalize normalizes an email address for consistent comparison
// by converting to lowercase and trimming whitespace
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeList normalizes every address and drops empty entries,
// e.g. the trailing element of "a@x.com,b@x.com,".
func NormalizeList(emails []string) []string {
	out := make([]string, 0, len(emails))
	for _, email := range emails {
		if n := Normalize(email); n != "" {
			out = append(out, n)
		}
	}
	return out
}
