package feed

import "strings"

// MatchesTags reports whether any tag contains the query,
// case-insensitively. An empty or whitespace-only query matches
// everything.
func MatchesTags(tags []string, query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}
