package filter

import (
	"net/url"
	"strings"
)

// articleTokens are URL path segments that correlate with long-form content
// rather than index/listing pages.
var articleTokens = []string{"article", "post", "story", "news", "blog"}

// PriorityScore computes a deterministic [1,10] priority for a URL+mime
// pair: baseline 5, bonuses for shallow depth and article-like path tokens,
// penalties for long query strings and pagination hints. Identical input
// always produces the identical score.
func PriorityScore(rawURL, mimeType string) int {
	score := 5

	u, err := url.Parse(rawURL)
	if err != nil {
		return score
	}

	depth := len(strings.Split(strings.Trim(u.Path, "/"), "/"))
	if u.Path == "" || u.Path == "/" {
		depth = 0
	}
	switch {
	case depth <= 1:
		score += 2
	case depth <= 2:
		score += 1
	case depth >= 5:
		score -= 1
	}

	lowerPath := strings.ToLower(u.Path)
	for _, tok := range articleTokens {
		if strings.Contains(lowerPath, tok) {
			score += 2
			break
		}
	}

	if len(u.RawQuery) > 40 {
		score -= 2
	} else if len(u.RawQuery) > 0 {
		score -= 1
	}

	if strings.Contains(lowerPath, "page/") || strings.Contains(u.RawQuery, "page=") {
		score -= 2
	}

	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return score
}
