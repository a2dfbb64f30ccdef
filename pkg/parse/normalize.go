package parse

import (
	"fmt"
	"net/url"
	"strings"

	"news-crawler/pkg/utils"
)

// NormalizeURL standardizes a URL for use as a store key.
// It lowercases the scheme and host, ensures an empty path becomes "/",
// removes a single trailing slash from non-root paths, and drops the query
// string and fragment. Does not modify the input *url.URL.
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	// Work on a copy
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	if normalized.Path == "" {
		normalized.Path = "/"
	} else if len(normalized.Path) > 1 && strings.HasSuffix(normalized.Path, "/") {
		normalized.Path = normalized.Path[:len(normalized.Path)-1]
	}

	normalized.Fragment = ""
	normalized.RawQuery = ""

	return normalized.String()
}

// ParseAndNormalize parses a URL string using the stricter url.ParseRequestURI
// (requiring a scheme) and then normalizes it with NormalizeURL.
// Returns the normalized string and any parse error.
func ParseAndNormalize(urlStr string) (string, error) {
	parsed, err := url.ParseRequestURI(strings.TrimSpace(urlStr))
	if err != nil {
		return "", fmt.Errorf("%w: %w", utils.ErrParsing, err)
	}
	return NormalizeURL(parsed), nil
}
