package cdpcontrol

import (
	"regexp"
	"strings"
	"sync"
)

var (
	patternCacheMu sync.Mutex
	patternCache   = map[string]*regexp.Regexp{}
)

// MatchURL reports whether rawURL matches a browser-style match pattern
// such as "https://chatgpt.com/*". A "*" matches any run of characters and
// "<all_urls>" matches every http(s) URL.
func MatchURL(pattern, rawURL string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}
	if pattern == "<all_urls>" {
		return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
	}
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		rawURL = rawURL[:i]
	}
	return compilePattern(pattern).MatchString(rawURL)
}

// MatchAny reports whether rawURL matches at least one pattern.
func MatchAny(patterns []string, rawURL string) bool {
	for _, p := range patterns {
		if MatchURL(p, rawURL) {
			return true
		}
	}
	return false
}

func compilePattern(pattern string) *regexp.Regexp {
	patternCacheMu.Lock()
	defer patternCacheMu.Unlock()
	if re, ok := patternCache[pattern]; ok {
		return re
	}

	var expr string
	if rest, ok := strings.CutPrefix(pattern, "*://"); ok {
		expr = "^https?://" + globToRegexp(rest) + "$"
	} else {
		expr = "^" + globToRegexp(pattern) + "$"
	}
	re := regexp.MustCompile("(?i)" + expr)
	patternCache[pattern] = re
	return re
}

func globToRegexp(glob string) string {
	parts := strings.Split(glob, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(parts, ".*")
}
