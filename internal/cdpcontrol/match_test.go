package cdpcontrol

import "testing"

func TestMatchURL(t *testing.T) {
	tests := []struct {
		pattern string
		url     string
		want    bool
	}{
		{"https://chatgpt.com/*", "https://chatgpt.com/", true},
		{"https://chatgpt.com/*", "https://chatgpt.com/c/abc-123?model=x", true},
		{"https://chatgpt.com/*", "https://chatgpt.com/c/abc#frag", true},
		{"https://chat.openai.com/*", "https://chatgpt.com/", false},
		{"https://chatgpt.com/*", "http://chatgpt.com/", false},
		{"https://chatgpt.com/*", "https://evil.example/?https://chatgpt.com/", false},
		{"*://chatgpt.com/*", "http://chatgpt.com/x", true},
		{"*://chatgpt.com/*", "ftp://chatgpt.com/x", false},
		{"https://*.openai.com/*", "https://chat.openai.com/", true},
		{"<all_urls>", "https://example.com/", true},
		{"<all_urls>", "chrome://newtab/", false},
		{"", "https://chatgpt.com/", false},
	}
	for _, tt := range tests {
		if got := MatchURL(tt.pattern, tt.url); got != tt.want {
			t.Errorf("MatchURL(%q, %q) = %v; want %v", tt.pattern, tt.url, got, tt.want)
		}
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []string{"https://chatgpt.com/*", "https://chat.openai.com/*"}
	if !MatchAny(patterns, "https://chat.openai.com/c/1") {
		t.Fatal("MatchAny() = false; want true for second pattern")
	}
	if MatchAny(patterns, "https://example.com/") {
		t.Fatal("MatchAny() = true; want false")
	}
	if MatchAny(nil, "https://chatgpt.com/") {
		t.Fatal("MatchAny(nil) = true; want false")
	}
}
