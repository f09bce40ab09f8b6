package types

// Tab is an opaque handle to a browser page target.
type Tab struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Origin returns scheme://host of the tab URL, or "" when it cannot be parsed.
func (t Tab) Origin() string {
	return OriginOf(t.URL)
}
