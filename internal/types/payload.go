package types

import (
	"net/url"
	"strings"
)

// PayloadKind tags the variant carried by a Payload.
type PayloadKind string

const (
	KindScreenshot PayloadKind = "screenshot"
	KindText       PayloadKind = "text"
)

// Payload is captured source data. It is either a Screenshot or a
// SelectedText and is never mutated after capture.
type Payload interface {
	Kind() PayloadKind
}

// Screenshot is the visible bitmap of a tab.
type Screenshot struct {
	Image    []byte
	Encoding string // MIME type, e.g. "image/png"
	Width    int
	Height   int
}

func (Screenshot) Kind() PayloadKind { return KindScreenshot }

// Extension returns the file extension matching the encoding.
func (s Screenshot) Extension() string {
	switch s.Encoding {
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}

// SelectedText is the text selection of a tab.
type SelectedText struct {
	Text string
}

func (SelectedText) Kind() PayloadKind { return KindText }

// OriginOf returns scheme://host for raw, or "" when raw is not an absolute URL.
func OriginOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
