// Package notify pushes delivery failures to an ntfy-compatible endpoint.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Message is one push notification. Empty header fields are omitted.
type Message struct {
	Title    string
	Body     string
	Priority string
	Tags     []string
}

// Send posts msg to endpoint with ntfy's Title, Priority and Tags headers.
func Send(ctx context.Context, client *http.Client, endpoint string, msg Message) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(msg.Body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	if msg.Title != "" {
		req.Header.Set("Title", msg.Title)
	}
	if msg.Priority != "" {
		req.Header.Set("Priority", msg.Priority)
	}
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}

// Notifier sends to a fixed endpoint. A Notifier without an endpoint is
// disabled and drops every message.
type Notifier struct {
	endpoint string
	client   *http.Client
}

func New(endpoint string, client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Notifier{endpoint: strings.TrimSpace(endpoint), client: client}
}

// Enabled reports whether messages are sent anywhere.
func (n *Notifier) Enabled() bool {
	return n != nil && n.endpoint != ""
}

// Notify sends msg and logs, rather than returns, a failed push.
func (n *Notifier) Notify(ctx context.Context, msg Message) {
	if !n.Enabled() {
		return
	}
	if err := Send(ctx, n.client, n.endpoint, msg); err != nil {
		slog.Warn("notify push failed", "title", msg.Title, "error", err)
		return
	}
	slog.Debug("notify push sent", "title", msg.Title)
}
