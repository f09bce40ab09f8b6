package capture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/dgnsrekt/chatrelay/internal/cdpcontrol"
	"github.com/dgnsrekt/chatrelay/internal/types"
)

// fakeBrowser serves the DevTools HTTP endpoints and a browser socket that
// answers the commands a capture sends, recording every method.
type fakeBrowser struct {
	srv       *httptest.Server
	png       []byte
	selection string

	mu      sync.Mutex
	methods []string
}

func newFakeBrowser(t *testing.T, png []byte, selection string) *fakeBrowser {
	t.Helper()
	fb := &fakeBrowser{png: png, selection: selection}

	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"webSocketDebuggerUrl": "ws://" + r.Host + "/devtools/browser/fake",
		})
	})
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"id": "SOURCE", "type": "page", "title": "Doc", "url": "https://example.com/doc"},
		})
	})
	mux.HandleFunc("/devtools/browser/fake", fb.serveSocket)

	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBrowser) serveSocket(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}
		var req struct {
			ID        int64  `json:"id"`
			Method    string `json:"method"`
			SessionID string `json:"sessionId"`
		}
		if json.Unmarshal(data, &req) != nil {
			continue
		}
		fb.mu.Lock()
		fb.methods = append(fb.methods, req.Method)
		fb.mu.Unlock()

		out, _ := json.Marshal(map[string]any{
			"id":        req.ID,
			"sessionId": req.SessionID,
			"result":    fb.result(req.Method),
		})
		if err := wsutil.WriteServerText(conn, out); err != nil {
			return
		}
	}
}

func (fb *fakeBrowser) result(method string) any {
	switch method {
	case "Target.attachToTarget":
		return map[string]string{"sessionId": "SESSION-1"}
	case "Page.captureScreenshot":
		return map[string]string{"data": base64.StdEncoding.EncodeToString(fb.png)}
	case "Runtime.evaluate":
		return map[string]any{"result": map[string]any{"type": "string", "value": fb.selection}}
	}
	return map[string]any{}
}

func (fb *fakeBrowser) count(method string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	n := 0
	for _, m := range fb.methods {
		if m == method {
			n++
		}
	}
	return n
}

func TestCaptureLeavesSourceTabOpen(t *testing.T) {
	fb := newFakeBrowser(t, testPNG(t, 64, 32), "  hello  ")

	ctx := context.Background()
	client := cdpcontrol.NewClient(fb.srv.URL, 2*time.Second)
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() = %v", err)
	}

	c := New(client, 0, 2*time.Second)
	tab := types.Tab{ID: "SOURCE", URL: "https://example.com/doc"}

	text, err := c.SelectedText(ctx, tab)
	if err != nil {
		t.Fatalf("SelectedText() = %v", err)
	}
	if text.Text != "hello" {
		t.Fatalf("SelectedText() = %q; want %q", text.Text, "hello")
	}

	shot, err := c.Screenshot(ctx, tab)
	if err != nil {
		t.Fatalf("Screenshot() = %v", err)
	}
	if shot.Width != 64 || shot.Height != 32 || shot.Encoding != "image/png" {
		t.Fatalf("Screenshot() = %dx%d %s; want 64x32 image/png", shot.Width, shot.Height, shot.Encoding)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	if n := fb.count("Target.closeTarget"); n != 0 {
		t.Fatalf("Target.closeTarget sent %d times; source tab must stay open", n)
	}
	if n := fb.count("Target.attachToTarget"); n != 1 {
		t.Fatalf("Target.attachToTarget sent %d times; want one session reused", n)
	}
	if n := fb.count("Page.captureScreenshot"); n != 1 {
		t.Fatalf("Page.captureScreenshot sent %d times; want 1", n)
	}
}

func TestCaptureUnknownTabIsTabNotFound(t *testing.T) {
	fb := newFakeBrowser(t, testPNG(t, 8, 8), "")

	ctx := context.Background()
	client := cdpcontrol.NewClient(fb.srv.URL, 2*time.Second)
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	_, err := New(client, 0, 2*time.Second).Screenshot(ctx, types.Tab{ID: "GONE"})
	if code := types.CodeOf(err); code != types.CodeTabNotFound {
		t.Fatalf("Screenshot() code = %q; want %q", code, types.CodeTabNotFound)
	}
	if n := fb.count("Page.captureScreenshot"); n != 0 {
		t.Fatalf("Page.captureScreenshot sent %d times for a missing tab", n)
	}
}
