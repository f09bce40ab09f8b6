package browser

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(rawURL, "http://"))
	if err != nil {
		t.Fatalf("split %q: %v", rawURL, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("port %q: %v", portStr, err)
	}
	return host, port
}

func TestLaunchSkipsWhenPortServed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	host, port := hostPort(t, srv.URL)

	l := NewLauncher(Config{CDPAddress: host, CDPPort: port})
	l.lookup = func() (string, error) {
		t.Fatal("browser lookup called although the port is served")
		return "", nil
	}
	if err := l.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() = %v", err)
	}
	if l.Running() {
		t.Fatal("Running() = true; want false when launch was skipped")
	}
}

func TestLaunchReportsMissingBrowser(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	host, port := hostPort(t, "http://"+ln.Addr().String())
	_ = ln.Close()

	l := NewLauncher(Config{CDPAddress: host, CDPPort: port})
	want := errors.New("no browser")
	l.lookup = func() (string, error) { return "", want }
	if err := l.Launch(context.Background()); !errors.Is(err, want) {
		t.Fatalf("Launch() = %v; want %v", err, want)
	}
}

func TestWaitForCDP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"Browser":"Chrome/140"}`))
	}))
	defer srv.Close()
	host, port := hostPort(t, srv.URL)

	l := NewLauncher(Config{CDPAddress: host, CDPPort: port, ReadyTimeout: 2 * time.Second})
	if err := l.waitForCDP(context.Background()); err != nil {
		t.Fatalf("waitForCDP() = %v", err)
	}
}

func TestWaitForCDPTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	host, port := hostPort(t, srv.URL)

	l := NewLauncher(Config{CDPAddress: host, CDPPort: port, ReadyTimeout: 300 * time.Millisecond})
	if err := l.waitForCDP(context.Background()); err == nil {
		t.Fatal("waitForCDP() = nil; want timeout error")
	}
}

func TestArgsIncludeStartURLAndProfile(t *testing.T) {
	l := NewLauncher(Config{CDPAddress: "127.0.0.1", CDPPort: 9220, ProfileDir: "/tmp/p", StartURL: "https://chatgpt.com/"})
	args := strings.Join(l.args(), " ")
	for _, want := range []string{"--remote-debugging-port=9220", "--user-data-dir=/tmp/p", "https://chatgpt.com/", "--disable-breakpad"} {
		if !strings.Contains(args, want) {
			t.Fatalf("args %q missing %q", args, want)
		}
	}
}
