package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"
	"time"
)

type record struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

func readLines(t *testing.T, path string) []record {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var out []record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, r)
	}
	return out
}

func TestJSONLWriterFlushesOnClose(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLWriter(dir, "deliveries", 16, 1)
	fixed := time.Date(2025, 3, 4, 23, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	for _, state := range []string{"capturing", "queued", "success"} {
		if err := w.Write(record{ID: "d1", State: state}); err != nil {
			t.Fatalf("Write() = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	got := readLines(t, w.Path("2025-03-04"))
	if len(got) != 3 || got[0].State != "capturing" || got[2].State != "success" {
		t.Fatalf("records = %+v", got)
	}
}

func TestJSONLWriterRejectsAfterClose(t *testing.T) {
	w := NewJSONLWriter(t.TempDir(), "deliveries", 1, 1)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := w.Write(record{ID: "late"}); err == nil {
		t.Fatal("Write() after Close = nil; want error")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() = %v", err)
	}
}
