package adapter

import (
	"bytes"
	"context"
	"testing"

	"github.com/dgnsrekt/chatrelay/internal/queue"
	"github.com/dgnsrekt/chatrelay/internal/types"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func pushShots(t *testing.T, lane *Lane, tags ...string) {
	t.Helper()
	for _, tag := range tags {
		shot := types.Screenshot{Image: append(append([]byte{}, pngMagic...), tag...), Encoding: "image/png"}
		if _, err := lane.queue.Push(shot, "test"); err != nil {
			t.Fatalf("Push(%s) = %v", tag, err)
		}
	}
}

func tags(data [][]byte) []string {
	out := make([]string, len(data))
	for i, d := range data {
		out[i] = string(bytes.TrimPrefix(d, pngMagic))
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDrainIsFIFOWithHeadRetry(t *testing.T) {
	dom := newFakeDOM()
	dom.found[RoleFileInput] = true
	dom.setFilesFailures = 1
	a, lane := newTestAdapter(t, dom, quietSettings())
	pushShots(t, lane, "a", "b", "c")

	a.drain(context.Background())

	if got, want := tags(dom.attempts), []string{"a", "a", "b", "c"}; !equalStrings(got, want) {
		t.Fatalf("upload attempts = %v; want %v", got, want)
	}
	if got, want := tags(dom.uploaded), []string{"a", "b", "c"}; !equalStrings(got, want) {
		t.Fatalf("uploaded = %v; want %v", got, want)
	}
	if lane.queue.Len() != 0 {
		t.Fatalf("queue len = %d; want 0", lane.queue.Len())
	}
	if lane.draining.Load() {
		t.Fatal("drain token still held after drain returned")
	}
}

func TestDrainSkipsWhenTokenHeld(t *testing.T) {
	dom := newFakeDOM()
	dom.found[RoleFileInput] = true
	a, lane := newTestAdapter(t, dom, quietSettings())
	pushShots(t, lane, "a")

	if !lane.acquire() {
		t.Fatal("acquire() = false on idle lane")
	}
	a.drain(context.Background())
	lane.release()

	if len(dom.attempts) != 0 {
		t.Fatalf("upload attempts = %d; want 0 while another drain holds the token", len(dom.attempts))
	}
	if lane.queue.Len() != 1 {
		t.Fatalf("queue len = %d; want 1", lane.queue.Len())
	}
}

func TestUploadUnsupportedWithoutInputOrDrop(t *testing.T) {
	dom := newFakeDOM()
	a, _ := newTestAdapter(t, dom, quietSettings())

	err := a.upload(context.Background(), queue.Item{Filename: "screenshot.png", Encoding: "image/png"}, pngMagic)
	if code := types.CodeOf(err); code != types.CodeUploadUnsupported {
		t.Fatalf("upload() code = %q; want %q", code, types.CodeUploadUnsupported)
	}
}

func TestUploadFallsBackToDrop(t *testing.T) {
	dom := newFakeDOM()
	dom.dropOK[`[contenteditable="true"]`] = true
	dom.dropVisible = true
	a, _ := newTestAdapter(t, dom, quietSettings())

	if err := a.upload(context.Background(), queue.Item{Filename: "screenshot.png", Encoding: "image/png"}, pngMagic); err != nil {
		t.Fatalf("upload() = %v; want nil", err)
	}
	if len(dom.dropped) != 1 {
		t.Fatalf("drops = %d; want 1", len(dom.dropped))
	}
}

func TestUploadDropWithoutPreviewTriesEveryTarget(t *testing.T) {
	dom := newFakeDOM()
	for _, l := range DropTargetLocators {
		dom.dropOK[l.Selector] = true
	}
	a, _ := newTestAdapter(t, dom, quietSettings())

	err := a.upload(context.Background(), queue.Item{Filename: "screenshot.png", Encoding: "image/png"}, pngMagic)
	if code := types.CodeOf(err); code != types.CodeUploadUnsupported {
		t.Fatalf("upload() code = %q; want %q", code, types.CodeUploadUnsupported)
	}
	if len(dom.dropped) != len(DropTargetLocators) {
		t.Fatalf("drops = %d; want %d", len(dom.dropped), len(DropTargetLocators))
	}
}

func TestUploadClicksAttachAndSend(t *testing.T) {
	dom := newFakeDOM()
	dom.found[RoleAttach] = true
	dom.found[RoleFileInput] = true
	dom.found[RoleSend] = true
	settings := quietSettings()
	settings.AutoSend = true
	a, _ := newTestAdapter(t, dom, settings)

	if err := a.upload(context.Background(), queue.Item{Filename: "screenshot.png", Encoding: "image/png"}, pngMagic); err != nil {
		t.Fatalf("upload() = %v; want nil", err)
	}
	clicks := dom.snapshotClicks()
	if !equalStrings(clicks, []string{RoleAttach, RoleSend}) {
		t.Fatalf("clicks = %v; want [%s %s]", clicks, RoleAttach, RoleSend)
	}
}

func TestDrainDropsItemAfterMaxAttempts(t *testing.T) {
	dom := newFakeDOM()
	settings := quietSettings()
	settings.ShowNotifications = true
	a, lane := newTestAdapter(t, dom, settings)
	lane.maxAttempts = 2

	var dropped []queue.Item
	var causes []string
	lane.onDrop = func(_ context.Context, origin string, item queue.Item, cause error) {
		if origin != testOrigin {
			t.Errorf("onDrop origin = %q; want %q", origin, testOrigin)
		}
		dropped = append(dropped, item)
		causes = append(causes, types.CodeOf(cause))
	}
	pushShots(t, lane, "a", "b")

	a.drain(context.Background())

	if len(dropped) != 2 {
		t.Fatalf("dropped = %d items; want 2", len(dropped))
	}
	if dropped[0].Attempts != 2 {
		t.Fatalf("dropped attempts = %d; want 2", dropped[0].Attempts)
	}
	if causes[0] != types.CodeUploadUnsupported {
		t.Fatalf("drop cause = %q; want %q", causes[0], types.CodeUploadUnsupported)
	}
	if lane.queue.Len() != 0 {
		t.Fatalf("queue len = %d; want 0", lane.queue.Len())
	}
	if len(dom.toasts) == 0 {
		t.Fatal("no error toast shown with notifications on")
	}
}
