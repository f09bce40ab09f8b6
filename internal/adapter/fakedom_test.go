package adapter

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeDOM is an in-memory page. Locate answers from found (or dropOK for
// drop targets, keyed by selector); the text operations edit content.
type fakeDOM struct {
	mu sync.Mutex

	ready  bool
	found  map[string]bool
	dropOK map[string]bool

	content     string
	pasteWorks  bool
	assignWorks bool
	assignLimit int // when >0, AssignValue keeps only this many bytes
	nativeWorks bool

	setFilesFailures int // SetFiles reports false this many times first
	dropVisible      bool

	calls    []string
	attempts [][]byte
	uploaded [][]byte
	dropped  [][]byte
	toasts   []string
	clicks   []string
}

func newFakeDOM() *fakeDOM {
	return &fakeDOM{ready: true, found: map[string]bool{}, dropOK: map[string]bool{}}
}

func (f *fakeDOM) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeDOM) Ready(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ready")
	return f.ready, nil
}

func (f *fakeDOM) Locate(_ context.Context, role string, table []Locator) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if role == RoleDropTarget && len(table) == 1 {
		return f.dropOK[table[0].Selector], nil
	}
	return f.found[role], nil
}

func (f *fakeDOM) Click(_ context.Context, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, role)
	return nil
}

func (f *fakeDOM) Focus(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("focus")
	return nil
}

func (f *fakeDOM) Clear(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("clear")
	f.content = ""
	return nil
}

func (f *fakeDOM) Content(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.content, nil
}

func (f *fakeDOM) TypeChars(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("type:" + text)
	f.content += text
	return nil
}

func (f *fakeDOM) PasteText(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("paste")
	if f.pasteWorks {
		f.content = text
	}
	return nil
}

func (f *fakeDOM) AssignValue(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("assign")
	if !f.assignWorks {
		return nil
	}
	if f.assignLimit > 0 && len(text) > f.assignLimit {
		text = text[:f.assignLimit]
	}
	f.content = text
	return nil
}

func (f *fakeDOM) SetNativeValue(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("native")
	if !f.nativeWorks {
		return errors.New("setter rejected")
	}
	f.content = text
	return nil
}

func (f *fakeDOM) SetFiles(_ context.Context, _ string, file File) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, file.Data)
	if f.setFilesFailures > 0 {
		f.setFilesFailures--
		return false, nil
	}
	f.uploaded = append(f.uploaded, file.Data)
	return true, nil
}

func (f *fakeDOM) DropFile(_ context.Context, _ string, file File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, file.Data)
	return nil
}

func (f *fakeDOM) AttachmentVisible(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropVisible, nil
}

func (f *fakeDOM) Toast(_ context.Context, message string, _ ToastKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toasts = append(f.toasts, message)
	return nil
}

func (f *fakeDOM) snapshotCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeDOM) snapshotToasts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.toasts...)
}

func (f *fakeDOM) snapshotClicks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.clicks...)
}

func fastTiming() Timing {
	return Timing{
		PollInterval:     time.Millisecond,
		FormTimeout:      5 * time.Millisecond,
		InputTimeout:     20 * time.Millisecond,
		FileInputTimeout: 20 * time.Millisecond,
		PreviewTimeout:   5 * time.Millisecond,
		DrainInterval:    time.Millisecond,
	}
}

func noSleep(context.Context, time.Duration) error { return nil }
