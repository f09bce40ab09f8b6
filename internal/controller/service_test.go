package controller

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dgnsrekt/chatrelay/internal/commands"
	"github.com/dgnsrekt/chatrelay/internal/notify"
	"github.com/dgnsrekt/chatrelay/internal/queue"
	"github.com/dgnsrekt/chatrelay/internal/status"
	"github.com/dgnsrekt/chatrelay/internal/types"
)

type call struct {
	kind       string
	deliveryID string
	reason     string
	settings   types.Settings
}

type fakeDeliverer struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeDeliverer) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return nil
}

func (f *fakeDeliverer) CaptureAndDeliverScreenshot(_ context.Context, id, reason string, settings types.Settings) error {
	return f.record(call{"screenshot", id, reason, settings})
}

func (f *fakeDeliverer) CaptureAndDeliverText(_ context.Context, id, reason string, settings types.Settings) error {
	return f.record(call{"text", id, reason, settings})
}

type memSettings struct{ s types.Settings }

func (m *memSettings) Get() types.Settings { return m.s }

func (m *memSettings) UpdateFunc(fn func(*types.Settings) error) (types.Settings, error) {
	next := m.s
	if err := fn(&next); err != nil {
		return types.Settings{}, err
	}
	m.s = next.Normalize()
	return m.s, nil
}

type fakeNotifier struct{ msgs []notify.Message }

func (f *fakeNotifier) Notify(_ context.Context, msg notify.Message) { f.msgs = append(f.msgs, msg) }

func newTestService() (*Service, *fakeDeliverer, *fakeNotifier) {
	d := &fakeDeliverer{}
	n := &fakeNotifier{}
	settings := &memSettings{s: types.DefaultSettings()}
	s := NewService(context.Background(), d, settings, nil, status.NewTracker(5), n)
	s.newID = func() string { return "delivery-1" }
	return s, d, n
}

func TestRequireNonEmpty(t *testing.T) {
	s := &Service{}
	if err := s.requireNonEmpty("capture-text", "command"); err != nil {
		t.Fatalf("requireNonEmpty() = %v; want nil", err)
	}

	err := s.requireNonEmpty("   ", "command")
	var got *types.CodedError
	if !errors.As(err, &got) {
		t.Fatalf("requireNonEmpty() error type = %T; want *types.CodedError", err)
	}
	if got.Code != types.CodeValidation {
		t.Fatalf("requireNonEmpty() code = %q; want %q", got.Code, types.CodeValidation)
	}
	if got.Message != "command is required" {
		t.Fatalf("requireNonEmpty() message = %q; want %q", got.Message, "command is required")
	}
}

func TestCaptureScreenshotRunsInBackgroundWithStoredSettings(t *testing.T) {
	s, d, _ := newTestService()

	trig, err := s.CaptureScreenshot(context.Background(), "popup button")
	if err != nil {
		t.Fatalf("CaptureScreenshot() = %v", err)
	}
	if trig.Status != TriggerStatus || trig.DeliveryID != "delivery-1" || trig.Command != commands.CaptureScreenshot {
		t.Fatalf("trigger = %+v", trig)
	}
	s.Wait()

	if len(d.calls) != 1 {
		t.Fatalf("deliveries = %d; want 1", len(d.calls))
	}
	got := d.calls[0]
	if got.kind != "screenshot" || got.deliveryID != "delivery-1" || got.reason != "popup button" {
		t.Fatalf("delivery = %+v", got)
	}
	if got.settings != types.DefaultSettings() {
		t.Fatalf("settings = %+v; want stored defaults", got.settings)
	}
}

func TestRunCommandDefaultsReason(t *testing.T) {
	s, d, _ := newTestService()
	if _, err := s.RunCommand(context.Background(), commands.CaptureText, ""); err != nil {
		t.Fatalf("RunCommand() = %v", err)
	}
	s.Wait()
	if len(d.calls) != 1 || d.calls[0].kind != "text" || d.calls[0].reason != commands.ReasonShortcut {
		t.Fatalf("deliveries = %+v", d.calls)
	}
}

func TestRunCommandRejectsUnknown(t *testing.T) {
	s, d, _ := newTestService()
	_, err := s.RunCommand(context.Background(), "reload", "")
	if code := types.CodeOf(err); code != types.CodeValidation {
		t.Fatalf("code = %q; want %q", code, types.CodeValidation)
	}
	s.Wait()
	if len(d.calls) != 0 {
		t.Fatalf("deliveries = %d; want 0", len(d.calls))
	}
}

func TestPatchSettingsValidatesTargetURL(t *testing.T) {
	s, _, _ := newTestService()
	_, err := s.PatchSettings(func(cur *types.Settings) { cur.TargetURL = "not a url" })
	if types.CodeOf(err) != types.CodeValidation {
		t.Fatalf("PatchSettings(bad url) err = %v; want VALIDATION", err)
	}
	if s.Settings() != types.DefaultSettings() {
		t.Fatalf("Settings() = %+v; want defaults after rejected patch", s.Settings())
	}

	got, err := s.PatchSettings(func(cur *types.Settings) { cur.TargetURL = "https://claude.ai/new" })
	if err != nil {
		t.Fatalf("PatchSettings() = %v", err)
	}
	if s.Settings() != got || got.TargetURL != "https://claude.ai/new" || !got.AutoSend {
		t.Fatalf("Settings() = %+v; want only target_url changed", got)
	}
}

func TestHandleDropRecordsAndNotifies(t *testing.T) {
	s, _, n := newTestService()
	cause := types.NewError(types.CodeUploadUnsupported, "no upload path", nil)

	s.HandleDrop(context.Background(), "https://chatgpt.com", queue.Item{ID: "item-1", Attempts: 5}, cause)

	view := s.Status(0)
	if view.Current == nil || view.Current.State != status.StateError || view.Current.Code != types.CodeUploadUnsupported {
		t.Fatalf("status = %+v", view.Current)
	}
	if len(n.msgs) != 1 {
		t.Fatalf("notifications = %d; want 1", len(n.msgs))
	}
	if s.Queues() == nil {
		t.Fatal("Queues() = nil; want empty slice without a hub")
	}
}
