// Package adapter drives the chat page of one target tab: it answers the
// coordinator's messages, uploads queued screenshots and inserts text.
package adapter

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/chatrelay/internal/poll"
	"github.com/dgnsrekt/chatrelay/internal/types"
)

const verifyPrefixRunes = 20

// typedPrefixRunes is how much of the text strategy (b) types key by key
// before assigning the rest.
const typedPrefixRunes = 10

// Timing holds every wait the adapter performs.
type Timing struct {
	PollInterval     time.Duration
	FormTimeout      time.Duration
	InputTimeout     time.Duration
	FileInputTimeout time.Duration
	PreviewTimeout   time.Duration
	AttachSettle     time.Duration
	DropSettle       time.Duration
	PreviewSettle    time.Duration
	FocusSettle      time.Duration
	InsertSettle     time.Duration
	SendSettle       time.Duration
	DrainInterval    time.Duration
}

// DefaultTiming matches what the chat UI needs in practice.
func DefaultTiming() Timing {
	return Timing{
		PollInterval:     200 * time.Millisecond,
		FormTimeout:      15 * time.Second,
		InputTimeout:     10 * time.Second,
		FileInputTimeout: 10 * time.Second,
		PreviewTimeout:   5 * time.Second,
		AttachSettle:     300 * time.Millisecond,
		DropSettle:       500 * time.Millisecond,
		PreviewSettle:    500 * time.Millisecond,
		FocusSettle:      100 * time.Millisecond,
		InsertSettle:     200 * time.Millisecond,
		SendSettle:       500 * time.Millisecond,
		DrainInterval:    time.Second,
	}
}

// Adapter serves one target tab. Its queue belongs to the tab's lane and is
// shared with other tabs of the same origin.
type Adapter struct {
	tab    types.Tab
	dom    DOM
	lane   *Lane
	timing Timing
	sleep  func(context.Context, time.Duration) error

	// bg bounds background work started by Handle.
	bg context.Context
	wg *sync.WaitGroup

	mu       sync.Mutex
	settings types.Settings
}

func newAdapter(bg context.Context, wg *sync.WaitGroup, tab types.Tab, dom DOM, lane *Lane, timing Timing) *Adapter {
	return &Adapter{
		tab:      tab,
		dom:      dom,
		lane:     lane,
		timing:   timing,
		sleep:    poll.Sleep,
		bg:       bg,
		wg:       wg,
		settings: types.DefaultSettings(),
	}
}

// Settings returns the adapter's current settings.
func (a *Adapter) Settings() types.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

func (a *Adapter) setSettings(s *types.Settings) {
	if s == nil {
		return
	}
	a.mu.Lock()
	a.settings = s.Normalize()
	a.mu.Unlock()
}

// Handle answers one coordinator message. Work beyond the acknowledgement
// runs in the background.
func (a *Adapter) Handle(ctx context.Context, msg types.Message) (types.Response, error) {
	ready, err := a.dom.Ready(ctx)
	if err != nil || !ready {
		return types.Response{}, types.NewError(types.CodeAdapterUnresponsive, "adapter not present in tab "+a.tab.ID, err)
	}

	switch msg.Type {
	case types.MsgPing:
		if a.lane.queue.Len() > 0 {
			a.kickDrain()
		}
		return types.Response{Status: types.StatusReady}, nil

	case types.MsgUploadScreenshot:
		shot, ok := msg.Payload.(types.Screenshot)
		if !ok || len(shot.Image) == 0 {
			return types.Response{}, types.NewError(types.CodeValidation, "upload requires a screenshot payload", nil)
		}
		a.setSettings(msg.Settings)
		item, err := a.lane.queue.Push(shot, msg.Reason)
		if err != nil {
			return types.Response{}, types.NewError(types.CodeEvalFailure, "queue screenshot failed", err)
		}
		slog.Info("adapter screenshot queued", "tab_id", a.tab.ID, "origin", a.lane.origin, "item_id", item.ID, "pending", a.lane.queue.Len())
		if a.Settings().ShowNotifications {
			a.toast(ctx, "Uploading screenshot...", ToastInfo)
		}
		a.kickDrain()
		return types.Response{Status: types.StatusQueued}, nil

	case types.MsgSendText:
		text, ok := msg.Payload.(types.SelectedText)
		if !ok || strings.TrimSpace(text.Text) == "" {
			return types.Response{}, types.NewError(types.CodeValidation, "send requires a text payload", nil)
		}
		a.setSettings(msg.Settings)
		a.goBackground(func(ctx context.Context) {
			notify := a.Settings().ShowNotifications
			if notify {
				a.toast(ctx, "Sending text...", ToastInfo)
			}
			if err := a.sendText(ctx, text.Text); err != nil {
				slog.Warn("adapter text delivery failed", "tab_id", a.tab.ID, "code", types.CodeOf(err), "error", err)
				if notify {
					a.toast(ctx, "Failed to insert text", ToastError)
				}
				return
			}
			if notify {
				a.toast(ctx, "Text sent!", ToastSuccess)
			}
		})
		return types.Response{Status: types.StatusTextQueued}, nil
	}

	return types.Response{}, types.NewError(types.CodeValidation, "unknown message type: "+string(msg.Type), nil)
}

func (a *Adapter) goBackground(fn func(context.Context)) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn(a.bg)
	}()
}

// sendText inserts text into the composer and optionally sends it.
func (a *Adapter) sendText(ctx context.Context, text string) error {
	a.waitForForm(ctx)

	found, err := poll.Until(ctx, a.timing.PollInterval, a.timing.InputTimeout, func(ctx context.Context) (bool, error) {
		return a.dom.Locate(ctx, RoleInput, InputFieldLocators)
	})
	if err != nil {
		return err
	}
	if !found {
		return types.NewError(types.CodeInputFieldNotFound, "could not find the chat input field", nil)
	}

	if err := a.dom.Focus(ctx, RoleInput); err != nil {
		slog.Debug("adapter focus failed", "tab_id", a.tab.ID, "error", err)
	}
	if err := a.sleep(ctx, a.timing.FocusSettle); err != nil {
		return err
	}

	strategy, err := a.insertText(ctx, text)
	if err != nil {
		return err
	}
	slog.Info("adapter text inserted", "tab_id", a.tab.ID, "strategy", strategy, "chars", len([]rune(text)))

	if err := a.sleep(ctx, a.timing.SendSettle); err != nil {
		return err
	}
	if a.Settings().AutoSend {
		a.clickSend(ctx)
	}
	return nil
}

type insertStrategy struct {
	name string
	run  func(ctx context.Context, text string) error
}

func (a *Adapter) strategies() []insertStrategy {
	return []insertStrategy{
		{name: "clipboard", run: a.insertByClipboard},
		{name: "typing", run: a.insertByTyping},
		{name: "value-setter", run: a.insertByValueSetter},
	}
}

// insertText tries each strategy in order and stops at the first one whose
// result passes verification.
func (a *Adapter) insertText(ctx context.Context, text string) (string, error) {
	for _, s := range a.strategies() {
		if err := s.run(ctx, text); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			slog.Debug("adapter insert strategy failed", "tab_id", a.tab.ID, "strategy", s.name, "error", err)
			continue
		}
		if a.verifyInserted(ctx, text) {
			return s.name, nil
		}
		slog.Debug("adapter insert strategy unverified", "tab_id", a.tab.ID, "strategy", s.name)
	}
	return "", types.NewError(types.CodeTextInsertFailed, "no insertion strategy produced the text", nil)
}

func (a *Adapter) insertByClipboard(ctx context.Context, text string) error {
	if err := a.dom.PasteText(ctx, RoleInput, text); err != nil {
		return err
	}
	return a.sleep(ctx, a.timing.InsertSettle)
}

func (a *Adapter) insertByTyping(ctx context.Context, text string) error {
	if err := a.dom.Clear(ctx, RoleInput); err != nil {
		return err
	}
	if err := a.dom.Focus(ctx, RoleInput); err != nil {
		return err
	}
	if err := a.dom.TypeChars(ctx, prefixRunes(text, typedPrefixRunes)); err != nil {
		return err
	}
	if err := a.dom.AssignValue(ctx, RoleInput, text); err != nil {
		return err
	}
	return a.sleep(ctx, a.timing.InsertSettle)
}

func (a *Adapter) insertByValueSetter(ctx context.Context, text string) error {
	return a.dom.SetNativeValue(ctx, RoleInput, text)
}

// verifyInserted reports whether the input now contains the first 20
// characters of text.
func (a *Adapter) verifyInserted(ctx context.Context, text string) bool {
	got, err := a.dom.Content(ctx, RoleInput)
	if err != nil {
		return false
	}
	return strings.Contains(got, prefixRunes(text, verifyPrefixRunes))
}

// waitForForm waits for the composer form. A missing form is not fatal.
func (a *Adapter) waitForForm(ctx context.Context) {
	found, err := poll.Until(ctx, a.timing.PollInterval, a.timing.FormTimeout, func(ctx context.Context) (bool, error) {
		return a.dom.Locate(ctx, RoleForm, FormLocators)
	})
	if err == nil && !found {
		slog.Debug("adapter form not found, continuing", "tab_id", a.tab.ID)
	}
}

// clickSend presses the send button. Failure is logged, never returned.
func (a *Adapter) clickSend(ctx context.Context) {
	if err := a.sleep(ctx, a.timing.SendSettle); err != nil {
		return
	}
	for _, table := range [][]Locator{SendButtonLocators, SendFallbackLocators} {
		found, err := a.dom.Locate(ctx, RoleSend, table)
		if err != nil || !found {
			continue
		}
		if err := a.dom.Click(ctx, RoleSend); err != nil {
			slog.Warn("adapter send click failed", "tab_id", a.tab.ID, "error", err)
			return
		}
		slog.Info("adapter send clicked", "tab_id", a.tab.ID)
		return
	}
	err := types.NewError(types.CodeSendButtonNotFound, "could not find the send button", nil)
	slog.Warn("adapter send skipped", "tab_id", a.tab.ID, "code", types.CodeOf(err), "error", err)
}

func (a *Adapter) toast(ctx context.Context, message string, kind ToastKind) {
	if err := a.dom.Toast(ctx, message, kind); err != nil {
		slog.Debug("adapter toast failed", "tab_id", a.tab.ID, "error", err)
	}
}

func prefixRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
