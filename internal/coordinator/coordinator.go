// Package coordinator is the entry point of a delivery: it captures from the
// source tab, obtains a ready target tab and hands the payload to the page
// adapter, retrying across the tab boundary.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgnsrekt/chatrelay/internal/notify"
	"github.com/dgnsrekt/chatrelay/internal/poll"
	"github.com/dgnsrekt/chatrelay/internal/status"
	"github.com/dgnsrekt/chatrelay/internal/types"
)

// Status line kinds.
const (
	KindScreenshot = string(types.KindScreenshot)
	KindText       = string(types.KindText)
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = time.Second
)

type SourceTabs interface {
	ActiveTab(ctx context.Context) (types.Tab, error)
}

type Capturer interface {
	Screenshot(ctx context.Context, tab types.Tab) (types.Screenshot, error)
	SelectedText(ctx context.Context, tab types.Tab) (types.SelectedText, error)
}

type Targets interface {
	EnsureTargetTab(ctx context.Context, settings types.Settings) (types.Tab, error)
	EnsureAdapter(ctx context.Context, tab types.Tab) error
}

type Messenger interface {
	Send(ctx context.Context, tab types.Tab, msg types.Message) (types.Response, error)
}

type Recorder interface {
	Record(e status.Entry) status.Entry
}

type Notifier interface {
	Notify(ctx context.Context, msg notify.Message)
}

// Options tunes the retry policy. Zero values use 3 attempts and 1s.
type Options struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

type Coordinator struct {
	source   SourceTabs
	capturer Capturer
	targets  Targets
	hub      Messenger
	status   Recorder
	notifier Notifier

	maxAttempts int
	retryDelay  time.Duration
	sleep       func(context.Context, time.Duration) error
}

// New wires a Coordinator. status and notifier may be nil.
func New(source SourceTabs, capturer Capturer, targets Targets, hub Messenger, rec Recorder, notifier Notifier, opts Options) *Coordinator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	return &Coordinator{
		source:      source,
		capturer:    capturer,
		targets:     targets,
		hub:         hub,
		status:      rec,
		notifier:    notifier,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		sleep:       poll.Sleep,
	}
}

// CaptureAndDeliverScreenshot captures the visible area of the active tab
// and queues it in the target tab's adapter.
func (c *Coordinator) CaptureAndDeliverScreenshot(ctx context.Context, deliveryID, reason string, settings types.Settings) error {
	settings = settings.Normalize()
	c.record(deliveryID, KindScreenshot, status.StateCapturing, "Capturing screenshot...", nil)

	err := c.captureAndDeliverScreenshot(ctx, deliveryID, reason, settings)
	if err != nil {
		c.fail(ctx, deliveryID, KindScreenshot, err)
		return err
	}
	c.record(deliveryID, KindScreenshot, status.StateQueued, "Screenshot queued for upload", nil)
	return nil
}

func (c *Coordinator) captureAndDeliverScreenshot(ctx context.Context, deliveryID, reason string, settings types.Settings) error {
	source, err := c.source.ActiveTab(ctx)
	if err != nil {
		return err
	}
	shot, err := c.capturer.Screenshot(ctx, source)
	if err != nil {
		return err
	}
	slog.Info("coordinator screenshot captured", "delivery_id", deliveryID, "source_tab", source.ID, "bytes", len(shot.Image))

	target, err := c.targets.EnsureTargetTab(ctx, settings)
	if err != nil {
		return err
	}
	return c.deliver(ctx, deliveryID, target, types.Message{
		Type:     types.MsgUploadScreenshot,
		Payload:  shot,
		Settings: &settings,
		Reason:   reason,
	})
}

// CaptureAndDeliverText reads the selection of the active tab and sends it
// to the target tab's adapter. An empty selection fails with NO_SELECTION
// before any target tab is touched.
func (c *Coordinator) CaptureAndDeliverText(ctx context.Context, deliveryID, reason string, settings types.Settings) error {
	settings = settings.Normalize()
	c.record(deliveryID, KindText, status.StateCapturing, "Reading selection...", nil)

	err := c.captureAndDeliverText(ctx, deliveryID, reason, settings)
	if err != nil {
		c.fail(ctx, deliveryID, KindText, err)
		return err
	}
	c.record(deliveryID, KindText, status.StateSuccess, "Text sent to chat", nil)
	return nil
}

func (c *Coordinator) captureAndDeliverText(ctx context.Context, deliveryID, reason string, settings types.Settings) error {
	source, err := c.source.ActiveTab(ctx)
	if err != nil {
		return err
	}
	text, err := c.capturer.SelectedText(ctx, source)
	if err != nil {
		return err
	}
	if text.Text == "" {
		return types.NewError(types.CodeNoSelection, "no text selected", nil)
	}

	target, err := c.targets.EnsureTargetTab(ctx, settings)
	if err != nil {
		return err
	}
	return c.deliver(ctx, deliveryID, target, types.Message{
		Type:     types.MsgSendText,
		Payload:  text,
		Settings: &settings,
		Reason:   reason,
	})
}

// deliver sends msg with up to maxAttempts tries. Every retry waits
// retryDelay and re-ensures the adapter first.
func (c *Coordinator) deliver(ctx context.Context, deliveryID string, tab types.Tab, msg types.Message) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.retryDelay); err != nil {
				return err
			}
			if err := c.targets.EnsureAdapter(ctx, tab); err != nil {
				return err
			}
		}

		resp, err := c.hub.Send(ctx, tab, msg)
		if err == nil {
			slog.Info("coordinator delivered",
				"delivery_id", deliveryID,
				"type", msg.Type,
				"tab_id", tab.ID,
				"attempt", attempt,
				"status", resp.Status,
			)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		slog.Warn("coordinator delivery attempt failed",
			"delivery_id", deliveryID,
			"type", msg.Type,
			"tab_id", tab.ID,
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"error", err,
		)
	}
	return types.NewError(types.CodeDeliveryTimeout,
		fmt.Sprintf("target tab did not accept the %s after %d attempts", kindOf(msg.Type), c.maxAttempts), lastErr)
}

func (c *Coordinator) fail(ctx context.Context, deliveryID, kind string, err error) {
	code := types.CodeOf(err)
	slog.Error("coordinator delivery failed", "delivery_id", deliveryID, "kind", kind, "code", code, "error", err)
	c.record(deliveryID, kind, status.StateError, userMessage(err), err)

	if !Surfaced(code) || c.notifier == nil {
		return
	}
	c.notifier.Notify(context.WithoutCancel(ctx), notify.Message{
		Title:    "chatrelay: " + kind + " delivery failed",
		Body:     userMessage(err),
		Priority: "high",
		Tags:     []string{"warning"},
	})
}

func (c *Coordinator) record(deliveryID, kind, state, msg string, err error) {
	if c.status == nil {
		return
	}
	c.status.Record(status.Entry{
		DeliveryID: deliveryID,
		Kind:       kind,
		State:      state,
		Message:    msg,
		Code:       types.CodeOf(err),
	})
}

// Surfaced reports whether failures with code are pushed to the user beyond
// the status line.
func Surfaced(code string) bool {
	return code == types.CodeDeliveryTimeout || code == types.CodeUploadUnsupported
}

func userMessage(err error) string {
	switch types.CodeOf(err) {
	case types.CodeNoActiveTab:
		return "No active tab to capture"
	case types.CodeNoSelection:
		return "No text selected"
	case types.CodeDeliveryTimeout:
		return "Could not reach the chat tab. Please reload it and try again."
	}
	var coded *types.CodedError
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return err.Error()
}

func kindOf(t types.MessageType) string {
	if t == types.MsgSendText {
		return KindText
	}
	return KindScreenshot
}
