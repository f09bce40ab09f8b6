package adapter

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/dgnsrekt/chatrelay/internal/poll"
	"github.com/dgnsrekt/chatrelay/internal/queue"
	"github.com/dgnsrekt/chatrelay/internal/types"
)

// DropFunc is told about queue items that exhausted their attempts.
type DropFunc func(ctx context.Context, origin string, item queue.Item, cause error)

// Lane is the per-origin state shared by every adapter of that origin: the
// persisted queue and the drain token.
type Lane struct {
	origin      string
	queue       *queue.Queue
	maxAttempts int
	onDrop      DropFunc

	draining atomic.Bool
}

func (l *Lane) acquire() bool { return l.draining.CompareAndSwap(false, true) }

func (l *Lane) release() { l.draining.Store(false) }

// kickDrain starts a drain unless one is already running for the lane.
func (a *Adapter) kickDrain() {
	if a.lane.draining.Load() {
		return
	}
	a.goBackground(a.drain)
}

// drain uploads queued items one at a time, pausing between items. The
// token is held per item, so a trigger arriving during the pause is folded
// into this drain.
func (a *Adapter) drain(ctx context.Context) {
	for {
		if !a.lane.acquire() {
			return
		}
		a.drainOne(ctx)
		a.lane.release()
		if ctx.Err() != nil || a.lane.queue.Len() == 0 {
			return
		}
		if err := a.sleep(ctx, a.timing.DrainInterval); err != nil {
			return
		}
	}
}

// drainOne takes the head and uploads it. A failed item goes back to the
// head unless it has used up its attempts.
func (a *Adapter) drainOne(ctx context.Context) {
	q := a.lane.queue
	item, data, ok, err := q.Dequeue()
	if err != nil {
		slog.Error("adapter dequeue failed", "origin", a.lane.origin, "error", err)
		return
	}
	if !ok {
		return
	}

	uploadErr := a.upload(ctx, item, data)
	if uploadErr == nil {
		if err := q.Discard(item.ID); err != nil {
			slog.Warn("adapter discard after upload failed", "item_id", item.ID, "error", err)
		}
		slog.Info("adapter screenshot uploaded", "tab_id", a.tab.ID, "item_id", item.ID, "pending", q.Len())
		if a.Settings().ShowNotifications {
			a.toast(ctx, "Screenshot uploaded!", ToastSuccess)
		}
		return
	}

	if ctx.Err() != nil {
		// Shutdown: keep the item for the next run.
		if err := q.PushFront(item); err != nil {
			slog.Error("adapter requeue failed", "item_id", item.ID, "error", err)
		}
		return
	}

	item.Attempts++
	slog.Warn("adapter upload failed", "tab_id", a.tab.ID, "item_id", item.ID, "attempts", item.Attempts, "code", types.CodeOf(uploadErr), "error", uploadErr)
	if a.Settings().ShowNotifications {
		a.toast(ctx, "Upload failed: "+errorMessage(uploadErr), ToastError)
	}

	if a.lane.maxAttempts > 0 && item.Attempts >= a.lane.maxAttempts {
		if err := q.Discard(item.ID); err != nil {
			slog.Warn("adapter discard of exhausted item failed", "item_id", item.ID, "error", err)
		}
		slog.Error("adapter dropped screenshot after repeated failures", "item_id", item.ID, "attempts", item.Attempts)
		if a.lane.onDrop != nil {
			a.lane.onDrop(ctx, a.lane.origin, item, uploadErr)
		}
		return
	}

	if err := q.PushFront(item); err != nil {
		slog.Error("adapter requeue failed", "item_id", item.ID, "error", err)
	}
}

// upload attaches one screenshot to the composer, then sends it when
// auto-send is on.
func (a *Adapter) upload(ctx context.Context, item queue.Item, data []byte) error {
	file := File{Name: item.Filename, MIME: item.Encoding, Data: data}

	a.waitForForm(ctx)

	uploaded, err := a.uploadViaFileInput(ctx, file)
	if err != nil {
		return err
	}
	if !uploaded {
		if uploaded, err = a.uploadViaDrop(ctx, file); err != nil {
			return err
		}
	}
	if !uploaded {
		return types.NewError(types.CodeUploadUnsupported, "Could not find a way to upload the file. Please try manually.", nil)
	}

	found, err := poll.Until(ctx, a.timing.PollInterval, a.timing.PreviewTimeout, func(ctx context.Context) (bool, error) {
		return a.dom.Locate(ctx, RolePreview, ImagePreviewLocators)
	})
	if err != nil {
		return err
	}
	if !found {
		slog.Debug("adapter image preview not seen, continuing", "tab_id", a.tab.ID, "item_id", item.ID)
	}
	if err := a.sleep(ctx, a.timing.PreviewSettle); err != nil {
		return err
	}

	if a.Settings().AutoSend {
		a.clickSend(ctx)
	}
	return nil
}

func (a *Adapter) uploadViaFileInput(ctx context.Context, file File) (bool, error) {
	if found, err := a.dom.Locate(ctx, RoleAttach, AttachButtonLocators); err == nil && found {
		if err := a.dom.Click(ctx, RoleAttach); err != nil {
			slog.Debug("adapter attach click failed", "tab_id", a.tab.ID, "error", err)
		}
		if err := a.sleep(ctx, a.timing.AttachSettle); err != nil {
			return false, err
		}
	}

	found, err := poll.Until(ctx, a.timing.PollInterval, a.timing.FileInputTimeout, func(ctx context.Context) (bool, error) {
		return a.dom.Locate(ctx, RoleFileInput, FileInputLocators)
	})
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	ok, err := a.dom.SetFiles(ctx, RoleFileInput, file)
	if err != nil {
		slog.Debug("adapter file input assignment failed", "tab_id", a.tab.ID, "error", err)
		return false, nil
	}
	return ok, nil
}

func (a *Adapter) uploadViaDrop(ctx context.Context, file File) (bool, error) {
	for _, target := range DropTargetLocators {
		found, err := a.dom.Locate(ctx, RoleDropTarget, []Locator{target})
		if err != nil || !found {
			continue
		}
		if err := a.dom.DropFile(ctx, RoleDropTarget, file); err != nil {
			slog.Debug("adapter drop failed", "tab_id", a.tab.ID, "selector", target.Selector, "error", err)
			continue
		}
		if err := a.sleep(ctx, a.timing.DropSettle); err != nil {
			return false, err
		}
		if ok, err := a.dom.AttachmentVisible(ctx, file.Name); err == nil && ok {
			slog.Debug("adapter drop accepted", "tab_id", a.tab.ID, "selector", target.Selector)
			return true, nil
		}
	}
	return false, nil
}

func errorMessage(err error) string {
	if coded, ok := err.(*types.CodedError); ok && coded.Message != "" {
		return coded.Message
	}
	return err.Error()
}
