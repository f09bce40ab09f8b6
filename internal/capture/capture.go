// Package capture reads the visible bitmap or the text selection of a source
// tab with chromedp actions.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	"github.com/dgnsrekt/chatrelay/internal/types"
)

const (
	defaultTimeout = 10 * time.Second
	logPreviewSize = 80
)

const jsSelectedText = `(function(){
var sel = window.getSelection ? window.getSelection() : null;
return sel ? sel.toString().trim() : "";
})()`

// Runner executes chromedp actions in an existing tab without taking
// ownership of it. cdpcontrol.Client is the production Runner.
type Runner interface {
	Run(ctx context.Context, tabID string, actions ...chromedp.Action) error
}

// Capturer reads source tabs through a Runner. Source tabs belong to the
// user and are never closed.
type Capturer struct {
	runner   Runner
	maxWidth int
	timeout  time.Duration
}

// New returns a Capturer driving tabs through runner. A positive maxWidth
// downscales wider screenshots.
func New(runner Runner, maxWidth int, timeout time.Duration) *Capturer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Capturer{runner: runner, maxWidth: maxWidth, timeout: timeout}
}

// Screenshot captures the visible viewport of tab.
func (c *Capturer) Screenshot(ctx context.Context, tab types.Tab) (types.Screenshot, error) {
	var raw []byte
	err := c.run(ctx, tab, chromedp.CaptureScreenshot(&raw))
	if err != nil {
		return types.Screenshot{}, err
	}

	shot, err := prepareScreenshot(raw, c.maxWidth)
	if err != nil {
		return types.Screenshot{}, types.NewError(types.CodeEvalFailure, "screenshot decode failed", err)
	}
	slog.Info("capture screenshot ok",
		"tab_id", tab.ID,
		"encoding", shot.Encoding,
		"width", shot.Width,
		"height", shot.Height,
		"bytes", len(shot.Image),
	)
	return shot, nil
}

// SelectedText returns the trimmed selection of tab. An empty selection is
// returned as-is; callers decide what empty means.
func (c *Capturer) SelectedText(ctx context.Context, tab types.Tab) (types.SelectedText, error) {
	var text string
	if err := c.run(ctx, tab, chromedp.Evaluate(jsSelectedText, &text)); err != nil {
		return types.SelectedText{}, err
	}
	text = strings.TrimSpace(text)

	preview, truncated, size, digest := previewText(text, logPreviewSize)
	slog.Debug("capture selection ok",
		"tab_id", tab.ID,
		"preview", preview,
		"truncated", truncated,
		"bytes", size,
		"sha256", digest,
	)
	return types.SelectedText{Text: text}, nil
}

func (c *Capturer) run(ctx context.Context, tab types.Tab, action chromedp.Action) error {
	if strings.TrimSpace(tab.ID) == "" {
		return types.NewError(types.CodeNoActiveTab, "no source tab", nil)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.runner.Run(runCtx, tab.ID, action)
	if err == nil {
		return nil
	}
	slog.Warn("capture failed", "tab_id", tab.ID, "url", tab.URL, "error", err)
	if types.CodeOf(err) != "" {
		return err
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return types.NewError(types.CodeEvalTimeout, "capture timed out", err)
	}
	return types.NewError(types.CodeCDPUnavailable, "capture failed", err)
}

// prepareScreenshot detects the encoding of raw, reads its dimensions and
// downscales it to maxWidth when it is wider.
func prepareScreenshot(raw []byte, maxWidth int) (types.Screenshot, error) {
	if len(raw) == 0 {
		return types.Screenshot{}, fmt.Errorf("empty screenshot")
	}
	mime := mimetype.Detect(raw)
	if !strings.HasPrefix(mime.String(), "image/") {
		return types.Screenshot{}, fmt.Errorf("unexpected screenshot type %s", mime.String())
	}

	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return types.Screenshot{}, err
	}
	bounds := img.Bounds()
	shot := types.Screenshot{
		Image:    raw,
		Encoding: mime.String(),
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	}
	if maxWidth <= 0 || shot.Width <= maxWidth {
		return shot, nil
	}

	resized := imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
		return types.Screenshot{}, err
	}
	return types.Screenshot{
		Image:    buf.Bytes(),
		Encoding: "image/png",
		Width:    resized.Bounds().Dx(),
		Height:   resized.Bounds().Dy(),
	}, nil
}
