// Package orchestrator finds or opens the target chat tab and makes sure
// the page adapter is installed in it.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/chatrelay/internal/adapter"
	"github.com/dgnsrekt/chatrelay/internal/cdpcontrol"
	"github.com/dgnsrekt/chatrelay/internal/poll"
	"github.com/dgnsrekt/chatrelay/internal/types"
)

// DefaultPatterns match the chat app on both of its hosts.
var DefaultPatterns = []string{"https://chatgpt.com/*", "https://chat.openai.com/*"}

// Browser is the subset of cdpcontrol.Client the orchestrator drives.
type Browser interface {
	QueryTabs(ctx context.Context, patterns []string) ([]types.Tab, error)
	ListTabs(ctx context.Context) ([]types.Tab, error)
	CreateTab(ctx context.Context, url string) (types.Tab, error)
	ActivateTab(ctx context.Context, tabID string) error
	OnLoadComplete(ctx context.Context, tabID string) (<-chan struct{}, func(), error)
	InstallScript(ctx context.Context, tabID, source string) error
	GrantClipboard(ctx context.Context, origin string) error
}

// Messenger delivers a message to the adapter of a tab.
type Messenger interface {
	Send(ctx context.Context, tab types.Tab, msg types.Message) (types.Response, error)
}

// Config tunes the orchestrator. Zero values take defaults; a negative
// settle disables that pause.
type Config struct {
	Patterns     []string
	LoadTimeout  time.Duration
	LoadSettle   time.Duration
	PingTimeout  time.Duration
	InjectSettle time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.Patterns) == 0 {
		c.Patterns = DefaultPatterns
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = 20 * time.Second
	}
	if c.LoadSettle < 0 {
		c.LoadSettle = 0
	} else if c.LoadSettle == 0 {
		c.LoadSettle = 2 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 2 * time.Second
	}
	if c.InjectSettle < 0 {
		c.InjectSettle = 0
	} else if c.InjectSettle == 0 {
		c.InjectSettle = time.Second
	}
	return c
}

// Orchestrator hands out the target tab. Calls are serialised so two
// triggers in quick succession share one tab.
type Orchestrator struct {
	browser Browser
	hub     Messenger
	cfg     Config
	sleep   func(context.Context, time.Duration) error

	mu   sync.Mutex
	last types.Tab
}

func New(browser Browser, hub Messenger, cfg Config) *Orchestrator {
	return &Orchestrator{
		browser: browser,
		hub:     hub,
		cfg:     cfg.withDefaults(),
		sleep:   poll.Sleep,
	}
}

// EnsureTargetTab returns a target tab with a responsive adapter, opening
// one at settings.TargetURL when none is open.
func (o *Orchestrator) EnsureTargetTab(ctx context.Context, settings types.Settings) (types.Tab, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	settings = settings.Normalize()
	patterns := o.patterns(settings)

	tab, found, err := o.findOpen(ctx, patterns)
	if err != nil {
		return types.Tab{}, err
	}

	if found {
		slog.Debug("orchestrator target tab found", "tab_id", tab.ID, "url", tab.URL)
		if err := o.EnsureAdapter(ctx, tab); err != nil {
			return types.Tab{}, err
		}
		if settings.SwitchTab {
			if err := o.browser.ActivateTab(ctx, tab.ID); err != nil {
				slog.Warn("orchestrator activate failed", "tab_id", tab.ID, "error", err)
			}
		}
		o.last = tab
		return tab, nil
	}

	tab, err = o.browser.CreateTab(ctx, settings.TargetURL)
	if err != nil {
		return types.Tab{}, err
	}
	o.last = tab
	slog.Info("orchestrator target tab opened", "tab_id", tab.ID, "url", settings.TargetURL)

	if err := o.waitForLoad(ctx, tab); err != nil {
		return types.Tab{}, err
	}
	if err := o.EnsureAdapter(ctx, tab); err != nil {
		return types.Tab{}, err
	}
	return tab, nil
}

// EnsureAdapter pings the tab's adapter and installs it when the ping
// fails. Install failures are logged; the next delivery attempt surfaces
// them. Only cancellation is returned.
func (o *Orchestrator) EnsureAdapter(ctx context.Context, tab types.Tab) error {
	pingCtx, cancel := context.WithTimeout(ctx, o.cfg.PingTimeout)
	_, err := o.hub.Send(pingCtx, tab, types.Message{Type: types.MsgPing})
	cancel()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	slog.Info("orchestrator installing adapter", "tab_id", tab.ID, "reason", types.CodeOf(err))
	if origin := tab.Origin(); origin != "" {
		if err := o.browser.GrantClipboard(ctx, origin); err != nil {
			slog.Debug("orchestrator clipboard grant failed", "origin", origin, "error", err)
		}
	}
	if err := o.browser.InstallScript(ctx, tab.ID, adapter.BootstrapJS); err != nil {
		slog.Warn("orchestrator adapter install failed", "tab_id", tab.ID, "error", err)
	}
	return o.sleep(ctx, o.cfg.InjectSettle)
}

// findOpen prefers the tab handed out last while it is still open.
func (o *Orchestrator) findOpen(ctx context.Context, patterns []string) (types.Tab, bool, error) {
	tabs, err := o.browser.QueryTabs(ctx, patterns)
	if err != nil {
		return types.Tab{}, false, err
	}
	for _, t := range tabs {
		if t.ID == o.last.ID {
			return t, true, nil
		}
	}
	if len(tabs) > 0 {
		return tabs[0], true, nil
	}

	if o.last.ID == "" {
		return types.Tab{}, false, nil
	}
	// The last tab may still be on about:blank while it navigates.
	all, err := o.browser.ListTabs(ctx)
	if err != nil {
		return types.Tab{}, false, err
	}
	for _, t := range all {
		if t.ID == o.last.ID && (t.URL == "" || strings.HasPrefix(t.URL, "about:blank")) {
			return o.last, true, nil
		}
	}
	if f, ok := o.hub.(interface{ Forget(tabID string) }); ok {
		f.Forget(o.last.ID)
	}
	o.last = types.Tab{}
	return types.Tab{}, false, nil
}

// waitForLoad waits for the load event, up to LoadTimeout, then settles.
// A timeout is not an error.
func (o *Orchestrator) waitForLoad(ctx context.Context, tab types.Tab) error {
	loaded, release, err := o.browser.OnLoadComplete(ctx, tab.ID)
	if err != nil {
		slog.Warn("orchestrator load subscription failed", "tab_id", tab.ID, "error", err)
	} else {
		defer release()
		timer := time.NewTimer(o.cfg.LoadTimeout)
		defer timer.Stop()
		select {
		case <-loaded:
			slog.Debug("orchestrator tab loaded", "tab_id", tab.ID)
		case <-timer.C:
			slog.Warn("orchestrator load wait timed out, continuing", "tab_id", tab.ID, "timeout", o.cfg.LoadTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return o.sleep(ctx, o.cfg.LoadSettle)
}

func (o *Orchestrator) patterns(settings types.Settings) []string {
	patterns := append([]string(nil), o.cfg.Patterns...)
	if !cdpcontrol.MatchAny(patterns, settings.TargetURL) {
		if origin := types.OriginOf(settings.TargetURL); origin != "" {
			patterns = append(patterns, origin+"/*")
		}
	}
	return patterns
}
