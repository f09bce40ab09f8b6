package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/chatrelay/internal/types"
)

// transientHints are substrings in error causes that indicate a transient
// failure worth retrying (e.g. broken connection, closed session).
var transientHints = []string{
	"context canceled",
	"target closed",
	"session closed",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
}

var clipboardPermissions = []browser.PermissionType{browser.PermissionTypeClipboardReadWrite, browser.PermissionTypeClipboardSanitizedWrite}

type tabSession struct {
	info      types.Tab
	mu        sync.Mutex
	sessionID string // CDP session ID from Target.attachToTarget
}

// Client drives the page targets of one Chromium instance over a single
// browser websocket.
type Client struct {
	cdpURL      string
	evalTimeout time.Duration

	mu    sync.Mutex
	cdp   *rawCDP
	tabs  map[target.ID]*tabSession
	order []target.ID

	tabLocksMu sync.Mutex
	tabLocks   map[target.ID]*sync.Mutex
}

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func NewClient(cdpURL string, evalTimeout time.Duration) *Client {
	return &Client{
		cdpURL:      cdpURL,
		evalTimeout: evalTimeout,
		tabs:        make(map[target.ID]*tabSession),
		tabLocks:    make(map[target.ID]*sync.Mutex),
	}
}

// Connect opens the browser socket and loads the current page targets.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("cdpcontrol connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	c.cdp = newRawCDP(c.cdpURL)
	if err := c.cdp.connect(ctx); err != nil {
		c.cdp = nil
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	if err := c.syncTabsLocked(ctx); err != nil {
		slog.Error("cdpcontrol initial tab sync failed", "error", err)
		c.cleanupLocked()
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	slog.Info("cdpcontrol connect ok", "cdp_url", c.cdpURL, "tabs", len(c.tabs))
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	// Detach from any active sessions without closing targets.
	if c.cdp != nil {
		for targetID, session := range c.tabs {
			if session == nil {
				continue
			}
			session.mu.Lock()
			if session.sessionID != "" {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				if err := c.cdp.detachFromTarget(ctx, session.sessionID); err != nil {
					slog.Debug("cdpcontrol detach cleanup failed", "target_id", targetID, "error", err)
				}
				cancel()
				session.sessionID = ""
			}
			session.mu.Unlock()
		}
		c.cdp.close()
		c.cdp = nil
	}
	c.tabs = make(map[target.ID]*tabSession)
	c.order = nil
}

// ListTabs returns every open page target in browser order.
func (c *Client) ListTabs(ctx context.Context) ([]types.Tab, error) {
	if err := c.refreshTabs(ctx); err != nil {
		slog.Warn("cdpcontrol list tabs failed", "error", err)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	tabs := make([]types.Tab, 0, len(c.order))
	for _, id := range c.order {
		if s := c.tabs[id]; s != nil {
			tabs = append(tabs, s.info)
		}
	}
	return tabs, nil
}

// QueryTabs returns the open tabs whose URL matches any of patterns.
func (c *Client) QueryTabs(ctx context.Context, patterns []string) ([]types.Tab, error) {
	tabs, err := c.ListTabs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Tab, 0, len(tabs))
	for _, t := range tabs {
		if MatchAny(patterns, t.URL) {
			out = append(out, t)
		}
	}
	return out, nil
}

// ActiveTab returns the tab the user is looking at: the page whose document
// has focus, else the first visible page.
func (c *Client) ActiveTab(ctx context.Context) (types.Tab, error) {
	tabs, err := c.ListTabs(ctx)
	if err != nil {
		return types.Tab{}, err
	}

	var fallback *types.Tab
	for i := range tabs {
		t := tabs[i]
		if !strings.HasPrefix(t.URL, "http://") && !strings.HasPrefix(t.URL, "https://") && !strings.HasPrefix(t.URL, "file://") {
			continue
		}
		var state struct {
			Focused bool `json:"focused"`
			Visible bool `json:"visible"`
		}
		if err := c.Evaluate(ctx, t.ID, WrapJSEval(jsFocusState), &state); err != nil {
			slog.Debug("cdpcontrol focus check failed", "target_id", t.ID, "error", err)
			continue
		}
		if state.Focused {
			return t, nil
		}
		if state.Visible && fallback == nil {
			fallback = &t
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return types.Tab{}, newError(CodeNoActiveTab, "no active tab", nil)
}

// CreateTab opens a new tab at url.
func (c *Client) CreateTab(ctx context.Context, url string) (types.Tab, error) {
	cdp, err := c.currentCDP(ctx)
	if err != nil {
		return types.Tab{}, err
	}

	id, err := cdp.createTarget(ctx, url)
	if err != nil {
		return types.Tab{}, newError(CodeCDPUnavailable, "failed to create tab", err)
	}

	tab := types.Tab{ID: string(id), URL: url}
	c.mu.Lock()
	if _, ok := c.tabs[id]; !ok {
		c.tabs[id] = &tabSession{info: tab}
		c.order = append([]target.ID{id}, c.order...)
	}
	c.mu.Unlock()

	slog.Info("cdpcontrol tab created", "target_id", id, "url", url)
	return tab, nil
}

// ActivateTab focuses the tab and its window.
func (c *Client) ActivateTab(ctx context.Context, tabID string) error {
	cdp, err := c.currentCDP(ctx)
	if err != nil {
		return err
	}
	if err := cdp.activateTarget(ctx, tabID); err != nil {
		return newError(CodeTabNotFound, "failed to activate tab "+tabID, err)
	}
	return nil
}

// OnLoadComplete returns a channel that is closed once the tab's document
// has finished loading. The returned func releases the subscription.
func (c *Client) OnLoadComplete(ctx context.Context, tabID string) (<-chan struct{}, func(), error) {
	session, err := c.resolveSession(ctx, tabID)
	if err != nil {
		return nil, nil, err
	}
	cdp, err := c.currentCDP(ctx)
	if err != nil {
		return nil, nil, err
	}
	sid, err := c.ensureSession(ctx, cdp, session, tabID)
	if err != nil {
		return nil, nil, err
	}

	done := make(chan struct{})
	var once sync.Once
	fire := func() { once.Do(func() { close(done) }) }

	unregister := cdp.registerEventHandler("Page.loadEventFired", func(sessionID string, _ json.RawMessage) {
		if sessionID == sid {
			fire()
		}
	})
	if err := cdp.enablePageDomain(ctx, sid); err != nil {
		unregister()
		return nil, nil, newError(CodeEvalFailure, "failed to enable page events", err)
	}

	var state struct {
		Complete bool `json:"complete"`
	}
	if err := c.Evaluate(ctx, tabID, WrapJSEval(jsLoadState), &state); err == nil && state.Complete {
		fire()
	}
	return done, unregister, nil
}

// Evaluate runs a wrapped expression on the tab and decodes the envelope's
// data into out. A failed envelope becomes a CodedError carrying its code.
func (c *Client) Evaluate(ctx context.Context, tabID, js string, out any) error {
	return c.withTab(ctx, tabID, func(cdp *rawCDP, session *tabSession) error {
		return c.evalOnSession(ctx, cdp, session, tabID, js, out)
	})
}

// InstallScript runs source in the tab now and in every document the tab
// loads later.
func (c *Client) InstallScript(ctx context.Context, tabID, source string) error {
	return c.withTab(ctx, tabID, func(cdp *rawCDP, session *tabSession) error {
		sid, err := c.ensureSession(ctx, cdp, session, tabID)
		if err != nil {
			return err
		}
		if err := cdp.addScriptOnNewDocument(ctx, sid, source); err != nil {
			return newError(CodeEvalFailure, "failed to register document script", err)
		}

		evalCtx, cancel := context.WithTimeout(ctx, c.evalTimeout)
		defer cancel()
		if _, err := cdp.evaluate(evalCtx, sid, source); err != nil {
			c.resetSession(session)
			return c.evalError(evalCtx, "script injection failed", err)
		}
		return nil
	})
}

// TypeChars types text into the focused element of the tab with trusted
// key events.
func (c *Client) TypeChars(ctx context.Context, tabID, text string) error {
	return c.withTab(ctx, tabID, func(cdp *rawCDP, session *tabSession) error {
		sid, err := c.ensureSession(ctx, cdp, session, tabID)
		if err != nil {
			return err
		}
		for _, r := range text {
			if err := cdp.dispatchCharInput(ctx, sid, string(r)); err != nil {
				c.resetSession(session)
				return newError(CodeEvalFailure, "failed to dispatch trusted character input", err)
			}
		}
		return nil
	})
}

// GrantClipboard allows pages of origin to read and write the clipboard
// without a user gesture.
func (c *Client) GrantClipboard(ctx context.Context, origin string) error {
	cdp, err := c.currentCDP(ctx)
	if err != nil {
		return err
	}
	if err := cdp.grantPermissions(ctx, origin, clipboardPermissions); err != nil {
		return newError(CodeEvalFailure, "failed to grant clipboard permission", err)
	}
	return nil
}

// Run executes chromedp actions in the tab over the client's own session.
// The tab is never closed, so it is safe for tabs the user owns.
func (c *Client) Run(ctx context.Context, tabID string, actions ...chromedp.Action) error {
	return c.withTab(ctx, tabID, func(raw *rawCDP, session *tabSession) error {
		sid, err := c.ensureSession(ctx, raw, session, tabID)
		if err != nil {
			return err
		}

		runCtx, cancel := context.WithTimeout(ctx, c.evalTimeout)
		defer cancel()
		execCtx := cdp.WithExecutor(runCtx, &sessionExecutor{raw: raw, sessionID: sid})
		for _, action := range actions {
			if err := action.Do(execCtx); err != nil {
				slog.Warn("cdpcontrol action failed", "target_id", tabID, "error", err)
				c.resetSession(session)
				return c.evalError(runCtx, "browser action failed", err)
			}
		}
		return nil
	})
}

// withTab serialises work on one tab and retries once after a transient
// transport failure.
func (c *Client) withTab(ctx context.Context, tabID string, fn func(*rawCDP, *tabSession) error) error {
	tabID = strings.TrimSpace(tabID)
	if tabID == "" {
		return newError(CodeValidation, "tab id is required", nil)
	}

	lock := c.tabLock(target.ID(tabID))
	lock.Lock()
	defer lock.Unlock()

	err := c.runOnTab(ctx, tabID, fn)
	if err == nil {
		return nil
	}
	if !c.shouldRetry(err) {
		return err
	}

	slog.Warn("cdpcontrol tab op retry after transient failure", "target_id", tabID, "error", err)
	if c.asCode(err, CodeCDPUnavailable) {
		if recErr := c.reconnect(ctx); recErr != nil {
			slog.Error("cdpcontrol reconnect failed during retry", "target_id", tabID, "error", recErr)
			return recErr
		}
	} else if syncErr := c.refreshTabs(ctx); syncErr != nil {
		slog.Warn("cdpcontrol tab refresh failed during retry", "target_id", tabID, "error", syncErr)
	}
	return c.runOnTab(ctx, tabID, fn)
}

func (c *Client) runOnTab(ctx context.Context, tabID string, fn func(*rawCDP, *tabSession) error) error {
	session, err := c.resolveSession(ctx, tabID)
	if err != nil {
		return err
	}
	cdp, err := c.currentCDP(ctx)
	if err != nil {
		return err
	}
	return fn(cdp, session)
}

func (c *Client) evalOnSession(ctx context.Context, cdp *rawCDP, session *tabSession, targetID, js string, out any) error {
	sessionID, err := c.ensureSession(ctx, cdp, session, targetID)
	if err != nil {
		return err
	}

	evalCtx, evalCancel := context.WithTimeout(ctx, c.evalTimeout)
	defer evalCancel()

	raw, err := cdp.evaluate(evalCtx, sessionID, js)
	if err != nil {
		slog.Warn("cdpcontrol eval failed", "target_id", targetID, "error", err)
		// Reset session so a fresh attach happens on retry.
		c.resetSession(session)
		return c.evalError(evalCtx, "evaluation failed", err)
	}
	return decodeEnvelope(raw, out)
}

func decodeEnvelope(raw string, out any) error {
	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

func (c *Client) evalError(evalCtx context.Context, msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
		return newError(CodeEvalTimeout, "evaluation timed out", err)
	}
	return newError(CodeEvalFailure, msg, err)
}

func (c *Client) resetSession(session *tabSession) {
	session.mu.Lock()
	session.sessionID = ""
	session.mu.Unlock()
}

// ensureSession returns a CDP session ID for the target, attaching if needed.
func (c *Client) ensureSession(ctx context.Context, cdp *rawCDP, session *tabSession, targetID string) (string, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.sessionID != "" {
		return session.sessionID, nil
	}

	sid, err := cdp.attachToTarget(ctx, targetID)
	if err != nil {
		return "", newError(CodeCDPUnavailable, "attach to target failed", err)
	}
	session.sessionID = sid
	slog.Debug("cdpcontrol session attached", "target_id", targetID, "session_id", sid)
	return sid, nil
}

func (c *Client) resolveSession(ctx context.Context, tabID string) (*tabSession, error) {
	if session := c.lookupSession(tabID); session != nil {
		return session, nil
	}
	if err := c.refreshTabs(ctx); err != nil {
		return nil, err
	}
	if session := c.lookupSession(tabID); session != nil {
		return session, nil
	}
	return nil, newError(CodeTabNotFound, "tab not found: "+tabID, nil)
}

func (c *Client) lookupSession(tabID string) *tabSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tabs[target.ID(tabID)]
}

func (c *Client) currentCDP(ctx context.Context) (*rawCDP, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cdp == nil {
		return nil, newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}
	return c.cdp, nil
}

func (c *Client) refreshTabs(ctx context.Context) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncTabsLocked(ctx)
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) syncTabsLocked(ctx context.Context) error {
	if c.cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	targets, err := c.cdp.listTargets(ctx)
	if err != nil {
		return newError(CodeCDPUnavailable, "failed to list targets", err)
	}

	order := make([]target.ID, 0, len(targets))
	expected := make(map[target.ID]types.Tab, len(targets))
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		order = append(order, t.TargetID)
		expected[t.TargetID] = types.Tab{
			ID:    string(t.TargetID),
			URL:   t.URL,
			Title: t.Title,
		}
	}

	for targetID := range c.tabs {
		if _, ok := expected[targetID]; !ok {
			delete(c.tabs, targetID)
		}
	}
	for targetID, info := range expected {
		if session := c.tabs[targetID]; session != nil {
			session.info = info
			continue
		}
		c.tabs[targetID] = &tabSession{info: info}
	}
	c.order = order

	// Prune locks for tabs no longer present.
	c.tabLocksMu.Lock()
	for id := range c.tabLocks {
		if _, ok := c.tabs[id]; !ok {
			delete(c.tabLocks, id)
		}
	}
	c.tabLocksMu.Unlock()

	slog.Debug("cdpcontrol tab sync", "targets", len(targets), "pages", len(order))
	return nil
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	connected := c.cdp != nil
	c.mu.Unlock()
	if connected {
		return nil
	}
	return c.reconnect(ctx)
}

func (c *Client) tabLock(id target.ID) *sync.Mutex {
	c.tabLocksMu.Lock()
	defer c.tabLocksMu.Unlock()
	if c.tabLocks == nil {
		c.tabLocks = make(map[target.ID]*sync.Mutex)
	}
	m, ok := c.tabLocks[id]
	if !ok {
		m = &sync.Mutex{}
		c.tabLocks[id] = m
	}
	return m
}

func (c *Client) shouldRetry(err error) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}

	switch coded.Code {
	case CodeCDPUnavailable:
		return true
	case CodeTabNotFound:
		return false
	case CodeEvalFailure:
		if coded.Cause == nil {
			return false
		}
		cause := strings.ToLower(coded.Cause.Error())
		for _, hint := range transientHints {
			if strings.Contains(cause, hint) {
				return true
			}
		}
	}
	return false
}

func (c *Client) asCode(err error, code string) bool {
	return types.CodeOf(err) == code
}
