package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var errNotConnected = errors.New("rawcdp: not connected")

// rawCDP speaks CDP over the browser-level websocket. Page commands go
// through flattened sessions, so tabs the user opened are never
// auto-attached the way chromedp would.
type rawCDP struct {
	httpBase string

	mu   sync.Mutex
	conn net.Conn
	seq  atomic.Int64

	waitMu  sync.Mutex
	waiters map[int64]chan cdpReply

	eventMu  sync.RWMutex
	handlers map[string][]eventHandler
}

type eventHandler struct {
	id int64
	fn func(sessionID string, params json.RawMessage)
}

// cdpFrame is any message read from the socket: a reply carries ID, an
// event carries Method.
type cdpFrame struct {
	ID        int64           `json:"id"`
	Method    string          `json:"method"`
	SessionID string          `json:"sessionId"`
	Params    json.RawMessage `json:"params"`
	Result    json.RawMessage `json:"result"`
	Error     *cdpError       `json:"error"`
}

type cdpReply struct {
	result json.RawMessage
	err    *cdpError
}

type cdpError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

func (e *cdpError) Error() string { return fmt.Sprintf("%s (%d)", e.Message, e.Code) }

func newRawCDP(httpBase string) *rawCDP {
	return &rawCDP{
		httpBase: strings.TrimRight(httpBase, "/"),
		waiters:  make(map[int64]chan cdpReply),
		handlers: make(map[string][]eventHandler),
	}
}

func (r *rawCDP) connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return nil
	}

	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := r.getJSON(ctx, "/json/version", &version); err != nil {
		return fmt.Errorf("rawcdp: browser ws url: %w", err)
	}
	if version.WebSocketDebuggerURL == "" {
		return fmt.Errorf("rawcdp: /json/version has no webSocketDebuggerUrl")
	}

	slog.Debug("rawcdp connecting", "ws_url", version.WebSocketDebuggerURL)
	conn, _, _, err := ws.Dial(ctx, version.WebSocketDebuggerURL)
	if err != nil {
		return fmt.Errorf("rawcdp: dial: %w", err)
	}
	r.conn = conn
	r.waitMu.Lock()
	r.waiters = make(map[int64]chan cdpReply)
	r.waitMu.Unlock()
	go r.readLoop(conn)
	return nil
}

func (r *rawCDP) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}

func (r *rawCDP) readLoop(conn net.Conn) {
	defer func() {
		r.mu.Lock()
		replaced := r.conn != nil && r.conn != conn
		r.mu.Unlock()
		if !replaced {
			r.failWaiters()
		}
	}()
	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			slog.Debug("rawcdp read loop exit", "error", err)
			return
		}
		var frame cdpFrame
		if json.Unmarshal(data, &frame) != nil {
			continue
		}
		switch {
		case frame.ID > 0:
			if ch := r.takeWaiter(frame.ID); ch != nil {
				ch <- cdpReply{result: frame.Result, err: frame.Error}
			}
		case frame.Method != "":
			r.dispatchEvent(frame.Method, frame.SessionID, frame.Params)
		}
	}
}

func (r *rawCDP) takeWaiter(id int64) chan cdpReply {
	r.waitMu.Lock()
	defer r.waitMu.Unlock()
	ch := r.waiters[id]
	delete(r.waiters, id)
	return ch
}

func (r *rawCDP) failWaiters() {
	r.waitMu.Lock()
	defer r.waitMu.Unlock()
	for id, ch := range r.waiters {
		close(ch)
		delete(r.waiters, id)
	}
}

// call sends method on sessionID ("" for the browser) and decodes the
// result into out when out is non-nil.
func (r *rawCDP) call(ctx context.Context, sessionID, method string, params, out any) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}

	id := r.seq.Add(1)
	data, err := json.Marshal(struct {
		ID        int64  `json:"id"`
		Method    string `json:"method"`
		SessionID string `json:"sessionId,omitempty"`
		Params    any    `json:"params,omitempty"`
	}{id, method, sessionID, params})
	if err != nil {
		return fmt.Errorf("rawcdp: marshal %s: %w", method, err)
	}

	ch := make(chan cdpReply, 1)
	r.waitMu.Lock()
	r.waiters[id] = ch
	r.waitMu.Unlock()

	r.mu.Lock()
	err = wsutil.WriteClientText(conn, data)
	r.mu.Unlock()
	if err != nil {
		r.takeWaiter(id)
		return fmt.Errorf("rawcdp: send %s: %w", method, err)
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return fmt.Errorf("rawcdp: connection closed during %s", method)
		}
		if reply.err != nil {
			return fmt.Errorf("rawcdp: %s: %w", method, reply.err)
		}
		if out == nil || len(reply.result) == 0 {
			return nil
		}
		if err := json.Unmarshal(reply.result, out); err != nil {
			return fmt.Errorf("rawcdp: decode %s: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		r.takeWaiter(id)
		return ctx.Err()
	}
}

func (r *rawCDP) attachToTarget(ctx context.Context, targetID string) (string, error) {
	var res target.AttachToTargetReturns
	params := target.AttachToTarget(target.ID(targetID)).WithFlatten(true)
	if err := r.call(ctx, "", target.CommandAttachToTarget, params, &res); err != nil {
		return "", err
	}
	return string(res.SessionID), nil
}

func (r *rawCDP) detachFromTarget(ctx context.Context, sessionID string) error {
	params := target.DetachFromTarget().WithSessionID(target.SessionID(sessionID))
	return r.call(ctx, "", target.CommandDetachFromTarget, params, nil)
}

// evaluate runs js in the session's page, awaiting promises. A string
// result is returned unquoted; anything else as raw JSON.
func (r *rawCDP) evaluate(ctx context.Context, sessionID, js string) (string, error) {
	var res struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text      string `json:"text"`
			Exception *struct {
				Description string `json:"description"`
			} `json:"exception"`
		} `json:"exceptionDetails"`
	}
	params := runtime.Evaluate(js).WithReturnByValue(true).WithAwaitPromise(true)
	if err := r.call(ctx, sessionID, runtime.CommandEvaluate, params, &res); err != nil {
		return "", err
	}
	if ex := res.ExceptionDetails; ex != nil {
		msg := ex.Text
		if ex.Exception != nil && ex.Exception.Description != "" {
			msg = ex.Exception.Description
		}
		return "", fmt.Errorf("rawcdp: eval exception: %s", msg)
	}

	var s string
	if err := json.Unmarshal(res.Result.Value, &s); err != nil {
		return string(res.Result.Value), nil
	}
	return s, nil
}

// listTargets reads /json/list. It works even when the socket is down.
func (r *rawCDP) listTargets(ctx context.Context) ([]*target.Info, error) {
	var entries []struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := r.getJSON(ctx, "/json/list", &entries); err != nil {
		return nil, err
	}
	out := make([]*target.Info, 0, len(entries))
	for _, e := range entries {
		out = append(out, &target.Info{TargetID: target.ID(e.ID), Type: e.Type, Title: e.Title, URL: e.URL})
	}
	return out, nil
}

// dispatchCharInput types one character as rawKeyDown, char, keyUp. The
// char event is what inserts text and fires the input events React
// listens for.
func (r *rawCDP) dispatchCharInput(ctx context.Context, sessionID, ch string) error {
	events := []*input.DispatchKeyEventParams{
		input.DispatchKeyEvent(input.KeyRawDown).WithKey(ch),
		input.DispatchKeyEvent(input.KeyChar).WithKey(ch).WithText(ch).WithUnmodifiedText(ch),
		input.DispatchKeyEvent(input.KeyUp).WithKey(ch),
	}
	for _, ev := range events {
		if err := r.call(ctx, sessionID, input.CommandDispatchKeyEvent, ev, nil); err != nil {
			return fmt.Errorf("rawcdp: key %s: %w", ev.Type, err)
		}
	}
	return nil
}

// registerEventHandler subscribes fn to a CDP event such as
// Page.loadEventFired. The returned func unsubscribes.
func (r *rawCDP) registerEventHandler(method string, fn func(sessionID string, params json.RawMessage)) func() {
	id := r.seq.Add(1)
	r.eventMu.Lock()
	r.handlers[method] = append(r.handlers[method], eventHandler{id: id, fn: fn})
	r.eventMu.Unlock()

	return func() {
		r.eventMu.Lock()
		defer r.eventMu.Unlock()
		list := r.handlers[method]
		for i := range list {
			if list[i].id == id {
				r.handlers[method] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

func (r *rawCDP) dispatchEvent(method, sessionID string, params json.RawMessage) {
	r.eventMu.RLock()
	list := append([]eventHandler(nil), r.handlers[method]...)
	r.eventMu.RUnlock()
	for _, h := range list {
		h.fn(sessionID, params)
	}
}

func (r *rawCDP) enablePageDomain(ctx context.Context, sessionID string) error {
	return r.call(ctx, sessionID, page.CommandEnable, page.Enable(), nil)
}

func (r *rawCDP) createTarget(ctx context.Context, url string) (target.ID, error) {
	var res target.CreateTargetReturns
	if err := r.call(ctx, "", target.CommandCreateTarget, target.CreateTarget(url), &res); err != nil {
		return "", err
	}
	if res.TargetID == "" {
		return "", fmt.Errorf("rawcdp: createTarget returned empty id")
	}
	return res.TargetID, nil
}

func (r *rawCDP) activateTarget(ctx context.Context, targetID string) error {
	return r.call(ctx, "", target.CommandActivateTarget, target.ActivateTarget(target.ID(targetID)), nil)
}

// addScriptOnNewDocument makes source run before page scripts in every
// document the session's target loads from now on.
func (r *rawCDP) addScriptOnNewDocument(ctx context.Context, sessionID, source string) error {
	params := page.AddScriptToEvaluateOnNewDocument(source)
	return r.call(ctx, sessionID, page.CommandAddScriptToEvaluateOnNewDocument, params, nil)
}

func (r *rawCDP) grantPermissions(ctx context.Context, origin string, permissions []browser.PermissionType) error {
	params := browser.GrantPermissions(permissions).WithOrigin(origin)
	return r.call(ctx, "", browser.CommandGrantPermissions, params, nil)
}

// getJSON fetches one of the DevTools HTTP endpoints.
func (r *rawCDP) getJSON(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.httpBase+path, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rawcdp: %s: HTTP %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
