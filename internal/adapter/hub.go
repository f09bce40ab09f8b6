package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dgnsrekt/chatrelay/internal/queue"
	"github.com/dgnsrekt/chatrelay/internal/types"
)

// HubConfig configures adapters created by a Hub.
type HubConfig struct {
	QueueDir    string
	MaxAttempts int
	Timing      Timing
	OnDrop      DropFunc
}

// QueueSnapshot lists the pending items of one lane.
type QueueSnapshot struct {
	Origin   string       `json:"origin"`
	Draining bool         `json:"draining"`
	Items    []queue.Item `json:"items"`
}

// Hub routes coordinator messages to the adapter of each target tab,
// creating adapters on first contact.
type Hub struct {
	bg     context.Context
	cfg    HubConfig
	newDOM func(types.Tab) DOM

	mu       sync.Mutex
	adapters map[string]*Adapter
	lanes    map[string]*Lane

	wg sync.WaitGroup
}

// NewHub returns a Hub whose adapters drive tabs through page. Background
// work stops when bg is cancelled.
func NewHub(bg context.Context, page Page, cfg HubConfig) *Hub {
	return newHub(bg, cfg, func(tab types.Tab) DOM { return NewPageDOM(page, tab) })
}

func newHub(bg context.Context, cfg HubConfig, newDOM func(types.Tab) DOM) *Hub {
	if cfg.Timing == (Timing{}) {
		cfg.Timing = DefaultTiming()
	}
	return &Hub{
		bg:       bg,
		cfg:      cfg,
		newDOM:   newDOM,
		adapters: make(map[string]*Adapter),
		lanes:    make(map[string]*Lane),
	}
}

// Send delivers msg to the adapter of tab and returns its acknowledgement.
// A tab without the bootstrap fails with ADAPTER_UNRESPONSIVE.
func (h *Hub) Send(ctx context.Context, tab types.Tab, msg types.Message) (types.Response, error) {
	a, err := h.adapterFor(tab)
	if err != nil {
		return types.Response{}, err
	}
	resp, err := a.Handle(ctx, msg)
	if err != nil {
		slog.Debug("hub send failed", "tab_id", tab.ID, "type", msg.Type, "code", types.CodeOf(err), "error", err)
		return types.Response{}, err
	}
	slog.Debug("hub send ok", "tab_id", tab.ID, "type", msg.Type, "status", resp.Status)
	return resp, nil
}

// Forget drops the adapter of a closed tab. Its lane and queue survive.
func (h *Hub) Forget(tabID string) {
	h.mu.Lock()
	delete(h.adapters, tabID)
	h.mu.Unlock()
}

// Queues snapshots every lane opened so far, sorted by origin.
func (h *Hub) Queues() []QueueSnapshot {
	h.mu.Lock()
	lanes := make([]*Lane, 0, len(h.lanes))
	for _, l := range h.lanes {
		lanes = append(lanes, l)
	}
	h.mu.Unlock()

	out := make([]QueueSnapshot, 0, len(lanes))
	for _, l := range lanes {
		out = append(out, QueueSnapshot{
			Origin:   l.origin,
			Draining: l.draining.Load(),
			Items:    l.queue.List(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Origin < out[j].Origin })
	return out
}

// Wait blocks until background deliveries have returned.
func (h *Hub) Wait() {
	h.wg.Wait()
}

func (h *Hub) adapterFor(tab types.Tab) (*Adapter, error) {
	if tab.ID == "" {
		return nil, types.NewError(types.CodeValidation, "tab id is required", nil)
	}
	origin := tab.Origin()
	if origin == "" {
		return nil, types.NewError(types.CodeValidation, fmt.Sprintf("tab %s has no origin (url %q)", tab.ID, tab.URL), nil)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if a, ok := h.adapters[tab.ID]; ok && a.lane.origin == origin {
		return a, nil
	}

	lane, ok := h.lanes[origin]
	if !ok {
		q, err := queue.Open(h.cfg.QueueDir, origin)
		if err != nil {
			return nil, types.NewError(types.CodeEvalFailure, "open queue for "+origin, err)
		}
		lane = &Lane{origin: origin, queue: q, maxAttempts: h.cfg.MaxAttempts, onDrop: h.cfg.OnDrop}
		h.lanes[origin] = lane
		slog.Info("hub lane opened", "origin", origin, "dir", q.Dir(), "pending", q.Len())
	}

	a := newAdapter(h.bg, &h.wg, tab, h.newDOM(tab), lane, h.cfg.Timing)
	h.adapters[tab.ID] = a
	return a, nil
}
