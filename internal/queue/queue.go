// Package queue persists pending screenshots for one target origin.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/dgnsrekt/chatrelay/internal/types"
)

// StorageKey names the queue directory inside an origin's storage.
const StorageKey = "screenshot-queue"

const indexFile = "index.json"

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Item describes one queued screenshot. The image bytes live next to the
// sidecar as <ID>.<ext>.
type Item struct {
	ID         string    `json:"id"`
	Encoding   string    `json:"encoding"`
	Filename   string    `json:"filename"`
	SizeBytes  int       `json:"size_bytes"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue is an ordered on-disk list of screenshots. Dequeued items keep their
// files until Discard, so a crash mid-upload loses nothing.
type Queue struct {
	dir   string
	mu    sync.Mutex
	order []string
}

// Open opens (creating if needed) the queue of origin under root. Items
// whose sidecar exists but which are missing from the index are put back at
// the head in enqueue order.
func Open(root, origin string) (*Queue, error) {
	dir := filepath.Join(root, originDir(origin), StorageKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("queue: mkdir %s: %w", dir, err)
	}

	q := &Queue{dir: dir}
	if err := q.load(); err != nil {
		return nil, err
	}
	return q, nil
}

// Dir returns the queue's directory.
func (q *Queue) Dir() string { return q.dir }

// Push appends a screenshot to the tail.
func (q *Queue) Push(shot types.Screenshot, reason string) (Item, error) {
	encoding := shot.Encoding
	if encoding == "" {
		encoding = mimetype.Detect(shot.Image).String()
		shot.Encoding = encoding
	}
	item := Item{
		ID:         uuid.NewString(),
		Encoding:   encoding,
		Filename:   "screenshot." + shot.Extension(),
		SizeBytes:  len(shot.Image),
		Width:      shot.Width,
		Height:     shot.Height,
		Reason:     reason,
		EnqueuedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := os.WriteFile(q.imagePath(item), shot.Image, 0o644); err != nil {
		return Item{}, fmt.Errorf("queue: write image: %w", err)
	}
	if err := q.writeMeta(item); err != nil {
		q.removeImage(item)
		return Item{}, err
	}

	q.order = append(q.order, item.ID)
	if err := q.saveIndex(); err != nil {
		q.order = q.order[:len(q.order)-1]
		q.removeFiles(item)
		return Item{}, err
	}
	return item, nil
}

// Dequeue removes the head from the order and returns it with its bytes.
// ok is false when the queue is empty.
func (q *Queue) Dequeue() (Item, []byte, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.order) > 0 {
		id := q.order[0]
		q.order = q.order[1:]
		if err := q.saveIndex(); err != nil {
			q.order = append([]string{id}, q.order...)
			return Item{}, nil, false, err
		}

		item, err := q.readMeta(id)
		if err != nil {
			slog.Warn("queue dropping unreadable item", "dir", q.dir, "id", id, "error", err)
			continue
		}
		data, err := os.ReadFile(q.imagePath(item))
		if err != nil {
			slog.Warn("queue dropping item without image", "dir", q.dir, "id", id, "error", err)
			q.removeFiles(item)
			continue
		}
		return item, data, true, nil
	}
	return Item{}, nil, false, nil
}

// PushFront returns a dequeued item to the head, persisting its attempt
// count.
func (q *Queue) PushFront(item Item) error {
	if err := validateID(item.ID); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.writeMeta(item); err != nil {
		return err
	}
	q.order = append([]string{item.ID}, q.order...)
	if err := q.saveIndex(); err != nil {
		q.order = q.order[1:]
		return err
	}
	return nil
}

// Discard deletes a dequeued item's files.
func (q *Queue) Discard(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	item, err := q.readMeta(id)
	if err != nil {
		return err
	}
	q.removeFiles(item)
	return nil
}

// Len returns the number of items waiting in the order.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// List returns the waiting items head first.
func (q *Queue) List() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]Item, 0, len(q.order))
	for _, id := range q.order {
		item, err := q.readMeta(id)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items
}

func (q *Queue) load() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var order []string
	data, err := os.ReadFile(filepath.Join(q.dir, indexFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("queue: read index: %w", err)
	default:
		if err := json.Unmarshal(data, &order); err != nil {
			slog.Warn("queue index unreadable, rebuilding", "dir", q.dir, "error", err)
			order = nil
		}
	}

	matches, err := filepath.Glob(filepath.Join(q.dir, "*.json"))
	if err != nil {
		return fmt.Errorf("queue: glob: %w", err)
	}
	present := make(map[string]Item, len(matches))
	for _, path := range matches {
		id := strings.TrimSuffix(filepath.Base(path), ".json")
		if validateID(id) != nil {
			continue
		}
		item, err := q.readMeta(id)
		if err != nil {
			continue
		}
		present[id] = item
	}

	indexed := make(map[string]bool, len(order))
	kept := make([]string, 0, len(order))
	for _, id := range order {
		if _, ok := present[id]; !ok || indexed[id] {
			continue
		}
		indexed[id] = true
		kept = append(kept, id)
	}

	var orphans []Item
	for id, item := range present {
		if !indexed[id] {
			orphans = append(orphans, item)
		}
	}
	sort.Slice(orphans, func(i, j int) bool {
		return orphans[i].EnqueuedAt.Before(orphans[j].EnqueuedAt)
	})
	recovered := make([]string, 0, len(orphans)+len(kept))
	for _, item := range orphans {
		recovered = append(recovered, item.ID)
	}
	q.order = append(recovered, kept...)

	if len(orphans) > 0 {
		slog.Info("queue recovered in-flight items", "dir", q.dir, "count", len(orphans))
	}
	return q.saveIndex()
}

func (q *Queue) saveIndex() error {
	data, err := json.Marshal(q.order)
	if err != nil {
		return fmt.Errorf("queue: marshal index: %w", err)
	}
	return writeFileAtomic(filepath.Join(q.dir, indexFile), data)
}

func (q *Queue) writeMeta(item Item) error {
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("queue: marshal meta: %w", err)
	}
	return writeFileAtomic(q.metaPath(item.ID), data)
}

func (q *Queue) readMeta(id string) (Item, error) {
	data, err := os.ReadFile(q.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Item{}, fmt.Errorf("queue item not found: %s", id)
		}
		return Item{}, fmt.Errorf("queue: read meta: %w", err)
	}
	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return Item{}, fmt.Errorf("queue: unmarshal meta: %w", err)
	}
	return item, nil
}

func (q *Queue) removeFiles(item Item) {
	q.removeImage(item)
	if err := os.Remove(q.metaPath(item.ID)); err != nil && !os.IsNotExist(err) {
		slog.Debug("queue meta cleanup failed", "id", item.ID, "error", err)
	}
}

func (q *Queue) removeImage(item Item) {
	if err := os.Remove(q.imagePath(item)); err != nil {
		slog.Debug("queue image cleanup failed", "id", item.ID, "error", err)
	}
}

func (q *Queue) metaPath(id string) string {
	return filepath.Join(q.dir, id+".json")
}

func (q *Queue) imagePath(item Item) string {
	return filepath.Join(q.dir, item.ID+filepath.Ext(item.Filename))
}

func validateID(id string) error {
	if !uuidRe.MatchString(id) {
		return fmt.Errorf("invalid queue item id: %q", id)
	}
	return nil
}

// originDir turns "https://chatgpt.com" into "https_chatgpt.com".
func originDir(origin string) string {
	origin = strings.ToLower(strings.TrimSpace(origin))
	if origin == "" {
		return "_default"
	}
	r := strings.NewReplacer("://", "_", ":", "_", "/", "_", "\\", "_")
	return r.Replace(origin)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("queue: write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("queue: rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
