package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dgnsrekt/chatrelay/internal/adapter"
	"github.com/dgnsrekt/chatrelay/internal/commands"
	"github.com/dgnsrekt/chatrelay/internal/coordinator"
	"github.com/dgnsrekt/chatrelay/internal/notify"
	"github.com/dgnsrekt/chatrelay/internal/queue"
	"github.com/dgnsrekt/chatrelay/internal/status"
	"github.com/dgnsrekt/chatrelay/internal/types"
)

// TriggerStatus is what a caller gets back before the delivery runs.
const TriggerStatus = "capture queued"

type Deliverer interface {
	CaptureAndDeliverScreenshot(ctx context.Context, deliveryID, reason string, settings types.Settings) error
	CaptureAndDeliverText(ctx context.Context, deliveryID, reason string, settings types.Settings) error
}

type SettingsStore interface {
	Get() types.Settings
	UpdateFunc(fn func(*types.Settings) error) (types.Settings, error)
}

type QueueLister interface {
	Queues() []adapter.QueueSnapshot
}

type Notifier interface {
	Notify(ctx context.Context, msg notify.Message)
}

// Trigger acknowledges an accepted capture.
type Trigger struct {
	Status     string `json:"status"`
	DeliveryID string `json:"delivery_id"`
	Command    string `json:"command"`
}

// StatusView is the status line plus recent history.
type StatusView struct {
	Current *status.Entry  `json:"current,omitempty"`
	Recent  []status.Entry `json:"recent"`
}

// Service joins the delivery stack behind the control API.
type Service struct {
	bg       context.Context
	wg       sync.WaitGroup
	deliver  Deliverer
	settings SettingsStore
	queues   QueueLister
	tracker  *status.Tracker
	notifier Notifier
	commands *commands.Registry
	newID    func() string
}

// NewService wires the service. Deliveries it starts run under bg. queues and
// notifier may be nil.
func NewService(bg context.Context, deliver Deliverer, settings SettingsStore, queues QueueLister, tracker *status.Tracker, notifier Notifier) *Service {
	s := &Service{
		bg:       bg,
		deliver:  deliver,
		settings: settings,
		queues:   queues,
		tracker:  tracker,
		notifier: notifier,
		newID:    uuid.NewString,
	}
	s.commands = commands.NewRegistry(
		func(ctx context.Context, id, reason string) error {
			return s.deliver.CaptureAndDeliverScreenshot(ctx, id, reason, s.settings.Get())
		},
		func(ctx context.Context, id, reason string) error {
			return s.deliver.CaptureAndDeliverText(ctx, id, reason, s.settings.Get())
		},
	)
	return s
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return types.NewError(types.CodeValidation, fieldName+" is required", nil)
	}
	return nil
}

// RunCommand starts the named command in the background and returns at once.
func (s *Service) RunCommand(_ context.Context, name, reason string) (Trigger, error) {
	if err := s.requireNonEmpty(name, "command"); err != nil {
		return Trigger{}, err
	}
	cmd, ok := s.commands.Lookup(name)
	if !ok {
		return Trigger{}, types.NewError(types.CodeValidation, "unknown command: "+name, nil)
	}

	id := s.newID()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.commands.Run(s.bg, cmd.Name, id, reason); err != nil {
			slog.Debug("controller command finished with error", "command", cmd.Name, "delivery_id", id, "code", types.CodeOf(err))
		}
	}()
	slog.Info("controller capture triggered", "command", cmd.Name, "delivery_id", id, "reason", reason)
	return Trigger{Status: TriggerStatus, DeliveryID: id, Command: cmd.Name}, nil
}

func (s *Service) CaptureScreenshot(ctx context.Context, reason string) (Trigger, error) {
	return s.RunCommand(ctx, commands.CaptureScreenshot, reason)
}

func (s *Service) CaptureText(ctx context.Context, reason string) (Trigger, error) {
	return s.RunCommand(ctx, commands.CaptureText, reason)
}

func (s *Service) Commands() []commands.Command {
	return s.commands.List()
}

func (s *Service) Status(limit int) StatusView {
	view := StatusView{Recent: s.tracker.Recent(limit)}
	if cur, ok := s.tracker.Current(); ok {
		view.Current = &cur
	}
	return view
}

func (s *Service) Settings() types.Settings {
	return s.settings.Get()
}

// PatchSettings applies edit to the current settings atomically, so two
// partial updates racing each other both take effect.
func (s *Service) PatchSettings(edit func(*types.Settings)) (types.Settings, error) {
	return s.settings.UpdateFunc(func(cur *types.Settings) error {
		edit(cur)
		if cur.TargetURL != "" && types.OriginOf(cur.TargetURL) == "" {
			return types.NewError(types.CodeValidation, fmt.Sprintf("target_url %q is not an http(s) URL", cur.TargetURL), nil)
		}
		return nil
	})
}

func (s *Service) Queues() []adapter.QueueSnapshot {
	if s.queues == nil {
		return []adapter.QueueSnapshot{}
	}
	return s.queues.Queues()
}

// HandleDrop reports a queued screenshot that exhausted its upload attempts.
// It is installed as the hub's drop callback.
func (s *Service) HandleDrop(ctx context.Context, origin string, item queue.Item, cause error) {
	msg := fmt.Sprintf("Screenshot for %s dropped after %d failed uploads", origin, item.Attempts)
	s.tracker.Record(status.Entry{
		DeliveryID: item.ID,
		Kind:       coordinator.KindScreenshot,
		State:      status.StateError,
		Message:    msg,
		Code:       types.CodeOf(cause),
	})
	if s.notifier == nil {
		return
	}
	body := msg
	if cause != nil {
		body += ": " + cause.Error()
	}
	s.notifier.Notify(context.WithoutCancel(ctx), notify.Message{
		Title:    "chatrelay: screenshot dropped",
		Body:     body,
		Priority: "high",
		Tags:     []string{"warning"},
	})
}

// Wait blocks until triggered deliveries have returned.
func (s *Service) Wait() {
	s.wg.Wait()
}
