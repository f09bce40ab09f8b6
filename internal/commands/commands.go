// Package commands names the two trigger actions so hotkey daemons and the
// control panel can invoke them by name.
package commands

import (
	"context"
	"sort"
	"strings"

	"github.com/dgnsrekt/chatrelay/internal/types"
)

const (
	CaptureScreenshot = "capture-screenshot"
	CaptureText       = "capture-text"
)

// ReasonShortcut is the delivery reason recorded for hotkey triggers.
const ReasonShortcut = "keyboard shortcut"

// RunFunc performs a command. reason ends up in logs and queue metadata.
type RunFunc func(ctx context.Context, deliveryID, reason string) error

type Command struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Shortcut    string `json:"shortcut"`
	Display     string `json:"display"`
}

type Registry struct {
	cmds map[string]entry
}

type entry struct {
	cmd Command
	run RunFunc
}

// NewRegistry binds the built-in commands to their runners.
func NewRegistry(screenshot, text RunFunc) *Registry {
	r := &Registry{cmds: make(map[string]entry)}
	r.register(Command{
		Name:        CaptureScreenshot,
		Description: "Capture the visible tab and upload it to the chat",
		Shortcut:    "Alt+Shift+S",
	}, screenshot)
	r.register(Command{
		Name:        CaptureText,
		Description: "Send the selected text to the chat",
		Shortcut:    "Alt+Shift+T",
	}, text)
	return r
}

func (r *Registry) register(cmd Command, run RunFunc) {
	cmd.Display = FormatShortcut(cmd.Shortcut)
	r.cmds[cmd.Name] = entry{cmd: cmd, run: run}
}

// List returns the commands sorted by name.
func (r *Registry) List() []Command {
	out := make([]Command, 0, len(r.cmds))
	for _, e := range r.cmds {
		out = append(out, e.cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the command called name.
func (r *Registry) Lookup(name string) (Command, bool) {
	e, ok := r.cmds[strings.TrimSpace(name)]
	return e.cmd, ok && e.run != nil
}

// Run dispatches name. Unknown names fail with VALIDATION.
func (r *Registry) Run(ctx context.Context, name, deliveryID, reason string) error {
	e, ok := r.cmds[strings.TrimSpace(name)]
	if !ok || e.run == nil {
		return types.NewError(types.CodeValidation, "unknown command: "+name, nil)
	}
	if reason == "" {
		reason = ReasonShortcut
	}
	return e.run(ctx, deliveryID, reason)
}

var shortcutKeys = map[string]string{
	"MacCtrl": "⌃",
	"Shift":   "⇧",
	"Alt":     "⌥",
}

// FormatShortcut renders a Chrome-style shortcut such as "MacCtrl+Shift+S"
// as "⌃ + ⇧ + S".
func FormatShortcut(shortcut string) string {
	if shortcut == "" {
		return ""
	}
	parts := strings.Split(shortcut, "+")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if sym, ok := shortcutKeys[p]; ok {
			p = sym
		}
		parts[i] = p
	}
	return strings.Join(parts, " + ")
}
