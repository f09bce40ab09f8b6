package commands

import (
	"context"
	"testing"

	"github.com/dgnsrekt/chatrelay/internal/types"
)

func TestFormatShortcut(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MacCtrl+Shift+S", "⌃ + ⇧ + S"},
		{"Ctrl+Shift+Y", "Ctrl + ⇧ + Y"},
		{"Alt+Shift+T", "⌥ + ⇧ + T"},
		{"Command+K", "Command + K"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FormatShortcut(tt.in); got != tt.want {
			t.Errorf("FormatShortcut(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestRegistryRunDispatches(t *testing.T) {
	var gotName, gotID, gotReason string
	r := NewRegistry(
		func(_ context.Context, id, reason string) error {
			gotName, gotID, gotReason = CaptureScreenshot, id, reason
			return nil
		},
		func(_ context.Context, id, reason string) error {
			gotName, gotID, gotReason = CaptureText, id, reason
			return nil
		},
	)

	if err := r.Run(context.Background(), CaptureText, "d1", ""); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if gotName != CaptureText || gotID != "d1" || gotReason != ReasonShortcut {
		t.Fatalf("ran %q (%q) with reason %q", gotName, gotID, gotReason)
	}

	if err := r.Run(context.Background(), CaptureScreenshot, "d2", "popup button"); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if gotName != CaptureScreenshot || gotReason != "popup button" {
		t.Fatalf("ran %q with reason %q", gotName, gotReason)
	}
}

func TestRegistryRunUnknown(t *testing.T) {
	r := NewRegistry(nil, nil)
	err := r.Run(context.Background(), "open-sidebar", "d1", "")
	if code := types.CodeOf(err); code != types.CodeValidation {
		t.Fatalf("code = %q; want %q", code, types.CodeValidation)
	}
	if _, ok := r.Lookup(CaptureText); ok {
		t.Fatal("Lookup() ok = true for a command without a runner")
	}
}

func TestRegistryList(t *testing.T) {
	cmds := NewRegistry(nil, nil).List()
	if len(cmds) != 2 || cmds[0].Name != CaptureScreenshot || cmds[1].Name != CaptureText {
		t.Fatalf("List() = %+v", cmds)
	}
	if cmds[0].Display == "" || cmds[0].Description == "" {
		t.Fatalf("command missing display fields: %+v", cmds[0])
	}
}
