package cdpcontrol

import (
	"context"
	"errors"
	"testing"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
)

func TestSessionExecutorRefusesCloseTarget(t *testing.T) {
	exec := &sessionExecutor{raw: &rawCDP{}, sessionID: "S1"}
	err := exec.Execute(context.Background(), target.CommandCloseTarget, target.CloseTarget("T1"), nil)
	if err == nil {
		t.Fatal("Execute(Target.closeTarget) = nil; want error")
	}
}

func TestSessionExecutorNeedsConnection(t *testing.T) {
	exec := &sessionExecutor{raw: &rawCDP{}, sessionID: "S1"}
	err := exec.Execute(context.Background(), page.CommandBringToFront, nil, nil)
	if !errors.Is(err, errNotConnected) {
		t.Fatalf("Execute() = %v; want %v", err, errNotConnected)
	}
}
