// Command relayctl triggers chatrelay deliveries from the shell, for binding
// to desktop hotkeys.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
)

type Globals struct {
	Server  string        `default:"http://127.0.0.1:8190" env:"RELAY_API_URL" help:"chatrelay control API base URL."`
	Timeout time.Duration `default:"10s" help:"Request timeout."`
}

func (g *Globals) client() *apiClient {
	return newAPIClient(g.Server, g.Timeout)
}

type CLI struct {
	Globals

	CaptureScreenshot screenshotCmd `cmd:"" name:"capture-screenshot" help:"Capture the active tab and upload it to the chat."`
	CaptureText       textCmd       `cmd:"" name:"capture-text" help:"Send the selected text to the chat."`
	Status            statusCmd     `cmd:"" help:"Show the status line and recent deliveries."`
	Settings          settingsCmd   `cmd:"" help:"Read or change delivery settings."`
}

type screenshotCmd struct {
	Reason string `default:"keyboard shortcut" help:"Trigger label recorded with the delivery."`
}

func (c *screenshotCmd) Run(g *Globals) error {
	return g.client().trigger(context.Background(), "capture-screenshot", c.Reason, os.Stdout)
}

type textCmd struct {
	Reason string `default:"keyboard shortcut" help:"Trigger label recorded with the delivery."`
}

func (c *textCmd) Run(g *Globals) error {
	return g.client().trigger(context.Background(), "capture-text", c.Reason, os.Stdout)
}

type statusCmd struct {
	Limit int `default:"10" help:"Number of recent entries."`
}

func (c *statusCmd) Run(g *Globals) error {
	return g.client().status(context.Background(), c.Limit, os.Stdout)
}

type settingsCmd struct {
	Get settingsGetCmd `cmd:"" default:"1" help:"Print the current settings."`
	Set settingsSetCmd `cmd:"" help:"Change settings; omitted flags keep their value."`
}

type settingsGetCmd struct{}

func (c *settingsGetCmd) Run(g *Globals) error {
	return g.client().getSettings(context.Background(), os.Stdout)
}

type settingsSetCmd struct {
	AutoSend          *bool   `help:"Press send after inserting."`
	ShowNotifications *bool   `help:"Show toasts in the chat page."`
	SwitchTab         *bool   `help:"Bring the chat tab to the front."`
	TargetURL         *string `name:"target-url" help:"Chat page opened when none is open."`
}

func (c *settingsSetCmd) Run(g *Globals) error {
	patch := settingsPatch{
		AutoSend:          c.AutoSend,
		ShowNotifications: c.ShowNotifications,
		SwitchTab:         c.SwitchTab,
		TargetURL:         c.TargetURL,
	}
	if patch.empty() {
		return fmt.Errorf("nothing to change: pass at least one flag")
	}
	return g.client().putSettings(context.Background(), patch, os.Stdout)
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("relayctl"),
		kong.Description("Trigger chatrelay captures and manage its settings."),
		kong.UsageOnError(),
	)
	kctx.FatalIfErrorf(kctx.Run(&cli.Globals))
}
