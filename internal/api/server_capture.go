package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/chatrelay/internal/commands"
	"github.com/dgnsrekt/chatrelay/internal/controller"
)

const reasonPanel = "control panel"

type captureInput struct {
	Body *struct {
		Reason string `json:"reason,omitempty" doc:"Free-form trigger label recorded with the delivery"`
	} `required:"false"`
}

func (in *captureInput) reason() string {
	if in.Body == nil || in.Body.Reason == "" {
		return reasonPanel
	}
	return in.Body.Reason
}

type triggerOutput struct {
	Body controller.Trigger
}

func registerCaptureHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "capture-screenshot",
		Method:        http.MethodPost,
		Path:          "/api/v1/capture/screenshot",
		Summary:       "Capture the active tab and upload it to the chat",
		Tags:          []string{"Capture"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *captureInput) (*triggerOutput, error) {
		trig, err := svc.CaptureScreenshot(ctx, input.reason())
		if err != nil {
			return nil, mapErr(err)
		}
		return &triggerOutput{Body: trig}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "capture-text",
		Method:        http.MethodPost,
		Path:          "/api/v1/capture/text",
		Summary:       "Send the active tab's selected text to the chat",
		Tags:          []string{"Capture"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *captureInput) (*triggerOutput, error) {
		trig, err := svc.CaptureText(ctx, input.reason())
		if err != nil {
			return nil, mapErr(err)
		}
		return &triggerOutput{Body: trig}, nil
	})

	type commandsOutput struct {
		Body struct {
			Commands []commands.Command `json:"commands"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-commands", Method: http.MethodGet, Path: "/api/v1/commands", Summary: "List trigger commands and their shortcuts", Tags: []string{"Commands"}},
		func(ctx context.Context, input *struct{}) (*commandsOutput, error) {
			out := &commandsOutput{}
			out.Body.Commands = svc.Commands()
			return out, nil
		})

	type runCommandInput struct {
		Name string `path:"name" doc:"Command name, e.g. capture-screenshot"`
		Body *struct {
			Reason string `json:"reason,omitempty"`
		} `required:"false"`
	}
	huma.Register(api, huma.Operation{
		OperationID:   "run-command",
		Method:        http.MethodPost,
		Path:          "/api/v1/commands/{name}",
		Summary:       "Run a trigger command",
		Tags:          []string{"Commands"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *runCommandInput) (*triggerOutput, error) {
		reason := commands.ReasonShortcut
		if input.Body != nil && input.Body.Reason != "" {
			reason = input.Body.Reason
		}
		trig, err := svc.RunCommand(ctx, input.Name, reason)
		if err != nil {
			return nil, mapErr(err)
		}
		return &triggerOutput{Body: trig}, nil
	})
}
