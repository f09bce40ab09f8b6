package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/chatrelay/internal/adapter"
	"github.com/dgnsrekt/chatrelay/internal/commands"
	"github.com/dgnsrekt/chatrelay/internal/controller"
	"github.com/dgnsrekt/chatrelay/internal/types"
)

type Service interface {
	CaptureScreenshot(ctx context.Context, reason string) (controller.Trigger, error)
	CaptureText(ctx context.Context, reason string) (controller.Trigger, error)
	RunCommand(ctx context.Context, name, reason string) (controller.Trigger, error)
	Commands() []commands.Command
	Status(limit int) controller.StatusView
	Settings() types.Settings
	PatchSettings(edit func(*types.Settings)) (types.Settings, error)
	Queues() []adapter.QueueSnapshot
}

func NewServer(svc Service) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("chatrelay control API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	registerHealthHandlers(api)
	registerCaptureHandlers(api, svc)
	registerPanelHandlers(api, svc)

	return router
}

func registerHealthHandlers(api huma.API) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *types.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case types.CodeValidation, types.CodeNoSelection:
			return huma.Error400BadRequest(coded.Message)
		case types.CodeNoActiveTab, types.CodeTabNotFound:
			return huma.Error404NotFound(coded.Message)
		case types.CodeEvalTimeout, types.CodeDeliveryTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case types.CodeCDPUnavailable, types.CodeAdapterUnresponsive:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
