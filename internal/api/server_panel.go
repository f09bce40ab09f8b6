package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/chatrelay/internal/adapter"
	"github.com/dgnsrekt/chatrelay/internal/controller"
	"github.com/dgnsrekt/chatrelay/internal/types"
)

func registerPanelHandlers(api huma.API, svc Service) {
	type statusInput struct {
		Limit int `query:"limit" default:"20" minimum:"0" maximum:"500" doc:"Number of recent entries to return"`
	}
	type statusOutput struct {
		Body controller.StatusView
	}
	huma.Register(api, huma.Operation{OperationID: "get-status", Method: http.MethodGet, Path: "/api/v1/status", Summary: "Current status line and recent deliveries", Tags: []string{"Status"}},
		func(ctx context.Context, input *statusInput) (*statusOutput, error) {
			return &statusOutput{Body: svc.Status(input.Limit)}, nil
		})

	type settingsOutput struct {
		Body types.Settings
	}
	huma.Register(api, huma.Operation{OperationID: "get-settings", Method: http.MethodGet, Path: "/api/v1/settings", Summary: "Get delivery settings", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct{}) (*settingsOutput, error) {
			return &settingsOutput{Body: svc.Settings()}, nil
		})

	// Omitted fields keep their current value.
	type updateSettingsInput struct {
		Body struct {
			AutoSend          *bool   `json:"auto_send,omitempty"`
			ShowNotifications *bool   `json:"show_notifications,omitempty"`
			SwitchTab         *bool   `json:"switch_tab,omitempty"`
			TargetURL         *string `json:"target_url,omitempty" doc:"Chat page opened when no target tab exists"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "update-settings", Method: http.MethodPut, Path: "/api/v1/settings", Summary: "Update delivery settings", Tags: []string{"Settings"}},
		func(ctx context.Context, input *updateSettingsInput) (*settingsOutput, error) {
			saved, err := svc.PatchSettings(func(next *types.Settings) {
				if input.Body.AutoSend != nil {
					next.AutoSend = *input.Body.AutoSend
				}
				if input.Body.ShowNotifications != nil {
					next.ShowNotifications = *input.Body.ShowNotifications
				}
				if input.Body.SwitchTab != nil {
					next.SwitchTab = *input.Body.SwitchTab
				}
				if input.Body.TargetURL != nil {
					next.TargetURL = *input.Body.TargetURL
				}
			})
			if err != nil {
				return nil, mapErr(err)
			}
			return &settingsOutput{Body: saved}, nil
		})

	type queueOutput struct {
		Body struct {
			Queues []adapter.QueueSnapshot `json:"queues"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-queues", Method: http.MethodGet, Path: "/api/v1/queue", Summary: "Pending screenshots per target origin", Tags: []string{"Status"}},
		func(ctx context.Context, input *struct{}) (*queueOutput, error) {
			out := &queueOutput{}
			out.Body.Queues = svc.Queues()
			return out, nil
		})
}
