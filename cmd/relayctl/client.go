package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string, timeout time.Duration) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

type settingsPatch struct {
	AutoSend          *bool   `json:"auto_send,omitempty"`
	ShowNotifications *bool   `json:"show_notifications,omitempty"`
	SwitchTab         *bool   `json:"switch_tab,omitempty"`
	TargetURL         *string `json:"target_url,omitempty"`
}

func (p settingsPatch) empty() bool {
	return p.AutoSend == nil && p.ShowNotifications == nil && p.SwitchTab == nil && p.TargetURL == nil
}

func (c *apiClient) trigger(ctx context.Context, command, reason string, out io.Writer) error {
	body := map[string]string{"reason": reason}
	return c.do(ctx, http.MethodPost, "/api/v1/commands/"+url.PathEscape(command), body, out)
}

func (c *apiClient) status(ctx context.Context, limit int, out io.Writer) error {
	return c.do(ctx, http.MethodGet, "/api/v1/status?limit="+strconv.Itoa(limit), nil, out)
}

func (c *apiClient) getSettings(ctx context.Context, out io.Writer) error {
	return c.do(ctx, http.MethodGet, "/api/v1/settings", nil, out)
}

func (c *apiClient) putSettings(ctx context.Context, patch settingsPatch, out io.Writer) error {
	return c.do(ctx, http.MethodPut, "/api/v1/settings", patch, out)
}

// do sends the request and pretty-prints the JSON answer to out. Non-2xx
// answers become errors carrying the server's detail.
func (c *apiClient) do(ctx context.Context, method, path string, body any, out io.Writer) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chatrelay unreachable at %s: %w", c.base, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var problem struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(raw, &problem) == nil && problem.Detail != "" {
			return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, problem.Detail)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		_, err = out.Write(raw)
		return err
	}
	pretty.WriteByte('\n')
	_, err = out.Write(pretty.Bytes())
	return err
}
