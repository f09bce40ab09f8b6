package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	jsonv2 "github.com/go-json-experiment/json"
)

// sessionExecutor lets chromedp actions run over one of the client's flat
// sessions. Unlike a chromedp tab context it has nothing to cancel, so the
// tab outlives the action.
type sessionExecutor struct {
	raw       *rawCDP
	sessionID string
}

var _ cdp.Executor = (*sessionExecutor)(nil)

func (e *sessionExecutor) Execute(ctx context.Context, method string, params, res any) error {
	if method == target.CommandCloseTarget {
		return errors.New("cdpcontrol: closing tabs is not allowed")
	}

	var payload any
	if params != nil {
		buf, err := jsonv2.Marshal(params, chromedp.DefaultMarshalOptions)
		if err != nil {
			return err
		}
		payload = json.RawMessage(buf)
	}

	var result json.RawMessage
	if err := e.raw.call(ctx, e.sessionID, method, payload, &result); err != nil {
		return err
	}
	if res == nil || len(result) == 0 {
		return nil
	}
	return jsonv2.Unmarshal(result, res, chromedp.DefaultUnmarshalOptions)
}
