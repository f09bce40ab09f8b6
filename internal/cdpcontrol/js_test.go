package cdpcontrol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/dgnsrekt/chatrelay/internal/types"
)

func TestJSStringAndJSONHelpers(t *testing.T) {
	if got := JSString("hello\nworld"); got != "\"hello\\nworld\"" {
		t.Fatalf("JSString = %q, want %q", got, "\"hello\\nworld\"")
	}

	got := JSJSON(map[string]any{"a": 1, "b": true})
	var m map[string]any
	if err := json.Unmarshal([]byte(got), &m); err != nil {
		t.Fatalf("JSJSON returned invalid JSON: %v", err)
	}
	if m["b"] != true {
		t.Fatalf("JSJSON decoded map = %v, want b=true", m["b"])
	}
}

func TestJSEvalWrappers(t *testing.T) {
	syncExpr := WrapJSEval("return 1;")
	if !strings.HasPrefix(syncExpr, "(function(){\ntry {") {
		t.Fatalf("unexpected sync wrapper: %s", syncExpr)
	}

	asyncExpr := WrapJSEvalAsync("await Promise.resolve(1);")
	if !strings.HasPrefix(asyncExpr, "(async function(){\ntry {") {
		t.Fatalf("unexpected async wrapper: %s", asyncExpr)
	}
	if !strings.Contains(asyncExpr, "await Promise.resolve(1);") {
		t.Fatalf("async wrapper lost body: %s", asyncExpr)
	}
	if !strings.Contains(asyncExpr, `error_code:"EVAL_FAILURE"`) {
		t.Fatalf("wrapper does not map thrown errors: %s", asyncExpr)
	}
}

func TestDecodeEnvelope(t *testing.T) {
	var out struct {
		Status string `json:"status"`
	}
	if err := decodeEnvelope(`{"ok":true,"data":{"status":"ready"}}`, &out); err != nil {
		t.Fatalf("decodeEnvelope() = %v; want nil", err)
	}
	if out.Status != "ready" {
		t.Fatalf("decoded status = %q; want %q", out.Status, "ready")
	}

	err := decodeEnvelope(`{"ok":false,"error_code":"INPUT_FIELD_NOT_FOUND","error_message":"no input"}`, nil)
	if code := types.CodeOf(err); code != types.CodeInputFieldNotFound {
		t.Fatalf("decodeEnvelope() code = %q; want %q", code, types.CodeInputFieldNotFound)
	}

	err = decodeEnvelope(`{"ok":false}`, nil)
	if code := types.CodeOf(err); code != CodeEvalFailure {
		t.Fatalf("decodeEnvelope() code = %q; want %q", code, CodeEvalFailure)
	}

	err = decodeEnvelope(`not json`, nil)
	if code := types.CodeOf(err); code != CodeEvalFailure {
		t.Fatalf("decodeEnvelope(garbage) code = %q; want %q", code, CodeEvalFailure)
	}
}
