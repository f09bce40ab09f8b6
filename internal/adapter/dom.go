package adapter

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/dgnsrekt/chatrelay/internal/cdpcontrol"
	"github.com/dgnsrekt/chatrelay/internal/types"
)

// ToastKind selects the toast colour.
type ToastKind string

const (
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
	ToastInfo    ToastKind = "info"
)

// File is an attachment handed to the page.
type File struct {
	Name string
	MIME string
	Data []byte
}

// DOM is the set of page operations the adapter needs. Locate marks the
// first element matching a table under role; the other calls act on the
// element marked for their role.
type DOM interface {
	Ready(ctx context.Context) (bool, error)
	Locate(ctx context.Context, role string, table []Locator) (bool, error)
	Click(ctx context.Context, role string) error
	Focus(ctx context.Context, role string) error
	Clear(ctx context.Context, role string) error
	Content(ctx context.Context, role string) (string, error)
	TypeChars(ctx context.Context, text string) error
	PasteText(ctx context.Context, role, text string) error
	AssignValue(ctx context.Context, role, text string) error
	SetNativeValue(ctx context.Context, role, text string) error
	SetFiles(ctx context.Context, role string, file File) (bool, error)
	DropFile(ctx context.Context, role string, file File) error
	AttachmentVisible(ctx context.Context, filename string) (bool, error)
	Toast(ctx context.Context, message string, kind ToastKind) error
}

// Page is the browser surface pageDOM runs on.
type Page interface {
	Evaluate(ctx context.Context, tabID, js string, out any) error
	TypeChars(ctx context.Context, tabID, text string) error
}

// pageDOM implements DOM by calling window.__chatRelay in one tab.
type pageDOM struct {
	page  Page
	tabID string
}

// NewPageDOM binds DOM operations to tab.
func NewPageDOM(page Page, tab types.Tab) DOM {
	return &pageDOM{page: page, tabID: tab.ID}
}

const jsReady = `return JSON.stringify({ok:true,data:!!(window.__chatRelay && typeof window.__chatRelay.ping === "function" && window.__chatRelay.ping() === "ready")});`

func callJS(op string, args ...any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = cdpcontrol.JSJSON(a)
	}
	return cdpcontrol.WrapJSEvalAsync(`var r = window.__chatRelay;
if (!r) return JSON.stringify({ok:false,error_code:"` + types.CodeAdapterUnresponsive + `",error_message:"adapter not installed"});
var v = await r.` + op + `(` + strings.Join(parts, ",") + `);
return JSON.stringify({ok:true,data:v});`)
}

func (d *pageDOM) call(ctx context.Context, out any, op string, args ...any) error {
	return d.page.Evaluate(ctx, d.tabID, callJS(op, args...), out)
}

func (d *pageDOM) Ready(ctx context.Context) (bool, error) {
	var ready bool
	err := d.page.Evaluate(ctx, d.tabID, cdpcontrol.WrapJSEval(jsReady), &ready)
	return ready, err
}

func (d *pageDOM) Locate(ctx context.Context, role string, table []Locator) (bool, error) {
	var found bool
	err := d.call(ctx, &found, "locate", role, table)
	return found, err
}

func (d *pageDOM) Click(ctx context.Context, role string) error {
	return d.call(ctx, nil, "click", role)
}

func (d *pageDOM) Focus(ctx context.Context, role string) error {
	return d.call(ctx, nil, "focus", role)
}

func (d *pageDOM) Clear(ctx context.Context, role string) error {
	return d.call(ctx, nil, "clear", role)
}

func (d *pageDOM) Content(ctx context.Context, role string) (string, error) {
	var text string
	err := d.call(ctx, &text, "content", role)
	return text, err
}

func (d *pageDOM) TypeChars(ctx context.Context, text string) error {
	return d.page.TypeChars(ctx, d.tabID, text)
}

func (d *pageDOM) PasteText(ctx context.Context, role, text string) error {
	return d.call(ctx, nil, "pasteText", role, text)
}

func (d *pageDOM) AssignValue(ctx context.Context, role, text string) error {
	return d.call(ctx, nil, "assignValue", role, text)
}

func (d *pageDOM) SetNativeValue(ctx context.Context, role, text string) error {
	return d.call(ctx, nil, "setNativeValue", role, text)
}

func (d *pageDOM) SetFiles(ctx context.Context, role string, file File) (bool, error) {
	var ok bool
	err := d.call(ctx, &ok, "setFiles", role, base64.StdEncoding.EncodeToString(file.Data), file.Name, file.MIME)
	return ok, err
}

func (d *pageDOM) DropFile(ctx context.Context, role string, file File) error {
	return d.call(ctx, nil, "dropFile", role, base64.StdEncoding.EncodeToString(file.Data), file.Name, file.MIME)
}

func (d *pageDOM) AttachmentVisible(ctx context.Context, filename string) (bool, error) {
	var ok bool
	err := d.call(ctx, &ok, "attachmentVisible", filename)
	return ok, err
}

func (d *pageDOM) Toast(ctx context.Context, message string, kind ToastKind) error {
	return d.call(ctx, nil, "toast", message, string(kind))
}
