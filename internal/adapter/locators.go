package adapter

// Roles name the elements the adapter locates and then acts on.
const (
	RoleForm       = "form"
	RoleInput      = "input"
	RoleAttach     = "attach"
	RoleFileInput  = "file-input"
	RoleDropTarget = "drop-target"
	RolePreview    = "preview"
	RoleSend       = "send"
)

// Predicate names understood by the in-page locator.
const (
	PredVisible      = "visible"
	PredEnabled      = "enabled"
	PredAcceptsImage = "accepts_image"
	PredSubmitLike   = "submit_like"
	PredHasIcon      = "has_icon"
)

// Locator is one entry of an ordered lookup table. Selector is matched with
// querySelectorAll; Closest, when set, climbs from each match to that
// ancestor; every Require predicate must hold. The first passing element
// wins.
type Locator struct {
	Selector string   `json:"selector"`
	Closest  string   `json:"closest,omitempty"`
	Require  []string `json:"require,omitempty"`
}

var FormLocators = []Locator{
	{Selector: "form"},
}

var InputFieldLocators = []Locator{
	{Selector: "#prompt-textarea", Require: []string{PredVisible}},
	{Selector: `[data-id="root"] textarea`, Require: []string{PredVisible}},
	{Selector: "form textarea", Require: []string{PredVisible}},
	{Selector: `[contenteditable="true"][data-placeholder]`, Require: []string{PredVisible}},
	{Selector: `form [contenteditable="true"]`, Require: []string{PredVisible}},
	{Selector: `[role="textbox"]`, Require: []string{PredVisible}},
	{Selector: `div[contenteditable="true"]`, Require: []string{PredVisible}},
}

var AttachButtonLocators = []Locator{
	{Selector: `button[aria-label*="attach" i]`},
	{Selector: `button[aria-label*="file" i]`},
	{Selector: `button[title*="attach" i]`},
	{Selector: `button svg[class*="paperclip"]`, Closest: "button"},
	{Selector: `[data-testid*="attach"]`},
}

var FileInputLocators = []Locator{
	{Selector: `input[type="file"]`, Require: []string{PredAcceptsImage}},
	{Selector: `input[type="file"]`},
}

// DropTargetLocators are tried one at a time; each is a separate attempt.
var DropTargetLocators = []Locator{
	{Selector: "form"},
	{Selector: `[contenteditable="true"]`},
	{Selector: "textarea"},
	{Selector: "body"},
}

var ImagePreviewLocators = []Locator{
	{Selector: `img[alt*="Uploaded"]`},
	{Selector: `[data-testid*="image"]`},
	{Selector: `img[src*="blob:"]`},
	{Selector: `[class*="image-preview"]`},
	{Selector: `img[class*="uploaded"]`},
}

var sendRequire = []string{PredVisible, PredEnabled, PredSubmitLike}

var SendButtonLocators = []Locator{
	{Selector: `button[data-testid="send-button"]`, Require: sendRequire},
	{Selector: `button[data-testid="fruitjuice-send-button"]`, Require: sendRequire},
	{Selector: `button[aria-label*="Send" i]`, Require: sendRequire},
	{Selector: `button[aria-label*="send" i]`, Require: sendRequire},
	{Selector: `form button[type="submit"]`, Require: sendRequire},
	{Selector: `button svg[class*="send"]`, Closest: "button", Require: sendRequire},
	{Selector: `form button:not([disabled])`, Require: sendRequire},
}

// SendFallbackLocators is the last resort: any usable icon button in the
// form.
var SendFallbackLocators = []Locator{
	{Selector: "form button", Require: []string{PredVisible, PredEnabled, PredHasIcon}},
}
