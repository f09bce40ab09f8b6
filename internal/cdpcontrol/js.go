package cdpcontrol

import "encoding/json"

// JSString quotes v as a JavaScript string literal.
func JSString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// JSJSON encodes v as a JavaScript object literal.
func JSJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func buildIIFE(async bool, body string) string {
	prefix := "(function(){\n"
	if async {
		prefix = "(async function(){\n"
	}
	return prefix + `try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

// WrapJSEval wraps body in an IIFE that turns thrown errors into a failed
// envelope. body must return JSON.stringify({ok:...}).
func WrapJSEval(body string) string { return buildIIFE(false, body) }

// WrapJSEvalAsync is WrapJSEval for bodies that await.
func WrapJSEvalAsync(body string) string { return buildIIFE(true, body) }

const jsFocusState = `return JSON.stringify({ok:true,data:{
focused: document.hasFocus(),
visible: document.visibilityState === "visible"
}});`

// about:blank reports complete before the real navigation starts.
const jsLoadState = `return JSON.stringify({ok:true,data:{
complete: document.readyState === "complete" && location.href !== "about:blank"
}});`
