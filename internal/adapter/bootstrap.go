package adapter

import "strings"

// BootstrapVersion is bumped whenever the in-page script changes so a
// reinjection replaces an older copy.
const BootstrapVersion = "2"

// RoleAttr is the attribute that marks located elements. It holds a
// space-separated role list so one element can serve several roles.
const RoleAttr = "data-chatrelay-role"

// BootstrapJS installs window.__chatRelay. It is safe to evaluate more than
// once.
var BootstrapJS = strings.NewReplacer(
	"__VERSION__", BootstrapVersion,
	"__ROLE_ATTR__", RoleAttr,
).Replace(bootstrapSource)

const bootstrapSource = `(function () {
  if (window.__chatRelay && window.__chatRelay.version === "__VERSION__") return;

  var ROLE_ATTR = "__ROLE_ATTR__";
  var COLORS = { success: "#10a37f", error: "#ef4444", info: "#2563eb" };

  var predicates = {
    visible: function (el) { return el.offsetParent !== null; },
    enabled: function (el) { return !el.disabled && el.getAttribute("aria-disabled") !== "true"; },
    accepts_image: function (el) { return (el.getAttribute("accept") || "").toLowerCase().indexOf("image") !== -1; },
    submit_like: function (el) {
      var label = (el.getAttribute("aria-label") || "").toLowerCase();
      return !!el.querySelector("svg") || el.type === "submit" || label.indexOf("send") !== -1;
    },
    has_icon: function (el) { return !!el.querySelector("svg"); }
  };

  function roleSelector(role) { return "[" + ROLE_ATTR + "~=\"" + role + "\"]"; }

  function unmark(role) {
    var prev = document.querySelectorAll(roleSelector(role));
    for (var i = 0; i < prev.length; i++) {
      var rest = (prev[i].getAttribute(ROLE_ATTR) || "").split(" ").filter(function (r) { return r && r !== role; });
      if (rest.length) prev[i].setAttribute(ROLE_ATTR, rest.join(" "));
      else prev[i].removeAttribute(ROLE_ATTR);
    }
  }

  function mark(role, el) {
    unmark(role);
    var roles = (el.getAttribute(ROLE_ATTR) || "").split(" ").filter(Boolean);
    roles.push(role);
    el.setAttribute(ROLE_ATTR, roles.join(" "));
  }

  function byRole(role) {
    var el = document.querySelector(roleSelector(role));
    if (!el) throw new Error("no element located for " + role);
    return el;
  }

  function fire(el, type) { el.dispatchEvent(new Event(type, { bubbles: true })); }

  function setNative(el, value) {
    var proto = el.tagName === "TEXTAREA" ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
    var desc = Object.getOwnPropertyDescriptor(proto, "value");
    if (desc && desc.set) desc.set.call(el, value);
    else el.value = value;
  }

  function makeFile(b64, name, mime) {
    var bin = atob(b64);
    var bytes = new Uint8Array(bin.length);
    for (var i = 0; i < bin.length; i++) bytes[i] = bin.charCodeAt(i);
    return new File([bytes], name, { type: mime });
  }

  function locate(role, entries) {
    unmark(role);
    for (var i = 0; i < entries.length; i++) {
      var e = entries[i];
      var nodes;
      try { nodes = document.querySelectorAll(e.selector); } catch (_) { continue; }
      for (var j = 0; j < nodes.length; j++) {
        var el = nodes[j];
        if (e.closest) {
          el = el.closest(e.closest);
          if (!el) continue;
        }
        var req = e.require || [];
        var ok = true;
        for (var k = 0; k < req.length; k++) {
          var p = predicates[req[k]];
          if (!p || !p(el)) { ok = false; break; }
        }
        if (ok) {
          mark(role, el);
          return true;
        }
      }
    }
    return false;
  }

  function content(role) {
    var el = byRole(role);
    if (el.isContentEditable) return el.innerText || el.textContent || "";
    return el.value || "";
  }

  function click(role) { byRole(role).click(); return true; }

  function focus(role) { byRole(role).focus(); return true; }

  function clear(role) {
    var el = byRole(role);
    if (el.isContentEditable) el.innerHTML = "";
    else setNative(el, "");
    fire(el, "input");
    return true;
  }

  async function pasteText(role, text) {
    var el = byRole(role);
    el.focus();
    try { await navigator.clipboard.writeText(text); } catch (_) {}
    try {
      var dt = new DataTransfer();
      dt.setData("text/plain", text);
      el.dispatchEvent(new ClipboardEvent("paste", { clipboardData: dt, bubbles: true, cancelable: true }));
    } catch (_) {}
    try { document.execCommand("paste"); } catch (_) {}
    return true;
  }

  function assignValue(role, text) {
    var el = byRole(role);
    el.focus();
    if (el.isContentEditable) {
      document.execCommand("selectAll", false, null);
      document.execCommand("insertText", false, text);
    } else {
      el.value = text;
      fire(el, "input");
    }
    return true;
  }

  function setNativeValue(role, text) {
    var el = byRole(role);
    if (el.isContentEditable) {
      while (el.firstChild) el.removeChild(el.firstChild);
      var p = document.createElement("p");
      p.textContent = text;
      el.appendChild(p);
    } else {
      setNative(el, text);
    }
    fire(el, "input");
    fire(el, "change");
    return true;
  }

  function setFiles(role, b64, name, mime) {
    var input = byRole(role);
    var dt = new DataTransfer();
    dt.items.add(makeFile(b64, name, mime));
    var desc = Object.getOwnPropertyDescriptor(HTMLInputElement.prototype, "files");
    if (desc && desc.set) desc.set.call(input, dt.files);
    else input.files = dt.files;
    fire(input, "change");
    fire(input, "input");
    input.dispatchEvent(new Event("blur"));
    return input.files && input.files.length > 0;
  }

  function dropFile(role, b64, name, mime) {
    var el = byRole(role);
    var dt = new DataTransfer();
    dt.items.add(makeFile(b64, name, mime));
    ["dragenter", "dragover", "drop"].forEach(function (type) {
      el.dispatchEvent(new DragEvent(type, { dataTransfer: dt, bubbles: true, cancelable: true }));
    });
    return true;
  }

  function attachmentVisible(name) {
    if (document.querySelector("[alt*=\"screenshot\"]")) return true;
    var text = document.body ? (document.body.innerText || "") : "";
    return text.indexOf(name || "screenshot.png") !== -1;
  }

  function toast(message, kind) {
    var old = document.querySelectorAll("[data-chatrelay-toast]");
    for (var i = 0; i < old.length; i++) old[i].remove();
    var n = document.createElement("div");
    n.textContent = message;
    n.setAttribute("data-chatrelay-toast", kind);
    n.style.cssText = "position:fixed;top:20px;right:20px;padding:12px 20px;border-radius:8px;" +
      "color:#fff;font:14px system-ui,sans-serif;z-index:2147483647;" +
      "box-shadow:0 4px 12px rgba(0,0,0,.15);transition:opacity .3s;background:" + (COLORS[kind] || COLORS.info);
    (document.body || document.documentElement).appendChild(n);
    setTimeout(function () {
      n.style.opacity = "0";
      setTimeout(function () { n.remove(); }, 300);
    }, 3000);
    return true;
  }

  window.__chatRelay = {
    version: "__VERSION__",
    ping: function () { return "ready"; },
    locate: locate,
    content: content,
    click: click,
    focus: focus,
    clear: clear,
    pasteText: pasteText,
    assignValue: assignValue,
    setNativeValue: setNativeValue,
    setFiles: setFiles,
    dropFile: dropFile,
    attachmentVisible: attachmentVisible,
    toast: toast
  };
})();`
