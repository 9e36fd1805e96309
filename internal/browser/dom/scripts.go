package dom

import (
	"encoding/json"
	"fmt"
	"strings"
)

// scriptPrelude is shared by every page script. q() reports selector syntax
// errors instead of throwing so they can be told apart from page exceptions.
const scriptPrelude = `
const isVisible = (el) => {
	const rect = el.getBoundingClientRect();
	const style = window.getComputedStyle(el);
	return rect.width > 0 && rect.height > 0 && style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
};
const q = (sel) => {
	try { return { el: document.querySelector(sel) }; }
	catch (e) { return { invalid: String((e && e.message) || e) }; }
};
const qa = (sel) => {
	try { return { els: Array.from(document.querySelectorAll(sel)) }; }
	catch (e) { return { invalid: String((e && e.message) || e) }; }
};
const cssPath = (el) => {
	const parts = [];
	for (let n = el; n && n.nodeType === 1; n = n.parentElement) {
		if (n.id && /^-?[A-Za-z_][A-Za-z0-9_-]*$/.test(n.id) && document.querySelectorAll('#' + n.id).length === 1) {
			parts.unshift('#' + n.id);
			break;
		}
		const tag = n.tagName.toLowerCase();
		if (!n.parentElement) { parts.unshift(tag); break; }
		let i = 1;
		for (let s = n.previousElementSibling; s; s = s.previousElementSibling) {
			if (s.tagName === n.tagName) i++;
		}
		parts.unshift(tag + ':nth-of-type(' + i + ')');
	}
	return parts.join(' > ');
};
const describe = (el) => {
	const type = (el.getAttribute('type') || '').toLowerCase();
	return {
		tag: el.tagName.toLowerCase(),
		type: type,
		id: el.id || '',
		name: el.getAttribute('name') || '',
		classes: Array.from(el.classList || []),
		text: (el.innerText || el.textContent || '').trim().slice(0, 200),
		value: (typeof el.value === 'string' && type !== 'password') ? el.value : '',
		placeholder: el.getAttribute('placeholder') || '',
		ariaLabel: el.getAttribute('aria-label') || '',
		title: el.getAttribute('title') || '',
		visible: isVisible(el),
		path: cssPath(el),
	};
};
const setNativeValue = (el, v) => {
	let proto = null;
	if (el instanceof HTMLInputElement) proto = HTMLInputElement.prototype;
	else if (el instanceof HTMLTextAreaElement) proto = HTMLTextAreaElement.prototype;
	else if (el instanceof HTMLSelectElement) proto = HTMLSelectElement.prototype;
	const desc = proto && Object.getOwnPropertyDescriptor(proto, 'value');
	if (desc && desc.set) desc.set.call(el, v); else el.value = v;
};
`

const queryScript = `
	const r = qa(sel);
	if (r.invalid) return { invalid: r.invalid };
	return { found: r.els.length > 0, nodes: r.els.slice(0, 500).map(describe) };
`

const snapshotScript = `
	const r = q(sel);
	if (r.invalid) return { invalid: r.invalid };
	const el = r.el;
	if (!el) return { found: false, snapshot: { exists: false, visible: false } };
	const rect = el.getBoundingClientRect();
	const style = window.getComputedStyle(el);
	return { found: true, snapshot: {
		exists: true,
		visible: isVisible(el),
		bounds: { x: rect.x, y: rect.y, width: rect.width, height: rect.height },
		styles: { display: style.display, visibility: style.visibility, opacity: style.opacity },
	} };
`

const boundingRectScript = `
	const r = q(sel);
	if (r.invalid) return { invalid: r.invalid };
	if (!r.el) return { found: false };
	const rect = r.el.getBoundingClientRect();
	return { found: true, rect: { x: rect.x, y: rect.y, width: rect.width, height: rect.height } };
`

const simulateClickScript = `
	const r = q(sel);
	if (r.invalid) return { invalid: r.invalid };
	const el = r.el;
	if (!el) return { found: false };
	el.scrollIntoView({ block: 'center', inline: 'center' });
	const rect = el.getBoundingClientRect();
	const base = {
		bubbles: true, cancelable: true, composed: true, view: window, button: 0,
		clientX: rect.left + rect.width / 2, clientY: rect.top + rect.height / 2,
	};
	const P = window.PointerEvent || MouseEvent;
	const ptr = (extra) => Object.assign({ pointerType: 'mouse', isPrimary: true }, base, extra || {});
	el.dispatchEvent(new P('pointerover', ptr()));
	el.dispatchEvent(new P('pointerdown', ptr({ buttons: 1 })));
	el.dispatchEvent(new MouseEvent('mousedown', Object.assign({}, base, { buttons: 1 })));
	el.dispatchEvent(new MouseEvent('mouseup', base));
	el.dispatchEvent(new MouseEvent('click', base));
	el.dispatchEvent(new P('pointerup', ptr()));
	return { found: true };
`

const focusScript = `
	const r = q(sel);
	if (r.invalid) return { invalid: r.invalid };
	const el = r.el;
	if (!el) return { found: false };
	el.focus();
	try {
		if (el.isContentEditable) {
			const range = document.createRange();
			range.selectNodeContents(el);
			range.collapse(false);
			const s = window.getSelection();
			s.removeAllRanges();
			s.addRange(range);
		} else if (typeof el.setSelectionRange === 'function' && typeof el.value === 'string') {
			el.setSelectionRange(el.value.length, el.value.length);
		}
	} catch (e) {}
	return { found: true };
`

const clearScript = `
	const r = q(sel);
	if (r.invalid) return { invalid: r.invalid };
	const el = r.el;
	if (!el) return { found: false };
	if (el.isContentEditable) el.textContent = ''; else setNativeValue(el, '');
	el.dispatchEvent(new InputEvent('input', { bubbles: true, inputType: 'deleteContentBackward' }));
	return { found: true };
`

const appendScript = `
	const r = q(sel);
	if (r.invalid) return { invalid: r.invalid };
	const el = r.el;
	if (!el) return { found: false };
	const key = text.slice(-1);
	el.dispatchEvent(new KeyboardEvent('keydown', { key: key, bubbles: true, cancelable: true }));
	if (el.isContentEditable) el.textContent = (el.textContent || '') + text;
	else setNativeValue(el, (el.value || '') + text);
	el.dispatchEvent(new InputEvent('input', { bubbles: true, data: text, inputType: 'insertText' }));
	el.dispatchEvent(new KeyboardEvent('keyup', { key: key, bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return { found: true };
`

const commitScript = `
	const r = q(sel);
	if (r.invalid) return { invalid: r.invalid };
	const el = r.el;
	if (!el) return { found: false };
	el.dispatchEvent(new Event('change', { bubbles: true }));
	if (document.activeElement === el) el.blur();
	else el.dispatchEvent(new FocusEvent('blur'));
	return { found: true };
`

const scrollIntoViewScript = `
	const r = q(sel);
	if (r.invalid) return { invalid: r.invalid };
	const el = r.el;
	if (!el) return { found: false };
	el.scrollIntoView({ block: 'center', inline: 'center' });
	return { found: true };
`

const readValueScript = `
	const r = q(sel);
	if (r.invalid) return { invalid: r.invalid };
	const el = r.el;
	if (!el) return { found: false };
	const value = el.isContentEditable ? el.textContent : (typeof el.value === 'string' ? el.value : el.textContent);
	return { found: true, value: value || '' };
`

const outerHTMLScript = `
	const r = q(sel);
	if (r.invalid) return { invalid: r.invalid };
	if (!r.el) return { found: false };
	return { found: true, html: r.el.outerHTML };
`

const formControlsScript = `
	const r = q(sel);
	if (r.invalid) return { invalid: r.invalid };
	if (!r.el) return { found: false };
	return { found: true, nodes: Array.from(r.el.querySelectorAll('input, button, textarea, select')).map(describe) };
`

const observeScript = `(function(binding) {
	const reg = window.__tabpilotObservers = window.__tabpilotObservers || {};
	if (reg[binding]) return true;
	const obs = new MutationObserver(() => { try { window[binding]('m'); } catch (e) {} });
	obs.observe(document, { subtree: true, childList: true, attributes: true, characterData: true });
	reg[binding] = obs;
	return true;
})(%s)`

const disconnectScript = `(function(binding) {
	const reg = window.__tabpilotObservers;
	if (reg && reg[binding]) { reg[binding].disconnect(); delete reg[binding]; }
	return true;
})(%s)`

// buildScript wraps body in an IIFE that receives the named arguments.
func buildScript(body string, names []string, args ...interface{}) string {
	encoded := make([]string, len(args))
	for i, a := range args {
		encoded[i] = jsonEncode(a)
	}
	return fmt.Sprintf("(function(%s) {%s%s})(%s)", strings.Join(names, ", "), scriptPrelude, body, strings.Join(encoded, ", "))
}

// selectorScript builds a script taking a single sel argument.
func selectorScript(body, selector string) string {
	return buildScript(body, []string{"sel"}, selector)
}

// sprintfScript fills the single argument of an observer script.
func sprintfScript(format, binding string) string {
	return fmt.Sprintf(format, jsonEncode(binding))
}

// jsonEncode safely encodes a value for injection into a script.
func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
