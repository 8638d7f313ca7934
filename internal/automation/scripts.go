package automation

// Page function names understood by the bridge.
const (
	FnLocate         = "locate"
	FnReadContent    = "readContent"
	FnFocus          = "focus"
	FnClearContent   = "clearContent"
	FnExecInsert     = "execInsert"
	FnAssignContent  = "assignContent"
	FnClick          = "click"
	FnInjectSend     = "injectSend"
	FnTranscript     = "transcript"
	FnPageText       = "pageText"
	FnProbeAuth      = "probeAuth"
	FnAttachFile     = "attachFile"
	FnSelectChat     = "selectChat"
	FnSearchChat     = "searchChat"
	FnListGroups     = "listGroups"
	FnListLabels     = "listLabels"
	FnListContacts   = "listContacts"
	FnLatestIncoming = "latestIncoming"
	FnDisableUnload  = "disableUnload"
)

// prelude is shared by every page function.
const prelude = `
const $visible = (el) => {
  if (!el || !el.isConnected) return false;
  const rect = el.getBoundingClientRect();
  const style = window.getComputedStyle(el);
  return rect.width > 0 && rect.height > 0 && style.display !== 'none' && style.visibility !== 'hidden';
};
const $find = (queries, visible, root) => {
  for (const q of queries || []) {
    let nodes;
    try { nodes = (root || document).querySelectorAll(q); } catch (e) { continue; }
    for (const el of nodes) {
      if (!visible || $visible(el)) return { el, query: q };
    }
  }
  return null;
};
const $all = (queries) => {
  for (const q of queries || []) {
    let nodes;
    try { nodes = document.querySelectorAll(q); } catch (e) { continue; }
    if (nodes.length) return Array.from(nodes);
  }
  return [];
};
const $one = (selector) => { try { return document.querySelector(selector); } catch (e) { return null; } };
const $need = (selector) => {
  const el = $one(selector);
  if (!el) throw new Error('element not found: ' + selector);
  return el;
};
const $sleep = (ms) => new Promise((resolve) => setTimeout(resolve, ms));
const $text = (el) => (el ? (el.innerText || el.textContent || '') : '').trim();
const $rowID = (el) => {
  const host = el.closest('[data-id]') || el.querySelector('[data-id]');
  return host ? host.getAttribute('data-id') : '';
};
const $title = (row, queries) => {
  const hit = $find(queries, false, row);
  if (!hit) return '';
  return (hit.el.getAttribute('title') || $text(hit.el)).trim();
};
const $activate = (el) => {
  const target = el.closest('button, [role="button"]') || el;
  target.scrollIntoView({ block: 'center', inline: 'center' });
  for (const type of ['mousedown', 'mouseup', 'click']) {
    target.dispatchEvent(new MouseEvent(type, { bubbles: true, cancelable: true, view: window }));
  }
  return target;
};
const $caretEnd = (el) => {
  el.focus();
  const sel = window.getSelection();
  if (!sel) return;
  const range = document.createRange();
  range.selectNodeContents(el);
  range.collapse(false);
  sel.removeAllRanges();
  sel.addRange(range);
};
`

var scripts = map[string]string{
	// Resolves on the first match or after timeoutMs. The observer and the
	// timer are released on every path.
	FnLocate: `(args) => new Promise((resolve) => {
  const check = () => $find(args.queries, args.visible);
  const hit = check();
  if (hit) { resolve({ found: true, selector: hit.query }); return; }
  let done = false;
  let observer = null;
  let timer = null;
  const finish = (result) => {
    if (done) return;
    done = true;
    if (observer) observer.disconnect();
    if (timer) clearTimeout(timer);
    resolve(result);
  };
  try {
    observer = new MutationObserver(() => {
      try {
        const h = check();
        if (h) finish({ found: true, selector: h.query });
      } catch (e) {
        finish({ found: false, error: String(e) });
      }
    });
    observer.observe(document.documentElement, { childList: true, subtree: true, attributes: true });
  } catch (e) {
    finish({ found: false, error: String(e) });
    return;
  }
  timer = setTimeout(() => finish({ found: false }), Math.max(0, args.timeoutMs));
})`,

	FnReadContent: `(args) => {
  const el = $one(args.selector);
  return { found: !!el, text: el ? $text(el) : '' };
}`,

	FnFocus: `(args) => {
  $caretEnd($need(args.selector));
  return true;
}`,

	FnClearContent: `(args) => {
  const el = $need(args.selector);
  el.focus();
  document.execCommand('selectAll', false, null);
  document.execCommand('delete', false, null);
  return $text(el) === '';
}`,

	FnExecInsert: `(args) => {
  const el = $need(args.selector);
  el.focus();
  document.execCommand('selectAll', false, null);
  const ok = document.execCommand('insertText', false, args.text);
  return { ok: !!ok };
}`,

	FnAssignContent: `(args) => {
  const el = $need(args.selector);
  el.focus();
  el.textContent = '';
  for (const line of String(args.text).split('\n')) {
    const p = document.createElement('p');
    if (line) p.textContent = line; else p.appendChild(document.createElement('br'));
    el.appendChild(p);
  }
  $caretEnd(el);
  el.dispatchEvent(new InputEvent('input', { bubbles: true, inputType: 'insertText', data: args.text }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  return { ok: true };
}`,

	FnClick: `(args) => {
  $activate($need(args.selector));
  return { clicked: true };
}`,

	// Last-resort submit: activate any visible send control, otherwise
	// replay the Enter key sequence on the compose element.
	FnInjectSend: `(args) => {
  const hit = $find(args.sendQueries, true);
  if (hit) {
    $activate(hit.el);
    return { dispatched: true, via: 'control' };
  }
  const el = $one(args.composeSelector);
  if (!el) return { dispatched: false, via: '' };
  $caretEnd(el);
  const init = { key: 'Enter', code: 'Enter', keyCode: 13, which: 13, bubbles: true, cancelable: true };
  for (const type of ['keydown', 'keypress', 'keyup']) {
    el.dispatchEvent(new KeyboardEvent(type, init));
  }
  return { dispatched: true, via: 'keystroke' };
}`,

	FnTranscript: `(args) => {
  const nodes = $all(args.outgoing).slice(-Math.max(1, args.limit));
  return nodes.map((el) => {
    const hit = $find(args.text, false, el);
    return {
      id: $rowID(el),
      text: hit ? $text(hit.el) : $text(el),
      delivered: !!$find(args.indicators, false, el),
    };
  });
}`,

	FnPageText: `(args) => ({
  text: document.body ? (document.body.innerText || '').slice(0, args.limit) : '',
})`,

	FnProbeAuth: `(args) => ({
  qr: !!$find(args.qr, false),
  intro: !!$find(args.intro, false),
  chatList: !!$find(args.chatList, false),
})`,

	FnAttachFile: `(args) => {
  const input = $need(args.selector);
  const binary = atob(args.data);
  const bytes = new Uint8Array(binary.length);
  for (let i = 0; i < binary.length; i++) bytes[i] = binary.charCodeAt(i);
  const file = new File([bytes], args.name, { type: args.mimeType, lastModified: Date.now() });
  const transfer = new DataTransfer();
  transfer.items.add(file);
  input.files = transfer.files;
  input.dispatchEvent(new Event('input', { bubbles: true }));
  input.dispatchEvent(new Event('change', { bubbles: true }));
  return { attached: input.files.length === 1 };
}`,

	FnSelectChat: `(args) => {
  const rows = $all(args.items);
  let match = null;
  let by = '';
  if (args.id) {
    match = rows.find((r) => $rowID(r) === args.id) || null;
    if (match) by = 'id';
  }
  if (!match && args.name) {
    const want = args.name.trim().toLowerCase();
    match = rows.find((r) => $title(r, args.titles).toLowerCase() === want) || null;
    if (match) by = 'name';
  }
  if (!match) return { selected: false, by: '' };
  $activate(match);
  return { selected: true, by };
}`,

	FnSearchChat: `(args) => {
  const hit = $find(args.search, false);
  if (!hit) return { typed: false };
  hit.el.focus();
  document.execCommand('selectAll', false, null);
  document.execCommand('insertText', false, args.name);
  return { typed: true };
}`,

	FnListGroups: `(args) => {
  const seen = new Set();
  const out = [];
  for (const row of $all(args.items)) {
    if (!$find(args.groupIcons, false, row)) continue;
    const name = $title(row, args.titles);
    if (!name) continue;
    const id = $rowID(row) || 'group-' + name;
    if (seen.has(id)) continue;
    seen.add(id);
    out.push({ id, name });
  }
  return out;
}`,

	FnListLabels: `async (args) => {
  const business = !!$find(args.business, false);
  const labels = [];
  for (const node of $all(args.labels)) {
    const name = $text(node);
    if (!name) continue;
    $activate(node);
    await $sleep(args.settleMs);
    const chats = [];
    for (const c of $all(args.labelChats)) {
      const n = $title(c, args.titles) || $text(c);
      if (n) chats.push({ id: $rowID(c) || 'label-chat-' + n, name: n });
    }
    labels.push({ name, chats });
    document.dispatchEvent(new KeyboardEvent('keydown', { key: 'Escape', code: 'Escape', keyCode: 27, bubbles: true }));
    await $sleep(args.settleMs / 2);
  }
  return { isBusinessSupported: business || labels.length > 0, labels };
}`,

	FnListContacts: `(args) => {
  const out = [];
  for (const row of $all(args.items)) {
    const name = $title(row, args.titles);
    if (!name) continue;
    const secondary = $find(args.secondary, false, row);
    out.push({ name, phone: secondary ? $text(secondary.el) : 'Unknown' });
  }
  return out;
}`,

	FnLatestIncoming: `(args) => {
  const nodes = $all(args.incoming);
  if (!nodes.length) return null;
  const el = nodes[nodes.length - 1];
  const hit = $find(args.text, false, el);
  const pre = el.querySelector('[data-pre-plain-text]');
  return {
    id: $rowID(el),
    text: hit ? $text(hit.el) : $text(el),
    sender: pre ? pre.getAttribute('data-pre-plain-text') : '',
  };
}`,

	FnDisableUnload: `() => {
  window.onbeforeunload = null;
  window.addEventListener('beforeunload', (e) => e.stopImmediatePropagation(), true);
  return true;
}`,
}

// expression wraps a page function into the request/response envelope.
func expression(body string) string {
	return `async (req) => {
` + prelude + `
  const fn = ` + body + `;
  try {
    const data = await fn(req.args || {});
    return { id: req.id, ok: true, data: data === undefined ? null : data };
  } catch (e) {
    return { id: req.id, ok: false, error: String((e && e.message) || e) };
  }
}`
}
