package rod

// cssPathFn builds a selector that is unique at capture time: an id when the
// id is unique, otherwise a tag path with nth-of-type steps.
const cssPathFn = `function cssPath(el) {
	const byId = (e) => e.id && document.querySelectorAll('#' + CSS.escape(e.id)).length === 1;
	if (byId(el)) return '#' + CSS.escape(el.id);
	const parts = [];
	let cur = el;
	while (cur && cur.nodeType === 1 && cur !== document.documentElement) {
		if (byId(cur)) { parts.unshift('#' + CSS.escape(cur.id)); break; }
		let step = cur.tagName.toLowerCase();
		const parent = cur.parentElement;
		if (parent) {
			const same = Array.from(parent.children).filter((c) => c.tagName === cur.tagName);
			if (same.length > 1) step += ':nth-of-type(' + (same.indexOf(cur) + 1) + ')';
		}
		parts.unshift(step);
		cur = parent;
	}
	return parts.join(' > ');
}`

const axTreeScript = `() => {
	` + cssPathFn + `
	const INTERACTIVE = 'a[href],button,input:not([type=hidden]),select,textarea,summary,[role=button],[role=link],[role=tab],[role=menuitem],[role=checkbox],[role=radio],[role=switch],[role=combobox],[role=textbox],[contenteditable=true],[onclick]';
	const STRUCTURAL = 'h1,h2,h3,h4,h5,h6,nav,main,header,footer,section,article,aside,form,[role=navigation],[role=main],[role=region],[role=dialog],[role=search]';
	const IMPLICIT = {A: 'link', BUTTON: 'button', SELECT: 'combobox', TEXTAREA: 'textbox', SUMMARY: 'button',
		NAV: 'navigation', MAIN: 'main', HEADER: 'banner', FOOTER: 'contentinfo', SECTION: 'region',
		ARTICLE: 'article', ASIDE: 'complementary', FORM: 'form'};
	const roleOf = (el) => {
		const explicit = el.getAttribute('role');
		if (explicit) return explicit;
		if (/^H[1-6]$/.test(el.tagName)) return 'heading';
		if (el.tagName === 'INPUT') {
			const t = (el.getAttribute('type') || 'text').toLowerCase();
			if (t === 'checkbox' || t === 'radio') return t;
			if (t === 'submit' || t === 'button' || t === 'reset') return 'button';
			return 'textbox';
		}
		return IMPLICIT[el.tagName] || 'generic';
	};
	const nameOf = (el) => {
		const raw = el.getAttribute('aria-label') || el.getAttribute('alt') || el.getAttribute('title') ||
			el.getAttribute('placeholder') || el.innerText || el.value || '';
		return String(raw).trim().replace(/\s+/g, ' ').slice(0, 120);
	};
	let partial = false;
	for (const f of document.querySelectorAll('iframe')) {
		try { if (!f.contentDocument) partial = true; } catch (e) { partial = true; }
	}
	const nodes = [];
	for (const el of document.querySelectorAll(INTERACTIVE + ',' + STRUCTURAL)) {
		const rect = el.getBoundingClientRect();
		const style = getComputedStyle(el);
		const hasBox = rect.width > 0 && rect.height > 0 && style.visibility !== 'hidden' && style.display !== 'none';
		const interactable = el.matches(INTERACTIVE) && hasBox && !el.disabled && style.pointerEvents !== 'none';
		nodes.push({role: roleOf(el), name: nameOf(el), has_box: hasBox, interactable: interactable, selector: cssPath(el)});
	}
	return {url: location.href, title: document.title, partial: partial, nodes: nodes};
}`

const elementSelectorScript = `() => {
	` + cssPathFn + `
	return cssPath(this);
}`

const interactableScript = `() => {
	const rect = this.getBoundingClientRect();
	const style = getComputedStyle(this);
	return rect.width > 0 && rect.height > 0 && style.visibility !== 'hidden' &&
		style.display !== 'none' && !this.disabled && style.pointerEvents !== 'none';
}`

const fingerprintScript = `() => ({
	url: location.href,
	count: document.getElementsByTagName('*').length,
	text: document.body ? document.body.innerText.length : 0,
	complete: document.readyState === 'complete'
})`

const scrollScript = `(dir, amount) => {
	const dy = amount > 0 ? amount : window.innerHeight;
	switch (dir) {
	case 'down': window.scrollBy(0, dy); break;
	case 'up': window.scrollBy(0, -dy); break;
	case 'top': window.scrollTo(0, 0); break;
	case 'bottom': window.scrollTo(0, document.body.scrollHeight); break;
	}
}`

const linksScript = `() => Array.from(document.querySelectorAll('a[href]')).map((a) => ({
	text: (a.innerText || a.getAttribute('aria-label') || '').trim().replace(/\s+/g, ' ').slice(0, 200),
	href: a.href
}))`

const bodyTextScript = `() => document.body ? document.body.innerText : ''`

// stealthScript runs before any page script in every new document.
const stealthScript = `() => {
	Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
	Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
	Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
	if (navigator.permissions && navigator.permissions.query) {
		const query = navigator.permissions.query.bind(navigator.permissions);
		navigator.permissions.query = (p) => p && p.name === 'notifications'
			? Promise.resolve({state: 'denied'})
			: query(p);
	}
	window.chrome = window.chrome || {};
	window.chrome.runtime = window.chrome.runtime || {};
}`
