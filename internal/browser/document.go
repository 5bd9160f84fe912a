package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/v0xg/pagehelper/internal/dom"
	"github.com/ysmood/gson"
)

// Document is a dom.Document over a live rod page.
type Document struct {
	page *rod.Page
}

var _ dom.Document = (*Document)(nil)

// NewDocument wraps an already navigated page.
func NewDocument(page *rod.Page) *Document {
	return &Document{page: page}
}

const collectTextNodesJS = `(substr) => {
	const parents = [], data = [];
	if (document.body) {
		const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
		let n;
		while ((n = walker.nextNode())) {
			if (n.parentElement && n.data.includes(substr)) {
				parents.push(n.parentElement);
				data.push(n.data);
			}
		}
	}
	window.__pagehelperTextParents = parents;
	return data;
}`

const takeTextParentsJS = `() => {
	const parents = window.__pagehelperTextParents || [];
	delete window.__pagehelperTextParents;
	return parents;
}`

func (d *Document) TextNodes(ctx context.Context, substr string) ([]dom.TextNode, error) {
	page := d.page.Context(ctx)
	res, err := page.Eval(collectTextNodesJS, substr)
	if err != nil {
		return nil, fmt.Errorf("collect text nodes: %w", err)
	}
	parents, err := page.ElementsByJS(rod.Eval(takeTextParentsJS))
	if err != nil {
		return nil, fmt.Errorf("collect text node parents: %w", err)
	}

	data := res.Value.Arr()
	if len(data) != len(parents) {
		return nil, fmt.Errorf("text node scan changed during read: %d texts, %d parents", len(data), len(parents))
	}
	out := make([]dom.TextNode, len(parents))
	for i, p := range parents {
		out[i] = dom.TextNode{Data: data[i].Str(), Parent: &element{el: p}}
	}
	return out, nil
}

func (d *Document) QueryAll(ctx context.Context, selector string) ([]dom.Element, error) {
	els, err := d.page.Context(ctx).ElementsByJS(rod.Eval(`(sel) => Array.from(document.querySelectorAll(sel))`, selector))
	if err != nil {
		return nil, queryError(selector, err)
	}
	return wrapAll(els), nil
}

// queryError turns the SyntaxError querySelectorAll throws for a malformed
// selector into a *dom.SelectorError. Anything else stays a query failure.
func queryError(selector string, err error) error {
	if strings.Contains(err.Error(), "is not a valid selector") {
		return &dom.SelectorError{Selector: selector, Err: err}
	}
	return fmt.Errorf("query %q: %w", selector, err)
}

func (d *Document) ElementByID(ctx context.Context, id string) (dom.Element, error) {
	if id == "" {
		return nil, nil
	}
	els, err := d.page.Context(ctx).ElementsByJS(rod.Eval(`(id) => {
		const el = document.getElementById(id);
		return el ? [el] : [];
	}`, id))
	if err != nil {
		return nil, fmt.Errorf("get element by id %q: %w", id, err)
	}
	if len(els) == 0 {
		return nil, nil
	}
	return &element{el: els[0]}, nil
}

func (d *Document) URL(ctx context.Context) (string, error) {
	return d.evalString(ctx, `() => window.location.href`)
}

func (d *Document) Title(ctx context.Context) (string, error) {
	return d.evalString(ctx, `() => document.title`)
}

func (d *Document) evalString(ctx context.Context, js string) (string, error) {
	res, err := d.page.Context(ctx).Eval(js)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func wrapAll(els rod.Elements) []dom.Element {
	out := make([]dom.Element, len(els))
	for i, el := range els {
		out[i] = &element{el: el}
	}
	return out
}

// element is a dom.Element over a remote element handle.
type element struct {
	el *rod.Element
}

var _ dom.Element = (*element)(nil)

const describeJS = `function() {
	const tabindex = this.getAttribute('tabindex');
	const ti = tabindex === null ? NaN : parseInt(tabindex, 10);
	return {
		tag: this.tagName,
		id: this.id || '',
		role: this.getAttribute('role') || '',
		name: this.getAttribute('name') || '',
		className: typeof this.className === 'string' ? this.className : '',
		type: typeof this.type === 'string' ? this.type : '',
		text: this.textContent || '',
		value: typeof this.value === 'string' ? this.value : '',
		placeholder: this.getAttribute('placeholder') || '',
		onclick: this.hasAttribute('onclick'),
		tabIndex: Number.isNaN(ti) ? null : ti,
		visible: this.offsetParent !== null,
	};
}`

func (e *element) Describe(ctx context.Context) (dom.Info, error) {
	res, err := e.el.Context(ctx).Eval(describeJS)
	if err != nil {
		return dom.Info{}, fmt.Errorf("describe element: %w", err)
	}
	return decodeInfo(res.Value), nil
}

func decodeInfo(v gson.JSON) dom.Info {
	info := dom.Info{
		Tag:         v.Get("tag").Str(),
		ID:          v.Get("id").Str(),
		Role:        v.Get("role").Str(),
		Name:        v.Get("name").Str(),
		ClassName:   v.Get("className").Str(),
		Type:        v.Get("type").Str(),
		Text:        v.Get("text").Str(),
		Value:       v.Get("value").Str(),
		Placeholder: v.Get("placeholder").Str(),
		OnClick:     v.Get("onclick").Bool(),
		Visible:     v.Get("visible").Bool(),
	}
	if ti := v.Get("tabIndex"); !ti.Nil() {
		i := ti.Int()
		info.TabIndex = &i
	}
	return info
}

const pathJS = `function() {
	const path = [];
	for (let cur = this; cur && cur.nodeType === 1 && cur !== document.body; cur = cur.parentElement) {
		let index = 0;
		for (let s = cur.previousElementSibling; s; s = s.previousElementSibling) index++;
		path.unshift({tag: cur.tagName.toLowerCase(), index: index});
	}
	return path;
}`

func (e *element) Path(ctx context.Context) ([]dom.PathStep, error) {
	res, err := e.el.Context(ctx).Eval(pathJS)
	if err != nil {
		return nil, fmt.Errorf("element path: %w", err)
	}
	return decodePath(res.Value), nil
}

func decodePath(v gson.JSON) []dom.PathStep {
	arr := v.Arr()
	path := make([]dom.PathStep, len(arr))
	for i, step := range arr {
		path[i] = dom.PathStep{Tag: step.Get("tag").Str(), Index: step.Get("index").Int()}
	}
	return path
}

// The identifier lives in an expando property so the page markup is left
// untouched.
func (e *element) UID(ctx context.Context) (string, error) {
	res, err := e.el.Context(ctx).Eval(`function() { return this.__pagehelperUID || ''; }`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *element) SetUID(ctx context.Context, uid string) error {
	_, err := e.el.Context(ctx).Eval(`function(uid) { this.__pagehelperUID = uid; }`, uid)
	return err
}

// Connected treats a handle the browser can no longer resolve, for example
// after a navigation, as detached.
func (e *element) Connected(ctx context.Context) (bool, error) {
	res, err := e.el.Context(ctx).Eval(`function() { return this.isConnected; }`)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return res.Value.Bool(), nil
}

func (e *element) Click(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(`function() { this.click(); }`)
	return err
}

func (e *element) Fill(ctx context.Context, value string) error {
	_, err := e.el.Context(ctx).Eval(`function(value) {
		this.value = value;
		this.dispatchEvent(new Event('input', { bubbles: true }));
		this.dispatchEvent(new Event('change', { bubbles: true }));
	}`, value)
	return err
}
