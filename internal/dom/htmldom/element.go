package htmldom

import (
	"context"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/v0xg/pagehelper/internal/dom"
	"golang.org/x/net/html"
)

type element struct {
	doc *Document
	n   *html.Node
}

var _ dom.Element = (*element)(nil)

func (e *element) Describe(context.Context) (dom.Info, error) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	n := e.n
	info := dom.Info{
		Tag:         strings.ToUpper(n.Data),
		ID:          Attr(n, "id"),
		Role:        Attr(n, "role"),
		Name:        Attr(n, "name"),
		ClassName:   Attr(n, "class"),
		Placeholder: Attr(n, "placeholder"),
		Text:        textContent(n),
		Type:        e.typeOf(),
		Visible:     rendered(n),
	}
	info.Value = e.valueOf()
	_, info.OnClick = attr(n, "onclick")
	if v, ok := attr(n, "tabindex"); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			info.TabIndex = &i
		}
	}
	return info, nil
}

func (e *element) Path(context.Context) ([]dom.PathStep, error) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	var path []dom.PathStep
	for cur := e.n; cur != nil && cur.Type == html.ElementNode && cur.Data != "body"; cur = cur.Parent {
		idx := 0
		for s := cur.PrevSibling; s != nil; s = s.PrevSibling {
			if s.Type == html.ElementNode {
				idx++
			}
		}
		path = append([]dom.PathStep{{Tag: cur.Data, Index: idx}}, path...)
	}
	return path, nil
}

func (e *element) UID(context.Context) (string, error) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.doc.uids[e.n], nil
}

func (e *element) SetUID(_ context.Context, uid string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.doc.uids[e.n] = uid
	return nil
}

func (e *element) Connected(context.Context) (bool, error) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	for cur := e.n; cur != nil; cur = cur.Parent {
		if cur == e.doc.root {
			return true, nil
		}
	}
	return false, nil
}

func (e *element) Click(context.Context) error {
	e.doc.dispatch(Event{Type: "click", Target: e.n, Bubbles: true})
	return nil
}

func (e *element) Fill(_ context.Context, value string) error {
	e.doc.mu.Lock()
	e.doc.values[e.n] = value
	e.doc.mu.Unlock()

	e.doc.dispatch(Event{Type: "input", Target: e.n, Bubbles: true})
	e.doc.dispatch(Event{Type: "change", Target: e.n, Bubbles: true})
	return nil
}

// typeOf mirrors the type property of form controls.
func (e *element) typeOf() string {
	switch e.n.Data {
	case "input":
		if t := strings.ToLower(Attr(e.n, "type")); t != "" {
			return t
		}
		return "text"
	case "button":
		if t := strings.ToLower(Attr(e.n, "type")); t != "" {
			return t
		}
		return "submit"
	case "select":
		if _, ok := attr(e.n, "multiple"); ok {
			return "select-multiple"
		}
		return "select-one"
	case "textarea":
		return "textarea"
	}
	return ""
}

// valueOf mirrors the value property; the last Fill wins over markup.
func (e *element) valueOf() string {
	if v, ok := e.doc.values[e.n]; ok {
		return v
	}
	switch e.n.Data {
	case "input", "button", "data", "li", "meter", "progress", "param":
		return Attr(e.n, "value")
	case "option":
		if v, ok := attr(e.n, "value"); ok {
			return v
		}
		return strings.TrimSpace(textContent(e.n))
	case "textarea":
		return textContent(e.n)
	case "select":
		var first, selected string
		var seen bool
		goquery.NewDocumentFromNode(e.n).Find("option").EachWithBreak(func(i int, s *goquery.Selection) bool {
			opt := &element{doc: e.doc, n: s.Nodes[0]}
			if i == 0 {
				first = opt.valueOf()
			}
			if _, ok := attr(s.Nodes[0], "selected"); ok {
				selected, seen = opt.valueOf(), true
				return false
			}
			return true
		})
		if seen {
			return selected
		}
		return first
	}
	return ""
}

func textContent(n *html.Node) string {
	return goquery.NewDocumentFromNode(n).Text()
}

// rendered approximates a non-null offsetParent.
func rendered(n *html.Node) bool {
	if n.Data == "input" && strings.EqualFold(Attr(n, "type"), "hidden") {
		return false
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.DocumentNode {
			return true
		}
		if cur.Type != html.ElementNode {
			continue
		}
		switch cur.Data {
		case "head", "script", "style", "template", "noscript", "title", "meta", "link":
			return false
		}
		if _, hidden := attr(cur, "hidden"); hidden {
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(Attr(cur, "style")), " ", "")
		if strings.Contains(style, "display:none") {
			return false
		}
	}
	// Detached subtrees have no box.
	return false
}
