// Package htmldom is an in-memory dom.Document built on golang.org/x/net/html.
//
// It has no layout engine and no script runtime. Clicks and fills are recorded
// as events and handed to an optional listener, which is how callers emulate a
// page reacting to input. Visibility is approximated from the markup: an
// element is hidden when it or an ancestor carries the hidden attribute, an
// inline display:none style, or lives in a non-rendered subtree.
package htmldom

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/v0xg/pagehelper/internal/dom"
	"golang.org/x/net/html"
)

// Event is an event dispatched on an element by Click or Fill.
type Event struct {
	Type    string // click, input, change
	Target  *html.Node
	Bubbles bool
}

// Document is a parsed page that can be queried and mutated concurrently.
type Document struct {
	mu       sync.RWMutex
	root     *html.Node
	url      string
	uids     map[*html.Node]string
	values   map[*html.Node]string
	events   []Event
	listener func(Event)
}

var _ dom.Document = (*Document)(nil)

// Parse reads an HTML page served from pageURL.
func Parse(r io.Reader, pageURL string) (*Document, error) {
	gq, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse: %w", err)
	}
	return &Document{
		root:   gq.Nodes[0],
		url:    pageURL,
		uids:   make(map[*html.Node]string),
		values: make(map[*html.Node]string),
	}, nil
}

// ParseString is Parse for an in-memory page.
func ParseString(page, pageURL string) (*Document, error) {
	return Parse(strings.NewReader(page), pageURL)
}

// SetURL changes the document location, as a client-side route change would.
func (d *Document) SetURL(u string) {
	d.mu.Lock()
	d.url = u
	d.mu.Unlock()
}

// OnEvent registers fn to receive every dispatched event. fn runs without the
// document lock held, so it may call Mutate.
func (d *Document) OnEvent(fn func(Event)) {
	d.mu.Lock()
	d.listener = fn
	d.mu.Unlock()
}

// Events returns the events dispatched so far.
func (d *Document) Events() []Event {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

// Mutate runs fn with exclusive access to the tree.
func (d *Document) Mutate(fn func(root *html.Node)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.root)
}

// AppendHTML parses fragment and appends it to the first element matching
// selector.
func (d *Document) AppendHTML(selector, fragment string) error {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return &dom.SelectorError{Selector: selector, Err: err}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	parent := cascadia.Query(d.root, sel)
	if parent == nil {
		return fmt.Errorf("htmldom: no element matches %q", selector)
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		return fmt.Errorf("htmldom: parse fragment: %w", err)
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	return nil
}

// Remove detaches every element matching selector and returns how many were
// removed.
func (d *Document) Remove(selector string) (int, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return 0, &dom.SelectorError{Selector: selector, Err: err}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	nodes := cascadia.QueryAll(d.root, sel)
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
	return len(nodes), nil
}

func (d *Document) TextNodes(_ context.Context, substr string) ([]dom.TextNode, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	body := findBody(d.root)
	if body == nil {
		return nil, nil
	}
	var out []dom.TextNode
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				if strings.Contains(c.Data, substr) && c.Parent.Type == html.ElementNode {
					out = append(out, dom.TextNode{Data: c.Data, Parent: d.wrap(c.Parent)})
				}
				continue
			}
			walk(c)
		}
	}
	walk(body)
	return out, nil
}

func (d *Document) QueryAll(_ context.Context, selector string) ([]dom.Element, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, &dom.SelectorError{Selector: selector, Err: err}
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	nodes := cascadia.QueryAll(d.root, sel)
	out := make([]dom.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, d.wrap(n))
	}
	return out, nil
}

func (d *Document) ElementByID(_ context.Context, id string) (dom.Element, error) {
	if id == "" {
		return nil, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	var found *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil && found == nil; c = c.NextSibling {
			if c.Type == html.ElementNode && Attr(c, "id") == id {
				found = c
				return
			}
			walk(c)
		}
	}
	walk(d.root)
	if found == nil {
		return nil, nil
	}
	return d.wrap(found), nil
}

func (d *Document) URL(context.Context) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.url, nil
}

func (d *Document) Title(context.Context) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return strings.TrimSpace(goquery.NewDocumentFromNode(d.root).Find("title").First().Text()), nil
}

func (d *Document) wrap(n *html.Node) *element {
	return &element{doc: d, n: n}
}

// dispatch records ev and hands it to the listener. Callers must not hold the
// lock.
func (d *Document) dispatch(ev Event) {
	d.mu.Lock()
	d.events = append(d.events, ev)
	listener := d.listener
	d.mu.Unlock()
	if listener != nil {
		listener(ev)
	}
}

// NodeOf returns the html node behind an element produced by this package.
func NodeOf(el dom.Element) (*html.Node, bool) {
	e, ok := el.(*element)
	if !ok {
		return nil, false
	}
	return e.n, true
}

// Attr returns the value of attribute key, or "" when absent.
func Attr(n *html.Node, key string) string {
	v, _ := attr(n, key)
	return v
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func findBody(root *html.Node) *html.Node {
	if root.Type == html.ElementNode && root.Data == "body" {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
