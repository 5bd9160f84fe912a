// Package dom defines the page model the helper components operate on.
//
// A Document is one loaded page. Elements are non-owning handles into that
// page: the page may remove the underlying node at any time, so callers that
// hold on to an Element must check Connected before trusting it.
package dom

import (
	"context"
	"fmt"
)

// Document is the DOM of a single loaded page.
type Document interface {
	// TextNodes returns every text node under the body whose data contains
	// substr, in document order, paired with its parent element.
	TextNodes(ctx context.Context, substr string) ([]TextNode, error)

	// QueryAll returns the elements matched by a CSS selector. A malformed
	// selector is reported as a *SelectorError.
	QueryAll(ctx context.Context, selector string) ([]Element, error)

	// ElementByID returns the element carrying the id attribute, or nil when
	// there is none.
	ElementByID(ctx context.Context, id string) (Element, error)

	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
}

// TextNode is a text node matched by Document.TextNodes.
type TextNode struct {
	Data   string
	Parent Element
}

// Element is a handle to a DOM element.
type Element interface {
	// Describe reads the element's attributes and rendered state in one pass.
	Describe(ctx context.Context) (Info, error)

	// Path returns the ancestor chain from just below the body down to the
	// element itself.
	Path(ctx context.Context) ([]PathStep, error)

	// UID returns the identifier previously attached with SetUID, if any.
	UID(ctx context.Context) (string, error)
	SetUID(ctx context.Context, uid string) error

	// Connected reports whether the element is still attached to the document.
	Connected(ctx context.Context) (bool, error)

	// Click dispatches a synthetic click.
	Click(ctx context.Context) error

	// Fill sets the element's value and dispatches bubbling input and change
	// events.
	Fill(ctx context.Context, value string) error
}

// Info is a snapshot of an element's attributes and state.
type Info struct {
	Tag         string // upper case, as element.tagName
	ID          string
	Role        string
	Name        string
	ClassName   string
	Type        string
	Text        string // textContent
	Value       string
	Placeholder string
	OnClick     bool
	TabIndex    *int
	Visible     bool // non-null offsetParent
}

// PathStep is one level of an element's position below the body.
type PathStep struct {
	Tag   string // lower case
	Index int    // number of preceding element siblings
}

// SelectorError reports a selector that could not be parsed.
type SelectorError struct {
	Selector string
	Err      error
}

func (e *SelectorError) Error() string {
	return fmt.Sprintf("invalid selector %q: %v", e.Selector, e.Err)
}

func (e *SelectorError) Unwrap() error { return e.Err }
