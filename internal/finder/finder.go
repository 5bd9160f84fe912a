// Package finder locates page elements by visible text, ARIA role, tag or raw
// selector and gives each one an identifier that stays stable for the life of
// the node.
package finder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/v0xg/pagehelper/internal/dom"
	"go.uber.org/zap"
)

// UIDPrefix starts every synthesized identifier.
const UIDPrefix = "test_"

// Record describes one element returned by a query.
type Record struct {
	UID       string      `json:"uid"`
	Element   dom.Element `json:"-"`
	Text      string      `json:"text"`
	TagName   string      `json:"tagName"`
	Role      string      `json:"role,omitempty"`
	Name      string      `json:"name,omitempty"`
	ClassName string      `json:"className,omitempty"`
	Type      string      `json:"type,omitempty"`
}

// Finder resolves human descriptions of elements against a Document.
type Finder struct {
	doc    dom.Document
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	assigned map[string]dom.Element
}

// Option configures a Finder.
type Option func(*Finder)

// WithLogger sets the logger used for selector diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(f *Finder) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithClock overrides the time source for identifier timestamps.
func WithClock(now func() time.Time) Option {
	return func(f *Finder) { f.now = now }
}

// New creates a Finder over doc.
func New(doc dom.Document, opts ...Option) *Finder {
	f := &Finder{
		doc:      doc,
		logger:   zap.NewNop(),
		now:      time.Now,
		assigned: make(map[string]dom.Element),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.Named("finder")
	return f
}

// Document returns the document the finder queries.
func (f *Finder) Document() dom.Document { return f.doc }

// FindByText returns one record per text node under the body containing
// text, keeping only parents whose tag matches tag when tag is non-empty.
// An element with several matching text children appears once per child.
func (f *Finder) FindByText(ctx context.Context, text, tag string) ([]Record, error) {
	nodes, err := f.doc.TextNodes(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("find by text %q: %w", text, err)
	}

	var records []Record
	for _, tn := range nodes {
		info, err := tn.Parent.Describe(ctx)
		if err != nil {
			return nil, fmt.Errorf("find by text %q: %w", text, err)
		}
		if tag != "" && !strings.EqualFold(info.Tag, tag) {
			continue
		}
		uid, err := f.UID(ctx, tn.Parent)
		if err != nil {
			return nil, fmt.Errorf("find by text %q: %w", text, err)
		}
		records = append(records, Record{
			UID:       uid,
			Element:   tn.Parent,
			Text:      strings.TrimSpace(tn.Data),
			TagName:   info.Tag,
			Role:      info.Role,
			Name:      firstNonEmpty(info.Name, info.ID),
			ClassName: info.ClassName,
		})
	}
	return records, nil
}

// FindByRole returns every element whose role attribute equals role.
func (f *Finder) FindByRole(ctx context.Context, role string) ([]Record, error) {
	selector := fmt.Sprintf(`[role="%s"]`, escapeAttr(role))
	elements, err := f.doc.QueryAll(ctx, selector)
	if err != nil {
		return nil, fmt.Errorf("find by role %q: %w", role, err)
	}

	records := make([]Record, 0, len(elements))
	for _, el := range elements {
		info, err := el.Describe(ctx)
		if err != nil {
			return nil, fmt.Errorf("find by role %q: %w", role, err)
		}
		uid, err := f.UID(ctx, el)
		if err != nil {
			return nil, fmt.Errorf("find by role %q: %w", role, err)
		}
		records = append(records, Record{
			UID:     uid,
			Element: el,
			Role:    role,
			Text:    strings.TrimSpace(info.Text),
			TagName: info.Tag,
		})
	}
	return records, nil
}

// FindByTagAndText returns elements matching tag whose text content or value
// contains text. Every element matching tag is returned when text is empty.
func (f *Finder) FindByTagAndText(ctx context.Context, tag, text string) ([]Record, error) {
	elements, err := f.doc.QueryAll(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("find by tag %q: %w", tag, err)
	}

	var records []Record
	for _, el := range elements {
		info, err := el.Describe(ctx)
		if err != nil {
			return nil, fmt.Errorf("find by tag %q: %w", tag, err)
		}
		if text != "" && !strings.Contains(info.Text, text) && !strings.Contains(info.Value, text) {
			continue
		}
		uid, err := f.UID(ctx, el)
		if err != nil {
			return nil, fmt.Errorf("find by tag %q: %w", tag, err)
		}
		records = append(records, Record{
			UID:     uid,
			Element: el,
			TagName: info.Tag,
			Text:    firstNonEmpty(strings.TrimSpace(info.Text), info.Value),
			Type:    info.Type,
			Name:    firstNonEmpty(info.Name, info.ID),
		})
	}
	return records, nil
}

// FindBySelector returns the elements matched by a raw CSS selector. A
// malformed selector is logged and yields no records.
func (f *Finder) FindBySelector(ctx context.Context, selector string) ([]Record, error) {
	elements, err := f.doc.QueryAll(ctx, selector)
	if err != nil {
		var selErr *dom.SelectorError
		if errors.As(err, &selErr) {
			f.logger.Warn("Selector rejected.", zap.String("selector", selector), zap.Error(err))
			return nil, nil
		}
		return nil, fmt.Errorf("find by selector %q: %w", selector, err)
	}

	records := make([]Record, 0, len(elements))
	for _, el := range elements {
		info, err := el.Describe(ctx)
		if err != nil {
			return nil, fmt.Errorf("find by selector %q: %w", selector, err)
		}
		uid, err := f.UID(ctx, el)
		if err != nil {
			return nil, fmt.Errorf("find by selector %q: %w", selector, err)
		}
		records = append(records, Record{
			UID:       uid,
			Element:   el,
			TagName:   info.Tag,
			Text:      firstNonEmpty(strings.TrimSpace(info.Text), info.Value),
			Role:      info.Role,
			Name:      firstNonEmpty(info.Name, info.ID),
			ClassName: info.ClassName,
			Type:      info.Type,
		})
	}
	return records, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func escapeAttr(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
