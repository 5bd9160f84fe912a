// Package helper wires the finder, cache, executor and validator together for
// one page and installs that bundle at most once per document.
package helper

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/v0xg/pagehelper/internal/cache"
	"github.com/v0xg/pagehelper/internal/dom"
	"github.com/v0xg/pagehelper/internal/executor"
	"github.com/v0xg/pagehelper/internal/finder"
	"github.com/v0xg/pagehelper/internal/validator"
	"go.uber.org/zap"
)

// Helper is the set of components installed on a page.
type Helper struct {
	Find     *finder.Finder
	Batch    *executor.Executor
	Validate *validator.Validator
	Cache    *cache.Cache

	doc    dom.Document
	logger *zap.Logger
}

type settings struct {
	logger      *zap.Logger
	execOptions executor.Options
	finderOpts  []finder.Option
}

// Option configures Install.
type Option func(*settings)

// WithLogger sets the logger shared by every component.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithExecutorOptions overrides the executor timings.
func WithExecutorOptions(o executor.Options) Option {
	return func(s *settings) { s.execOptions = o }
}

// WithFinderOptions passes extra options to the finder.
func WithFinderOptions(opts ...finder.Option) Option {
	return func(s *settings) { s.finderOpts = append(s.finderOpts, opts...) }
}

var (
	mu        sync.Mutex
	installed = make(map[dom.Document]*Helper)
)

// Install returns the helper for doc, creating it on first use. Installing
// again on the same document is a no-op that returns the existing helper;
// the options of later calls are ignored.
func Install(doc dom.Document, opts ...Option) *Helper {
	s := settings{execOptions: executor.DefaultOptions()}
	for _, opt := range opts {
		opt(&s)
	}
	logger := s.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("helper")

	mu.Lock()
	defer mu.Unlock()

	if h, ok := installed[doc]; ok {
		logger.Info("Helper already installed, skipping.")
		return h
	}

	f := finder.New(doc, append([]finder.Option{finder.WithLogger(s.logger)}, s.finderOpts...)...)
	c := cache.New(f, s.logger)
	h := &Helper{
		Find:     f,
		Cache:    c,
		Batch:    executor.New(f, c, s.execOptions, s.logger),
		Validate: validator.New(f, s.logger),
		doc:      doc,
		logger:   logger,
	}
	installed[doc] = h
	logger.Info("Helper installed.")
	return h
}

// Uninstall forgets the helper for doc, as a page unload would.
func Uninstall(doc dom.Document) {
	mu.Lock()
	delete(installed, doc)
	mu.Unlock()
}

// Document returns the page the helper is installed on.
func (h *Helper) Document() dom.Document { return h.doc }

var (
	buttonHints = []string{"button", "btn", "按钮"}
	inputHints  = []string{"input", "field", "输入"}
)

// QuickFind searches by text and, when the description mentions a button or
// an input, adds the page's buttons or inputs. Results are deduplicated by
// identifier, keeping the first occurrence.
func (h *Helper) QuickFind(ctx context.Context, description string) ([]finder.Record, error) {
	results, err := h.Find.FindByText(ctx, description, "")
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(description)
	if containsAny(lower, buttonHints) {
		byRole, err := h.Find.FindByRole(ctx, "button")
		if err != nil {
			return nil, err
		}
		byTag, err := h.Find.FindByTagAndText(ctx, "button", "")
		if err != nil {
			return nil, err
		}
		results = append(results, byRole...)
		results = append(results, byTag...)
	}
	if containsAny(lower, inputHints) {
		byTag, err := h.Find.FindByTagAndText(ctx, "input", "")
		if err != nil {
			return nil, err
		}
		results = append(results, byTag...)
	}

	return dedupe(results), nil
}

// InteractiveElement is a visible element a user could act on.
type InteractiveElement struct {
	UID     string      `json:"uid" yaml:"uid"`
	Element dom.Element `json:"-" yaml:"-"`
	TagName string      `json:"tagName" yaml:"tagName"`
	Text    string      `json:"text" yaml:"text"`
	Role    string      `json:"role,omitempty" yaml:"role,omitempty"`
	Type    string      `json:"type,omitempty" yaml:"type,omitempty"`
	Name    string      `json:"name,omitempty" yaml:"name,omitempty"`
}

var interactiveSelectors = []string{
	"button", "a", "input", "select", "textarea",
	`[role="button"]`, `[role="link"]`, "[onclick]",
	`[tabindex]:not([tabindex="-1"])`,
}

// InteractiveElements lists every visible interactive element, grouped by the
// selector that first matched it.
func (h *Helper) InteractiveElements(ctx context.Context) ([]InteractiveElement, error) {
	var out []InteractiveElement
	seen := make(map[string]bool)

	for _, sel := range interactiveSelectors {
		elements, err := h.doc.QueryAll(ctx, sel)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", sel, err)
		}
		for _, el := range elements {
			info, err := el.Describe(ctx)
			if err != nil {
				return nil, fmt.Errorf("describe: %w", err)
			}
			if !info.Visible {
				continue
			}
			uid, err := h.Find.UID(ctx, el)
			if err != nil {
				return nil, err
			}
			if seen[uid] {
				continue
			}
			seen[uid] = true

			text := strings.TrimSpace(info.Text)
			if text == "" {
				text = info.Value
			}
			if text == "" {
				text = info.Placeholder
			}
			name := info.Name
			if name == "" {
				name = info.ID
			}
			out = append(out, InteractiveElement{
				UID:     uid,
				Element: el,
				TagName: info.Tag,
				Text:    text,
				Role:    info.Role,
				Type:    info.Type,
				Name:    name,
			})
		}
	}
	return out, nil
}

// Snapshot is a compact description of the page.
type Snapshot struct {
	URL      string               `json:"url" yaml:"url"`
	Title    string               `json:"title" yaml:"title"`
	Elements []InteractiveElement `json:"elements" yaml:"elements"`
}

// Snapshot captures the location, title and interactive elements.
func (h *Helper) Snapshot(ctx context.Context) (*Snapshot, error) {
	url, err := h.doc.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("read location: %w", err)
	}
	title, err := h.doc.Title(ctx)
	if err != nil {
		return nil, fmt.Errorf("read title: %w", err)
	}
	elements, err := h.InteractiveElements(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{URL: url, Title: title, Elements: elements}, nil
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func dedupe(records []finder.Record) []finder.Record {
	seen := make(map[string]bool, len(records))
	out := records[:0:0]
	for _, r := range records {
		if seen[r.UID] {
			continue
		}
		seen[r.UID] = true
		out = append(out, r)
	}
	return out
}
