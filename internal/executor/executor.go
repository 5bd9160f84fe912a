// Package executor runs ordered batches of page operations. Every operation
// gets an outcome; a failing step never stops the ones after it.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/v0xg/pagehelper/internal/cache"
	"github.com/v0xg/pagehelper/internal/dom"
	"github.com/v0xg/pagehelper/internal/finder"
	"go.uber.org/zap"
)

var (
	ErrTargetNotFound    = errors.New("target element not found")
	ErrTimeout           = errors.New("timed out waiting for element")
	ErrUnsupportedAction = errors.New("unsupported action")
)

// Options configures execution behavior
type Options struct {
	PollInterval   time.Duration // waitForElement re-check interval
	DefaultTimeout time.Duration // waitForElement budget when the operation sets none
	DefaultWait    time.Duration // wait duration when the operation sets none
}

// DefaultOptions returns the stock timings.
func DefaultOptions() Options {
	return Options{
		PollInterval:   100 * time.Millisecond,
		DefaultTimeout: 5 * time.Second,
		DefaultWait:    time.Second,
	}
}

// Executor runs operations against the document behind a Finder.
type Executor struct {
	finder *finder.Finder
	cache  *cache.Cache
	opts   Options
	logger *zap.Logger
}

// New creates an Executor. c may be nil, in which case cache keys are not
// consulted when resolving targets.
func New(f *finder.Finder, c *cache.Cache, opts Options, logger *zap.Logger) *Executor {
	def := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = def.DefaultTimeout
	}
	if opts.DefaultWait <= 0 {
		opts.DefaultWait = def.DefaultWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{finder: f, cache: c, opts: opts, logger: logger.Named("executor")}
}

// Execute runs ops in order, one at a time, and reports every outcome in
// submission order. Side effects of earlier operations are never rolled back.
// ctx bounds the waits; a cancelled context fails pending waits but every
// operation still gets an outcome.
func (e *Executor) Execute(ctx context.Context, ops []Operation) *Report {
	report := &Report{
		Total:    len(ops),
		Outcomes: make([]Outcome, 0, len(ops)),
	}

	for i, op := range ops {
		start := time.Now()
		result, err := e.executeOperation(ctx, op)
		outcome := Outcome{Operation: op, Elapsed: time.Since(start)}

		if err != nil {
			outcome.Error = err.Error()
			outcome.Err = err
			report.Failed++
			e.logger.Info("Operation failed.",
				zap.Int("step", i+1), zap.Int("of", len(ops)),
				zap.String("action", op.Action), zap.String("target", op.Target), zap.Error(err))
		} else {
			outcome.Success = true
			outcome.Result = result
			report.Succeeded++
			e.logger.Debug("Operation succeeded.",
				zap.Int("step", i+1), zap.Int("of", len(ops)),
				zap.String("action", op.Action), zap.String("target", op.Target))
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	return report
}

func (e *Executor) executeOperation(ctx context.Context, op Operation) (*Result, error) {
	switch op.Action {
	case ActionClick:
		el, err := e.mustResolve(ctx, op.Target)
		if err != nil {
			return nil, err
		}
		if err := el.Click(ctx); err != nil {
			return nil, fmt.Errorf("click %s: %w", op.Target, err)
		}
		return &Result{Action: ActionClick, Target: op.Target, UID: e.uidOf(ctx, el)}, nil

	case ActionFill:
		el, err := e.mustResolve(ctx, op.Target)
		if err != nil {
			return nil, err
		}
		if err := el.Fill(ctx, string(op.Value)); err != nil {
			return nil, fmt.Errorf("fill %s: %w", op.Target, err)
		}
		return &Result{Action: ActionFill, Target: op.Target, UID: e.uidOf(ctx, el), Value: string(op.Value)}, nil

	case ActionWait:
		d, ok := op.Value.Millis()
		if !ok {
			d = e.opts.DefaultWait
		}
		if err := sleep(ctx, d); err != nil {
			return nil, err
		}
		return &Result{Action: ActionWait, Duration: d}, nil

	case ActionWaitForElement:
		timeout := e.opts.DefaultTimeout
		if op.Options.Timeout > 0 {
			timeout = time.Duration(op.Options.Timeout) * time.Millisecond
		}
		return e.waitForElement(ctx, op.Target, timeout)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, op.Action)
	}
}

// waitForElement polls for text until it appears or timeout has fully elapsed.
func (e *Executor) waitForElement(ctx context.Context, target string, timeout time.Duration) (*Result, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		records, err := e.finder.FindByText(ctx, target, "")
		if err != nil {
			e.logger.Debug("Poll failed.", zap.String("target", target), zap.Error(err))
		} else if len(records) > 0 {
			return &Result{Action: ActionWaitForElement, Target: target, UID: records[0].UID, Found: true}, nil
		}

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s after %v", ErrTimeout, target, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for %s: %w", target, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (e *Executor) mustResolve(ctx context.Context, target string) (dom.Element, error) {
	el, err := e.resolve(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", target, err)
	}
	if el == nil {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, target)
	}
	return el, nil
}

// resolve maps a target to an element: DOM id first, then a cache key, then
// an assigned identifier, and finally the first element showing the text.
func (e *Executor) resolve(ctx context.Context, target string) (dom.Element, error) {
	if target == "" {
		return nil, nil
	}

	el, err := e.finder.Document().ElementByID(ctx, target)
	if err != nil {
		return nil, err
	}
	if el != nil {
		return el, nil
	}

	if e.cache != nil {
		if entry, ok := e.cache.Get(ctx, target); ok {
			return entry.Element, nil
		}
	}

	if el, ok := e.finder.Lookup(ctx, target); ok {
		return el, nil
	}

	records, err := e.finder.FindByText(ctx, target, "")
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		return records[0].Element, nil
	}
	return nil, nil
}

func (e *Executor) uidOf(ctx context.Context, el dom.Element) string {
	uid, err := e.finder.UID(ctx, el)
	if err != nil {
		e.logger.Debug("Could not identify element.", zap.Error(err))
		return ""
	}
	return uid
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
