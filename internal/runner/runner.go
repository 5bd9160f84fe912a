// Package runner executes test suites case by case against an installed
// helper and records a status and a step list for each case.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/v0xg/pagehelper/internal/executor"
	"github.com/v0xg/pagehelper/internal/helper"
	"github.com/v0xg/pagehelper/internal/plan"
	"github.com/v0xg/pagehelper/internal/validator"
	"go.uber.org/zap"
)

// Case statuses.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusPartial = "partial"
	StatusSkipped = "skipped"
)

// Screenshotter captures the page after a case and returns where the image
// was stored.
type Screenshotter interface {
	Screenshot(ctx context.Context, name string) (string, error)
}

// Step is one operation or validation of a case.
type Step struct {
	Description string  `json:"description"`
	Success     bool    `json:"success"`
	Duration    float64 `json:"duration,omitempty"` // seconds
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	Name        string            `json:"test_name"`
	Description string            `json:"description,omitempty"`
	Status      string            `json:"status"`
	Note        string            `json:"note,omitempty"`
	Steps       []Step            `json:"steps"`
	Screenshots []string          `json:"screenshots"`
	Execution   *executor.Report  `json:"execution,omitempty"`
	Validation  *validator.Report `json:"validation,omitempty"`
	Duration    float64           `json:"duration"` // seconds
}

// SuiteResult is the outcome of a suite run.
type SuiteResult struct {
	RunID       string       `json:"run_id"`
	Name        string       `json:"test_name"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	Duration    float64      `json:"duration"` // seconds
	Cases       []CaseResult `json:"test_cases"`
}

// Summary counts case statuses.
type Summary struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Partial  int     `json:"partial"`
	Skipped  int     `json:"skipped"`
	Executed int     `json:"executed"`
	PassRate float64 `json:"pass_rate"` // percent of executed cases
}

// Summary tallies the case statuses. Skipped cases do not count towards the
// pass rate.
func (r *SuiteResult) Summary() Summary {
	s := Summary{Total: len(r.Cases)}
	for _, c := range r.Cases {
		switch c.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusPartial:
			s.Partial++
		case StatusSkipped:
			s.Skipped++
		}
	}
	s.Executed = s.Total - s.Skipped
	if s.Executed > 0 {
		s.PassRate = float64(s.Passed) / float64(s.Executed) * 100
	}
	return s
}

// Runner runs suites.
type Runner struct {
	helper  *helper.Helper
	shooter Screenshotter
	logger  *zap.Logger
	newID   func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithScreenshotter captures one screenshot per executed case.
func WithScreenshotter(s Screenshotter) Option {
	return func(r *Runner) { r.shooter = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Runner over an installed helper.
func New(h *helper.Helper, opts ...Option) *Runner {
	r := &Runner{helper: h, logger: zap.NewNop(), newID: uuid.NewString}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("runner")
	return r
}

// Run executes every case in order. Once ctx is done the remaining cases are
// reported as skipped.
func (r *Runner) Run(ctx context.Context, suite *plan.Suite) *SuiteResult {
	start := time.Now()
	result := &SuiteResult{
		RunID:       r.newID(),
		Name:        suite.Name,
		Description: suite.Description,
		URL:         suite.URL,
		StartedAt:   start,
		Cases:       make([]CaseResult, 0, len(suite.Cases)),
	}

	for i, c := range suite.Cases {
		if err := ctx.Err(); err != nil {
			result.Cases = append(result.Cases, CaseResult{
				Name:        c.Name,
				Description: c.Description,
				Status:      StatusSkipped,
				Note:        fmt.Sprintf("not run: %v", err),
				Steps:       []Step{},
				Screenshots: []string{},
			})
			continue
		}

		r.logger.Info("Running case.", zap.Int("case", i+1), zap.Int("of", len(suite.Cases)), zap.String("name", c.Name))
		cr := r.runCase(ctx, c)
		r.logger.Info("Case finished.", zap.String("name", c.Name), zap.String("status", cr.Status), zap.Float64("seconds", cr.Duration))
		result.Cases = append(result.Cases, cr)
	}

	result.Duration = time.Since(start).Seconds()
	return result
}

func (r *Runner) runCase(ctx context.Context, c plan.Case) CaseResult {
	cr := CaseResult{
		Name:        c.Name,
		Description: c.Description,
		Steps:       []Step{},
		Screenshots: []string{},
	}
	if c.Empty() {
		cr.Status = StatusSkipped
		cr.Note = "no operations or validations"
		return cr
	}

	start := time.Now()
	// Element references from earlier cases must not leak into this one.
	r.helper.Cache.Clear()

	var notes []string
	if len(c.Operations) > 0 {
		cr.Execution = r.helper.Batch.Execute(ctx, c.Operations)
		for _, out := range cr.Execution.Outcomes {
			cr.Steps = append(cr.Steps, Step{
				Description: describeOperation(out.Operation),
				Success:     out.Success,
				Duration:    out.Elapsed.Seconds(),
			})
			if !out.Success {
				notes = append(notes, out.Error)
			}
		}
	}
	if len(c.Validations) > 0 {
		cr.Validation = r.helper.Validate.Validate(ctx, c.Validations)
		for _, out := range cr.Validation.Outcomes {
			cr.Steps = append(cr.Steps, Step{
				Description: describeRule(out.Rule),
				Success:     out.Passed,
			})
			if !out.Passed {
				notes = append(notes, firstNonEmpty(out.Error, out.Message))
			}
		}
	}

	cr.Status = status(cr.Steps)
	if len(notes) > 0 {
		cr.Note = notes[0]
		if len(notes) > 1 {
			cr.Note = fmt.Sprintf("%s (+%d more)", notes[0], len(notes)-1)
		}
	}

	if r.shooter != nil {
		path, err := r.shooter.Screenshot(ctx, c.Name)
		if err != nil {
			r.logger.Warn("Screenshot failed.", zap.String("case", c.Name), zap.Error(err))
		} else if path != "" {
			cr.Screenshots = append(cr.Screenshots, path)
		}
	}

	cr.Duration = time.Since(start).Seconds()
	return cr
}

// status is passed when every step succeeded, failed when none did and
// partial otherwise.
func status(steps []Step) string {
	ok := 0
	for _, s := range steps {
		if s.Success {
			ok++
		}
	}
	switch ok {
	case len(steps):
		return StatusPassed
	case 0:
		return StatusFailed
	}
	return StatusPartial
}

func describeOperation(op executor.Operation) string {
	switch op.Action {
	case executor.ActionClick:
		return fmt.Sprintf("Click %q", op.Target)
	case executor.ActionFill:
		return fmt.Sprintf("Fill %q with %q", op.Target, string(op.Value))
	case executor.ActionWait:
		if op.Value == "" {
			return "Wait"
		}
		return fmt.Sprintf("Wait %sms", op.Value)
	case executor.ActionWaitForElement:
		return fmt.Sprintf("Wait for %q", op.Target)
	}
	return fmt.Sprintf("%s %q", op.Action, op.Target)
}

func describeRule(rule validator.Rule) string {
	switch rule.Type {
	case validator.TypeElementExists:
		return fmt.Sprintf("Check %q exists", rule.Target)
	case validator.TypeTextContains:
		return fmt.Sprintf("Check %q contains %q", rule.Target, rule.ExpectedValue)
	case validator.TypeURLContains:
		return fmt.Sprintf("Check URL contains %q", rule.ExpectedValue)
	case validator.TypeURLEquals:
		return fmt.Sprintf("Check URL is %q", rule.ExpectedValue)
	}
	return fmt.Sprintf("Check %s %q", rule.Type, rule.Target)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
