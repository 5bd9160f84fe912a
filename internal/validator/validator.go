// Package validator evaluates declarative assertions about the current page.
package validator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/v0xg/pagehelper/internal/finder"
	"go.uber.org/zap"
)

const (
	TypeElementExists = "element_exists"
	TypeTextContains  = "text_contains"
	TypeURLContains   = "url_contains"
	TypeURLEquals     = "url_equals"
)

var ErrUnsupportedValidationType = errors.New("unsupported validation type")

// Rule is one assertion.
type Rule struct {
	Type          string `json:"type" yaml:"type"`
	Target        string `json:"target,omitempty" yaml:"target,omitempty"`
	ExpectedValue string `json:"expectedValue,omitempty" yaml:"expectedValue,omitempty"`
}

// Outcome is a rule plus its verdict.
type Outcome struct {
	Rule        `yaml:",inline"`
	Passed      bool   `json:"passed" yaml:"passed"`
	ActualValue string `json:"actualValue,omitempty" yaml:"actualValue,omitempty"`
	Message     string `json:"message,omitempty" yaml:"message,omitempty"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
	Err         error  `json:"-" yaml:"-"`
}

// Report summarises a validation run.
type Report struct {
	Total    int       `json:"total"`
	Passed   int       `json:"passed"`
	Failed   int       `json:"failed"`
	Outcomes []Outcome `json:"outcomes"`
}

// Validator checks rules against the document behind a Finder.
type Validator struct {
	finder *finder.Finder
	logger *zap.Logger
}

// New creates a Validator.
func New(f *finder.Finder, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{finder: f, logger: logger.Named("validator")}
}

// Validate evaluates rules in order. A rule that cannot be evaluated is
// recorded as failed and the remaining rules still run.
func (v *Validator) Validate(ctx context.Context, rules []Rule) *Report {
	report := &Report{
		Total:    len(rules),
		Outcomes: make([]Outcome, 0, len(rules)),
	}

	for _, rule := range rules {
		outcome, err := v.validate(ctx, rule)
		if err != nil {
			outcome = Outcome{Rule: rule, Error: err.Error(), Err: err}
			v.logger.Info("Validation errored.", zap.String("type", rule.Type), zap.String("target", rule.Target), zap.Error(err))
		}
		if outcome.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	return report
}

func (v *Validator) validate(ctx context.Context, rule Rule) (Outcome, error) {
	out := Outcome{Rule: rule}

	switch rule.Type {
	case TypeElementExists:
		records, err := v.finder.FindByText(ctx, rule.Target, "")
		if err != nil {
			return out, err
		}
		out.Passed = len(records) > 0
		if out.Passed {
			out.ActualValue = "exists"
			out.Message = "element exists"
		} else {
			out.ActualValue = "missing"
			out.Message = "element does not exist"
		}

	case TypeTextContains:
		records, err := v.finder.FindByText(ctx, rule.Target, "")
		if err != nil {
			return out, err
		}
		if len(records) == 0 {
			out.Message = "target element not found"
			return out, nil
		}
		info, err := records[0].Element.Describe(ctx)
		if err != nil {
			return out, fmt.Errorf("describe %s: %w", rule.Target, err)
		}
		out.ActualValue = info.Text
		out.Passed = strings.Contains(info.Text, rule.ExpectedValue)
		if out.Passed {
			out.Message = "text contains expected value"
		} else {
			out.Message = fmt.Sprintf("text does not contain expected value, actual: %s", info.Text)
		}

	case TypeURLContains, TypeURLEquals:
		url, err := v.finder.Document().URL(ctx)
		if err != nil {
			return out, fmt.Errorf("read location: %w", err)
		}
		out.ActualValue = url
		if rule.Type == TypeURLContains {
			out.Passed = strings.Contains(url, rule.ExpectedValue)
		} else {
			out.Passed = url == rule.ExpectedValue
		}
		switch {
		case out.Passed && rule.Type == TypeURLContains:
			out.Message = "URL contains expected value"
		case out.Passed:
			out.Message = "URL matches"
		case rule.Type == TypeURLContains:
			out.Message = fmt.Sprintf("URL does not contain expected value, actual: %s", url)
		default:
			out.Message = fmt.Sprintf("URL does not match, actual: %s", url)
		}

	default:
		return out, fmt.Errorf("%w: %q", ErrUnsupportedValidationType, rule.Type)
	}

	return out, nil
}
