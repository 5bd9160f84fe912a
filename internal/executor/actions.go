package executor

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported operation actions.
const (
	ActionClick          = "click"
	ActionFill           = "fill"
	ActionWait           = "wait"
	ActionWaitForElement = "waitForElement"
)

// Operation is a single step of a batch.
type Operation struct {
	Action  string  `json:"action" yaml:"action"`                       // click, fill, wait, waitForElement
	Target  string  `json:"target,omitempty" yaml:"target,omitempty"`   // element id, assigned identifier, cache key or visible text
	Value   Value   `json:"value,omitempty" yaml:"value,omitempty"`     // text to fill, or wait duration in ms
	Options OperationOptions `json:"options,omitempty" yaml:"options,omitempty"` // per-operation tuning
}

// OperationOptions tunes a single operation.
type OperationOptions struct {
	Timeout int `json:"timeout,omitempty" yaml:"timeout,omitempty"` // waitForElement budget in ms
}

// Value is an operation argument written as either a string or a number.
type Value string

func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("operation value must be a string or a number, got %s", b)
	}
	*v = Value(n.String())
	return nil
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: operation value must be a scalar", node.Line)
	}
	if node.Tag == "!!null" {
		*v = ""
		return nil
	}
	*v = Value(node.Value)
	return nil
}

// maxMillis is the longest wait a time.Duration can hold.
const maxMillis = float64(math.MaxInt64 / int64(time.Millisecond))

// Millis interprets the value as a duration in milliseconds. Values that are
// not positive or do not fit a time.Duration are rejected.
func (v Value) Millis() (time.Duration, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	if err != nil || !(f > 0 && f <= maxMillis) {
		return 0, false
	}
	return time.Duration(f * float64(time.Millisecond)), true
}

// Result describes what a successful operation did.
type Result struct {
	Action   string        `json:"action"`
	Target   string        `json:"target,omitempty"`
	UID      string        `json:"uid,omitempty"` // identifier of the element acted on
	Value    string        `json:"value,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Found    bool          `json:"found,omitempty"`
}

// Outcome is the result of one operation.
type Outcome struct {
	Operation Operation     `json:"operation"`
	Success   bool          `json:"success"`
	Result    *Result       `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	Err       error         `json:"-"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Report summarizes a batch.
type Report struct {
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Outcomes  []Outcome `json:"outcomes"`
}
