// Package plan reads and writes test suites: named cases made of page
// operations followed by validation rules.
package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/v0xg/pagehelper/internal/executor"
	"github.com/v0xg/pagehelper/internal/validator"
	"gopkg.in/yaml.v3"
)

var ErrUnknownFormat = errors.New("unknown suite format")

// Suite is a set of cases run against one page.
type Suite struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	URL         string `json:"url,omitempty" yaml:"url,omitempty"`
	Cases       []Case `json:"cases" yaml:"cases"`
}

// Case runs its operations, then checks its validations.
type Case struct {
	Name        string               `json:"name" yaml:"name"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Operations  []executor.Operation `json:"operations,omitempty" yaml:"operations,omitempty"`
	Validations []validator.Rule     `json:"validations,omitempty" yaml:"validations,omitempty"`
}

// Empty reports whether the case has nothing to run.
func (c Case) Empty() bool {
	return len(c.Operations) == 0 && len(c.Validations) == 0
}

// Format is a suite file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf picks the encoding from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// Load reads a suite file.
func Load(path string) (*Suite, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite: %w", err)
	}
	suite, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if suite.Name == "" {
		suite.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return suite, nil
}

// Parse decodes and validates a suite.
func Parse(data []byte, format Format) (*Suite, error) {
	var suite Suite
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&suite); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&suite); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err := suite.Validate(); err != nil {
		return nil, err
	}
	return &suite, nil
}

// Validate checks structure only. Unknown actions and rule types are left to
// the executor and validator, which report them per item.
func (s *Suite) Validate() error {
	if len(s.Cases) == 0 {
		return errors.New("suite has no cases")
	}
	seen := make(map[string]bool, len(s.Cases))
	for i, c := range s.Cases {
		if c.Name == "" {
			return fmt.Errorf("case %d has no name", i+1)
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate case name %q", c.Name)
		}
		seen[c.Name] = true
		for j, op := range c.Operations {
			if op.Action == "" {
				return fmt.Errorf("case %q: operation %d has no action", c.Name, j+1)
			}
		}
		for j, r := range c.Validations {
			if r.Type == "" {
				return fmt.Errorf("case %q: validation %d has no type", c.Name, j+1)
			}
		}
	}
	return nil
}

// MarshalCase renders a single case as YAML.
func MarshalCase(c Case) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
