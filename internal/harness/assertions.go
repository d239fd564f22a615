package harness

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/statekeep/internal/testutil"
	"github.com/roach88/statekeep/internal/value"
)

// ExpectationError describes a failed expectation.
type ExpectationError struct {
	Subject  string // step or domain the expectation is about
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *ExpectationError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s:\n", e.Subject)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// checkStep compares a step outcome with its expect_error.
func checkStep(i int, step Step, sr StepResult, err error, result *Result) {
	subject := fmt.Sprintf("steps[%d] %s", i, step.Event)

	switch {
	case step.ExpectError == "" && err != nil:
		result.AddError((&ExpectationError{Subject: subject, Expected: "success", Actual: err.Error()}).Error())
	case step.ExpectError != "" && err == nil:
		result.AddError((&ExpectationError{Subject: subject, Expected: step.ExpectError, Actual: "success"}).Error())
	case step.ExpectError != "" && sr.Error != step.ExpectError:
		result.AddError((&ExpectationError{Subject: subject, Expected: step.ExpectError, Actual: sr.Error}).Error())
	}
}

// checkFiles verifies that every domain file holds exactly the in-memory
// value. Any divergence is a failed expectation.
func checkFiles(dir string, names []string, result *Result) error {
	files, err := testutil.ReadDataDir(dir, names)
	if err != nil {
		return fmt.Errorf("failed to read data dir: %w", err)
	}

	for _, name := range names {
		want, err := value.MarshalString(result.Final[name])
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", name, err)
		}
		if files[name] != want {
			result.AddError((&ExpectationError{
				Subject:  "file " + name,
				Expected: want,
				Actual:   files[name],
			}).Error())
		}
	}
	return nil
}

// checkExpect compares final domain values with the scenario's expect map.
func checkExpect(expect map[string]any, result *Result) {
	names := make([]string, 0, len(expect))
	for name := range expect {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		subject := "domain " + name

		want, err := toValue(expect[name])
		if err != nil {
			result.AddError(fmt.Sprintf("%s: invalid expectation: %v", subject, err))
			continue
		}

		got, ok := result.Final[name]
		if !ok {
			result.AddError((&ExpectationError{Subject: subject, Expected: encodeOrKind(want), Actual: "not registered"}).Error())
			continue
		}

		if !value.Equal(want, got) {
			result.AddError((&ExpectationError{Subject: subject, Expected: encodeOrKind(want), Actual: encodeOrKind(got)}).Error())
		}
	}
}

// toValue converts a decoded YAML value into a domain value.
func toValue(v any) (value.Value, error) {
	data, err := json.Marshal(normalizeYAML(v))
	if err != nil {
		return nil, err
	}
	return value.Parse(data)
}

// normalizeYAML turns map[any]any (non-string YAML keys such as 0) into
// map[string]any so it can be encoded as JSON.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return v
	}
}

func encodeOrKind(v value.Value) string {
	s, err := value.MarshalString(v)
	if err != nil {
		return value.Kind(v)
	}
	return s
}
