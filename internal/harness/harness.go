package harness

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/statekeep/internal/catalog"
	"github.com/roach88/statekeep/internal/dispatch"
	"github.com/roach88/statekeep/internal/persist"
	"github.com/roach88/statekeep/internal/registry"
	"github.com/roach88/statekeep/internal/testutil"
	"github.com/roach88/statekeep/internal/value"
)

// StepResult records the outcome of one step.
type StepResult struct {
	Event string `json:"event"`

	// Seq and DispatchID are set when the dispatch committed.
	Seq        int64  `json:"seq,omitempty"`
	DispatchID string `json:"dispatch_id,omitempty"`

	// Error is the dispatch error code when the step failed.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	Steps []StepResult `json:"steps"`

	// Final is the domain map after the last step. Nil when Open failed.
	Final value.Object `json:"final,omitempty"`

	// Errors lists failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Run executes a scenario in a fresh temp data directory.
//
// The returned error reports a harness problem (bad catalog, unexpected
// Open failure); failed expectations are reported through Result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "statekeep-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	defer os.RemoveAll(dir)

	reg, err := scenarioRegistry(scenario)
	if err != nil {
		return nil, err
	}

	if err := testutil.SeedDataDir(dir, scenario.Seed); err != nil {
		return nil, fmt.Errorf("failed to seed data dir: %w", err)
	}

	d, err := dispatch.Open(ctx, reg, persist.NewDir(dir),
		dispatch.WithIDGenerator(testutil.NewSequentialIDs("scn")),
		dispatch.WithClock(dispatch.NewClock()),
	)

	result := NewResult()
	if scenario.ExpectOpenError != "" {
		checkOpenError(scenario.ExpectOpenError, err, result)
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open state: %w", err)
	}

	for i, step := range scenario.Steps {
		snap, err := d.Dispatch(ctx, dispatch.Event{Name: step.Event, Payload: step.Payload})
		sr := StepResult{Event: step.Event}
		if err != nil {
			sr.Error = string(dispatch.CodeOf(err))
			if sr.Error == "" {
				return nil, fmt.Errorf("steps[%d]: %w", i, err)
			}
		} else {
			sr.Seq = snap.Seq
			sr.DispatchID = snap.DispatchID
		}
		result.Steps = append(result.Steps, sr)

		checkStep(i, step, sr, err, result)
	}

	result.Final = d.Snapshot().Values

	if err := checkFiles(dir, reg.Names(), result); err != nil {
		return nil, err
	}
	checkExpect(scenario.Expect, result)

	return result, nil
}

// scenarioRegistry returns the default registry extended by the scenario's
// catalog, if any.
func scenarioRegistry(scenario *Scenario) (*registry.Registry, error) {
	reg := registry.Default()
	if scenario.Catalog == "" {
		return reg, nil
	}

	extra, err := catalog.Load(scenario.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	reg, err = reg.With(extra...)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}
	return reg, nil
}

// checkOpenError compares an Open failure against the expected code.
func checkOpenError(want string, err error, result *Result) {
	if err == nil {
		result.AddError(fmt.Sprintf("open: expected %s, got success", want))
		return
	}
	var de *dispatch.Error
	if !errors.As(err, &de) {
		result.AddError(fmt.Sprintf("open: expected %s, got %v", want, err))
		return
	}
	if string(de.Code) != want {
		result.AddError(fmt.Sprintf("open: expected %s, got %s", want, de.Code))
	}
}
