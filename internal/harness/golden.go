package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/statekeep/internal/value"
)

// GoldenBytes returns the deterministic JSON recorded in golden files: the
// scenario name, each step outcome and the final domain map.
func GoldenBytes(scenario *Scenario, result *Result) ([]byte, error) {
	steps := make(value.Array, 0, len(result.Steps))
	for _, s := range result.Steps {
		step := value.NewObject(value.O("event", value.String(s.Event)))
		if s.Error != "" {
			step["error"] = value.String(s.Error)
		} else {
			step["seq"] = value.Int(s.Seq)
			step["dispatch_id"] = value.String(s.DispatchID)
		}
		steps = append(steps, step)
	}

	snapshot := value.NewObject(
		value.O("scenario_name", value.String(scenario.Name)),
		value.O("steps", steps),
	)
	if result.Final != nil {
		snapshot["final"] = result.Final
	}

	return value.Marshal(snapshot)
}

// RunWithGolden executes a scenario and compares its outcome against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario could not run. Mismatches fail t.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	data, err := GoldenBytes(scenario, result)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return result, nil
}
