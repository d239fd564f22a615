package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/statekeep/internal/dispatch"
)

// Scenario defines one dispatch test.
type Scenario struct {
	// Name uniquely identifies this scenario. Also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is an optional CUE catalog adding domains to the default
	// registry. Relative paths resolve against the scenario file.
	Catalog string `yaml:"catalog,omitempty"`

	// Seed holds raw domain file contents written before Open.
	Seed map[string]string `yaml:"seed,omitempty"`

	// ExpectOpenError is the dispatch error code Open must fail with.
	// When set, steps and expect are not evaluated.
	ExpectOpenError string `yaml:"expect_open_error,omitempty"`

	// Steps are dispatched in order.
	Steps []Step `yaml:"steps"`

	// Expect maps domain names to their expected final values.
	// Domains not listed are not checked.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Step is one dispatch.
type Step struct {
	Event   string `yaml:"event"`
	Payload string `yaml:"payload,omitempty"`

	// ExpectError is the dispatch error code this step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

var knownCodes = map[string]bool{
	string(dispatch.ErrCodeParse):         true,
	string(dispatch.ErrCodeIO):            true,
	string(dispatch.ErrCodeMissingDomain): true,
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected to catch typos.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}
	if scenario.Catalog != "" {
		if _, err := os.Stat(scenario.Catalog); err != nil {
			return nil, fmt.Errorf("invalid scenario: catalog not found: %s", scenario.Catalog)
		}
	}

	return scenario, nil
}

// ParseScenario parses scenario YAML. Catalog paths are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.ExpectOpenError != "" {
		if !knownCodes[s.ExpectOpenError] {
			return fmt.Errorf("expect_open_error: unknown error code %q", s.ExpectOpenError)
		}
		return nil
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Event == "" {
			return fmt.Errorf("steps[%d]: event is required", i)
		}
		if step.ExpectError != "" && !knownCodes[step.ExpectError] {
			return fmt.Errorf("steps[%d]: unknown error code %q", i, step.ExpectError)
		}
	}

	return nil
}
