package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: documents to start from,
// a flow of operations with expected outcomes, and assertions on the
// final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Setup contains documents created before the flow.
	// Setup creates must succeed.
	Setup []map[string]any `yaml:"setup,omitempty"`

	// Flow contains the operations under test, run in order.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one operation in the flow.
type Step struct {
	// Op is one of the Op constants.
	Op string `yaml:"op"`

	// Doc is the document for create and update.
	Doc map[string]any `yaml:"doc,omitempty"`

	// ID is the target of get and delete.
	ID string `yaml:"id,omitempty"`

	// Query is the query of search, count and delete_matching.
	// Operator objects ({$gt: 3}) are allowed.
	Query map[string]any `yaml:"query,omitempty"`

	// Size and Offset paginate search.
	Size   int `yaml:"size,omitempty"`
	Offset int `yaml:"offset,omitempty"`

	// IfUpdated makes an update conditional on the stored timestamp.
	IfUpdated string `yaml:"if_updated,omitempty"`

	// Expect validates the step. If nil, the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Outcome is the expected Outcome constant. Empty means OutcomeOK.
	Outcome string `yaml:"outcome,omitempty"`

	// Doc is a subset of the returned document (create, get, update).
	Doc map[string]any `yaml:"doc,omitempty"`

	// IDs is the exact ordered list of ids returned by search.
	IDs []string `yaml:"ids,omitempty"`

	// Count is the number returned by count and delete_matching, or the
	// number of documents returned by search.
	Count *int `yaml:"count,omitempty"`

	// Deleted is the result of delete.
	Deleted *bool `yaml:"deleted,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert constants.
	Type string `yaml:"type"`

	// ID is the document of document, absent and leaf_count.
	ID string `yaml:"id,omitempty"`

	// Query is the query of count.
	Query map[string]any `yaml:"query,omitempty"`

	// Count is the expected number (count, leaf_count).
	Count int `yaml:"count,omitempty"`

	// Expect is a subset of the stored document (document).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Operations.
const (
	OpCreate         = "create"
	OpGet            = "get"
	OpUpdate         = "update"
	OpDelete         = "delete"
	OpDeleteMatching = "delete_matching"
	OpSearch         = "search"
	OpCount          = "count"
)

// Outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeConflict = "conflict"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// Assertion type constants.
const (
	AssertCount     = "count"
	AssertDocument  = "document"
	AssertAbsent    = "absent"
	AssertLeafCount = "leaf_count"
	AssertNoOrphans = "no_orphans"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
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

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, s *Step) error {
	switch s.Op {
	case OpCreate, OpUpdate:
		if s.Doc == nil {
			return fmt.Errorf("flow[%d]: doc is required for %s", index, s.Op)
		}
	case OpGet, OpDelete:
		if s.ID == "" {
			return fmt.Errorf("flow[%d]: id is required for %s", index, s.Op)
		}
	case OpSearch, OpCount, OpDeleteMatching:
	case "":
		return fmt.Errorf("flow[%d]: op is required", index)
	default:
		return fmt.Errorf("flow[%d]: unknown op %q", index, s.Op)
	}

	if s.IfUpdated != "" && s.Op != OpUpdate {
		return fmt.Errorf("flow[%d]: if_updated only applies to update", index)
	}
	if s.Expect != nil {
		switch s.Expect.Outcome {
		case "", OutcomeOK, OutcomeConflict, OutcomeNotFound, OutcomeInvalid, OutcomeError:
		default:
			return fmt.Errorf("flow[%d].expect: unknown outcome %q", index, s.Expect.Outcome)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertDocument:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for document", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for document", index)
		}
	case AssertAbsent, AssertLeafCount:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for %s", index, a.Type)
		}
	case AssertNoOrphans:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
