package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"slices"

	"github.com/roach88/flatdoc/internal/doc"
	"github.com/roach88/flatdoc/internal/entry"
	"github.com/roach88/flatdoc/internal/flatten"
	"github.com/roach88/flatdoc/internal/query"
	"github.com/roach88/flatdoc/internal/testutil"
)

// Harness executes scenario steps against one manager.
type Harness struct {
	manager *entry.Manager
	clock   *testutil.DeterministicClock
	logger  *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database whose clock starts at
// testutil.Epoch and advances one second per reading.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Create setup documents
// 3. Execute flow steps with expect validation
// 4. Evaluate assertions against the final state
//
// A returned error means the scenario could not be run (setup failed);
// expectation mismatches are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	clock := testutil.NewDeterministicClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	m, err := entry.Open(":memory:",
		entry.WithClock(clock),
		entry.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer m.Close()

	h := &Harness{manager: m, clock: clock, logger: logger}

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	h.executeFlow(ctx, scenario.Flow, result)

	for _, msg := range h.evaluateAssertions(ctx, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// executeSetup creates the setup documents in order.
func (h *Harness) executeSetup(ctx context.Context, setup []map[string]any) error {
	for i, d := range setup {
		if _, err := h.manager.Create(ctx, d); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	return nil
}

// executeFlow runs all flow steps, traces them and validates their
// expect clauses. A failing step does not stop the flow.
func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) {
	for i, step := range flow {
		value, err := h.execute(ctx, step)
		outcome := outcomeOf(err)

		ev := TraceEvent{Step: i, Op: step.Op, Input: stepInput(step), Outcome: outcome}
		if err == nil {
			ev.Result = traceValue(value)
		}
		result.AddTrace(ev)

		for _, msg := range checkExpect(step, value, err) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Op, msg))
		}

		h.logger.Info("flow step completed", "step", i, "op", step.Op, "outcome", outcome)
	}
}

// execute runs one step and returns its raw result.
func (h *Harness) execute(ctx context.Context, step Step) (any, error) {
	m := h.manager
	switch step.Op {
	case OpCreate:
		return m.Create(ctx, step.Doc)
	case OpGet:
		return m.Get(ctx, step.ID)
	case OpUpdate:
		var cond entry.Condition
		if step.IfUpdated != "" {
			cond = entry.IfUpdated(step.IfUpdated)
		}
		return m.Update(ctx, step.Doc, cond)
	case OpDelete:
		return m.Delete(ctx, step.ID)
	case OpDeleteMatching:
		q, err := parseQuery(step.Query)
		if err != nil {
			return nil, err
		}
		return m.DeleteMatching(ctx, q)
	case OpSearch:
		q, err := parseQuery(step.Query)
		if err != nil {
			return nil, err
		}
		return m.Search(ctx, q, entry.SearchOptions{Size: step.Size, Offset: step.Offset})
	case OpCount:
		q, err := parseQuery(step.Query)
		if err != nil {
			return nil, err
		}
		return m.Count(ctx, q)
	default:
		return nil, fmt.Errorf("unknown op %q", step.Op)
	}
}

func parseQuery(q map[string]any) (map[string]any, error) {
	if q == nil {
		return nil, nil
	}
	return query.Parse(q)
}

// outcomeOf maps an operation error to its outcome name.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, entry.ErrConflict):
		return OutcomeConflict
	case errors.Is(err, entry.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, entry.ErrMissingID),
		errors.Is(err, entry.ErrInvalidID),
		errors.Is(err, entry.ErrInvalidTimestamp),
		errors.Is(err, flatten.ErrReservedToken),
		errors.Is(err, doc.ErrUnsupportedValue),
		errors.Is(err, query.ErrBadOperator):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}

// stepInput returns the set fields of a step for the trace.
func stepInput(step Step) map[string]any {
	in := map[string]any{}
	if step.Doc != nil {
		in["doc"] = step.Doc
	}
	if step.ID != "" {
		in["id"] = step.ID
	}
	if step.Query != nil {
		in["query"] = step.Query
	}
	if step.Size != 0 {
		in["size"] = step.Size
	}
	if step.Offset != 0 {
		in["offset"] = step.Offset
	}
	if step.IfUpdated != "" {
		in["if_updated"] = step.IfUpdated
	}
	return in
}

// traceValue converts a step result into trace form: documents stay
// documents and search results become their ids.
func traceValue(v any) any {
	switch val := v.(type) {
	case doc.Document:
		return map[string]any(val)
	case []doc.Document:
		return idsOf(val)
	default:
		return v
	}
}

func idsOf(docs []doc.Document) []any {
	ids := make([]any, len(docs))
	for i, d := range docs {
		ids[i] = d.ID()
	}
	return ids
}

// checkExpect compares a step's outcome with its expect clause.
func checkExpect(step Step, value any, err error) []string {
	want := OutcomeOK
	if step.Expect != nil && step.Expect.Outcome != "" {
		want = step.Expect.Outcome
	}
	if got := outcomeOf(err); got != want {
		if err != nil {
			return []string{fmt.Sprintf("expected outcome %s, got %s (%v)", want, got, err)}
		}
		return []string{fmt.Sprintf("expected outcome %s, got %s", want, got)}
	}
	if err != nil || step.Expect == nil {
		return nil
	}

	var errs []string
	exp := step.Expect
	if exp.Doc != nil {
		d, ok := value.(doc.Document)
		if !ok {
			errs = append(errs, "expect.doc: step returns no document")
		} else if msg := matchSubset(exp.Doc, d); msg != "" {
			errs = append(errs, "expect.doc: "+msg)
		}
	}
	if exp.IDs != nil {
		docs, _ := value.([]doc.Document)
		got := make([]string, len(docs))
		for i, d := range docs {
			got[i] = d.ID()
		}
		if !slices.Equal(exp.IDs, got) {
			errs = append(errs, fmt.Sprintf("expect.ids: expected %v, got %v", exp.IDs, got))
		}
	}
	if exp.Count != nil {
		var got int
		switch val := value.(type) {
		case int:
			got = val
		case []doc.Document:
			got = len(val)
		default:
			errs = append(errs, "expect.count: step returns no count")
		}
		if got != *exp.Count {
			errs = append(errs, fmt.Sprintf("expect.count: expected %d, got %d", *exp.Count, got))
		}
	}
	if exp.Deleted != nil {
		got, _ := value.(bool)
		if got != *exp.Deleted {
			errs = append(errs, fmt.Sprintf("expect.deleted: expected %t, got %t", *exp.Deleted, got))
		}
	}
	return errs
}

// matchSubset reports the first field of want that differs in got, or "".
// Values are compared after normalization, so YAML ints match stored int64.
func matchSubset(want map[string]any, got doc.Document) string {
	norm, err := doc.Normalize(want)
	if err != nil {
		return err.Error()
	}
	for _, k := range doc.SortedKeys(norm) {
		actual, ok := got[k]
		if !ok {
			return fmt.Sprintf("field %q missing", k)
		}
		if !reflect.DeepEqual(norm[k], actual) {
			return fmt.Sprintf("field %q: expected %v, got %v", k, norm[k], actual)
		}
	}
	return ""
}

// evaluateAssertions checks the final state and returns failure messages.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := h.evaluate(ctx, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d] %s: %v", i, a.Type, err))
		}
	}
	return errs
}

func (h *Harness) evaluate(ctx context.Context, a Assertion) error {
	m := h.manager
	switch a.Type {
	case AssertCount:
		q, err := parseQuery(a.Query)
		if err != nil {
			return err
		}
		n, err := m.Count(ctx, q)
		if err != nil {
			return err
		}
		if n != a.Count {
			return fmt.Errorf("expected %d matching documents, got %d", a.Count, n)
		}
	case AssertDocument:
		d, err := m.Get(ctx, a.ID)
		if err != nil {
			return err
		}
		if msg := matchSubset(a.Expect, d); msg != "" {
			return errors.New(msg)
		}
	case AssertAbsent:
		_, err := m.Get(ctx, a.ID)
		if err == nil {
			return fmt.Errorf("document %q is stored", a.ID)
		}
		if !errors.Is(err, entry.ErrNotFound) {
			return err
		}
	case AssertLeafCount:
		n, err := m.Store().LeafCount(ctx, a.ID)
		if err != nil {
			return err
		}
		if n != a.Count {
			return fmt.Errorf("expected %d leaves for %q, got %d", a.Count, a.ID, n)
		}
	case AssertNoOrphans:
		n, err := m.Store().OrphanLeaves(ctx)
		if err != nil {
			return err
		}
		if n != 0 {
			return fmt.Errorf("%d index rows have no document", n)
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
