package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/plog/internal/record"
)

// TraceSnapshot captures the complete outcome of a scenario execution.
// It is serialized with canonical JSON for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Outputs      map[string]*Output
}

// toCanonicalMap converts the snapshot to plain maps and slices, which is
// what record.EncodeJSON sorts deterministically.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"seq":  ev.Seq,
			"step": ev.Step,
		}
		if ev.Target != "" {
			m["target"] = ev.Target
		}
		if ev.Detail != nil {
			m["detail"] = ev.Detail
		}
		if ev.Error != "" {
			m["error"] = ev.Error
		}
		trace[i] = m
	}

	outputs := make(map[string]any, len(s.Outputs))
	for path, out := range s.Outputs {
		m := map[string]any{"type": out.Type}
		switch out.Type {
		case HandlerMemory:
			records := make([]any, len(out.Records))
			for i, r := range out.Records {
				records[i] = r
			}
			m["records"] = records
		case HandlerFile:
			m["lines"] = out.Lines
			m["archives"] = out.Archives
		case HandlerStore:
			m["stored"] = out.Stored
		}
		outputs[path] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
		"outputs":       outputs,
	}
}

// Marshal returns the canonical JSON of the snapshot.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	data, err := record.EncodeJSON(s.toCanonicalMap())
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass. Test failure (via
// goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		Outputs:      result.Outputs,
	}
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
