package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioDir = "testdata/scenarios"

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join(scenarioDir, name+".yaml"))
	require.NoError(t, err, "failed to load scenario %s", name)
	return s
}

// TestScenarios runs every scenario shipped in testdata.
func TestScenarios(t *testing.T) {
	scenarios, err := LoadScenarios(scenarioDir)
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors:\n%s", strings.Join(result.Errors, "\n"))
			assert.True(t, result.Drained)
		})
	}
}

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"manual_sync", "auto_calls"} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors:\n%s", strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRun_TraceAndOutputs(t *testing.T) {
	result, err := Run(loadScenario(t, "rotation_by_size"))
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	require.Len(t, result.Trace, 1)
	assert.Equal(t, StepLog, result.Trace[0].Step)
	assert.EqualValues(t, 1, result.Trace[0].Seq)

	out := result.Outputs["files.main"]
	require.NotNil(t, out)
	assert.Equal(t, HandlerFile, out.Type)
	assert.Equal(t, 1, out.Archives)
	require.Len(t, out.Lines, 9)
	assert.True(t, strings.HasPrefix(out.Lines[0], "2024-01-01 00:00:00.011000 | INFO     | MANUAL | xxx"), out.Lines[0])
}

func TestRun_FailingAssertions(t *testing.T) {
	s := &Scenario{
		Name:        "failing",
		Description: "Assertions that cannot hold",
		Settings:    map[string]any{"pool_size": 0},
		Handlers:    []HandlerSpec{{Path: "mem", Type: HandlerMemory}},
		Steps: []Step{
			{Log: &LogStep{Message: "one"}},
			{Set: map[string]any{"pool_size": 1}, ExpectError: "CHANGE_ONCE"},
		},
		Assertions: []Assertion{
			{Type: AssertRecordCount, Handler: "mem", Count: 2},
			{Type: AssertRecordOrder, Handler: "mem", Messages: []string{"two"}},
			{Type: AssertRecordFields, Handler: "mem", Index: 5, Expect: map[string]any{"message": "one"}},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "expected error CHANGE_ONCE, got none")
	assert.Contains(t, result.Errors[1], "Assertion failed: record_count on mem")
	assert.Contains(t, result.Errors[2], `["two"]`)
	assert.Contains(t, result.Errors[3], "handler holds 1 records")
}

func TestRun_UnexpectedStepError(t *testing.T) {
	s := &Scenario{
		Name:        "unexpected",
		Description: "A step fails without expect_error",
		Handlers:    []HandlerSpec{{Path: "mem", Type: HandlerMemory}},
		Steps:       []Step{{Log: &LogStep{Message: "m", Fields: map[string]any{"_x": 1}}}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, "UNKNOWN_FIELD", result.Trace[0].Error)
	assert.Contains(t, result.Errors[0], "unexpected error")
}

func TestRun_BadSettings(t *testing.T) {
	s := &Scenario{
		Name:        "bad",
		Description: "Settings the store rejects",
		Settings:    map[string]any{"pool_size": "many"},
		Steps:       []Step{{Reload: true}},
	}
	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply settings")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "description: d\nsteps: [{reload: true}]\n",
			want: "name is required",
		},
		{
			name: "unknown field",
			yaml: "name: n\ndescription: d\nstep: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "no steps",
			yaml: "name: n\ndescription: d\n",
			want: "steps list is required",
		},
		{
			name: "two actions in one step",
			yaml: "name: n\ndescription: d\nsteps: [{reload: true, log: {message: m}}]\n",
			want: "exactly one of",
		},
		{
			name: "unknown function",
			yaml: "name: n\ndescription: d\nsteps: [{call: {function: nope, args: []}}]\n",
			want: `unknown function "nope"`,
		},
		{
			name: "rotate without file handler",
			yaml: "name: n\ndescription: d\nhandlers: [{path: mem, type: memory}]\nsteps: [{rotate: mem}]\n",
			want: "rotate needs a file handler",
		},
		{
			name: "bad rotation policy",
			yaml: "name: n\ndescription: d\nhandlers: [{path: f, type: file, file: a.log, rotation: \"3 parsecs\"}]\nsteps: [{reload: true}]\n",
			want: "handlers[0]",
		},
		{
			name: "bad locks",
			yaml: "name: n\ndescription: d\nhandlers: [{path: f, type: file, file: a.log, locks: \"thread+disk\"}]\nsteps: [{reload: true}]\n",
			want: "handlers[0]",
		},
		{
			name: "duplicate handler",
			yaml: "name: n\ndescription: d\nhandlers: [{path: m, type: memory}, {path: m, type: memory}]\nsteps: [{reload: true}]\n",
			want: "duplicate path",
		},
		{
			name: "assertion on unknown handler",
			yaml: "name: n\ndescription: d\nsteps: [{reload: true}]\nassertions: [{type: record_count, handler: x}]\n",
			want: `unknown handler "x"`,
		},
		{
			name: "assertion type does not fit handler",
			yaml: "name: n\ndescription: d\nhandlers: [{path: m, type: memory}]\nsteps: [{reload: true}]\nassertions: [{type: line_count, handler: m}]\n",
			want: "does not apply to memory handler",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_Missing(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual(1, int64(1)))
	assert.True(t, valuesEqual(2, 2.0))
	assert.True(t, valuesEqual(2.5, 2.5))
	assert.True(t, valuesEqual("x", "x"))
	assert.True(t, valuesEqual(nil, nil))
	assert.False(t, valuesEqual("1", int64(1)))
	assert.False(t, valuesEqual(nil, false))
}
