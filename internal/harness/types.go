package harness

// Step kinds recorded in the trace.
const (
	StepLog    = "log"
	StepCall   = "call"
	StepSet    = "set"
	StepReload = "reload"
	StepRotate = "rotate"
)

// TraceEvent describes one executed step.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Step   string `json:"step"`
	Target string `json:"target,omitempty"`
	Detail any    `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Output is what one handler holds once the scenario has drained.
type Output struct {
	Type string `json:"type"`

	// Records holds the stable fields of each record, for memory handlers.
	Records []map[string]any `json:"records,omitempty"`

	// Lines holds the live file content, for file handlers.
	Lines []string `json:"lines,omitempty"`

	// Archives is the number of rotated files, for file handlers.
	Archives int `json:"archives,omitempty"`

	// Stored is the row count, for store handlers.
	Stored int `json:"stored,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step matched its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace lists the executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Outputs maps handler paths to what they received.
	Outputs map[string]*Output `json:"outputs"`

	// Drained reports whether the engine emptied its queue within
	// max_delay_before_exit.
	Drained bool `json:"drained"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Outputs: make(map[string]*Output),
		Errors:  []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends a step to the trace.
func (r *Result) AddEvent(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
