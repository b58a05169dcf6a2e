package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/plog/internal/levels"
	"github.com/roach88/plog/internal/logger"
	"github.com/roach88/plog/internal/record"
	"github.com/roach88/plog/internal/rotation"
	"github.com/roach88/plog/internal/settings"
	"github.com/roach88/plog/internal/sink"
	"github.com/roach88/plog/internal/store"
	"github.com/roach88/plog/internal/testutil"
)

// volatileFields differ between runs and are left out of record snapshots.
var volatileFields = map[string]bool{
	record.FieldTimeOfWork: true,
	record.FieldTraceback:  true,
}

// errDivisionByZero is returned by the divide built-in.
var errDivisionByZero = errors.New("division by zero")

// builtins are the functions a call step can run.
var builtins = map[string]logger.Func[[]any, any]{
	"add": func(_ *record.Builder, args []any) (any, error) {
		sum := 0
		for _, a := range args {
			n, ok := levels.AsInt(a)
			if !ok {
				return nil, fmt.Errorf("add: %v is not an integer", a)
			}
			sum += n
		}
		return sum, nil
	},
	"divide": func(_ *record.Builder, args []any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("divide: want 2 arguments, got %d", len(args))
		}
		a, aok := levels.AsInt(args[0])
		b, bok := levels.AsInt(args[1])
		if !aok || !bok {
			return nil, fmt.Errorf("divide: arguments must be integers")
		}
		if b == 0 {
			return nil, errDivisionByZero
		}
		return a / b, nil
	},
	"concat": func(_ *record.Builder, args []any) (any, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = fmt.Sprint(a)
		}
		return strings.Join(parts, ""), nil
	},
}

// Harness executes one scenario against a fresh logger.
type Harness struct {
	logger   *logger.Logger
	dir      string
	memory   map[string]*sink.Memory
	files    map[string]*sink.File
	archives map[string]string
	stores   map[string]*store.Store
	log      *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in its own temporary directory with a deterministic
// record clock. Execution flow:
//  1. Apply settings
//  2. Register handlers
//  3. Execute steps, checking expected errors
//  4. Drain the engine and snapshot every handler
//  5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "plog-harness-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	clock := testutil.NewDeterministicClock()
	h := &Harness{
		logger:   logger.New(logger.WithClock(clock.Now)),
		dir:      dir,
		memory:   make(map[string]*sink.Memory),
		files:    make(map[string]*sink.File),
		archives: make(map[string]string),
		stores:   make(map[string]*store.Store),
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	defer h.logger.Close()

	// Short exit loop; scenarios never leave long work queued.
	if err := h.logger.Configure(map[string]any{
		settings.TimeQuant:                 0.001,
		settings.DelayOnExitLoopIterations: 2,
	}); err != nil {
		return nil, err
	}
	if err := h.logger.Configure(scenario.Settings); err != nil {
		return nil, fmt.Errorf("failed to apply settings: %w", err)
	}

	if err := h.addHandlers(scenario.Handlers); err != nil {
		return nil, fmt.Errorf("failed to add handlers: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		h.executeStep(i, step, result)
	}

	result.Drained = h.logger.Engine().Shutdown()
	if err := h.snapshot(scenario.Handlers, result); err != nil {
		return nil, fmt.Errorf("failed to snapshot handlers: %w", err)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) addHandlers(specs []HandlerSpec) error {
	for _, spec := range specs {
		var handler record.Handler
		switch spec.Type {
		case HandlerMemory:
			m := sink.NewMemory()
			h.memory[spec.Path] = m
			handler = m
		case HandlerFile:
			f, err := h.openFile(spec)
			if err != nil {
				return fmt.Errorf("%s: %w", spec.Path, err)
			}
			h.files[spec.Path] = f
			handler = f
		case HandlerStore:
			st, err := store.Open(filepath.Join(h.dir, spec.File))
			if err != nil {
				return fmt.Errorf("%s: %w", spec.Path, err)
			}
			h.stores[spec.Path] = st
			handler = st
		default:
			return fmt.Errorf("%s: unknown handler type %q", spec.Path, spec.Type)
		}
		if err := h.logger.AddHandler(spec.Path, handler); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) openFile(spec HandlerSpec) (*sink.File, error) {
	opts := []sink.FileOption{sink.WithLevels(h.logger.Levels())}
	if spec.Locks != "" {
		opts = append(opts, sink.WithLocks(spec.Locks))
	}
	if spec.Rotation != "" {
		opts = append(opts, sink.WithRotation(spec.Rotation))
	}
	if spec.Compress {
		opts = append(opts, sink.WithRotatorOptions(rotation.WithCompression()))
	}

	path := filepath.Join(h.dir, spec.File)
	f, err := sink.NewFile(path, opts...)
	if err != nil {
		return nil, err
	}

	if r := f.Rotator(); r != nil {
		h.archives[spec.Path] = r.Dir()
	} else {
		h.archives[spec.Path] = filepath.Join(filepath.Dir(f.Path()), rotation.DefaultDestination)
	}
	return f, nil
}

// executeStep runs one step and records it in the trace. A step whose
// error does not match ExpectError fails the result but not the run.
func (h *Harness) executeStep(i int, step Step, result *Result) {
	ev, err := h.dispatch(step)
	if err != nil {
		ev.Error = errorCode(err)
	}
	result.AddEvent(ev)

	switch {
	case step.ExpectError == "" && err != nil:
		result.AddError(fmt.Sprintf("steps[%d] (%s): unexpected error: %v", i, ev.Step, err))
	case step.ExpectError != "" && err == nil:
		result.AddError(fmt.Sprintf("steps[%d] (%s): expected error %s, got none", i, ev.Step, step.ExpectError))
	case step.ExpectError != "" && ev.Error != step.ExpectError:
		result.AddError(fmt.Sprintf("steps[%d] (%s): expected error %s, got %s: %v", i, ev.Step, step.ExpectError, ev.Error, err))
	}

	h.log.Info("step completed",
		"step", i,
		"kind", ev.Step,
		"error", ev.Error,
	)
}

func (h *Harness) dispatch(step Step) (TraceEvent, error) {
	switch {
	case step.Log != nil:
		return h.runLog(step.Log)
	case step.Call != nil:
		return h.runCall(step.Call)
	case step.Set != nil:
		return TraceEvent{Step: StepSet, Detail: step.Set}, h.logger.Configure(step.Set)
	case step.Reload:
		h.logger.Engine().Reload()
		return TraceEvent{Step: StepReload, Detail: map[string]any{
			"serial":  h.logger.Engine().SerialNumber(),
			"workers": h.logger.Engine().Workers(),
		}}, nil
	case step.Rotate != "":
		f, ok := h.files[step.Rotate]
		ev := TraceEvent{Step: StepRotate, Target: step.Rotate}
		if !ok {
			return ev, fmt.Errorf("no file handler at %q", step.Rotate)
		}
		return ev, f.Rotate()
	default:
		return TraceEvent{}, fmt.Errorf("empty step")
	}
}

func (h *Harness) runLog(s *LogStep) (TraceEvent, error) {
	repeat := max(s.Repeat, 1)
	ev := TraceEvent{Step: StepLog, Detail: map[string]any{
		"message": s.Message,
		"repeat":  repeat,
	}}
	if len(s.To) > 0 {
		ev.Target = strings.Join(s.To, ",")
	}

	entry := h.logger.At(s.Level).With(fieldArgs(s.Fields)...)
	if len(s.To) > 0 {
		entry = entry.To(s.To...)
	}
	for range repeat {
		if err := entry.Log(s.Message); err != nil {
			return ev, err
		}
	}
	return ev, nil
}

func (h *Harness) runCall(s *CallStep) (TraceEvent, error) {
	ev := TraceEvent{Step: StepCall, Target: s.Function, Detail: map[string]any{"args": s.Args}}
	fn, ok := builtins[s.Function]
	if !ok {
		return ev, fmt.Errorf("unknown function %q", s.Function)
	}
	w := logger.Wrap(h.logger, s.Function, fn, logger.InModule("harness"))
	_, err := w.Call(s.Args)
	return ev, err
}

// fieldArgs flattens fields into name/value pairs in sorted name order.
func fieldArgs(fields map[string]any) []any {
	args := make([]any, 0, 2*len(fields))
	for _, name := range sortedKeys(fields) {
		args = append(args, name, fields[name])
	}
	return args
}

func (h *Harness) snapshot(specs []HandlerSpec, result *Result) error {
	ctx := context.Background()
	for _, spec := range specs {
		out := &Output{Type: spec.Type}
		switch spec.Type {
		case HandlerMemory:
			for _, r := range h.memory[spec.Path].All() {
				out.Records = append(out.Records, stableFields(r))
			}
		case HandlerFile:
			f := h.files[spec.Path]
			if err := f.Flush(); err != nil {
				return err
			}
			lines, err := readLines(f.Path())
			if err != nil {
				return err
			}
			out.Lines = lines
			archives, err := rotation.Archives(h.archives[spec.Path])
			if err != nil {
				return err
			}
			out.Archives = len(archives)
		case HandlerStore:
			n, err := h.stores[spec.Path].Count(ctx)
			if err != nil {
				return err
			}
			out.Stored = n
		}
		result.Outputs[spec.Path] = out
	}
	return nil
}

// stableFields returns the record fields that do not change between runs.
func stableFields(r *record.Record) map[string]any {
	out := make(map[string]any, r.Len())
	for name, v := range r.All() {
		if !volatileFields[name] {
			out[name] = v
		}
	}
	return out
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSuffix(string(data), sink.DefaultSeparator)
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, sink.DefaultSeparator), nil
}

// errorCode maps an error to the code scenarios name in expect_error.
func errorCode(err error) string {
	var ce *settings.ConfigError
	if errors.As(err, &ce) {
		return string(ce.Code)
	}
	var ue *logger.UsageError
	if errors.As(err, &ue) {
		return string(ue.Code)
	}
	if logger.IsCallError(err) {
		return "CALL_ERROR"
	}
	return "ERROR"
}
