package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/valyala/fastjson"

	"github.com/roach88/plog/internal/logger"
	"github.com/roach88/plog/internal/record"
	"github.com/roach88/plog/internal/rotation"
	"github.com/roach88/plog/internal/sink"
	"github.com/roach88/plog/internal/store"
)

const maxLineSize = 1 << 20

// EmitOptions holds flags for the emit command.
type EmitOptions struct {
	*RootOptions
	Config   string
	File     string
	Rotation string
	Locks    string
	Compress bool
	Store    string
	Console  bool
	Level    string
	Service  string
	Watch    bool
}

// EmitResult summarizes an emit run.
type EmitResult struct {
	Records  int  `json:"records"`
	Rejected int  `json:"rejected"`
	Drained  bool `json:"drained"`
}

func (r EmitResult) String() string {
	return fmt.Sprintf("emitted %d records, rejected %d, drained %t", r.Records, r.Rejected, r.Drained)
}

// NewEmitCommand creates the emit command.
func NewEmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Log lines read from stdin",
		Long: `Read lines from stdin and log each one as a manual record.

A line holding a JSON object becomes a record with the object's fields
("message" is required). Any other line becomes the message of a record
at --level. Records go to the console unless --file or --store is given.

Exit codes:
  0 - All input was read (rejected lines are reported, not fatal)
  2 - Command error (bad config, unusable sink, etc.)

Examples:
  tail -f app.out | plog emit --file app.log --rotation "10 megabytes"
  plog emit --config plog.yaml --watch --store logs.db < events.jsonl
  echo '{"message":"deployed","level":"WARNING","build":42}' | plog emit`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmit(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "settings file (.yaml, .toml or .cue)")
	cmd.Flags().StringVar(&opts.File, "file", "", "write records to this log file")
	cmd.Flags().StringVar(&opts.Rotation, "rotation", "", "rotation policy for --file")
	cmd.Flags().StringVar(&opts.Locks, "locks", "", "lock types for --file (thread, file or thread+file)")
	cmd.Flags().BoolVar(&opts.Compress, "compress", false, "zstd-compress rotated archives")
	cmd.Flags().StringVar(&opts.Store, "store", "", "write records to this SQLite database")
	cmd.Flags().BoolVar(&opts.Console, "console", false, "write records to stderr")
	cmd.Flags().StringVar(&opts.Level, "level", "", "level for plain text lines")
	cmd.Flags().StringVar(&opts.Service, "service", "", "service_name for every record")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "re-apply --config when it changes")

	return cmd
}

func runEmit(cmd *cobra.Command, opts *EmitOptions) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if opts.Watch && opts.Config == "" {
		return f.Fail(ExitCommandError, ErrCodeConfig, "--watch requires --config", nil)
	}

	l := logger.New()
	if opts.Config != "" {
		if err := l.LoadConfig(opts.Config); err != nil {
			return f.Fail(ExitCommandError, ErrCodeConfig, err.Error(), opts.Config)
		}
	}
	if opts.Service != "" {
		if err := l.Configure(map[string]any{"service_name": opts.Service}); err != nil {
			return f.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
		}
	}

	if err := addEmitSinks(cmd, l, opts); err != nil {
		l.Close()
		return f.Fail(ExitCommandError, ErrCodeSink, err.Error(), nil)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.Watch {
		if err := l.WatchConfig(ctx, opts.Config, nil); err != nil {
			l.Close()
			return f.Fail(ExitCommandError, ErrCodeConfig, err.Error(), opts.Config)
		}
		f.VerboseLog("watching %s", opts.Config)
	}

	result, readErr := emitLines(cmd.InOrStdin(), l, opts.Level)

	drained, closeErr := l.Close()
	result.Drained = drained

	if err := errors.Join(readErr, closeErr); err != nil {
		return f.Fail(ExitCommandError, ErrCodeSink, err.Error(), result)
	}
	return f.Success(result)
}

// addEmitSinks registers the handlers selected by flags. The console is the
// fallback when no other sink is named.
func addEmitSinks(cmd *cobra.Command, l *logger.Logger, opts *EmitOptions) error {
	if opts.File != "" {
		fileOpts := []sink.FileOption{sink.WithLevels(l.Levels())}
		if opts.Rotation != "" {
			fileOpts = append(fileOpts, sink.WithRotation(opts.Rotation))
		}
		if opts.Locks != "" {
			fileOpts = append(fileOpts, sink.WithLocks(opts.Locks))
		}
		if opts.Compress {
			fileOpts = append(fileOpts, sink.WithRotatorOptions(rotation.WithCompression()))
		}
		fileSink, err := sink.NewFile(opts.File, fileOpts...)
		if err != nil {
			return err
		}
		if err := l.AddHandler("file", fileSink); err != nil {
			fileSink.Close()
			return err
		}
	}

	if opts.Store != "" {
		st, err := store.Open(opts.Store)
		if err != nil {
			return err
		}
		if err := l.AddHandler("store", st); err != nil {
			st.Close()
			return err
		}
	}

	if opts.Console || (opts.File == "" && opts.Store == "") {
		console, err := sink.NewConsole(cmd.ErrOrStderr(), l.Levels())
		if err != nil {
			return err
		}
		if err := l.AddHandler("console", console); err != nil {
			return err
		}
	}
	return nil
}

// emitLines logs every non-blank line of r. Lines the logger refuses are
// counted as rejected and reported through slog.
func emitLines(r io.Reader, l *logger.Logger, level string) (EmitResult, error) {
	var (
		result  EmitResult
		parser  fastjson.Parser
		scanner = bufio.NewScanner(r)
		lineNo  int
	)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var err error
		if strings.HasPrefix(line, "{") {
			var message string
			var args []any
			message, args, err = parseJSONLine(&parser, line)
			if err == nil {
				err = l.Log(message, args...)
			}
		} else if level != "" {
			err = l.At(level).Log(line)
		} else {
			err = l.Log(line)
		}

		if err != nil {
			result.Rejected++
			slog.Warn("line rejected", "line", lineNo, "error", err)
			continue
		}
		result.Records++
	}
	return result, scanner.Err()
}

// parseJSONLine turns a JSON object into a message and field pairs, in
// document order. Objects and arrays are kept as JSON fragments.
func parseJSONLine(p *fastjson.Parser, line string) (string, []any, error) {
	v, err := p.Parse(line)
	if err != nil {
		return "", nil, fmt.Errorf("invalid JSON: %w", err)
	}
	obj, err := v.Object()
	if err != nil {
		return "", nil, err
	}

	msg := obj.Get(record.FieldMessage)
	if msg == nil || msg.Type() != fastjson.TypeString {
		return "", nil, fmt.Errorf("%q must be a string", record.FieldMessage)
	}
	message := string(msg.GetStringBytes())

	var (
		args     []any
		visitErr error
	)
	obj.Visit(func(key []byte, val *fastjson.Value) {
		name := string(key)
		if name == record.FieldMessage || visitErr != nil {
			return
		}
		value, err := jsonValue(name, val)
		if err != nil {
			visitErr = err
			return
		}
		if value != nil {
			args = append(args, name, value)
		}
	})
	return message, args, visitErr
}

func jsonValue(name string, v *fastjson.Value) (any, error) {
	switch v.Type() {
	case fastjson.TypeNull:
		return nil, nil
	case fastjson.TypeString:
		s := string(v.GetStringBytes())
		if name == record.FieldTime {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			return t, nil
		}
		return s, nil
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		return v.Float64()
	case fastjson.TypeTrue:
		return true, nil
	case fastjson.TypeFalse:
		return false, nil
	default:
		return record.JSON(v.String()), nil
	}
}
