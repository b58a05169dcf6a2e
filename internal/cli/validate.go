package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/plog/internal/levels"
	"github.com/roach88/plog/internal/settings"
)

// ConfigCheck is the validation outcome for one settings file.
type ConfigCheck struct {
	Path    string         `json:"path"`
	Valid   bool           `json:"valid"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool          `json:"valid"`
	Files []ConfigCheck `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>...",
		Short: "Validate settings files",
		Long: `Apply each settings file to a fresh option store and report the result.

YAML (.yaml, .yml), TOML (.toml) and CUE (.cue) files are accepted. A valid
file prints the normalized value of every option it sets; an invalid one
prints the configuration error code (UNKNOWN_OPTION, INVALID_VALUE,
CONFLICT, ...).

Exit codes:
  0 - All files are valid
  1 - One or more files were rejected
  2 - A file could not be found`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	result := ValidationResult{Valid: true}
	missing := false
	for _, path := range paths {
		check := ValidateConfigFile(path)
		if !check.Valid {
			result.Valid = false
			missing = missing || check.Code == ErrCodeFileNotFound
		}
		result.Files = append(result.Files, check)
		formatter.VerboseLog("checked %s: valid=%t", path, check.Valid)
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		printValidation(formatter, result)
	}

	switch {
	case missing:
		return NewExitError(ExitCommandError, "config file not found")
	case !result.Valid:
		return NewExitError(ExitFailure, "invalid configuration")
	}
	return nil
}

// ValidateConfigFile applies path to a default option store.
func ValidateConfigFile(path string) ConfigCheck {
	check := ConfigCheck{Path: path}

	values, err := settings.ReadFile(path)
	if err != nil {
		check.Code = ErrCodeConfig
		if errors.Is(err, fs.ErrNotExist) {
			check.Code = ErrCodeFileNotFound
		}
		check.Message = err.Error()
		return check
	}

	st := settings.NewDefault(levels.NewDefault())
	if err := st.Apply(values); err != nil {
		check.Code = ErrCodeConfig
		var ce *settings.ConfigError
		if errors.As(err, &ce) {
			check.Code = string(ce.Code)
		}
		check.Message = err.Error()
		return check
	}

	check.Valid = true
	check.Options = make(map[string]any, len(values))
	for key := range values {
		v, err := st.Get(key)
		if err != nil {
			continue
		}
		check.Options[key] = v
	}
	return check
}

func printValidation(f *OutputFormatter, result ValidationResult) {
	w := f.Writer
	for _, c := range result.Files {
		if !c.Valid {
			fmt.Fprintf(w, "✗ %s\n", c.Path)
			fmt.Fprintf(w, "  [%s] %s\n", c.Code, c.Message)
			continue
		}
		fmt.Fprintf(w, "✓ %s\n", c.Path)
		keys := make([]string, 0, len(c.Options))
		for k := range c.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s = %v\n", k, c.Options[k])
		}
	}
	if result.Valid {
		fmt.Fprintln(w, "✓ Configuration valid")
	}
}

// fileExists reports whether path names an existing entry.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
