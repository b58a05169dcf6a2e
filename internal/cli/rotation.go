package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/plog/internal/rotation"
)

// RotationOptions holds flags for the rotation command.
type RotationOptions struct {
	*RootOptions
	Size int64 // file size to check the policy against; negative means unset
}

// RotationResult describes a parsed rotation policy.
type RotationResult struct {
	Source      string   `json:"source"`
	Rules       []string `json:"rules"`
	Destination string   `json:"destination"`
	Size        *int64   `json:"size,omitempty"`
	Fires       *bool    `json:"fires,omitempty"`
}

// NewRotationCommand creates the rotation command.
func NewRotationCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RotationOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rotation <policy>",
		Short: "Parse a rotation policy",
		Long: `Parse a rotation policy and print its rules and archive destination.

With --size, also report whether the policy fires for a file of that many
bytes.

Examples:
  plog rotation "10 megabytes"
  plog rotation "1 kilobyte >> archive/" --size 2048`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRotation(cmd, opts, args[0])
		},
	}

	cmd.Flags().Int64Var(&opts.Size, "size", -1, "file size in bytes to check")

	return cmd
}

func runRotation(cmd *cobra.Command, opts *RotationOptions, source string) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	policy, err := rotation.Parse(source)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeRotation, err.Error(), source)
	}

	result := RotationResult{
		Source:      policy.Source,
		Destination: policy.Destination,
	}
	for i, r := range policy.Rules {
		result.Rules = append(result.Rules, r.String())
		f.VerboseLog("rule %d: %s", i, r)
	}
	if opts.Size >= 0 {
		size := opts.Size
		fires := policy.Fires(rotation.FileState{Size: size})
		result.Size = &size
		result.Fires = &fires
	}

	if opts.Format == "json" {
		return f.Success(result)
	}

	w := f.Writer
	fmt.Fprintf(w, "Rules: %s\n", strings.Join(result.Rules, ", "))
	fmt.Fprintf(w, "Destination: %s\n", result.Destination)
	if result.Fires != nil {
		fmt.Fprintf(w, "Fires at %d bytes: %t\n", *result.Size, *result.Fires)
	}
	return nil
}
