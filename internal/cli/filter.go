package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"Sideline/internal/config"
	"Sideline/internal/core/teamfilter"
)

// NewFilterCommand creates the filter command group.
func NewFilterCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Inspect or change the persisted team filter",
		Long: `Read and write the team filter kept in local storage. The engine picks
the stored filter up on its next mount.`,
	}

	cmd.AddCommand(newFilterGetCommand(rootOpts))
	cmd.AddCommand(newFilterSetCommand(rootOpts))
	cmd.AddCommand(newFilterClearCommand(rootOpts))

	return cmd
}

func newFilterGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get",
		Short:         "Print the stored filter",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFilterStore(opts, cmd, func(store *teamfilter.Store) error {
				f, ok := store.Load(cmd.Context())
				return printFilter(cmd.OutOrStdout(), opts.Format, f, ok)
			})
		},
	}
}

func newFilterSetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set [team-id...]",
		Short: "Store a filter; no ids selects all teams",
		Example: `  sideline filter set lions bears
  sideline filter set`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFilterStore(opts, cmd, func(store *teamfilter.Store) error {
				f := teamfilter.New(args...)
				if err := store.Save(cmd.Context(), f); err != nil {
					return err
				}
				return printFilter(cmd.OutOrStdout(), opts.Format, f, true)
			})
		},
	}
}

func newFilterClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear",
		Short:         "Forget the stored filter so it is derived from followed teams",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFilterStore(opts, cmd, func(store *teamfilter.Store) error {
				if err := store.Clear(cmd.Context()); err != nil {
					return err
				}
				return printFilter(cmd.OutOrStdout(), opts.Format, nil, false)
			})
		},
	}
}

func withFilterStore(opts *RootOptions, cmd *cobra.Command, fn func(*teamfilter.Store) error) error {
	cfg, err := config.LoadLocal()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format, opts.Verbose)

	kv, closeKV, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}
	defer closeKV()

	return fn(teamfilter.NewStore(kv, logger))
}

// filterOutput is the JSON shape of the filter commands
type filterOutput struct {
	TeamIDs []string `json:"teamIds"`
	Set     bool     `json:"set"`
}

func printFilter(w io.Writer, format string, f teamfilter.Filter, set bool) error {
	if format == "json" {
		out := filterOutput{TeamIDs: f.TeamIDs(), Set: set}
		if out.TeamIDs == nil {
			out.TeamIDs = []string{}
		}
		return json.NewEncoder(w).Encode(out)
	}

	switch {
	case !set:
		_, err := fmt.Fprintln(w, "no filter stored")
		return err
	case f.IsAll():
		_, err := fmt.Fprintln(w, "all teams")
		return err
	default:
		_, err := fmt.Fprintln(w, strings.Join(f.TeamIDs(), ","))
		return err
	}
}
