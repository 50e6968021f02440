package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/fairway/internal/version"
	"github.com/hrygo/fairway/server"
	"github.com/hrygo/fairway/server/service/golf"
	"github.com/hrygo/fairway/server/service/syncer"
)

var (
	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Refresh every collection once and print the outcomes",
		RunE: withServer(func(ctx context.Context, cmd *cobra.Command, s *server.Server, _ []string) error {
			results, err := s.GolfService.RefreshAll(ctx)
			if err != nil {
				return err
			}
			out := make(map[golf.Collection]*resultView, len(results))
			for name, result := range results {
				out[name] = newResultView(result)
			}
			return printJSON(cmd.OutOrStdout(), out)
		}),
	}

	showCmd = &cobra.Command{
		Use:       "show <players|courses>",
		Short:     "Print the cached entities of a collection without touching the network",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(golf.Players), string(golf.Courses)},
		RunE: withServer(func(_ context.Context, cmd *cobra.Command, s *server.Server, args []string) error {
			items, ok, err := s.GolfService.LookupCollection(golf.Collection(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"collection": args[0],
				"cached":     ok,
				"items":      items,
			})
		}),
	}

	historyCmd = &cobra.Command{
		Use:   "history <slug>",
		Short: "Print a player's round history, optionally loading the full set",
		Args:  cobra.ExactArgs(1),
		RunE: withServer(func(ctx context.Context, cmd *cobra.Command, s *server.Server, args []string) error {
			slug := args[0]
			view := map[string]any{"slug": slug}

			load, _ := cmd.Flags().GetBool("load")
			if load {
				location, _ := cmd.Flags().GetString("location")
				result, err := s.GolfService.LoadFullHistory(ctx, slug, location)
				if err != nil {
					return err
				}
				view["result"] = newResultView(result)
			}

			state, rounds := s.GolfService.PlayerHistory(slug)
			view["state"] = state
			view["rounds"] = rounds
			return printJSON(cmd.OutOrStdout(), view)
		}),
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Describe every cache slot and its freshness marker",
		RunE: withServer(func(ctx context.Context, cmd *cobra.Command, s *server.Server, _ []string) error {
			status, err := s.GolfService.Status(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		}),
	}

	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete every cache slot and freshness record",
		RunE: withServer(func(ctx context.Context, cmd *cobra.Command, s *server.Server, _ []string) error {
			if err := s.GolfService.ClearAllCaches(ctx); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]bool{"cleared": true})
		}),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the fairway version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			current := version.GetCurrentVersion(viper.GetString("mode"))
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"version": current,
				"minor":   version.GetMinorVersion(current),
			})
		},
	}

	inspectRoundsCmd = &cobra.Command{
		Use:   "inspect-rounds",
		Short: "Summarize the field layout of cached round sets",
		RunE: withServer(func(_ context.Context, cmd *cobra.Command, s *server.Server, _ []string) error {
			opts := &golf.InspectOptions{}
			opts.MaxFiles, _ = cmd.Flags().GetInt("max-files")
			opts.RoundsPerFile, _ = cmd.Flags().GetInt("rounds-per-file")
			opts.TopKeys, _ = cmd.Flags().GetInt("top-keys")
			opts.Samples, _ = cmd.Flags().GetInt("samples")
			report, err := s.GolfService.InspectRounds(opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		}),
	}
)

func init() {
	historyCmd.Flags().Bool("load", false, "load the full round set, applying the daily freshness gate")
	historyCmd.Flags().String("location", "", "override the round set location")

	defaults := golf.DefaultInspectOptions()
	inspectRoundsCmd.Flags().Int("max-files", defaults.MaxFiles, "maximum number of cached round sets to sample")
	inspectRoundsCmd.Flags().Int("rounds-per-file", defaults.RoundsPerFile, "maximum number of rounds sampled per set")
	inspectRoundsCmd.Flags().Int("top-keys", defaults.TopKeys, "number of most common fields to report")
	inspectRoundsCmd.Flags().Int("samples", defaults.Samples, "sample values kept per field")
}

// withServer builds the sync stack for a one-shot command and closes the store afterwards.
func withServer(run func(ctx context.Context, cmd *cobra.Command, s *server.Server, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		instanceProfile, err := loadProfile()
		if err != nil {
			return errors.Wrap(err, "failed to load profile")
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		s, err := newServer(ctx, instanceProfile)
		if err != nil {
			return err
		}
		defer s.Store.Close()
		return run(ctx, cmd, s, args)
	}
}

type resultView struct {
	Outcome   syncer.Outcome `json:"outcome"`
	Fetched   bool           `json:"fetched"`
	Version   int            `json:"version,omitempty"`
	UpdatedAt string         `json:"updatedAt,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func newResultView(result *syncer.Result) *resultView {
	view := &resultView{Outcome: result.Outcome, Fetched: result.Fetched}
	if result.Header != nil {
		view.Version = result.Header.Version
		view.UpdatedAt = result.Header.UpdatedAt.Format(time.RFC3339Nano)
	}
	if result.Err != nil {
		view.Error = result.Err.Error()
	}
	return view
}

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
