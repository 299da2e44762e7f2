package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/aicmo/benchcheck/pkg/history"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded enforcement runs",
	}
	cmd.AddCommand(newHistoryListCmd(a), newHistoryShowCmd(a), newHistoryPruneCmd(a))
	return cmd
}

func newHistoryListCmd(a *app) *cobra.Command {
	var (
		pack   string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runs, err := a.openHistory()
			if err != nil {
				return err
			}
			defer runs.Close()

			recs, err := runs.List(history.ListOptions{PackKey: pack, Limit: limit})
			if err != nil {
				return err
			}
			if asJSON {
				return a.writeJSON("", recs)
			}

			data := pterm.TableData{{"Run", "Pack", "Outcome", "Attempts", "Score", "Failing", "Started", "Took"}}
			for _, r := range recs {
				data = append(data, []string{
					r.ID,
					r.PackKey,
					string(r.Outcome),
					strconv.Itoa(r.Attempts),
					strconv.Itoa(r.Score),
					strings.Join(r.Failing, ", "),
					r.StartedAt.Local().Format(time.DateTime),
					r.Duration.Round(time.Millisecond).String(),
				})
			}
			return renderTable(a.stdout, data)
		},
	}
	cmd.Flags().StringVar(&pack, "pack", "", "only runs of this pack")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print runs as JSON")
	return cmd
}

func newHistoryShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print one run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := a.openHistory()
			if err != nil {
				return err
			}
			defer runs.Close()

			rec, err := runs.Get(args[0])
			if err != nil {
				return err
			}
			return a.writeJSON("", rec)
		},
	}
}

func newHistoryPruneCmd(a *app) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			age := olderThan
			if age == 0 {
				age = a.cfg.History.Retention()
			}
			if age <= 0 {
				return errors.WithHint(
					errors.New("no retention configured"),
					"pass --older-than or set history.retention_days")
			}

			runs, err := a.openHistory()
			if err != nil {
				return err
			}
			defer runs.Close()

			n, err := runs.Prune(time.Now().Add(-age))
			if err != nil {
				return err
			}
			fmt.Fprint(a.stdout, pterm.Success.Sprintfln("pruned %d run(s) older than %s", n, age))
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "delete runs started before now minus this duration (default: history.retention_days)")
	return cmd
}
