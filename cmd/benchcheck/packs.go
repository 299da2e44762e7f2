package main

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/aicmo/benchcheck/pkg/benchmark"
)

func newPacksCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "packs",
		Short: "List benchmark packs and check that every one loads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			packs, loadErr := a.store.LoadAll(cmd.Context())
			if loadErr != nil && packs == nil {
				return loadErr
			}

			if len(packs) == 0 && loadErr == nil {
				fmt.Fprint(a.stdout, pterm.Info.Sprintfln("no benchmark packs found in %s", a.cfg.Benchmarks.Dir))
				return nil
			}

			if asJSON {
				if err := a.writeJSON("", packs); err != nil {
					return err
				}
			} else {
				data := pterm.TableData{{"Pack", "Sections", "Rules", "Source"}}
				for _, key := range slices.Sorted(maps.Keys(packs)) {
					p := packs[key]
					data = append(data, []string{
						key,
						strings.Join(p.ExpectedSections, ", "),
						strconv.Itoa(len(p.Rules)),
						p.Source,
					})
				}
				if err := renderTable(a.stdout, data); err != nil {
					return err
				}
			}
			// Broken packs fail the command so CI catches them.
			return loadErr
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print packs as JSON")
	return cmd
}

func newRulesCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "rules <pack>",
		Short: "Show the expected sections and rules of a pack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pack, err := a.store.Pack(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return a.writeJSON("", pack)
			}

			data := pterm.TableData{{"Section", "Format", "Words", "Bullets", "Headings", "Required", "Forbidden"}}
			for _, id := range pack.ExpectedSections {
				rule, ok := pack.Rule(id)
				if !ok {
					data = append(data, []string{id, pterm.Gray("(no rule)"), "", "", "", "", ""})
					continue
				}
				data = append(data, []string{
					id,
					string(rule.Format),
					bounds(rule.MinWords, rule.MaxWords),
					bulletBounds(rule),
					strings.Join(rule.RequiredHeadings, ", "),
					strings.Join(rule.RequiredPhrases, ", "),
					strings.Join(rule.ForbiddenPhrases, ", "),
				})
			}
			if err := renderTable(a.stdout, data); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "source: %s\n", pack.Source)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the pack as JSON")
	return cmd
}

func bounds(lo, hi int) string {
	if hi == 0 {
		return fmt.Sprintf(">= %d", lo)
	}
	return fmt.Sprintf("%d-%d", lo, hi)
}

func bulletBounds(r benchmark.Rule) string {
	if r.Format != benchmark.FormatBullets {
		return ""
	}
	return bounds(r.MinBullets, r.MaxBullets)
}
