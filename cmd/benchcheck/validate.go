package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/aicmo/benchcheck/pkg/verify"
)

func newValidateCmd(a *app) *cobra.Command {
	var (
		asJSON   bool
		feedback bool
		section  string
	)

	cmd := &cobra.Command{
		Use:   "validate <pack> <sections.json|->",
		Short: "Validate report sections against a pack without regenerating",
		Long: `Validate report sections against a pack without regenerating.

The sections file maps section ids to markdown text (JSON, or YAML by
extension). Use "-" to read JSON from stdin. Exits with status 3 when any
section fails its benchmark and 2 when the pack cannot be loaded.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			packKey := args[0]
			sections, err := a.readSections(args[1])
			if err != nil {
				return err
			}

			if section != "" {
				return a.validateOne(packKey, section, sections[section], asJSON)
			}

			res, err := verify.NewPackValidator(a.store, a.validator()).Validate(packKey, sections)
			if err != nil {
				return err
			}

			switch {
			case asJSON:
				err = a.writeJSON("", res)
			case feedback:
				_, err = fmt.Fprint(a.stdout, res.FormatFeedback())
			default:
				err = renderPackResult(a.stdout, res)
			}
			if err != nil {
				return err
			}
			if !res.Passed() {
				return errBenchmarkNotMet
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&feedback, "feedback", false, "print regeneration feedback markdown instead of a table")
	cmd.Flags().StringVar(&section, "section", "", "validate only this section")
	return cmd
}

func (a *app) validateOne(packKey, sectionID, text string, asJSON bool) error {
	rule, ok, err := a.store.GetRule(packKey, sectionID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Newf("pack %q has no rule for section %q", packKey, sectionID)
	}

	res := a.validator().Validate(sectionID, text, rule)
	if asJSON {
		if err := a.writeJSON("", res); err != nil {
			return err
		}
	} else {
		pr := &verify.PackResult{
			PackKey:  packKey,
			Overall:  res.Status,
			Sections: map[string]verify.SectionResult{sectionID: res},
		}
		if res.Status == verify.StatusPassWithWarnings {
			pr.Overall = verify.StatusPass
		}
		if err := renderPackResult(a.stdout, pr); err != nil {
			return err
		}
	}
	if !res.Passed() {
		return errBenchmarkNotMet
	}
	return nil
}
