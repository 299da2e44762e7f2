package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/aicmo/benchcheck/pkg/verify"
)

func renderTable(w io.Writer, data pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func statusText(s verify.Status) string {
	switch s {
	case verify.StatusPass:
		return pterm.Green(string(s))
	case verify.StatusPassWithWarnings:
		return pterm.Yellow(string(s))
	default:
		return pterm.Red(string(s))
	}
}

// renderPackResult prints one row per section followed by every issue.
func renderPackResult(w io.Writer, res *verify.PackResult) error {
	data := pterm.TableData{{"Section", "Status", "Score", "Words", "Bullets", "Table rows", "Issues"}}
	for _, id := range res.SectionIDs() {
		sr := res.Sections[id]
		data = append(data, []string{
			id,
			statusText(sr.Status),
			strconv.Itoa(sr.Score),
			strconv.Itoa(sr.Stats.Words),
			strconv.Itoa(sr.Stats.Bullets),
			strconv.Itoa(sr.Stats.TableRows),
			strconv.Itoa(len(sr.Issues)),
		})
	}
	if err := renderTable(w, data); err != nil {
		return err
	}

	for _, id := range res.SectionIDs() {
		for _, is := range res.Sections[id].Issues {
			prefix := pterm.Error
			if is.Severity == verify.SeverityWarning {
				prefix = pterm.Warning
			}
			fmt.Fprint(w, prefix.Sprintfln("%s %s: %s", id, is.Code, is.Message))
		}
	}
	if len(res.Skipped) > 0 {
		fmt.Fprint(w, pterm.Info.Sprintfln("no rule, not validated: %s", strings.Join(res.Skipped, ", ")))
	}

	summary := fmt.Sprintf("pack %s: %s (score %d/100)", res.PackKey, res.Overall, res.Score())
	if res.Passed() {
		fmt.Fprint(w, pterm.Success.Sprintln(summary))
	} else {
		fmt.Fprint(w, pterm.Error.Sprintln(summary))
	}
	return nil
}
