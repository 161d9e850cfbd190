package main

import (
	"encoding/json"
	"fmt"
	"io"

	"territorycore/internal/adapters/export"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

func newTreeCmd(a *app) *cobra.Command {
	return viewCmd(a, "tree", "Print territories with address and house counts", export.ReportTerritories, export.ReportPhoneTerritories)
}

func newKeysCmd(a *app) *cobra.Command {
	return viewCmd(a, "keys", "Print access keys with their territories and holders", export.ReportKeys, "")
}

func newRecentCmd(a *app) *cobra.Command {
	return viewCmd(a, "recent", "Print territories worked inside the recent window", export.ReportRecent, export.ReportRecentPhone)
}

func newRecallsCmd(a *app) *cobra.Command {
	return viewCmd(a, "recalls", "Print the session user's recalls", export.ReportRecalls, "")
}

// viewCmd builds a command that prints one published view. A non-empty
// phoneReport adds a --phone flag selecting it instead.
func viewCmd(a *app, use, short string, report, phoneReport export.Report) *cobra.Command {
	var (
		phone  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, stop, err := a.startEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()
			selected := report
			if phone {
				selected = phoneReport
			}
			if asJSON {
				rendered, err := export.Render(e, selected, export.FormatJSON)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(rendered.Payload))
				return err
			}
			t, err := export.Tabulate(e, selected)
			if err != nil {
				return err
			}
			return printTable(cmd.OutOrStdout(), t)
		},
	}
	if phoneReport != "" {
		cmd.Flags().BoolVar(&phone, "phone", false, "show the phone territory variant")
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the view as JSON")
	return cmd
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

func printTable(w io.Writer, t export.Table) error {
	if len(t.Rows) == 0 {
		_, err := fmt.Fprintln(w, "no results")
		return err
	}
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(t.Header...).
		Rows(t.Rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	_, err := fmt.Fprintln(w, tbl.Render())
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
