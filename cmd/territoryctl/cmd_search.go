package main

import (
	"strconv"

	"territorycore/internal/adapters/export"
	"territorycore/internal/aggregate"

	"github.com/spf13/cobra"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		phone  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search territories, addresses, houses and visits",
		Long: `Runs a case-insensitive substring search across every collection in the
selected mode. With --phone the phone territories, numbers and calls are
searched instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, stop, err := a.startEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()
			mode := aggregate.ModeTerritories
			if phone {
				mode = aggregate.ModePhoneTerritories
			}
			results, err := e.Search(cmd.Context(), args[0], mode)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), results)
			}
			return printTable(cmd.OutOrStdout(), searchTable(results))
		},
	}
	cmd.Flags().BoolVar(&phone, "phone", false, "search phone territories")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func searchTable(results []aggregate.SearchResult) export.Table {
	t := export.Table{Header: []string{"type", "territory", "address", "house", "match"}}
	for _, r := range results {
		row := []string{string(r.Type), "", "", "", ""}
		switch {
		case r.Territory != nil:
			row[1] = strconv.Itoa(int(r.Territory.Number))
		case r.PhoneTerritory != nil:
			row[1] = strconv.Itoa(int(r.PhoneTerritory.Number))
		}
		if r.Address != nil {
			row[2] = r.Address.Address
		}
		if r.House != nil {
			row[3] = r.House.Number
		}
		switch r.Type {
		case aggregate.ResultTerritory:
			row[4] = r.Territory.Description
		case aggregate.ResultPhoneTerritory:
			row[4] = r.PhoneTerritory.Description
		case aggregate.ResultAddress:
			row[4] = r.Address.Address
		case aggregate.ResultHouse:
			row[4] = r.House.Number
		case aggregate.ResultVisit:
			row[4] = r.Visit.Visit.Notes
		case aggregate.ResultPhoneNumber:
			row[4] = r.PhoneNumber.Number
		case aggregate.ResultPhoneCall:
			row[4] = r.PhoneCall.Call.Notes
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
