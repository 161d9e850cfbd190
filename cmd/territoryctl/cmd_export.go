package main

import (
	"fmt"
	"os"

	"territorycore/internal/adapters/export"

	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		out    string
		store  bool
	)
	cmd := &cobra.Command{
		Use:   "export REPORT",
		Short: "Export a view as CSV or JSON",
		Long: `Renders one published view. Reports: territories, keys, recent,
recent-phone, phone-territories, recalls.

Output goes to stdout unless --out names a file. With --store the artifact is
written to the configured blob store under the export prefix instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := export.ParseReport(args[0])
			if err != nil {
				return err
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			e, stop, err := a.startEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			if store {
				return storeExport(cmd, a, e, report, f)
			}
			rendered, err := export.Render(e, report, f)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(rendered.Payload)
				return err
			}
			if err := os.WriteFile(out, rendered.Payload, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", rendered.Rows, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "csv or json")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&store, "store", false, "store the artifact in the blob store")
	return cmd
}

func storeExport(cmd *cobra.Command, a *app, src export.Source, report export.Report, format export.Format) error {
	w := export.NewWorker(src, a.blobs, export.Options{
		Prefix:    a.cfg.Export.Prefix,
		QueueSize: a.cfg.Export.QueueSize,
		Logger:    a.logger,
	})
	w.Start()
	defer func() { _ = w.Stop(cmd.Context()) }()

	queued, err := w.Enqueue(cmd.Context(), export.Input{
		Report:      report,
		Formats:     []export.Format{format},
		RequestedBy: a.cfg.Session.UserID,
	})
	if err != nil {
		return err
	}
	record, err := w.Wait(cmd.Context(), queued.ID)
	if err != nil {
		return err
	}
	if record.Status != export.StatusSucceeded {
		return fmt.Errorf("export %s failed: %s", record.ID, record.Error)
	}
	for _, artifact := range record.Artifacts {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d rows\t%s\n", artifact.Key, artifact.Rows, artifact.URL)
	}
	return nil
}
