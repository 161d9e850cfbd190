package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"territorycore/internal/core"
	"territorycore/pkg/domain"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Reconcile a JSON or YAML sync batch into the store",
		Long: `Applies a sync batch the way a remote sync does: records are stored
verbatim and the listed deletions are removed, all in one transaction.
Files ending in .yaml or .yml are read as YAML, anything else as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := readBatch(args[0])
			if err != nil {
				return err
			}
			res, err := a.svc.Reconcile(cmd.Context(), batch)
			if errors.Is(err, domain.ErrNothingToSave) {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to import")
				return nil
			}
			if err != nil {
				return fmt.Errorf("import %s: %w", args[0], err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imported %s\n", args[0])
			for _, v := range res.Violations {
				fmt.Fprintf(out, "  %s %s %s: %s\n", v.Severity, v.Entity, v.EntityID, v.Message)
			}
			return nil
		},
	}
}

// readBatch decodes a sync batch. YAML is converted to JSON first so both
// formats share the json field names.
func readBatch(path string) (core.SyncBatch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.SyncBatch{}, fmt.Errorf("read batch: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return core.SyncBatch{}, fmt.Errorf("parse yaml batch: %w", err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return core.SyncBatch{}, fmt.Errorf("convert yaml batch: %w", err)
		}
	}
	var batch core.SyncBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return core.SyncBatch{}, fmt.Errorf("parse batch: %w", err)
	}
	return batch, nil
}
