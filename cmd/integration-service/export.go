package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skukla/kukla-integration-service-sub006/pkg/config"
	"github.com/skukla/kukla-integration-service-sub006/pkg/logging"
	"github.com/skukla/kukla-integration-service-sub006/pkg/pipeline"
)

var (
	flagFields         []string
	flagFilename       string
	flagSkipInventory  bool
	flagSkipCategories bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Run one catalog export and print the response envelope",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringSliceVar(&flagFields, "fields", nil, "columns to export (default: configured set)")
	exportCmd.Flags().StringVar(&flagFilename, "filename", "", "artifact name override")
	exportCmd.Flags().BoolVar(&flagSkipInventory, "skip-inventory", false, "skip the inventory enrichment pass")
	exportCmd.Flags().BoolVar(&flagSkipCategories, "skip-categories", false, "skip the category enrichment pass")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	opts := config.ExportOptions{
		Fields:   flagFields,
		Filename: flagFilename,
	}
	if flagSkipInventory {
		skip := false
		opts.IncludeInventory = &skip
	}
	if flagSkipCategories {
		skip := false
		opts.IncludeCategories = &skip
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	orch, err := pipeline.New(cfg, logging.NewLogger("pipeline"))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	res, err := orch.Execute(cmd.Context(), opts)
	if err != nil {
		envelope := map[string]any{"success": false, "error": err.Error()}
		var runErr *pipeline.RunError
		if errors.As(err, &runErr) {
			envelope["error"] = fmt.Sprintf("export failed during %s stage", runErr.State)
			envelope["steps"] = runErr.Steps
			if !cfg.IsProd() {
				envelope["details"] = runErr.Err.Error()
			}
		}
		_ = enc.Encode(envelope)
		return err
	}

	return enc.Encode(res)
}
