package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/shipyard/internal/config"
	"github.com/Iron-Ham/shipyard/internal/source"
)

// addSourceFlags registers the job list flags shared by run and validate.
func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("jobs", "j", "", "job list (.csv, .xlsx, .yaml); overrides source.path")
	cmd.Flags().StringSliceP("env", "e", nil, "default environments for rows that name none, e.g. --env stage,prod")
	cmd.Flags().String("sheet", "", "worksheet to read from an .xlsx job list")
	cmd.Flags().StringSlice("only", nil, "only run jobs matching these glob patterns, e.g. --only 'payments/*'")
}

// applySourceFlags copies explicitly set flags over the loaded configuration.
func applySourceFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("jobs") {
		cfg.Source.Path, _ = f.GetString("jobs")
	}
	if f.Changed("env") {
		cfg.Source.DefaultEnvironments, _ = f.GetStringSlice("env")
	}
	if f.Changed("sheet") {
		cfg.Source.Sheet, _ = f.GetString("sheet")
	}
}

// openSource builds the filtered job source described by cfg and --only.
func openSource(cmd *cobra.Command, cfg *config.Config) (source.Source, error) {
	if cfg.Source.Path == "" {
		return nil, exitf(ExitInvalid, "no job list: pass --jobs or set source.path")
	}
	src, err := source.Open(cfg.Source.Path, cfg.Source.DefaultEnvironments, source.WithSheet(cfg.Source.Sheet))
	if err != nil {
		return nil, &ExitError{Code: ExitInvalid, Err: err}
	}
	patterns, _ := cmd.Flags().GetStringSlice("only")
	src, err = source.Filter(src, patterns)
	if err != nil {
		return nil, &ExitError{Code: ExitInvalid, Err: err}
	}
	return src, nil
}

// loadConfig loads and validates the configuration, then applies the
// command's source flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, &ExitError{Code: ExitInvalid, Err: err}
	}
	applySourceFlags(cmd, cfg)
	return cfg, nil
}
