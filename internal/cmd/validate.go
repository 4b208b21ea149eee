package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/shipyard/internal/job"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a job list and print the builds it would trigger",
	Long: `Load the job list exactly as run would, without contacting the CI
server, and print one line per build with its parameters.`,
	Example: `  shipyard validate --jobs jobs.csv --env stage,prod`,
	Args:    cobra.NoArgs,
	RunE:    runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	addSourceFlags(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	src, err := openSource(cmd, cfg)
	if err != nil {
		return err
	}
	descs, err := src.Load(cmd.Context())
	if err != nil {
		return &ExitError{Code: ExitInvalid, Err: err}
	}

	out := cmd.OutOrStdout()
	n := 0
	for _, d := range descs {
		params := d.StringParams()
		for _, env := range d.Environments() {
			n++
			fmt.Fprintf(out, "%3d  %s @ %s  %s=%s%s\n", n, d.Identity(), env,
				cfg.CI.EnvParam, env, formatParams(params))
		}
	}
	fmt.Fprintf(out, "\n%d jobs, %d builds\n", len(descs), job.TaskCount(descs))
	return nil
}

// formatParams renders params as " K=V" pairs in key order.
func formatParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%s", k, params[k])
	}
	return sb.String()
}
