package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pricewise/pricewise/internal/core/quota"
	"github.com/pricewise/pricewise/internal/output"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Inspect provider quotas",
}

var quotaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the provider catalog with effective limits",
	Long: `List every tracked provider with its effective limit after config
overrides and the safety margin are applied.

Usage counts are kept in memory by the running server; use
GET /api/quotas for live values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}

		tracker := quota.NewTracker(nil)
		tracker.ApplyOverrides(cfg.Quota.Overrides)
		tracker.ApplySafetyMargin(cfg.Quota.Margin)

		entries := tracker.Snapshot()
		return writeOutput(cmd, entries, func() string { return output.QuotaTable(entries) })
	},
}

func init() {
	addOutputFlags(quotaListCmd)
	quotaCmd.AddCommand(quotaListCmd)
	rootCmd.AddCommand(quotaCmd)
}
