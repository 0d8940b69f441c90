package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pricewise/pricewise/internal/output"
)

var webhookListLimit int

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Inspect processed payment webhooks",
}

var webhookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recently processed webhook events",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openConfiguredStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		events, err := db.ListWebhookEvents(cmd.Context(), webhookListLimit)
		if err != nil {
			return err
		}
		return writeOutput(cmd, events, func() string { return output.WebhookTable(events) })
	},
}

func init() {
	addOutputFlags(webhookListCmd)
	webhookListCmd.Flags().IntVar(&webhookListLimit, "limit", 50, "Maximum number of events to list")
	webhookCmd.AddCommand(webhookListCmd)
	rootCmd.AddCommand(webhookCmd)
}
