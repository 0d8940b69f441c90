package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pricewise/pricewise/internal/core"
	"github.com/pricewise/pricewise/internal/metrics"
	"github.com/pricewise/pricewise/internal/output"
)

var (
	creditsUser          string
	creditsAmount        int
	creditsEmail         string
	creditsCreateProfile bool
	creditsHistoryLimit  int
)

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Inspect and adjust user credit balances",
}

var creditsBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show a user's balance and purchase history",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := strings.TrimSpace(creditsUser)
		if userID == "" {
			return fmt.Errorf("--user is required")
		}

		db, err := openConfiguredStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		profile, err := db.GetProfile(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if profile == nil {
			return fmt.Errorf("user %s: %w", userID, core.ErrProfileNotFound)
		}
		purchases, err := db.ListPurchases(cmd.Context(), userID, creditsHistoryLimit)
		if err != nil {
			return err
		}

		view := struct {
			Profile   *core.Profile   `json:"profile"`
			Purchases []core.Purchase `json:"purchases"`
		}{Profile: profile, Purchases: purchases}
		return writeOutput(cmd, view, func() string { return output.CreditsTable(profile, purchases) })
	},
}

var creditsGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Grant credits to a user outside the payment flow",
	Long: `Grant credits to a user as a manual ledger mutation.

Each grant records a purchase with a generated "manual_" payment id and no
amount paid, so it shows up in the purchase history like any other credit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := strings.TrimSpace(creditsUser)
		if userID == "" {
			return fmt.Errorf("--user is required")
		}
		if creditsAmount <= 0 {
			return fmt.Errorf("--credits must be positive")
		}

		db, err := openConfiguredStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		if creditsCreateProfile {
			if err := db.EnsureProfile(cmd.Context(), userID, creditsEmail); err != nil {
				return err
			}
		}

		result, err := db.ApplyCredit(cmd.Context(), core.LedgerMutation{
			UserID:    userID,
			Credits:   creditsAmount,
			Currency:  "USD",
			PaymentID: "manual_" + uuid.NewString(),
			At:        time.Now().UTC(),
		})
		if err != nil {
			if errors.Is(err, core.ErrProfileNotFound) {
				return fmt.Errorf("user %s has no profile (use --create to add one): %w", userID, err)
			}
			return err
		}
		metrics.RecordCreditsApplied("manual", result.Credits)

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Granted %d credits to %s: %d -> %d (payment %s)\n",
			result.Credits, result.UserID, result.OldBalance, result.NewBalance, result.PaymentID)
		return err
	},
}

var creditsConsumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Take one consultation credit from a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := strings.TrimSpace(creditsUser)
		if userID == "" {
			return fmt.Errorf("--user is required")
		}

		db, err := openConfiguredStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		result, err := db.ConsumeCredit(cmd.Context(), userID)
		if err != nil {
			if errors.Is(err, core.ErrInsufficientCredits) {
				metrics.RecordCreditConsumed("insufficient")
				return fmt.Errorf("user %s has no credits left: %w", userID, err)
			}
			return err
		}
		metrics.RecordCreditConsumed("consumed")

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Consumed 1 credit from %s: %d -> %d\n",
			result.UserID, result.OldBalance, result.NewBalance)
		return err
	},
}

func init() {
	creditsCmd.PersistentFlags().StringVar(&creditsUser, "user", "", "User id")

	addOutputFlags(creditsBalanceCmd)
	creditsBalanceCmd.Flags().IntVar(&creditsHistoryLimit, "limit", 20, "Maximum number of purchases to show")

	creditsGrantCmd.Flags().IntVar(&creditsAmount, "credits", 0, "Credits to add")
	creditsGrantCmd.Flags().BoolVar(&creditsCreateProfile, "create", false, "Create the profile if it does not exist")
	creditsGrantCmd.Flags().StringVar(&creditsEmail, "email", "", "Email stored when creating the profile")

	creditsCmd.AddCommand(creditsBalanceCmd)
	creditsCmd.AddCommand(creditsGrantCmd)
	creditsCmd.AddCommand(creditsConsumeCmd)
	rootCmd.AddCommand(creditsCmd)
}
