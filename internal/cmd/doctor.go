package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricewise/pricewise/internal/config"
	errwrap "github.com/pricewise/pricewise/internal/errors"
	"github.com/pricewise/pricewise/internal/observability"
	"github.com/pricewise/pricewise/internal/output"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Check configuration of every external collaborator and that the store
can be opened. Exits with a config error when a required service is missing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := observability.CLILogger

		version := crucible.GetVersion()
		logger.Info(fmt.Sprintf("Runtime: %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
			zap.String("gofulmen_version", version.Gofulmen),
			zap.String("crucible_version", version.Crucible))

		cfg, err := loadConfig(ctx)
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Failed to load configuration", err)
		}
		if path := config.UserConfigFile(); path != "" {
			logger.Info("Config file: " + path)
		}

		services := config.ValidateServices(cfg)
		if err := writeOutput(cmd, services, func() string { return output.ServicesTable(services) }); err != nil {
			return err
		}

		db, err := openStore(ctx, cfg.Store)
		if err != nil {
			logger.Error("Store check failed", zap.Error(err))
			ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Cannot open store", err)
		}
		pingErr := db.Ping(ctx)
		_ = db.Close()
		if pingErr != nil {
			ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Store ping failed", pingErr)
		}
		logger.Info("Store reachable", zap.String("driver", cfg.Store.Driver))

		if missing := config.MissingRequired(services); len(missing) > 0 {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Required services are not configured",
				errwrap.NewConfigInvalidError(fmt.Sprintf("missing: %v", missing)))
		}

		logger.Info("All checks passed")
		return nil
	},
}

func init() {
	addOutputFlags(doctorCmd)
	rootCmd.AddCommand(doctorCmd)
}
