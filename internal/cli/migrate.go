package cli

import (
	"github.com/spf13/cobra"

	"omrzen/internal/config"
	"omrzen/internal/infra/postgres"
	"omrzen/internal/logger"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run postgres schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logger.Setup(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)

			applied, err := postgres.Migrate(cmd.Context(), cfg.Postgres.URL)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				log.Info().Msg("schema up to date")
				return nil
			}
			log.Info().Strs("migrations", applied).Msg("migrations applied")
			return nil
		},
	}
}
