package main

import (
	"github.com/spf13/cobra"

	"github.com/rajivgeraev/swaply-api/internal/logger"
	"github.com/rajivgeraev/swaply-api/internal/store/pgstore"
)

var databaseURL string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the PostgreSQL schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		url := databaseURL
		if url == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			url = cfg.DatabaseURL
		} else {
			level := logLevel
			if level == "" {
				level = "info"
			}
			logger.InitLogger(level)
		}

		applied, err := pgstore.Migrate(cmd.Context(), url)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			logger.Default().Info("database is up to date")
			return nil
		}
		logger.Default().WithField("applied", applied).Info("migrations applied")
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL, defaults to DATABASE_URL")
}
