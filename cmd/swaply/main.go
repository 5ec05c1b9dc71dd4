package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "swaply",
	Short: "Swaply barter marketplace API",
	Long: `Swaply lets users list products and trade them for other users' products.

Run "swaply serve" to start the HTTP and websocket API, or "swaply migrate"
to prepare a PostgreSQL database.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides LOG_LEVEL")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("swaply failed")
		os.Exit(1)
	}
}
