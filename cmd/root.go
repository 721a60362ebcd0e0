package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dailyform/internal/config"
)

var (
	cfg         *config.Config
	secretsPath string
)

var rootCmd = &cobra.Command{
	Use:   "dailyform",
	Short: "Personalized daily report generator",
	Long:  "Pulls the day's weather and to-do list for an identity, merges them with identity facts and renders a short text or HTML report. Facts are persisted so a failing source falls back to its last good value.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}

		secrets, err := config.LoadSecrets(secretsPath)
		if err != nil {
			return eris.Wrap(err, "load secrets")
		}
		c.ApplySecrets(secrets)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&secretsPath, "secrets", "secrets.toml", "path to the secrets file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
