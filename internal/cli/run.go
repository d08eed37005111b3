package cli

import (
	"github.com/spf13/cobra"

	"edgeagent/internal/app"
	"edgeagent/internal/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture frames, detect objects and publish telemetry until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		log, err := logger.NewLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Close()

		application, err := app.NewApp(cmd.Context(), cfg, log)
		if err != nil {
			log.Error("Failed to start: %v", err)
			return err
		}
		return application.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
