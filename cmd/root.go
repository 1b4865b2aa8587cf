package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"ocrbot/internal/config"
	"ocrbot/internal/logger"
)

var version = "1.0.0"

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ocrbot",
	Short: "OCR chat-bot add-on for OneBot hosts",
	Long: `ocrbot listens for "/提取文字" commands from a OneBot v11 host, runs the
attached image through Baidu's accurate OCR and replies with the text.

Configuration is read from an optional YAML file and OCRBOT_* environment
variables (for example OCRBOT_BAIDU_API_KEY and OCRBOT_BAIDU_SECRET_KEY).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := logger.Setup(loaded.GetLoggerConfig()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log := logger.WithComponent("cmd")
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
}
