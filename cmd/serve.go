package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"ocrbot/internal/bot"
	"ocrbot/internal/cleanup"
	"ocrbot/internal/logger"
	"ocrbot/internal/media"
	"ocrbot/internal/onebot"
	"ocrbot/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OneBot webhook and answer OCR commands",
	Long: `Start the HTTP server that receives OneBot v11 events. Messages starting
with the configured command (default "/提取文字") have their first image
recognized and the text sent back to the same chat.

Without OCRBOT_BAIDU_API_KEY and OCRBOT_BAIDU_SECRET_KEY the server still
starts, but every command replies with an authentication failure.`,
	Example: `  # Serve with environment configuration
  ocrbot serve

  # Serve with a config file and a longer shutdown grace period
  ocrbot serve -c ocrbot.yaml --shutdown-timeout 30s`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Duration("shutdown-timeout", 15*time.Second, "Time allowed for in-flight commands and cleanups on shutdown")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")
	shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")

	if !cfg.RecognitionEnabled() {
		log.Warn().Msg("Baidu API key or secret key missing; OCR commands will fail authentication")
	}
	if cfg.Log.Level != "debug" && cfg.Log.Level != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}

	tempDir, err := media.NewTempDir(cfg.Storage.TempDir)
	if err != nil {
		return err
	}

	httpClient := newHTTPClient()
	_, recognizer := newRecognizer(httpClient)
	host := onebot.NewClient(cfg.OneBot.APIURL, cfg.OneBot.AccessToken, httpClient)

	scheduler := cleanup.NewScheduler(cfg.Storage.CleanupDelay)
	handler := bot.NewHandler(media.NewFetcher(host, tempDir), recognizer, scheduler)
	dispatcher := bot.NewDispatcher(
		bot.Command{Name: cfg.Bot.Command, WakePrefix: cfg.Bot.WakePrefix},
		handler,
		host,
		cfg.Bot.CommandTimeout,
	)

	router := server.NewRouter(dispatcher, server.Options{
		WebhookPath:        cfg.Server.WebhookPath,
		Secret:             cfg.OneBot.Secret,
		RecognitionEnabled: cfg.RecognitionEnabled(),
	})

	log.Info().
		Str("addr", cfg.Server.Addr).
		Str("webhook_path", cfg.Server.WebhookPath).
		Str("onebot_api", cfg.OneBot.APIURL).
		Str("temp_dir", tempDir.Path()).
		Str("version", version).
		Msg("Starting OCR bot")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := server.New(cfg.Server.Addr, router).Run(ctx, shutdownTimeout)

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := dispatcher.Wait(drainCtx); err != nil {
		log.Warn().Err(err).Msg("In-flight commands did not finish before shutdown")
	}
	if err := scheduler.Shutdown(drainCtx); err != nil {
		log.Warn().Err(err).Msg("Pending cleanups did not finish before shutdown")
	}

	if serveErr != nil {
		return fmt.Errorf("http server failed: %w", serveErr)
	}
	log.Info().Msg("OCR bot stopped")
	return nil
}
