package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"ocrbot/internal/auth"
	"ocrbot/internal/logger"
	"ocrbot/internal/ocr"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [image-file]",
	Short: "Extract text from a local image with Baidu OCR",
	Long: `Send a local image to Baidu's accurate OCR endpoint and print the
recognized text, exactly as the bot would reply with it.

Required environment variables:
  OCRBOT_BAIDU_API_KEY    - Baidu application API key
  OCRBOT_BAIDU_SECRET_KEY - Baidu application secret key`,
	Example: `  # Print the text of screenshot.png
  ocrbot ocr screenshot.png

  # Include metadata and output as JSON
  ocrbot ocr screenshot.png --json -o result.json`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput is the JSON output when --json is used.
type OCROutput struct {
	Text               string   `json:"text"`
	Lines              []string `json:"lines"`
	Direction          int      `json:"direction"`
	LogID              uint64   `json:"log_id,omitempty"`
	ProcessingDuration string   `json:"processing_duration"`
	FileName           string   `json:"file_name"`
	FileSize           int64    `json:"file_size"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().Bool("json", false, "Output as JSON")
	ocrCmd.Flags().Duration("timeout", time.Minute, "Processing timeout")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	imagePath := args[0]

	fileInfo, err := validateImageFile(imagePath, log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(cmd.Context(), timeout, log)
	defer cancel()

	image, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image file: %w", err)
	}

	log.Info().
		Str("file", imagePath).
		Int64("size", fileInfo.Size()).
		Msg("Processing image")

	_, recognizer := newRecognizer(newHTTPClient())
	result, err := recognizer.RecognizeBytes(ctx, image)
	if err != nil {
		return handleOCRError(err, log)
	}

	return outputResults(cmd, result, fileInfo, outputPath, jsonOutput, log)
}

// validateImageFile checks the file exists, is a regular file and is not empty.
func validateImageFile(path string, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().Str("file", path).Msg("Image file not found")
			return nil, fmt.Errorf("image file not found: %s", path)
		}
		if os.IsPermission(err) {
			log.Error().Str("file", path).Msg("Permission denied accessing image file")
			return nil, fmt.Errorf("permission denied accessing image file: %s", path)
		}
		return nil, fmt.Errorf("error accessing image file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		return nil, fmt.Errorf("path is not a regular file: %s", path)
	}
	if fileInfo.Size() == 0 {
		return nil, fmt.Errorf("image file is empty: %s", path)
	}
	return fileInfo, nil
}

// createContextWithTimeout cancels on timeout or on an interrupt signal.
func createContextWithTimeout(parent context.Context, timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling OCR processing")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// handleOCRError maps recognition failures to user-facing messages.
func handleOCRError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("OCR processing failed")

	var providerErr *ocr.ProviderError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("OCR processing timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("OCR processing was canceled")
	case errors.Is(err, auth.ErrNotConfigured):
		return fmt.Errorf("Baidu credentials not configured. Set OCRBOT_BAIDU_API_KEY and OCRBOT_BAIDU_SECRET_KEY")
	case errors.Is(err, ocr.ErrUnauthenticated):
		return fmt.Errorf("OCR authentication failed, check the Baidu API key and secret key: %w", err)
	case errors.Is(err, ocr.ErrImageTooLarge):
		return fmt.Errorf("image is too large (maximum %d bytes once base64 encoded)", ocr.MaxEncodedImageBytes)
	case errors.As(err, &providerErr):
		return fmt.Errorf("OCR provider rejected the request (code %d): %s", providerErr.Code, providerErr.Message)
	case errors.Is(err, ocr.ErrTransport):
		return fmt.Errorf("OCR request failed. This may be due to network issues or service unavailability: %w", err)
	default:
		return fmt.Errorf("OCR processing failed: %w", err)
	}
}

// outputResults writes the text or JSON result to outputPath or stdout.
func outputResults(cmd *cobra.Command, result *ocr.Result, fileInfo os.FileInfo, outputPath string, jsonOutput bool, log zerolog.Logger) error {
	var outputData []byte

	if jsonOutput {
		data, err := json.MarshalIndent(OCROutput{
			Text:               result.Text,
			Lines:              result.Lines,
			Direction:          result.Direction,
			LogID:              result.LogID,
			ProcessingDuration: result.ProcessingDuration.String(),
			FileName:           filepath.Base(fileInfo.Name()),
			FileSize:           fileInfo.Size(),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		outputData = append(data, '\n')
	} else {
		text := result.Text
		if strings.TrimSpace(text) == "" {
			log.Warn().Msg("No text recognized")
		}
		outputData = []byte(text + "\n")
	}

	if outputPath == "" {
		if _, err := cmd.OutOrStdout().Write(outputData); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(outputPath, outputData, 0644); err != nil {
		log.Error().Err(err).Str("output_file", outputPath).Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}
	log.Info().
		Str("output_file", outputPath).
		Int("bytes", len(outputData)).
		Msg("OCR results written to file")
	return nil
}
