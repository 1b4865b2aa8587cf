package ocr_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ocrbot/internal/auth"
	"ocrbot/internal/ocr"
)

// Example demonstrates basic usage of the OCR client.
func Example() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	creds := auth.Credentials{
		APIKey:         "your-api-key",
		SecretKey:      "your-secret-key",
		TokenURL:       "https://aip.baidubce.com/oauth/2.0/token",
		RecognitionURL: "https://aip.baidubce.com/rest/2.0/ocr/v1/accurate_basic",
	}
	tokens := auth.NewManager(creds, auth.WithTimeout(30*time.Second))
	client := ocr.NewBaiduClient(creds.RecognitionURL, tokens, ocr.WithRateLimit(2))

	text, err := client.Recognize(ctx, "screenshot.jpg")
	if err != nil {
		log.Fatalf("Failed to recognize image: %v", err)
	}

	fmt.Printf("Extracted text (%d characters):\n%s\n", len(text), text)
}

// Example_errorHandling demonstrates mapping recognition errors to messages.
func Example_errorHandling() {
	ctx := context.Background()

	tokens := auth.NewManager(auth.Credentials{})
	client := ocr.NewBaiduClient("https://aip.baidubce.com/rest/2.0/ocr/v1/accurate_basic", tokens)

	_, err := client.RecognizeBytes(ctx, []byte{0xff, 0xd8, 0xff})

	var providerErr *ocr.ProviderError
	switch {
	case err == nil:
		fmt.Println("ok")
	case errors.Is(err, ocr.ErrUnauthenticated):
		fmt.Println("authentication failed")
	case errors.As(err, &providerErr):
		fmt.Printf("provider error %d: %s\n", providerErr.Code, providerErr.Message)
	default:
		fmt.Printf("failed: %v\n", err)
	}
	// Output: authentication failed
}

func ExampleNormalizeText() {
	fmt.Printf("%q\n", ocr.NormalizeText([]string{"A", "", "", "B", "  "}))
	// Output: "A\nB"
}
