package cmd

import (
	"net/http"

	"ocrbot/internal/auth"
	"ocrbot/internal/ocr"
)

// newRecognizer builds the token manager and the recognition client sharing
// one HTTP client.
func newRecognizer(httpClient *http.Client) (*auth.Manager, *ocr.BaiduClient) {
	tokens := auth.NewManager(cfg.Credentials(),
		auth.WithHTTPClient(httpClient),
		auth.WithTimeout(cfg.HTTP.Timeout),
	)
	recognizer := ocr.NewBaiduClient(cfg.Baidu.OCRURL, tokens,
		ocr.WithHTTPClient(httpClient),
		ocr.WithRateLimit(cfg.Baidu.QPS),
	)
	return tokens, recognizer
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: cfg.HTTP.Timeout}
}
