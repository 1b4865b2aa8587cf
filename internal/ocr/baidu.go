package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"ocrbot/internal/logger"
	"ocrbot/internal/metrics"
)

const (
	// MaxEncodedImageBytes is the provider limit on the base64 image field.
	MaxEncodedImageBytes = 10 * 1024 * 1024

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 4 * 1024 * 1024
)

// Fixed recognition options.
const (
	languageType    = "CHN_ENG"
	detectDirection = "true"
	paragraph       = "true"
	probability     = "false"
)

var blankLines = regexp.MustCompile(`\n\s*\n`)

// BaiduClient implements Recognizer against the Baidu OCR REST API.
type BaiduClient struct {
	endpoint   string
	tokens     TokenSource
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// ClientOption configures a BaiduClient.
type ClientOption func(*BaiduClient)

// WithHTTPClient sets the client used for recognition calls.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *BaiduClient) {
		c.httpClient = client
	}
}

// WithRateLimit throttles outbound calls to qps requests per second.
// A non-positive qps disables throttling.
func WithRateLimit(qps float64) ClientOption {
	return func(c *BaiduClient) {
		if qps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(qps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(qps), burst)
	}
}

// NewBaiduClient creates a recognition client for endpoint.
func NewBaiduClient(endpoint string, tokens TokenSource, opts ...ClientOption) *BaiduClient {
	c := &BaiduClient{
		endpoint:   endpoint,
		tokens:     tokens,
		httpClient: http.DefaultClient,
		log:        logger.WithComponent("ocr"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Recognize reads the image file at path and returns its normalized text.
// The token is obtained before the file is touched.
func (c *BaiduClient) Recognize(ctx context.Context, path string) (string, error) {
	const op = "Recognize"

	accessToken, err := c.accessToken(ctx, op)
	if err != nil {
		return "", err
	}

	image, err := os.ReadFile(path)
	if err != nil {
		return "", WrapOCRError(op, err, "failed to read image file")
	}

	result, err := c.recognize(ctx, op, accessToken, image)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// RecognizeBytes sends image to the OCR endpoint and parses the result.
func (c *BaiduClient) RecognizeBytes(ctx context.Context, image []byte) (*Result, error) {
	const op = "RecognizeBytes"

	accessToken, err := c.accessToken(ctx, op)
	if err != nil {
		return nil, err
	}
	return c.recognize(ctx, op, accessToken, image)
}

func (c *BaiduClient) accessToken(ctx context.Context, op string) (string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		metrics.RecognitionsTotal.WithLabelValues("unauthenticated").Inc()
		c.log.Error().Err(err).Msg("No access token available for OCR request")
		return "", NewOCRError(op, fmt.Errorf("%w: %w", ErrUnauthenticated, err), "")
	}
	return token.Value, nil
}

func (c *BaiduClient) recognize(ctx context.Context, op, accessToken string, image []byte) (*Result, error) {
	startTime := time.Now()

	if len(image) == 0 {
		return nil, NewOCRError(op, ErrEmptyImage, "")
	}

	encoded := base64.StdEncoding.EncodeToString(image)
	if len(encoded) > MaxEncodedImageBytes {
		return nil, NewOCRError(op, ErrImageTooLarge, fmt.Sprintf("encoded size: %d bytes", len(encoded)))
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, NewOCRError(op, fmt.Errorf("%w: %w", ErrTransport, err), "rate limiter wait aborted")
		}
	}

	resp, err := c.post(ctx, accessToken, encoded)
	metrics.RecognitionDuration.Observe(time.Since(startTime).Seconds())
	if err != nil {
		metrics.RecognitionsTotal.WithLabelValues("transport_error").Inc()
		c.log.Error().Err(err).Str("endpoint", c.endpoint).Msg("OCR request failed")
		return nil, NewOCRError(op, err, "")
	}

	if resp.ErrorCode != nil {
		providerErr := &ProviderError{Code: *resp.ErrorCode, Message: resp.ErrorMsg}
		if providerErr.Message == "" {
			providerErr.Message = "unknown error"
		}
		if providerErr.TokenRejected() {
			c.tokens.Invalidate()
		}
		metrics.RecognitionsTotal.WithLabelValues("provider_error").Inc()
		c.log.Error().
			Int("error_code", providerErr.Code).
			Str("error_msg", providerErr.Message).
			Uint64("log_id", resp.LogID).
			Msg("OCR provider returned an error")
		return nil, NewOCRError(op, providerErr, "")
	}

	lines := make([]string, 0, len(resp.WordsResult))
	for _, w := range resp.WordsResult {
		lines = append(lines, w.Words)
	}

	result := &Result{
		Text:               NormalizeText(lines),
		Lines:              lines,
		Direction:          resp.Direction,
		LogID:              resp.LogID,
		ProcessingDuration: time.Since(startTime),
	}

	outcome := "success"
	if result.Text == "" {
		outcome = "empty"
	}
	metrics.RecognitionsTotal.WithLabelValues(outcome).Inc()

	c.log.Info().
		Int("lines", len(lines)).
		Int("text_length", len(result.Text)).
		Int("direction", result.Direction).
		Uint64("log_id", result.LogID).
		Dur("duration", result.ProcessingDuration).
		Msg("OCR recognition completed")

	return result, nil
}

type wordsResult struct {
	Words string `json:"words"`
}

type recognitionResponse struct {
	LogID          uint64        `json:"log_id"`
	Direction      int           `json:"direction"`
	WordsResultNum int           `json:"words_result_num"`
	WordsResult    []wordsResult `json:"words_result"`
	ErrorCode      *int          `json:"error_code"`
	ErrorMsg       string        `json:"error_msg"`
}

func (c *BaiduClient) post(ctx context.Context, accessToken, encodedImage string) (*recognitionResponse, error) {
	endpoint, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint: %v", ErrTransport, err)
	}
	query := endpoint.Query()
	query.Set("access_token", accessToken)
	endpoint.RawQuery = query.Encode()

	form := url.Values{
		"image":            {encodedImage},
		"language_type":    {languageType},
		"detect_direction": {detectDirection},
		"paragraph":        {paragraph},
		"probability":      {probability},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrTransport, err)
	}

	var parsed recognitionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: HTTP %d: failed to decode response: %v", ErrTransport, resp.StatusCode, err)
	}

	// Error payloads are authoritative even on non-2xx statuses.
	if parsed.ErrorCode == nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return nil, fmt.Errorf("%w: unexpected HTTP status %d", ErrTransport, resp.StatusCode)
	}

	return &parsed, nil
}

// NormalizeText joins lines with newlines, collapses every run of blank lines
// into a single newline and trims surrounding whitespace.
func NormalizeText(lines []string) string {
	text := strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}
