package onebot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"ocrbot/internal/logger"
)

// MaxDownloadBytes caps image downloads.
const MaxDownloadBytes = 20 * 1024 * 1024

// APIError is a failed OneBot action.
type APIError struct {
	Action  string
	Status  string
	RetCode int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("onebot: %s failed (status %s, retcode %d): %s", e.Action, e.Status, e.RetCode, e.Message)
	}
	return fmt.Sprintf("onebot: %s failed (status %s, retcode %d)", e.Action, e.Status, e.RetCode)
}

// ImageInfo is the get_image response.
type ImageInfo struct {
	File     string `json:"file"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	Filename string `json:"filename"`
}

type apiResponse struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Message string          `json:"message"`
	Wording string          `json:"wording"`
	Data    json.RawMessage `json:"data"`
}

// Client calls the OneBot v11 HTTP API.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	log         zerolog.Logger
}

// NewClient creates a client for the API at baseURL. A nil httpClient uses
// http.DefaultClient.
func NewClient(baseURL, accessToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  httpClient,
		log:         logger.WithComponent("onebot"),
	}
}

// GetImage resolves a file id to the host's cached copy.
func (c *Client) GetImage(ctx context.Context, file string) (*ImageInfo, error) {
	var info ImageInfo
	if err := c.call(ctx, "get_image", map[string]any{"file": file}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SendMsg sends text to a private chat or a group and returns the message id.
func (c *Client) SendMsg(ctx context.Context, messageType string, targetID int64, text string) (int64, error) {
	params := map[string]any{
		"message_type": messageType,
		"message":      Message{Text{Text: text}},
	}
	switch messageType {
	case MessageTypeGroup:
		params["group_id"] = targetID
	case MessageTypePrivate:
		params["user_id"] = targetID
	default:
		return 0, fmt.Errorf("onebot: unsupported message type %q", messageType)
	}

	var out struct {
		MessageID int64 `json:"message_id"`
	}
	if err := c.call(ctx, "send_msg", params, &out); err != nil {
		return 0, err
	}
	return out.MessageID, nil
}

// Reply sends text back to wherever ev came from.
func (c *Client) Reply(ctx context.Context, ev *Event, text string) error {
	targetID := ev.UserID
	if ev.MessageType == MessageTypeGroup {
		targetID = ev.GroupID
	}
	_, err := c.SendMsg(ctx, ev.MessageType, targetID, text)
	return err
}

// Download fetches url and returns its body.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("onebot: build download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("onebot: download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("onebot: download %s: HTTP %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("onebot: read download body: %w", err)
	}
	if len(data) > MaxDownloadBytes {
		return nil, fmt.Errorf("onebot: download %s exceeds %d bytes", url, MaxDownloadBytes)
	}
	return data, nil
}

func (c *Client) call(ctx context.Context, action string, params any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("onebot: encode %s params: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+action, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("onebot: build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("onebot: %s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{Action: action, Status: resp.Status, RetCode: resp.StatusCode}
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("onebot: decode %s response: %w", action, err)
	}

	if parsed.RetCode != 0 || (parsed.Status != "ok" && parsed.Status != "async") {
		msg := parsed.Wording
		if msg == "" {
			msg = parsed.Message
		}
		return &APIError{Action: action, Status: parsed.Status, RetCode: parsed.RetCode, Message: msg}
	}

	c.log.Debug().Str("action", action).Msg("OneBot action succeeded")

	if out == nil || len(parsed.Data) == 0 || string(parsed.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(parsed.Data, out); err != nil {
		return fmt.Errorf("onebot: decode %s data: %w", action, err)
	}
	return nil
}
