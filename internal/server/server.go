// Package server exposes the OneBot webhook, a health check and the
// Prometheus metrics over HTTP.
package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"ocrbot/internal/logger"
	"ocrbot/internal/onebot"
)

const (
	// SignatureHeader carries "sha1=<hex hmac>" of the body when the host has a secret.
	SignatureHeader = "X-Signature"

	maxEventBytes = 1 << 20
)

// Dispatcher receives parsed events.
type Dispatcher interface {
	Dispatch(ev *onebot.Event) bool
}

// Options configures the router.
type Options struct {
	WebhookPath        string
	Secret             string
	RecognitionEnabled bool
}

// NewRouter builds the gin engine serving the webhook, /healthz and /metrics.
func NewRouter(dispatcher Dispatcher, opts Options) *gin.Engine {
	log := logger.WithComponent("server")

	engine := gin.New()
	engine.Use(Recovery(log), AccessLog(log), Metrics())

	wh := &webhook{dispatcher: dispatcher, secret: opts.Secret, log: log}
	engine.POST(opts.WebhookPath, wh.handle)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":              "ok",
			"recognition_enabled": opts.RecognitionEnabled,
		})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return engine
}

type webhook struct {
	dispatcher Dispatcher
	secret     string
	log        zerolog.Logger
}

func (w *webhook) handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBytes+1))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if len(body) > maxEventBytes {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "event too large"})
		return
	}

	if w.secret != "" && !VerifySignature(w.secret, body, c.GetHeader(SignatureHeader)) {
		w.log.Warn().Str("client_ip", c.ClientIP()).Msg("Rejected event with bad signature")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	ev, err := onebot.ParseEvent(body)
	if err != nil {
		w.log.Warn().Err(err).Msg("Rejected malformed event")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if w.dispatcher.Dispatch(ev) {
		w.log.Debug().
			Str("message_type", ev.MessageType).
			Int64("message_id", ev.MessageID).
			Msg("Event dispatched")
	}
	c.Status(http.StatusNoContent)
}

// VerifySignature checks a OneBot HMAC-SHA1 signature header against body.
func VerifySignature(secret string, body []byte, header string) bool {
	got, ok := strings.CutPrefix(header, "sha1=")
	if !ok {
		return false
	}
	sig, err := hex.DecodeString(got)
	if err != nil {
		return false
	}
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}

// Server is the HTTP listener with graceful shutdown.
type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// New creates a server listening on addr.
func New(addr string, handler http.Handler) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: logger.WithComponent("server"),
	}
}

// Run serves until ctx is done, then shuts down within shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info().Msg("Shutting down HTTP server")
	return s.http.Shutdown(shutdownCtx)
}
