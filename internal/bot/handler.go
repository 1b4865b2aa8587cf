// Package bot implements the "extract text" command: fetch the first image of
// a message, recognize it and produce a single reply.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"ocrbot/internal/logger"
	"ocrbot/internal/media"
	"ocrbot/internal/metrics"
	"ocrbot/internal/ocr"
	"ocrbot/internal/onebot"
)

// User-facing replies.
const (
	ReplyNoImage         = "请发送一张包含文字的图片"
	ReplyDownloadFailed  = "图片下载失败"
	ReplyNoText          = "未识别到文字，请检查图片清晰度"
	ReplyTextPrefix      = "图片中的文字内容：\n"
	ReplyAuthFailed      = "OCR服务认证失败"
	ReplyRecognizeFailed = "OCR识别失败: "
	ReplyProcessFailed   = "OCR处理失败: "
)

// State is a step of a command invocation.
type State int

const (
	StateAwaitingImage State = iota
	StateDownloading
	StateRecognizing
	StateRepliedSuccess
	StateRepliedEmpty
	StateRepliedError
)

func (s State) String() string {
	switch s {
	case StateAwaitingImage:
		return "awaiting_image"
	case StateDownloading:
		return "downloading"
	case StateRecognizing:
		return "recognizing"
	case StateRepliedSuccess:
		return "replied_success"
	case StateRepliedEmpty:
		return "replied_empty"
	case StateRepliedError:
		return "replied_error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is the result of one invocation. Err keeps the failure cause so
// callers can tell error kinds apart; Reply is what the user sees.
type Outcome struct {
	State State
	Reply string
	Err   error
}

// Fetcher resolves an image attachment to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, ev *onebot.Event, fileID string) (*media.Download, error)
}

// Cleaner deletes temporary files later.
type Cleaner interface {
	Schedule(paths ...string)
}

// Handler runs the extract-text command.
type Handler struct {
	fetcher    Fetcher
	recognizer ocr.Recognizer
	cleaner    Cleaner
}

// NewHandler wires the command's collaborators.
func NewHandler(fetcher Fetcher, recognizer ocr.Recognizer, cleaner Cleaner) *Handler {
	return &Handler{
		fetcher:    fetcher,
		recognizer: recognizer,
		cleaner:    cleaner,
	}
}

// Handle processes one command event. It always returns an Outcome with a
// reply; panics in collaborators are reported through the catch-all reply.
func (h *Handler) Handle(ctx context.Context, ev *onebot.Event) (out Outcome) {
	log := zerolog.Ctx(ctx)
	if log.GetLevel() == zerolog.Disabled {
		l := logger.WithComponent("bot")
		log = &l
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			log.Error().Err(err).Msg("OCR command panicked")
			out = failed(err)
		}
		metrics.CommandsTotal.WithLabelValues(out.State.String()).Inc()
	}()

	images := ev.Images()
	if len(images) == 0 {
		return Outcome{State: StateAwaitingImage, Reply: ReplyNoImage}
	}
	if len(images) > 1 {
		log.Debug().Int("images", len(images)).Msg("Only the first image is processed")
	}

	fileID := images[0].File
	dl, err := h.fetcher.Fetch(ctx, ev, fileID)
	if err != nil {
		log.Error().Err(err).Str("file_id", fileID).Msg("Image download failed")
		return Outcome{State: StateRepliedError, Reply: ReplyDownloadFailed, Err: err}
	}
	if dl == nil || dl.Local.Path == "" {
		err := fmt.Errorf("%w: fetcher returned no local path", media.ErrIO)
		return Outcome{State: StateRepliedError, Reply: ReplyDownloadFailed, Err: err}
	}

	text, err := h.recognize(ctx, log, dl)

	if err != nil {
		log.Error().Err(err).Msg("OCR recognition failed")
		return recognitionFailed(err)
	}

	if strings.TrimSpace(text) == "" {
		return Outcome{State: StateRepliedEmpty, Reply: ReplyNoText}
	}

	log.Info().Int("text_length", len(text)).Msg("OCR command succeeded")
	return Outcome{State: StateRepliedSuccess, Reply: ReplyTextPrefix + text}
}

// recognize runs the recognizer and schedules cleanup whatever the result,
// including when the recognizer panics.
func (h *Handler) recognize(ctx context.Context, log *zerolog.Logger, dl *media.Download) (string, error) {
	defer func() {
		if paths := dl.Paths(); len(paths) > 0 {
			log.Debug().
				Strs("paths", paths).
				Dur("artifact_age", time.Since(dl.Local.CreatedAt)).
				Msg("Scheduling temporary file cleanup")
			h.cleaner.Schedule(paths...)
		}
	}()
	return h.recognizer.Recognize(ctx, dl.Local.Path)
}

func recognitionFailed(err error) Outcome {
	var providerErr *ocr.ProviderError
	switch {
	case errors.Is(err, ocr.ErrUnauthenticated):
		return Outcome{State: StateRepliedError, Reply: ReplyAuthFailed, Err: err}
	case errors.As(err, &providerErr):
		return Outcome{State: StateRepliedError, Reply: ReplyRecognizeFailed + providerErr.Message, Err: err}
	default:
		return failed(err)
	}
}

func failed(err error) Outcome {
	return Outcome{State: StateRepliedError, Reply: ReplyProcessFailed + err.Error(), Err: err}
}
