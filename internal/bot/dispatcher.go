package bot

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"ocrbot/internal/logger"
	"ocrbot/internal/onebot"
)

// replyTimeout bounds send_msg separately from the command timeout.
const replyTimeout = 10 * time.Second

// Command matches the trigger text of the extract-text command.
type Command struct {
	Name       string
	WakePrefix string
}

// Matches reports whether the event's text invokes the command. The wake
// prefix is optional; anything after the command name is ignored.
func (c Command) Matches(ev *onebot.Event) bool {
	if !ev.IsMessage() || c.Name == "" {
		return false
	}
	text := strings.TrimSpace(ev.PlainText())
	if c.WakePrefix != "" {
		text = strings.TrimPrefix(text, c.WakePrefix)
	}
	if !strings.HasPrefix(text, c.Name) {
		return false
	}
	rest := text[len(c.Name):]
	return rest == "" || strings.TrimLeft(rest, " \t\r\n") != rest
}

// Replier sends a reply to where an event came from.
type Replier interface {
	Reply(ctx context.Context, ev *onebot.Event, text string) error
}

// Dispatcher runs matching events through the handler on their own
// goroutines and sends the replies.
type Dispatcher struct {
	command Command
	handler *Handler
	replier Replier
	timeout time.Duration
	log     zerolog.Logger

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher. timeout bounds fetching and recognition
// of each command.
func NewDispatcher(command Command, handler *Handler, replier Replier, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		command: command,
		handler: handler,
		replier: replier,
		timeout: timeout,
		log:     logger.WithComponent("dispatcher"),
	}
}

// Dispatch starts handling ev if it invokes the command and reports whether it did.
func (d *Dispatcher) Dispatch(ev *onebot.Event) bool {
	if !d.command.Matches(ev) {
		return false
	}

	d.log.Debug().Int64("message_id", ev.MessageID).Msg("Dispatching OCR command")
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ev)
	}()
	return true
}

// Wait blocks until every dispatched command has finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run(ev *onebot.Event) {
	requestID := uuid.NewString()
	log := logger.WithRequestID("bot", requestID).With().
		Str("message_type", ev.MessageType).
		Int64("user_id", ev.UserID).
		Int64("group_id", ev.GroupID).
		Int64("message_id", ev.MessageID).
		Logger()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	ctx = log.WithContext(ctx)

	start := time.Now()
	out := d.handler.Handle(ctx, ev)

	replyCtx, cancelReply := context.WithTimeout(log.WithContext(context.Background()), replyTimeout)
	defer cancelReply()
	if err := d.replier.Reply(replyCtx, ev, out.Reply); err != nil {
		log.Error().Err(err).Msg("Failed to send reply")
		return
	}

	log.Info().
		Str("state", out.State.String()).
		Dur("duration", time.Since(start)).
		Msg("OCR command handled")
}
