package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"ocrbot/internal/onebot"
)

type fakeReplier struct {
	mu      sync.Mutex
	replies []string
}

func (f *fakeReplier) Reply(ctx context.Context, ev *onebot.Event, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, text)
	return nil
}

func textEvent(text string) *onebot.Event {
	return &onebot.Event{
		PostType:    onebot.PostTypeMessage,
		MessageType: onebot.MessageTypeGroup,
		GroupID:     42,
		Message:     onebot.Message{onebot.Text{Text: text}},
	}
}

func TestCommandMatches(t *testing.T) {
	cmd := Command{Name: "提取文字", WakePrefix: "/"}

	tests := []struct {
		text string
		want bool
	}{
		{"/提取文字", true},
		{"提取文字", true},
		{"  /提取文字  ", true},
		{"/提取文字 please", true},
		{"/提取文字了", false},
		{"你好", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := cmd.Matches(textEvent(tt.text)); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}

	notice := &onebot.Event{PostType: "notice", Message: onebot.Message{onebot.Text{Text: "/提取文字"}}}
	if cmd.Matches(notice) {
		t.Errorf("non-message events must not match")
	}
}

func TestDispatcherRepliesOnce(t *testing.T) {
	replier := &fakeReplier{}
	h := NewHandler(&fakeFetcher{}, &fakeRecognizer{}, &fakeCleaner{})
	d := NewDispatcher(Command{Name: "提取文字", WakePrefix: "/"}, h, replier, time.Second)

	if d.Dispatch(textEvent("hello")) {
		t.Fatalf("unrelated message dispatched")
	}
	if !d.Dispatch(textEvent("/提取文字")) {
		t.Fatalf("command not dispatched")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	replier.mu.Lock()
	defer replier.mu.Unlock()
	if len(replier.replies) != 1 || replier.replies[0] != ReplyNoImage {
		t.Fatalf("unexpected replies: %v", replier.replies)
	}
}
