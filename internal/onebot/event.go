// Package onebot adapts the bot to OneBot v11 hosts: the inbound event model
// and the outbound HTTP API.
package onebot

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Post and message types used by the bot.
const (
	PostTypeMessage    = "message"
	MessageTypePrivate = "private"
	MessageTypeGroup   = "group"
)

// Sender describes the author of a message event.
type Sender struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card,omitempty"`
}

// Event is an inbound OneBot event. Only message events carry Message.
type Event struct {
	Time        int64   `json:"time"`
	SelfID      int64   `json:"self_id"`
	PostType    string  `json:"post_type"`
	MessageType string  `json:"message_type,omitempty"`
	SubType     string  `json:"sub_type,omitempty"`
	MessageID   int64   `json:"message_id,omitempty"`
	UserID      int64   `json:"user_id,omitempty"`
	GroupID     int64   `json:"group_id,omitempty"`
	Message     Message `json:"message,omitempty"`
	RawMessage  string  `json:"raw_message,omitempty"`
	Sender      Sender  `json:"sender"`
}

// ParseEvent decodes a webhook payload.
func ParseEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("onebot: decode event: %w", err)
	}
	if ev.PostType == "" {
		return nil, fmt.Errorf("onebot: event has no post_type")
	}
	return &ev, nil
}

// IsMessage reports whether the event is a private or group message.
func (e *Event) IsMessage() bool {
	return e.PostType == PostTypeMessage &&
		(e.MessageType == MessageTypePrivate || e.MessageType == MessageTypeGroup)
}

// Images returns the image segments in message order.
func (e *Event) Images() []Image {
	var images []Image
	for _, seg := range e.Message {
		if img, ok := seg.(Image); ok {
			images = append(images, img)
		}
	}
	return images
}

// FindImage returns the image segment whose file id equals file.
func (e *Event) FindImage(file string) (Image, bool) {
	for _, img := range e.Images() {
		if img.File == file {
			return img, true
		}
	}
	return Image{}, false
}

// PlainText concatenates the text segments.
func (e *Event) PlainText() string {
	var b strings.Builder
	for _, seg := range e.Message {
		if t, ok := seg.(Text); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}
