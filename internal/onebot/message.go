package onebot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// SegmentKind tags the variants of Segment.
type SegmentKind string

const (
	KindText    SegmentKind = "text"
	KindImage   SegmentKind = "image"
	KindUnknown SegmentKind = ""
)

// Segment is one part of a chat message. The concrete types are Text, Image
// and Unknown; switch on Kind() or on the type.
type Segment interface {
	Kind() SegmentKind
}

// Text is a plain text segment.
type Text struct {
	Text string
}

func (Text) Kind() SegmentKind { return KindText }

// Image is an image attachment. File is the platform file id; URL and Path
// are filled when the host provides them.
type Image struct {
	File string
	URL  string
	Path string
}

func (Image) Kind() SegmentKind { return KindImage }

// Unknown preserves any segment type the bot does not interpret.
type Unknown struct {
	Type string
	Data map[string]string
}

func (Unknown) Kind() SegmentKind { return KindUnknown }

// Message is an ordered list of segments. It decodes from both the array
// post format and the CQ-code string format.
type Message []Segment

type rawSegment struct {
	Type string                     `json:"type"`
	Data map[string]json.RawMessage `json:"data"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = nil
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = ParseCQ(s)
		return nil
	}

	var raw []rawSegment
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("onebot: decode message: %w", err)
	}

	msg := make(Message, 0, len(raw))
	for _, r := range raw {
		msg = append(msg, newSegment(r.Type, flattenData(r.Data)))
	}
	*m = msg
	return nil
}

// MarshalJSON encodes the message in array format.
func (m Message) MarshalJSON() ([]byte, error) {
	out := make([]map[string]any, 0, len(m))
	for _, seg := range m {
		switch s := seg.(type) {
		case Text:
			out = append(out, map[string]any{"type": "text", "data": map[string]string{"text": s.Text}})
		case Image:
			data := map[string]string{"file": s.File}
			if s.URL != "" {
				data["url"] = s.URL
			}
			out = append(out, map[string]any{"type": "image", "data": data})
		case Unknown:
			out = append(out, map[string]any{"type": s.Type, "data": s.Data})
		}
	}
	return json.Marshal(out)
}

// flattenData converts segment data values to strings; hosts disagree on
// whether ids and flags are sent as numbers or strings.
func flattenData(data map[string]json.RawMessage) map[string]string {
	out := make(map[string]string, len(data))
	for key, value := range data {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			out[key] = s
			continue
		}
		out[key] = string(value)
	}
	return out
}

func newSegment(kind string, data map[string]string) Segment {
	switch SegmentKind(kind) {
	case KindText:
		return Text{Text: data["text"]}
	case KindImage:
		return Image{File: data["file"], URL: data["url"], Path: data["path"]}
	default:
		return Unknown{Type: kind, Data: data}
	}
}

// ParseCQ parses a CQ-code message string such as
// "/提取文字[CQ:image,file=abc.image,url=https://...]".
func ParseCQ(s string) Message {
	var msg Message
	for len(s) > 0 {
		start := strings.Index(s, "[CQ:")
		if start < 0 {
			msg = appendText(msg, s)
			break
		}
		end := strings.IndexByte(s[start:], ']')
		if end < 0 {
			msg = appendText(msg, s)
			break
		}
		end += start

		msg = appendText(msg, s[:start])
		msg = append(msg, parseCQCode(s[start+len("[CQ:"):end]))
		s = s[end+1:]
	}
	return msg
}

func appendText(msg Message, s string) Message {
	if s == "" {
		return msg
	}
	return append(msg, Text{Text: unescapeCQ(s, false)})
}

func parseCQCode(body string) Segment {
	parts := strings.Split(body, ",")
	data := make(map[string]string, len(parts)-1)
	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		data[key] = unescapeCQ(value, true)
	}
	return newSegment(parts[0], data)
}

var (
	textUnescaper  = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&amp;", "&")
	paramUnescaper = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&#44;", ",", "&amp;", "&")
)

func unescapeCQ(s string, param bool) string {
	if param {
		return paramUnescaper.Replace(s)
	}
	return textUnescaper.Replace(s)
}
