package bot_test

import (
	"context"
	"fmt"

	"ocrbot/internal/bot"
	"ocrbot/internal/onebot"
)

func ExampleCommand_Matches() {
	cmd := bot.Command{Name: "提取文字", WakePrefix: "/"}

	ev := &onebot.Event{
		PostType:    onebot.PostTypeMessage,
		MessageType: onebot.MessageTypePrivate,
		Message:     onebot.ParseCQ("/提取文字[CQ:image,file=abc.image]"),
	}
	fmt.Println(cmd.Matches(ev))
	// Output: true
}

func ExampleHandler_Handle() {
	h := bot.NewHandler(nil, nil, nil)

	ev := &onebot.Event{
		PostType:    onebot.PostTypeMessage,
		MessageType: onebot.MessageTypePrivate,
		Message:     onebot.Message{onebot.Text{Text: "/提取文字"}},
	}
	out := h.Handle(context.Background(), ev)
	fmt.Println(out.State, out.Reply)
	// Output: awaiting_image 请发送一张包含文字的图片
}
