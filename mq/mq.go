package mq

import "context"

type MessageQueue interface {
	// Send enqueues body; a positive delay hides it from consumers for that
	// many seconds.
	Send(ctx context.Context, body string, delaySeconds int32) error
	Receive(ctx context.Context, visibilityTimeout int32) (*Message, error)
	Delete(ctx context.Context, msg *Message) error
}

type Message struct {
	Id           string
	Body         string
	ReceiveCount int
}
