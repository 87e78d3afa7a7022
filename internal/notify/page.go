package notify

import (
	"context"

	"bandwatch/internal/model"
)

// PageChannel is the in-app notification. The event row already is the
// notification, so there is nothing to send and it cannot be disabled.
type PageChannel struct{}

func NewPageChannel() *PageChannel {
	return &PageChannel{}
}

func (c *PageChannel) Kind() model.ChannelKind { return model.ChannelPage }
func (c *PageChannel) Style() Style            { return StylePlain }
func (c *PageChannel) Validate() error         { return nil }

func (c *PageChannel) Send(_ context.Context, _ Message) (bool, string) {
	return true, "recorded"
}
