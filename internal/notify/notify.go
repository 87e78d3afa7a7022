// Package notify delivers rendered alert messages through the configured
// notification channels.
//
// Every channel reports its outcome as a success flag plus a human readable
// detail string. Configuration problems are reported before any network I/O,
// and multi-endpoint channels succeed only when every endpoint succeeds.
package notify

import (
	"context"
	"errors"
	"fmt"

	"bandwatch/internal/model"
)

var (
	ErrNotEnabled   = errors.New("not enabled")
	ErrMissingField = errors.New("missing field")
)

// Message is one rendered notification.
type Message struct {
	Subject string
	Body    string
	Event   model.AlertEvent
}

type Channel interface {
	Kind() model.ChannelKind
	Style() Style
	// Validate reports ErrNotEnabled or ErrMissingField without touching the network.
	Validate() error
	Send(ctx context.Context, msg Message) (bool, string)
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}
