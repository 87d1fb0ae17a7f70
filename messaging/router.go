package messaging

import (
	"context"
	"fmt"

	"github.com/ruteri/heirloom/interfaces"
)

// Router dispatches each message to the messenger registered for its channel.
type Router struct {
	routes   map[interfaces.Channel]interfaces.Messenger
	fallback interfaces.Messenger
}

// NewRouter creates a router. fallback may be nil, in which case messages on
// unrouted channels fail.
func NewRouter(fallback interfaces.Messenger) *Router {
	return &Router{
		routes:   make(map[interfaces.Channel]interfaces.Messenger),
		fallback: fallback,
	}
}

// Handle registers m for channel, replacing any previous registration.
func (r *Router) Handle(channel interfaces.Channel, m interfaces.Messenger) *Router {
	r.routes[channel] = m
	return r
}

func (r *Router) Send(ctx context.Context, msg interfaces.Message) error {
	m, ok := r.routes[msg.Channel]
	if !ok {
		m = r.fallback
	}
	if m == nil {
		return fmt.Errorf("%w: no messenger for channel %q", interfaces.ErrMessagingFailure, msg.Channel)
	}
	return m.Send(ctx, msg)
}
