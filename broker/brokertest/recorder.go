// Package brokertest provides an in-memory broker.Publisher for tests.
package brokertest

import (
	"context"
	"sync"

	"event-registration-system/broker"
)

// Recorder keeps published messages in memory.
type Recorder struct {
	mu       sync.Mutex
	Messages []broker.RegistrationMessage
}

func (r *Recorder) Publish(_ context.Context, msg broker.RegistrationMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, msg)
	return nil
}

func (r *Recorder) Close() {}

// Types returns the routing keys recorded so far, in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Messages))
	for i, m := range r.Messages {
		out[i] = m.Type
	}
	return out
}
