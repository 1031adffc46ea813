// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package transport defines the per group channels used to ship domain
// events between the members of a group.
package transport

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tochemey/cellar/group"
)

// Event is a domain event broadcast to the members of a group
type Event struct {
	// ID uniquely identifies the event
	ID string
	// Group is the name of the group the event is scoped to
	Group string
	// Topic names the feature domain that emitted the event, for instance bundle or feature
	Topic string
	// Source is the node that emitted the event
	Source group.Node
	// Payload is the domain specific content
	Payload []byte
	// Timestamp is the emission time
	Timestamp time.Time
}

// NewEvent creates an Event with a fresh id and the current time
func NewEvent(groupName, topic string, source group.Node, payload []byte) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Group:     groupName,
		Topic:     topic,
		Source:    source,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Handler processes inbound events
type Handler func(ctx context.Context, event *Event)

// Producer is the send side of a group channel
type Producer interface {
	// Group returns the group the producer publishes to
	Group() string
	// Send broadcasts the event to the consumers of the group
	Send(ctx context.Context, event *Event) error
	// Close releases the producer. Send fails afterwards
	Close() error
}

// Consumer is the receive side of a group channel
type Consumer interface {
	// Group returns the group the consumer listens to
	Group() string
	// Start begins dispatching inbound events to the handler. Starting a running consumer is a no-op
	Start(ctx context.Context) error
	// Stop ends the dispatching. No handler call starts after Stop returns
	Stop(ctx context.Context) error
	// IsRunning reports whether the consumer dispatches events
	IsRunning() bool
}

// Factory creates the channels of a group
type Factory interface {
	// ProducerFor returns a producer bound to the group
	ProducerFor(ctx context.Context, groupName string) (Producer, error)
	// ConsumerFor returns a stopped consumer bound to the group
	ConsumerFor(ctx context.Context, groupName string, handler Handler) (Consumer, error)
}
