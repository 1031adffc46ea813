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

// Package local provides an in-process transport. Every Factory created
// from the same Bus talks to the others, which lets several nodes of one
// process form a cluster in tests.
package local

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/tochemey/cellar/errors"
	"github.com/tochemey/cellar/internal/notify"
	"github.com/tochemey/cellar/internal/xsync"
	"github.com/tochemey/cellar/transport"
)

// Bus routes events to the running consumers of a group
type Bus struct {
	topics *xsync.Map[string, *xsync.Map[string, *consumer]]
}

// NewBus creates an empty Bus
func NewBus() *Bus {
	return &Bus{topics: xsync.NewMap[string, *xsync.Map[string, *consumer]]()}
}

// SubscribersCount returns the number of running consumers of the group
func (b *Bus) SubscribersCount(groupName string) int {
	if subscribers, ok := b.topics.Get(groupName); ok {
		return subscribers.Len()
	}
	return 0
}

func (b *Bus) subscribe(c *consumer) {
	subscribers, _ := b.topics.GetOrSet(c.group, xsync.NewMap[string, *consumer]())
	subscribers.Set(c.id, c)
}

func (b *Bus) unsubscribe(c *consumer) {
	if subscribers, ok := b.topics.Get(c.group); ok {
		subscribers.Delete(c.id)
	}
}

func (b *Bus) publish(event *transport.Event) {
	subscribers, ok := b.topics.Get(event.Group)
	if !ok {
		return
	}
	subscribers.Range(func(_ string, c *consumer) {
		c.deliver(event)
	})
}

// Factory creates channels on a Bus
type Factory struct {
	bus *Bus
}

// enforce compilation error
var _ transport.Factory = (*Factory)(nil)

// NewFactory creates a Factory bound to the bus
func NewFactory(bus *Bus) *Factory {
	return &Factory{bus: bus}
}

// ProducerFor returns a producer publishing on the bus
func (f *Factory) ProducerFor(_ context.Context, groupName string) (transport.Producer, error) {
	return &producer{bus: f.bus, group: groupName, closed: atomic.NewBool(false)}, nil
}

// ConsumerFor returns a stopped consumer
func (f *Factory) ConsumerFor(_ context.Context, groupName string, handler transport.Handler) (transport.Consumer, error) {
	return &consumer{
		id:      uuid.NewString(),
		bus:     f.bus,
		group:   groupName,
		handler: handler,
		running: atomic.NewBool(false),
	}, nil
}

type producer struct {
	bus    *Bus
	group  string
	closed *atomic.Bool
}

func (p *producer) Group() string {
	return p.group
}

func (p *producer) Send(_ context.Context, event *transport.Event) error {
	if p.closed.Load() {
		return errors.ErrChannelClosed
	}
	// consumers get their own copy, the caller keeps its event untouched
	stamped := *event
	stamped.Group = p.group
	stamped.Payload = slices.Clone(event.Payload)
	p.bus.publish(&stamped)
	return nil
}

func (p *producer) Close() error {
	p.closed.Store(true)
	return nil
}

type consumer struct {
	id      string
	bus     *Bus
	group   string
	handler transport.Handler
	running *atomic.Bool

	lifecycle  sync.Mutex
	mu         sync.Mutex
	dispatcher *notify.Dispatcher[*transport.Event]
}

func (c *consumer) Group() string {
	return c.group
}

func (c *consumer) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.running.Load() {
		return nil
	}

	handlerCtx := context.WithoutCancel(ctx)
	dispatcher := notify.NewDispatcher(func(event *transport.Event) {
		c.handler(handlerCtx, event)
	})

	c.mu.Lock()
	c.dispatcher = dispatcher
	c.mu.Unlock()

	c.running.Store(true)
	c.bus.subscribe(c)
	return nil
}

func (c *consumer) Stop(context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if !c.running.Load() {
		return nil
	}

	// the bus lock is taken before c.mu on the publish path
	c.bus.unsubscribe(c)

	c.mu.Lock()
	dispatcher := c.dispatcher
	c.dispatcher = nil
	c.mu.Unlock()

	c.running.Store(false)
	dispatcher.Stop()
	return nil
}

func (c *consumer) IsRunning() bool {
	return c.running.Load()
}

// deliver runs on the publisher goroutine and never blocks
func (c *consumer) deliver(event *transport.Event) {
	c.mu.Lock()
	dispatcher := c.dispatcher
	c.mu.Unlock()
	if dispatcher != nil {
		dispatcher.Notify(event)
	}
}
