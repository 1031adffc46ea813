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

// Package nats implements the group channels over NATS core
// publish-subscribe. Each group maps to one subject.
package nats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/nats-io/nats.go"
	"go.uber.org/atomic"

	gerrors "github.com/tochemey/cellar/errors"
	"github.com/tochemey/cellar/internal/codec"
	"github.com/tochemey/cellar/transport"
)

// Factory creates group channels sharing one NATS connection
type Factory struct {
	config     *Config
	connection *nats.Conn
}

// enforce compilation error
var _ transport.Factory = (*Factory)(nil)

// NewFactory connects to the NATS server
func NewFactory(config *Config) (*Factory, error) {
	if config == nil {
		return nil, errors.New("transport/nats: config is nil")
	}

	config.Sanitize()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := nats.GetDefaultOptions()
	opts.Url = config.URL
	opts.Name = config.Name
	opts.Timeout = config.ConnectTimeout
	opts.ReconnectWait = config.ReconnectWait
	opts.MaxReconnect = -1

	var connection *nats.Conn
	// try a few times with an initial delay of 100 ms and a maximum delay of ReconnectWait
	retrier := retry.NewRetrier(config.MaxRetries, 100*time.Millisecond, config.ReconnectWait)
	err := retrier.Run(func() error {
		var err error
		connection, err = opts.Connect()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("transport/nats: failed to connect to %s: %w", config.URL, err)
	}

	return &Factory{config: config, connection: connection}, nil
}

// Subject returns the subject of the group
func (f *Factory) Subject(groupName string) string {
	return f.config.SubjectPrefix + "." + groupName
}

// ProducerFor returns a producer publishing on the subject of the group
func (f *Factory) ProducerFor(_ context.Context, groupName string) (transport.Producer, error) {
	if f.connection.IsClosed() {
		return nil, gerrors.ErrChannelClosed
	}
	return &producer{
		connection: f.connection,
		group:      groupName,
		subject:    f.Subject(groupName),
		closed:     atomic.NewBool(false),
	}, nil
}

// ConsumerFor returns a stopped consumer of the subject of the group
func (f *Factory) ConsumerFor(_ context.Context, groupName string, handler transport.Handler) (transport.Consumer, error) {
	if f.connection.IsClosed() {
		return nil, gerrors.ErrChannelClosed
	}
	return &consumer{
		config:     f.config,
		connection: f.connection,
		group:      groupName,
		subject:    f.Subject(groupName),
		handler:    handler,
		running:    atomic.NewBool(false),
	}, nil
}

// Close drains the subscriptions and closes the connection
func (f *Factory) Close() error {
	if f.connection.IsClosed() {
		return nil
	}
	return f.connection.Drain()
}

type producer struct {
	connection *nats.Conn
	group      string
	subject    string
	closed     *atomic.Bool
}

func (p *producer) Group() string {
	return p.group
}

func (p *producer) Send(_ context.Context, event *transport.Event) error {
	if p.closed.Load() {
		return gerrors.ErrChannelClosed
	}

	stamped := *event
	stamped.Group = p.group
	payload, err := codec.EncodeEvent(&stamped)
	if err != nil {
		return err
	}
	return p.connection.Publish(p.subject, payload)
}

func (p *producer) Close() error {
	p.closed.Store(true)
	return nil
}

type consumer struct {
	config     *Config
	connection *nats.Conn
	group      string
	subject    string
	handler    transport.Handler
	running    *atomic.Bool

	// handler calls hold the read lock so Stop waits for them
	mu           sync.RWMutex
	subscription *nats.Subscription
}

func (c *consumer) Group() string {
	return c.group
}

func (c *consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running.Load() {
		return nil
	}

	handlerCtx := context.WithoutCancel(ctx)
	subscription, err := c.connection.Subscribe(c.subject, func(msg *nats.Msg) {
		c.mu.RLock()
		defer c.mu.RUnlock()
		if !c.running.Load() {
			return
		}

		event, err := codec.DecodeEvent(msg.Data)
		if err != nil {
			c.config.Logger.Warnf("transport/nats: dropping undecodable message on %s: %v", c.subject, err)
			return
		}
		c.handler(handlerCtx, event)
	})
	if err != nil {
		return fmt.Errorf("transport/nats: failed to subscribe to %s: %w", c.subject, err)
	}

	c.subscription = subscription
	c.running.Store(true)
	return nil
}

func (c *consumer) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running.Load() {
		return nil
	}

	c.running.Store(false)
	err := c.subscription.Unsubscribe()
	c.subscription = nil
	if err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
		return fmt.Errorf("transport/nats: failed to unsubscribe from %s: %w", c.subject, err)
	}
	return nil
}

func (c *consumer) IsRunning() bool {
	return c.running.Load()
}
