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

// Package channels owns the producer and consumer of every group the local node belongs to
package channels

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/multierr"

	"github.com/tochemey/cellar/internal/xsync"
	"github.com/tochemey/cellar/log"
	"github.com/tochemey/cellar/transport"
)

// Pair is the producer and consumer of one group
type Pair struct {
	producer transport.Producer
	consumer transport.Consumer
}

// Producer returns the send side
func (p *Pair) Producer() transport.Producer {
	return p.producer
}

// Consumer returns the receive side
func (p *Pair) Consumer() transport.Consumer {
	return p.consumer
}

// Table maps group names to their Pair
type Table struct {
	factory transport.Factory
	handler transport.Handler
	pairs   *xsync.Map[string, *Pair]
	locks   *xsync.KeyedLock
	logger  log.Logger
}

// New creates an empty Table. Every consumer it starts dispatches to handler.
func New(factory transport.Factory, handler transport.Handler, logger log.Logger) *Table {
	if logger == nil {
		logger = log.DiscardLogger
	}
	return &Table{
		factory: factory,
		handler: handler,
		pairs:   xsync.NewMap[string, *Pair](),
		locks:   xsync.NewKeyedLock(),
		logger:  logger,
	}
}

// Ensure creates and starts the Pair of the group when missing and
// restarts its consumer when stopped
func (t *Table) Ensure(ctx context.Context, groupName string) error {
	unlock, err := t.locks.Lock(ctx, groupName)
	if err != nil {
		return err
	}
	defer unlock()

	if pair, ok := t.pairs.Get(groupName); ok {
		if pair.consumer.IsRunning() {
			return nil
		}
		t.logger.Debugf("channels: restarting consumer of group=%s", groupName)
		if err := pair.consumer.Start(ctx); err != nil {
			return fmt.Errorf("channels: failed to restart consumer of group=%s: %w", groupName, err)
		}
		return nil
	}

	producer, err := t.factory.ProducerFor(ctx, groupName)
	if err != nil {
		return fmt.Errorf("channels: failed to create producer of group=%s: %w", groupName, err)
	}

	consumer, err := t.factory.ConsumerFor(ctx, groupName, t.handler)
	if err != nil {
		return multierr.Append(
			fmt.Errorf("channels: failed to create consumer of group=%s: %w", groupName, err),
			producer.Close())
	}

	if err := consumer.Start(ctx); err != nil {
		return multierr.Append(
			fmt.Errorf("channels: failed to start consumer of group=%s: %w", groupName, err),
			producer.Close())
	}

	t.pairs.Set(groupName, &Pair{producer: producer, consumer: consumer})
	t.logger.Debugf("channels: group=%s channels opened", groupName)
	return nil
}

// Release stops the consumer, closes the producer and drops the Pair.
// No inbound event of the group is dispatched once Release returns.
func (t *Table) Release(ctx context.Context, groupName string) error {
	unlock, err := t.locks.Lock(ctx, groupName)
	if err != nil {
		return err
	}
	defer unlock()

	pair, ok := t.pairs.Pop(groupName)
	if !ok {
		return nil
	}

	if err := release(ctx, pair); err != nil {
		return fmt.Errorf("channels: failed to release group=%s: %w", groupName, err)
	}
	t.logger.Debugf("channels: group=%s channels released", groupName)
	return nil
}

// Get returns the Pair of the group
func (t *Table) Get(groupName string) (*Pair, bool) {
	return t.pairs.Get(groupName)
}

// Producer returns the producer of the group
func (t *Table) Producer(groupName string) (transport.Producer, bool) {
	pair, ok := t.pairs.Get(groupName)
	if !ok {
		return nil, false
	}
	return pair.producer, true
}

// Groups returns the names of the groups with a Pair, sorted
func (t *Table) Groups() []string {
	groups := t.pairs.Keys()
	slices.Sort(groups)
	return groups
}

// Close releases every Pair
func (t *Table) Close(ctx context.Context) error {
	var err error
	for _, groupName := range t.Groups() {
		err = multierr.Append(err, t.Release(ctx, groupName))
	}
	return err
}

func release(ctx context.Context, pair *Pair) error {
	return multierr.Combine(
		pair.consumer.Stop(ctx),
		pair.producer.Close(),
	)
}
