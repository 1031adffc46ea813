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

// Package olric implements shared.Map on top of an olric distributed map.
// Entries live in the map while changes travel on an olric
// publish-subscribe channel since olric has no native entry listener.
package olric

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/tochemey/olric"
	"go.uber.org/atomic"

	gerrors "github.com/tochemey/cellar/errors"
	"github.com/tochemey/cellar/internal/codec"
	"github.com/tochemey/cellar/internal/notify"
	"github.com/tochemey/cellar/shared"
)

// Map is an olric backed shared.Map
type Map struct {
	config *Config
	dmap   olric.DMap
	feed   changeFeed
	closed *atomic.Bool

	mu       sync.Mutex
	watching map[*subscription]struct{}
}

// enforce compilation error
var _ shared.Map = (*Map)(nil)

type subscription struct {
	close      func() error
	done       chan struct{}
	dispatcher *notify.Dispatcher[shared.Event]
}

// New creates the distributed map and its change feed
func New(config *Config) (*Map, error) {
	if config == nil {
		return nil, errors.New("shared/olric: config is nil")
	}

	config.Sanitize()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	feed, err := newPubSubFeed(config.Client, config.Address)
	if err != nil {
		return nil, fmt.Errorf("shared/olric: failed to create change feed: %w", err)
	}
	return newMap(config, feed)
}

func newMap(config *Config, feed changeFeed) (*Map, error) {
	dmap, err := config.Client.NewDMap(config.Name)
	if err != nil {
		return nil, fmt.Errorf("shared/olric: failed to create map %s: %w", config.Name, err)
	}

	return &Map{
		config:   config,
		dmap:     dmap,
		feed:     feed,
		closed:   atomic.NewBool(false),
		watching: make(map[*subscription]struct{}),
	}, nil
}

// Get returns the value of key
func (m *Map) Get(ctx context.Context, key string) ([]byte, error) {
	if m.closed.Load() {
		return nil, gerrors.ErrStoreClosed
	}

	ctx, cancel := m.readContext(ctx)
	defer cancel()
	return m.get(ctx, key)
}

// Put stores the value of key and publishes the change
func (m *Map) Put(ctx context.Context, key string, value []byte) error {
	if m.closed.Load() {
		return gerrors.ErrStoreClosed
	}

	ctx, cancel := m.writeContext(ctx)
	defer cancel()

	previous, err := m.get(ctx, key)
	if err != nil && !errors.Is(err, gerrors.ErrKeyNotFound) {
		return err
	}

	if err := m.dmap.Put(ctx, key, value); err != nil {
		return gerrors.NewStoreError("put", err)
	}

	kind := shared.Updated
	if previous == nil {
		kind = shared.Added
	}
	m.publish(ctx, shared.Event{Key: key, OldValue: previous, NewValue: value, Kind: kind})
	return nil
}

// PutIfAbsent stores the value when key has none
func (m *Map) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	if m.closed.Load() {
		return false, gerrors.ErrStoreClosed
	}

	ctx, cancel := m.writeContext(ctx)
	defer cancel()

	if err := m.dmap.Put(ctx, key, value, olric.NX()); err != nil {
		if errors.Is(err, olric.ErrKeyFound) {
			return false, nil
		}
		return false, gerrors.NewStoreError("put-if-absent", err)
	}

	m.publish(ctx, shared.Event{Key: key, NewValue: value, Kind: shared.Added})
	return true, nil
}

// Remove deletes key and publishes the change when it existed
func (m *Map) Remove(ctx context.Context, key string) error {
	if m.closed.Load() {
		return gerrors.ErrStoreClosed
	}

	ctx, cancel := m.writeContext(ctx)
	defer cancel()

	previous, err := m.get(ctx, key)
	if err != nil {
		if errors.Is(err, gerrors.ErrKeyNotFound) {
			return nil
		}
		return err
	}

	count, err := m.dmap.Delete(ctx, key)
	if err != nil {
		return gerrors.NewStoreError("remove", err)
	}
	if count > 0 {
		m.publish(ctx, shared.Event{Key: key, OldValue: previous, Kind: shared.Removed})
	}
	return nil
}

// PutAll stores every entry in key order
func (m *Map) PutAll(ctx context.Context, entries map[string][]byte) error {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		if err := m.Put(ctx, key, entries[key]); err != nil {
			return err
		}
	}
	return nil
}

// Keys scans the distributed map
func (m *Map) Keys(ctx context.Context) ([]string, error) {
	if m.closed.Load() {
		return nil, gerrors.ErrStoreClosed
	}

	ctx, cancel := m.readContext(ctx)
	defer cancel()

	scanner, err := m.dmap.Scan(ctx)
	if err != nil {
		return nil, gerrors.NewStoreError("keys", err)
	}
	defer scanner.Close()

	var keys []string
	for scanner.Next() {
		keys = append(keys, scanner.Key())
	}
	slices.Sort(keys)
	return keys, nil
}

// Subscribe listens on the change feed of the map
func (m *Map) Subscribe(_ context.Context, listener shared.Listener) (func(), error) {
	if m.closed.Load() {
		return nil, gerrors.ErrStoreClosed
	}

	payloads, closeFn := m.feed.Subscribe(context.Background(), m.config.Channel)
	sub := &subscription{
		close:      closeFn,
		done:       make(chan struct{}),
		dispatcher: notify.NewDispatcher(listener),
	}

	m.mu.Lock()
	m.watching[sub] = struct{}{}
	m.mu.Unlock()

	go m.consume(payloads, sub)

	return func() {
		m.mu.Lock()
		delete(m.watching, sub)
		m.mu.Unlock()
		m.stop(sub)
	}, nil
}

// Close stops every subscription. The distributed map and the client stay
// untouched since other nodes share them.
func (m *Map) Close(context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	m.mu.Lock()
	subscriptions := make([]*subscription, 0, len(m.watching))
	for sub := range m.watching {
		subscriptions = append(subscriptions, sub)
	}
	clear(m.watching)
	m.mu.Unlock()

	for _, sub := range subscriptions {
		m.stop(sub)
	}
	return nil
}

func (m *Map) consume(payloads <-chan []byte, sub *subscription) {
	defer close(sub.done)
	for payload := range payloads {
		event, err := codec.DecodeChange(payload)
		if err != nil {
			m.config.Logger.Warnf("shared/olric: dropping undecodable change on %s: %v", m.config.Channel, err)
			continue
		}
		sub.dispatcher.Notify(event)
	}
}

func (m *Map) stop(sub *subscription) {
	if err := sub.close(); err != nil {
		m.config.Logger.Warnf("shared/olric: failed to close subscription on %s: %v", m.config.Channel, err)
	}
	<-sub.done
	sub.dispatcher.Stop()
}

func (m *Map) publish(ctx context.Context, event shared.Event) {
	payload, err := codec.EncodeChange(event)
	if err != nil {
		m.config.Logger.Errorf("shared/olric: failed to encode change of key=%s: %v", event.Key, err)
		return
	}
	// olric pubsub is at most once. The entry is stored, and a lost notification
	// is only recovered by the periodic resync of the manager when one is configured.
	if err := m.feed.Publish(ctx, m.config.Channel, payload); err != nil {
		m.config.Logger.Warnf("shared/olric: failed to publish change of key=%s: %v", event.Key, err)
	}
}

func (m *Map) get(ctx context.Context, key string) ([]byte, error) {
	resp, err := m.dmap.Get(ctx, key)
	if err != nil {
		if errors.Is(err, olric.ErrKeyNotFound) {
			return nil, gerrors.ErrKeyNotFound
		}
		return nil, gerrors.NewStoreError("get", err)
	}

	value, err := resp.Byte()
	if err != nil {
		return nil, gerrors.NewStoreError("get", err)
	}
	return value, nil
}

func (m *Map) readContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.config.ReadTimeout)
}

func (m *Map) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.config.WriteTimeout)
}
