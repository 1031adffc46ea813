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

// Package memory provides an in-process shared.Map. A single instance can be
// handed to several nodes of the same process to simulate a cluster.
package memory

import (
	"bytes"
	"context"
	"maps"
	"slices"
	"sync"

	"go.uber.org/atomic"

	"github.com/tochemey/cellar/errors"
	"github.com/tochemey/cellar/internal/notify"
	"github.com/tochemey/cellar/shared"
)

// Map is an in-memory shared.Map
type Map struct {
	mu      sync.RWMutex
	entries map[string][]byte
	hub     *notify.Hub[shared.Event]
	closed  *atomic.Bool
}

// enforce compilation error
var _ shared.Map = (*Map)(nil)

// New creates an empty Map
func New() *Map {
	return &Map{
		entries: make(map[string][]byte),
		hub:     notify.NewHub[shared.Event](),
		closed:  atomic.NewBool(false),
	}
}

// Get returns the value of key
func (m *Map) Get(_ context.Context, key string) ([]byte, error) {
	if m.closed.Load() {
		return nil, errors.ErrStoreClosed
	}

	m.mu.RLock()
	value, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.ErrKeyNotFound
	}
	return bytes.Clone(value), nil
}

// Put stores the value of key
func (m *Map) Put(_ context.Context, key string, value []byte) error {
	if m.closed.Load() {
		return errors.ErrStoreClosed
	}

	m.mu.Lock()
	m.hub.Publish(m.set(key, value))
	m.mu.Unlock()
	return nil
}

// PutIfAbsent stores the value when key has none
func (m *Map) PutIfAbsent(_ context.Context, key string, value []byte) (bool, error) {
	if m.closed.Load() {
		return false, errors.ErrStoreClosed
	}

	m.mu.Lock()
	if _, ok := m.entries[key]; ok {
		m.mu.Unlock()
		return false, nil
	}
	m.hub.Publish(m.set(key, value))
	m.mu.Unlock()
	return true, nil
}

// Remove deletes key
func (m *Map) Remove(_ context.Context, key string) error {
	if m.closed.Load() {
		return errors.ErrStoreClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if previous, ok := m.entries[key]; ok {
		delete(m.entries, key)
		m.hub.Publish(shared.Event{Key: key, OldValue: previous, Kind: shared.Removed})
	}
	return nil
}

// Evict drops key and notifies listeners with shared.Evicted
func (m *Map) Evict(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if previous, ok := m.entries[key]; ok {
		delete(m.entries, key)
		m.hub.Publish(shared.Event{Key: key, OldValue: previous, Kind: shared.Evicted})
	}
}

// PutAll stores every entry
func (m *Map) PutAll(_ context.Context, entries map[string][]byte) error {
	if m.closed.Load() {
		return errors.ErrStoreClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for key, value := range entries {
		m.hub.Publish(m.set(key, value))
	}
	return nil
}

// Keys returns every key in sorted order
func (m *Map) Keys(_ context.Context) ([]string, error) {
	if m.closed.Load() {
		return nil, errors.ErrStoreClosed
	}

	m.mu.RLock()
	keys := slices.Sorted(maps.Keys(m.entries))
	m.mu.RUnlock()
	return keys, nil
}

// Subscribe registers a listener
func (m *Map) Subscribe(_ context.Context, listener shared.Listener) (func(), error) {
	if m.closed.Load() {
		return nil, errors.ErrStoreClosed
	}
	return m.hub.Subscribe(listener), nil
}

// Close stops every subscription. The entries are dropped.
func (m *Map) Close(context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.hub.Close()
	m.mu.Lock()
	clear(m.entries)
	m.mu.Unlock()
	return nil
}

// set must be called with the write lock held. Events are published under
// the same lock so listeners observe the writes of a key in order.
func (m *Map) set(key string, value []byte) shared.Event {
	value = bytes.Clone(value)
	previous, ok := m.entries[key]
	m.entries[key] = value

	kind := shared.Added
	if ok {
		kind = shared.Updated
	}
	return shared.Event{Key: key, OldValue: previous, NewValue: value, Kind: kind}
}
