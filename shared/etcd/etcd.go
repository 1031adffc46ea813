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

// Package etcd implements shared.Map on top of an etcd cluster.
// Each map lives under its own namespace and change notifications come
// from an etcd watch on that namespace.
package etcd

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/namespace"
	"go.uber.org/atomic"

	gerrors "github.com/tochemey/cellar/errors"
	"github.com/tochemey/cellar/internal/notify"
	"github.com/tochemey/cellar/shared"
)

// maxTxnOps stays under the etcd server default of 128 operations per transaction
const maxTxnOps = 64

const rewatchDelay = time.Second

// Map is an etcd backed shared.Map
type Map struct {
	config    *Config
	client    *clientv3.Client
	kv        clientv3.KV
	watcher   clientv3.Watcher
	closeFunc func(*clientv3.Client) error
	closed    *atomic.Bool

	mu       sync.Mutex
	watching map[*subscription]struct{}
}

// enforce compilation error
var _ shared.Map = (*Map)(nil)

type subscription struct {
	cancel     context.CancelFunc
	done       chan struct{}
	dispatcher *notify.Dispatcher[shared.Event]
}

// New connects to etcd and returns the Map scoped to config.Namespace
func New(config *Config) (*Map, error) {
	return newMap(config, clientv3.New, func(client *clientv3.Client) error { return client.Close() })
}

func newMap(config *Config, clientFunc func(clientv3.Config) (*clientv3.Client, error), closeFunc func(*clientv3.Client) error) (*Map, error) {
	if config == nil {
		return nil, errors.New("shared/etcd: config is nil")
	}

	config.Sanitize()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := clientFunc(clientv3.Config{
		Endpoints:   config.Endpoints,
		DialTimeout: config.DialTimeout,
		TLS:         config.TLS,
		Username:    config.Username,
		Password:    config.Password,
		Context:     config.Context,
	})
	if err != nil {
		return nil, err
	}

	// the cluster may still be electing a leader right after boot
	retrier := retry.NewRetrier(3, 100*time.Millisecond, config.DialTimeout)
	err = retrier.RunContext(config.Context, func(ctx context.Context) error {
		statusCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
		defer cancel()
		_, err := client.Status(statusCtx, config.Endpoints[0])
		return err
	})
	if err != nil {
		if cerr := closeFunc(client); cerr != nil {
			return nil, errors.Join(err, fmt.Errorf("failed to close etcd client: %w", cerr))
		}
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	prefix := normalizeNamespace(config.Namespace)
	return &Map{
		config:    config,
		client:    client,
		kv:        namespace.NewKV(client.KV, prefix),
		watcher:   namespace.NewWatcher(client.Watcher, prefix),
		closeFunc: closeFunc,
		closed:    atomic.NewBool(false),
		watching:  make(map[*subscription]struct{}),
	}, nil
}

// Get returns the value of key
func (m *Map) Get(ctx context.Context, key string) ([]byte, error) {
	if m.closed.Load() {
		return nil, gerrors.ErrStoreClosed
	}

	opCtx, cancel := m.withTimeout(ctx)
	defer cancel()

	resp, err := m.kv.Get(opCtx, key)
	if err != nil {
		return nil, gerrors.NewStoreError("get", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, gerrors.ErrKeyNotFound
	}
	return resp.Kvs[0].Value, nil
}

// Put stores the value of key
func (m *Map) Put(ctx context.Context, key string, value []byte) error {
	if m.closed.Load() {
		return gerrors.ErrStoreClosed
	}

	opCtx, cancel := m.withTimeout(ctx)
	defer cancel()

	if _, err := m.kv.Put(opCtx, key, string(value)); err != nil {
		return gerrors.NewStoreError("put", err)
	}
	return nil
}

// PutIfAbsent stores the value when key has never been created
func (m *Map) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	if m.closed.Load() {
		return false, gerrors.ErrStoreClosed
	}

	opCtx, cancel := m.withTimeout(ctx)
	defer cancel()

	resp, err := m.kv.Txn(opCtx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, string(value))).
		Commit()
	if err != nil {
		return false, gerrors.NewStoreError("put-if-absent", err)
	}
	return resp.Succeeded, nil
}

// Remove deletes key
func (m *Map) Remove(ctx context.Context, key string) error {
	if m.closed.Load() {
		return gerrors.ErrStoreClosed
	}

	opCtx, cancel := m.withTimeout(ctx)
	defer cancel()

	if _, err := m.kv.Delete(opCtx, key); err != nil {
		return gerrors.NewStoreError("remove", err)
	}
	return nil
}

// PutAll stores every entry, in batches of transactions
func (m *Map) PutAll(ctx context.Context, entries map[string][]byte) error {
	if m.closed.Load() {
		return gerrors.ErrStoreClosed
	}

	keys := slices.Sorted(maps.Keys(entries))
	for batch := range slices.Chunk(keys, maxTxnOps) {
		ops := make([]clientv3.Op, 0, len(batch))
		for _, key := range batch {
			ops = append(ops, clientv3.OpPut(key, string(entries[key])))
		}

		opCtx, cancel := m.withTimeout(ctx)
		_, err := m.kv.Txn(opCtx).Then(ops...).Commit()
		cancel()
		if err != nil {
			return gerrors.NewStoreError("put-all", err)
		}
	}
	return nil
}

// Keys returns every key of the namespace in sorted order
func (m *Map) Keys(ctx context.Context) ([]string, error) {
	if m.closed.Load() {
		return nil, gerrors.ErrStoreClosed
	}

	opCtx, cancel := m.withTimeout(ctx)
	defer cancel()

	resp, err := m.kv.Get(opCtx, "", clientv3.WithPrefix(), clientv3.WithKeysOnly(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, gerrors.NewStoreError("keys", err)
	}

	keys := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		keys = append(keys, string(kv.Key))
	}
	return keys, nil
}

// Subscribe watches the namespace and forwards changes to the listener.
// The watch outlives ctx and stops when the returned function is called.
func (m *Map) Subscribe(_ context.Context, listener shared.Listener) (func(), error) {
	if m.closed.Load() {
		return nil, gerrors.ErrStoreClosed
	}

	watchCtx, cancel := context.WithCancel(clientv3.WithRequireLeader(m.config.Context))
	sub := &subscription{
		cancel:     cancel,
		done:       make(chan struct{}),
		dispatcher: notify.NewDispatcher(listener),
	}

	m.mu.Lock()
	m.watching[sub] = struct{}{}
	m.mu.Unlock()

	go m.watch(watchCtx, sub)

	return func() {
		m.mu.Lock()
		delete(m.watching, sub)
		m.mu.Unlock()
		sub.stop()
	}, nil
}

// Close stops every watch and closes the client
func (m *Map) Close(context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	m.mu.Lock()
	subscriptions := slices.Collect(maps.Keys(m.watching))
	clear(m.watching)
	m.mu.Unlock()

	for _, sub := range subscriptions {
		sub.stop()
	}
	return m.closeFunc(m.client)
}

func (m *Map) watch(ctx context.Context, sub *subscription) {
	defer close(sub.done)

	var revision int64
	for {
		opts := []clientv3.OpOption{clientv3.WithPrefix(), clientv3.WithPrevKV()}
		if revision > 0 {
			opts = append(opts, clientv3.WithRev(revision+1))
		}

		for resp := range m.watcher.Watch(ctx, "", opts...) {
			if err := resp.Err(); err != nil {
				if errors.Is(err, rpctypes.ErrCompacted) {
					revision = 0
				}
				m.config.Logger.Warnf("shared/etcd: watch on %s interrupted: %v", m.config.Namespace, err)
				break
			}

			for _, ev := range resp.Events {
				sub.dispatcher.Notify(toEvent(ev))
				revision = ev.Kv.ModRevision
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(rewatchDelay):
		}
	}
}

func (s *subscription) stop() {
	s.cancel()
	<-s.done
	s.dispatcher.Stop()
}

func toEvent(ev *clientv3.Event) shared.Event {
	event := shared.Event{Key: string(ev.Kv.Key)}
	if ev.PrevKv != nil {
		event.OldValue = ev.PrevKv.Value
	}

	switch {
	case ev.Type == clientv3.EventTypeDelete:
		event.Kind = shared.Removed
	case ev.IsCreate():
		event.Kind = shared.Added
		event.NewValue = ev.Kv.Value
	default:
		event.Kind = shared.Updated
		event.NewValue = ev.Kv.Value
	}
	return event
}

func (m *Map) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = m.config.Context
	}
	return context.WithTimeout(ctx, m.config.Timeout)
}

func normalizeNamespace(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultNamespace + "/"
	}
	if strings.HasSuffix(trimmed, "/") {
		return trimmed
	}
	return trimmed + "/"
}
