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

package etcd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	testcontainer "github.com/testcontainers/testcontainers-go/modules/etcd"

	gerrors "github.com/tochemey/cellar/errors"
	"github.com/tochemey/cellar/shared"
)

var etcdEndpoints []string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := testcontainer.Run(ctx, "gcr.io/etcd-development/etcd:v3.5.14")
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	endpoints, err := container.ClientEndpoints(ctx)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		_ = testcontainers.TerminateContainer(container)
		os.Exit(1)
	}

	etcdEndpoints = endpoints

	code := m.Run()
	_ = testcontainers.TerminateContainer(container)
	os.Exit(code)
}

func newTestMap(t *testing.T) *Map {
	t.Helper()
	store, err := New(&Config{
		Endpoints: etcdEndpoints,
		Namespace: "/cellar-test/" + uuid.NewString(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func TestNew(t *testing.T) {
	t.Run("With nil config", func(t *testing.T) {
		store, err := New(nil)
		require.Error(t, err)
		require.Nil(t, store)
	})
	t.Run("With invalid config", func(t *testing.T) {
		store, err := New(&Config{})
		require.EqualError(t, err, "Endpoints must not be empty")
		require.Nil(t, store)
	})
	t.Run("With defaults", func(t *testing.T) {
		config := &Config{Endpoints: etcdEndpoints}
		store, err := New(config)
		require.NoError(t, err)
		assert.Equal(t, defaultNamespace, config.Namespace)
		assert.Equal(t, 5*time.Second, config.Timeout)
		assert.NotNil(t, config.Context)
		require.NoError(t, store.Close(context.Background()))
		require.NoError(t, store.Close(context.Background()))
	})
}

func TestMap(t *testing.T) {
	t.Run("With CRUD operations", func(t *testing.T) {
		ctx := context.Background()
		store := newTestMap(t)

		_, err := store.Get(ctx, "k")
		require.ErrorIs(t, err, gerrors.ErrKeyNotFound)

		require.NoError(t, store.Put(ctx, "k", []byte("v1")))
		value, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), value)

		stored, err := store.PutIfAbsent(ctx, "k", []byte("v2"))
		require.NoError(t, err)
		assert.False(t, stored)

		stored, err = store.PutIfAbsent(ctx, "j", []byte("v2"))
		require.NoError(t, err)
		assert.True(t, stored)

		entries := make(map[string][]byte)
		for i := range 100 {
			entries[fmt.Sprintf("bulk-%03d", i)] = []byte("v")
		}
		require.NoError(t, store.PutAll(ctx, entries))

		keys, err := store.Keys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, 102)
		assert.Equal(t, "bulk-000", keys[0])
		assert.Equal(t, "k", keys[len(keys)-1])

		require.NoError(t, store.Remove(ctx, "k"))
		require.NoError(t, store.Remove(ctx, "missing"))
		_, err = store.Get(ctx, "k")
		require.ErrorIs(t, err, gerrors.ErrKeyNotFound)
	})
	t.Run("With namespace isolation", func(t *testing.T) {
		ctx := context.Background()
		first := newTestMap(t)
		second := newTestMap(t)

		require.NoError(t, first.Put(ctx, "k", []byte("v")))
		_, err := second.Get(ctx, "k")
		require.ErrorIs(t, err, gerrors.ErrKeyNotFound)
	})
	t.Run("With change notifications", func(t *testing.T) {
		ctx := context.Background()
		store := newTestMap(t)

		var (
			mu     sync.Mutex
			events []shared.Event
		)
		unsubscribe, err := store.Subscribe(ctx, func(event shared.Event) {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
		})
		require.NoError(t, err)
		// let the watch register before writing
		time.Sleep(200 * time.Millisecond)

		require.NoError(t, store.Put(ctx, "k", []byte("v1")))
		require.NoError(t, store.Put(ctx, "k", []byte("v2")))
		require.NoError(t, store.Remove(ctx, "k"))

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(events) == 3
		}, 5*time.Second, 10*time.Millisecond)

		mu.Lock()
		assert.Equal(t, shared.Event{Key: "k", NewValue: []byte("v1"), Kind: shared.Added}, events[0])
		assert.Equal(t, shared.Event{Key: "k", OldValue: []byte("v1"), NewValue: []byte("v2"), Kind: shared.Updated}, events[1])
		assert.Equal(t, shared.Event{Key: "k", OldValue: []byte("v2"), Kind: shared.Removed}, events[2])
		mu.Unlock()

		unsubscribe()
	})
	t.Run("With closed map", func(t *testing.T) {
		ctx := context.Background()
		store := newTestMap(t)
		require.NoError(t, store.Close(ctx))

		require.ErrorIs(t, store.Put(ctx, "k", nil), gerrors.ErrStoreClosed)
		_, err := store.Subscribe(ctx, func(shared.Event) {})
		require.ErrorIs(t, err, gerrors.ErrStoreClosed)
	})
}
