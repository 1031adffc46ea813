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

package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tochemey/cellar/errors"
	"github.com/tochemey/cellar/shared"
)

type recorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *recorder) listen(event shared.Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []shared.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shared.Event(nil), r.events...)
}

func TestMap(t *testing.T) {
	t.Run("With CRUD operations", func(t *testing.T) {
		ctx := context.Background()
		store := New()

		_, err := store.Get(ctx, "k")
		require.ErrorIs(t, err, errors.ErrKeyNotFound)

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

		require.NoError(t, store.PutAll(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")}))
		keys, err := store.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "j", "k"}, keys)

		require.NoError(t, store.Remove(ctx, "k"))
		require.NoError(t, store.Remove(ctx, "missing"))
		_, err = store.Get(ctx, "k")
		require.ErrorIs(t, err, errors.ErrKeyNotFound)

		require.NoError(t, store.Close(ctx))
		require.ErrorIs(t, store.Put(ctx, "k", nil), errors.ErrStoreClosed)
		_, err = store.Keys(ctx)
		require.ErrorIs(t, err, errors.ErrStoreClosed)
	})
	t.Run("With values copied", func(t *testing.T) {
		ctx := context.Background()
		store := New()
		value := []byte("v1")
		require.NoError(t, store.Put(ctx, "k", value))
		value[0] = 'x'

		actual, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), actual)
		require.NoError(t, store.Close(ctx))
	})
	t.Run("With change notifications", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		ctx := context.Background()
		store := New()
		rec := new(recorder)
		unsubscribe, err := store.Subscribe(ctx, rec.listen)
		require.NoError(t, err)

		require.NoError(t, store.Put(ctx, "k", []byte("v1")))
		require.NoError(t, store.Put(ctx, "k", []byte("v2")))
		require.NoError(t, store.Remove(ctx, "k"))
		require.NoError(t, store.Put(ctx, "e", []byte("v")))
		store.Evict("e")

		require.Eventually(t, func() bool { return len(rec.snapshot()) == 5 }, time.Second, 5*time.Millisecond)
		events := rec.snapshot()
		assert.Equal(t, shared.Event{Key: "k", NewValue: []byte("v1"), Kind: shared.Added}, events[0])
		assert.Equal(t, shared.Event{Key: "k", OldValue: []byte("v1"), NewValue: []byte("v2"), Kind: shared.Updated}, events[1])
		assert.Equal(t, shared.Event{Key: "k", OldValue: []byte("v2"), Kind: shared.Removed}, events[2])
		assert.Equal(t, shared.Evicted, events[4].Kind)
		assert.Nil(t, events[4].NewValue)

		unsubscribe()
		require.NoError(t, store.Put(ctx, "k", []byte("v3")))
		time.Sleep(20 * time.Millisecond)
		assert.Len(t, rec.snapshot(), 5)

		require.NoError(t, store.Close(ctx))
	})
}

func TestEventKind(t *testing.T) {
	assert.Equal(t, "added", shared.Added.String())
	assert.Equal(t, "updated", shared.Updated.String())
	assert.Equal(t, "removed", shared.Removed.String())
	assert.Equal(t, "evicted", shared.Evicted.String())
	assert.Equal(t, "unknown", shared.EventKind(42).String())
}
