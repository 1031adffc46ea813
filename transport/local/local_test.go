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

package local

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/goleak"

	"github.com/tochemey/cellar/errors"
	"github.com/tochemey/cellar/group"
	"github.com/tochemey/cellar/transport"
)

func TestTransport(t *testing.T) {
	t.Run("With events delivered to the group only", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		ctx := context.Background()
		bus := NewBus()
		factory := NewFactory(bus)

		var (
			mu       sync.Mutex
			received []*transport.Event
		)
		consumer, err := factory.ConsumerFor(ctx, "g1", func(_ context.Context, event *transport.Event) {
			mu.Lock()
			received = append(received, event)
			mu.Unlock()
		})
		require.NoError(t, err)
		assert.Equal(t, "g1", consumer.Group())
		assert.False(t, consumer.IsRunning())

		other := atomic.NewInt64(0)
		otherConsumer, err := factory.ConsumerFor(ctx, "g2", func(context.Context, *transport.Event) { other.Inc() })
		require.NoError(t, err)

		require.NoError(t, consumer.Start(ctx))
		require.NoError(t, consumer.Start(ctx))
		require.NoError(t, otherConsumer.Start(ctx))
		assert.True(t, consumer.IsRunning())
		assert.Equal(t, 1, bus.SubscribersCount("g1"))

		producer, err := factory.ProducerFor(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, "g1", producer.Group())

		source := group.NewNode("a", "")
		for range 3 {
			require.NoError(t, producer.Send(ctx, transport.NewEvent("g1", "bundle", source, []byte("p"))))
		}

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(received) == 3
		}, time.Second, 5*time.Millisecond)
		assert.Zero(t, other.Load())

		require.NoError(t, consumer.Stop(ctx))
		require.NoError(t, consumer.Stop(ctx))
		assert.False(t, consumer.IsRunning())
		assert.Zero(t, bus.SubscribersCount("g1"))

		require.NoError(t, producer.Send(ctx, transport.NewEvent("g1", "bundle", source, nil)))
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		assert.Len(t, received, 3)
		mu.Unlock()

		require.NoError(t, producer.Close())
		require.ErrorIs(t, producer.Send(ctx, transport.NewEvent("g1", "bundle", source, nil)), errors.ErrChannelClosed)
		require.NoError(t, otherConsumer.Stop(ctx))
	})
	t.Run("With the caller event left untouched", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		ctx := context.Background()
		factory := NewFactory(NewBus())

		received := make(chan *transport.Event, 1)
		consumer, err := factory.ConsumerFor(ctx, "g1", func(_ context.Context, event *transport.Event) {
			received <- event
		})
		require.NoError(t, err)
		require.NoError(t, consumer.Start(ctx))

		producer, err := factory.ProducerFor(ctx, "g1")
		require.NoError(t, err)

		event := transport.NewEvent("other", "bundle", group.NewNode("a", ""), []byte("p"))
		require.NoError(t, producer.Send(ctx, event))
		assert.Equal(t, "other", event.Group)
		event.Payload[0] = 'x'

		select {
		case got := <-received:
			assert.Equal(t, "g1", got.Group)
			assert.Equal(t, event.ID, got.ID)
			assert.Equal(t, []byte("p"), got.Payload)
			assert.NotSame(t, event, got)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}

		require.NoError(t, consumer.Stop(ctx))
		require.NoError(t, producer.Close())
	})
	t.Run("With restart after stop", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		ctx := context.Background()
		factory := NewFactory(NewBus())
		count := atomic.NewInt64(0)
		consumer, err := factory.ConsumerFor(ctx, "g1", func(context.Context, *transport.Event) { count.Inc() })
		require.NoError(t, err)
		producer, err := factory.ProducerFor(ctx, "g1")
		require.NoError(t, err)

		require.NoError(t, consumer.Start(ctx))
		require.NoError(t, consumer.Stop(ctx))
		require.NoError(t, consumer.Start(ctx))

		require.NoError(t, producer.Send(ctx, transport.NewEvent("g1", "feature", group.NewNode("a", ""), nil)))
		require.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, 5*time.Millisecond)
		require.NoError(t, consumer.Stop(ctx))
	})
}
