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

package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/goleak"

	"github.com/tochemey/cellar/errors"
	"github.com/tochemey/cellar/localconfig"
)

func TestStore(t *testing.T) {
	t.Run("With persistence across reopen", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "node", "config.db")

		store, err := Open(path)
		require.NoError(t, err)
		assert.Equal(t, path, store.Path())

		dict, err := store.GetDocument(ctx, "cellar.node")
		require.NoError(t, err)
		assert.Empty(t, dict)

		notifications := atomic.NewInt64(0)
		store.Subscribe(func(pid string) {
			if pid == "cellar.node" {
				notifications.Inc()
			}
		})

		require.NoError(t, store.UpdateDocument(ctx, "cellar.node", localconfig.Dictionary{"groups": "default,g1"}))
		require.Eventually(t, func() bool { return notifications.Load() == 1 }, time.Second, 5*time.Millisecond)
		require.NoError(t, store.Close())

		_, err = store.GetDocument(ctx, "cellar.node")
		require.ErrorIs(t, err, errors.ErrStoreClosed)

		reopened, err := Open(path)
		require.NoError(t, err)
		dict, err = reopened.GetDocument(ctx, "cellar.node")
		require.NoError(t, err)
		assert.Equal(t, localconfig.Dictionary{"groups": "default,g1"}, dict)
		require.NoError(t, reopened.Close())
	})
	t.Run("With canceled context", func(t *testing.T) {
		store, err := Open(filepath.Join(t.TempDir(), "config.db"))
		require.NoError(t, err)
		defer func() { _ = store.Close() }()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, store.UpdateDocument(ctx, "pid", localconfig.Dictionary{}), context.Canceled)
		_, err = store.GetDocument(ctx, "pid")
		require.ErrorIs(t, err, context.Canceled)
	})
	t.Run("With empty document", func(t *testing.T) {
		ctx := context.Background()
		store, err := Open(filepath.Join(t.TempDir(), "config.db"))
		require.NoError(t, err)
		defer func() { _ = store.Close() }()

		require.NoError(t, store.UpdateDocument(ctx, "pid", localconfig.Dictionary{}))
		dict, err := store.GetDocument(ctx, "pid")
		require.NoError(t, err)
		assert.NotNil(t, dict)
		assert.Empty(t, dict)
	})
}
