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

package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "github.com/tochemey/cellar/errors"
	"github.com/tochemey/cellar/group"
	"github.com/tochemey/cellar/log"
	"github.com/tochemey/cellar/shared/memory"
)

type copierMock struct {
	mu     sync.Mutex
	copies [][2]string
	err    error
}

func (c *copierMock) CopyGroupConfig(_ context.Context, source, target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.copies = append(c.copies, [2]string{source, target})
	return c.err
}

func TestCreateGroup(t *testing.T) {
	t.Run("With new group", func(t *testing.T) {
		ctx := context.Background()
		copier := new(copierMock)
		registry := New(memory.New(), copier, log.DiscardLogger)

		grp, created, err := registry.CreateGroup(ctx, "g1")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "g1", grp.Name())
		assert.Zero(t, grp.Size())
		assert.Equal(t, [][2]string{{group.Default, "g1"}}, copier.copies)

		// idempotent
		again, created, err := registry.CreateGroup(ctx, "g1")
		require.NoError(t, err)
		assert.False(t, created)
		assert.True(t, grp.Equal(again))
		assert.Len(t, copier.copies, 1)
	})
	t.Run("With default group", func(t *testing.T) {
		copier := new(copierMock)
		registry := New(memory.New(), copier, nil)
		_, created, err := registry.CreateGroup(context.Background(), group.Default)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Empty(t, copier.copies)
	})
	t.Run("With copy failure", func(t *testing.T) {
		copier := &copierMock{err: errors.New("local store unavailable")}
		registry := New(memory.New(), copier, log.DiscardLogger)
		_, created, err := registry.CreateGroup(context.Background(), "g1")
		require.NoError(t, err)
		assert.True(t, created)
	})
	t.Run("With invalid names", func(t *testing.T) {
		registry := New(memory.New(), nil, log.DiscardLogger)
		for _, name := range []string{"", "a.b", "a,b", "-a", "a b"} {
			_, _, err := registry.CreateGroup(context.Background(), name)
			require.Error(t, err, name)
		}
		_, _, err := registry.CreateGroup(context.Background(), "a.b")
		require.ErrorIs(t, err, gerrors.ErrInvalidGroupName)
	})
	t.Run("With racing creators", func(t *testing.T) {
		ctx := context.Background()
		groups := memory.New()
		first := New(groups, nil, log.DiscardLogger)
		second := New(groups, nil, log.DiscardLogger)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
		)
		for _, registry := range []*Registry{first, second} {
			wg.Add(1)
			go func(registry *Registry) {
				defer wg.Done()
				_, ok, err := registry.CreateGroup(ctx, "g1")
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}(registry)
		}
		wg.Wait()
		assert.Equal(t, 1, created)
	})
	t.Run("With closed store", func(t *testing.T) {
		ctx := context.Background()
		groups := memory.New()
		require.NoError(t, groups.Close(ctx))
		registry := New(groups, nil, log.DiscardLogger)
		_, _, err := registry.CreateGroup(ctx, "g1")
		require.ErrorIs(t, err, gerrors.ErrStoreClosed)
	})
}

func TestDeleteGroup(t *testing.T) {
	ctx := context.Background()
	registry := New(memory.New(), nil, log.DiscardLogger)
	_, _, err := registry.CreateGroup(ctx, group.Default)
	require.NoError(t, err)
	_, _, err = registry.CreateGroup(ctx, "g1")
	require.NoError(t, err)

	deleted, err := registry.DeleteGroup(ctx, group.Default)
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = registry.DeleteGroup(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = registry.DeleteGroup(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = registry.Find(ctx, "g1")
	require.ErrorIs(t, err, gerrors.ErrGroupNotFound)
	_, err = registry.Find(ctx, group.Default)
	require.NoError(t, err)
}

func TestMembers(t *testing.T) {
	ctx := context.Background()
	groups := memory.New()
	registry := New(groups, nil, log.DiscardLogger)
	nodeA := group.NewNode("a", "10.0.0.1:5701")
	nodeB := group.NewNode("b", "10.0.0.2:5701")

	for _, name := range []string{"g2", group.Default, "g1"} {
		_, _, err := registry.CreateGroup(ctx, name)
		require.NoError(t, err)
	}

	grp, err := registry.AddMember(ctx, "g1", nodeA)
	require.NoError(t, err)
	assert.True(t, grp.HasMember(nodeA))

	_, err = registry.AddMember(ctx, "g1", nodeB)
	require.NoError(t, err)
	_, err = registry.AddMember(ctx, group.Default, nodeA)
	require.NoError(t, err)

	// adding twice leaves the same members
	grp, err = registry.AddMember(ctx, "g1", nodeA)
	require.NoError(t, err)
	assert.Equal(t, []group.Node{nodeA, nodeB}, grp.Members())

	all, err := registry.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, group.Default, all[0].Name())
	assert.Equal(t, "g1", all[1].Name())
	assert.Equal(t, "g2", all[2].Name())

	forA, err := registry.ListForNode(ctx, nodeA)
	require.NoError(t, err)
	require.Len(t, forA, 2)
	assert.Equal(t, group.Default, forA[0].Name())
	assert.Equal(t, "g1", forA[1].Name())

	names, err := registry.Names(ctx)
	require.NoError(t, err)
	assert.True(t, names.Contains(group.Default, "g1", "g2"))

	grp, err = registry.RemoveMember(ctx, "g1", nodeA)
	require.NoError(t, err)
	assert.Equal(t, []group.Node{nodeB}, grp.Members())

	grp, err = registry.RemoveMember(ctx, "unknown", nodeA)
	require.NoError(t, err)
	assert.Nil(t, grp)

	// unknown groups are created on first member
	grp, err = registry.AddMember(ctx, "g3", nodeA)
	require.NoError(t, err)
	assert.True(t, grp.HasMember(nodeA))

	// malformed entries are skipped
	require.NoError(t, groups.Put(ctx, "broken", []byte("not a group")))
	all, err = registry.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	_, err = registry.Find(ctx, "broken")
	require.ErrorIs(t, err, gerrors.ErrMalformedEntry)
}

func TestWatch(t *testing.T) {
	ctx := context.Background()
	registry := New(memory.New(), nil, log.DiscardLogger)

	var (
		mu    sync.Mutex
		names []string
	)
	unsubscribe, err := registry.Watch(ctx, func(name string) {
		mu.Lock()
		names = append(names, name)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsubscribe()

	_, _, err = registry.CreateGroup(ctx, "g1")
	require.NoError(t, err)
	_, err = registry.AddMember(ctx, "g1", group.NewNode("a", ""))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(names) == 2
	}, time.Second, 10*time.Millisecond)
}
