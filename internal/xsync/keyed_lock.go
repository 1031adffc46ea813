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

package xsync

import (
	"context"
	"sync"
)

// KeyedLock serializes callers per key while callers of different keys
// proceed in parallel. Waiting honors the caller's context.
type KeyedLock struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	token   chan struct{}
	waiters int
}

// NewKeyedLock creates a KeyedLock
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{slots: make(map[string]*slot)}
}

// Lock acquires the lock of key and returns the function that releases it.
// It fails with the context error when ctx is done before the lock is acquired.
func (l *KeyedLock) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{token: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.waiters++
	l.mu.Unlock()

	select {
	case s.token <- struct{}{}:
		return func() { l.release(key, s) }, nil
	case <-ctx.Done():
		l.mu.Lock()
		l.forget(key, s)
		l.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (l *KeyedLock) release(key string, s *slot) {
	<-s.token
	l.mu.Lock()
	l.forget(key, s)
	l.mu.Unlock()
}

// forget must be called with l.mu held
func (l *KeyedLock) forget(key string, s *slot) {
	s.waiters--
	if s.waiters == 0 {
		delete(l.slots, key)
	}
}
