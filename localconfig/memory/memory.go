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

// Package memory provides a volatile localconfig.Store
package memory

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/tochemey/cellar/errors"
	"github.com/tochemey/cellar/internal/notify"
	"github.com/tochemey/cellar/localconfig"
)

// Store keeps documents in memory
type Store struct {
	mu        sync.RWMutex
	documents map[string]localconfig.Dictionary
	hub       *notify.Hub[string]
	closed    *atomic.Bool
}

// enforce compilation error
var _ localconfig.Store = (*Store)(nil)

// New creates an empty Store
func New() *Store {
	return &Store{
		documents: make(map[string]localconfig.Dictionary),
		hub:       notify.NewHub[string](),
		closed:    atomic.NewBool(false),
	}
}

// GetDocument returns a copy of the document
func (s *Store) GetDocument(_ context.Context, pid string) (localconfig.Dictionary, error) {
	if s.closed.Load() {
		return nil, errors.ErrStoreClosed
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.documents[pid].Clone(), nil
}

// UpdateDocument replaces the document
func (s *Store) UpdateDocument(_ context.Context, pid string, dict localconfig.Dictionary) error {
	if s.closed.Load() {
		return errors.ErrStoreClosed
	}

	s.mu.Lock()
	s.documents[pid] = dict.Clone()
	s.hub.Publish(pid)
	s.mu.Unlock()
	return nil
}

// Subscribe registers a listener
func (s *Store) Subscribe(listener localconfig.Listener) func() {
	return s.hub.Subscribe(listener)
}

// Close stops every listener
func (s *Store) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.hub.Close()
	}
	return nil
}
