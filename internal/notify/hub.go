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

package notify

import (
	"sync"

	"github.com/google/uuid"
)

// Hub fans values out to subscribers, each served by its own Dispatcher
type Hub[T any] struct {
	mu          sync.RWMutex
	subscribers map[string]*Dispatcher[T]
}

// NewHub creates a Hub
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subscribers: make(map[string]*Dispatcher[T])}
}

// Subscribe registers a handler and returns the function that removes it.
// The returned function waits for the in-flight delivery to complete.
func (h *Hub[T]) Subscribe(handler func(T)) func() {
	id := uuid.NewString()
	dispatcher := NewDispatcher(handler)

	h.mu.Lock()
	h.subscribers[id] = dispatcher
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subscribers, id)
		h.mu.Unlock()
		dispatcher.Stop()
	}
}

// Publish delivers the value to every subscriber
func (h *Hub[T]) Publish(value T) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, dispatcher := range h.subscribers {
		dispatcher.Notify(value)
	}
}

// Len returns the number of subscribers
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close stops every subscriber
func (h *Hub[T]) Close() {
	h.mu.Lock()
	subscribers := h.subscribers
	h.subscribers = make(map[string]*Dispatcher[T])
	h.mu.Unlock()

	for _, dispatcher := range subscribers {
		dispatcher.Stop()
	}
}
