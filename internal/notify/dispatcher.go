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

// Package notify delivers change notifications asynchronously. Each
// Dispatcher owns one goroutine so a handler never runs on the goroutine
// that produced the notification, which lets producers hold locks the
// handlers also need.
package notify

import (
	"sync"

	"go.uber.org/atomic"
)

// Dispatcher delivers values to a handler in FIFO order on a dedicated goroutine
type Dispatcher[T any] struct {
	handler func(T)
	queue   *mailbox[T]
	signal  chan struct{}
	stop    chan struct{}
	done    chan struct{}
	running *atomic.Bool
	once    sync.Once
}

// NewDispatcher creates and starts a Dispatcher
func NewDispatcher[T any](handler func(T)) *Dispatcher[T] {
	d := &Dispatcher[T]{
		handler: handler,
		queue:   newMailbox[T](),
		signal:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		running: atomic.NewBool(true),
	}
	go d.run()
	return d
}

// Notify enqueues the value without blocking.
// It returns false when the dispatcher is stopped.
func (d *Dispatcher[T]) Notify(value T) bool {
	if !d.running.Load() {
		return false
	}
	d.queue.push(value)
	select {
	case d.signal <- struct{}{}:
	default:
	}
	return true
}

// Pending returns the number of values waiting for delivery
func (d *Dispatcher[T]) Pending() int64 {
	return d.queue.len()
}

// Stop waits for the in-flight handler call to return and drops pending values.
// No handler call starts after Stop returns. It must not be called from the handler.
func (d *Dispatcher[T]) Stop() {
	d.once.Do(func() {
		d.running.Store(false)
		close(d.stop)
	})
	<-d.done
}

func (d *Dispatcher[T]) run() {
	defer close(d.done)
	for {
		select {
		case <-d.stop:
			return
		case <-d.signal:
			for d.running.Load() {
				value, ok := d.queue.pop()
				if !ok {
					break
				}
				d.handler(value)
			}
		}
	}
}
