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
	"sync/atomic"
	"unsafe"
)

type item[T any] struct {
	value T
	next  *item[T]
}

// mailbox is an unbounded multi-producer single-consumer FIFO queue.
// reference: https://concurrencyfreaks.blogspot.com/2014/04/multi-producer-single-consumer-queue.html
type mailbox[T any] struct {
	head   *item[T]
	tail   *item[T]
	length int64
	lock   sync.Mutex
}

func newMailbox[T any]() *mailbox[T] {
	stub := new(item[T])
	return &mailbox[T]{head: stub, tail: stub}
}

// push appends at the head. Safe for concurrent producers.
func (m *mailbox[T]) push(value T) {
	next := &item[T]{value: value}
	previous := (*item[T])(atomic.SwapPointer((*unsafe.Pointer)(unsafe.Pointer(&m.head)), unsafe.Pointer(next)))
	atomic.StorePointer((*unsafe.Pointer)(unsafe.Pointer(&previous.next)), unsafe.Pointer(next))
	atomic.AddInt64(&m.length, 1)
}

// pop takes from the tail. Must only be called by the consumer goroutine.
func (m *mailbox[T]) pop() (T, bool) {
	var zero T
	next := (*item[T])(atomic.LoadPointer((*unsafe.Pointer)(unsafe.Pointer(&m.tail.next))))
	if next == nil {
		return zero, false
	}

	m.lock.Lock()
	m.tail = next
	m.lock.Unlock()
	value := next.value
	next.value = zero
	atomic.AddInt64(&m.length, -1)
	return value, true
}

func (m *mailbox[T]) len() int64 {
	return atomic.LoadInt64(&m.length)
}
