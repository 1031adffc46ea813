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

// Package shared defines the replicated key-value map every node sees.
// The registry keeps one Map of groups and the reconciler one Map of
// configuration entries. Backends live in the sub packages.
package shared

import (
	"context"
)

// EventKind describes how an entry changed
type EventKind int

const (
	// Added is fired when a key gets its first value
	Added EventKind = iota
	// Updated is fired when an existing value is replaced
	Updated
	// Removed is fired when a key is deleted
	Removed
	// Evicted is fired when the backend drops a key on its own, for instance on lease expiry
	Evicted
)

// String returns the lower-case name of the kind
func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	case Evicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Event is an entry change delivered to local listeners.
// NewValue is nil for Removed and Evicted events.
type Event struct {
	Key      string
	OldValue []byte
	NewValue []byte
	Kind     EventKind
}

// Listener receives entry changes. Backends deliver at least once, in order
// for a given key, on a goroutine owned by the subscription.
type Listener func(Event)

// Map is a replicated mapping from string keys to opaque values
type Map interface {
	// Get returns the value of key or errors.ErrKeyNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores the value of key
	Put(ctx context.Context, key string, value []byte) error
	// PutIfAbsent stores the value only when key has none and reports whether it did
	PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	// Remove deletes key. Removing a missing key is not an error
	Remove(ctx context.Context, key string) error
	// PutAll stores every entry
	PutAll(ctx context.Context, entries map[string][]byte) error
	// Keys returns every key currently stored
	Keys(ctx context.Context) ([]string, error)
	// Subscribe registers a listener and returns the function that removes it
	Subscribe(ctx context.Context, listener Listener) (func(), error)
	// Close releases the backend resources
	Close(ctx context.Context) error
}
