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

// Package localconfig defines the node local configuration documents.
// A document is a flat dictionary addressed by a persistent id (PID) and
// every update fires a change notification, including the updates this
// module makes itself.
package localconfig

import (
	"context"
	"maps"
)

// Dictionary is the content of a configuration document
type Dictionary map[string]string

// Clone returns a copy of the dictionary. A nil dictionary yields an empty one.
func (d Dictionary) Clone() Dictionary {
	if d == nil {
		return make(Dictionary)
	}
	return maps.Clone(d)
}

// Equal reports whether both dictionaries hold the same entries
func (d Dictionary) Equal(other Dictionary) bool {
	return maps.Equal(d, other)
}

// Listener receives the PID of an updated document on a goroutine owned by the subscription
type Listener func(pid string)

// Store persists configuration documents
type Store interface {
	// GetDocument returns a copy of the document. A missing document yields an empty dictionary.
	GetDocument(ctx context.Context, pid string) (Dictionary, error)
	// UpdateDocument replaces the whole document and notifies the listeners
	UpdateDocument(ctx context.Context, pid string, dict Dictionary) error
	// Subscribe registers a listener and returns the function that removes it
	Subscribe(listener Listener) func()
	// Close releases the store
	Close() error
}
