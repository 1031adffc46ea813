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

// Package synchronizer defines the hook invoked when the local node joins a group.
// A Synchronizer pulls the shared state of its own domain, for instance bundles
// or features, into the local node.
package synchronizer

import (
	"context"

	"github.com/tochemey/cellar/group"
)

// Synchronizer copies the shared state of one domain for a group into the local node.
// Sync may be called repeatedly and in any order relative to other synchronizers.
type Synchronizer interface {
	// Name identifies the synchronizer in logs
	Name() string
	// Sync pulls the shared state of the group
	Sync(ctx context.Context, grp *group.Group) error
}

// Func adapts a function to the Synchronizer interface
type Func struct {
	name string
	fn   func(ctx context.Context, grp *group.Group) error
}

// enforce compilation error
var _ Synchronizer = (*Func)(nil)

// NewFunc creates a named Synchronizer from fn
func NewFunc(name string, fn func(ctx context.Context, grp *group.Group) error) *Func {
	return &Func{name: name, fn: fn}
}

// Name implements Synchronizer
func (f *Func) Name() string {
	return f.name
}

// Sync implements Synchronizer
func (f *Func) Sync(ctx context.Context, grp *group.Group) error {
	if f.fn == nil {
		return nil
	}
	return f.fn(ctx, grp)
}
