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

package reconcile

import (
	"github.com/zeebo/xxh3"

	"github.com/tochemey/cellar/internal/xsync"
)

// Watermark records, per local property, a digest of the last value this
// node exchanged with the shared map. A matching digest means the value is
// an echo and must not be written again.
//
// Digests keep the memory of the watermark independent of the value sizes.
// The price is that two different values with the same digest would be taken
// for an echo and the second one never pushed. Digests are 128-bit xxh3 so
// that chance stays below 2^-64 even over billions of distinct values.
type Watermark struct {
	digests *xsync.Map[string, xxh3.Uint128]
}

// NewWatermark creates an empty Watermark
func NewWatermark() *Watermark {
	return &Watermark{digests: xsync.NewMap[string, xxh3.Uint128]()}
}

// Matches reports whether value is the last recorded value of key
func (w *Watermark) Matches(key, value string) bool {
	digest, ok := w.digests.Get(key)
	return ok && digest == xxh3.HashString128(value)
}

// Set records value as the last value of key
func (w *Watermark) Set(key, value string) {
	w.digests.Set(key, xxh3.HashString128(value))
}

// Forget drops the record of key
func (w *Watermark) Forget(key string) {
	w.digests.Delete(key)
}

// Seed records every entry of values
func (w *Watermark) Seed(values map[string]string) {
	for key, value := range values {
		w.Set(key, value)
	}
}

// Keys returns the recorded keys
func (w *Watermark) Keys() []string {
	return w.digests.Keys()
}

// Reset drops every record
func (w *Watermark) Reset() {
	w.digests.Reset()
}
