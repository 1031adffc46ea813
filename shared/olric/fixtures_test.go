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

package olric

import (
	"context"
	"reflect"
	"slices"
	"sync"
	"time"
	"unsafe"

	"github.com/tochemey/olric"
	"github.com/tochemey/olric/pkg/storage"
	"github.com/tochemey/olric/stats"
)

type fakeClient struct {
	dmap       *fakeDMap
	newDMapErr error
}

// nolint
func (x *fakeClient) NewDMap(name string, options ...olric.DMapOption) (olric.DMap, error) {
	if x.newDMapErr != nil {
		return nil, x.newDMapErr
	}
	return x.dmap, nil
}

// nolint
func (x *fakeClient) NewPubSub(options ...olric.PubSubOption) (*olric.PubSub, error) {
	panic("unexpected call to NewPubSub")
}

// nolint
func (x *fakeClient) Stats(ctx context.Context, address string, options ...olric.StatsOption) (stats.Stats, error) {
	return stats.Stats{}, nil
}

// nolint
func (x *fakeClient) Ping(ctx context.Context, address, message string) (string, error) {
	return "", nil
}

// nolint
func (x *fakeClient) RoutingTable(ctx context.Context) (olric.RoutingTable, error) {
	return nil, nil
}

// nolint
func (x *fakeClient) Members(ctx context.Context) ([]olric.Member, error) {
	return nil, nil
}

// nolint
func (x *fakeClient) RefreshMetadata(ctx context.Context) error {
	return nil
}

// nolint
func (x *fakeClient) Close(ctx context.Context) error {
	return nil
}

// fakeDMap keeps its entries in memory and honors olric.NX
type fakeDMap struct {
	mu      sync.Mutex
	entries map[string][]byte
	putErr  error
}

func newFakeDMap() *fakeDMap {
	return &fakeDMap{entries: make(map[string][]byte)}
}

func (x *fakeDMap) Name() string { return "fake-dmap" }

// nolint
func (x *fakeDMap) Put(ctx context.Context, key string, value any, options ...olric.PutOption) error {
	if x.putErr != nil {
		return x.putErr
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if len(options) > 0 {
		// the only option used by the map is olric.NX
		if _, ok := x.entries[key]; ok {
			return olric.ErrKeyFound
		}
	}
	x.entries[key] = append([]byte(nil), value.([]byte)...)
	return nil
}

// nolint
func (x *fakeDMap) Get(ctx context.Context, key string) (*olric.GetResponse, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	value, ok := x.entries[key]
	if !ok {
		return nil, olric.ErrKeyNotFound
	}
	return newGetResponseWithValue(value), nil
}

// nolint
func (x *fakeDMap) Delete(ctx context.Context, keys ...string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	count := 0
	for _, key := range keys {
		if _, ok := x.entries[key]; ok {
			delete(x.entries, key)
			count++
		}
	}
	return count, nil
}

// nolint
func (x *fakeDMap) Incr(ctx context.Context, key string, delta int) (int, error) {
	panic("unexpected call to Incr")
}

// nolint
func (x *fakeDMap) Decr(ctx context.Context, key string, delta int) (int, error) {
	panic("unexpected call to Decr")
}

// nolint
func (x *fakeDMap) GetPut(ctx context.Context, key string, value any) (*olric.GetResponse, error) {
	panic("unexpected call to GetPut")
}

// nolint
func (x *fakeDMap) IncrByFloat(ctx context.Context, key string, delta float64) (float64, error) {
	panic("unexpected call to IncrByFloat")
}

// nolint
func (x *fakeDMap) Expire(ctx context.Context, key string, timeout time.Duration) error {
	panic("unexpected call to Expire")
}

// nolint
func (x *fakeDMap) Lock(ctx context.Context, key string, deadline time.Duration) (olric.LockContext, error) {
	panic("unexpected call to Lock")
}

// nolint
func (x *fakeDMap) LockWithTimeout(ctx context.Context, key string, timeout, deadline time.Duration) (olric.LockContext, error) {
	panic("unexpected call to LockWithTimeout")
}

// nolint
func (x *fakeDMap) Scan(ctx context.Context, options ...olric.ScanOption) (olric.Iterator, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	keys := make([]string, 0, len(x.entries))
	for key := range x.entries {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return &iteratorStub{keys: keys}, nil
}

// nolint
func (x *fakeDMap) Destroy(ctx context.Context) error {
	panic("unexpected call to Destroy")
}

// nolint
func (x *fakeDMap) Pipeline(opts ...olric.PipelineOption) (*olric.DMapPipeline, error) {
	panic("unexpected call to Pipeline")
}

type iteratorStub struct {
	keys  []string
	index int
}

func (i *iteratorStub) Next() bool {
	if i.index < len(i.keys) {
		i.index++
		return true
	}
	return false
}

func (i *iteratorStub) Key() string {
	if i.index == 0 || i.index > len(i.keys) {
		return ""
	}
	return i.keys[i.index-1]
}

func (i *iteratorStub) Close() {}

type testEntry struct {
	key        string
	value      []byte
	ttl        int64
	timestamp  int64
	lastAccess int64
}

func (e *testEntry) SetKey(key string) { e.key = key }

func (e *testEntry) Key() string { return e.key }

func (e *testEntry) SetValue(value []byte) { e.value = append([]byte(nil), value...) }

func (e *testEntry) Value() []byte { return append([]byte(nil), e.value...) }

func (e *testEntry) SetTTL(ttl int64) { e.ttl = ttl }

func (e *testEntry) TTL() int64 { return e.ttl }

func (e *testEntry) SetTimestamp(ts int64) { e.timestamp = ts }

func (e *testEntry) Timestamp() int64 { return e.timestamp }

func (e *testEntry) SetLastAccess(ts int64) { e.lastAccess = ts }

func (e *testEntry) LastAccess() int64 { return e.lastAccess }

func (e *testEntry) Encode() []byte { return e.Value() }

func (e *testEntry) Decode(data []byte) { e.SetValue(data) }

func newGetResponseWithValue(value []byte) *olric.GetResponse {
	entry := &testEntry{}
	entry.SetValue(value)
	return newGetResponse(entry)
}

func newGetResponse(entry storage.Entry) *olric.GetResponse {
	resp := &olric.GetResponse{}
	rv := reflect.ValueOf(resp).Elem()
	entryField := rv.FieldByName("entry")
	reflect.NewAt(entryField.Type(), unsafe.Pointer(entryField.UnsafeAddr())).Elem().Set(reflect.ValueOf(entry))
	return resp
}

// memoryFeed fans payloads out to every subscriber of a channel
type memoryFeed struct {
	mu          sync.Mutex
	subscribers map[string][]chan []byte
}

func newMemoryFeed() *memoryFeed {
	return &memoryFeed{subscribers: make(map[string][]chan []byte)}
}

func (f *memoryFeed) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, subscriber := range f.subscribers[channel] {
		subscriber <- payload
	}
	return nil
}

func (f *memoryFeed) Subscribe(_ context.Context, channel string) (<-chan []byte, func() error) {
	payloads := make(chan []byte, 64)
	f.mu.Lock()
	f.subscribers[channel] = append(f.subscribers[channel], payloads)
	f.mu.Unlock()

	return payloads, func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.subscribers[channel] = slices.DeleteFunc(f.subscribers[channel], func(c chan []byte) bool {
			return c == payloads
		})
		close(payloads)
		return nil
	}
}
