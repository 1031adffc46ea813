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

package cellar

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/tochemey/cellar/log"
	"github.com/tochemey/cellar/synchronizer"
	"github.com/tochemey/cellar/transport"
)

// Option is the interface that applies a configuration option.
type Option interface {
	// Apply sets the Option value of a config.
	Apply(c *config)
}

// enforce compilation error
var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(*config)

// Apply implements Option
func (f OptionFunc) Apply(c *config) {
	f(c)
}

// WithLogger sets the manager logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(c *config) {
		c.logger = logger
	})
}

// WithSynchronizers registers the synchronizers invoked on every join
func WithSynchronizers(synchronizers ...synchronizer.Synchronizer) Option {
	return OptionFunc(func(c *config) {
		c.synchronizers = append(c.synchronizers, synchronizers...)
	})
}

// WithGroupsPID sets the id of the local groups document
func WithGroupsPID(pid string) Option {
	return OptionFunc(func(c *config) {
		c.groupsPID = pid
	})
}

// WithNodePID sets the id of the local node document
func WithNodePID(pid string) Option {
	return OptionFunc(func(c *config) {
		c.nodePID = pid
	})
}

// WithGroupsListProperty sets the property holding the group names in both local documents
func WithGroupsListProperty(property string) Option {
	return OptionFunc(func(c *config) {
		c.groupsListProperty = property
	})
}

// WithReservedPrefixes replaces the prefixes of the local keys that are never shared
func WithReservedPrefixes(prefixes ...string) Option {
	return OptionFunc(func(c *config) {
		c.reservedPrefixes = prefixes
	})
}

// WithMeterProvider sets the otel MeterProvider. The global one is used by default.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return OptionFunc(func(c *config) {
		c.meterProvider = provider
	})
}

// WithResyncInterval enables the periodic pull of the shared configuration
// and the sweep of the node memberships. Zero disables it and is the default.
// Backends that may lose notifications, such as the olric one, need it.
func WithResyncInterval(interval time.Duration) Option {
	return OptionFunc(func(c *config) {
		c.resyncInterval = interval
	})
}

// WithSyncConcurrency bounds the number of synchronizers running at once for a join
func WithSyncConcurrency(concurrency int) Option {
	return OptionFunc(func(c *config) {
		c.syncConcurrency = concurrency
	})
}

// WithShutdownTimeout bounds Stop
func WithShutdownTimeout(timeout time.Duration) Option {
	return OptionFunc(func(c *config) {
		c.shutdownTimeout = timeout
	})
}

// WithOperationTimeout bounds the work triggered by a single store notification
func WithOperationTimeout(timeout time.Duration) Option {
	return OptionFunc(func(c *config) {
		c.operationTimeout = timeout
	})
}

// WithEventHandler sets the handler of the inbound group events.
// Events emitted by the local node are not delivered.
func WithEventHandler(handler func(ctx context.Context, event *transport.Event)) Option {
	return OptionFunc(func(c *config) {
		c.eventHandler = handler
	})
}
