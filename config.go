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
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/tochemey/cellar/internal/validation"
	"github.com/tochemey/cellar/log"
	"github.com/tochemey/cellar/synchronizer"
	"github.com/tochemey/cellar/transport"
)

const (
	// DefaultGroupsPID is the id of the local document holding the groups and their configuration
	DefaultGroupsPID = "cellar.groups"
	// DefaultNodePID is the id of the local document holding the membership list of the node
	DefaultNodePID = "cellar.node"
	// DefaultGroupsListProperty is the property holding a comma-joined list of group names
	DefaultGroupsListProperty = "groups"

	defaultSyncConcurrency  = 4
	defaultShutdownTimeout  = 5 * time.Second
	defaultOperationTimeout = 5 * time.Second
)

// DefaultReservedPrefixes lists the local keys that never leave the node
var DefaultReservedPrefixes = []string{"service.", "runtime."}

type config struct {
	logger             log.Logger
	synchronizers      []synchronizer.Synchronizer
	groupsPID          string
	nodePID            string
	groupsListProperty string
	reservedPrefixes   []string
	meterProvider      metric.MeterProvider
	resyncInterval     time.Duration
	syncConcurrency    int
	shutdownTimeout    time.Duration
	operationTimeout   time.Duration
	eventHandler       transport.Handler
}

var _ validation.Validator = (*config)(nil)

func defaultConfig() *config {
	return &config{
		logger:             log.DefaultLogger,
		groupsPID:          DefaultGroupsPID,
		nodePID:            DefaultNodePID,
		groupsListProperty: DefaultGroupsListProperty,
		reservedPrefixes:   DefaultReservedPrefixes,
		syncConcurrency:    defaultSyncConcurrency,
		shutdownTimeout:    defaultShutdownTimeout,
		operationTimeout:   defaultOperationTimeout,
	}
}

// Validate implements validation.Validator
func (c *config) Validate() error {
	return validation.New(validation.FailFast()).
		AddAssertion(c.logger != nil, "logger is required").
		AddValidator(validation.NewEmptyStringValidator("groups PID", c.groupsPID)).
		AddValidator(validation.NewEmptyStringValidator("node PID", c.nodePID)).
		AddValidator(validation.NewEmptyStringValidator("groups list property", c.groupsListProperty)).
		AddAssertion(c.groupsPID != c.nodePID, "groups PID and node PID must differ").
		AddAssertion(c.syncConcurrency > 0, "sync concurrency must be greater than 0").
		AddAssertion(c.resyncInterval >= 0, "resync interval must not be negative").
		AddAssertion(c.shutdownTimeout > 0, "shutdown timeout must be greater than 0").
		AddAssertion(c.operationTimeout > 0, "operation timeout must be greater than 0").
		Validate()
}
