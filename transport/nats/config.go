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

package nats

import (
	"strings"
	"time"

	"github.com/tochemey/cellar/internal/validation"
	"github.com/tochemey/cellar/log"
)

const (
	defaultSubjectPrefix = "cellar.groups"
	defaultMaxRetries    = 5
)

// Config defines the NATS transport settings
type Config struct {
	// URL is the NATS server address, for instance nats://127.0.0.1:4222
	URL string
	// Name identifies the connection on the server
	Name string
	// SubjectPrefix is prepended to the group name to form the subject. Defaults to cellar.groups
	SubjectPrefix string
	// ConnectTimeout bounds every connection attempt
	ConnectTimeout time.Duration
	// ReconnectWait is the upper bound of the delay between connection attempts
	ReconnectWait time.Duration
	// MaxRetries is the number of initial connection attempts
	MaxRetries int
	// Logger receives dropped messages. Defaults to log.DiscardLogger
	Logger log.Logger
}

var _ validation.Validator = (*Config)(nil)

// Validate implements validation.Validator.
func (c *Config) Validate() error {
	return validation.New(validation.FailFast()).
		AddValidator(validation.NewEmptyStringValidator("URL", c.URL)).
		AddAssertion(!strings.ContainsAny(c.SubjectPrefix, " *>"), "SubjectPrefix must not contain wildcards or spaces").
		AddAssertion(c.MaxRetries > 0, "MaxRetries must be greater than 0").
		Validate()
}

// Sanitize fills the zero values with their defaults
func (c *Config) Sanitize() {
	c.SubjectPrefix = strings.Trim(strings.TrimSpace(c.SubjectPrefix), ".")
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = defaultSubjectPrefix
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 2 * time.Second
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.Logger == nil {
		c.Logger = log.DiscardLogger
	}
}
