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
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tochemey/olric"

	"github.com/tochemey/cellar/internal/validation"
	"github.com/tochemey/cellar/log"
)

const (
	defaultReadTimeout  = time.Second
	defaultWriteTimeout = time.Second
)

// Config defines the olric backed shared map settings
type Config struct {
	// Client is a connected olric client, embedded or remote. Required.
	Client olric.Client
	// Name is the distributed map name. Required.
	Name string
	// Address is the olric member used for the publish-subscribe change feed.
	// When empty the client picks one.
	Address string
	// Channel is the publish-subscribe channel carrying the changes of the map.
	// Defaults to cellar.<Name>.changes
	Channel string
	// ReadTimeout bounds every read. Defaults to one second.
	ReadTimeout time.Duration
	// WriteTimeout bounds every write. Defaults to one second.
	WriteTimeout time.Duration
	// Logger receives change feed failures. Defaults to log.DiscardLogger.
	Logger log.Logger
}

var _ validation.Validator = (*Config)(nil)

// Validate implements validation.Validator.
func (c *Config) Validate() error {
	return validation.New(validation.FailFast()).
		AddAssertion(c.Client != nil, "Client is required").
		AddValidator(validation.NewEmptyStringValidator("Name", c.Name)).
		AddAssertion(c.ReadTimeout > 0, "ReadTimeout must be greater than 0").
		AddAssertion(c.WriteTimeout > 0, "WriteTimeout must be greater than 0").
		Validate()
}

// Sanitize fills the zero values with their defaults
func (c *Config) Sanitize() {
	if c.Channel == "" && c.Name != "" {
		c.Channel = "cellar." + c.Name + ".changes"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.Logger == nil {
		c.Logger = log.DiscardLogger
	}
}

// changeFeed carries the encoded changes of the map between members
type changeFeed interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error)
}

// pubSubFeed is the changeFeed backed by olric publish-subscribe
type pubSubFeed struct {
	pubsub *olric.PubSub
}

func newPubSubFeed(client olric.Client, address string) (*pubSubFeed, error) {
	var opts []olric.PubSubOption
	if address != "" {
		opts = append(opts, olric.ToAddress(address))
	}

	ps, err := client.NewPubSub(opts...)
	if err != nil {
		return nil, err
	}
	return &pubSubFeed{pubsub: ps}, nil
}

func (f *pubSubFeed) Publish(ctx context.Context, channel string, payload []byte) error {
	_, err := f.pubsub.Publish(ctx, channel, string(payload))
	return err
}

func (f *pubSubFeed) Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error) {
	subscriber := f.pubsub.Subscribe(ctx, channel)
	payloads := make(chan []byte)
	done := make(chan struct{})
	go forward(subscriber.Channel(), payloads, done)

	return payloads, func() error {
		close(done)
		err := subscriber.Close()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

// forward copies the message payloads until messages is closed or done fires
func forward(messages <-chan *redis.Message, payloads chan<- []byte, done <-chan struct{}) {
	defer close(payloads)
	for message := range messages {
		select {
		case payloads <- []byte(message.Payload):
		case <-done:
			return
		}
	}
}
