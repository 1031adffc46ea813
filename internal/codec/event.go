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

package codec

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/tochemey/cellar/group"
	"github.com/tochemey/cellar/transport"
)

const (
	topicField     = "topic"
	sourceField    = "source"
	payloadField   = "payload"
	timestampField = "timestamp"
)

// EncodeEvent serializes a transport event
func EncodeEvent(event *transport.Event) ([]byte, error) {
	return marshal(map[string]any{
		idField:    event.ID,
		nameField:  event.Group,
		topicField: event.Topic,
		sourceField: map[string]any{
			idField:    event.Source.ID,
			labelField: event.Source.Label,
		},
		payloadField:   base64.StdEncoding.EncodeToString(event.Payload),
		timestampField: event.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

// DecodeEvent deserializes an event produced by EncodeEvent
func DecodeEvent(payload []byte) (*transport.Event, error) {
	st, err := unmarshal(payload)
	if err != nil {
		return nil, err
	}

	fields := st.GetFields()
	event := &transport.Event{
		ID:    fields[idField].GetStringValue(),
		Group: fields[nameField].GetStringValue(),
		Topic: fields[topicField].GetStringValue(),
	}
	if event.ID == "" || event.Group == "" {
		return nil, fmt.Errorf("event id or group is missing")
	}

	source := fields[sourceField].GetStructValue().GetFields()
	event.Source = group.NewNode(source[idField].GetStringValue(), source[labelField].GetStringValue())

	if event.Payload, err = base64.StdEncoding.DecodeString(fields[payloadField].GetStringValue()); err != nil {
		return nil, fmt.Errorf("event payload: %w", err)
	}

	if raw := fields[timestampField].GetStringValue(); raw != "" {
		if event.Timestamp, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return nil, fmt.Errorf("event timestamp: %w", err)
		}
	}
	return event, nil
}
