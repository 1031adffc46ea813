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

	"github.com/tochemey/cellar/shared"
)

const (
	keyField      = "key"
	changeField   = "change"
	oldValueField = "old"
	newValueField = "new"
)

// EncodeChange serializes a shared map change for backends that ship
// their own change feed
func EncodeChange(event shared.Event) ([]byte, error) {
	fields := map[string]any{
		keyField:    event.Key,
		changeField: float64(event.Kind),
	}
	if event.OldValue != nil {
		fields[oldValueField] = base64.StdEncoding.EncodeToString(event.OldValue)
	}
	if event.NewValue != nil {
		fields[newValueField] = base64.StdEncoding.EncodeToString(event.NewValue)
	}
	return marshal(fields)
}

// DecodeChange deserializes a change produced by EncodeChange
func DecodeChange(payload []byte) (shared.Event, error) {
	st, err := unmarshal(payload)
	if err != nil {
		return shared.Event{}, err
	}

	fields := st.GetFields()
	event := shared.Event{
		Key:  fields[keyField].GetStringValue(),
		Kind: shared.EventKind(fields[changeField].GetNumberValue()),
	}
	if event.Key == "" {
		return shared.Event{}, fmt.Errorf("change key is missing")
	}

	if value, ok := fields[oldValueField]; ok {
		if event.OldValue, err = base64.StdEncoding.DecodeString(value.GetStringValue()); err != nil {
			return shared.Event{}, err
		}
	}
	if value, ok := fields[newValueField]; ok {
		if event.NewValue, err = base64.StdEncoding.DecodeString(value.GetStringValue()); err != nil {
			return shared.Event{}, err
		}
	}
	return event, nil
}
