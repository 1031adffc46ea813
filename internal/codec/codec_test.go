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
	"testing"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tochemey/cellar/group"
	"github.com/tochemey/cellar/shared"
	"github.com/tochemey/cellar/transport"
)

func encodeStruct(t *testing.T, fields map[string]any) []byte {
	t.Helper()
	st, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	payload, err := proto.Marshal(st)
	require.NoError(t, err)
	return payload
}

func TestEntry(t *testing.T) {
	t.Run("With groups list", func(t *testing.T) {
		payload, err := EncodeEntry(NewGroupsList(mapset.NewSet("g1", "default")))
		require.NoError(t, err)

		entry, err := DecodeEntry(payload)
		require.NoError(t, err)
		assert.Equal(t, GroupsListEntry, entry.Kind())
		assert.True(t, entry.Groups().Equal(mapset.NewSet("default", "g1")))
		assert.Nil(t, entry.Config())
	})
	t.Run("With empty groups list", func(t *testing.T) {
		payload, err := EncodeEntry(NewGroupsList(nil))
		require.NoError(t, err)

		entry, err := DecodeEntry(payload)
		require.NoError(t, err)
		assert.Equal(t, GroupsListEntry, entry.Kind())
		assert.Zero(t, entry.Groups().Cardinality())
	})
	t.Run("With group config", func(t *testing.T) {
		config := map[string]string{"g1.bundle.a": "installed", "g1.feature.b": "true"}
		entry := NewGroupConfig(config)
		config["g1.bundle.a"] = "mutated"

		payload, err := EncodeEntry(entry)
		require.NoError(t, err)
		decoded, err := DecodeEntry(payload)
		require.NoError(t, err)
		assert.Equal(t, GroupConfigEntry, decoded.Kind())
		assert.Equal(t, map[string]string{"g1.bundle.a": "installed", "g1.feature.b": "true"}, decoded.Config())
	})
	t.Run("With invalid kind", func(t *testing.T) {
		_, err := EncodeEntry(Entry{})
		require.Error(t, err)
		assert.Equal(t, "invalid", InvalidEntry.String())
	})
	t.Run("With malformed payloads", func(t *testing.T) {
		malformed := [][]byte{
			nil,
			[]byte("not a protobuf"),
			encodeStruct(t, map[string]any{"kind": "unknown"}),
			encodeStruct(t, map[string]any{"kind": "groups", "groups": 42}),
			encodeStruct(t, map[string]any{"kind": "config", "config": "flat"}),
			encodeStruct(t, map[string]any{"kind": "config", "config": map[string]any{"k": true}}),
		}
		for _, payload := range malformed {
			_, err := DecodeEntry(payload)
			assert.Error(t, err)
		}
	})
}

func TestGroup(t *testing.T) {
	grp := group.New("g1", group.NewNode("b", "10.0.0.2:5701"), group.NewNode("a", "10.0.0.1:5701"))
	payload, err := EncodeGroup(grp)
	require.NoError(t, err)

	decoded, err := DecodeGroup(payload)
	require.NoError(t, err)
	assert.True(t, grp.Equal(decoded))

	payload, err = EncodeGroup(group.New("empty"))
	require.NoError(t, err)
	decoded, err = DecodeGroup(payload)
	require.NoError(t, err)
	assert.Equal(t, "empty", decoded.Name())
	assert.Zero(t, decoded.Size())

	_, err = DecodeGroup(encodeStruct(t, map[string]any{"members": []any{}}))
	require.Error(t, err)
	_, err = DecodeGroup(encodeStruct(t, map[string]any{"name": "g1", "members": []any{map[string]any{"label": "x"}}}))
	require.Error(t, err)
}

func TestChange(t *testing.T) {
	events := []shared.Event{
		{Key: "g1", NewValue: []byte("v1"), Kind: shared.Added},
		{Key: "g1", OldValue: []byte("v1"), NewValue: []byte("v2"), Kind: shared.Updated},
		{Key: "g1", OldValue: []byte("v2"), Kind: shared.Removed},
		{Key: "g1", NewValue: []byte{}, Kind: shared.Added},
	}
	for _, event := range events {
		payload, err := EncodeChange(event)
		require.NoError(t, err)
		decoded, err := DecodeChange(payload)
		require.NoError(t, err)
		assert.Equal(t, event, decoded)
	}

	_, err := DecodeChange(encodeStruct(t, map[string]any{"change": 1}))
	require.Error(t, err)
}

func TestDictionary(t *testing.T) {
	dict := map[string]string{"groups": "default", "default.k": "v"}
	payload, err := EncodeDictionary(dict)
	require.NoError(t, err)
	decoded, err := DecodeDictionary(payload)
	require.NoError(t, err)
	assert.Equal(t, dict, decoded)

	decoded, err = DecodeDictionary(nil)
	require.NoError(t, err)
	assert.Empty(t, decoded)

	_, err = DecodeDictionary(encodeStruct(t, map[string]any{"k": 1}))
	require.Error(t, err)
}

func TestEvent(t *testing.T) {
	event := transport.NewEvent("g1", "bundle", group.NewNode("a", "10.0.0.1:5701"), []byte("payload"))
	payload, err := EncodeEvent(event)
	require.NoError(t, err)

	decoded, err := DecodeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, event.Group, decoded.Group)
	assert.Equal(t, event.Topic, decoded.Topic)
	assert.Equal(t, event.Source, decoded.Source)
	assert.Equal(t, event.Payload, decoded.Payload)
	assert.True(t, event.Timestamp.Equal(decoded.Timestamp))
	assert.WithinDuration(t, time.Now(), decoded.Timestamp, time.Minute)

	_, err = DecodeEvent(encodeStruct(t, map[string]any{"topic": "bundle"}))
	require.Error(t, err)
}
