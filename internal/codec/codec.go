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

// Package codec encodes the values this module stores in the shared maps and
// ships over transports. Every payload is a protobuf Struct so the wire form
// stays self-describing without generated code.
package codec

import (
	"fmt"
	"maps"

	mapset "github.com/deckarep/golang-set/v2"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tochemey/cellar/group"
)

// GroupsKey is the shared configuration key holding the list of all group names
const GroupsKey = ".groups"

// EntryKind tags the variant held by an Entry
type EntryKind int

const (
	// InvalidEntry is the zero value of EntryKind
	InvalidEntry EntryKind = iota
	// GroupsListEntry carries the set of group names
	GroupsListEntry
	// GroupConfigEntry carries the configuration of a single group
	GroupConfigEntry
)

const (
	groupsListTag  = "groups"
	groupConfigTag = "config"

	kindField    = "kind"
	groupsField  = "groups"
	configField  = "config"
	nameField    = "name"
	membersField = "members"
	idField      = "id"
	labelField   = "label"
)

// String returns the tag of the kind
func (k EntryKind) String() string {
	switch k {
	case GroupsListEntry:
		return groupsListTag
	case GroupConfigEntry:
		return groupConfigTag
	default:
		return "invalid"
	}
}

// Entry is a shared configuration value: either the list of all group
// names or the flat configuration of one group.
type Entry struct {
	kind   EntryKind
	groups mapset.Set[string]
	config map[string]string
}

// NewGroupsList creates a GroupsListEntry
func NewGroupsList(names mapset.Set[string]) Entry {
	if names == nil {
		names = mapset.NewSet[string]()
	}
	return Entry{kind: GroupsListEntry, groups: names.Clone()}
}

// NewGroupConfig creates a GroupConfigEntry
func NewGroupConfig(config map[string]string) Entry {
	return Entry{kind: GroupConfigEntry, config: maps.Clone(config)}
}

// Kind returns the variant of the entry
func (e Entry) Kind() EntryKind {
	return e.kind
}

// Groups returns the group names of a GroupsListEntry, nil otherwise
func (e Entry) Groups() mapset.Set[string] {
	return e.groups
}

// Config returns the configuration of a GroupConfigEntry, nil otherwise
func (e Entry) Config() map[string]string {
	return e.config
}

// EncodeEntry serializes an entry
func EncodeEntry(entry Entry) ([]byte, error) {
	fields := make(map[string]any, 2)
	switch entry.kind {
	case GroupsListEntry:
		fields[kindField] = groupsListTag
		fields[groupsField] = group.FormatNames(entry.groups)
	case GroupConfigEntry:
		config := make(map[string]any, len(entry.config))
		for k, v := range entry.config {
			config[k] = v
		}
		fields[kindField] = groupConfigTag
		fields[configField] = config
	default:
		return nil, fmt.Errorf("cannot encode entry of kind %s", entry.kind)
	}
	return marshal(fields)
}

// DecodeEntry deserializes an entry produced by EncodeEntry
func DecodeEntry(payload []byte) (Entry, error) {
	st, err := unmarshal(payload)
	if err != nil {
		return Entry{}, err
	}

	fields := st.GetFields()
	switch tag := fields[kindField].GetStringValue(); tag {
	case groupsListTag:
		value, ok := fields[groupsField].GetKind().(*structpb.Value_StringValue)
		if !ok {
			return Entry{}, fmt.Errorf("groups list is not a string")
		}
		return Entry{kind: GroupsListEntry, groups: group.ParseNames(value.StringValue)}, nil
	case groupConfigTag:
		nested := fields[configField].GetStructValue()
		if nested == nil {
			return Entry{}, fmt.Errorf("group config is not a dictionary")
		}
		config := make(map[string]string, len(nested.GetFields()))
		for k, v := range nested.GetFields() {
			value, ok := v.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return Entry{}, fmt.Errorf("group config value for %q is not a string", k)
			}
			config[k] = value.StringValue
		}
		return Entry{kind: GroupConfigEntry, config: config}, nil
	default:
		return Entry{}, fmt.Errorf("unknown entry kind %q", tag)
	}
}

// EncodeGroup serializes a group with its members
func EncodeGroup(grp *group.Group) ([]byte, error) {
	members := make([]any, 0, grp.Size())
	for _, member := range grp.Members() {
		members = append(members, map[string]any{
			idField:    member.ID,
			labelField: member.Label,
		})
	}
	return marshal(map[string]any{
		nameField:    grp.Name(),
		membersField: members,
	})
}

// DecodeGroup deserializes a group produced by EncodeGroup
func DecodeGroup(payload []byte) (*group.Group, error) {
	st, err := unmarshal(payload)
	if err != nil {
		return nil, err
	}

	fields := st.GetFields()
	name := fields[nameField].GetStringValue()
	if name == "" {
		return nil, fmt.Errorf("group name is missing")
	}

	values := fields[membersField].GetListValue().GetValues()
	members := make([]group.Node, 0, len(values))
	for _, value := range values {
		member := value.GetStructValue().GetFields()
		id := member[idField].GetStringValue()
		if id == "" {
			return nil, fmt.Errorf("group %s has a member without id", name)
		}
		members = append(members, group.NewNode(id, member[labelField].GetStringValue()))
	}
	return group.New(name, members...), nil
}

func marshal(fields map[string]any) ([]byte, error) {
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

func unmarshal(payload []byte) (*structpb.Struct, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	st := new(structpb.Struct)
	if err := proto.Unmarshal(payload, st); err != nil {
		return nil, err
	}
	return st, nil
}
