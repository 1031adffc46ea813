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

// Package group defines the cluster identities shared by every node:
// the Node, the Group with its member set, and the serialized form of a
// set of group names.
package group

import (
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Default is the name of the group that always exists
const Default = "default"

// Node is the identity of a cluster member
type Node struct {
	// ID is the opaque unique identifier of the node
	ID string
	// Label is a human-readable name, typically host:port
	Label string
}

// NewNode creates a Node
func NewNode(id, label string) Node {
	return Node{ID: id, Label: label}
}

// String returns the label when set, the id otherwise
func (n Node) String() string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

// Group is a named partition of the cluster and the set of nodes in it
type Group struct {
	name    string
	members mapset.Set[Node]
}

// New creates a Group with the given members
func New(name string, members ...Node) *Group {
	return &Group{
		name:    name,
		members: mapset.NewThreadUnsafeSet(members...),
	}
}

// Name returns the group name
func (g *Group) Name() string {
	return g.name
}

// IsDefault reports whether this is the default group
func (g *Group) IsDefault() bool {
	return g.name == Default
}

// Members returns the members ordered by node id
func (g *Group) Members() []Node {
	members := g.members.ToSlice()
	slices.SortFunc(members, func(a, b Node) int {
		return strings.Compare(a.ID, b.ID)
	})
	return members
}

// Size returns the number of members
func (g *Group) Size() int {
	return g.members.Cardinality()
}

// HasMember reports whether the node belongs to the group
func (g *Group) HasMember(node Node) bool {
	return g.members.ContainsOne(node)
}

// AddMember adds the node and reports whether the member set changed
func (g *Group) AddMember(node Node) bool {
	return g.members.Add(node)
}

// RemoveMember removes the node and reports whether the member set changed
func (g *Group) RemoveMember(node Node) bool {
	if !g.members.ContainsOne(node) {
		return false
	}
	g.members.Remove(node)
	return true
}

// Clone returns a deep copy of the group
func (g *Group) Clone() *Group {
	return &Group{
		name:    g.name,
		members: g.members.Clone(),
	}
}

// Equal reports whether both groups have the same name and members
func (g *Group) Equal(other *Group) bool {
	if other == nil {
		return false
	}
	return g.name == other.name && g.members.Equal(other.members)
}
