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

import "fmt"

// MembershipState is the state of the local node in a group
type MembershipState int

const (
	// NotMember is the state of a node outside the group
	NotMember MembershipState = iota
	// Joining is the state of a node while it joins the group
	Joining
	// Member is the state of a node in the group
	Member
	// Leaving is the state of a node while it leaves the group
	Leaving
)

// String returns the name of the state
func (s MembershipState) String() string {
	switch s {
	case NotMember:
		return "NotMember"
	case Joining:
		return "Joining"
	case Member:
		return "Member"
	case Leaving:
		return "Leaving"
	default:
		return fmt.Sprintf("MembershipState(%d)", int(s))
	}
}
