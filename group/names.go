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

package group

import (
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

const namesSeparator = ","

// ParseNames splits a comma-joined list of group names into a set.
// Blank elements are dropped so that an empty string yields the empty set.
func ParseNames(s string) mapset.Set[string] {
	names := mapset.NewSet[string]()
	for _, name := range strings.Split(s, namesSeparator) {
		if name = strings.TrimSpace(name); name != "" {
			names.Add(name)
		}
	}
	return names
}

// FormatNames joins a set of group names in sorted order.
// The empty or nil set yields the empty string.
func FormatNames(names mapset.Set[string]) string {
	if names == nil || names.Cardinality() == 0 {
		return ""
	}
	sorted := names.ToSlice()
	slices.Sort(sorted)
	return strings.Join(sorted, namesSeparator)
}

// SameNames reports whether two serialized name lists denote the same set
func SameNames(a, b string) bool {
	return ParseNames(a).Equal(ParseNames(b))
}
