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
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// EncodeDictionary serializes a flat string dictionary
func EncodeDictionary(dict map[string]string) ([]byte, error) {
	fields := make(map[string]any, len(dict))
	for k, v := range dict {
		fields[k] = v
	}
	return marshal(fields)
}

// DecodeDictionary deserializes a dictionary produced by EncodeDictionary.
// An empty payload yields an empty dictionary.
func DecodeDictionary(payload []byte) (map[string]string, error) {
	if len(payload) == 0 {
		return make(map[string]string), nil
	}

	st, err := unmarshal(payload)
	if err != nil {
		return nil, err
	}

	dict := make(map[string]string, len(st.GetFields()))
	for k, v := range st.GetFields() {
		value, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("dictionary value for %q is not a string", k)
		}
		dict[k] = value.StringValue
	}
	return dict, nil
}
