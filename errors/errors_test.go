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

package errors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrors(t *testing.T) {
	err := NewErrGroupNotFound("g1")
	require.EqualError(t, err, "group=(g1) group not found")
	assert.ErrorIs(t, err, ErrGroupNotFound)

	cause := errors.New("unexpected EOF")
	err = NewErrMalformedEntry(".groups", cause)
	assert.ErrorIs(t, err, ErrMalformedEntry)
	assert.ErrorIs(t, err, cause)

	err = NewErrTransitionInProgress("g1", context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrTransitionInProgress)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	storeErr := NewStoreError("put", ErrStoreClosed)
	require.EqualError(t, storeErr, "store put: store is closed")
	assert.Equal(t, "put", storeErr.Op())
	assert.ErrorIs(t, storeErr, ErrStoreClosed)
}
