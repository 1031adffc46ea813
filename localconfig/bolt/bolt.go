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

// Package bolt provides a localconfig.Store persisted in a bbolt file so
// group membership and configuration survive restarts.
package bolt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bbolt "go.etcd.io/bbolt"
	"go.uber.org/atomic"

	"github.com/tochemey/cellar/errors"
	"github.com/tochemey/cellar/internal/codec"
	"github.com/tochemey/cellar/internal/notify"
	"github.com/tochemey/cellar/localconfig"
)

const (
	boltFileMode   os.FileMode = 0o600
	boltBucketName             = "documents"
)

var defaultBoltOptions = &bbolt.Options{Timeout: 5 * time.Second}

// Store keeps one bbolt key per document
//
// bbolt provides single-writer/multi-reader semantics. Notifications are
// published while the write lock of the file is held so listeners see the
// updates of a document in commit order.
type Store struct {
	db     *bbolt.DB
	bucket []byte
	path   string
	hub    *notify.Hub[string]
	closed *atomic.Bool
}

// enforce compilation error
var _ localconfig.Store = (*Store)(nil)

// Open opens or creates the database file at path
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("localconfig/bolt: creating folder: %w", err)
	}

	optionsCopy := *defaultBoltOptions
	db, err := bbolt.Open(path, boltFileMode, &optionsCopy)
	if err != nil {
		return nil, fmt.Errorf("localconfig/bolt: opening boltdb: %w", err)
	}

	bucket := []byte(boltBucketName)
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucket)
		return e
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("localconfig/bolt: initializing bucket: %w", err)
	}

	return &Store{
		db:     db,
		bucket: bucket,
		path:   path,
		hub:    notify.NewHub[string](),
		closed: atomic.NewBool(false),
	}, nil
}

// Path returns the database file location
func (s *Store) Path() string {
	return s.path
}

// GetDocument reads the document
func (s *Store) GetDocument(ctx context.Context, pid string) (localconfig.Dictionary, error) {
	if s.closed.Load() {
		return nil, errors.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var payload []byte
	if err := s.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(s.bucket).Get([]byte(pid)); data != nil {
			// bbolt memory is only valid for the life of the transaction
			payload = append([]byte(nil), data...)
		}
		return nil
	}); err != nil {
		return nil, errors.NewStoreError("get-document", err)
	}

	dict, err := codec.DecodeDictionary(payload)
	if err != nil {
		return nil, errors.NewStoreError("get-document", err)
	}
	return dict, nil
}

// UpdateDocument replaces the document and notifies the listeners once committed
func (s *Store) UpdateDocument(ctx context.Context, pid string, dict localconfig.Dictionary) error {
	if s.closed.Load() {
		return errors.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := codec.EncodeDictionary(dict)
	if err != nil {
		return errors.NewStoreError("update-document", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(s.bucket).Put([]byte(pid), payload); err != nil {
			return err
		}
		tx.OnCommit(func() { s.hub.Publish(pid) })
		return nil
	})
	if err != nil {
		return errors.NewStoreError("update-document", err)
	}
	return nil
}

// Subscribe registers a listener
func (s *Store) Subscribe(listener localconfig.Listener) func() {
	return s.hub.Subscribe(listener)
}

// Close stops every listener and closes the file. The file is kept.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.hub.Close()
	return s.db.Close()
}
