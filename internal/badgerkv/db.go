// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package badgerkv is the thin shared wrapper every embedded-KV-backed
// repository in this module builds on: the Measurement Store, the Lab
// Upload Job store, the Baseline Calculator's state, the Forecast
// Engine's per-user model state, and the Insight Cache. Domain packages
// own their own key schemes and JSON encoding; this package owns only
// opening the database and wrapping transactions.
package badgerkv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// DB wraps a badger.DB with context-aware transaction helpers.
type DB struct {
	bdb *badger.DB
}

// Open opens (creating if absent) a badger database rooted at dir.
func Open(dir string) (*DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db at %s: %w", dir, err)
	}
	return &DB{bdb: bdb}, nil
}

// OpenInMemory opens a database with no on-disk footprint, for tests and
// for the CLI tools' ephemeral sessions.
func OpenInMemory() (*DB, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger db: %w", err)
	}
	return &DB{bdb: bdb}, nil
}

// Close releases the database's file locks and in-memory structures.
func (d *DB) Close() error { return d.bdb.Close() }

// WithTxn runs fn inside a read-write transaction, committing on success
// and discarding on error. ctx is honored only for cancellation before the
// transaction starts; badger itself has no per-call context plumbing.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.bdb.Update(fn)
}

// WithReadTxn runs fn inside a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.bdb.View(fn)
}

// PutJSON marshals v and writes it under key within txn.
func PutJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal value for key %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

// GetJSON reads the value at key and unmarshals it into v.
// Returns badger.ErrKeyNotFound unchanged so callers can use errors.Is.
func GetJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(data []byte) error {
		return json.Unmarshal(data, v)
	})
}

// ScanPrefix iterates every key with the given prefix in lexical order,
// calling fn with each key as a string and a get func that JSON-decodes
// that key's value into v. Iteration stops early if fn returns an error.
func ScanPrefix(txn *badger.Txn, prefix string, fn func(key string, get func(v any) error) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
		item := it.Item()
		key := string(item.KeyCopy(nil))
		get := func(v any) error {
			return item.Value(func(data []byte) error { return json.Unmarshal(data, v) })
		}
		if err := fn(key, get); err != nil {
			return err
		}
	}
	return nil
}

// ErrKeyNotFound re-exports badger's sentinel so callers don't need to
// import badger directly just to check for a missing key.
var ErrKeyNotFound = badger.ErrKeyNotFound
