// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store persists auction records and stats through
// github.com/luxfi/database backends.
package store

import (
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/database/badgerdb"
	"github.com/luxfi/database/memdb"

	"github.com/luxfi/dax/pkg/auction"
	"github.com/luxfi/dax/pkg/ids"
)

// Store wraps luxfi's database interface with the auction key layout.
type Store struct {
	db database.Database
}

// New creates a store over the named backend
func New(backend string, path string) (*Store, error) {
	var db database.Database
	var err error

	switch backend {
	case "memory":
		db = memdb.New()
	case "badger":
		db, err = badgerdb.New(path, nil, "", nil)
		if err != nil {
			return nil, err
		}
	default:
		// Default to badger
		db, err = badgerdb.New(path, nil, "", nil)
		if err != nil {
			return nil, err
		}
	}

	return &Store{db: db}, nil
}

// NewMemory creates an in-memory store for tests and dev mode
func NewMemory() *Store {
	return &Store{db: memdb.New()}
}

// SaveAuction writes a record and its stats atomically. It implements
// auction.Persister.
func (s *Store) SaveAuction(rec auction.Record, st auction.Stats) error {
	recBytes, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	stBytes, err := encodeStats(st)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}

	batch := s.db.NewBatch()
	if err := batch.Put(recordKey(rec.ID), recBytes); err != nil {
		return err
	}
	if err := batch.Put(statsKey(rec.ID), stBytes); err != nil {
		return err
	}
	return batch.Write()
}

// DeleteAuction removes a record and its stats
func (s *Store) DeleteAuction(id ids.ID) error {
	batch := s.db.NewBatch()
	if err := batch.Delete(recordKey(id)); err != nil {
		return err
	}
	if err := batch.Delete(statsKey(id)); err != nil {
		return err
	}
	return batch.Write()
}

// Entry pairs a persisted record with its stats.
type Entry struct {
	Record auction.Record
	Stats  auction.Stats
}

// LoadAuctions returns every persisted record, typically to restore a
// registry at startup. Records without a stats document load with
// zeroed stats.
func (s *Store) LoadAuctions() ([]Entry, error) {
	it := s.db.NewIteratorWithPrefix([]byte(recordPrefix))
	defer it.Release()

	var out []Entry
	for it.Next() {
		rec, err := decodeRecord(it.Value())
		if err != nil {
			return nil, fmt.Errorf("decode record %q: %w", it.Key(), err)
		}

		var st auction.Stats
		stBytes, err := s.db.Get(statsKey(rec.ID))
		if err == nil {
			st, err = decodeStats(stBytes)
			if err != nil {
				return nil, fmt.Errorf("decode stats %s: %w", rec.ID, err)
			}
		} else if !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}

		out = append(out, Entry{Record: rec, Stats: st})
	}
	return out, it.Error()
}

// Has checks if a key exists
func (s *Store) Has(key []byte) (bool, error) {
	return s.db.Has(key)
}

// Compact compacts the underlying database
func (s *Store) Compact(start, limit []byte) error {
	return s.db.Compact(start, limit)
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
