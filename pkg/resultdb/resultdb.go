// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package resultdb implements the worker-local database of measured
// snapshots. The database is cached in memory and mirrored on disk as
// an append-only record log with periodic compaction, so recording a
// snapshot costs one buffered write and a crash loses at most the
// unflushed tail. It exists for crash-resume and debugging; the
// platform's entity storage is a separate system.
package resultdb

import (
	"bufio"
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/google/fuzzmeasure/pkg/log"
	"github.com/google/fuzzmeasure/pkg/osutil"
)

type DB struct {
	// In-memory cache of all live records, must not be modified directly.
	Records map[string]Record

	filename    string
	uncompacted int           // records in the on-disk log, including superseded ones
	pending     *bytes.Buffer // writes not yet flushed to the log
}

// Record is one measured snapshot: Val holds the serialized snapshot,
// Cycle the measurement cycle it belongs to. Saving a key again
// supersedes the previous record.
type Record struct {
	Val   []byte
	Cycle uint64
}

// Key returns the database key of one trial cycle.
func Key(benchmark, fuzzer string, trial, cycle int) string {
	return fmt.Sprintf("%v-%v/trial-%d/cycle-%04d", benchmark, fuzzer, trial, cycle)
}

// Open opens or creates the database. A corrupted log tail is dropped
// with a log message and repaired by compaction; in strict mode it is
// returned as an error alongside the successfully read records.
func Open(filename string, strict bool) (*DB, error) {
	db := &DB{
		filename: filename,
	}
	f, err := os.OpenFile(filename, os.O_RDONLY|os.O_CREATE, osutil.DefaultFilePerm)
	if err != nil {
		return nil, err
	}
	var deserializeErr error
	db.Records, db.uncompacted, deserializeErr = deserialize(bufio.NewReader(f))
	f.Close()
	if deserializeErr != nil && strict {
		return db, deserializeErr
	}
	if deserializeErr != nil || db.uncompacted/10*9 > len(db.Records) {
		if err := db.compact(); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func (db *DB) Save(key string, val []byte, cycle uint64) {
	if rec, ok := db.Records[key]; ok && cycle == rec.Cycle && bytes.Equal(val, rec.Val) {
		return
	}
	db.Records[key] = Record{val, cycle}
	db.serialize(key, val, cycle)
	db.uncompacted++
}

func (db *DB) Delete(key string) {
	if _, ok := db.Records[key]; !ok {
		return
	}
	delete(db.Records, key)
	db.serialize(key, nil, cycleDeleted)
	db.uncompacted++
}

func (db *DB) Flush() error {
	if db.uncompacted/10*9 > len(db.Records) {
		return db.compact()
	}
	if db.pending == nil {
		return nil
	}
	f, err := os.OpenFile(db.filename, os.O_WRONLY|os.O_APPEND|os.O_CREATE, osutil.DefaultFilePerm)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(db.pending.Bytes()); err != nil {
		return err
	}
	db.pending = nil
	return nil
}

func (db *DB) compact() error {
	buf := new(bytes.Buffer)
	serializeHeader(buf)
	for key, rec := range db.Records {
		serializeRecord(buf, key, rec.Val, rec.Cycle)
	}
	tmp := db.filename + ".tmp"
	if err := osutil.WriteFile(tmp, buf.Bytes()); err != nil {
		return err
	}
	if err := os.Rename(tmp, db.filename); err != nil {
		return err
	}
	db.uncompacted = len(db.Records)
	db.pending = nil
	return nil
}

func (db *DB) serialize(key string, val []byte, cycle uint64) {
	if db.pending == nil {
		db.pending = new(bytes.Buffer)
	}
	serializeRecord(db.pending, key, val, cycle)
}

const (
	dbMagic      = uint32(0x600db)
	recMagic     = uint32(0x5ec0bd)
	version      = uint32(1)
	cycleDeleted = ^uint64(0)
)

func serializeHeader(w *bytes.Buffer) {
	binary.Write(w, binary.LittleEndian, dbMagic)
	binary.Write(w, binary.LittleEndian, version)
}

func serializeRecord(w *bytes.Buffer, key string, val []byte, cycle uint64) {
	binary.Write(w, binary.LittleEndian, recMagic)
	binary.Write(w, binary.LittleEndian, uint32(len(key)))
	w.WriteString(key)
	binary.Write(w, binary.LittleEndian, cycle)
	if cycle == cycleDeleted {
		if len(val) != 0 {
			panic("deleting record with value")
		}
		return
	}
	if len(val) == 0 {
		binary.Write(w, binary.LittleEndian, uint32(0))
		return
	}
	lenPos := len(w.Bytes())
	binary.Write(w, binary.LittleEndian, uint32(0))
	startPos := len(w.Bytes())
	fw, err := flate.NewWriter(w, flate.BestCompression)
	if err != nil {
		panic(err)
	}
	if _, err := fw.Write(val); err != nil {
		panic(err)
	}
	fw.Close()
	binary.Write(bytes.NewBuffer(w.Bytes()[lenPos:lenPos:lenPos+4]),
		binary.LittleEndian, uint32(len(w.Bytes())-startPos))
}

func deserialize(r *bufio.Reader) (records map[string]Record, uncompacted int, err error) {
	records = make(map[string]Record)
	if err = deserializeHeader(r); err != nil {
		log.Logf(0, "failed to read resultdb header: %v", err)
		err = fmt.Errorf("failed to read resultdb header: %w", err)
		return
	}
	for {
		key, val, cycle, recErr := deserializeRecord(r)
		if recErr == io.EOF {
			return
		}
		if recErr != nil {
			log.Logf(0, "failed to read resultdb record: %v", recErr)
			err = fmt.Errorf("failed to read resultdb record: %w", recErr)
			return
		}
		uncompacted++
		if cycle == cycleDeleted {
			delete(records, key)
		} else {
			records[key] = Record{val, cycle}
		}
	}
}

func deserializeHeader(r *bufio.Reader) error {
	var magic, ver uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		if err == io.EOF {
			// Brand new empty database.
			return nil
		}
		return err
	}
	if magic != dbMagic {
		return fmt.Errorf("bad magic: 0x%x", magic)
	}
	if err := binary.Read(r, binary.LittleEndian, &ver); err != nil {
		return err
	}
	if ver == 0 || ver > version {
		return fmt.Errorf("bad version: %v", ver)
	}
	return nil
}

func deserializeRecord(r *bufio.Reader) (key string, val []byte, cycle uint64, err error) {
	var magic uint32
	if err = binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return
	}
	if magic != recMagic {
		err = fmt.Errorf("bad record magic: 0x%x", magic)
		return
	}
	var keyLen uint32
	if err = binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
		return
	}
	keyBuf := make([]byte, keyLen)
	if _, err = io.ReadFull(r, keyBuf); err != nil {
		return
	}
	key = string(keyBuf)
	if err = binary.Read(r, binary.LittleEndian, &cycle); err != nil {
		return
	}
	if cycle == cycleDeleted {
		return
	}
	var valLen uint32
	if err = binary.Read(r, binary.LittleEndian, &valLen); err != nil {
		return
	}
	if valLen != 0 {
		fr := flate.NewReader(&io.LimitedReader{R: r, N: int64(valLen)})
		if val, err = io.ReadAll(fr); err != nil {
			return
		}
		fr.Close()
	}
	return
}
