// Package docstore keeps mapped documents in a pebble database, one key
// range per collection.
//
// A document is stored under its collection name, a zero byte and the BSON
// encoding of its id; the value is the document as written by the codec
// engine. Ids are generated on Put when the class's id generator reports
// them empty.
package docstore

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/reoring/docmap/codec"
)

// ErrNotFound is returned by Get for ids without a document.
var ErrNotFound = errors.New("docstore: not found")

// Options configures Open.
type Options struct {
	// FS is the filesystem holding the database; nil means the OS filesystem.
	// Tests use vfs.NewMem().
	FS vfs.FS
	// Logger receives open/close events and pebble's own logs, at Debug.
	Logger *slog.Logger
	// Sync makes every write durable before it returns.
	Sync bool
}

// Store is an open pebble database bound to a codec engine. It is safe for
// concurrent use.
type Store struct {
	db     *pebble.DB
	engine *codec.Engine
	logger *slog.Logger
	wo     *pebble.WriteOptions
	dir    string
}

// Open opens or creates the database in dir.
func Open(dir string, e *codec.Engine, opts Options) (*Store, error) {
	if e == nil {
		return nil, errors.New("docstore: nil engine")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	po := &pebble.Options{FS: opts.FS, Logger: pebbleLogger{logger}}
	db, err := pebble.Open(dir, po)
	if err != nil {
		return nil, fmt.Errorf("docstore: open %s: %w", dir, err)
	}
	s := &Store{db: db, engine: e, logger: logger, wo: pebble.NoSync, dir: dir}
	if opts.Sync {
		s.wo = pebble.Sync
	}
	logger.Debug("store opened", "dir", dir, "sync", opts.Sync)
	return s, nil
}

// Engine returns the codec engine documents go through.
func (s *Store) Engine() *codec.Engine { return s.engine }

// Close flushes and closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("docstore: close: %w", err)
	}
	s.logger.Debug("store closed", "dir", s.dir)
	return nil
}

// pebbleLogger forwards pebble's logs to slog.
type pebbleLogger struct{ l *slog.Logger }

func (p pebbleLogger) Infof(format string, args ...any) {
	p.l.Debug(fmt.Sprintf(format, args...), "component", "pebble")
}

func (p pebbleLogger) Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.l.Error(msg, "component", "pebble")
	panic(msg)
}
