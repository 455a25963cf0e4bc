// Package engine implements the segmented append-only log store: the
// on-disk layout, the in-memory index, crash recovery, and online
// compaction. It is the core of kvs; the CLI in cmd/kvs is a thin
// collaborator over this package's public façade (Open, Set, Get,
// Remove, Close).
package engine

import (
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DefaultCompactionThreshold is the default number of estimated
// uncompacted bytes that triggers compaction.
const DefaultCompactionThreshold int64 = 4 * 1024 * 1024

// Store is an embedded, single-process, persistent key/value store
// backed by generation-numbered segment files in a directory. A Store
// is not safe for concurrent multi-writer use; the internal mutex
// only serializes callers that accidentally share one handle across
// goroutines instead of leaving that undefined.
type Store struct {
	mu  sync.RWMutex
	fs  afero.Fs
	dir string
	log *zap.SugaredLogger

	threshold int64
	fsync     bool

	currentGen    uint64
	compactedGens map[uint64]bool
	readers       *readerPool
	writer        *segmentWriter
	idx           *index
	uncompacted   int64
}

// Option configures a Store at Open time.
type Option func(*Store)

// WithCompactionThreshold overrides the default uncompacted-byte
// threshold that triggers compaction.
func WithCompactionThreshold(bytes int64) Option {
	return func(s *Store) { s.threshold = bytes }
}

// WithFsync enables an fsync call after every flushed write, upgrading
// durability from "survives a flushed, closed-on-drop file" to
// "survives power loss" at the cost of latency.
func WithFsync(enabled bool) Option {
	return func(s *Store) { s.fsync = enabled }
}

// WithLogger attaches a logger for lifecycle and compaction events. A
// nil or unset logger defaults to a no-op one.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithFS overrides the filesystem backend, primarily so tests can run
// the whole engine against afero.NewMemMapFs() instead of disk.
func WithFS(fs afero.Fs) Option {
	return func(s *Store) {
		if fs != nil {
			s.fs = fs
		}
	}
}

// Open opens a Store rooted at dir, creating the directory if absent.
// It scans existing segments, replays them to rebuild the in-memory
// index, and opens a writer (and reader) on the current live segment.
func Open(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		fs:            afero.NewOsFs(),
		dir:           dir,
		log:           zap.NewNop().Sugar(),
		threshold:     DefaultCompactionThreshold,
		compactedGens: make(map[uint64]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, ioErr("mkdir store dir", dir, err)
	}

	ids, err := scanSegments(s.fs, dir)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if id.compacted {
			s.compactedGens[id.gen] = true
		}
	}

	s.currentGen = nextCurrentGen(ids)

	s.readers = newReaderPool(s.fs, dir)
	var uncompactedSeed int64
	for _, id := range ids {
		if err := s.readers.open(id.gen, id.compacted); err != nil {
			return nil, err
		}
		// Heuristic: compacted segments are wholly eligible to be
		// rewritten again at the next compaction, so their full size
		// seeds the counter.
		if id.compacted {
			size, err := segmentFileSize(s.fs, dir, id.gen, true)
			if err != nil {
				return nil, err
			}
			uncompactedSeed += size
		}
	}

	idx := newIndex()
	for _, id := range ids {
		if err := replaySegment(s.fs, dir, id, idx); err != nil {
			return nil, err
		}
	}
	s.idx = idx
	s.uncompacted = uncompactedSeed

	writer, err := newSegmentWriter(s.fs, dir, s.currentGen, false, s.fsync)
	if err != nil {
		return nil, err
	}
	s.writer = writer

	// The current generation's live file now exists (newSegmentWriter
	// creates it if absent); make sure a reader is registered for it
	// too, not only when the directory started out empty. See
	// DESIGN.md for why this is slightly more defensive than a crash
	// window that could otherwise leave the live generation unread.
	if !s.readers.has(s.currentGen) {
		if err := s.readers.open(s.currentGen, false); err != nil {
			return nil, err
		}
	}

	s.log.Infow("store opened",
		"dir", dir,
		"segments", len(ids),
		"keys", idx.len(),
		"currentGen", s.currentGen,
		"uncompactedSeed", uncompactedSeed,
	)

	return s, nil
}

// replaySegment folds every record in the segment named by id into idx,
// oldest-first within the segment: a Set overwrites the entry, a
// Remove deletes it. A Remove whose key is already absent is tolerated
// silently, matching the store's recovery contract.
func replaySegment(fs afero.Fs, dir string, id segmentID, idx *index) error {
	path := segmentPath(dir, id.gen, id.compacted)
	file, err := fs.Open(path)
	if err != nil {
		return ioErr("open segment for replay", path, err)
	}
	defer file.Close()

	err = decodeStream(file, func(rec record, start, end int64) error {
		switch {
		case rec.Set != nil:
			idx.insert(rec.Set.Key, CommandPos{Gen: id.gen, Offset: start, Length: end - start})
		case rec.Remove != nil:
			idx.remove(rec.Remove.Key)
		}
		return nil
	})
	if err != nil {
		return decodeErr("replay segment", path, err)
	}
	return nil
}

// Set stores value under key, overwriting any previous value. It
// flushes before returning and may trigger compaction if the
// uncompacted-byte counter crosses the configured threshold.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, overwrote := s.idx.get(key)
	pos, err := s.writer.append(newSetRecord(key, value))
	if err != nil {
		return err
	}
	s.idx.insert(key, pos)

	// The Set record this one overwrites is now stale; its length is
	// credited to the uncompacted counter.
	if overwrote {
		s.uncompacted += old.Length
	}

	if s.uncompacted > s.threshold {
		return s.compact()
	}
	return nil
}

// Get returns the value stored for key and true, or an empty string and
// false if key is not present. Get never returns a KeyNotFound error:
// "no value" is represented by the bool, not an error.
func (s *Store) Get(key string) (string, bool, error) {
	s.mu.RLock()
	pos, ok := s.idx.get(key)
	s.mu.RUnlock()
	if !ok {
		return "", false, nil
	}

	s.mu.Lock()
	rec, err := s.readers.read(pos)
	s.mu.Unlock()
	if err != nil {
		return "", false, err
	}

	if rec.Set == nil || rec.Set.Key != key {
		return "", false, decodeErr("get", key, errCorruptIndex(key, pos))
	}
	return rec.Set.Value, true, nil
}

// Remove deletes key. It returns a KeyNotFound error if key is absent
// from the index.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.idx.get(key)
	if !ok {
		return keyNotFoundErr("remove", key)
	}

	tombstone, err := s.writer.append(newRemoveRecord(key))
	if err != nil {
		return err
	}
	s.idx.remove(key)

	// Credits the length of the Set record that remove just superseded,
	// plus the tombstone's own bytes, which the next compaction drops.
	s.uncompacted += old.Length + tombstone.Length

	if s.uncompacted > s.threshold {
		return s.compact()
	}
	return nil
}

// Close flushes and closes the writer and every reader handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if err := s.writer.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.readers.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
