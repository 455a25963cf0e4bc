package engine

import (
	"fmt"
	"io"
	"sync"

	"github.com/spf13/afero"
)

// readerPool holds one read handle per known generation and
// serves random-access reads of a record by command position. It
// caches each handle's last-used offset so a read that follows the
// previous one in the same segment skips a redundant seek; this is an
// optimization, not a correctness requirement: a seek-always
// implementation would behave identically.
//
// Concurrent readers are not supported: the handle position acts as a
// cached cursor belonging to this pool, not shared state.
type readerPool struct {
	fs  afero.Fs
	dir string

	mu      sync.Mutex
	handles map[uint64]*pooledReader
}

type pooledReader struct {
	file      afero.File
	compacted bool
	cursor    int64
}

func newReaderPool(fs afero.Fs, dir string) *readerPool {
	return &readerPool{fs: fs, dir: dir, handles: make(map[uint64]*pooledReader)}
}

// open registers a read handle for generation gen, opening its segment
// file. The segment must already exist on disk.
func (p *readerPool) open(gen uint64, compacted bool) error {
	path := segmentPath(p.dir, gen, compacted)
	file, err := p.fs.Open(path)
	if err != nil {
		return ioErr("open segment reader", path, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.handles[gen]; ok {
		_ = old.file.Close()
	}
	p.handles[gen] = &pooledReader{file: file, compacted: compacted}
	return nil
}

func (p *readerPool) has(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.handles[gen]
	return ok
}

// generations returns every generation the pool currently holds a
// reader for, in no particular order.
func (p *readerPool) generations() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	gens := make([]uint64, 0, len(p.handles))
	for gen := range p.handles {
		gens = append(gens, gen)
	}
	return gens
}

// read decodes exactly one record at pos. Failure to find pos.Gen in
// the pool is a programming error: the index and the reader pool are
// expected to always agree.
func (p *readerPool) read(pos CommandPos) (record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.handles[pos.Gen]
	if !ok {
		return record{}, ioErr("read segment", "", fmt.Errorf("no reader registered for generation %d", pos.Gen))
	}

	if h.cursor != pos.Offset {
		if _, err := h.file.Seek(pos.Offset, io.SeekStart); err != nil {
			return record{}, ioErr("seek segment", h.file.Name(), err)
		}
	}

	rec, err := decodeOne(io.LimitReader(h.file, pos.Length))
	if err != nil {
		return record{}, decodeErr("decode record", h.file.Name(), err)
	}
	h.cursor = pos.Offset + pos.Length
	return rec, nil
}

// remove closes and forgets the reader for gen, if one is registered.
func (p *readerPool) remove(gen uint64) error {
	p.mu.Lock()
	h, ok := p.handles[gen]
	if ok {
		delete(p.handles, gen)
	}
	p.mu.Unlock()

	if !ok {
		return nil
	}
	if err := h.file.Close(); err != nil {
		return ioErr("close segment reader", h.file.Name(), err)
	}
	return nil
}

func (p *readerPool) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for gen, h := range p.handles {
		if err := h.file.Close(); err != nil && firstErr == nil {
			firstErr = ioErr("close segment reader", h.file.Name(), err)
		}
		delete(p.handles, gen)
	}
	return firstErr
}
