package engine

import (
	"bufio"
	"os"

	"github.com/spf13/afero"
)

// segmentWriter is the single buffered append-only handle on one
// segment file. Only the store's current live segment is ever wrapped
// by one, except during compaction where a second one targets the
// fresh compaction segment.
type segmentWriter struct {
	gen       uint64
	compacted bool
	fsync     bool

	file afero.File
	bw   *bufio.Writer
	size int64
}

// newSegmentWriter opens (creating if absent) the segment file for gen,
// always in append mode so the kernel guarantees writes land at EOF
// regardless of handle position.
func newSegmentWriter(fs afero.Fs, dir string, gen uint64, compacted bool, fsync bool) (*segmentWriter, error) {
	path := segmentPath(dir, gen, compacted)
	file, err := fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, ioErr("open segment writer", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, ioErr("stat segment writer", path, err)
	}

	return &segmentWriter{
		gen:       gen,
		compacted: compacted,
		fsync:     fsync,
		file:      file,
		bw:        bufio.NewWriter(file),
		size:      info.Size(),
	}, nil
}

// append encodes rec, writes it, and flushes before returning so crash
// recovery observes the record. The record is encoded into a buffer
// first so its exact byte length is known without relying on querying
// the file's position under O_APPEND, which is not well-defined until
// after a write has actually happened.
func (w *segmentWriter) append(rec record) (CommandPos, error) {
	path := segmentPath("", w.gen, w.compacted)

	before := w.size
	n, err := encode(w.bw, rec)
	if err != nil {
		return CommandPos{}, ioErr("encode record", path, err)
	}
	if err := w.bw.Flush(); err != nil {
		return CommandPos{}, ioErr("flush segment writer", path, err)
	}
	if w.fsync {
		if err := w.file.Sync(); err != nil {
			return CommandPos{}, ioErr("fsync segment writer", path, err)
		}
	}

	w.size += n
	return CommandPos{Gen: w.gen, Offset: before, Length: n}, nil
}

func (w *segmentWriter) close() error {
	if err := w.bw.Flush(); err != nil {
		return ioErr("flush segment writer", "", err)
	}
	if err := w.file.Close(); err != nil {
		return ioErr("close segment writer", "", err)
	}
	return nil
}
