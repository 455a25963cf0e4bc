package engine

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

const compactionMark = "_"

// segmentID identifies one on-disk segment: its generation number and
// whether it is a compacted (`_G.log`) or live (`G.log`) file.
type segmentID struct {
	compacted bool
	gen       uint64
}

// segmentPath returns the path a segment of the given generation and
// kind is stored under.
func segmentPath(dir string, gen uint64, compacted bool) string {
	if compacted {
		return filepath.Join(dir, fmt.Sprintf("%s%d.log", compactionMark, gen))
	}
	return filepath.Join(dir, fmt.Sprintf("%d.log", gen))
}

// scanSegments enumerates regular files with a ".log" extension in dir,
// classifies each as live or compacted, parses its generation, and
// returns them ordered by generation ascending. Files whose stem does
// not parse as an unsigned integer are silently ignored: they are not
// store segments.
func scanSegments(fs afero.Fs, dir string) ([]segmentID, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, ioErr("scan segments", dir, err)
	}

	var ids []segmentID
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) != ".log" {
			continue
		}
		stem := strings.TrimSuffix(name, ".log")

		compacted := false
		if strings.HasPrefix(stem, compactionMark) {
			compacted = true
			stem = strings.TrimPrefix(stem, compactionMark)
		}

		gen, err := strconv.ParseUint(stem, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, segmentID{compacted: compacted, gen: gen})
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].gen < ids[j].gen })
	return ids, nil
}

// nextCurrentGen determines the generation the writer should open
// given the sorted segment list: reuse the largest live generation,
// bump past the largest compacted one, or start at 1 if the directory
// is empty.
func nextCurrentGen(ids []segmentID) uint64 {
	if len(ids) == 0 {
		return 1
	}
	last := ids[len(ids)-1]
	if last.compacted {
		return last.gen + 1
	}
	return last.gen
}

func segmentFileSize(fs afero.Fs, dir string, gen uint64, compacted bool) (int64, error) {
	path := segmentPath(dir, gen, compacted)
	info, err := fs.Stat(path)
	if err != nil {
		return 0, ioErr("stat segment", path, err)
	}
	return info.Size(), nil
}
