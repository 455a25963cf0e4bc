package engine

import "time"

// compact rewrites every record the index currently references into a
// fresh compacted segment and drops the segments it superseded. It
// must be called with s.mu already held for writing.
//
// Step ordering matters for crash-resilience even though this engine
// is single-threaded: the new live segment's writer and reader are
// swapped in before anything is copied, so a crash partway through the
// copy loop still leaves every key reachable through either its
// original segment or the partially written compaction segment.
// Recovery converges to the correct index either way.
func (s *Store) compact() error {
	start := time.Now()

	compactionGen := s.currentGen + 1
	newLiveGen := s.currentGen + 2
	s.currentGen = newLiveGen
	s.compactedGens[compactionGen] = true

	// Step 2: switch the writer and register a reader for the new live
	// segment first. From this point, new Set/Remove records go to
	// newLiveGen and are immediately visible to Get through the index.
	newWriter, err := newSegmentWriter(s.fs, s.dir, newLiveGen, false, s.fsync)
	if err != nil {
		return err
	}
	oldWriter := s.writer
	s.writer = newWriter
	if err := s.readers.open(newLiveGen, false); err != nil {
		return err
	}
	s.uncompacted = 0
	if err := oldWriter.close(); err != nil {
		return err
	}

	s.log.Infow("compaction started",
		"compactionGen", compactionGen,
		"newLiveGen", newLiveGen,
		"liveKeys", s.idx.len(),
	)

	// Step 3: copy every surviving record, verbatim, into the
	// compaction segment, rewriting its index entry's CommandPos in
	// place as it goes.
	compWriter, err := newSegmentWriter(s.fs, s.dir, compactionGen, true, s.fsync)
	if err != nil {
		return err
	}
	err = s.idx.eachMut(func(_ string, pos *CommandPos) error {
		rec, err := s.readers.read(*pos)
		if err != nil {
			return err
		}
		newPos, err := compWriter.append(rec)
		if err != nil {
			return err
		}
		*pos = newPos
		return nil
	})
	if err != nil {
		return err
	}
	if err := compWriter.close(); err != nil {
		return err
	}

	// Step 4: open a reader for the compaction segment.
	if err := s.readers.open(compactionGen, true); err != nil {
		return err
	}

	// Step 5: delete readers and files for every generation older than
	// the compaction segment.
	var reclaimed int64
	for _, gen := range s.readers.generations() {
		if gen >= compactionGen {
			continue
		}
		compacted := s.compactedGens[gen]
		size, sizeErr := segmentFileSize(s.fs, s.dir, gen, compacted)
		if sizeErr == nil {
			reclaimed += size
		}

		if err := s.readers.remove(gen); err != nil {
			return err
		}
		path := segmentPath(s.dir, gen, compacted)
		if err := s.fs.Remove(path); err != nil {
			return ioErr("remove stale segment", path, err)
		}
		delete(s.compactedGens, gen)
	}

	s.log.Infow("compaction finished",
		"compactionGen", compactionGen,
		"duration", time.Since(start),
		"survivingKeys", s.idx.len(),
		"bytesReclaimed", reclaimed,
	)
	return nil
}
