package engine

import (
	"encoding/json"
	"fmt"
	"io"
)

// record is the on-disk shape of a single log entry: exactly one of Set
// or Remove is populated, mirroring the tagged Command enum in
// original_source/src/kv.rs (Command::Set / Command::Remove) encoded
// the way serde's default externally-tagged derive would: a single-key
// object naming the variant.
type record struct {
	Set    *setPayload    `json:"Set,omitempty"`
	Remove *removePayload `json:"Remove,omitempty"`
}

type setPayload struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type removePayload struct {
	Key string `json:"key"`
}

func newSetRecord(key, value string) record {
	return record{Set: &setPayload{Key: key, Value: value}}
}

func newRemoveRecord(key string) record {
	return record{Remove: &removePayload{Key: key}}
}

// encode writes rec as a single self-delimited JSON object and returns
// the exact number of bytes written, so callers can report it as a
// command-position length.
func encode(w io.Writer, rec record) (int64, error) {
	buf, err := json.Marshal(rec)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(buf)
	return int64(n), err
}

// decodeOne decodes exactly one record from r, which must be limited to
// the record's exact byte length (the reader pool's job). Used for
// random-access reads by command position.
func decodeOne(r io.Reader) (record, error) {
	var rec record
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return record{}, err
	}
	if err := rec.validate(); err != nil {
		return record{}, err
	}
	return rec, nil
}

// decodeStream decodes a whole segment as a stream of concatenated JSON
// objects, invoking fn with each record and the [start, end) byte range
// it occupied. The decoder must expose the offset after each record so
// the caller can compute len = next_offset - prev_offset without any
// out-of-band framing.
//
// A decode failure partway through terminates the stream with an
// error: partial trailing bytes are not tolerated, since logs are
// assumed to end on a record boundary because every write flushes
// before returning.
func decodeStream(r io.Reader, fn func(rec record, start, end int64) error) error {
	dec := json.NewDecoder(r)
	var prev int64
	for {
		var rec record
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := rec.validate(); err != nil {
			return err
		}
		end := dec.InputOffset()
		if err := fn(rec, prev, end); err != nil {
			return err
		}
		prev = end
	}
}

func (r record) validate() error {
	if r.Set == nil && r.Remove == nil {
		return fmt.Errorf("record has neither a Set nor a Remove payload")
	}
	if r.Set != nil && r.Remove != nil {
		return fmt.Errorf("record has both a Set and a Remove payload")
	}
	return nil
}
