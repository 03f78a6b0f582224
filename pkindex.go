package docstore

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// PkIndexEntry maps a primary key to the location of its record.
type PkIndexEntry struct {
	Database   string
	Collection string
	Value      string
	Position   uint64
	Length     uint64
}

func (e PkIndexEntry) Location() Location {
	return Location{e.Position, e.Length}
}

func (e PkIndexEntry) line() string {
	return escapeField(e.Value) + "|" + strconv.FormatUint(e.Position, 10) + "|" + strconv.FormatUint(e.Length, 10)
}

// applyPkEdit returns entries with the record of pk replaced by newLoc
// (removed when newLoc is nil) and every entry positioned after oldPos
// shifted by delta. first is the index of the first entry that differs from
// the input; entries before it are shared with the input unchanged.
func applyPkEdit(entries []PkIndexEntry, pk string, newLoc *Location, oldPos uint64, delta int64) (result []PkIndexEntry, first int, found bool) {
	first = -1
	result = make([]PkIndexEntry, 0, len(entries))
	for i, e := range entries {
		if e.Value == pk {
			found = true
			if first < 0 {
				first = i
			}
			if newLoc != nil {
				e.Position, e.Length = newLoc.Position, newLoc.Length
				result = append(result, e)
			}
			continue
		}
		if delta != 0 && e.Position > oldPos {
			e.Position = shiftPosition(e.Position, delta)
			if first < 0 {
				first = i
			}
		}
		result = append(result, e)
	}
	if !found {
		return entries, -1, false
	}
	return result, first, true
}

// pkIndexFile is the persisted primary key index: one pk|position|length line
// per live record, in insertion order.
type pkIndexFile struct {
	fs   afero.Fs
	path string
	db   string
	coll string
}

func (f *pkIndexFile) Create() error {
	return createFile(f.fs, f.path)
}

func (f *pkIndexFile) Load() ([]PkIndexEntry, error) {
	entries, _, err := f.load()
	return entries, err
}

func (f *pkIndexFile) load() ([]PkIndexEntry, []textLine, error) {
	lines, _, err := readLines(f.fs, f.path)
	if err != nil {
		return nil, nil, err
	}
	entries := make([]PkIndexEntry, 0, len(lines))
	for i, l := range lines {
		parts, err := splitIndexLine(f.path, i, l, 3)
		if err != nil {
			return nil, nil, err
		}
		pos, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, nil, indexLineErr(f.path, i, l, err)
		}
		length, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return nil, nil, indexLineErr(f.path, i, l, err)
		}
		if parts[0] == "" {
			return nil, nil, indexLineErr(f.path, i, l, errors.New("empty primary key"))
		}
		entries = append(entries, PkIndexEntry{f.db, f.coll, parts[0], pos, length})
	}
	return entries, lines, nil
}

func (f *pkIndexFile) Append(entries []PkIndexEntry) error {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.line()
	}
	return appendLines(f.fs, f.path, lines)
}

// ApplyEdit persists a record update (newLoc != nil) or delete (newLoc == nil)
// made at oldPos. The file is rewritten from the first affected line.
func (f *pkIndexFile) ApplyEdit(pk string, newLoc *Location, oldPos uint64, delta int64) error {
	entries, lines, err := f.load()
	if err != nil {
		return err
	}
	result, first, found := applyPkEdit(entries, pk, newLoc, oldPos, delta)
	if !found {
		return collErrf(f.db, f.coll, pk, ErrNotFound, "no primary key index entry")
	}
	out := make([]string, 0, len(result)-first)
	for _, e := range result[first:] {
		out = append(out, e.line())
	}
	return rewriteFrom(f.fs, f.path, lines[first].off, out)
}
