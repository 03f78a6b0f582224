package docstore

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// FieldIndexEntry holds every primary key whose field equals Value.
type FieldIndexEntry struct {
	Database   string
	Collection string
	Value      FieldValue
	IDs        KeySet
}

func (e FieldIndexEntry) line() string {
	ids := e.IDs.Sorted()
	for i, id := range ids {
		ids[i] = escapeField(id)
	}
	return escapeField(e.Value.String()) + "|" + strings.Join(ids, ";")
}

// FieldIndex is the value index of one field and type. Entries are kept in
// strictly ascending order of Value and never have an empty id set.
type FieldIndex struct {
	Database   string
	Collection string
	Field      string
	Type       string
	Entries    []FieldIndexEntry
}

func newFieldIndex(db, coll, field, typeName string) *FieldIndex {
	return &FieldIndex{Database: db, Collection: coll, Field: field, Type: typeName}
}

func (fi *FieldIndex) ID() string {
	return IndexID(fi.Database, fi.Collection, fi.Field, fi.Type)
}

func (fi *FieldIndex) Len() int {
	return len(fi.Entries)
}

// find binary-searches for v, returning its position or the insertion point.
func (fi *FieldIndex) find(v FieldValue) (int, bool) {
	i := sort.Search(len(fi.Entries), func(i int) bool {
		return fi.Entries[i].Value.Compare(v) >= 0
	})
	return i, i < len(fi.Entries) && fi.Entries[i].Value.Compare(v) == 0
}

// Lookup returns the ids of the entry equal to v.
func (fi *FieldIndex) Lookup(v FieldValue) (KeySet, bool) {
	i, ok := fi.find(v)
	if !ok {
		return nil, false
	}
	return fi.Entries[i].IDs, true
}

// Add records that pk has value v, inserting a new entry at its sorted
// position if needed. It returns the index of the touched entry.
func (fi *FieldIndex) Add(v FieldValue, pk string) int {
	i, ok := fi.find(v)
	if ok {
		fi.Entries[i].IDs.Add(pk)
		return i
	}
	fi.Entries = append(fi.Entries, FieldIndexEntry{})
	copy(fi.Entries[i+1:], fi.Entries[i:])
	fi.Entries[i] = FieldIndexEntry{fi.Database, fi.Collection, v, NewKeySet(pk)}
	return i
}

// Remove drops pk from the entry equal to v and removes the entry once it is
// empty. It returns the index of the touched entry, or -1 if pk was not there.
func (fi *FieldIndex) Remove(v FieldValue, pk string) int {
	i, ok := fi.find(v)
	if !ok || !fi.Entries[i].IDs.Has(pk) {
		return -1
	}
	fi.Entries[i].IDs.Remove(pk)
	if fi.Entries[i].IDs.Len() == 0 {
		fi.Entries = append(fi.Entries[:i], fi.Entries[i+1:]...)
	}
	return i
}

// Clone copies the index deeply enough to be mutated independently.
func (fi *FieldIndex) Clone() *FieldIndex {
	c := *fi
	c.Entries = make([]FieldIndexEntry, len(fi.Entries))
	for i, e := range fi.Entries {
		e.IDs = e.IDs.Clone()
		c.Entries[i] = e
	}
	return &c
}

func (fi *FieldIndex) IsSorted() bool {
	for i := 1; i < len(fi.Entries); i++ {
		if fi.Entries[i-1].Value.Compare(fi.Entries[i].Value) >= 0 {
			return false
		}
	}
	return true
}

// Keys returns every primary key present in the index.
func (fi *FieldIndex) Keys() KeySet {
	all := make(KeySet)
	for _, e := range fi.Entries {
		all.AddAll(e.IDs)
	}
	return all
}

func buildFieldIndex(db, coll, field string, typ *valueType, docs []*Document) *FieldIndex {
	fi := newFieldIndex(db, coll, field, typ.name)
	for _, doc := range docs {
		if v, ok := extractField(doc, field, typ); ok {
			fi.Add(v, doc.Key)
		}
	}
	return fi
}

func extractField(doc *Document, field string, typ *valueType) (FieldValue, bool) {
	raw, ok := doc.Field(field)
	if !ok {
		return FieldValue{}, false
	}
	return typ.extract(raw)
}

// fieldIndexFile persists a FieldIndex as value|id1;id2;... lines in
// ascending value order.
type fieldIndexFile struct {
	fs    afero.Fs
	path  string
	db    string
	coll  string
	field string
	typ   *valueType
}

func (f *fieldIndexFile) Create() error {
	return createFile(f.fs, f.path)
}

func (f *fieldIndexFile) Exists() bool {
	ok, _ := afero.Exists(f.fs, f.path)
	return ok
}

func (f *fieldIndexFile) Remove() error {
	err := f.fs.Remove(f.path)
	return notFoundErr(err, f.path)
}

// Load reads the whole index; ErrNotFound means there is no such index.
func (f *fieldIndexFile) Load() (*FieldIndex, error) {
	lines, _, err := readLines(f.fs, f.path)
	if err != nil {
		return nil, err
	}
	fi := newFieldIndex(f.db, f.coll, f.field, f.typ.name)
	fi.Entries = make([]FieldIndexEntry, 0, len(lines))
	for i, l := range lines {
		parts, err := splitIndexLine(f.path, i, l, 2)
		if err != nil {
			return nil, err
		}
		v, err := f.typ.parse(parts[0])
		if err != nil {
			return nil, indexLineErr(f.path, i, l, err)
		}
		ids, err := splitEscaped(rawIDs(l.text), ';')
		if err != nil {
			return nil, indexLineErr(f.path, i, l, err)
		}
		set := NewKeySet()
		for _, id := range ids {
			if id != "" {
				set.Add(id)
			}
		}
		if set.Len() == 0 {
			return nil, indexLineErr(f.path, i, l, errors.New("entry has no ids"))
		}
		if n := len(fi.Entries); n > 0 && fi.Entries[n-1].Value.Compare(v) >= 0 {
			return nil, indexLineErr(f.path, i, l, errors.New("entries out of order"))
		}
		fi.Entries = append(fi.Entries, FieldIndexEntry{f.db, f.coll, v, set})
	}
	return fi, nil
}

// rawIDs returns the still-escaped id list of a field index line, i.e. the
// text after the first unescaped '|'.
func rawIDs(line string) string {
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case '|':
			return line[i+1:]
		}
	}
	return ""
}

// Save persists fi, rewriting the file from entry from onwards; entries
// before from must be unchanged since the last save.
func (f *fieldIndexFile) Save(fi *FieldIndex, from int) error {
	if from < 0 {
		return nil
	}
	lines, size, err := readLines(f.fs, f.path)
	if err != nil {
		return err
	}
	off := size
	if from < len(lines) {
		off = lines[from].off
	} else {
		from = len(lines)
	}
	var out []string
	if from < len(fi.Entries) {
		out = make([]string, 0, len(fi.Entries)-from)
		for _, e := range fi.Entries[from:] {
			out = append(out, e.line())
		}
	}
	return rewriteFrom(f.fs, f.path, off, out)
}
