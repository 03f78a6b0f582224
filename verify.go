package docstore

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Problem is one inconsistency found by Verify.
type Problem struct {
	Database   string
	Collection string
	Index      string // empty for data file and primary key problems
	Key        string
	Msg        string
}

func (p Problem) String() string {
	var buf strings.Builder
	buf.WriteString(CollectionID(p.Database, p.Collection))
	if p.Index != "" {
		buf.WriteString(" index ")
		buf.WriteString(p.Index)
	}
	if p.Key != "" {
		fmt.Fprintf(&buf, " [%s]", p.Key)
	}
	buf.WriteString(": ")
	buf.WriteString(p.Msg)
	return buf.String()
}

type verifier struct {
	d, c     string
	problems []Problem
}

func (v *verifier) addf(index, key, format string, args ...any) {
	v.problems = append(v.problems, Problem{v.d, v.c, index, key, fmt.Sprintf(format, args...)})
}

// Verify reads the files of a collection from disk, bypassing the cache,
// and reports every inconsistency between them: primary key entries that do
// not partition the data file exactly, records that do not decode or belong
// to another key, a document count that disagrees with the admin record,
// and field indexes that are unsorted or disagree with the documents.
func (db *DB) Verify(d, c string) ([]Problem, error) {
	defer db.lock(CollectionID(d, c))()
	meta, err := db.collection(d, c)
	if err != nil {
		return nil, err
	}
	defer db.lock(indexLocks(meta)...)()

	v := &verifier{d: d, c: c}
	docs, err := db.verifyRecords(v, meta)
	if err != nil {
		return nil, err
	}
	for _, spec := range meta.Indexes {
		if err := db.verifyIndex(v, spec, docs); err != nil {
			return nil, err
		}
	}
	if len(v.problems) > 0 {
		db.log.WithFields(log.Fields{"db": d, "coll": c, "problems": len(v.problems)}).Warn("verification failed")
	}
	return v.problems, nil
}

// VerifyAll verifies every collection of every database.
func (db *DB) VerifyAll() ([]Problem, error) {
	dbs, err := db.Databases()
	if err != nil {
		return nil, err
	}
	var problems []Problem
	for _, d := range dbs {
		colls, err := db.Collections(d)
		if err != nil {
			return nil, err
		}
		for _, c := range colls {
			p, err := db.Verify(d, c)
			if err != nil {
				return nil, err
			}
			problems = append(problems, p...)
		}
	}
	return problems, nil
}

func (db *DB) verifyRecords(v *verifier, meta *CollectionMeta) ([]*Document, error) {
	rs := db.layout.records(v.d, v.c)
	size, err := rs.Size()
	if err != nil {
		return nil, err
	}
	entries, err := db.layout.pkIndex(v.d, v.c).Load()
	var ife *IndexFileError
	if errors.As(err, &ife) {
		v.addf("", "", "primary key index: %v", err)
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	if len(entries) != meta.Count {
		v.addf("", "", "admin count is %d, primary key index has %d entries", meta.Count, len(entries))
	}

	seen := make(KeySet, len(entries))
	for _, e := range entries {
		if seen.Has(e.Value) {
			v.addf("", e.Value, "duplicate primary key index entry")
		}
		seen.Add(e.Value)
	}

	byPos := slices.Clone(entries)
	slices.SortFunc(byPos, func(a, b PkIndexEntry) int {
		return cmp.Compare(a.Position, b.Position)
	})
	var next uint64
	for _, e := range byPos {
		if e.Position != next {
			v.addf("", e.Value, "record at %v, expected position %d", e.Location(), next)
		}
		next = e.Location().End()
	}
	if next != uint64(size) {
		v.addf("", "", "records end at %d, data file has %d bytes", next, size)
	}

	docs := make([]*Document, 0, len(entries))
	for _, e := range entries {
		if e.Location().End() > uint64(size) {
			v.addf("", e.Value, "record at %v is beyond the end of the data file", e.Location())
			continue
		}
		doc, err := rs.Get(e.Location())
		if err != nil {
			v.addf("", e.Value, "%v", err)
			continue
		}
		if doc.Key != e.Value {
			v.addf("", e.Value, "record at %v belongs to %q", e.Location(), doc.Key)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (db *DB) verifyIndex(v *verifier, spec IndexSpec, docs []*Document) error {
	typ, err := db.types.lookup(spec.Type)
	if err != nil {
		v.addf(spec.String(), "", "%v", err)
		return nil
	}
	fi, err := db.layout.fieldIndex(v.d, v.c, spec.Field, typ).Load()
	var ife *IndexFileError
	if errors.Is(err, ErrNotFound) {
		v.addf(spec.String(), "", "index file is missing")
		return nil
	} else if errors.As(err, &ife) {
		v.addf(spec.String(), "", "%v", err)
		return nil
	} else if err != nil {
		return err
	}
	if !fi.IsSorted() {
		v.addf(spec.String(), "", "entries are not in ascending order")
	}

	want := buildFieldIndex(v.d, v.c, spec.Field, typ, docs)
	for _, e := range fi.Entries {
		ids, ok := want.Lookup(e.Value)
		if !ok {
			v.addf(spec.String(), "", "value %q has no matching documents", e.Value.String())
			continue
		}
		for _, id := range e.IDs.Sorted() {
			if !ids.Has(id) {
				v.addf(spec.String(), id, "listed under %q but the document does not have that value", e.Value.String())
			}
		}
	}
	for _, e := range want.Entries {
		ids, _ := fi.Lookup(e.Value)
		for _, id := range e.IDs.Sorted() {
			if !ids.Has(id) {
				v.addf(spec.String(), id, "missing from the entry for %q", e.Value.String())
			}
		}
	}
	return nil
}
