package docstore

import (
	log "github.com/sirupsen/logrus"
)

// The helpers below persist one mutation to the data file, the primary key
// index and every field index listed, then publish it to the cache. Callers
// hold the collection lock and the locks of the listed indexes.

func (db *DB) appendRecords(d, c string, indexes []IndexSpec, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	locs, err := db.layout.records(d, c).BulkInsert(docs)
	if err != nil {
		return collErrf(d, c, "", err, "appending %d records", len(docs))
	}
	entries := make([]PkIndexEntry, len(docs))
	for i, doc := range docs {
		entries[i] = PkIndexEntry{d, c, doc.Key, locs[i].Position, locs[i].Length}
	}
	if err := db.layout.pkIndex(d, c).Append(entries); err != nil {
		db.inconsistent(d, c, "", err)
		return collErrf(d, c, "", err, "indexing %d appended records", len(docs))
	}
	db.cache.AddPkEntries(d, c, entries...)
	db.cache.PutDocuments(d, c, docs...)

	for _, spec := range indexes {
		err := db.editFieldIndex(d, c, spec, func(fi *FieldIndex, typ *valueType) int {
			from := -1
			for _, doc := range docs {
				if v, ok := extractField(doc, spec.Field, typ); ok {
					from = minFrom(from, fi.Add(v, doc.Key))
				}
			}
			return from
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) rewriteRecord(d, c string, indexes []IndexSpec, e PkIndexEntry, old, doc *Document) error {
	loc, delta, err := db.layout.records(d, c).Update(doc, e.Location())
	if err != nil {
		return collErrf(d, c, doc.Key, err, "rewriting record at %v", e.Location())
	}
	if err := db.layout.pkIndex(d, c).ApplyEdit(doc.Key, &loc, e.Position, delta); err != nil {
		db.inconsistent(d, c, doc.Key, err)
		return err
	}
	db.cache.ApplyPkEdit(d, c, doc.Key, &loc, e.Position, delta)
	db.cache.PutDocuments(d, c, doc)

	for _, spec := range indexes {
		err := db.editFieldIndex(d, c, spec, func(fi *FieldIndex, typ *valueType) int {
			ov, hadOld := extractField(old, spec.Field, typ)
			nv, hasNew := extractField(doc, spec.Field, typ)
			if hadOld && hasNew && ov.Equal(nv) {
				return -1
			}
			from := -1
			if hadOld {
				from = minFrom(from, fi.Remove(ov, doc.Key))
			}
			if hasNew {
				from = minFrom(from, fi.Add(nv, doc.Key))
			}
			return from
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) removeRecord(d, c string, indexes []IndexSpec, e PkIndexEntry, old *Document) error {
	delta, err := db.layout.records(d, c).Delete(e.Location())
	if err != nil {
		return collErrf(d, c, e.Value, err, "removing record at %v", e.Location())
	}
	if err := db.layout.pkIndex(d, c).ApplyEdit(e.Value, nil, e.Position, delta); err != nil {
		db.inconsistent(d, c, e.Value, err)
		return err
	}
	db.cache.ApplyPkEdit(d, c, e.Value, nil, e.Position, delta)
	db.cache.EvictEntry(d, c, e.Value)

	for _, spec := range indexes {
		err := db.editFieldIndex(d, c, spec, func(fi *FieldIndex, typ *valueType) int {
			if v, ok := extractField(old, spec.Field, typ); ok {
				return fi.Remove(v, e.Value)
			}
			return -1
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// editFieldIndex applies edit to a private copy of a field index, saves it
// from the first entry edit reports as changed, and publishes it. edit
// returns -1 when nothing changed.
func (db *DB) editFieldIndex(d, c string, spec IndexSpec, edit func(fi *FieldIndex, typ *valueType) int) error {
	typ, err := db.types.lookup(spec.Type)
	if err != nil {
		return collErrf(d, c, "", err, "index %v", spec)
	}
	fi, ok, err := db.cache.FieldIndex(d, c, spec.Field, spec.Type)
	if err != nil {
		return err
	}
	if !ok {
		db.inconsistent(d, c, "", ErrNotFound)
		return collErrf(d, c, "", ErrNotFound, "index %v is declared but has no file", spec)
	}
	from := edit(fi, typ)
	if from < 0 {
		return nil
	}
	if err := db.layout.fieldIndex(d, c, spec.Field, typ).Save(fi, from); err != nil {
		db.inconsistent(d, c, "", err)
		return collErrf(d, c, "", err, "saving index %v", spec)
	}
	db.cache.PutFieldIndex(fi)
	return nil
}

// inconsistent reports a failure that left the files of a collection out of
// step with each other.
func (db *DB) inconsistent(d, c, key string, err error) {
	db.log.WithFields(log.Fields{"db": d, "coll": c, "key": key, "error": err}).Error("collection files may be inconsistent")
}

// minFrom returns the smaller of two entry positions, where -1 means none.
func minFrom(a, b int) int {
	if a < 0 || (b >= 0 && b < a) {
		return b
	}
	return a
}

// putAdmin inserts or replaces an admin record. The caller holds the lock
// of the admin collection.
func (db *DB) putAdmin(coll string, doc *Document) error {
	e, ok, err := db.cache.PkEntry(AdminDatabase, coll, doc.Key)
	if err != nil {
		return err
	}
	if !ok {
		return db.appendRecords(AdminDatabase, coll, nil, []*Document{doc})
	}
	return db.rewriteRecord(AdminDatabase, coll, nil, e, nil, doc)
}

func (db *DB) deleteAdmin(coll, key string) error {
	e, ok, err := db.cache.PkEntry(AdminDatabase, coll, key)
	if err != nil || !ok {
		return err
	}
	return db.removeRecord(AdminDatabase, coll, nil, e, nil)
}

// saveMeta persists and publishes a collection's admin record. The caller
// holds the admin collections lock.
func (db *DB) saveMeta(meta *CollectionMeta) error {
	if err := db.putAdmin(adminCollections, meta.document()); err != nil {
		return err
	}
	db.cache.SetCollectionMeta(meta)
	return nil
}
