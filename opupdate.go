package docstore

import "strings"

// Update replaces the document with the same key. The record moves within
// the data file if its encoded length changes.
func (db *DB) Update(d, c string, doc *Document) error {
	return db.UpdateMany(d, c, []*Document{doc})
}

// UpdateMany replaces several documents under one collection lock. Every
// key must exist; this is checked before anything is written.
func (db *DB) UpdateMany(d, c string, docs []*Document) error {
	unlock := db.lock(CollectionID(d, c))
	defer unlock()

	meta, err := db.collection(d, c)
	if err != nil {
		return err
	}

	olds := make([]*Document, len(docs))
	seen := make(KeySet, len(docs))
	for i, doc := range docs {
		if doc.Key == "" {
			return collErrf(d, c, "", ErrNotFound, "document has no %s", KeyField)
		}
		if strings.TrimSpace(doc.Key) == "" {
			return collErrf(d, c, "", ErrInvalidName, "%s %q is blank", KeyField, doc.Key)
		}
		if seen.Has(doc.Key) {
			return collErrf(d, c, doc.Key, ErrDuplicateKey, "key repeated within the batch")
		}
		seen.Add(doc.Key)
		old, ok, err := db.cache.ByID(d, c, doc.Key)
		if err != nil {
			return err
		}
		if !ok {
			return collErrf(d, c, doc.Key, ErrNotFound, "document does not exist")
		}
		olds[i] = old
	}

	defer db.lock(indexLocks(meta)...)()
	for i, doc := range docs {
		// locations move with every size-changing edit, so look up afresh
		e, ok, err := db.cache.PkEntry(d, c, doc.Key)
		if err != nil {
			return err
		}
		if !ok {
			return collErrf(d, c, doc.Key, ErrNotFound, "document vanished from the primary key index")
		}
		if err := db.rewriteRecord(d, c, meta.Indexes, e, olds[i], doc.Clone()); err != nil {
			return err
		}
	}
	db.logMutation("update", d, c, len(docs))
	return nil
}
