package docstore

// Delete removes a document. Every later record in the data file moves left
// by the deleted record's length.
func (db *DB) Delete(d, c, key string) error {
	unlock := db.lock(CollectionID(d, c))
	defer unlock()

	meta, err := db.collection(d, c)
	if err != nil {
		return err
	}
	old, ok, err := db.cache.ByID(d, c, key)
	if err != nil {
		return err
	}
	if !ok {
		return collErrf(d, c, key, ErrNotFound, "document does not exist")
	}
	e, ok, err := db.cache.PkEntry(d, c, key)
	if err != nil {
		return err
	}
	if !ok {
		return collErrf(d, c, key, ErrNotFound, "document vanished from the primary key index")
	}

	defer db.lock(indexLocks(meta)...)()
	if err := db.removeRecord(d, c, meta.Indexes, e, old); err != nil {
		return err
	}

	defer db.lock(adminCollectionsLock)()
	meta.Count--
	if err := db.saveMeta(meta); err != nil {
		return err
	}
	db.logMutation("delete", d, c, 1)
	return nil
}
