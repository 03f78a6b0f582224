package docstore

// Get returns the document with the given key.
func (db *DB) Get(d, c, key string) (*Document, error) {
	defer db.lock(CollectionID(d, c))()
	if _, err := db.collection(d, c); err != nil {
		return nil, err
	}
	doc, ok, err := db.cache.ByID(d, c, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, collErrf(d, c, key, ErrNotFound, "document does not exist")
	}
	return doc, nil
}

// All returns every document in insertion order.
func (db *DB) All(d, c string) ([]*Document, error) {
	defer db.lock(CollectionID(d, c))()
	if _, err := db.collection(d, c); err != nil {
		return nil, err
	}
	return db.cache.WholeCollection(d, c)
}

// Count returns the number of documents as recorded in the admin database.
func (db *DB) Count(d, c string) (int, error) {
	defer db.lock(CollectionID(d, c))()
	meta, err := db.collection(d, c)
	if err != nil {
		return 0, err
	}
	return meta.Count, nil
}
