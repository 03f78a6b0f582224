package docstore

import (
	"strings"

	"github.com/google/uuid"
)

// Insert adds doc to a collection and returns its primary key. A document
// without a key is assigned a random UUID; a key of only whitespace is
// rejected with ErrInvalidName. doc itself is not modified.
func (db *DB) Insert(d, c string, doc *Document) (string, error) {
	keys, err := db.InsertMany(d, c, []*Document{doc})
	if err != nil {
		return "", err
	}
	return keys[0], nil
}

// InsertMany adds docs under a single collection lock, writing all records
// in one append. Either every key is new or nothing is written.
func (db *DB) InsertMany(d, c string, docs []*Document) ([]string, error) {
	unlock := db.lock(CollectionID(d, c))
	defer unlock()

	meta, err := db.collection(d, c)
	if err != nil {
		return nil, err
	}

	batch := make([]*Document, len(docs))
	keys := make([]string, len(docs))
	seen := make(KeySet, len(docs))
	for i, doc := range docs {
		doc = doc.Clone()
		if doc.Key == "" {
			doc.Key = uuid.NewString()
		} else if strings.TrimSpace(doc.Key) == "" {
			return nil, collErrf(d, c, "", ErrInvalidName, "%s %q is blank", KeyField, doc.Key)
		}
		if seen.Has(doc.Key) {
			return nil, collErrf(d, c, doc.Key, ErrDuplicateKey, "key repeated within the batch")
		}
		seen.Add(doc.Key)
		_, exists, err := db.cache.PkEntry(d, c, doc.Key)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, collErrf(d, c, doc.Key, ErrDuplicateKey, "document already exists")
		}
		batch[i], keys[i] = doc, doc.Key
	}
	if len(batch) == 0 {
		return keys, nil
	}

	defer db.lock(indexLocks(meta)...)()
	if err := db.appendRecords(d, c, meta.Indexes, batch); err != nil {
		return nil, err
	}

	defer db.lock(adminCollectionsLock)()
	meta.Count += len(batch)
	if err := db.saveMeta(meta); err != nil {
		return nil, err
	}
	db.logMutation("insert", d, c, len(batch))
	return keys, nil
}
