package docstore

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Find returns the documents whose field satisfies op against operand, in
// insertion order. It answers from the field index matching the operand's
// type when the collection has one, and scans the collection otherwise; both
// paths give the same result.
func (db *DB) Find(d, c, field string, op Operator, operand Operand) ([]*Document, error) {
	defer db.lock(CollectionID(d, c))()
	if _, err := db.collection(d, c); err != nil {
		return nil, err
	}
	ids, err := db.findKeys(d, c, field, op, operand)
	if err != nil {
		return nil, err
	}
	entries, err := db.cache.PkIndex(d, c)
	if err != nil {
		return nil, err
	}
	docs := make([]*Document, 0, ids.Len())
	for _, e := range entries {
		if !ids.Has(e.Value) {
			continue
		}
		doc, ok, err := db.cache.ByID(d, c, e.Value)
		if err != nil {
			return nil, err
		}
		if ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// FindKeys is Find without loading the documents.
func (db *DB) FindKeys(d, c, field string, op Operator, operand Operand) (KeySet, error) {
	defer db.lock(CollectionID(d, c))()
	if _, err := db.collection(d, c); err != nil {
		return nil, err
	}
	return db.findKeys(d, c, field, op, operand)
}

func (db *DB) findKeys(d, c, field string, op Operator, operand Operand) (KeySet, error) {
	ids, ok, err := db.cache.IdsFromIndex(d, c, field, op, operand)
	if err != nil {
		return nil, err
	}
	if ok {
		return ids, nil
	}
	return db.scanKeys(d, c, field, op, operand)
}

// scanKeys answers a predicate without a stored index by indexing the
// collection in memory and searching that.
func (db *DB) scanKeys(d, c, field string, op Operator, operand Operand) (KeySet, error) {
	fullScansTotal.Inc()
	if db.verbose {
		db.log.WithFields(log.Fields{"db": d, "coll": c, "field": field, "op": op}).Debug("full scan")
	}
	docs, err := db.cache.WholeCollection(d, c)
	if err != nil {
		return nil, err
	}

	if len(operand.Values()) == 0 {
		switch op {
		case In:
			return make(KeySet), nil
		case NotIn:
			all := make(KeySet, len(docs))
			for _, doc := range docs {
				all.Add(doc.Key)
			}
			return all, nil
		default:
			return Search(nil, op, operand)
		}
	}

	typ, err := db.types.lookup(operand.TypeName())
	if err != nil {
		return nil, errors.WithMessagef(err, "operand %v", operand)
	}
	fi := buildFieldIndex(d, c, field, typ, docs)
	return Search(fi.Entries, op, operand)
}
