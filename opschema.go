package docstore

import (
	"slices"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Locks are always taken in this order: database name, collection, field
// indexes (sorted), admin databases, admin collections.

// CreateDatabase registers an empty database.
func (db *DB) CreateDatabase(d string) error {
	if err := validateUserName("database", d); err != nil {
		return err
	}
	defer db.lock(d, adminDatabasesLock)()

	_, exists, err := db.cache.Collections(d)
	if err != nil {
		return err
	}
	if exists {
		return collErrf(d, "", "", ErrExists, "database already exists")
	}
	if err := db.fs.MkdirAll(db.layout.databaseDir(d), 0755); err != nil {
		return errors.WithMessagef(err, "creating database %s", d)
	}
	if err := db.putAdmin(adminDatabases, databaseDocument(d, nil)); err != nil {
		return err
	}
	db.cache.SetCollections(d, nil)
	db.log.WithField("db", d).Info("database created")
	return nil
}

// DropDatabase removes a database with all of its collections.
func (db *DB) DropDatabase(d string) error {
	if err := validateUserName("database", d); err != nil {
		return err
	}
	names, err := db.dropDatabase(d)
	if err != nil {
		return err
	}
	for _, name := range names {
		db.locks.Remove(name)
	}
	return nil
}

// dropDatabase returns the names of the locks guarding what it removed.
func (db *DB) dropDatabase(d string) ([]string, error) {
	defer db.lock(d)()

	colls, exists, err := db.cache.Collections(d)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, collErrf(d, "", "", ErrNotFound, "database does not exist")
	}
	slices.Sort(colls)

	collLocks := make([]string, len(colls))
	for i, c := range colls {
		collLocks[i] = CollectionID(d, c)
	}
	defer db.lock(collLocks...)()

	var idxLocks []string
	for _, c := range colls {
		meta, err := db.collection(d, c)
		if err != nil {
			return nil, err
		}
		idxLocks = append(idxLocks, indexLocks(meta)...)
	}
	slices.Sort(idxLocks)
	defer db.lock(idxLocks...)()
	defer db.lock(adminDatabasesLock, adminCollectionsLock)()

	for _, c := range colls {
		if err := db.deleteAdmin(adminCollections, CollectionID(d, c)); err != nil {
			return nil, err
		}
	}
	if err := db.deleteAdmin(adminDatabases, d); err != nil {
		return nil, err
	}
	db.cache.EvictDatabase(d)
	if err := db.fs.RemoveAll(db.layout.databaseDir(d)); err != nil {
		db.inconsistent(d, "", "", err)
		return nil, errors.WithMessagef(err, "removing database %s", d)
	}
	db.log.WithFields(log.Fields{"db": d, "collections": len(colls)}).Info("database dropped")
	return append(collLocks, idxLocks...), nil
}

// Databases lists the user databases in name order.
func (db *DB) Databases() ([]string, error) {
	defer db.lock(adminDatabasesLock)()
	return db.cache.Databases()
}

// CreateCollection creates an empty collection without indexes.
func (db *DB) CreateCollection(d, c string) error {
	if err := validateUserName("database", d); err != nil {
		return err
	}
	if err := validateUserName("collection", c); err != nil {
		return err
	}
	defer db.lock(d, CollectionID(d, c), adminDatabasesLock, adminCollectionsLock)()

	colls, exists, err := db.cache.Collections(d)
	if err != nil {
		return err
	}
	if !exists {
		return collErrf(d, "", "", ErrNotFound, "database does not exist")
	}
	if slices.Contains(colls, c) {
		return collErrf(d, c, "", ErrExists, "collection already exists")
	}

	rs := db.layout.records(d, c)
	if err := rs.Create(); err != nil {
		return collErrf(d, c, "", err, "creating data file")
	}
	if err := db.layout.pkIndex(d, c).Create(); err != nil {
		return collErrf(d, c, "", err, "creating primary key index")
	}

	meta := &CollectionMeta{Database: d, Collection: c, Indexes: []IndexSpec{}}
	if err := db.saveMeta(meta); err != nil {
		return err
	}
	colls = append(colls, c)
	slices.Sort(colls)
	if err := db.putAdmin(adminDatabases, databaseDocument(d, colls)); err != nil {
		return err
	}
	db.cache.SetCollections(d, colls)
	db.log.WithFields(log.Fields{"db": d, "coll": c}).Info("collection created")
	return nil
}

// DropCollection removes a collection, its documents and its indexes.
func (db *DB) DropCollection(d, c string) error {
	names, err := db.dropCollection(d, c)
	if err != nil {
		return err
	}
	for _, name := range names {
		db.locks.Remove(name)
	}
	return nil
}

func (db *DB) dropCollection(d, c string) ([]string, error) {
	collLock := CollectionID(d, c)
	defer db.lock(d, collLock)()

	meta, err := db.collection(d, c)
	if err != nil {
		return nil, err
	}
	idxLocks := indexLocks(meta)
	defer db.lock(idxLocks...)()
	defer db.lock(adminDatabasesLock, adminCollectionsLock)()

	colls, _, err := db.cache.Collections(d)
	if err != nil {
		return nil, err
	}
	colls = slices.DeleteFunc(colls, func(name string) bool { return name == c })

	if err := db.deleteAdmin(adminCollections, collLock); err != nil {
		return nil, err
	}
	if err := db.putAdmin(adminDatabases, databaseDocument(d, colls)); err != nil {
		return nil, err
	}
	db.cache.SetCollections(d, colls)
	db.cache.EvictCollection(d, c)
	if err := db.layout.records(d, c).Remove(); err != nil {
		db.inconsistent(d, c, "", err)
		return nil, err
	}
	db.log.WithFields(log.Fields{"db": d, "coll": c}).Info("collection dropped")
	return append(idxLocks, collLock), nil
}

// Collections lists the collections of a database in name order.
func (db *DB) Collections(d string) ([]string, error) {
	defer db.lock(d)()
	colls, exists, err := db.cache.Collections(d)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, collErrf(d, "", "", ErrNotFound, "database does not exist")
	}
	return colls, nil
}

// CreateIndex declares an index on field for values of typeName and builds
// it from the documents already stored.
func (db *DB) CreateIndex(d, c, field, typeName string) error {
	if err := validateName("field", field); err != nil {
		return err
	}
	typ, err := db.types.lookup(typeName)
	if err != nil {
		return err
	}
	unlock := db.lock(CollectionID(d, c))
	defer unlock()

	meta, err := db.collection(d, c)
	if err != nil {
		return err
	}
	spec := IndexSpec{field, typeName}
	if meta.HasIndex(field, typeName) {
		return collErrf(d, c, "", ErrExists, "index %v already exists", spec)
	}
	defer db.lock(IndexID(d, c, field, typeName), adminCollectionsLock)()

	docs, err := db.cache.WholeCollection(d, c)
	if err != nil {
		return err
	}
	fi := buildFieldIndex(d, c, field, typ, docs)

	file := db.layout.fieldIndex(d, c, field, typ)
	if file.Exists() {
		db.log.WithFields(log.Fields{"db": d, "coll": c, "index": spec}).Warn("replacing undeclared index file")
		if err := file.Remove(); err != nil {
			return err
		}
	}
	if err := file.Create(); err != nil {
		return collErrf(d, c, "", err, "creating index %v", spec)
	}
	if err := file.Save(fi, 0); err != nil {
		return collErrf(d, c, "", err, "saving index %v", spec)
	}
	db.cache.PutFieldIndex(fi)

	meta.Indexes = append(meta.Indexes, spec)
	if err := db.saveMeta(meta); err != nil {
		return err
	}
	db.log.WithFields(log.Fields{"db": d, "coll": c, "index": spec, "entries": fi.Len()}).Info("index created")
	return nil
}

// DropIndex forgets an index and deletes its file.
func (db *DB) DropIndex(d, c, field, typeName string) error {
	typ, err := db.types.lookup(typeName)
	if err != nil {
		return err
	}
	unlock := db.lock(CollectionID(d, c))
	defer unlock()

	meta, err := db.collection(d, c)
	if err != nil {
		return err
	}
	spec := IndexSpec{field, typeName}
	i := meta.indexPos(field, typeName)
	if i < 0 {
		return collErrf(d, c, "", ErrNotFound, "index %v does not exist", spec)
	}
	name := IndexID(d, c, field, typeName)
	defer db.lock(name, adminCollectionsLock)()

	meta.Indexes = slices.Delete(meta.Indexes, i, i+1)
	if err := db.saveMeta(meta); err != nil {
		return err
	}
	if err := db.layout.fieldIndex(d, c, field, typ).Remove(); err != nil && !errors.Is(err, ErrNotFound) {
		db.inconsistent(d, c, "", err)
		return err
	}
	db.cache.EvictFieldIndex(d, c, field, typeName)
	db.log.WithFields(log.Fields{"db": d, "coll": c, "index": spec}).Info("index dropped")
	return nil
}

// Indexes lists the declared indexes of a collection in creation order.
func (db *DB) Indexes(d, c string) ([]IndexSpec, error) {
	defer db.lock(CollectionID(d, c))()
	meta, err := db.collection(d, c)
	if err != nil {
		return nil, err
	}
	return meta.Indexes, nil
}
