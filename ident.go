package docstore

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Sep joins the components of collection and index identifiers. Names are
// validated so that they never contain it.
const Sep = "/"

// AdminDatabase holds the metadata of every other database. Names starting
// with an underscore are reserved.
const AdminDatabase = "_admin"

const (
	adminDatabases   = "databases"
	adminCollections = "collections"
)

// CollectionID identifies a collection in the cache and the lock table.
func CollectionID(db, coll string) string {
	return db + Sep + coll
}

// IndexID identifies a field index in the cache and the lock table.
func IndexID(db, coll, field, typeName string) string {
	return db + Sep + coll + Sep + field + Sep + typeName
}

func validateName(kind, name string) error {
	if name == "" || name == "." || name == ".." {
		return errors.Wrapf(ErrInvalidName, "%s name %q", kind, name)
	}
	if strings.ContainsAny(name, "/\\|;\n\x00") {
		return errors.Wrapf(ErrInvalidName, "%s name %q contains a reserved character", kind, name)
	}
	return nil
}

func validateUserName(kind, name string) error {
	if err := validateName(kind, name); err != nil {
		return err
	}
	if strings.HasPrefix(name, "_") {
		return errors.Wrapf(ErrInvalidName, "%s name %q is reserved", kind, name)
	}
	return nil
}

// layout maps databases, collections and indexes onto paths under the base
// directory:
//
//	<base>/<db>/<coll>/<coll>.dat                 records
//	<base>/<db>/<coll>/<coll>.idx                 primary key index
//	<base>/<db>/<coll>/<coll>-<field>-<type>.idx  field index
type layout struct {
	fs   afero.Fs
	base string
}

func (l layout) databaseDir(db string) string {
	return filepath.Join(l.base, db)
}

func (l layout) collectionDir(db, coll string) string {
	return filepath.Join(l.base, db, coll)
}

func (l layout) dataPath(db, coll string) string {
	return filepath.Join(l.base, db, coll, coll+".dat")
}

func (l layout) pkIndexPath(db, coll string) string {
	return filepath.Join(l.base, db, coll, coll+".idx")
}

func (l layout) fieldIndexPath(db, coll, field, typeName string) string {
	return filepath.Join(l.base, db, coll, coll+"-"+field+"-"+typeName+".idx")
}

func (l layout) records(db, coll string) *RecordStore {
	return &RecordStore{
		fs:   l.fs,
		dir:  l.collectionDir(db, coll),
		path: l.dataPath(db, coll),
	}
}

func (l layout) pkIndex(db, coll string) *pkIndexFile {
	return &pkIndexFile{
		fs:   l.fs,
		path: l.pkIndexPath(db, coll),
		db:   db,
		coll: coll,
	}
}

func (l layout) fieldIndex(db, coll, field string, typ *valueType) *fieldIndexFile {
	return &fieldIndexFile{
		fs:    l.fs,
		path:  l.fieldIndexPath(db, coll, field, typ.name),
		db:    db,
		coll:  coll,
		field: field,
		typ:   typ,
	}
}
