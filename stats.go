package docstore

// CollectionStats describes the on-disk footprint of a collection.
type CollectionStats struct {
	Database   string
	Collection string

	Documents    int
	DataSize     int64
	PkIndexSize  int64
	IndexEntries int
	IndexSize    int64

	Indexes []IndexStats
}

type IndexStats struct {
	Spec    IndexSpec
	Entries int
	Size    int64
}

func (cs *CollectionStats) TotalSize() int64 {
	return cs.DataSize + cs.PkIndexSize + cs.IndexSize
}

// Stats measures one collection.
func (db *DB) Stats(d, c string) (*CollectionStats, error) {
	defer db.lock(CollectionID(d, c))()
	meta, err := db.collection(d, c)
	if err != nil {
		return nil, err
	}

	cs := &CollectionStats{Database: d, Collection: c, Documents: meta.Count}
	if cs.DataSize, err = db.fileSize(db.layout.dataPath(d, c)); err != nil {
		return nil, err
	}
	if cs.PkIndexSize, err = db.fileSize(db.layout.pkIndexPath(d, c)); err != nil {
		return nil, err
	}
	for _, spec := range meta.Indexes {
		is := IndexStats{Spec: spec}
		fi, ok, err := db.cache.FieldIndex(d, c, spec.Field, spec.Type)
		if err != nil {
			return nil, err
		}
		if ok {
			is.Entries = fi.Len()
		}
		if is.Size, err = db.fileSize(db.layout.fieldIndexPath(d, c, spec.Field, spec.Type)); err != nil {
			return nil, err
		}
		cs.Indexes = append(cs.Indexes, is)
		cs.IndexEntries += is.Entries
		cs.IndexSize += is.Size
	}
	return cs, nil
}

// AllStats measures every collection of every database.
func (db *DB) AllStats() ([]*CollectionStats, error) {
	dbs, err := db.Databases()
	if err != nil {
		return nil, err
	}
	var result []*CollectionStats
	for _, d := range dbs {
		colls, err := db.Collections(d)
		if err != nil {
			return nil, err
		}
		for _, c := range colls {
			cs, err := db.Stats(d, c)
			if err != nil {
				return nil, err
			}
			result = append(result, cs)
		}
	}
	return result, nil
}

func (db *DB) fileSize(path string) (int64, error) {
	fi, err := db.fs.Stat(path)
	if err != nil {
		return 0, notFoundErr(err, path)
	}
	return fi.Size(), nil
}
