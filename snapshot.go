package docstore

import (
	"encoding/binary"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

// Snapshot archives are Bolt files on the OS filesystem:
//
//	_meta        "header" -> msgpack(snapshotHeader)
//	             <collection id> -> msgpack(CollectionMeta)
//	<collection id>  big-endian sequence -> snappy(msgpack(snapshotRecord))
//
// Records keep their insertion order through the sequence keys.

const snapshotVersion = 1

var (
	metaBucket = []byte("_meta")
	headerKey  = []byte("header")
)

type snapshotHeader struct {
	Version   int                 `msgpack:"v"`
	Created   time.Time           `msgpack:"t"`
	Databases map[string][]string `msgpack:"d"`
}

type snapshotRecord struct {
	Key  string `msgpack:"k"`
	JSON []byte `msgpack:"j"`
	Sum  uint64 `msgpack:"s"`
}

func encodeSnapshotRecord(doc *Document) ([]byte, error) {
	data, err := doc.MarshalJSON()
	if err != nil {
		return nil, err
	}
	raw, err := msgpack.Marshal(&snapshotRecord{doc.Key, data, xxhash.Sum64(data)})
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

func decodeSnapshotRecord(value []byte) (*Document, error) {
	raw, err := snappy.Decode(nil, value)
	if err != nil {
		return nil, errors.WithMessage(err, "decompressing record")
	}
	var rec snapshotRecord
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return nil, errors.WithMessage(err, "decoding record")
	}
	if sum := xxhash.Sum64(rec.JSON); sum != rec.Sum {
		return nil, errors.Wrapf(ErrChecksum, "record %s: %016x, expected %016x", rec.Key, sum, rec.Sum)
	}
	doc, err := ParseDocument(rec.JSON)
	if err != nil {
		return nil, dataErrf(rec.JSON, 0, err, "record %s", rec.Key)
	}
	if doc.Key != rec.Key {
		return nil, errors.Errorf("record %s holds document %s", rec.Key, doc.Key)
	}
	return doc, nil
}

func seqKey(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}

// Snapshot writes every user database to a new archive at path. Each
// collection is copied under its own lock, so the archive is consistent per
// collection but not across collections.
func (db *DB) Snapshot(path string) error {
	dbs, err := db.Databases()
	if err != nil {
		return err
	}
	header := snapshotHeader{
		Version:   snapshotVersion,
		Created:   time.Now().UTC(),
		Databases: make(map[string][]string, len(dbs)),
	}
	for _, d := range dbs {
		colls, err := db.Collections(d)
		if err != nil {
			return err
		}
		header.Databases[d] = colls
	}

	bdb, err := bbolt.Open(path, 0644, &bbolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return errors.WithMessagef(err, "opening snapshot %s", path)
	}
	defer bdb.Close()

	var docCount int
	err = bdb.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(metaBucket) != nil {
			return errors.Wrapf(ErrExists, "snapshot %s is not empty", path)
		}
		mb, err := tx.CreateBucket(metaBucket)
		if err != nil {
			return err
		}
		for _, d := range dbs {
			for _, c := range header.Databases[d] {
				n, err := db.snapshotCollection(tx, mb, d, c)
				if err != nil {
					return err
				}
				docCount += n
			}
		}
		raw, err := msgpack.Marshal(&header)
		if err != nil {
			return err
		}
		return mb.Put(headerKey, raw)
	})
	if err != nil {
		return err
	}
	if err := bdb.Close(); err != nil {
		return errors.WithMessagef(err, "closing snapshot %s", path)
	}
	db.log.WithFields(log.Fields{"path": path, "databases": len(dbs), "docs": docCount}).Info("snapshot written")
	return nil
}

func (db *DB) snapshotCollection(tx *bbolt.Tx, mb *bbolt.Bucket, d, c string) (int, error) {
	defer db.lock(CollectionID(d, c))()
	meta, err := db.collection(d, c)
	if err != nil {
		return 0, err
	}
	docs, err := db.cache.WholeCollection(d, c)
	if err != nil {
		return 0, err
	}

	raw, err := msgpack.Marshal(meta)
	if err != nil {
		return 0, err
	}
	if err := mb.Put([]byte(meta.ID()), raw); err != nil {
		return 0, err
	}
	b, err := tx.CreateBucket([]byte(meta.ID()))
	if err != nil {
		return 0, errors.WithMessagef(err, "snapshot bucket %s", meta.ID())
	}
	for i, doc := range docs {
		value, err := encodeSnapshotRecord(doc)
		if err != nil {
			return 0, collErrf(d, c, doc.Key, err, "encoding snapshot record")
		}
		if err := b.Put(seqKey(uint64(i)), value); err != nil {
			return 0, err
		}
	}
	return len(docs), nil
}

// Restore recreates the databases of an archive written by Snapshot. None of
// them may exist yet. Documents keep their keys and order; indexes are
// rebuilt from the documents.
func (db *DB) Restore(path string) error {
	bdb, err := bbolt.Open(path, 0644, &bbolt.Options{Timeout: 10 * time.Second, ReadOnly: true})
	if err != nil {
		return errors.WithMessagef(err, "opening snapshot %s", path)
	}
	defer bdb.Close()

	var docCount int
	err = bdb.View(func(tx *bbolt.Tx) error {
		mb := tx.Bucket(metaBucket)
		if mb == nil {
			return errors.Errorf("%s is not a docstore snapshot", path)
		}
		var header snapshotHeader
		if err := msgpack.Unmarshal(mb.Get(headerKey), &header); err != nil {
			return errors.WithMessage(err, "snapshot header")
		}
		if header.Version != snapshotVersion {
			return errors.Errorf("unsupported snapshot version %d", header.Version)
		}

		existing, err := db.Databases()
		if err != nil {
			return err
		}
		for d := range header.Databases {
			for _, e := range existing {
				if e == d {
					return collErrf(d, "", "", ErrExists, "cannot restore over an existing database")
				}
			}
		}

		for d, colls := range header.Databases {
			if err := db.CreateDatabase(d); err != nil {
				return err
			}
			for _, c := range colls {
				n, err := db.restoreCollection(tx, mb, d, c)
				if err != nil {
					return err
				}
				docCount += n
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	db.log.WithFields(log.Fields{"path": path, "docs": docCount}).Info("snapshot restored")
	return nil
}

func (db *DB) restoreCollection(tx *bbolt.Tx, mb *bbolt.Bucket, d, c string) (int, error) {
	id := CollectionID(d, c)
	var meta CollectionMeta
	if err := msgpack.Unmarshal(mb.Get([]byte(id)), &meta); err != nil {
		return 0, collErrf(d, c, "", err, "decoding snapshot metadata")
	}
	b := tx.Bucket([]byte(id))
	if b == nil {
		return 0, collErrf(d, c, "", ErrNotFound, "snapshot has no records bucket")
	}

	var docs []*Document
	err := b.ForEach(func(_, v []byte) error {
		doc, err := decodeSnapshotRecord(v)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return 0, collErrf(d, c, "", err, "reading snapshot")
	}
	if len(docs) != meta.Count {
		db.log.WithFields(log.Fields{"db": d, "coll": c, "count": meta.Count, "docs": len(docs)}).Warn("snapshot count disagrees with its records")
	}

	if err := db.CreateCollection(d, c); err != nil {
		return 0, err
	}
	if _, err := db.InsertMany(d, c, docs); err != nil {
		return 0, err
	}
	for _, spec := range meta.Indexes {
		if err := db.CreateIndex(d, c, spec.Field, spec.Type); err != nil {
			return 0, err
		}
	}
	return len(docs), nil
}
