package docstore

import (
	"encoding/json"
	"slices"

	"github.com/pkg/errors"
)

// IndexSpec declares a field index of a collection.
type IndexSpec struct {
	Field string `json:"field" msgpack:"f"`
	Type  string `json:"type" msgpack:"t"`
}

func (s IndexSpec) String() string {
	return s.Field + ":" + s.Type
}

// CollectionMeta is the admin record of a collection: its declared indexes
// and live document count. It is stored as a document of the admin
// database, keyed by the collection identifier.
type CollectionMeta struct {
	Database   string      `json:"database" msgpack:"d"`
	Collection string      `json:"collection" msgpack:"c"`
	Indexes    []IndexSpec `json:"indexes" msgpack:"i"`
	Count      int         `json:"count" msgpack:"n"`
}

func (m *CollectionMeta) ID() string {
	return CollectionID(m.Database, m.Collection)
}

func (m *CollectionMeta) HasIndex(field, typeName string) bool {
	return m.indexPos(field, typeName) >= 0
}

func (m *CollectionMeta) indexPos(field, typeName string) int {
	return slices.Index(m.Indexes, IndexSpec{field, typeName})
}

func (m *CollectionMeta) Clone() *CollectionMeta {
	c := *m
	c.Indexes = slices.Clone(m.Indexes)
	return &c
}

func (m *CollectionMeta) document() *Document {
	indexes := make([]any, len(m.Indexes))
	for i, s := range m.Indexes {
		indexes[i] = map[string]any{"field": s.Field, "type": s.Type}
	}
	return NewDocument(m.ID(), map[string]any{
		"database":   m.Database,
		"collection": m.Collection,
		"indexes":    indexes,
		"count":      float64(m.Count),
	})
}

func collectionMetaFromDocument(doc *Document) (*CollectionMeta, error) {
	m := new(CollectionMeta)
	if err := remarshal(doc.Fields, m); err != nil {
		return nil, errors.WithMessagef(err, "admin record %s", doc.Key)
	}
	if m.ID() != doc.Key {
		return nil, errors.Errorf("admin record %s describes %s", doc.Key, m.ID())
	}
	return m, nil
}

type databaseRecord struct {
	Collections []string `json:"collections"`
}

func databaseDocument(db string, colls []string) *Document {
	names := make([]any, len(colls))
	for i, c := range colls {
		names[i] = c
	}
	return NewDocument(db, map[string]any{"collections": names})
}

func collectionsFromDocument(doc *Document) ([]string, error) {
	var rec databaseRecord
	if err := remarshal(doc.Fields, &rec); err != nil {
		return nil, errors.WithMessagef(err, "admin record %s", doc.Key)
	}
	return rec.Collections, nil
}

func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
