package docstore

import (
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Cache is a lazily populated, write-through mirror of the record files,
// index files and admin metadata.
//
// Every accessor is safe for concurrent use, but the cache gives no
// atomicity across calls: a read-modify-write sequence must hold the
// resource lock of the collection (and index) it touches. Publishing methods
// must only be called after the corresponding durable write succeeded.
// Published values are owned by the cache; accessors return copies.
type Cache struct {
	layout layout
	types  typeRegistry
	log    log.FieldLogger

	mu        sync.RWMutex
	pk        map[string]*pkCache             // collection ID
	fields    map[string]*FieldIndex          // index ID
	docs      map[string]map[string]*Document // collection ID -> pk
	databases map[string][]string             // database -> collections
	meta      map[string]*CollectionMeta      // collection ID
}

// pkCache is immutable once published; edits replace it.
type pkCache struct {
	entries []PkIndexEntry
	byKey   map[string]int
}

func newPkCache(entries []PkIndexEntry) *pkCache {
	pc := &pkCache{entries: entries, byKey: make(map[string]int, len(entries))}
	for i, e := range entries {
		pc.byKey[e.Value] = i
	}
	return pc
}

func newCache(l layout, types typeRegistry, logger log.FieldLogger) *Cache {
	return &Cache{
		layout:    l,
		types:     types,
		log:       logger,
		pk:        make(map[string]*pkCache),
		fields:    make(map[string]*FieldIndex),
		docs:      make(map[string]map[string]*Document),
		databases: make(map[string][]string),
		meta:      make(map[string]*CollectionMeta),
	}
}

func (c *Cache) pkIndex(db, coll string) (*pkCache, error) {
	id := CollectionID(db, coll)
	c.mu.RLock()
	pc := c.pk[id]
	c.mu.RUnlock()
	if pc != nil {
		cacheHitsTotal.WithLabelValues(cachePk).Inc()
		return pc, nil
	}
	cacheMissesTotal.WithLabelValues(cachePk).Inc()

	entries, err := c.layout.pkIndex(db, coll).Load()
	if err != nil {
		return nil, err
	}
	c.log.WithFields(log.Fields{"coll": id, "entries": len(entries)}).Debug("loaded primary key index")

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing := c.pk[id]; existing != nil {
		return existing, nil
	}
	pc = newPkCache(entries)
	c.pk[id] = pc
	return pc, nil
}

// PkIndex returns the primary key index of a collection in file order.
func (c *Cache) PkIndex(db, coll string) ([]PkIndexEntry, error) {
	pc, err := c.pkIndex(db, coll)
	if err != nil {
		return nil, err
	}
	return slices.Clone(pc.entries), nil
}

// PkEntry looks up the location of one document.
func (c *Cache) PkEntry(db, coll, pk string) (PkIndexEntry, bool, error) {
	pc, err := c.pkIndex(db, coll)
	if err != nil {
		return PkIndexEntry{}, false, err
	}
	i, ok := pc.byKey[pk]
	if !ok {
		return PkIndexEntry{}, false, nil
	}
	return pc.entries[i], true, nil
}

// AddPkEntries publishes freshly appended primary key entries.
func (c *Cache) AddPkEntries(db, coll string, entries ...PkIndexEntry) {
	id := CollectionID(db, coll)
	c.mu.Lock()
	defer c.mu.Unlock()
	pc := c.pk[id]
	if pc == nil {
		return
	}
	c.pk[id] = newPkCache(append(slices.Clip(pc.entries), entries...))
}

// ApplyPkEdit publishes an update (newLoc != nil) or delete of pk that moved
// every later record by delta.
func (c *Cache) ApplyPkEdit(db, coll, pk string, newLoc *Location, oldPos uint64, delta int64) {
	id := CollectionID(db, coll)
	c.mu.Lock()
	defer c.mu.Unlock()
	pc := c.pk[id]
	if pc == nil {
		return
	}
	result, _, found := applyPkEdit(pc.entries, pk, newLoc, oldPos, delta)
	if !found {
		c.log.WithFields(log.Fields{"coll": id, "pk": pk}).Warn("edited key missing from cached primary key index, evicting")
		delete(c.pk, id)
		return
	}
	c.pk[id] = newPkCache(result)
}

func (c *Cache) fieldIndex(db, coll, field, typeName string) (*FieldIndex, bool, error) {
	typ, err := c.types.lookup(typeName)
	if err != nil {
		return nil, false, err
	}
	id := IndexID(db, coll, field, typeName)
	c.mu.RLock()
	fi := c.fields[id]
	c.mu.RUnlock()
	if fi != nil {
		cacheHitsTotal.WithLabelValues(cacheField).Inc()
		return fi, true, nil
	}
	cacheMissesTotal.WithLabelValues(cacheField).Inc()

	fi, err = c.layout.fieldIndex(db, coll, field, typ).Load()
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	c.log.WithFields(log.Fields{"index": id, "entries": fi.Len()}).Debug("loaded field index")

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing := c.fields[id]; existing != nil {
		return existing, true, nil
	}
	c.fields[id] = fi
	return fi, true, nil
}

// FieldIndex returns a private copy of a field index. ok is false when the
// collection has no index for this field and type, which is distinct from
// an index with no entries.
func (c *Cache) FieldIndex(db, coll, field, typeName string) (*FieldIndex, bool, error) {
	fi, ok, err := c.fieldIndex(db, coll, field, typeName)
	if !ok || err != nil {
		return nil, ok, err
	}
	return fi.Clone(), true, nil
}

// PutFieldIndex publishes a persisted field index. The cache takes
// ownership of fi.
func (c *Cache) PutFieldIndex(fi *FieldIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fields[fi.ID()] = fi
}

func (c *Cache) EvictFieldIndex(db, coll, field, typeName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.fields, IndexID(db, coll, field, typeName))
}

// IdsFromIndex answers field <op> operand from the field index matching the
// operand's kind. ok is false when there is no such index and the caller
// must scan the collection instead.
func (c *Cache) IdsFromIndex(db, coll, field string, op Operator, operand Operand) (KeySet, bool, error) {
	if !op.IsValid() {
		return nil, false, errors.Wrapf(ErrUnsupportedOperator, "%v", op)
	}
	typeName := operand.TypeName()
	if typeName == "" || c.types[typeName] == nil {
		indexLookupsTotal.WithLabelValues(op.String(), lookupNoIndex).Inc()
		return nil, false, nil
	}
	fi, ok, err := c.fieldIndex(db, coll, field, typeName)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		indexLookupsTotal.WithLabelValues(op.String(), lookupNoIndex).Inc()
		return nil, false, nil
	}
	indexLookupsTotal.WithLabelValues(op.String(), lookupIndexed).Inc()
	ids, err := Search(fi.Entries, op, operand)
	if err != nil {
		return nil, false, err
	}
	return ids, true, nil
}

// ByID returns a document, reading it through the primary key index on a
// miss.
func (c *Cache) ByID(db, coll, pk string) (*Document, bool, error) {
	id := CollectionID(db, coll)
	c.mu.RLock()
	doc := c.docs[id][pk]
	c.mu.RUnlock()
	if doc != nil {
		cacheHitsTotal.WithLabelValues(cacheDoc).Inc()
		return doc.Clone(), true, nil
	}
	cacheMissesTotal.WithLabelValues(cacheDoc).Inc()

	e, ok, err := c.PkEntry(db, coll, pk)
	if !ok || err != nil {
		return nil, false, err
	}
	doc, err = c.layout.records(db, coll).Get(e.Location())
	if err != nil {
		return nil, false, collErrf(db, coll, pk, err, "reading record at %v", e.Location())
	}
	if doc.Key != pk {
		return nil, false, collErrf(db, coll, pk, nil, "record at %v belongs to %q", e.Location(), doc.Key)
	}

	c.mu.Lock()
	m := c.docs[id]
	if m == nil {
		m = make(map[string]*Document)
		c.docs[id] = m
	}
	if _, exists := m[pk]; !exists {
		m[pk] = doc
	}
	c.mu.Unlock()
	return doc.Clone(), true, nil
}

// WholeCollection returns every document in primary key index order. The
// document map is reloaded from disk when it holds fewer documents than the
// collection is registered with.
func (c *Cache) WholeCollection(db, coll string) ([]*Document, error) {
	id := CollectionID(db, coll)
	entries, err := c.PkIndex(db, coll)
	if err != nil {
		return nil, err
	}
	expected := len(entries)
	if db != AdminDatabase {
		meta, ok, err := c.CollectionMeta(db, coll)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, collErrf(db, coll, "", ErrNotFound, "collection is not registered")
		}
		expected = meta.Count
	}

	c.mu.RLock()
	n := len(c.docs[id])
	c.mu.RUnlock()

	if n < expected {
		if n > 0 {
			staleReloadsTotal.Inc()
		}
		c.log.WithFields(log.Fields{"coll": id, "cached": n, "expected": expected}).Debug("reloading collection")
		loaded := make(map[string]*Document, expected)
		err := c.layout.records(db, coll).Scan(func(_ Location, doc *Document) error {
			loaded[doc.Key] = doc
			return nil
		})
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.docs[id] = loaded
		c.mu.Unlock()
	} else {
		cacheHitsTotal.WithLabelValues(cacheDoc).Inc()
	}

	docs := make([]*Document, 0, len(entries))
	var missing []string
	c.mu.RLock()
	m := c.docs[id]
	for _, e := range entries {
		if doc := m[e.Value]; doc != nil {
			docs = append(docs, doc.Clone())
		} else {
			missing = append(missing, e.Value)
		}
	}
	c.mu.RUnlock()

	for _, pk := range missing {
		doc, ok, err := c.ByID(db, coll, pk)
		if err != nil {
			return nil, err
		}
		if ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// PutDocuments publishes persisted documents.
func (c *Cache) PutDocuments(db, coll string, docs ...*Document) {
	id := CollectionID(db, coll)
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.docs[id]
	if m == nil {
		m = make(map[string]*Document, len(docs))
		c.docs[id] = m
	}
	for _, doc := range docs {
		m[doc.Key] = doc.Clone()
	}
}

// EvictEntry forgets a deleted document.
func (c *Cache) EvictEntry(db, coll, pk string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs[CollectionID(db, coll)], pk)
}

// EvictCollection forgets everything about a dropped collection.
func (c *Cache) EvictCollection(db, coll string) {
	id := CollectionID(db, coll)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pk, id)
	delete(c.docs, id)
	delete(c.meta, id)
	deletePrefixed(c.fields, id+Sep)
}

// EvictDatabase forgets every collection of a dropped database.
func (c *Cache) EvictDatabase(db string) {
	prefix := db + Sep
	c.mu.Lock()
	defer c.mu.Unlock()
	deletePrefixed(c.pk, prefix)
	deletePrefixed(c.docs, prefix)
	deletePrefixed(c.meta, prefix)
	deletePrefixed(c.fields, prefix)
	delete(c.databases, db)
}

func deletePrefixed[V any](m map[string]V, prefix string) {
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			delete(m, k)
		}
	}
}

// Databases lists registered databases in name order.
func (c *Cache) Databases() ([]string, error) {
	docs, err := c.WholeCollection(AdminDatabase, adminDatabases)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(docs))
	for i, doc := range docs {
		names[i] = doc.Key
	}
	sort.Strings(names)
	return names, nil
}

// Collections returns the collection names of a database; ok is false when
// the database is not registered.
func (c *Cache) Collections(db string) ([]string, bool, error) {
	c.mu.RLock()
	names, ok := c.databases[db]
	c.mu.RUnlock()
	if ok {
		cacheHitsTotal.WithLabelValues(cacheAdmin).Inc()
		return slices.Clone(names), true, nil
	}
	cacheMissesTotal.WithLabelValues(cacheAdmin).Inc()

	doc, ok, err := c.ByID(AdminDatabase, adminDatabases, db)
	if !ok || err != nil {
		return nil, false, err
	}
	names, err = collectionsFromDocument(doc)
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	if existing, ok := c.databases[db]; ok {
		names = existing
	} else {
		c.databases[db] = names
	}
	c.mu.Unlock()
	return slices.Clone(names), true, nil
}

// SetCollections publishes the persisted collection list of a database.
func (c *Cache) SetCollections(db string, names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.databases[db] = slices.Clone(names)
}

// CollectionMeta returns the admin record of a collection; ok is false when
// the collection is not registered.
func (c *Cache) CollectionMeta(db, coll string) (*CollectionMeta, bool, error) {
	id := CollectionID(db, coll)
	c.mu.RLock()
	meta := c.meta[id]
	c.mu.RUnlock()
	if meta != nil {
		cacheHitsTotal.WithLabelValues(cacheAdmin).Inc()
		return meta.Clone(), true, nil
	}
	cacheMissesTotal.WithLabelValues(cacheAdmin).Inc()

	doc, ok, err := c.ByID(AdminDatabase, adminCollections, id)
	if !ok || err != nil {
		return nil, false, err
	}
	meta, err = collectionMetaFromDocument(doc)
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	if existing := c.meta[id]; existing != nil {
		meta = existing
	} else {
		c.meta[id] = meta
	}
	c.mu.Unlock()
	return meta.Clone(), true, nil
}

// SetCollectionMeta publishes a persisted admin record.
func (c *Cache) SetCollectionMeta(meta *CollectionMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta[meta.ID()] = meta.Clone()
}
