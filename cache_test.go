package docstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCache_NoIndexIsDistinctFromEmptyIndex(t *testing.T) {
	db, _ := setup(t)
	setupCollection(t, db, "shop", "people")
	c := db.Cache()

	_, ok, err := c.FieldIndex("shop", "people", "age", TypeDouble)
	require.NoError(t, err)
	require.False(t, ok)

	ids, ok, err := c.IdsFromIndex("shop", "people", "age", Equals, Scalar(Double(1)))
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, ids)

	require.NoError(t, db.CreateIndex("shop", "people", "age", TypeDouble))
	fi, ok, err := c.FieldIndex("shop", "people", "age", TypeDouble)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, fi.Len())

	ids, ok, err = c.IdsFromIndex("shop", "people", "age", Equals, Scalar(Double(1)))
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, ids)

	_, ok, err = c.IdsFromIndex("shop", "people", "age", Equals, Scalar(Str("1")))
	require.NoError(t, err)
	require.False(t, ok, "the operand's type selects the index")

	_, _, err = c.IdsFromIndex("shop", "people", "age", Operator(0), Scalar(Double(1)))
	require.ErrorIs(t, err, ErrUnsupportedOperator)
}

func TestCache_ReturnsCopies(t *testing.T) {
	db, _ := setup(t)
	setupCollection(t, db, "shop", "people")
	require.NoError(t, db.CreateIndex("shop", "people", "age", TypeDouble))
	_, err := db.InsertMany("shop", "people", []*Document{person("a", "A", 1), person("b", "B", 2)})
	require.NoError(t, err)
	c := db.Cache()

	fi, _, err := c.FieldIndex("shop", "people", "age", TypeDouble)
	require.NoError(t, err)
	fi.Entries[0].IDs.Add("zz")
	fi.Entries = fi.Entries[:1]

	again, _, err := c.FieldIndex("shop", "people", "age", TypeDouble)
	require.NoError(t, err)
	require.Equal(t, 2, again.Len())
	require.Equal(t, NewKeySet("a"), again.Entries[0].IDs)

	entries, err := c.PkIndex("shop", "people")
	require.NoError(t, err)
	entries[0].Position = 999
	e, ok, err := c.PkEntry("shop", "people", "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(0), e.Position)

	meta, ok, err := c.CollectionMeta("shop", "people")
	require.NoError(t, err)
	require.True(t, ok)
	meta.Indexes[0].Field = "hacked"
	meta, _, err = c.CollectionMeta("shop", "people")
	require.NoError(t, err)
	require.Equal(t, "age", meta.Indexes[0].Field)
}

func TestCache_WholeCollectionReloadsWhenShort(t *testing.T) {
	db, _ := setup(t)
	setupCollection(t, db, "shop", "people")
	_, err := db.InsertMany("shop", "people", []*Document{person("a", "A", 1), person("b", "B", 2), person("c", "C", 3)})
	require.NoError(t, err)
	c := db.Cache()

	c.EvictEntry("shop", "people", "b")
	docs, err := c.WholeCollection("shop", "people")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, keysOf(docs))

	c.EvictCollection("shop", "people")
	docs, err = c.WholeCollection("shop", "people")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, keysOf(docs))
}

func TestCache_EvictDatabaseLeavesOthers(t *testing.T) {
	db, _ := setup(t)
	setupCollection(t, db, "shop", "people")
	setupCollection(t, db, "shopping", "carts")
	c := db.Cache()
	_, _, err := c.CollectionMeta("shop", "people")
	require.NoError(t, err)
	_, _, err = c.CollectionMeta("shopping", "carts")
	require.NoError(t, err)

	c.EvictDatabase("shop")
	c.mu.RLock()
	_, shop := c.meta[CollectionID("shop", "people")]
	_, shopping := c.meta[CollectionID("shopping", "carts")]
	c.mu.RUnlock()
	require.False(t, shop)
	require.True(t, shopping)
}

func TestCache_ConcurrentReaders(t *testing.T) {
	db, _ := setup(t)
	setupCollection(t, db, "shop", "people")
	require.NoError(t, db.CreateIndex("shop", "people", "age", TypeDouble))
	var docs []*Document
	for i := 0; i < 50; i++ {
		docs = append(docs, person(string(rune('A'+i)), "x", float64(i%5)))
	}
	_, err := db.InsertMany("shop", "people", docs)
	require.NoError(t, err)

	// a fresh DB over the same files so every goroutine races on the first load
	fresh := setupOn(t, db.fs)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				ids, ok, err := fresh.Cache().IdsFromIndex("shop", "people", "age", Equals, Scalar(Double(2)))
				if err != nil || !ok || ids.Len() != 10 {
					t.Errorf("lookup: %v %v %d", err, ok, ids.Len())
					return
				}
				all, err := fresh.Cache().WholeCollection("shop", "people")
				if err != nil || len(all) != 50 {
					t.Errorf("whole collection: %v %d", err, len(all))
					return
				}
			}
		}()
	}
	wg.Wait()
}
