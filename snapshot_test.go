package docstore

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/golang/snappy"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_RestoreReproducesStore(t *testing.T) {
	src, _ := setup(t)
	setupCollection(t, src, "shop", "people")
	setupCollection(t, src, "shop", "empty")
	setupCollection(t, src, "crm", "leads")
	require.NoError(t, src.CreateIndex("shop", "people", "age", TypeDouble))
	require.NoError(t, src.CreateIndex("shop", "people", "name", TypeString))
	_, err := src.InsertMany("shop", "people", []*Document{
		person("c", "Carol", 41),
		person("a", "Alice", 30),
		person("b", "Bob", 30),
	})
	require.NoError(t, err)
	require.NoError(t, src.Delete("shop", "people", "a"))
	_, err = src.Insert("crm", "leads", NewDocument("l1", map[string]any{"nested": map[string]any{"x": []any{1.0, "two"}}}))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "snap.db")
	require.NoError(t, src.Snapshot(path))
	require.Error(t, src.Snapshot(path), "snapshots are never overwritten")

	dst, _ := setup(t)
	require.NoError(t, dst.Restore(path))

	dbs, err := dst.Databases()
	require.NoError(t, err)
	require.Equal(t, []string{"crm", "shop"}, dbs)
	colls, err := dst.Collections("shop")
	require.NoError(t, err)
	require.Equal(t, []string{"empty", "people"}, colls)

	for _, dc := range [][2]string{{"shop", "people"}, {"shop", "empty"}, {"crm", "leads"}} {
		want, err := src.All(dc[0], dc[1])
		require.NoError(t, err)
		got, err := dst.All(dc[0], dc[1])
		require.NoError(t, err)
		require.Equal(t, want, got, dc)

		wantIdx, err := src.Indexes(dc[0], dc[1])
		require.NoError(t, err)
		gotIdx, err := dst.Indexes(dc[0], dc[1])
		require.NoError(t, err)
		require.Equal(t, wantIdx, gotIdx)

		requireHealthy(t, dst, dc[0], dc[1])
	}

	docs, err := dst.Find("shop", "people", "age", Equals, Scalar(Double(30)))
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, keysOf(docs))

	require.ErrorIs(t, dst.Restore(path), ErrExists)
}

func TestSnapshotRecord_DetectsCorruption(t *testing.T) {
	doc := person("a", "Alice", 30)
	value, err := encodeSnapshotRecord(doc)
	require.NoError(t, err)

	got, err := decodeSnapshotRecord(value)
	require.NoError(t, err)
	require.Equal(t, doc, got)

	raw, err := snappy.Decode(nil, value)
	require.NoError(t, err)
	i := bytes.Index(raw, []byte("Alice"))
	require.GreaterOrEqual(t, i, 0)
	raw[i] = 'E'
	_, err = decodeSnapshotRecord(snappy.Encode(nil, raw))
	require.ErrorIs(t, err, ErrChecksum)

	_, err = decodeSnapshotRecord([]byte("not snappy"))
	require.Error(t, err)
}

func TestRestore_RejectsForeignFiles(t *testing.T) {
	db, _ := setup(t)
	require.Error(t, db.Restore(filepath.Join(t.TempDir(), "missing.db")))
}
