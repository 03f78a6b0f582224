package docstore

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func pkEntries(specs ...any) []PkIndexEntry {
	var entries []PkIndexEntry
	for i := 0; i < len(specs); i += 3 {
		entries = append(entries, PkIndexEntry{"db", "coll", specs[i].(string), uint64(specs[i+1].(int)), uint64(specs[i+2].(int))})
	}
	return entries
}

func TestApplyPkEdit_DeleteShifts(t *testing.T) {
	in := pkEntries("a", 0, 25, "b", 25, 30, "c", 55, 10)
	out, first, found := applyPkEdit(in, "a", nil, 0, -25)
	require.True(t, found)
	require.Equal(t, 0, first)
	require.Equal(t, pkEntries("b", 0, 30, "c", 30, 10), out)
	require.Equal(t, pkEntries("a", 0, 25, "b", 25, 30, "c", 55, 10), in, "input must not change")
}

func TestApplyPkEdit_UpdateShiftsOnlyLaterRecords(t *testing.T) {
	in := pkEntries("a", 0, 25, "b", 25, 20, "c", 45, 10)
	newLoc := Location{25, 15}
	out, first, found := applyPkEdit(in, "b", &newLoc, 25, -5)
	require.True(t, found)
	require.Equal(t, 1, first)
	require.Equal(t, pkEntries("a", 0, 25, "b", 25, 15, "c", 40, 10), out)
}

func TestApplyPkEdit_EntriesOutOfPositionOrder(t *testing.T) {
	in := pkEntries("b", 30, 10, "a", 0, 30, "c", 40, 5)
	out, first, found := applyPkEdit(in, "a", nil, 0, -30)
	require.True(t, found)
	require.Equal(t, 0, first)
	require.Equal(t, pkEntries("b", 0, 10, "c", 10, 5), out)
}

func TestApplyPkEdit_Missing(t *testing.T) {
	in := pkEntries("a", 0, 25)
	out, first, found := applyPkEdit(in, "zz", nil, 0, -25)
	require.False(t, found)
	require.Equal(t, -1, first)
	require.Equal(t, in, out)
}

func TestPkIndexFile_AppendEditLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := layout{fs: fs, base: "/base"}
	require.NoError(t, fs.MkdirAll(l.collectionDir("db", "coll"), 0755))
	f := l.pkIndex("db", "coll")
	require.NoError(t, f.Create())

	entries := pkEntries("a|b", 0, 25, "c;d", 25, 30, `e\f`, 55, 10)
	require.NoError(t, f.Append(entries))

	got, err := f.Load()
	require.NoError(t, err)
	require.Equal(t, entries, got)

	require.NoError(t, f.ApplyEdit("c;d", nil, 25, -30))
	got, err = f.Load()
	require.NoError(t, err)
	require.Equal(t, pkEntries("a|b", 0, 25, `e\f`, 25, 10), got)

	newLoc := Location{0, 20}
	require.NoError(t, f.ApplyEdit("a|b", &newLoc, 0, -5))
	got, err = f.Load()
	require.NoError(t, err)
	require.Equal(t, pkEntries("a|b", 0, 20, `e\f`, 20, 10), got)

	require.NoError(t, f.ApplyEdit("a|b", nil, 0, -20))
	require.NoError(t, f.ApplyEdit(`e\f`, nil, 0, -10))
	got, err = f.Load()
	require.NoError(t, err)
	require.Empty(t, got)

	err = f.ApplyEdit("a|b", nil, 0, 0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPkIndexFile_Malformed(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := layout{fs: fs, base: "/base"}.pkIndex("db", "coll")
	require.NoError(t, afero.WriteFile(fs, f.path, []byte("a|0|10\nb|10\n"), 0644))

	_, err := f.Load()
	var ife *IndexFileError
	require.ErrorAs(t, err, &ife)
	require.Equal(t, 2, ife.Line)
	require.Equal(t, f.path, ife.Path)

	require.NoError(t, afero.WriteFile(fs, f.path, []byte("a|x|10\n"), 0644))
	_, err = f.Load()
	require.ErrorAs(t, err, &ife)
	require.Equal(t, 1, ife.Line)
}

func TestPkIndexFile_Missing(t *testing.T) {
	f := layout{fs: afero.NewMemMapFs(), base: "/base"}.pkIndex("db", "coll")
	_, err := f.Load()
	require.ErrorIs(t, err, ErrNotFound)
}
