package docstore

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func doubleIndex(pairs ...any) *FieldIndex {
	fi := newFieldIndex("db", "coll", "n", TypeDouble)
	for i := 0; i < len(pairs); i += 2 {
		fi.Add(Double(float64(pairs[i].(int))), pairs[i+1].(string))
	}
	return fi
}

func indexValues(fi *FieldIndex) []string {
	var vals []string
	for _, e := range fi.Entries {
		vals = append(vals, e.Value.String())
	}
	return vals
}

func TestFieldIndex_AddRemoveKeepsOrder(t *testing.T) {
	fi := doubleIndex(5, "b", 1, "a", 9, "c", 5, "d")
	require.Equal(t, []string{"1", "5", "9"}, indexValues(fi))
	require.Equal(t, NewKeySet("b", "d"), fi.Entries[1].IDs)

	require.Equal(t, 1, fi.Remove(Double(5), "b"))
	require.Equal(t, []string{"1", "5", "9"}, indexValues(fi))
	require.Equal(t, 1, fi.Remove(Double(5), "d"))
	require.Equal(t, []string{"1", "9"}, indexValues(fi), "empty entries are removed")

	require.Equal(t, -1, fi.Remove(Double(5), "d"))
	require.Equal(t, -1, fi.Remove(Double(1), "zz"))
}

func TestFieldIndex_RandomMutationsStaySorted(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	fi := newFieldIndex("db", "coll", "n", TypeDouble)
	values := make(map[string]float64)
	for i := 0; i < 2000; i++ {
		pk := "k" + strconv.Itoa(rnd.Intn(200))
		if old, ok := values[pk]; ok {
			require.GreaterOrEqual(t, fi.Remove(Double(old), pk), 0)
			delete(values, pk)
		}
		if rnd.Intn(3) > 0 {
			v := float64(rnd.Intn(50))
			fi.Add(Double(v), pk)
			values[pk] = v
		}
		require.True(t, fi.IsSorted())
	}
	for _, e := range fi.Entries {
		require.NotZero(t, e.IDs.Len())
		for id := range e.IDs {
			require.Equal(t, values[id], e.Value.AsDouble())
		}
	}
	require.Equal(t, len(values), fi.Keys().Len())
}

func TestFieldIndex_CloneIsIndependent(t *testing.T) {
	fi := doubleIndex(1, "a", 2, "b")
	c := fi.Clone()
	c.Add(Double(1), "z")
	c.Remove(Double(2), "b")
	require.Equal(t, NewKeySet("a"), fi.Entries[0].IDs)
	require.Equal(t, 2, fi.Len())
}

func TestFieldIndexFile_SaveLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := layout{fs: fs, base: "/base"}
	require.NoError(t, fs.MkdirAll(l.collectionDir("db", "coll"), 0755))
	types, err := newTypeRegistry(nil)
	require.NoError(t, err)
	f := l.fieldIndex("db", "coll", "name", types[TypeString])
	require.NoError(t, f.Create())

	fi := newFieldIndex("db", "coll", "name", TypeString)
	fi.Add(Str("a|b"), "k;1")
	fi.Add(Str("line\nbreak"), `k\2`)
	fi.Add(Str("plain"), "k3")
	fi.Add(Str("plain"), "k4")
	require.NoError(t, f.Save(fi, 0))

	got, err := f.Load()
	require.NoError(t, err)
	require.Equal(t, fi, got)

	// partial rewrite from the first changed entry
	from := fi.Add(Str("b"), "k5")
	from = minFrom(from, fi.Remove(Str("plain"), "k3"))
	require.NoError(t, f.Save(fi, from))
	got, err = f.Load()
	require.NoError(t, err)
	require.Equal(t, fi, got)

	from = fi.Remove(Str("plain"), "k4")
	require.NoError(t, f.Save(fi, from))
	got, err = f.Load()
	require.NoError(t, err)
	require.Equal(t, []string{"a|b", "b", "line\nbreak"}, indexValues(got))
}

func TestFieldIndexFile_Malformed(t *testing.T) {
	fs := afero.NewMemMapFs()
	types, err := newTypeRegistry(nil)
	require.NoError(t, err)
	f := layout{fs: fs, base: "/base"}.fieldIndex("db", "coll", "n", types[TypeDouble])

	tests := []struct {
		content string
		line    int
	}{
		{"1|a\nx|b\n", 2},
		{"1|a\n1|b\n", 2},
		{"5|a\n1|b\n", 2},
		{"1|\n", 1},
		{"1|a|b\n", 1},
	}
	for _, tt := range tests {
		require.NoError(t, afero.WriteFile(fs, f.path, []byte(tt.content), 0644))
		_, err := f.Load()
		var ife *IndexFileError
		require.ErrorAs(t, err, &ife, tt.content)
		require.Equal(t, tt.line, ife.Line, tt.content)
	}
}

func TestFieldIndexFile_MissingIsNotFound(t *testing.T) {
	types, err := newTypeRegistry(nil)
	require.NoError(t, err)
	f := layout{fs: afero.NewMemMapFs(), base: "/base"}.fieldIndex("db", "coll", "n", types[TypeDouble])
	require.False(t, f.Exists())
	_, err = f.Load()
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBuildFieldIndex_SkipsOtherShapes(t *testing.T) {
	types, err := newTypeRegistry(nil)
	require.NoError(t, err)
	docs := []*Document{
		NewDocument("a", map[string]any{"n": 3.0}),
		NewDocument("b", map[string]any{"n": "3"}),
		NewDocument("c", map[string]any{"m": 1.0}),
		NewDocument("d", map[string]any{"n": 1.0}),
		NewDocument("e", map[string]any{"n": 3.0}),
	}
	fi := buildFieldIndex("db", "coll", "n", types[TypeDouble], docs)
	require.Equal(t, []string{"1", "3"}, indexValues(fi))
	require.Equal(t, NewKeySet("a", "e"), fi.Entries[1].IDs)
}
