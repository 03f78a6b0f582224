package docstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEscapeField_RoundTrip(t *testing.T) {
	values := []string{"", "plain", "a|b", "a;b", `back\slash`, "new\nline", `\|;` + "\n", `trailing\`}
	for _, v := range values {
		esc := escapeField(v)
		require.NotContains(t, esc, "\n")

		parts, err := splitEscaped(esc+"|"+esc, '|')
		require.NoError(t, err, v)
		require.Equal(t, []string{v, v}, parts, v)
	}
}

func TestSplitEscaped(t *testing.T) {
	parts, err := splitEscaped(`a\;b;c;;`, ';')
	require.NoError(t, err)
	require.Equal(t, []string{"a;b", "c", "", ""}, parts)

	_, err = splitEscaped(`abc\`, ';')
	require.ErrorIs(t, err, errDanglingEscape)
}

func TestShiftPosition(t *testing.T) {
	require.Equal(t, uint64(25), shiftPosition(30, -5))
	require.Equal(t, uint64(35), shiftPosition(30, 5))
	require.Equal(t, uint64(30), shiftPosition(30, 0))
}

func TestCloneJSON(t *testing.T) {
	orig := map[string]any{"a": []any{1.0, map[string]any{"b": "c"}}}
	c := cloneJSON(orig).(map[string]any)
	c["a"].([]any)[1].(map[string]any)["b"] = "changed"
	require.Equal(t, "c", orig["a"].([]any)[1].(map[string]any)["b"])
}

func TestDocument_JSON(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"_id":"k","n":1,"nested":{"x":"y"}}`))
	require.NoError(t, err)
	require.Equal(t, "k", doc.Key)
	require.NotContains(t, doc.Fields, KeyField)

	v, ok := doc.Field("nested.x")
	require.True(t, ok)
	require.Equal(t, "y", v)
	_, ok = doc.Field("nested.z")
	require.False(t, ok)
	_, ok = doc.Field("n.x")
	require.False(t, ok)

	require.JSONEq(t, `{"_id":"k","n":1,"nested":{"x":"y"}}`, doc.String())

	_, err = ParseDocument([]byte(`{"_id":5}`))
	require.Error(t, err)
	_, err = ParseDocument([]byte(`null`))
	require.Error(t, err)

	_, err = decodeRecord([]byte("{\"n\":1}\n"), 0)
	var de *DataError
	require.ErrorAs(t, err, &de)
}
