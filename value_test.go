package docstore

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func fmtVersion(v version) string {
	return fmt.Sprintf("%d.%d", v[0], v[1])
}

func parseVersion(s string) (CustomValue, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		return nil, errors.Errorf("invalid version %q", s)
	}
	a, err := strconv.Atoi(major)
	if err != nil {
		return nil, err
	}
	b, err := strconv.Atoi(minor)
	if err != nil {
		return nil, err
	}
	return version{a, b}, nil
}

// versionType indexes "major.minor" strings by numeric component order.
func versionType() *CustomType {
	return &CustomType{
		Name:  "version",
		Parse: parseVersion,
		FromJSON: func(v any) (CustomValue, bool) {
			s, ok := v.(string)
			if !ok {
				return nil, false
			}
			cv, err := parseVersion(s)
			return cv, err == nil
		},
	}
}

func TestFieldValue_Compare(t *testing.T) {
	require.Negative(t, Double(-1).Compare(Double(2)))
	require.Zero(t, Double(2).Compare(Double(2)))
	require.Negative(t, Bool(false).Compare(Bool(true)))
	require.Zero(t, Str("HeLLo").Compare(Str("hello")))
	require.Negative(t, Str("Apple").Compare(Str("banana")))
	require.True(t, Str("ABC").Equal(Str("abc")))
	require.Equal(t, "ABC", Str("ABC").String(), "original case is kept")
}

func TestFieldValue_TypeName(t *testing.T) {
	require.Equal(t, TypeDouble, Double(1).TypeName())
	require.Equal(t, TypeBoolean, Bool(true).TypeName())
	require.Equal(t, TypeString, Str("x").TypeName())
	require.Equal(t, "version", Custom(versionType(), version{1, 0}).TypeName())
	require.Equal(t, "", FieldValue{}.TypeName())
}

func TestValueOf(t *testing.T) {
	v, ok := ValueOf(3)
	require.True(t, ok)
	require.Equal(t, 3.0, v.AsDouble())

	v, ok = ValueOf("x")
	require.True(t, ok)
	require.Equal(t, "x", v.AsString())

	_, ok = ValueOf(map[string]any{})
	require.False(t, ok)
	_, ok = ValueOf(nil)
	require.False(t, ok)

	require.Panics(t, func() { Double(1).AsString() })
}

func TestOperandOf(t *testing.T) {
	o, err := OperandOf(2.5)
	require.NoError(t, err)
	require.False(t, o.IsList())
	require.Equal(t, KindDouble, o.Kind())

	o, err = OperandOf([]any{"a", "b"})
	require.NoError(t, err)
	require.True(t, o.IsList())
	require.Equal(t, TypeString, o.TypeName())
	require.Equal(t, "[a, b]", o.String())

	_, err = OperandOf([]any{"a", 1.0})
	require.Error(t, err)

	o, err = OperandOf([]any{})
	require.NoError(t, err)
	require.True(t, o.IsList())
	require.Equal(t, "", o.TypeName())
}

func TestValueType_ParseAndExtract(t *testing.T) {
	types, err := newTypeRegistry([]*CustomType{versionType()})
	require.NoError(t, err)

	v, err := types[TypeDouble].parse("1.5")
	require.NoError(t, err)
	require.Equal(t, Double(1.5), v)
	_, err = types[TypeBoolean].parse("maybe")
	require.Error(t, err)

	v, ok := types["version"].extract("3.1")
	require.True(t, ok)
	require.Equal(t, "3.1", v.String())
	_, ok = types["version"].extract(3.1)
	require.False(t, ok)
	_, ok = types[TypeDouble].extract("3")
	require.False(t, ok)

	_, err = types.lookup("nope")
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestNewTypeRegistry_Rejects(t *testing.T) {
	_, err := newTypeRegistry([]*CustomType{{Name: TypeString, Parse: parseVersion, FromJSON: versionType().FromJSON}})
	require.Error(t, err)
	_, err = newTypeRegistry([]*CustomType{{Name: "noparse"}})
	require.Error(t, err)
	_, err = newTypeRegistry([]*CustomType{{Name: "a/b", Parse: parseVersion, FromJSON: versionType().FromJSON}})
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestParseOperator(t *testing.T) {
	for op := Equals; op <= NotIn; op++ {
		got, err := ParseOperator(op.String())
		require.NoError(t, err)
		require.Equal(t, op, got)

		got, err = ParseOperator(strings.ToLower(op.String()))
		require.NoError(t, err)
		require.Equal(t, op, got)
	}
	got, err := ParseOperator(">=")
	require.NoError(t, err)
	require.Equal(t, GreaterThanEquals, got)

	_, err = ParseOperator("LIKE")
	require.ErrorIs(t, err, ErrUnsupportedOperator)

	require.Equal(t, "NOT_EQUALS", NotEquals.String())
	require.False(t, Operator(0).IsValid())
	require.True(t, SmallerThan.IsRange())
	require.False(t, Contains.IsRange())
}
