package docstore

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind is the tag of a FieldValue.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindDouble
	KindBool
	KindString
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindDouble:
		return "double"
	case KindBool:
		return "boolean"
	case KindString:
		return "string"
	case KindCustom:
		return "custom"
	default:
		return fmt.Sprintf("invalid kind %d", int(k))
	}
}

// Built-in index type names, used in index file names and admin metadata.
const (
	TypeDouble  = "double"
	TypeBoolean = "boolean"
	TypeString  = "string"
)

// CustomValue is a user-defined ordered value.
type CustomValue interface {
	// Compare returns a negative number, zero or a positive number when the
	// receiver sorts before, together with or after other. other always
	// belongs to the same CustomType.
	Compare(other CustomValue) int
	// String is the index file representation, accepted back by CustomType.Parse.
	String() string
}

// CustomType declares a user-defined index type.
type CustomType struct {
	Name     string
	Parse    func(s string) (CustomValue, error)
	FromJSON func(v any) (CustomValue, bool)
}

// FieldValue is a value of an indexed field: a double, a boolean, a string
// or a custom value. The zero FieldValue is invalid.
type FieldValue struct {
	kind   Kind
	num    float64
	b      bool
	str    string
	fold   string
	custom CustomValue
	ctype  *CustomType
}

func Double(v float64) FieldValue {
	return FieldValue{kind: KindDouble, num: v}
}

func Bool(v bool) FieldValue {
	return FieldValue{kind: KindBool, b: v}
}

func Str(v string) FieldValue {
	return FieldValue{kind: KindString, str: v, fold: strings.ToLower(v)}
}

func Custom(t *CustomType, v CustomValue) FieldValue {
	if t == nil || v == nil {
		panic("docstore: Custom requires a type and a value")
	}
	return FieldValue{kind: KindCustom, custom: v, ctype: t}
}

// ValueOf converts a decoded JSON scalar into a FieldValue.
func ValueOf(v any) (FieldValue, bool) {
	switch v := v.(type) {
	case FieldValue:
		return v, v.kind != KindInvalid
	case float64:
		return Double(v), true
	case float32:
		return Double(float64(v)), true
	case int:
		return Double(float64(v)), true
	case int64:
		return Double(float64(v)), true
	case int32:
		return Double(float64(v)), true
	case uint64:
		return Double(float64(v)), true
	case uint32:
		return Double(float64(v)), true
	case bool:
		return Bool(v), true
	case string:
		return Str(v), true
	default:
		return FieldValue{}, false
	}
}

func (v FieldValue) Kind() Kind {
	return v.kind
}

func (v FieldValue) IsValid() bool {
	return v.kind != KindInvalid
}

func (v FieldValue) AsDouble() float64 {
	v.require(KindDouble)
	return v.num
}

func (v FieldValue) AsBool() bool {
	v.require(KindBool)
	return v.b
}

func (v FieldValue) AsString() string {
	v.require(KindString)
	return v.str
}

func (v FieldValue) AsCustom() CustomValue {
	v.require(KindCustom)
	return v.custom
}

func (v FieldValue) require(k Kind) {
	if v.kind != k {
		panic(fmt.Errorf("docstore: %v value used as %v", v.kind, k))
	}
}

// TypeName returns the index type name the value belongs to.
func (v FieldValue) TypeName() string {
	switch v.kind {
	case KindDouble:
		return TypeDouble
	case KindBool:
		return TypeBoolean
	case KindString:
		return TypeString
	case KindCustom:
		return v.ctype.Name
	default:
		return ""
	}
}

// Compare orders values of the same type. Strings compare case-insensitively,
// doubles by IEEE ordering (NaN is not guarded), false sorts before true and
// custom values use their own comparison.
func (v FieldValue) Compare(o FieldValue) int {
	if v.kind != o.kind {
		return int(v.kind) - int(o.kind)
	}
	switch v.kind {
	case KindDouble:
		if v.num < o.num {
			return -1
		} else if v.num > o.num {
			return 1
		}
		return 0
	case KindBool:
		if v.b == o.b {
			return 0
		} else if !v.b {
			return -1
		}
		return 1
	case KindString:
		return strings.Compare(v.fold, o.fold)
	case KindCustom:
		return v.custom.Compare(o.custom)
	default:
		return 0
	}
}

func (v FieldValue) Equal(o FieldValue) bool {
	return v.Compare(o) == 0
}

// String returns the index file representation of the value.
func (v FieldValue) String() string {
	switch v.kind {
	case KindDouble:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.str
	case KindCustom:
		return v.custom.String()
	default:
		return "<invalid>"
	}
}

// JSON returns the value in the shape encoding/json produces for it.
func (v FieldValue) JSON() any {
	switch v.kind {
	case KindDouble:
		return v.num
	case KindBool:
		return v.b
	case KindString:
		return v.str
	case KindCustom:
		return v.custom.String()
	default:
		return nil
	}
}

// Operand is the right-hand side of a query predicate: a single value or a
// list of values of one kind.
type Operand struct {
	values []FieldValue
	list   bool
}

func Scalar(v FieldValue) Operand {
	return Operand{values: []FieldValue{v}}
}

func List(vs ...FieldValue) Operand {
	return Operand{values: vs, list: true}
}

// OperandOf converts a decoded JSON value: a scalar, or an array whose
// elements all share the kind of the first one.
func OperandOf(v any) (Operand, error) {
	switch v := v.(type) {
	case Operand:
		return v, nil
	case []FieldValue:
		return List(v...), nil
	case []any:
		vs := make([]FieldValue, 0, len(v))
		for i, e := range v {
			fv, ok := ValueOf(e)
			if !ok {
				return Operand{}, errors.Errorf("unsupported list element %d of type %T", i, e)
			}
			if len(vs) > 0 && fv.kind != vs[0].kind {
				return Operand{}, errors.Errorf("list element %d is %v, expected %v", i, fv.kind, vs[0].kind)
			}
			vs = append(vs, fv)
		}
		return List(vs...), nil
	case []string:
		vs := make([]FieldValue, len(v))
		for i, s := range v {
			vs[i] = Str(s)
		}
		return List(vs...), nil
	case []float64:
		vs := make([]FieldValue, len(v))
		for i, f := range v {
			vs[i] = Double(f)
		}
		return List(vs...), nil
	default:
		fv, ok := ValueOf(v)
		if !ok {
			return Operand{}, errors.Errorf("unsupported operand type %T", v)
		}
		return Scalar(fv), nil
	}
}

func (o Operand) IsList() bool {
	return o.list
}

func (o Operand) Values() []FieldValue {
	return o.values
}

// Value returns the first value of the operand.
func (o Operand) Value() FieldValue {
	if len(o.values) == 0 {
		return FieldValue{}
	}
	return o.values[0]
}

// Kind is the kind of the first value; only it is inspected when choosing
// an index.
func (o Operand) Kind() Kind {
	return o.Value().kind
}

func (o Operand) TypeName() string {
	return o.Value().TypeName()
}

func (o Operand) String() string {
	if !o.list {
		return o.Value().String()
	}
	parts := make([]string, len(o.values))
	for i, v := range o.values {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// valueType knows how to parse index lines and extract document values for
// one index type.
type valueType struct {
	name   string
	kind   Kind
	custom *CustomType
}

func (t *valueType) parse(s string) (FieldValue, error) {
	switch t.kind {
	case KindDouble:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return FieldValue{}, err
		}
		return Double(f), nil
	case KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return FieldValue{}, err
		}
		return Bool(b), nil
	case KindString:
		return Str(s), nil
	case KindCustom:
		cv, err := t.custom.Parse(s)
		if err != nil {
			return FieldValue{}, err
		}
		return Custom(t.custom, cv), nil
	default:
		panic("unreachable")
	}
}

// extract converts a raw document field into a value of this type; ok is
// false when the field has a different shape and is therefore not indexed.
func (t *valueType) extract(raw any) (FieldValue, bool) {
	switch t.kind {
	case KindDouble:
		switch raw.(type) {
		case float64, float32, int, int64, int32, uint64, uint32:
			v, _ := ValueOf(raw)
			if math.IsNaN(v.num) {
				return FieldValue{}, false
			}
			return v, true
		}
	case KindBool:
		if b, ok := raw.(bool); ok {
			return Bool(b), true
		}
	case KindString:
		if s, ok := raw.(string); ok {
			return Str(s), true
		}
	case KindCustom:
		if raw == nil {
			return FieldValue{}, false
		}
		if cv, ok := t.custom.FromJSON(raw); ok {
			return Custom(t.custom, cv), true
		}
	}
	return FieldValue{}, false
}

type typeRegistry map[string]*valueType

func newTypeRegistry(customs []*CustomType) (typeRegistry, error) {
	r := typeRegistry{
		TypeDouble:  {name: TypeDouble, kind: KindDouble},
		TypeBoolean: {name: TypeBoolean, kind: KindBool},
		TypeString:  {name: TypeString, kind: KindString},
	}
	for _, ct := range customs {
		if err := validateName("type", ct.Name); err != nil {
			return nil, err
		}
		if r[ct.Name] != nil {
			return nil, errors.Errorf("duplicate index type %q", ct.Name)
		}
		if ct.Parse == nil || ct.FromJSON == nil {
			return nil, errors.Errorf("index type %q needs Parse and FromJSON", ct.Name)
		}
		r[ct.Name] = &valueType{name: ct.Name, kind: KindCustom, custom: ct}
	}
	return r, nil
}

func (r typeRegistry) lookup(name string) (*valueType, error) {
	t := r[name]
	if t == nil {
		return nil, errors.Wrapf(ErrUnknownType, "%q", name)
	}
	return t, nil
}
