// Package jsonvalue models parsed JSON documents as an explicit tagged union
// and defines the JSON-parsing capability the extender depends on.
package jsonvalue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the JSON type name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Sentinel errors returned by the accessors.
var (
	// ErrWrongType is returned when a value is not of the requested kind.
	ErrWrongType = errors.New("json value has wrong type")

	// ErrFieldNotFound is returned when an object has no such field.
	ErrFieldNotFound = errors.New("json field not found")

	// ErrIndexOutOfRange is returned for array indexes past the end.
	ErrIndexOutOfRange = errors.New("json array index out of range")
)

// TypeError reports an accessor applied to a value of another kind.
type TypeError struct {
	Want Kind
	Got  Kind
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("json value has wrong type: want %s, got %s", e.Want, e.Got)
}

// Is implements error matching for errors.Is() checks.
func (e *TypeError) Is(target error) bool {
	return target == ErrWrongType
}

// FieldError attaches the offending object key to an accessor error.
type FieldError struct {
	Err error
	Key string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %v", e.Key, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Member is a single key/value pair of an object, used to build objects.
type Member struct {
	Value Value
	Key   string
}

// Value is an immutable JSON value. The zero Value is JSON null.
// Numbers keep their literal text so that re-encoding is lossless.
type Value struct {
	obj  *orderedmap.OrderedMap[string, Value]
	s    string
	arr  []Value
	kind Kind
	b    bool
}

// Null returns the JSON null value.
func Null() Value {
	return Value{}
}

// NewBool returns a JSON boolean.
func NewBool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// NewString returns a JSON string.
func NewString(s string) Value {
	return Value{kind: KindString, s: s}
}

// NewNumber returns a JSON number from its literal form.
func NewNumber(n json.Number) (Value, error) {
	if _, err := strconv.ParseFloat(string(n), 64); err != nil {
		return Value{}, fmt.Errorf("invalid number literal %q: %w", n, err)
	}
	return Value{kind: KindNumber, s: string(n)}, nil
}

// NewInt returns a JSON number holding an integer.
func NewInt(i int64) Value {
	return Value{kind: KindNumber, s: strconv.FormatInt(i, 10)}
}

// NewFloat returns a JSON number holding a float. Integral values keep a
// fractional part so they read back as floats.
func NewFloat(f float64) Value {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !math.IsInf(f, 0) && !math.IsNaN(f) && !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return Value{kind: KindNumber, s: s}
}

// NewArray returns a JSON array of the given elements.
func NewArray(elems ...Value) Value {
	arr := make([]Value, len(elems))
	copy(arr, elems)
	return Value{kind: KindArray, arr: arr}
}

// NewObject returns a JSON object with members in the given order.
// A repeated key keeps its first position and its last value.
func NewObject(members ...Member) Value {
	om := orderedmap.New[string, Value]()
	for _, m := range members {
		om.Set(m.Key, m.Value)
	}
	return Value{kind: KindObject, obj: om}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind {
	return v.kind
}

// IsNull reports whether v is JSON null.
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// Bool returns the boolean held by v.
func (v Value) Bool() (bool, error) {
	if v.kind != KindBool {
		return false, &TypeError{Want: KindBool, Got: v.kind}
	}
	return v.b, nil
}

// Text returns the string held by v.
func (v Value) Text() (string, error) {
	if v.kind != KindString {
		return "", &TypeError{Want: KindString, Got: v.kind}
	}
	return v.s, nil
}

// Number returns the number literal held by v.
func (v Value) Number() (json.Number, error) {
	if v.kind != KindNumber {
		return "", &TypeError{Want: KindNumber, Got: v.kind}
	}
	return json.Number(v.s), nil
}

// Len returns the number of elements of an array or members of an object.
// Other kinds have length zero.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return v.obj.Len()
	default:
		return 0
	}
}

// Index returns the i-th element of an array.
func (v Value) Index(i int) (Value, error) {
	if v.kind != KindArray {
		return Value{}, &TypeError{Want: KindArray, Got: v.kind}
	}
	if i < 0 || i >= len(v.arr) {
		return Value{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(v.arr))
	}
	return v.arr[i], nil
}

// Keys returns the member names of an object in document order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, v.obj.Len())
	for pair := v.obj.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Field looks up an object member. It reports false when v is not an
// object or has no such member.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	return v.obj.Get(key)
}

// StringField returns the string member key of an object.
// It fails when the member is absent or not a string.
func (v Value) StringField(key string) (string, error) {
	field, err := v.member(key)
	if err != nil {
		return "", err
	}
	s, err := field.Text()
	if err != nil {
		return "", &FieldError{Key: key, Err: err}
	}
	return s, nil
}

// ObjectField returns the object member key of an object.
// It fails when the member is absent or not an object.
func (v Value) ObjectField(key string) (Value, error) {
	field, err := v.member(key)
	if err != nil {
		return Value{}, err
	}
	if field.kind != KindObject {
		return Value{}, &FieldError{Key: key, Err: &TypeError{Want: KindObject, Got: field.kind}}
	}
	return field, nil
}

func (v Value) member(key string) (Value, error) {
	if v.kind != KindObject {
		return Value{}, &TypeError{Want: KindObject, Got: v.kind}
	}
	field, ok := v.obj.Get(key)
	if !ok {
		return Value{}, &FieldError{Key: key, Err: ErrFieldNotFound}
	}
	return field, nil
}

// Interface converts v into plain Go values: map[string]any, []any,
// json.Number, string, bool or nil.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return json.Number(v.s)
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, elem := range v.arr {
			out[i] = elem.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, v.obj.Len())
		for pair := v.obj.Oldest(); pair != nil; pair = pair.Next() {
			out[pair.Key] = pair.Value.Interface()
		}
		return out
	default:
		return nil
	}
}

// String returns the canonical compact JSON encoding of v: no insignificant
// whitespace, object members in document order, numbers as written.
func (v Value) String() string {
	var buf bytes.Buffer
	v.encode(&buf)
	return buf.String()
}

// MarshalJSON implements json.Marshaler using the canonical encoding.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	v.encode(&buf)
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		buf.WriteString(v.s)
	case KindString:
		encodeString(buf, v.s)
	case KindArray:
		buf.WriteByte('[')
		for i, elem := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			elem.encode(buf)
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		first := true
		for pair := v.obj.Oldest(); pair != nil; pair = pair.Next() {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			encodeString(buf, pair.Key)
			buf.WriteByte(':')
			pair.Value.encode(buf)
		}
		buf.WriteByte('}')
	}
}

// encodeString writes s as a JSON string literal without HTML escaping.
func encodeString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// Encode terminates each value with a newline.
	buf.Truncate(buf.Len() - 1)
}
