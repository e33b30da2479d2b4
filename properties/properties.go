// Package properties builds the flat property sets attached to component
// registrations from a descriptor's nested metadata.
package properties

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"

	"github.com/reglet-dev/npm-portlet-extender/jsonvalue"
)

// Properties is a flat mapping from key to a string, []string, int64,
// float64 or bool value.
type Properties map[string]any

var (
	// ErrNotObject is returned when metadata is neither an object nor null.
	ErrNotObject = errors.New("metadata is not a JSON object")

	// ErrNumberRange is returned for a number literal outside float64 range.
	ErrNumberRange = errors.New("number out of range")
)

// Clone returns a deep copy so the receiver can be handed out without
// exposing it to mutation.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		if ss, ok := v.([]string); ok {
			v = slices.Clone(ss)
		}
		out[k] = v
	}
	return out
}

// String returns the value of key when it holds a string.
func (p Properties) String(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

// Keys returns the property keys in sorted order.
func (p Properties) Keys() []string {
	return slices.Sorted(maps.Keys(p))
}

// Flatten converts the members of a metadata object into properties.
// Nested objects become their canonical JSON text, arrays become ordered
// string slices, and scalars keep their type. Members whose value is null
// are omitted. Null metadata yields an empty set.
func Flatten(meta jsonvalue.Value) (Properties, error) {
	out := make(Properties)

	switch meta.Kind() {
	case jsonvalue.KindNull:
		return out, nil
	case jsonvalue.KindObject:
	default:
		return nil, fmt.Errorf("%w: got %s", ErrNotObject, meta.Kind())
	}

	for _, key := range meta.Keys() {
		value, _ := meta.Field(key)

		switch value.Kind() {
		case jsonvalue.KindObject:
			out[key] = value.String()
		case jsonvalue.KindArray:
			out[key] = flattenArray(value)
		case jsonvalue.KindString:
			s, _ := value.Text()
			out[key] = s
		case jsonvalue.KindNumber:
			n, _ := value.Number()
			num, err := nativeNumber(string(n))
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", key, err)
			}
			out[key] = num
		case jsonvalue.KindBool:
			b, _ := value.Bool()
			out[key] = b
		case jsonvalue.KindNull:
		}
	}
	return out, nil
}

func flattenArray(arr jsonvalue.Value) []string {
	out := make([]string, 0, arr.Len())
	for i := range arr.Len() {
		elem, _ := arr.Index(i)
		out = append(out, StringForm(elem))
	}
	return out
}

// StringForm returns the string form of a JSON value as stored in array
// properties: strings verbatim, everything else as canonical JSON.
func StringForm(v jsonvalue.Value) string {
	if s, err := v.Text(); err == nil {
		return s
	}
	return v.String()
}

// nativeNumber maps an integer literal that fits int64 to int64 and any
// other literal, including 1.0 and 1e3, to float64.
func nativeNumber(literal string) (any, error) {
	if i, err := strconv.ParseInt(literal, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(literal, 64)
	if err != nil || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %s", ErrNumberRange, literal)
	}
	return f, nil
}

// Expand rebuilds a JSON object from properties, keys sorted. Scalars keep
// their type, string slices become arrays of strings.
func Expand(p Properties) (jsonvalue.Value, error) {
	members := make([]jsonvalue.Member, 0, len(p))
	for _, key := range p.Keys() {
		v, err := expandValue(p[key])
		if err != nil {
			return jsonvalue.Value{}, fmt.Errorf("property %q: %w", key, err)
		}
		members = append(members, jsonvalue.Member{Key: key, Value: v})
	}
	return jsonvalue.NewObject(members...), nil
}

func expandValue(v any) (jsonvalue.Value, error) {
	switch t := v.(type) {
	case string:
		return jsonvalue.NewString(t), nil
	case bool:
		return jsonvalue.NewBool(t), nil
	case int64:
		return jsonvalue.NewInt(t), nil
	case int:
		return jsonvalue.NewInt(int64(t)), nil
	case float64:
		return jsonvalue.NewFloat(t), nil
	case []string:
		elems := make([]jsonvalue.Value, len(t))
		for i, s := range t {
			elems[i] = jsonvalue.NewString(s)
		}
		return jsonvalue.NewArray(elems...), nil
	default:
		return jsonvalue.Value{}, fmt.Errorf("unsupported property type %T", v)
	}
}
