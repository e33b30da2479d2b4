package properties_test

import (
	"math"
	"testing"

	"github.com/reglet-dev/npm-portlet-extender/jsonvalue"
	"github.com/reglet-dev/npm-portlet-extender/properties"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, text string) jsonvalue.Value {
	t.Helper()
	v, err := jsonvalue.NewParser().Parse(text)
	require.NoError(t, err)
	return v
}

func TestFlatten(t *testing.T) {
	t.Parallel()

	tests := []struct {
		want  properties.Properties
		name  string
		input string
	}{
		{
			name:  "array elements stringified",
			input: `{"tags": ["a", 1, true]}`,
			want:  properties.Properties{"tags": []string{"a", "1", "true"}},
		},
		{
			name:  "nested object kept as canonical json",
			input: `{"meta": {"x": 1}}`,
			want:  properties.Properties{"meta": `{"x":1}`},
		},
		{
			name:  "scalars keep their type",
			input: `{"icon": "star", "weight": 3, "ratio": 0.5, "visible": false}`,
			want: properties.Properties{
				"icon":    "star",
				"weight":  int64(3),
				"ratio":   0.5,
				"visible": false,
			},
		},
		{
			name:  "nested values inside arrays",
			input: `{"mixed": [null, {"a": [1, 2]}, [3], 1.5e2, "x y"]}`,
			want:  properties.Properties{"mixed": []string{"null", `{"a":[1,2]}`, "[3]", "1.5e2", "x y"}},
		},
		{
			name:  "empty array",
			input: `{"list": []}`,
			want:  properties.Properties{"list": []string{}},
		},
		{
			name:  "float literals stay float",
			input: `{"a": 1.0, "b": 1e3, "c": 2.0E1, "d": -0.0}`,
			want:  properties.Properties{"a": 1.0, "b": 1000.0, "c": 20.0, "d": math.Copysign(0, -1)},
		},
		{
			name:  "integer beyond int64 becomes float",
			input: `{"n": 99999999999999999999}`,
			want:  properties.Properties{"n": 1e20},
		},
		{
			name:  "out of range integer becomes float",
			input: `{"big": 1e30}`,
			want:  properties.Properties{"big": 1e30},
		},
		{
			name:  "null member omitted",
			input: `{"gone": null, "kept": "yes"}`,
			want:  properties.Properties{"kept": "yes"},
		},
		{
			name:  "null metadata",
			input: `null`,
			want:  properties.Properties{},
		},
		{
			name:  "empty object",
			input: `{}`,
			want:  properties.Properties{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := properties.Flatten(mustParse(t, tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlatten_NonObject(t *testing.T) {
	t.Parallel()

	for _, input := range []string{`[1]`, `"text"`, `42`, `true`} {
		_, err := properties.Flatten(mustParse(t, input))
		assert.ErrorIs(t, err, properties.ErrNotObject, input)
	}
}

func TestFlatten_NumberOutOfRange(t *testing.T) {
	t.Parallel()

	for _, input := range []string{`{"n": 1e400}`, `{"n": -1e400}`} {
		_, err := properties.Flatten(mustParse(t, input))
		assert.ErrorIs(t, err, properties.ErrNumberRange, input)
		assert.ErrorContains(t, err, `member "n"`, input)
	}
}

func TestFlattenExpand_ScalarRoundTrip(t *testing.T) {
	t.Parallel()

	input := `{"b": true, "i": -12, "f": 2.25, "g": 1.0, "s": "text", "z": 0}`

	flat, err := properties.Flatten(mustParse(t, input))
	require.NoError(t, err)

	expanded, err := properties.Expand(flat)
	require.NoError(t, err)

	// Expand orders keys, so compare member by member.
	original := mustParse(t, input)
	assert.ElementsMatch(t, original.Keys(), expanded.Keys())
	for _, key := range original.Keys() {
		want, _ := original.Field(key)
		got, ok := expanded.Field(key)
		require.True(t, ok, key)
		assert.Equal(t, want.Kind(), got.Kind(), key)
		assert.Equal(t, want.String(), got.String(), key)
	}

	again, err := properties.Flatten(expanded)
	require.NoError(t, err)
	assert.Equal(t, flat, again)
}

func TestExpand(t *testing.T) {
	t.Parallel()

	v, err := properties.Expand(properties.Properties{
		"tags": []string{"a", "b"},
		"name": "foo",
		"n":    7,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"n":7,"name":"foo","tags":["a","b"]}`, v.String())

	_, err = properties.Expand(properties.Properties{"bad": struct{}{}})
	assert.ErrorContains(t, err, `property "bad"`)
}

func TestProperties_Clone(t *testing.T) {
	t.Parallel()

	orig := properties.Properties{"tags": []string{"a"}, "name": "foo"}
	clone := orig.Clone()
	clone["tags"].([]string)[0] = "changed"
	clone["name"] = "bar"

	assert.Equal(t, []string{"a"}, orig["tags"])
	name, ok := orig.String("name")
	assert.True(t, ok)
	assert.Equal(t, "foo", name)

	var nilProps properties.Properties
	assert.Nil(t, nilProps.Clone())
}
