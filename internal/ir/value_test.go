package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v Value) Value {
	t.Helper()
	fv, err := ToFullValue(v)
	require.NoError(t, err)
	b, err := fv.MarshalJSON()
	require.NoError(t, err)

	var decoded FullValue
	require.NoError(t, decoded.UnmarshalJSON(b))
	out, err := decoded.ToValue()
	require.NoError(t, err)
	return out
}

func TestFullValue_RoundTrip_Primitives(t *testing.T) {
	cases := []Value{
		Void(),
		Bool(true),
		Bool(false),
		Int(42),
		Real(3.5),
		Str("hello"),
	}
	for _, v := range cases {
		got := roundTrip(t, v)
		assert.Equal(t, v, got)
	}
}

func TestFullValue_RoundTrip_Array(t *testing.T) {
	v := Arr([]Value{Int(1), Int(2), Int(3)})
	got := roundTrip(t, v)
	assert.Equal(t, v, got)
}

func TestFullValue_RoundTrip_Data(t *testing.T) {
	v := Data("my_dataset")
	got := roundTrip(t, v)
	assert.Equal(t, v, got)
	assert.Equal(t, VData, got.Kind)
}

func TestFullValue_RoundTrip_IntermediateResult(t *testing.T) {
	v := IntermediateResult("step_1_out")
	got := roundTrip(t, v)
	assert.Equal(t, VIntermediateResult, got.Kind)
	assert.Equal(t, "step_1_out", got.Str)
}

func TestFullValue_RoundTrip_Instance(t *testing.T) {
	v := Instance("Point", map[string]Value{
		"x": Int(1),
		"y": Int(2),
	})
	got := roundTrip(t, v)
	assert.Equal(t, VInstance, got.Kind)
	assert.Equal(t, "Point", got.ClassName)
	assert.Equal(t, Int(1), got.Fields["x"])
	assert.Equal(t, Int(2), got.Fields["y"])
}

func TestFullValue_MarshalsDataWithPrefix(t *testing.T) {
	fv, err := ToFullValue(Data("weather"))
	require.NoError(t, err)
	b, err := fv.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"Data<weather>"`, string(b))
}

func TestFullValue_MarshalsVoidAsNull(t *testing.T) {
	fv, err := ToFullValue(Void())
	require.NoError(t, err)
	b, err := fv.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestFullValue_FunctionNotSerializable(t *testing.T) {
	_, err := ToFullValue(Value{Kind: VFunction, FuncName: "f"})
	assert.Error(t, err)
}

func TestWalk_CollectsNestedDataNames(t *testing.T) {
	v := Arr([]Value{
		Data("a"),
		Instance("Wrapper", map[string]Value{"inner": IntermediateResult("b")}),
	})
	var names []string
	Walk(v, func(n Value) {
		if n.Kind == VData || n.Kind == VIntermediateResult {
			names = append(names, n.Str)
		}
	})
	assert.ElementsMatch(t, []string{"a", "b"}, names)
}
