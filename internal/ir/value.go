// Package ir defines the workflow intermediate representation: the flat
// Edge graph produced by the edge-build pass, the Linear instruction
// set, and the runtime Value/FullValue types the VM operates on.
package ir

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValueKind discriminates the Value sum type.
type ValueKind int

const (
	VBoolean ValueKind = iota
	VInteger
	VReal
	VString
	VArray
	VFunction
	VInstance
	VMethod
	VData
	VIntermediateResult
	VVoid
)

// Value is a runtime value. Function and Method carry compiler-internal
// definition indices and are never serialized; FullValue is the
// serializable projection used on the wire between planner and worker.
type Value struct {
	Kind ValueKind

	Bool bool
	Int  int64
	Real float64
	Str  string // String, Data name, IntermediateResult name
	Arr  []Value

	FuncName string // name addressing Workflow.Funcs; Function/Method values only

	// Instance/Method
	Fields    map[string]Value
	ClassDef  int
	ClassName string // populated when converting to/from FullValue
	MethodDef int
}

func Void() Value   { return Value{Kind: VVoid} }
func Bool(b bool) Value { return Value{Kind: VBoolean, Bool: b} }
func Int(i int64) Value { return Value{Kind: VInteger, Int: i} }
func Real(r float64) Value  { return Value{Kind: VReal, Real: r} }
func Str(s string) Value    { return Value{Kind: VString, Str: s} }
func Arr(vs []Value) Value  { return Value{Kind: VArray, Arr: vs} }
func Data(name string) Value               { return Value{Kind: VData, Str: name} }
func IntermediateResult(name string) Value { return Value{Kind: VIntermediateResult, Str: name} }
func Instance(className string, fields map[string]Value) Value {
	return Value{Kind: VInstance, ClassName: className, Fields: fields}
}

func (v Value) IsVoid() bool { return v.Kind == VVoid }

// FullValue is the JSON-serializable projection of Value. Function and
// Method values cannot be converted and produce an error.
type FullValue struct {
	raw json.RawMessage
}

// ToFullValue converts a runtime Value for serialization.
func ToFullValue(v Value) (FullValue, error) {
	b, err := marshalValue(v)
	if err != nil {
		return FullValue{}, err
	}
	return FullValue{raw: b}, nil
}

func marshalValue(v Value) (json.RawMessage, error) {
	switch v.Kind {
	case VVoid:
		return json.Marshal(nil)
	case VBoolean:
		return json.Marshal(v.Bool)
	case VInteger:
		return json.Marshal(v.Int)
	case VReal:
		return json.Marshal(v.Real)
	case VString:
		return json.Marshal(v.Str)
	case VData:
		return json.Marshal("Data<" + v.Str + ">")
	case VIntermediateResult:
		return json.Marshal("IntermediateResult<" + v.Str + ">")
	case VArray:
		out := make([]json.RawMessage, len(v.Arr))
		for i, el := range v.Arr {
			b, err := marshalValue(el)
			if err != nil {
				return nil, err
			}
			out[i] = b
		}
		return json.Marshal(out)
	case VInstance:
		fields := map[string]json.RawMessage{}
		for k, fv := range v.Fields {
			b, err := marshalValue(fv)
			if err != nil {
				return nil, err
			}
			fields[k] = b
		}
		tuple := []any{v.ClassName, fields}
		return json.Marshal(tuple)
	default:
		return nil, fmt.Errorf("value kind %d is not serializable", v.Kind)
	}
}

func (fv FullValue) MarshalJSON() ([]byte, error) {
	if fv.raw == nil {
		return json.Marshal(nil)
	}
	return fv.raw, nil
}

func (fv *FullValue) UnmarshalJSON(b []byte) error {
	fv.raw = append(json.RawMessage(nil), b...)
	return nil
}

// ToValue parses the serialized form back into a runtime Value,
// recognizing the Data</IntermediateResult< string prefixes.
func (fv FullValue) ToValue() (Value, error) {
	var raw any
	if err := json.Unmarshal(fv.raw, &raw); err != nil {
		return Value{}, err
	}
	return decodeValue(raw)
}

func decodeValue(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Void(), nil
	case bool:
		return Bool(x), nil
	case float64:
		if x == float64(int64(x)) {
			return Int(int64(x)), nil
		}
		return Real(x), nil
	case string:
		switch {
		case strings.HasPrefix(x, "Data<") && strings.HasSuffix(x, ">"):
			return Data(strings.TrimSuffix(strings.TrimPrefix(x, "Data<"), ">")), nil
		case strings.HasPrefix(x, "IntermediateResult<") && strings.HasSuffix(x, ">"):
			return IntermediateResult(strings.TrimSuffix(strings.TrimPrefix(x, "IntermediateResult<"), ">")), nil
		default:
			return Str(x), nil
		}
	case []any:
		// Ambiguous with an Instance tuple [ClassName, fields]; disambiguate
		// structurally: a 2-element array whose first is a string and
		// second a JSON object is an Instance, otherwise a plain Array.
		if len(x) == 2 {
			if name, ok := x[0].(string); ok {
				if fieldsRaw, ok := x[1].(map[string]any); ok {
					fields := map[string]Value{}
					for k, fv := range fieldsRaw {
						dv, err := decodeValue(fv)
						if err != nil {
							return Value{}, err
						}
						fields[k] = dv
					}
					return Instance(name, fields), nil
				}
			}
		}
		vs := make([]Value, len(x))
		for i, el := range x {
			dv, err := decodeValue(el)
			if err != nil {
				return Value{}, err
			}
			vs[i] = dv
		}
		return Arr(vs), nil
	default:
		return Value{}, fmt.Errorf("cannot decode value of type %T", raw)
	}
}

// Walk visits v and every value nested in it (array elements, instance
// fields), invoking fn on each — used to collect embedded Data and
// IntermediateResult names for a Node edge's input set.
func Walk(v Value, fn func(Value)) {
	fn(v)
	switch v.Kind {
	case VArray:
		for _, el := range v.Arr {
			Walk(el, fn)
		}
	case VInstance:
		for _, fv := range v.Fields {
			Walk(fv, fn)
		}
	}
}
