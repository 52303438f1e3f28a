// Package types implements the DataType sum type and its coercion rules.
package types

import (
	"fmt"
	"strings"
)

// Kind discriminates the DataType variants.
type Kind int

const (
	KindAny Kind = iota
	KindVoid
	KindNull
	KindBoolean
	KindInteger
	KindReal
	KindString
	KindSemver
	KindArray
	KindFunction
	KindClass
	KindData
	KindIntermediateResult

	// Abstract kinds, used only as an "expected type" in diagnostics —
	// never the concrete type of a value or expression.
	KindNumeric
	KindAddable
	KindCallable
	KindNonVoid
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "Any"
	case KindVoid:
		return "Void"
	case KindNull:
		return "Null"
	case KindBoolean:
		return "Boolean"
	case KindInteger:
		return "Integer"
	case KindReal:
		return "Real"
	case KindString:
		return "String"
	case KindSemver:
		return "Semver"
	case KindArray:
		return "Array"
	case KindFunction:
		return "Function"
	case KindClass:
		return "Class"
	case KindData:
		return "Data"
	case KindIntermediateResult:
		return "IntermediateResult"
	case KindNumeric:
		return "Numeric"
	case KindAddable:
		return "Addable"
	case KindCallable:
		return "Callable"
	case KindNonVoid:
		return "NonVoid"
	default:
		return "Unknown"
	}
}

// DataType is the compiler's value-type representation. Array, Function,
// and Class variants carry extra payload via the fields below; all
// other variants only use Kind.
type DataType struct {
	Kind Kind

	// Array
	Elem *DataType

	// Function
	Args []DataType
	Ret  *DataType

	// Class
	ClassName string
}

func Simple(k Kind) DataType { return DataType{Kind: k} }

var (
	Any                = Simple(KindAny)
	Void               = Simple(KindVoid)
	Null               = Simple(KindNull)
	Boolean            = Simple(KindBoolean)
	Integer            = Simple(KindInteger)
	Real               = Simple(KindReal)
	String             = Simple(KindString)
	Semver             = Simple(KindSemver)
	Data               = Simple(KindData)
	IntermediateResult = Simple(KindIntermediateResult)
	Numeric            = Simple(KindNumeric)
	Addable            = Simple(KindAddable)
	Callable           = Simple(KindCallable)
	NonVoid            = Simple(KindNonVoid)
)

func Array(elem DataType) DataType {
	e := elem
	return DataType{Kind: KindArray, Elem: &e}
}

func Function(args []DataType, ret DataType) DataType {
	r := ret
	return DataType{Kind: KindFunction, Args: args, Ret: &r}
}

func Class(name string) DataType {
	return DataType{Kind: KindClass, ClassName: name}
}

func (t DataType) String() string {
	switch t.Kind {
	case KindArray:
		return fmt.Sprintf("Array<%s>", t.Elem)
	case KindFunction:
		return fmt.Sprintf("Function(%v) -> %s", t.Args, t.Ret)
	case KindClass:
		return fmt.Sprintf("Class<%s>", t.ClassName)
	default:
		return t.Kind.String()
	}
}

var simpleKindByName = map[string]Kind{
	"Any": KindAny, "Void": KindVoid, "Null": KindNull, "Boolean": KindBoolean,
	"Integer": KindInteger, "Real": KindReal, "String": KindString, "Semver": KindSemver,
	"Function": KindFunction, "Data": KindData, "IntermediateResult": KindIntermediateResult,
	"Numeric": KindNumeric, "Addable": KindAddable, "Callable": KindCallable, "NonVoid": KindNonVoid,
}

// ParseDataType inverts DataType.String() for the forms a wire-encoded
// CastType can carry: simple kind names, "Array<Elem>", and
// "Class<Name>". Function types are not round-tripped (String renders
// their Args with Go's %v, which isn't reparseable); an encountered
// "Function(...)" string falls back to Any.
func ParseDataType(s string) DataType {
	if strings.HasPrefix(s, "Array<") && strings.HasSuffix(s, ">") {
		elem := ParseDataType(s[len("Array<") : len(s)-1])
		return Array(elem)
	}
	if strings.HasPrefix(s, "Class<") && strings.HasSuffix(s, ">") {
		return Class(s[len("Class<") : len(s)-1])
	}
	if k, ok := simpleKindByName[s]; ok {
		return Simple(k)
	}
	return Any
}

func (t DataType) Equal(o DataType) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindArray:
		return t.Elem.Equal(*o.Elem)
	case KindFunction:
		if len(t.Args) != len(o.Args) || !t.Ret.Equal(*o.Ret) {
			return false
		}
		for i := range t.Args {
			if !t.Args[i].Equal(o.Args[i]) {
				return false
			}
		}
		return true
	case KindClass:
		return t.ClassName == o.ClassName
	default:
		return true
	}
}

// isNumericKind reports whether the abstract Numeric expectation is
// satisfied by a concrete kind.
func isNumericKind(k Kind) bool { return k == KindInteger || k == KindReal }

// CoercesTo reports whether a value of type t may be used where a value
// of type target is expected, inserting an implicit Cast if true and
// t != target. Coercion is asymmetric:
//   - Any coerces to everything; everything coerces to itself.
//   - Integer coerces to Real.
//   - everything coerces to String (formatting).
//   - Data coerces to IntermediateResult (same physical representation).
//   - the abstract kinds (Numeric, Addable, Callable, NonVoid) are
//     satisfied structurally and never appear as the *source* type.
func (t DataType) CoercesTo(target DataType) bool {
	if t.Kind == KindAny {
		return true
	}
	if target.Kind == KindAny {
		return true
	}
	switch target.Kind {
	case KindNumeric:
		return isNumericKind(t.Kind)
	case KindAddable:
		return isNumericKind(t.Kind) || t.Kind == KindString
	case KindCallable:
		return t.Kind == KindFunction
	case KindNonVoid:
		return t.Kind != KindVoid
	case KindString:
		return true
	case KindIntermediateResult:
		return t.Kind == KindData || t.Kind == KindIntermediateResult
	case KindReal:
		return t.Kind == KindReal || t.Kind == KindInteger
	case KindArray:
		return t.Kind == KindArray && t.Elem.CoercesTo(*target.Elem)
	default:
		return t.Equal(target)
	}
}

// Unify finds a single type both a and b coerce to (used for array
// literal element unification and parallel-branch return unification).
// Reports ok=false if no common type exists.
func Unify(a, b DataType) (DataType, bool) {
	if a.Equal(b) {
		return a, true
	}
	if a.CoercesTo(b) {
		return b, true
	}
	if b.CoercesTo(a) {
		return a, true
	}
	return DataType{}, false
}
