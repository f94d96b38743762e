// Package value implements Constellation's cross-language value space: a
// tagged sum over the primitive and structured types a DAG can carry
// between modules, plus the mirrored Type schema and its zero-value rule.
package value

import "fmt"

// Kind discriminates the variant held by a Value or Type.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindList
	KindMap
	KindOptional
	KindProduct
	KindUnion
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "String"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindBool:
		return "Bool"
	case KindList:
		return "List"
	case KindMap:
		return "Map"
	case KindOptional:
		return "Optional"
	case KindProduct:
		return "Product"
	case KindUnion:
		return "Union"
	default:
		return "Unknown"
	}
}

// Type mirrors the schema of a Value. The zero Type describes String (its
// Kind is KindString); construct via the String/Int/... helpers or a struct
// literal naming Kind.
type Type struct {
	Kind Kind

	// List
	Elem *Type

	// Map
	KeyType   *Type
	ValueType *Type

	// Optional
	Inner *Type

	// Product
	Fields map[string]Type

	// Union
	Variants map[string]Type
	// VariantOrder preserves declaration order so "first-declared variant"
	// (used by ZeroValue for Union) is well defined.
	VariantOrder []string
}

func String() Type { return Type{Kind: KindString} }
func Int() Type    { return Type{Kind: KindInt} }
func Float() Type  { return Type{Kind: KindFloat} }
func Bool() Type   { return Type{Kind: KindBool} }

func List(elem Type) Type { return Type{Kind: KindList, Elem: &elem} }

func Map(key, val Type) Type {
	return Type{Kind: KindMap, KeyType: &key, ValueType: &val}
}

func Optional(inner Type) Type { return Type{Kind: KindOptional, Inner: &inner} }

func Product(fields map[string]Type) Type {
	return Type{Kind: KindProduct, Fields: fields}
}

// Union constructs a Union type. order fixes the "first-declared variant"
// used by ZeroValue and must list every key present in variants exactly
// once.
func Union(variants map[string]Type, order []string) Type {
	return Type{Kind: KindUnion, Variants: variants, VariantOrder: order}
}

// HasZeroValue is true for every type except a Union with an empty variant
// set, per §3.
func HasZeroValue(t Type) bool {
	if t.Kind == KindUnion {
		return len(t.VariantOrder) > 0
	}
	return true
}

// ZeroValue produces the canonical empty value for t. Panics if
// !HasZeroValue(t); callers that accept arbitrary DAG-declared types should
// check HasZeroValue first.
func ZeroValue(t Type) Value {
	switch t.Kind {
	case KindString:
		return Str("")
	case KindInt:
		return Int64(0)
	case KindFloat:
		return Float64(0)
	case KindBool:
		return Bool64(false)
	case KindList:
		return Value{Kind: KindList, listElemType: t.Elem, List: []Value{}}
	case KindMap:
		return Value{Kind: KindMap, mapKeyType: t.KeyType, mapValType: t.ValueType, MapKeys: nil, MapVals: nil}
	case KindOptional:
		return Value{Kind: KindOptional, optionalType: t.Inner, Optional: nil}
	case KindProduct:
		fields := make(map[string]Value, len(t.Fields))
		for name, ft := range t.Fields {
			if HasZeroValue(ft) {
				fields[name] = ZeroValue(ft)
			}
		}
		return Value{Kind: KindProduct, ProductStructure: t.Fields, Product: fields}
	case KindUnion:
		if len(t.VariantOrder) == 0 {
			panic("value: ZeroValue called on Union with no variants")
		}
		tag := t.VariantOrder[0]
		vt := t.Variants[tag]
		var inner Value
		if HasZeroValue(vt) {
			inner = ZeroValue(vt)
		}
		return Value{Kind: KindUnion, UnionVariants: t.Variants, UnionTag: tag, Union: inner}
	default:
		panic(fmt.Sprintf("value: ZeroValue called on unknown kind %v", t.Kind))
	}
}

// Value is a tagged sum over Constellation's runtime value space (§3).
// Only the fields matching Kind are meaningful; the rest are zero.
type Value struct {
	Kind Kind

	StringVal string
	IntVal    int64
	FloatVal  float64
	BoolVal   bool

	List         []Value
	listElemType *Type

	// Map is insertion-ordered: MapKeys[i] pairs with MapVals[i].
	MapKeys    []Value
	MapVals    []Value
	mapKeyType *Type
	mapValType *Type

	Optional     *Value
	optionalType *Type

	Product          map[string]Value
	ProductStructure map[string]Type

	UnionTag      string
	Union         Value
	UnionVariants map[string]Type
}

func Str(s string) Value      { return Value{Kind: KindString, StringVal: s} }
func Int64(i int64) Value     { return Value{Kind: KindInt, IntVal: i} }
func Float64(f float64) Value { return Value{Kind: KindFloat, FloatVal: f} }
func Bool64(b bool) Value     { return Value{Kind: KindBool, BoolVal: b} }

func NewList(elemType Type, items ...Value) Value {
	return Value{Kind: KindList, listElemType: &elemType, List: items}
}

func NewMap(keyType, valType Type, keys, vals []Value) Value {
	return Value{Kind: KindMap, mapKeyType: &keyType, mapValType: &valType, MapKeys: keys, MapVals: vals}
}

func Some(inner Value) Value {
	v := inner
	return Value{Kind: KindOptional, Optional: &v}
}

func None(innerType Type) Value {
	return Value{Kind: KindOptional, optionalType: &innerType}
}

func NewProduct(structure map[string]Type, fields map[string]Value) Value {
	return Value{Kind: KindProduct, ProductStructure: structure, Product: fields}
}

func NewUnion(variants map[string]Type, tag string, v Value) Value {
	return Value{Kind: KindUnion, UnionVariants: variants, UnionTag: tag, Union: v}
}

// TypeOf reconstructs the Type schema describing v.
func TypeOf(v Value) Type {
	switch v.Kind {
	case KindString:
		return String()
	case KindInt:
		return Int()
	case KindFloat:
		return Float()
	case KindBool:
		return Bool()
	case KindList:
		elem := String()
		if v.listElemType != nil {
			elem = *v.listElemType
		} else if len(v.List) > 0 {
			elem = TypeOf(v.List[0])
		}
		return List(elem)
	case KindMap:
		kt, vt := String(), String()
		if v.mapKeyType != nil {
			kt = *v.mapKeyType
		}
		if v.mapValType != nil {
			vt = *v.mapValType
		}
		return Map(kt, vt)
	case KindOptional:
		inner := String()
		if v.optionalType != nil {
			inner = *v.optionalType
		} else if v.Optional != nil {
			inner = TypeOf(*v.Optional)
		}
		return Optional(inner)
	case KindProduct:
		return Product(v.ProductStructure)
	case KindUnion:
		order := make([]string, 0, len(v.UnionVariants))
		for k := range v.UnionVariants {
			order = append(order, k)
		}
		return Union(v.UnionVariants, order)
	default:
		return Type{}
	}
}

// Equal reports whether a and b carry the same kind and content. Used by
// tests.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindString:
		return a.StringVal == b.StringVal
	case KindInt:
		return a.IntVal == b.IntVal
	case KindFloat:
		return a.FloatVal == b.FloatVal
	case KindBool:
		return a.BoolVal == b.BoolVal
	case KindList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !Equal(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.MapKeys) != len(b.MapKeys) {
			return false
		}
		for i := range a.MapKeys {
			if !Equal(a.MapKeys[i], b.MapKeys[i]) || !Equal(a.MapVals[i], b.MapVals[i]) {
				return false
			}
		}
		return true
	case KindOptional:
		if (a.Optional == nil) != (b.Optional == nil) {
			return false
		}
		if a.Optional == nil {
			return true
		}
		return Equal(*a.Optional, *b.Optional)
	case KindProduct:
		if len(a.Product) != len(b.Product) {
			return false
		}
		for k, av := range a.Product {
			bv, ok := b.Product[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindUnion:
		return a.UnionTag == b.UnionTag && Equal(a.Union, b.Union)
	default:
		return false
	}
}
