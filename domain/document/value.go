// Package document defines the dynamic value model for entity documents.
//
// A document is a mapping from field names to JSON values. Values are a
// tagged sum over null, bool, int, float, string, array, object and REF so
// that schema checks, sorting and graph extraction can dispatch on the tag
// instead of re-inspecting raw JSON.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind discriminates the value union.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindRef:
		return "ref"
	}
	return "unknown"
}

// Ref is a pointer to another document: {"type":"REF","entity":e,"id":i}.
type Ref struct {
	Entity string
	ID     int64
}

// Value is one JSON value inside a document.
type Value struct {
	kind     Kind
	boolVal  bool
	intVal   int64
	floatVal float64
	strVal   string
	arrVal   []Value
	objVal   map[string]Value
	refVal   Ref
}

// Constructors

func Null() Value                 { return Value{kind: KindNull} }
func Bool(b bool) Value           { return Value{kind: KindBool, boolVal: b} }
func Int(i int64) Value           { return Value{kind: KindInt, intVal: i} }
func Float(f float64) Value       { return Value{kind: KindFloat, floatVal: f} }
func String(s string) Value       { return Value{kind: KindString, strVal: s} }
func Array(vs ...Value) Value     { return Value{kind: KindArray, arrVal: vs} }
func Object(m map[string]Value) Value {
	return Value{kind: KindObject, objVal: m}
}
func NewRef(entity string, id int64) Value {
	return Value{kind: KindRef, refVal: Ref{Entity: entity, ID: id}}
}

// Accessors

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() bool          { return v.boolVal }
func (v Value) Int() int64          { return v.intVal }
func (v Value) Float() float64      { return v.floatVal }
func (v Value) Str() string         { return v.strVal }
func (v Value) Array() []Value      { return v.arrVal }
func (v Value) Object() map[string]Value { return v.objVal }

// Ref returns the reference and whether the value is one.
func (v Value) Ref() (Ref, bool) {
	return v.refVal, v.kind == KindRef
}

// Numeric returns the value as a float64 for int and float kinds.
func (v Value) Numeric() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.intVal), true
	case KindFloat:
		return v.floatVal, true
	}
	return 0, false
}

// String renders the value the way sorting and substring search see it.
// Strings render bare, everything else as its JSON form.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.strVal
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.boolVal)
	case KindInt:
		return strconv.FormatInt(v.intVal, 10)
	case KindFloat:
		return strconv.FormatFloat(v.floatVal, 'g', -1, 64)
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// MarshalJSON encodes the value back into plain JSON. REF values take their
// wire form {"type":"REF","entity":...,"id":...}.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.boolVal)
	case KindInt:
		return json.Marshal(v.intVal)
	case KindFloat:
		return json.Marshal(v.floatVal)
	case KindString:
		return json.Marshal(v.strVal)
	case KindArray:
		if v.arrVal == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arrVal)
	case KindObject:
		if v.objVal == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.objVal)
	case KindRef:
		return json.Marshal(map[string]interface{}{
			"type":   "REF",
			"entity": v.refVal.Entity,
			"id":     v.refVal.ID,
		})
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

// UnmarshalJSON decodes arbitrary JSON into the tagged representation,
// recognising REF objects.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case 'n':
		*v = Null()
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		arr := make([]Value, len(raw))
		for i, item := range raw {
			if err := arr[i].UnmarshalJSON(item); err != nil {
				return err
			}
		}
		*v = Value{kind: KindArray, arrVal: arr}
		return nil
	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		obj := make(map[string]Value, len(raw))
		for key, item := range raw {
			var val Value
			if err := val.UnmarshalJSON(item); err != nil {
				return err
			}
			obj[key] = val
		}
		if ref, ok := refFromObject(obj); ok {
			*v = Value{kind: KindRef, refVal: ref}
			return nil
		}
		*v = Value{kind: KindObject, objVal: obj}
		return nil
	default:
		// Number: prefer int64 when the literal has no fraction/exponent.
		s := string(data)
		if !strings.ContainsAny(s, ".eE") {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				*v = Int(i)
				return nil
			}
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid JSON number %q", s)
		}
		*v = Float(f)
		return nil
	}
}

// refFromObject recognises the REF wire shape.
func refFromObject(obj map[string]Value) (Ref, bool) {
	t, ok := obj["type"]
	if !ok || t.Kind() != KindString || t.Str() != "REF" {
		return Ref{}, false
	}
	entity, ok := obj["entity"]
	if !ok || entity.Kind() != KindString {
		return Ref{}, false
	}
	id, ok := obj["id"]
	if !ok || id.Kind() != KindInt {
		return Ref{}, false
	}
	return Ref{Entity: entity.Str(), ID: id.Int()}, true
}

// Equals reports deep equality between two values.
func Equals(a, b Value) bool {
	if a.kind != b.kind {
		// int/float interop: 1 == 1.0
		af, aok := a.Numeric()
		bf, bok := b.Numeric()
		return aok && bok && af == bf
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.boolVal == b.boolVal
	case KindInt:
		return a.intVal == b.intVal
	case KindFloat:
		return a.floatVal == b.floatVal
	case KindString:
		return a.strVal == b.strVal
	case KindRef:
		return a.refVal == b.refVal
	case KindArray:
		if len(a.arrVal) != len(b.arrVal) {
			return false
		}
		for i := range a.arrVal {
			if !Equals(a.arrVal[i], b.arrVal[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.objVal) != len(b.objVal) {
			return false
		}
		for key, av := range a.objVal {
			bv, ok := b.objVal[key]
			if !ok || !Equals(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders two values for WHERE evaluation. The second return is false
// when the pair is not comparable (mismatched, non-homogeneous types), in
// which case the condition evaluates to false.
func Compare(a, b Value) (int, bool) {
	if af, aok := a.Numeric(); aok {
		if bf, bok := b.Numeric(); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	if a.kind == KindString && b.kind == KindString {
		return strings.Compare(a.strVal, b.strVal), true
	}
	if a.kind == KindBool && b.kind == KindBool {
		switch {
		case a.boolVal == b.boolVal:
			return 0, true
		case b.boolVal:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// SortCompare orders two values for listings: numeric against numeric,
// case-insensitive string against string, anything else by stringified form.
func SortCompare(a, b Value) int {
	if af, aok := a.Numeric(); aok {
		if bf, bok := b.Numeric(); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	if a.kind == KindString && b.kind == KindString {
		return strings.Compare(strings.ToLower(a.strVal), strings.ToLower(b.strVal))
	}
	return strings.Compare(a.String(), b.String())
}

// Document is a stored entity document.
type Document map[string]Value

// ID returns the mandatory integer id field.
func (d Document) ID() (int64, bool) {
	v, ok := d["id"]
	if !ok || v.Kind() != KindInt {
		return 0, false
	}
	return v.Int(), true
}

// SetID sets the server-assigned id.
func (d Document) SetID(id int64) {
	d["id"] = Int(id)
}

// Clone makes a shallow field copy; values themselves are immutable from the
// caller's point of view.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for key, val := range d {
		out[key] = val
	}
	return out
}

// RefField is a named outgoing reference.
type RefField struct {
	Field string
	Ref   Ref
}

// Refs lists the document's REF fields in stable field order.
func (d Document) Refs() []RefField {
	var refs []RefField
	for field, val := range d {
		if ref, ok := val.Ref(); ok {
			refs = append(refs, RefField{Field: field, Ref: ref})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Field < refs[j].Field })
	return refs
}

// SortKeySpec is a field plus direction used by Sort.
type SortKeySpec struct {
	Field string
	Desc  bool
}

// Sort orders documents by the given keys using SortCompare. Missing fields
// sort as null.
func Sort(docs []Document, keys []SortKeySpec) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range keys {
			av, aok := docs[i][key.Field]
			bv, bok := docs[j][key.Field]
			if !aok {
				av = Null()
			}
			if !bok {
				bv = Null()
			}
			cmp := SortCompare(av, bv)
			if cmp == 0 {
				continue
			}
			if key.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}
