package vm

import (
	"fmt"
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Value: Tagged union of scalars and heap object handles
// ---------------------------------------------------------------------------

// Type identifies the runtime type of a Value. The ordering is part of the
// bytecode contract: bit i of a parameter/return type mask allows type i.
type Type int8

const (
	TypeNull Type = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeNativeObj
	TypeString
	TypeTable
	TypeArray
	TypeFunction
	TypeClass
	TypeInstance
	TypeNamespace
	TypeThread
	TypeWeakRef
	TypeFuncDef
	TypeMemblock

	NumTypes = int(TypeMemblock) + 1
)

var typeNames = [NumTypes]string{
	"null", "bool", "int", "float", "nativeobj", "string", "table", "array",
	"function", "class", "instance", "namespace", "thread", "weakref",
	"funcdef", "memblock",
}

// Name returns the script-visible name of the type.
func (ty Type) Name() string {
	if ty < 0 || int(ty) >= NumTypes {
		return "?"
	}
	return typeNames[ty]
}

// Value is the universal tagged value. The zero Value is null.
//
// Scalars live in the struct itself; heap types carry a GCObject handle.
// A Value is comparable with ==, which gives handle identity for heap
// types; use Equals for the script-level equality protocol.
type Value struct {
	kind Type
	n    int64   // Int payload; Bool stored as 0/1
	f    float64 // Float payload
	obj  GCObject
}

// Null is the null value. It is also the zero Value.
var Null = Value{}

// True and False are the two bool values.
var (
	True  = Value{kind: TypeBool, n: 1}
	False = Value{kind: TypeBool}
)

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// FromBool returns b as a Value.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// FromInt returns i as a Value.
func FromInt(i int64) Value {
	return Value{kind: TypeInt, n: i}
}

// FromFloat returns f as a Value.
func FromFloat(f float64) Value {
	return Value{kind: TypeFloat, f: f}
}

// FromObject wraps a heap object handle as a Value.
func FromObject(o GCObject) Value {
	if o == nil {
		return Null
	}
	return Value{kind: o.objType(), obj: o}
}

// ---------------------------------------------------------------------------
// Type checking and accessors
// ---------------------------------------------------------------------------

// Type returns the tag of the value.
func (v Value) Type() Type { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == TypeNull }

// IsFalse reports the language's falsiness rule: only null and false are
// false.
func (v Value) IsFalse() bool {
	return v.kind == TypeNull || (v.kind == TypeBool && v.n == 0)
}

// Bool returns the bool payload. Only valid when Type() == TypeBool.
func (v Value) Bool() bool { return v.n != 0 }

// Int returns the int payload. Only valid when Type() == TypeInt.
func (v Value) Int() int64 { return v.n }

// Float returns the float payload. Only valid when Type() == TypeFloat.
func (v Value) Float() float64 { return v.f }

// Object returns the heap object handle, or nil for scalar values.
func (v Value) Object() GCObject { return v.obj }

// String returns the string object. Only valid when Type() == TypeString.
func (v Value) String() *String { return v.obj.(*String) }

// Array returns the array object. Only valid when Type() == TypeArray.
func (v Value) Array() *Array { return v.obj.(*Array) }

// Table returns the table object. Only valid when Type() == TypeTable.
func (v Value) Table() *Table { return v.obj.(*Table) }

// Function returns the function object. Only valid for TypeFunction.
func (v Value) Function() *Function { return v.obj.(*Function) }

// Class returns the class object. Only valid for TypeClass.
func (v Value) Class() *Class { return v.obj.(*Class) }

// Instance returns the instance object. Only valid for TypeInstance.
func (v Value) Instance() *Instance { return v.obj.(*Instance) }

// Namespace returns the namespace object. Only valid for TypeNamespace.
func (v Value) Namespace() *Namespace { return v.obj.(*Namespace) }

// Thread returns the thread object. Only valid for TypeThread.
func (v Value) Thread() *Thread { return v.obj.(*Thread) }

// WeakRef returns the weakref object. Only valid for TypeWeakRef.
func (v Value) WeakRef() *WeakRef { return v.obj.(*WeakRef) }

// FuncDef returns the funcdef object. Only valid for TypeFuncDef.
func (v Value) FuncDef() *FuncDef { return v.obj.(*FuncDef) }

// Memblock returns the memblock object. Only valid for TypeMemblock.
func (v Value) Memblock() *Memblock { return v.obj.(*Memblock) }

// NativeObj returns the wrapped host value. Only valid for TypeNativeObj.
func (v Value) NativeObj() *NativeObj { return v.obj.(*NativeObj) }

// ---------------------------------------------------------------------------
// Identity, equality, hashing
// ---------------------------------------------------------------------------

// Is reports identity: scalars by value, heap objects by handle.
// Strings are interned, so identity coincides with content equality.
func (v Value) Is(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case TypeNull:
		return true
	case TypeBool, TypeInt:
		return v.n == o.n
	case TypeFloat:
		return v.f == o.f
	default:
		return v.obj == o.obj
	}
}

// rawEquals is value equality without metamethod fallback: null==null,
// bools by value, int/float cross-promoted numerically, strings by
// content (== identity), everything else by handle identity.
// The bool result is only meaningful when the second result is true.
func rawEquals(a, b Value) (eq bool, ok bool) {
	switch a.kind {
	case TypeNull:
		return b.kind == TypeNull, true
	case TypeBool:
		if b.kind != TypeBool {
			return false, true
		}
		return a.n == b.n, true
	case TypeInt:
		switch b.kind {
		case TypeInt:
			return a.n == b.n, true
		case TypeFloat:
			return float64(a.n) == b.f, true
		}
		return false, false
	case TypeFloat:
		switch b.kind {
		case TypeInt:
			return a.f == float64(b.n), true
		case TypeFloat:
			return a.f == b.f, true
		}
		return false, false
	case TypeString:
		if b.kind != TypeString {
			return false, false
		}
		return a.obj == b.obj, true
	default:
		if a.kind == b.kind && a.obj == b.obj {
			return true, true
		}
		return false, false
	}
}

// Hashable reports whether v may be used as a table key. Null is not a
// legal key; NaN floats are rejected since they are not equal to
// themselves.
func (v Value) Hashable() bool {
	switch v.kind {
	case TypeNull:
		return false
	case TypeFloat:
		return !math.IsNaN(v.f)
	default:
		return true
	}
}

// tableKey normalizes a value for use as a table key: a float with an
// exact integer value hashes like the int, so t[1] and t[1.0] are the
// same slot.
func (v Value) tableKey() Value {
	if v.kind == TypeFloat {
		if i := int64(v.f); float64(i) == v.f {
			return FromInt(i)
		}
	}
	return v
}

// ---------------------------------------------------------------------------
// Formatting
// ---------------------------------------------------------------------------

// rawToString renders the value without consulting metamethods. The
// Int/Float/Bool/Null/String renderings round-trip through the host
// parser.
func (v Value) rawToString() string {
	switch v.kind {
	case TypeNull:
		return "null"
	case TypeBool:
		if v.n != 0 {
			return "true"
		}
		return "false"
	case TypeInt:
		return strconv.FormatInt(v.n, 10)
	case TypeFloat:
		s := strconv.FormatFloat(v.f, 'g', -1, 64)
		// keep floats distinguishable from ints on the way back in
		if !hasFloatSyntax(s) {
			s += ".0"
		}
		return s
	case TypeString:
		return v.String().Get()
	case TypeFunction:
		f := v.Function()
		return fmt.Sprintf("function %s", f.Name())
	case TypeClass:
		return fmt.Sprintf("class %s", v.Class().Name().Get())
	case TypeNamespace:
		return fmt.Sprintf("namespace %s", v.Namespace().FullName())
	case TypeFuncDef:
		return fmt.Sprintf("funcdef %s", v.FuncDef().Name)
	default:
		return fmt.Sprintf("%s 0x%x", v.kind.Name(), v.obj.objID())
	}
}

func hasFloatSyntax(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', 'e', 'E', 'n', 'i': // ., exponent, nan, inf
			return true
		}
	}
	return false
}
