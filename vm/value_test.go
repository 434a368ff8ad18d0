package vm

import (
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// Value representation tests
// ---------------------------------------------------------------------------

func TestTypeNames(t *testing.T) {
	cases := []struct {
		ty   Type
		want string
	}{
		{TypeNull, "null"},
		{TypeBool, "bool"},
		{TypeInt, "int"},
		{TypeFloat, "float"},
		{TypeNativeObj, "nativeobj"},
		{TypeString, "string"},
		{TypeTable, "table"},
		{TypeArray, "array"},
		{TypeFunction, "function"},
		{TypeClass, "class"},
		{TypeInstance, "instance"},
		{TypeNamespace, "namespace"},
		{TypeThread, "thread"},
		{TypeWeakRef, "weakref"},
		{TypeFuncDef, "funcdef"},
		{TypeMemblock, "memblock"},
	}
	for _, c := range cases {
		if got := c.ty.Name(); got != c.want {
			t.Errorf("Type(%d).Name() = %q, want %q", c.ty, got, c.want)
		}
	}
}

func TestZeroValueIsNull(t *testing.T) {
	var v Value
	if !v.IsNull() || v != Null {
		t.Error("the zero Value must be null")
	}
}

func TestIsFalse(t *testing.T) {
	vmInst := New()
	falsy := []Value{Null, False}
	truthy := []Value{
		True, FromInt(0), FromInt(1), FromFloat(0),
		vmInst.NewString(""), FromObject(vmInst.NewArray(0)),
	}
	for _, v := range falsy {
		if !v.IsFalse() {
			t.Errorf("%v should be false", v)
		}
	}
	for _, v := range truthy {
		if v.IsFalse() {
			t.Errorf("%v should be truthy", v)
		}
	}
}

func TestHashability(t *testing.T) {
	if Null.Hashable() {
		t.Error("null must not be a table key")
	}
	if FromFloat(math.NaN()).Hashable() {
		t.Error("NaN must not be a table key")
	}
	if !FromInt(0).Hashable() || !True.Hashable() {
		t.Error("scalars should be hashable")
	}
}

func TestTableKeyPromotion(t *testing.T) {
	if FromFloat(2.0).tableKey() != FromInt(2) {
		t.Error("2.0 should key like 2")
	}
	if FromFloat(2.5).tableKey() == FromInt(2) {
		t.Error("2.5 must not key like 2")
	}
}

func TestFullRangeInt(t *testing.T) {
	// The representation must carry full 64-bit ints.
	for _, i := range []int64{math.MaxInt64, math.MinInt64, 0, -1} {
		if FromInt(i).Int() != i {
			t.Errorf("int %d did not round-trip", i)
		}
	}
}

func TestStringInterning(t *testing.T) {
	vmInst := New()
	a := vmInst.Strings.Intern("dup")
	b := vmInst.Strings.Intern("dup")
	if a != b {
		t.Error("interning the same contents must return the same object")
	}
	if _, ok := vmInst.Strings.Lookup("dup"); !ok {
		t.Error("Lookup should find interned strings")
	}
	if _, ok := vmInst.Strings.Lookup("never"); ok {
		t.Error("Lookup should miss strings never interned")
	}
}

func TestStringLenIsRuneCount(t *testing.T) {
	vmInst := New()
	s := vmInst.Strings.Intern("año")
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}
}
