package vm

import (
	"testing"
)

// ---------------------------------------------------------------------------
// Class, instance and namespace tests
// ---------------------------------------------------------------------------

func TestClassAddMemberSemantics(t *testing.T) {
	vmInst := New()
	c := vmInst.NewClass("C")
	x := vmInst.Strings.Intern("x")

	if !c.AddField(x, FromInt(1), false) {
		t.Fatal("adding a new field should succeed")
	}
	if c.AddField(x, FromInt(2), false) {
		t.Error("adding a duplicate field without override must fail")
	}
	if !c.AddField(x, FromInt(2), true) {
		t.Error("overriding an existing field must succeed")
	}
	if c.AddField(vmInst.Strings.Intern("y"), FromInt(3), true) {
		t.Error("overriding a missing field must fail")
	}
}

func TestClassDeriveAndSubtype(t *testing.T) {
	vmInst := New()
	base := vmInst.NewClass("Base")
	base.AddField(vmInst.Strings.Intern("x"), FromInt(10), false)
	base.AddMethod(vmInst.Strings.Intern("m"), vmInst.NewNativeFunction("m", 1, func(th *Thread) int {
		th.Push(FromInt(1))
		return 1
	}), false)

	derived := vmInst.NewClass("Derived")
	if _, ok := derived.Derive(base); !ok {
		t.Fatal("derive failed")
	}

	if !derived.DerivesFrom(base) || !derived.DerivesFrom(derived) {
		t.Error("DerivesFrom should walk the base chain and include self")
	}
	if base.DerivesFrom(derived) {
		t.Error("base must not derive from derived")
	}

	inst := vmInst.NewInstance(derived)
	if !inst.DerivesFrom(base) {
		t.Error("instance of derived should satisfy base")
	}
	if v, ok := inst.Field(vmInst.Strings.Intern("x")); !ok || v.Int() != 10 {
		t.Error("instance did not inherit the field default")
	}

	// A second base with a conflicting member is rejected.
	other := vmInst.NewClass("Other")
	other.AddField(vmInst.Strings.Intern("x"), FromInt(0), false)
	if conflict, ok := derived.Derive(other); ok || conflict == nil {
		t.Error("conflicting derive should fail and name the member")
	}
}

func TestInstanceFieldAssignment(t *testing.T) {
	vmInst := New()
	c := vmInst.NewClass("P")
	c.AddField(vmInst.Strings.Intern("x"), FromInt(0), false)
	inst := vmInst.NewInstance(c)

	if !inst.SetField(vmInst.Strings.Intern("x"), FromInt(5)) {
		t.Fatal("setting an existing field should succeed")
	}
	if inst.SetField(vmInst.Strings.Intern("nope"), FromInt(5)) {
		t.Error("setting an unknown field must fail")
	}
	// The class default is untouched.
	if v, _ := c.Field(vmInst.Strings.Intern("x")); v.Int() != 0 {
		t.Error("instance assignment leaked into the class")
	}
}

// Class construction, member addition and method dispatch in bytecode.
func TestClassOpcodes(t *testing.T) {
	// getX(): return this.x
	getX := NewFuncDef("getX", 1)
	getX.StackSize(4)
	getX.Op(OpField, 1, R(0), getX.Str("x"))
	getX.Op(OpSaveRets, 1, 2, 0)
	getX.Op(OpRet, 0, 0, 0)
	getXDef := getX.Done()

	// constructor(v): this.x = v
	ctor := NewFuncDef("constructor", 2)
	ctor.StackSize(4)
	ctor.Op(OpFieldAssign, 0, ctor.Str("x"), R(1))
	ctor.Op(OpSaveRets, 1, 1, 0)
	ctor.Op(OpRet, 0, 0, 0)
	ctorDef := ctor.Done()

	b := NewFuncDef("main", 1)
	b.StackSize(12)
	// class Point { x = 0; constructor(v); getX() }
	b.Emit(Instruction{Op: OpClass, Rd: 1, A: b.Str("Point"), B: R(2), Imm: 0})
	b.Emit(Instruction{Op: OpAddMember, Rd: 1, A: b.Str("x"), B: b.Int(0)})
	b.Op(OpClosure, 2, b.Inner(ctorDef), 0)
	b.Emit(Instruction{Op: OpAddMember, Rd: 1, A: b.Str("constructor"), B: R(2), Imm: MemberMethod})
	b.Op(OpClosure, 2, b.Inner(getXDef), 0)
	b.Emit(Instruction{Op: OpAddMember, Rd: 1, A: b.Str("getX"), B: R(2), Imm: MemberMethod})
	// p = Point(17)
	b.Op(OpMove, 3, R(1), 0)
	b.Op(OpMove, 4, b.Const(Null), 0)
	b.Op(OpMove, 5, b.Int(17), 0)
	b.Op(OpCall, 3, 3, 2)
	// return p.getX()
	b.Emit(Instruction{Op: OpMethod, Rd: 6, A: R(3), B: b.Str("getX"), Imm: packCounts(2, 2)})
	b.Op(OpSaveRets, 6, 2, 0)
	b.Op(OpRet, 0, 0, 0)

	_, results := runDef(t, b.Done())
	wantInt(t, results, 17)
}

// SuperOf walks class, instance and namespace parents.
func TestSuperOf(t *testing.T) {
	vmInst := New()
	th := vmInst.MainThread()

	base := vmInst.NewClass("B")
	derived := vmInst.NewClass("D")
	derived.Derive(base)
	inst := vmInst.NewInstance(derived)

	if got := th.superOf(FromObject(derived)); got.Class() != base {
		t.Error("superOf(derived) should be its base")
	}
	if got := th.superOf(FromObject(inst)); got.Class() != derived {
		t.Error("superOf(instance) should be its class")
	}

	parent := vmInst.NewNamespace("p", nil)
	child := vmInst.NewNamespace("c", parent)
	if got := th.superOf(FromObject(child)); got.Namespace() != parent {
		t.Error("superOf(namespace) should be its parent")
	}
}

func TestNamespaceChainResolution(t *testing.T) {
	vmInst := New()
	root := vmInst.Globals()
	child := vmInst.NewNamespace("mod", root)

	name := vmInst.Strings.Intern("shared")
	root.Set(name, FromInt(1))

	owner, ok := child.resolve(name)
	if !ok || owner != root {
		t.Fatal("resolve should find the binding on the parent")
	}
	child.Set(name, FromInt(2))
	owner, _ = child.resolve(name)
	if owner != child {
		t.Error("resolve should prefer the nearest binding")
	}
}

// Param type masks reject wrong argument types.
func TestCheckParams(t *testing.T) {
	// f(x: int). Each subtest runs in a fresh VM, and a def is bound to
	// the namespace of the first VM that instantiates it, so each
	// subtest builds its own.
	buildF := func() *FuncDef {
		f := NewFuncDef("f", 2)
		f.StackSize(4)
		f.ParamMasks(^uint32(0), 1<<uint(TypeInt))
		f.Op(OpCheckParams, 0, 0, 0)
		f.Op(OpSaveRets, 1, 2, 0)
		f.Op(OpRet, 0, 0, 0)
		return f.Done()
	}

	t.Run("int accepted", func(t *testing.T) {
		b := NewFuncDef("main", 1)
		b.StackSize(8)
		b.Op(OpClosure, 1, b.Inner(buildF()), 0)
		b.Op(OpMove, 2, R(1), 0)
		b.Op(OpMove, 3, b.Const(Null), 0)
		b.Op(OpMove, 4, b.Int(1), 0)
		b.Op(OpCall, 2, 3, 2)
		b.Op(OpSaveRets, 2, 2, 0)
		b.Op(OpRet, 0, 0, 0)
		_, results := runDef(t, b.Done())
		wantInt(t, results, 1)
	})
	t.Run("string rejected", func(t *testing.T) {
		b := NewFuncDef("main", 1)
		b.StackSize(8)
		b.Op(OpClosure, 1, b.Inner(buildF()), 0)
		b.Op(OpMove, 2, R(1), 0)
		b.Op(OpMove, 3, b.Const(Null), 0)
		b.Op(OpMove, 4, b.Str("nope"), 0)
		b.Op(OpCall, 2, 3, 2)
		b.Op(OpSaveRets, 2, 2, 0)
		b.Op(OpRet, 0, 0, 0)
		_, serr := runDefErr(t, b.Done())
		if serr.Kind != ExTypeError {
			t.Errorf("exception kind = %s, want %s", serr.Kind, ExTypeError)
		}
	})
}
