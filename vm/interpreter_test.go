package vm

import (
	"testing"
)

// ---------------------------------------------------------------------------
// End-to-end interpreter tests over hand-assembled FuncDefs
// ---------------------------------------------------------------------------

// runDef loads def into a fresh VM and runs it, failing the test on any
// script error.
func runDef(t *testing.T, def *FuncDef, args ...Value) (*VM, []Value) {
	t.Helper()
	vmInst := New()
	results, err := vmInst.RunModule(def, args...)
	if err != nil {
		t.Fatalf("RunModule failed: %v", err)
	}
	return vmInst, results
}

// runDefErr runs def expecting a script error and returns it.
func runDefErr(t *testing.T, def *FuncDef, args ...Value) (*VM, *ScriptError) {
	t.Helper()
	vmInst := New()
	_, err := vmInst.RunModule(def, args...)
	if err == nil {
		t.Fatal("expected a script error, got none")
	}
	serr, ok := err.(*ScriptError)
	if !ok {
		t.Fatalf("expected *ScriptError, got %T: %v", err, err)
	}
	return vmInst, serr
}

func wantInt(t *testing.T, results []Value, want int64) {
	t.Helper()
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Type() != TypeInt {
		t.Fatalf("expected int result, got %s", results[0].Type().Name())
	}
	if got := results[0].Int(); got != want {
		t.Errorf("result = %d, want %d", got, want)
	}
}

func wantString(t *testing.T, results []Value, want string) {
	t.Helper()
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Type() != TypeString {
		t.Fatalf("expected string result, got %s", results[0].Type().Name())
	}
	if got := results[0].String().Get(); got != want {
		t.Errorf("result = %q, want %q", got, want)
	}
}

// return 3 + 4 * 2  =>  11
func TestArith(t *testing.T) {
	b := NewFuncDef("main", 1)
	b.Op(OpMul, 1, b.Int(4), b.Int(2))
	b.Op(OpAdd, 1, b.Int(3), R(1))
	b.Op(OpSaveRets, 1, 2, 0)
	b.Op(OpRet, 0, 0, 0)

	_, results := runDef(t, b.Done())
	wantInt(t, results, 11)
}

// return 10 / 0  =>  uncaught ValueError
func TestDivideByZero(t *testing.T) {
	b := NewFuncDef("main", 1)
	b.Op(OpDiv, 1, b.Int(10), b.Int(0))
	b.Op(OpSaveRets, 1, 2, 0)
	b.Op(OpRet, 0, 0, 0)

	_, serr := runDefErr(t, b.Done())
	if serr.Kind != ExValueError {
		t.Errorf("exception kind = %s, want %s", serr.Kind, ExValueError)
	}
	if serr.Message != "Integer divide by zero" {
		t.Errorf("message = %q, want %q", serr.Message, "Integer divide by zero")
	}
}

func TestModuloByZero(t *testing.T) {
	b := NewFuncDef("main", 1)
	b.Op(OpMod, 1, b.Int(10), b.Int(0))
	b.Op(OpSaveRets, 1, 2, 0)
	b.Op(OpRet, 0, 0, 0)

	_, serr := runDefErr(t, b.Done())
	if serr.Kind != ExValueError {
		t.Errorf("exception kind = %s, want %s", serr.Kind, ExValueError)
	}
	if serr.Message != "Integer modulo by zero" {
		t.Errorf("message = %q, want %q", serr.Message, "Integer modulo by zero")
	}
}

func TestArithTypeError(t *testing.T) {
	b := NewFuncDef("main", 1)
	b.Op(OpAdd, 1, b.Int(1), b.Str("x"))
	b.Op(OpSaveRets, 1, 2, 0)
	b.Op(OpRet, 0, 0, 0)

	_, serr := runDefErr(t, b.Done())
	if serr.Kind != ExTypeError {
		t.Errorf("exception kind = %s, want %s", serr.Kind, ExTypeError)
	}
	want := "Attempting to add a 'int' and a 'string'"
	if serr.Message != want {
		t.Errorf("message = %q, want %q", serr.Message, want)
	}
}

// Float widening: 1 + 2.5 => 3.5
func TestArithFloatWidening(t *testing.T) {
	b := NewFuncDef("main", 1)
	b.Op(OpAdd, 1, b.Int(1), b.Float(2.5))
	b.Op(OpSaveRets, 1, 2, 0)
	b.Op(OpRet, 0, 0, 0)

	_, results := runDef(t, b.Done())
	if results[0].Type() != TypeFloat || results[0].Float() != 3.5 {
		t.Errorf("result = %v, want float 3.5", results[0])
	}
}

// Closure counter: c(); c(); c() => 3
func TestClosureCounter(t *testing.T) {
	// inner: x = x + 1; return x
	inner := NewFuncDef("inner", 1)
	inner.Op(OpGetUpval, 1, 0, 0)
	inner.Op(OpAdd, 1, R(1), inner.Int(1))
	inner.Op(OpSetUpval, 1, 0, 0)
	inner.Op(OpSaveRets, 1, 2, 0)
	inner.Op(OpRet, 0, 0, 0)
	innerDef := inner.Upval(false, 1).Done()

	// outer: local x = 0; return closure(inner)
	outer := NewFuncDef("outer", 1)
	outer.Op(OpMove, 1, outer.Int(0), 0)
	outer.Op(OpClosure, 2, outer.Inner(innerDef), 0)
	outer.Op(OpSaveRets, 2, 2, 0)
	outer.Op(OpRet, 0, 0, 0)
	outerDef := outer.Done()

	// main: c = outer(); c(); c(); return c()
	b := NewFuncDef("main", 1)
	b.StackSize(8)
	nullK := b.Const(Null)
	b.Op(OpClosure, 1, b.Inner(outerDef), 0)
	b.Op(OpMove, 2, nullK, 0)
	b.Op(OpCall, 1, 2, 2) // r1 = outer()
	for i := 0; i < 3; i++ {
		b.Op(OpMove, 3, R(1), 0)
		b.Op(OpMove, 4, nullK, 0)
		b.Op(OpCall, 3, 2, 2) // r3 = c()
	}
	b.Op(OpSaveRets, 3, 2, 0)
	b.Op(OpRet, 0, 0, 0)

	_, results := runDef(t, b.Done())
	wantInt(t, results, 3)
}

// Tail recursion: f(100000, 0) sums without growing the stacks.
func TestTailRecursionDeep(t *testing.T) {
	// f(n, acc): if n == 0 return acc; return f(n-1, acc+n)
	f := NewFuncDef("f", 3)
	f.StackSize(10)
	eq := f.Jump(OpEquals, 1, R(1), f.Int(0))
	f.Op(OpGetGlobal, 3, ConstIndex(f.Str("f")), 0)
	f.Op(OpMove, 4, f.Const(Null), 0)
	f.Op(OpSub, 5, R(1), f.Int(1))
	f.Op(OpAdd, 6, R(2), R(1))
	f.Op(OpTailCall, 3, 4, 0)
	f.PatchHere(eq)
	f.Op(OpSaveRets, 2, 2, 0)
	f.Op(OpRet, 0, 0, 0)
	fDef := f.Done()

	// main: global f = closure; return f(100000, 0)
	b := NewFuncDef("main", 1)
	b.StackSize(8)
	b.Op(OpClosure, 1, b.Inner(fDef), 0)
	b.Op(OpNewGlobal, 1, ConstIndex(b.Str("f")), 0)
	b.Op(OpMove, 2, R(1), 0)
	b.Op(OpMove, 3, b.Const(Null), 0)
	b.Op(OpMove, 4, b.Int(100000), 0)
	b.Op(OpMove, 5, b.Int(0), 0)
	b.Op(OpCall, 2, 4, 2)
	b.Op(OpSaveRets, 2, 2, 0)
	b.Op(OpRet, 0, 0, 0)

	// A small call-depth cap proves the tailcalls replace frames
	// instead of pushing new ones.
	vmInst := NewWithLimits(Limits{MaxCallDepth: 64})
	results, err := vmInst.RunModule(b.Done())
	if err != nil {
		t.Fatalf("RunModule failed: %v", err)
	}
	wantInt(t, results, 5000050000)
}

// Numeric for loop: sum 1..10 => 55
func TestNumericForLoop(t *testing.T) {
	b := NewFuncDef("main", 1)
	b.StackSize(8)
	b.Op(OpMove, 1, b.Int(0), 0)  // sum
	b.Op(OpMove, 2, b.Int(1), 0)  // lo
	b.Op(OpMove, 3, b.Int(11), 0) // hi
	b.Op(OpMove, 4, b.Int(1), 0)  // step
	forPC := b.Jump(OpFor, 2, 0, 0)
	body := b.Here()
	b.Op(OpAddEq, 1, R(5), 0) // sum += idx
	b.PatchHere(forPC)
	loop := b.Jump(OpForLoop, 2, 0, 0)
	b.PatchTo(loop, body)
	b.Op(OpSaveRets, 1, 2, 0)
	b.Op(OpRet, 0, 0, 0)

	_, results := runDef(t, b.Done())
	wantInt(t, results, 55)
}

func TestForLoopZeroStep(t *testing.T) {
	b := NewFuncDef("main", 1)
	b.StackSize(8)
	b.Op(OpMove, 2, b.Int(1), 0)
	b.Op(OpMove, 3, b.Int(10), 0)
	b.Op(OpMove, 4, b.Int(0), 0)
	forPC := b.Jump(OpFor, 2, 0, 0)
	b.PatchHere(forPC)
	b.Op(OpSaveRets, 1, 1, 0)
	b.Op(OpRet, 0, 0, 0)

	_, serr := runDefErr(t, b.Done())
	if serr.Kind != ExValueError {
		t.Errorf("exception kind = %s, want %s", serr.Kind, ExValueError)
	}
}

// Switch dispatch, including the no-default error.
func TestSwitch(t *testing.T) {
	build := func(selector Value, withDefault bool) *FuncDef {
		b := NewFuncDef("main", 1)
		b.StackSize(6)
		// Offsets are relative to the instruction after the switch.
		st := SwitchTable{Offsets: map[Value]int32{
			FromInt(1):          0, // case 1: result 10
			DetachedString("x"): 2, // case "x": result 20
		}, DefaultOffset: NoDefault}
		if withDefault {
			st.DefaultOffset = 4 // default: result 30
		}
		tbl := b.SwitchTable(st)
		b.Op(OpMove, 1, b.Const(selector), 0)
		b.Emit(Instruction{Op: OpSwitch, Rd: tbl, A: R(1)})
		b.Op(OpMove, 2, b.Int(10), 0)
		j1 := b.Jump(OpJmp, 1, 0, 0)
		b.Op(OpMove, 2, b.Int(20), 0)
		j2 := b.Jump(OpJmp, 1, 0, 0)
		b.Op(OpMove, 2, b.Int(30), 0)
		ret := b.Here()
		b.Op(OpSaveRets, 2, 2, 0)
		b.Op(OpRet, 0, 0, 0)
		b.PatchTo(j1, ret)
		b.PatchTo(j2, ret)
		return b.Done()
	}

	t.Run("int case", func(t *testing.T) {
		_, results := runDef(t, build(FromInt(1), true))
		wantInt(t, results, 10)
	})
	t.Run("string case", func(t *testing.T) {
		_, results := runDef(t, build(DetachedString("x"), true))
		wantInt(t, results, 20)
	})
	t.Run("default", func(t *testing.T) {
		_, results := runDef(t, build(FromInt(99), true))
		wantInt(t, results, 30)
	})
	t.Run("no default", func(t *testing.T) {
		_, serr := runDefErr(t, build(FromInt(99), false))
		if serr.Kind != ExSwitchError {
			t.Errorf("exception kind = %s, want %s", serr.Kind, ExSwitchError)
		}
	})
}

// Varargs: #vararg, vararg[i] and negative indexing.
func TestVarargs(t *testing.T) {
	// f(a, ...): return #vararg * 100 + a + vararg[0] + vararg[-1]
	f := NewFuncDef("f", 2)
	f.Vararg()
	f.StackSize(10)
	f.Op(OpVargLen, 2, 0, 0)
	f.Op(OpMul, 2, R(2), f.Int(100))
	f.Op(OpAdd, 2, R(2), R(1))
	f.Op(OpVargIndex, 3, f.Int(0), 0)
	f.Op(OpAdd, 2, R(2), R(3))
	f.Op(OpVargIndex, 3, f.Int(-1), 0)
	f.Op(OpAdd, 2, R(2), R(3))
	f.Op(OpSaveRets, 2, 2, 0)
	f.Op(OpRet, 0, 0, 0)
	fDef := f.Done()

	// main: return f(1, 2, 3) => 200 + 1 + 2 + 3 = 206
	b := NewFuncDef("main", 1)
	b.StackSize(10)
	b.Op(OpClosure, 1, b.Inner(fDef), 0)
	b.Op(OpMove, 2, R(1), 0)
	b.Op(OpMove, 3, b.Const(Null), 0)
	b.Op(OpMove, 4, b.Int(1), 0)
	b.Op(OpMove, 5, b.Int(2), 0)
	b.Op(OpMove, 6, b.Int(3), 0)
	b.Op(OpCall, 2, 5, 2)
	b.Op(OpSaveRets, 2, 2, 0)
	b.Op(OpRet, 0, 0, 0)

	_, results := runDef(t, b.Done())
	wantInt(t, results, 206)
}

// Vararg unpacking feeds a call's "all params" form.
func TestVarargUnpackIntoCall(t *testing.T) {
	// g(a, b): return a*10 + b
	g := NewFuncDef("g", 3)
	g.StackSize(8)
	g.Op(OpMul, 3, R(1), g.Int(10))
	g.Op(OpAdd, 3, R(3), R(2))
	g.Op(OpSaveRets, 3, 2, 0)
	g.Op(OpRet, 0, 0, 0)
	gDef := g.Done()

	// f(...): return g(vararg...)
	f := NewFuncDef("f", 1)
	f.Vararg()
	f.StackSize(8)
	f.Op(OpGetGlobal, 1, ConstIndex(f.Str("g")), 0)
	f.Op(OpMove, 2, f.Const(Null), 0)
	f.Op(OpVararg, 3, 0, 0) // unpack all varargs at r3, extends the top
	f.Op(OpCall, 1, 0, 2)   // numParams word 0: use everything up to the top
	f.Op(OpSaveRets, 1, 2, 0)
	f.Op(OpRet, 0, 0, 0)
	fDef := f.Done()

	// main: global g; return f(7, 9) => 79
	b := NewFuncDef("main", 1)
	b.StackSize(10)
	b.Op(OpClosure, 1, b.Inner(gDef), 0)
	b.Op(OpNewGlobal, 1, ConstIndex(b.Str("g")), 0)
	b.Op(OpClosure, 2, b.Inner(fDef), 0)
	b.Op(OpMove, 3, R(2), 0)
	b.Op(OpMove, 4, b.Const(Null), 0)
	b.Op(OpMove, 5, b.Int(7), 0)
	b.Op(OpMove, 6, b.Int(9), 0)
	b.Op(OpCall, 3, 4, 2)
	b.Op(OpSaveRets, 3, 2, 0)
	b.Op(OpRet, 0, 0, 0)

	_, results := runDef(t, b.Done())
	wantInt(t, results, 79)
}

// Catenation of strings through registers.
func TestCat(t *testing.T) {
	b := NewFuncDef("main", 1)
	b.StackSize(8)
	b.Op(OpMove, 2, b.Str("foo"), 0)
	b.Op(OpMove, 3, b.Str("-"), 0)
	b.Op(OpMove, 4, b.Str("bar"), 0)
	b.Op(OpCat, 1, R(2), 3)
	b.Op(OpSaveRets, 1, 2, 0)
	b.Op(OpRet, 0, 0, 0)

	_, results := runDef(t, b.Done())
	wantString(t, results, "foo-bar")
}

// Arrays: construction, assignment, append, index, length.
func TestArrayOps(t *testing.T) {
	b := NewFuncDef("main", 1)
	b.StackSize(8)
	b.Emit(Instruction{Op: OpNewArray, Rd: 1, A: ConstIndex(b.Int(2))})
	b.Op(OpIndexAssign, 1, b.Int(0), b.Int(5))
	b.Op(OpIndexAssign, 1, b.Int(1), b.Int(6))
	b.Op(OpAppend, 1, b.Int(7), 0)
	b.Op(OpIndex, 2, R(1), b.Int(2)) // r2 = a[2] = 7
	b.Op(OpLength, 3, R(1), 0)       // r3 = 3
	b.Op(OpMul, 3, R(3), b.Int(100))
	b.Op(OpAdd, 2, R(2), R(3)) // 7 + 300
	b.Op(OpSaveRets, 2, 2, 0)
	b.Op(OpRet, 0, 0, 0)

	_, results := runDef(t, b.Done())
	wantInt(t, results, 307)
}

func TestArrayBounds(t *testing.T) {
	b := NewFuncDef("main", 1)
	b.StackSize(6)
	b.Emit(Instruction{Op: OpNewArray, Rd: 1, A: ConstIndex(b.Int(2))})
	b.Op(OpIndex, 2, R(1), b.Int(5))
	b.Op(OpSaveRets, 2, 2, 0)
	b.Op(OpRet, 0, 0, 0)

	_, serr := runDefErr(t, b.Done())
	if serr.Kind != ExBoundsError {
		t.Errorf("exception kind = %s, want %s", serr.Kind, ExBoundsError)
	}
}

// Tables: set, get, 'in' branch.
func TestTableOps(t *testing.T) {
	b := NewFuncDef("main", 1)
	b.StackSize(8)
	b.Op(OpNewTable, 1, 0, 0)
	b.Op(OpIndexAssign, 1, b.Str("k"), b.Int(42))
	b.Op(OpIndex, 2, R(1), b.Str("k"))
	inJump := b.Jump(OpIn, 1, b.Str("k"), R(1))
	b.Op(OpMove, 2, b.Int(-1), 0) // skipped when 'in' jumps
	b.PatchHere(inJump)
	b.Op(OpSaveRets, 2, 2, 0)
	b.Op(OpRet, 0, 0, 0)

	_, results := runDef(t, b.Done())
	wantInt(t, results, 42)
}

// Int and float keys with the same numeric value share a table slot.
func TestTableKeyNormalization(t *testing.T) {
	b := NewFuncDef("main", 1)
	b.StackSize(6)
	b.Op(OpNewTable, 1, 0, 0)
	b.Op(OpIndexAssign, 1, b.Float(1.0), b.Int(99))
	b.Op(OpIndex, 2, R(1), b.Int(1))
	b.Op(OpSaveRets, 2, 2, 0)
	b.Op(OpRet, 0, 0, 0)

	_, results := runDef(t, b.Done())
	wantInt(t, results, 99)
}

// Comparison fused branch.
func TestCmpBranch(t *testing.T) {
	b := NewFuncDef("main", 1)
	b.StackSize(6)
	lt := b.Jump(OpCmp, int(CmpLT), b.Int(3), b.Int(5))
	b.Op(OpMove, 1, b.Int(0), 0)
	end := b.Jump(OpJmp, 1, 0, 0)
	b.PatchHere(lt)
	b.Op(OpMove, 1, b.Int(1), 0)
	b.PatchHere(end)
	b.Op(OpSaveRets, 1, 2, 0)
	b.Op(OpRet, 0, 0, 0)

	_, results := runDef(t, b.Done())
	wantInt(t, results, 1)
}

// Multi-return: callee returns two values, caller keeps both.
func TestMultiReturn(t *testing.T) {
	two := NewFuncDef("two", 1)
	two.StackSize(6)
	two.Op(OpMove, 1, two.Int(7), 0)
	two.Op(OpMove, 2, two.Int(8), 0)
	two.Op(OpSaveRets, 1, 3, 0) // two values
	two.Op(OpRet, 0, 0, 0)
	twoDef := two.Done()

	b := NewFuncDef("main", 1)
	b.StackSize(8)
	b.Op(OpClosure, 1, b.Inner(twoDef), 0)
	b.Op(OpMove, 2, R(1), 0)
	b.Op(OpMove, 3, b.Const(Null), 0)
	b.Op(OpCall, 2, 2, 3) // expect exactly 2 results at r2, r3
	b.Op(OpMul, 2, R(2), b.Int(10))
	b.Op(OpAdd, 2, R(2), R(3)) // 7*10 + 8
	b.Op(OpSaveRets, 2, 2, 0)
	b.Op(OpRet, 0, 0, 0)

	_, results := runDef(t, b.Done())
	wantInt(t, results, 78)
}

// A call-depth cap converts runaway recursion into RuntimeError.
func TestCallDepthCap(t *testing.T) {
	// f(): return f() as a regular (non-tail) call
	f := NewFuncDef("f", 1)
	f.StackSize(6)
	f.Op(OpGetGlobal, 1, ConstIndex(f.Str("f")), 0)
	f.Op(OpMove, 2, f.Const(Null), 0)
	f.Op(OpCall, 1, 2, 2)
	f.Op(OpSaveRets, 1, 2, 0)
	f.Op(OpRet, 0, 0, 0)
	fDef := f.Done()

	b := NewFuncDef("main", 1)
	b.StackSize(6)
	b.Op(OpClosure, 1, b.Inner(fDef), 0)
	b.Op(OpNewGlobal, 1, ConstIndex(b.Str("f")), 0)
	b.Op(OpMove, 2, R(1), 0)
	b.Op(OpMove, 3, b.Const(Null), 0)
	b.Op(OpCall, 2, 2, 2)
	b.Op(OpSaveRets, 2, 2, 0)
	b.Op(OpRet, 0, 0, 0)

	vmInst := NewWithLimits(Limits{MaxCallDepth: 128})
	_, err := vmInst.RunModule(b.Done())
	serr, ok := err.(*ScriptError)
	if !ok {
		t.Fatalf("expected *ScriptError, got %v", err)
	}
	if serr.Kind != ExRuntimeError {
		t.Errorf("exception kind = %s, want %s", serr.Kind, ExRuntimeError)
	}
}
