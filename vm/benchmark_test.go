package vm

import (
	"testing"
)

// ---------------------------------------------------------------------------
// Interpreter benchmarks
// ---------------------------------------------------------------------------

func benchLoopDef(iters int64) *FuncDef {
	b := NewFuncDef("bench", 1)
	b.StackSize(8)
	b.Op(OpMove, 1, b.Int(0), 0)
	b.Op(OpMove, 2, b.Int(0), 0)
	b.Op(OpMove, 3, b.Int(iters), 0)
	b.Op(OpMove, 4, b.Int(1), 0)
	forPC := b.Jump(OpFor, 2, 0, 0)
	body := b.Here()
	b.Op(OpAddEq, 1, R(5), 0)
	b.PatchHere(forPC)
	loop := b.Jump(OpForLoop, 2, 0, 0)
	b.PatchTo(loop, body)
	b.Op(OpSaveRets, 1, 2, 0)
	b.Op(OpRet, 0, 0, 0)
	return b.Done()
}

func BenchmarkNumericLoop(b *testing.B) {
	vmInst := New()
	fn, err := vmInst.LoadFuncDef(benchLoopDef(1000))
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := vmInst.PCall(fn, Null); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCallReturn(b *testing.B) {
	id := NewFuncDef("id", 2)
	id.StackSize(4)
	id.Op(OpSaveRets, 1, 2, 0)
	id.Op(OpRet, 0, 0, 0)

	vmInst := New()
	fn, err := vmInst.LoadFuncDef(id.Done())
	if err != nil {
		b.Fatal(err)
	}
	arg := FromInt(7)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := vmInst.PCall(fn, Null, arg); err != nil {
			b.Fatal(err)
		}
	}
}
