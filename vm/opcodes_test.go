package vm

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Opcode metadata and disassembler tests
// ---------------------------------------------------------------------------

func TestOpcodeNamesUnique(t *testing.T) {
	seen := make(map[string]Op)
	for op, info := range opTable {
		if prev, dup := seen[info.Name]; dup {
			t.Errorf("opcodes %#x and %#x share the name %q", uint8(prev), uint8(op), info.Name)
		}
		seen[info.Name] = op
	}
}

func TestUnknownOpcodeInfo(t *testing.T) {
	info := Op(0xFF).Info()
	if info.Name == "" {
		t.Error("unknown opcodes should still render a name")
	}
}

func TestConstBitDecoding(t *testing.T) {
	vmInst := New()
	th := vmInst.MainThread()
	th.checkStack(8)
	th.stack[th.stackBase+3] = FromInt(77)
	constants := []Value{FromInt(42)}

	if got := decode(th, R(3), constants); got.Int() != 77 {
		t.Errorf("register decode = %v, want 77", got)
	}
	if got := decode(th, 0|ConstBit, constants); got.Int() != 42 {
		t.Errorf("constant decode = %v, want 42", got)
	}
}

func TestDisassemble(t *testing.T) {
	b := NewFuncDef("demo", 1)
	b.Line(7)
	b.Op(OpAdd, 1, b.Int(3), b.Int(4))
	jmp := b.Jump(OpJmp, 1, 0, 0)
	b.PatchHere(jmp)
	b.Op(OpSaveRets, 1, 2, 0)
	b.Op(OpRet, 0, 0, 0)

	out := Disassemble(b.Done())
	for _, want := range []string{"function demo", "add", "k0", "k1", "jmp", "ret", "line 7"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

func TestBuilderConstPooling(t *testing.T) {
	b := NewFuncDef("k", 1)
	if b.Int(5) != b.Int(5) {
		t.Error("identical int constants should pool")
	}
	if b.Str("s") != b.Str("s") {
		t.Error("identical string constants should pool")
	}
	if b.Int(5) == b.Float(5) {
		t.Error("int and float constants must not pool together")
	}
}

func TestPackCounts(t *testing.T) {
	np, nr := unpackCounts(packCounts(3, 2))
	if np != 3 || nr != 2 {
		t.Errorf("unpack(pack(3,2)) = %d,%d", np, nr)
	}
}
