package vm

import "fmt"

// ---------------------------------------------------------------------------
// FuncDefBuilder: construction API for compiled functions
// ---------------------------------------------------------------------------

// FuncDefBuilder assembles a FuncDef instruction by instruction. It is
// the target surface for the bytecode compiler and doubles as the
// assembler the interpreter tests are written against.
//
// String constants are created detached; LoadFuncDef re-interns them
// when the def is adopted by a VM.
type FuncDefBuilder struct {
	def     *FuncDef
	curLine int32
}

// NewFuncDef starts a builder for a function with the given name and
// fixed parameter count (including 'this').
func NewFuncDef(name string, numParams int) *FuncDefBuilder {
	return &FuncDefBuilder{
		def: &FuncDef{
			Name:      name,
			NumParams: numParams,
			StackSize: numParams + 1,
			IsVarret:  true,
		},
		curLine: 1,
	}
}

// Vararg marks the function as accepting excess parameters.
func (b *FuncDefBuilder) Vararg() *FuncDefBuilder {
	b.def.IsVararg = true
	return b
}

// Returns constrains the function to a fixed return count.
func (b *FuncDefBuilder) Returns(n int) *FuncDefBuilder {
	b.def.IsVarret = false
	b.def.NumReturns = n
	return b
}

// ParamMasks installs parameter type masks (index 0 is 'this').
func (b *FuncDefBuilder) ParamMasks(masks ...uint32) *FuncDefBuilder {
	b.def.ParamMasks = masks
	return b
}

// ReturnMasks installs return type masks.
func (b *FuncDefBuilder) ReturnMasks(masks ...uint32) *FuncDefBuilder {
	b.def.ReturnMasks = masks
	return b
}

// StackSize sets the register window size. It must cover every register
// the code touches; Emit grows it under simple emission patterns
// but windows used through calls must be declared.
func (b *FuncDefBuilder) StackSize(n int) *FuncDefBuilder {
	if n > b.def.StackSize {
		b.def.StackSize = n
	}
	return b
}

// Line sets the source line recorded for subsequent instructions.
func (b *FuncDefBuilder) Line(n int32) *FuncDefBuilder {
	b.curLine = n
	return b
}

// Const adds a constant and returns its operand word (ConstBit set).
// Identical scalar constants are pooled.
func (b *FuncDefBuilder) Const(v Value) uint32 {
	for i, c := range b.def.Constants {
		if switchCmp(c, v) && c.Type() != TypeString {
			return uint32(i) | ConstBit
		}
	}
	b.def.Constants = append(b.def.Constants, v)
	return uint32(len(b.def.Constants)-1) | ConstBit
}

// Int adds an int constant.
func (b *FuncDefBuilder) Int(i int64) uint32 { return b.Const(FromInt(i)) }

// Float adds a float constant.
func (b *FuncDefBuilder) Float(f float64) uint32 { return b.Const(FromFloat(f)) }

// Str adds a detached string constant.
func (b *FuncDefBuilder) Str(s string) uint32 {
	for i, c := range b.def.Constants {
		if c.Type() == TypeString && c.String().Get() == s {
			return uint32(i) | ConstBit
		}
	}
	b.def.Constants = append(b.def.Constants, FromObject(&String{s: s}))
	return uint32(len(b.def.Constants)-1) | ConstBit
}

// ConstIndex strips the ConstBit from a constant operand word, for
// opcodes whose operand is a bare constant-table index.
func ConstIndex(word uint32) uint32 { return word &^ ConstBit }

// R renders a register index as an operand word.
func R(reg int) uint32 { return uint32(reg) }

// Emit appends a complete instruction and returns its pc.
func (b *FuncDefBuilder) Emit(inst Instruction) int {
	pc := len(b.def.Code)
	b.def.Code = append(b.def.Code, inst)
	b.def.LineInfo = append(b.def.LineInfo, b.curLine)
	if int(inst.Rd)+4 > b.def.StackSize {
		b.def.StackSize = int(inst.Rd) + 4
	}
	return pc
}

// Op emits op rd, a, b.
func (b *FuncDefBuilder) Op(op Op, rd int, a, bb uint32) int {
	return b.Emit(Instruction{Op: op, Rd: uint16(rd), A: a, B: bb})
}

// Jump emits a branching instruction with a placeholder displacement;
// patch it with PatchTo.
func (b *FuncDefBuilder) Jump(op Op, rd int, a, bb uint32) int {
	return b.Emit(Instruction{Op: op, Rd: uint16(rd), A: a, B: bb})
}

// Here returns the pc of the next instruction to be emitted.
func (b *FuncDefBuilder) Here() int { return len(b.def.Code) }

// PatchTo sets the displacement of the branch at pc to reach target.
func (b *FuncDefBuilder) PatchTo(pc, target int) {
	b.def.Code[pc].Imm = int32(target - (pc + 1))
}

// PatchHere points the branch at pc to the next emitted instruction.
func (b *FuncDefBuilder) PatchHere(pc int) { b.PatchTo(pc, b.Here()) }

// Inner registers a nested function definition and returns its index
// for Closure instructions.
func (b *FuncDefBuilder) Inner(def *FuncDef) uint32 {
	b.def.InnerFuncs = append(b.def.InnerFuncs, def)
	return uint32(len(b.def.InnerFuncs) - 1)
}

// Upval appends an upvalue descriptor; the order matches the closure's
// upvalue vector.
func (b *FuncDefBuilder) Upval(isUpval bool, index uint32) *FuncDefBuilder {
	b.def.Upvals = append(b.def.Upvals, UpvalDesc{IsUpval: isUpval, Index: index})
	return b
}

// SwitchTable registers a switch table and returns its index for the
// Switch instruction's rd.
func (b *FuncDefBuilder) SwitchTable(st SwitchTable) uint16 {
	b.def.SwitchTables = append(b.def.SwitchTables, st)
	return uint16(len(b.def.SwitchTables) - 1)
}

// Done finalizes and returns the def. The builder must not be reused.
func (b *FuncDefBuilder) Done() *FuncDef {
	if len(b.def.Code) == 0 {
		panic(fmt.Sprintf("vm: empty function definition %q", b.def.Name))
	}
	return b.def
}
