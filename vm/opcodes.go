package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Op is a bytecode opcode.
type Op uint8

// Binary arithmetic
const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpMod
)

// Reflexive arithmetic (dest op= src)
const (
	OpAddEq Op = iota + 0x10
	OpSubEq
	OpMulEq
	OpDivEq
	OpModEq
)

// Binary bitwise
const (
	OpAnd Op = iota + 0x20
	OpOr
	OpXor
	OpShl
	OpShr
	OpUShr
)

// Reflexive bitwise
const (
	OpAndEq Op = iota + 0x30
	OpOrEq
	OpXorEq
	OpShlEq
	OpShrEq
	OpUShrEq
)

// Unary and coercion
const (
	OpNeg Op = iota + 0x40
	OpCom
	OpNot
	OpAsBool
	OpAsInt
	OpAsFloat
	OpAsString
	OpInc
	OpDec
	OpLength
	OpLengthAssign
)

// Data transfer
const (
	OpMove Op = iota + 0x50
	OpNewGlobal
	OpGetGlobal
	OpSetGlobal
	OpGetUpval
	OpSetUpval
)

// Comparison and control flow
const (
	OpCmp3 Op = iota + 0x60
	OpCmp
	OpSwitchCmp
	OpEquals
	OpIs
	OpIn
	OpIsTrue
	OpJmp
	OpSwitch
	OpClose
)

// Loops
const (
	OpFor Op = iota + 0x70
	OpForLoop
	OpForeach
	OpForeachLoop
)

// Exception handling
const (
	OpPushCatch Op = iota + 0x80
	OpPushFinally
	OpPopEH
	OpEndFinal
	OpThrow
	OpUnwind
)

// Calls, returns, varargs, yield
const (
	OpCall Op = iota + 0x90
	OpTailCall
	OpMethod
	OpTailMethod
	OpRet
	OpSaveRets
	OpVararg
	OpVargLen
	OpVargIndex
	OpVargIndexAssign
	OpYield
)

// Parameter and return type checks
const (
	OpCheckParams Op = iota + 0xA0
	OpCheckObjParam
	OpObjParamFail
	OpCustomParamFail
	OpCheckRets
	OpCheckObjRet
	OpObjRetFail
	OpCustomRetFail
	OpMoveRet
	OpRetAsFloat
	OpAssertFail
)

// Arrays, tables, catenation, indexing, fields, slices
const (
	OpAppend Op = iota + 0xB0
	OpSetArray
	OpCat
	OpCatEq
	OpIndex
	OpIndexAssign
	OpField
	OpFieldAssign
	OpSlice
	OpSliceAssign
)

// Value creation
const (
	OpNewArray Op = iota + 0xC0
	OpNewTable
	OpClosure
	OpClosureWithEnv
	OpClass
	OpNamespace
	OpNamespaceNP
	OpSuperOf
	OpAddMember
)

// Comparison kinds carried in the rd field of OpCmp.
const (
	CmpLT uint16 = iota
	CmpLE
	CmpGT
	CmpGE
)

// AddMember flag bits carried in the Imm operand.
const (
	MemberMethod   int32 = 1 << 0
	MemberOverride int32 = 1 << 1
)

// Call-count encoding: a numParams/numResults operand word of 0 means
// "all values up to the stack top" (resp. "keep all results"); any
// other value means count+1. packCounts builds the Imm word used by
// OpMethod/OpTailMethod, which need both counts alongside two register
// operands.
func packCounts(numParams, numResults uint32) int32 {
	return int32(numParams | numResults<<16)
}

func unpackCounts(imm int32) (numParams, numResults uint32) {
	return uint32(imm) & 0xFFFF, uint32(imm) >> 16
}

// ---------------------------------------------------------------------------
// Instruction format
// ---------------------------------------------------------------------------

// ConstBit is the high bit of a register operand word. When set, the
// operand names a constant-table index instead of a register:
//
//	if word&ConstBit != 0 { use constants[word&^ConstBit] }
//	else                  { use stack[stackBase+word] }
const ConstBit uint32 = 1 << 31

// MaxRegister is the largest encodable register or constant index.
const MaxRegister = int(ConstBit) - 1

// Instruction is one fixed-width bytecode record. Rd is the destination
// register (or an opcode-specific small immediate, e.g. the comparison
// kind for OpCmp). A and B are operand words carrying a register index
// or, with ConstBit set, a constant index. Imm is a signed jump
// displacement relative to the next instruction, or an opcode-specific
// count.
type Instruction struct {
	Op  Op
	Rd  uint16
	A   uint32
	B   uint32
	Imm int32
}

// rk renders an operand word for disassembly.
func rk(w uint32) string {
	if w&ConstBit != 0 {
		return fmt.Sprintf("k%d", w&^ConstBit)
	}
	return fmt.Sprintf("r%d", w)
}

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpInfo holds metadata about an opcode.
type OpInfo struct {
	Name   string // human-readable name
	UsesA  bool   // A operand is meaningful
	UsesB  bool   // B operand is meaningful
	UsesImm bool  // Imm is meaningful
	Jumps  bool   // Imm is a branch displacement
	Allocs bool   // may allocate; interpreter runs maybeCollect after it
}

var opTable = map[Op]OpInfo{
	OpAdd: {Name: "add", UsesA: true, UsesB: true},
	OpSub: {Name: "sub", UsesA: true, UsesB: true},
	OpMul: {Name: "mul", UsesA: true, UsesB: true},
	OpDiv: {Name: "div", UsesA: true, UsesB: true},
	OpMod: {Name: "mod", UsesA: true, UsesB: true},

	OpAddEq: {Name: "addeq", UsesA: true},
	OpSubEq: {Name: "subeq", UsesA: true},
	OpMulEq: {Name: "muleq", UsesA: true},
	OpDivEq: {Name: "diveq", UsesA: true},
	OpModEq: {Name: "modeq", UsesA: true},

	OpAnd:  {Name: "and", UsesA: true, UsesB: true},
	OpOr:   {Name: "or", UsesA: true, UsesB: true},
	OpXor:  {Name: "xor", UsesA: true, UsesB: true},
	OpShl:  {Name: "shl", UsesA: true, UsesB: true},
	OpShr:  {Name: "shr", UsesA: true, UsesB: true},
	OpUShr: {Name: "ushr", UsesA: true, UsesB: true},

	OpAndEq:  {Name: "andeq", UsesA: true},
	OpOrEq:   {Name: "oreq", UsesA: true},
	OpXorEq:  {Name: "xoreq", UsesA: true},
	OpShlEq:  {Name: "shleq", UsesA: true},
	OpShrEq:  {Name: "shreq", UsesA: true},
	OpUShrEq: {Name: "ushreq", UsesA: true},

	OpNeg:          {Name: "neg", UsesA: true},
	OpCom:          {Name: "com", UsesA: true},
	OpNot:          {Name: "not", UsesA: true},
	OpAsBool:       {Name: "asbool", UsesA: true},
	OpAsInt:        {Name: "asint", UsesA: true},
	OpAsFloat:      {Name: "asfloat", UsesA: true},
	OpAsString:     {Name: "asstring", UsesA: true, Allocs: true},
	OpInc:          {Name: "inc"},
	OpDec:          {Name: "dec"},
	OpLength:       {Name: "len", UsesA: true},
	OpLengthAssign: {Name: "lena", UsesA: true},

	OpMove:      {Name: "mov", UsesA: true},
	OpNewGlobal: {Name: "newg", UsesA: true},
	OpGetGlobal: {Name: "getg", UsesA: true},
	OpSetGlobal: {Name: "setg", UsesA: true},
	OpGetUpval:  {Name: "getu", UsesA: true},
	OpSetUpval:  {Name: "setu", UsesA: true},

	OpCmp3:      {Name: "cmp3", UsesA: true, UsesB: true},
	OpCmp:       {Name: "cmp", UsesA: true, UsesB: true, UsesImm: true, Jumps: true},
	OpSwitchCmp: {Name: "swcmp", UsesA: true, UsesB: true, UsesImm: true, Jumps: true},
	OpEquals:    {Name: "equals", UsesA: true, UsesB: true, UsesImm: true, Jumps: true},
	OpIs:        {Name: "is", UsesA: true, UsesB: true, UsesImm: true, Jumps: true},
	OpIn:        {Name: "in", UsesA: true, UsesB: true, UsesImm: true, Jumps: true},
	OpIsTrue:    {Name: "istrue", UsesA: true, UsesImm: true, Jumps: true},
	OpJmp:       {Name: "jmp", UsesImm: true, Jumps: true},
	OpSwitch:    {Name: "switch", UsesA: true},
	OpClose:     {Name: "close"},

	OpFor:         {Name: "for", UsesImm: true, Jumps: true},
	OpForLoop:     {Name: "forloop", UsesImm: true, Jumps: true},
	OpForeach:     {Name: "foreach", UsesImm: true, Jumps: true},
	OpForeachLoop: {Name: "foreachloop", UsesA: true, UsesImm: true, Jumps: true},

	OpPushCatch:   {Name: "pushcatch", UsesImm: true, Jumps: true},
	OpPushFinally: {Name: "pushfinally", UsesImm: true, Jumps: true},
	OpPopEH:       {Name: "popeh"},
	OpEndFinal:    {Name: "endfinal"},
	OpThrow:       {Name: "throw", UsesA: true},
	OpUnwind:      {Name: "unwind"},

	OpCall:            {Name: "call", UsesA: true, UsesB: true, Allocs: true},
	OpTailCall:        {Name: "tcall", UsesA: true, Allocs: true},
	OpMethod:          {Name: "method", UsesA: true, UsesB: true, UsesImm: true, Allocs: true},
	OpTailMethod:      {Name: "tmethod", UsesA: true, UsesB: true, UsesImm: true, Allocs: true},
	OpRet:             {Name: "ret"},
	OpSaveRets:        {Name: "saverets", UsesA: true},
	OpVararg:          {Name: "vararg", UsesA: true},
	OpVargLen:         {Name: "varglen"},
	OpVargIndex:       {Name: "vargidx", UsesA: true},
	OpVargIndexAssign: {Name: "vargidxa", UsesA: true, UsesB: true},
	OpYield:           {Name: "yield", UsesA: true, UsesB: true},

	OpCheckParams:     {Name: "checkparams"},
	OpCheckObjParam:   {Name: "checkobjparam", UsesA: true, UsesImm: true, Jumps: true},
	OpObjParamFail:    {Name: "objparamfail"},
	OpCustomParamFail: {Name: "customparamfail", UsesA: true},
	OpCheckRets:       {Name: "checkrets"},
	OpCheckObjRet:     {Name: "checkobjret", UsesA: true, UsesImm: true, Jumps: true},
	OpObjRetFail:      {Name: "objretfail"},
	OpCustomRetFail:   {Name: "customretfail", UsesA: true},
	OpMoveRet:         {Name: "moveret", UsesA: true},
	OpRetAsFloat:      {Name: "retasfloat"},
	OpAssertFail:      {Name: "assertfail"},

	OpAppend:      {Name: "append", UsesA: true},
	OpSetArray:    {Name: "setarray", UsesA: true, UsesB: true},
	OpCat:         {Name: "cat", UsesA: true, UsesB: true, Allocs: true},
	OpCatEq:       {Name: "cateq", UsesA: true, UsesB: true, Allocs: true},
	OpIndex:       {Name: "idx", UsesA: true, UsesB: true},
	OpIndexAssign: {Name: "idxa", UsesA: true, UsesB: true},
	OpField:       {Name: "field", UsesA: true, UsesB: true},
	OpFieldAssign: {Name: "fielda", UsesA: true, UsesB: true},
	OpSlice:       {Name: "slice", UsesA: true, Allocs: true},
	OpSliceAssign: {Name: "slicea", UsesA: true},

	OpNewArray:       {Name: "newarr", UsesA: true, Allocs: true},
	OpNewTable:       {Name: "newtab", Allocs: true},
	OpClosure:        {Name: "closure", UsesA: true, Allocs: true},
	OpClosureWithEnv: {Name: "closurewenv", UsesA: true, Allocs: true},
	OpClass:          {Name: "class", UsesA: true, UsesB: true, UsesImm: true, Allocs: true},
	OpNamespace:      {Name: "namespace", UsesA: true, UsesB: true, Allocs: true},
	OpNamespaceNP:    {Name: "namespacenp", UsesA: true, Allocs: true},
	OpSuperOf:        {Name: "superof", UsesA: true},
	OpAddMember:      {Name: "addmember", UsesA: true, UsesB: true, UsesImm: true},
}

// Info returns metadata for op.
func (op Op) Info() OpInfo {
	if info, ok := opTable[op]; ok {
		return info
	}
	return OpInfo{Name: fmt.Sprintf("op%#x", uint8(op))}
}

// String returns the mnemonic for op.
func (op Op) String() string { return op.Info().Name }

// ---------------------------------------------------------------------------
// Disassembler
// ---------------------------------------------------------------------------

// Disassemble renders a FuncDef's code as one instruction per line.
func Disassemble(def *FuncDef) string {
	var b strings.Builder
	fmt.Fprintf(&b, "function %s (%d params, %d registers, %d constants)\n",
		def.Name, def.NumParams, def.StackSize, len(def.Constants))

	for pc, inst := range def.Code {
		info := inst.Op.Info()
		fmt.Fprintf(&b, "  %4d: %-14s rd=%d", pc, info.Name, inst.Rd)
		if info.UsesA {
			fmt.Fprintf(&b, " %s", rk(inst.A))
		}
		if info.UsesB {
			fmt.Fprintf(&b, " %s", rk(inst.B))
		}
		if info.UsesImm {
			if info.Jumps {
				fmt.Fprintf(&b, " ->%d", pc+1+int(inst.Imm))
			} else {
				fmt.Fprintf(&b, " #%d", inst.Imm)
			}
		}
		if pc < len(def.LineInfo) {
			fmt.Fprintf(&b, "\t; line %d", def.LineInfo[pc])
		}
		b.WriteByte('\n')
	}
	return b.String()
}
