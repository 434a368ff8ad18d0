// Package wire implements the .crocm compiled module format: a
// deterministic CBOR encoding of function definitions that two
// runtimes (or a runtime and its module cache) can exchange and verify
// by content hash.
package wire

// FormatVersion is bumped whenever the encoding changes
// incompatibly.
const FormatVersion = 1

// Module is the serialized unit: one top-level function definition
// plus identity metadata.
type Module struct {
	Version int      `cbor:"1,keyasint"`
	Name    string   `cbor:"2,keyasint"`
	Main    *FuncDef `cbor:"3,keyasint"`
}

// FuncDef is the wire form of a compiled function.
type FuncDef struct {
	Name       string   `cbor:"1,keyasint"`
	IsVararg   bool     `cbor:"2,keyasint,omitempty"`
	IsVarret   bool     `cbor:"3,keyasint,omitempty"`
	NumParams  int      `cbor:"4,keyasint"`
	NumReturns int      `cbor:"5,keyasint,omitempty"`
	StackSize  int      `cbor:"6,keyasint"`

	ParamMasks  []uint32 `cbor:"7,keyasint,omitempty"`
	ReturnMasks []uint32 `cbor:"8,keyasint,omitempty"`

	Constants    []Constant    `cbor:"9,keyasint,omitempty"`
	Code         []Instruction `cbor:"10,keyasint"`
	SwitchTables []SwitchTable `cbor:"11,keyasint,omitempty"`
	InnerFuncs   []*FuncDef    `cbor:"12,keyasint,omitempty"`
	Upvals       []UpvalDesc   `cbor:"13,keyasint,omitempty"`
	LineInfo     []int32       `cbor:"14,keyasint,omitempty"`
	Docs         []byte        `cbor:"15,keyasint,omitempty"`
}

// Instruction is the wire form of one bytecode record.
type Instruction struct {
	Op  uint8  `cbor:"1,keyasint"`
	Rd  uint16 `cbor:"2,keyasint,omitempty"`
	A   uint32 `cbor:"3,keyasint,omitempty"`
	B   uint32 `cbor:"4,keyasint,omitempty"`
	Imm int32  `cbor:"5,keyasint,omitempty"`
}

// ConstKind tags a serialized constant.
type ConstKind uint8

const (
	ConstNull ConstKind = iota
	ConstBool
	ConstInt
	ConstFloat
	ConstString
)

// Constant is the wire form of a constant-table entry. Only scalars
// and strings appear in compiled constant tables.
type Constant struct {
	Kind  ConstKind `cbor:"1,keyasint"`
	Bool  bool      `cbor:"2,keyasint,omitempty"`
	Int   int64     `cbor:"3,keyasint,omitempty"`
	Float float64   `cbor:"4,keyasint,omitempty"`
	Str   string    `cbor:"5,keyasint,omitempty"`
}

// SwitchTable is the wire form of a switch table. Cases are sorted by
// encoded value so the encoding stays canonical.
type SwitchTable struct {
	Cases         []SwitchCase `cbor:"1,keyasint"`
	DefaultOffset int32        `cbor:"2,keyasint"`
}

// SwitchCase pairs a case value with its jump displacement.
type SwitchCase struct {
	Value  Constant `cbor:"1,keyasint"`
	Offset int32    `cbor:"2,keyasint"`
}

// UpvalDesc is the wire form of an upvalue descriptor.
type UpvalDesc struct {
	IsUpval bool   `cbor:"1,keyasint,omitempty"`
	Index   uint32 `cbor:"2,keyasint"`
}
