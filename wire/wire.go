package wire

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/croclang/croc/vm"
)

// cborEncMode uses canonical mode so identical modules encode to
// identical bytes, which the content-addressed module cache relies on.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalModule serializes a Module to CBOR bytes.
func MarshalModule(m *Module) ([]byte, error) {
	return cborEncMode.Marshal(m)
}

// UnmarshalModule deserializes a Module from CBOR bytes.
func UnmarshalModule(data []byte) (*Module, error) {
	var m Module
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("wire: unmarshal module: %w", err)
	}
	if m.Version != FormatVersion {
		return nil, fmt.Errorf("wire: unsupported module format version %d", m.Version)
	}
	if m.Main == nil {
		return nil, fmt.Errorf("wire: module %q has no main function", m.Name)
	}
	return &m, nil
}

// ---------------------------------------------------------------------------
// Runtime <-> wire conversion
// ---------------------------------------------------------------------------

// EncodeModule converts a runtime FuncDef into its wire form.
func EncodeModule(name string, def *vm.FuncDef) (*Module, error) {
	wd, err := encodeFuncDef(def)
	if err != nil {
		return nil, err
	}
	return &Module{Version: FormatVersion, Name: name, Main: wd}, nil
}

// DecodeModule converts a wire module back into a runtime FuncDef.
// The result holds detached strings; vm.(*VM).LoadFuncDef re-interns
// them on adoption.
func DecodeModule(m *Module) (*vm.FuncDef, error) {
	return decodeFuncDef(m.Main)
}

func encodeFuncDef(def *vm.FuncDef) (*FuncDef, error) {
	wd := &FuncDef{
		Name:        def.Name,
		IsVararg:    def.IsVararg,
		IsVarret:    def.IsVarret,
		NumParams:   def.NumParams,
		NumReturns:  def.NumReturns,
		StackSize:   def.StackSize,
		ParamMasks:  def.ParamMasks,
		ReturnMasks: def.ReturnMasks,
		LineInfo:    def.LineInfo,
		Docs:        def.Docs,
	}

	for _, c := range def.Constants {
		wc, err := encodeConstant(c)
		if err != nil {
			return nil, fmt.Errorf("wire: function %s: %w", def.Name, err)
		}
		wd.Constants = append(wd.Constants, wc)
	}

	for _, inst := range def.Code {
		wd.Code = append(wd.Code, Instruction{
			Op: uint8(inst.Op), Rd: inst.Rd, A: inst.A, B: inst.B, Imm: inst.Imm,
		})
	}

	for _, st := range def.SwitchTables {
		wst := SwitchTable{DefaultOffset: st.DefaultOffset}
		for v, off := range st.Offsets {
			wc, err := encodeConstant(v)
			if err != nil {
				return nil, fmt.Errorf("wire: function %s switch table: %w", def.Name, err)
			}
			wst.Cases = append(wst.Cases, SwitchCase{Value: wc, Offset: off})
		}
		sort.Slice(wst.Cases, func(i, j int) bool {
			return constLess(wst.Cases[i].Value, wst.Cases[j].Value)
		})
		wd.SwitchTables = append(wd.SwitchTables, wst)
	}

	for _, inner := range def.InnerFuncs {
		wi, err := encodeFuncDef(inner)
		if err != nil {
			return nil, err
		}
		wd.InnerFuncs = append(wd.InnerFuncs, wi)
	}

	for _, uv := range def.Upvals {
		wd.Upvals = append(wd.Upvals, UpvalDesc{IsUpval: uv.IsUpval, Index: uv.Index})
	}

	return wd, nil
}

func decodeFuncDef(wd *FuncDef) (*vm.FuncDef, error) {
	out := &vm.FuncDef{
		Name:        wd.Name,
		IsVararg:    wd.IsVararg,
		IsVarret:    wd.IsVarret,
		NumParams:   wd.NumParams,
		NumReturns:  wd.NumReturns,
		StackSize:   wd.StackSize,
		ParamMasks:  wd.ParamMasks,
		ReturnMasks: wd.ReturnMasks,
		LineInfo:    wd.LineInfo,
		Docs:        wd.Docs,
	}

	for _, wc := range wd.Constants {
		out.Constants = append(out.Constants, decodeConstant(wc))
	}

	if len(wd.Code) == 0 {
		return nil, fmt.Errorf("wire: function %s has no code", wd.Name)
	}
	for _, inst := range wd.Code {
		out.Code = append(out.Code, vm.Instruction{
			Op: vm.Op(inst.Op), Rd: inst.Rd, A: inst.A, B: inst.B, Imm: inst.Imm,
		})
	}

	for _, wst := range wd.SwitchTables {
		st := vm.SwitchTable{
			Offsets:       make(map[vm.Value]int32, len(wst.Cases)),
			DefaultOffset: wst.DefaultOffset,
		}
		for _, c := range wst.Cases {
			st.Offsets[decodeConstant(c.Value)] = c.Offset
		}
		out.SwitchTables = append(out.SwitchTables, st)
	}

	for _, wi := range wd.InnerFuncs {
		inner, err := decodeFuncDef(wi)
		if err != nil {
			return nil, err
		}
		out.InnerFuncs = append(out.InnerFuncs, inner)
	}

	for _, uv := range wd.Upvals {
		out.Upvals = append(out.Upvals, vm.UpvalDesc{IsUpval: uv.IsUpval, Index: uv.Index})
	}

	return out, nil
}

func encodeConstant(v vm.Value) (Constant, error) {
	switch v.Type() {
	case vm.TypeNull:
		return Constant{Kind: ConstNull}, nil
	case vm.TypeBool:
		return Constant{Kind: ConstBool, Bool: v.Bool()}, nil
	case vm.TypeInt:
		return Constant{Kind: ConstInt, Int: v.Int()}, nil
	case vm.TypeFloat:
		return Constant{Kind: ConstFloat, Float: v.Float()}, nil
	case vm.TypeString:
		return Constant{Kind: ConstString, Str: v.String().Get()}, nil
	}
	return Constant{}, fmt.Errorf("constant of type '%s' is not serializable", v.Type().Name())
}

func decodeConstant(c Constant) vm.Value {
	switch c.Kind {
	case ConstBool:
		return vm.FromBool(c.Bool)
	case ConstInt:
		return vm.FromInt(c.Int)
	case ConstFloat:
		return vm.FromFloat(c.Float)
	case ConstString:
		return vm.DetachedString(c.Str)
	}
	return vm.Null
}

func constLess(a, b Constant) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	switch a.Kind {
	case ConstBool:
		return !a.Bool && b.Bool
	case ConstInt:
		return a.Int < b.Int
	case ConstFloat:
		return a.Float < b.Float
	case ConstString:
		return a.Str < b.Str
	}
	return false
}
