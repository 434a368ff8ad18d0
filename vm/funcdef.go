package vm

// ---------------------------------------------------------------------------
// FuncDef: immutable compiled function artifact
// ---------------------------------------------------------------------------

// UpvalDesc describes where a closure finds one of its upvalues when it
// is instantiated: in the enclosing function's upvalue vector (IsUpval)
// or in the enclosing frame's register window (Index is a register).
type UpvalDesc struct {
	IsUpval bool
	Index   uint32
}

// SwitchTable maps case values to jump displacements. Lookup is by
// exact value: 10 and 10.0 are distinct cases. DefaultOffset is
// NoDefault when the switch has no default branch.
type SwitchTable struct {
	Offsets       map[Value]int32
	DefaultOffset int32
}

// NoDefault marks a switch table without a default branch.
const NoDefault int32 = -1

// FuncDef is the compiled form of one function: everything the
// interpreter needs to execute it, produced by the compiler (or the
// FuncDefBuilder) and immutable afterwards.
//
// ParamMasks[i] is a bitmask of allowed types for parameter i (bit t
// allows Type t); parameter 0 is 'this'. ReturnMasks constrain returns
// the same way when IsVarret is false or masks are present.
type FuncDef struct {
	gcHeader

	Name      string
	IsVararg  bool
	IsVarret  bool
	NumParams int // fixed parameters including 'this'
	NumReturns int
	StackSize int // register window size, including params

	ParamMasks  []uint32
	ReturnMasks []uint32

	Constants    []Value
	Code         []Instruction
	SwitchTables []SwitchTable
	InnerFuncs   []*FuncDef
	Upvals       []UpvalDesc
	LineInfo     []int32 // parallel to Code

	// Docs is an opaque blob attached by a docs-enabled compiler. The
	// runtime never reads it.
	Docs []byte

	// cachedFunc memoizes the first closure made in a given namespace;
	// a FuncDef with no upvalues closes identically every time.
	cachedFunc *Function
	cachedEnv  *Namespace
}

func (d *FuncDef) objType() Type { return TypeFuncDef }

func (d *FuncDef) gcMark(m *Memory) {
	for _, c := range d.Constants {
		m.markValue(c)
	}
	for _, inner := range d.InnerFuncs {
		m.markObject(inner)
	}
	for _, st := range d.SwitchTables {
		for k := range st.Offsets {
			m.markValue(k)
		}
	}
	if d.cachedFunc != nil {
		m.markObject(d.cachedFunc)
	}
	if d.cachedEnv != nil {
		m.markObject(d.cachedEnv)
	}
}

// Line returns the source line for the instruction at pc, or 0 when no
// line info was recorded.
func (d *FuncDef) Line(pc int) int32 {
	if pc >= 0 && pc < len(d.LineInfo) {
		return d.LineInfo[pc]
	}
	return 0
}

// register registers the def (and its inner defs) with the memory
// manager. Defs built outside the VM, e.g. deserialized from wire
// format, must be adopted before use.
func (d *FuncDef) register(mem *Memory) {
	if d.id != 0 {
		return
	}
	mem.allocate(d, &d.gcHeader, uint64(len(d.Code))*16+64)
	for _, inner := range d.InnerFuncs {
		inner.register(mem)
	}
}

// ---------------------------------------------------------------------------
// Function: a FuncDef bound to an environment, or a native callback
// ---------------------------------------------------------------------------

// NativeFunc is the signature of a native (host) function. Arguments
// occupy the thread's current register window ('this' at register 0);
// the callback returns how many values from the top of the stack are
// its results. Failures are raised with Thread.Throw and unwind through
// the EH machinery.
type NativeFunc func(t *Thread) int

// Function is a callable: either a native callback or a script closure
// (FuncDef + environment namespace + upvalue vector).
type Function struct {
	gcHeader

	name      *String
	def       *FuncDef   // nil for native functions
	native    NativeFunc // nil for script functions
	env       *Namespace
	upvals    []*Upvalue
	numParams int // fixed parameters including 'this', for native funcs
}

func (f *Function) objType() Type { return TypeFunction }

func (f *Function) gcMark(m *Memory) {
	if f.name != nil {
		m.markObject(f.name)
	}
	if f.def != nil {
		m.markObject(f.def)
	}
	if f.env != nil {
		m.markObject(f.env)
	}
	for _, uv := range f.upvals {
		m.markObject(uv)
	}
}

// IsNative reports whether f is a native callback.
func (f *Function) IsNative() bool { return f.native != nil }

// Def returns the compiled definition, or nil for native functions.
func (f *Function) Def() *FuncDef { return f.def }

// Environment returns the namespace the function was instantiated in.
func (f *Function) Environment() *Namespace { return f.env }

// Name returns the function's name, "<anonymous>" when unnamed.
func (f *Function) Name() string {
	if f.name == nil || f.name.Get() == "" {
		return "<anonymous>"
	}
	return f.name.Get()
}

// newScriptFunction instantiates def in env. Upvalues are filled in by
// the closure opcodes.
func (vm *VM) newScriptFunction(def *FuncDef, env *Namespace) *Function {
	// A def with no upvalues produces interchangeable closures; the
	// first closure is cached on the def and pinned to its namespace.
	// Returns nil when the def is already pinned to another namespace.
	if len(def.Upvals) == 0 {
		if def.cachedFunc != nil {
			if def.cachedEnv == env {
				return def.cachedFunc
			}
			return nil
		}
	}

	f := &Function{
		name:      vm.Strings.Intern(def.Name),
		def:       def,
		env:       env,
		upvals:    make([]*Upvalue, len(def.Upvals)),
		numParams: def.NumParams,
	}
	vm.mem.allocate(f, &f.gcHeader, 64)

	if len(def.Upvals) == 0 {
		vm.mem.WriteBarrier(def)
		def.cachedFunc = f
		def.cachedEnv = env
	}
	return f
}

// NewNativeFunction wraps a Go callback as a function value.
func (vm *VM) NewNativeFunction(name string, numParams int, fn NativeFunc) Value {
	f := &Function{
		name:      vm.Strings.Intern(name),
		native:    fn,
		env:       vm.globals,
		numParams: numParams,
	}
	vm.mem.allocate(f, &f.gcHeader, 48)
	return FromObject(f)
}
