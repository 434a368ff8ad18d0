package vm

// ---------------------------------------------------------------------------
// String: interned immutable string object
// ---------------------------------------------------------------------------

// String is an interned heap string. The VM guarantees that two Strings
// with the same contents are the same object, so handle identity is
// content equality everywhere in the core.
type String struct {
	gcHeader
	s string
}

func (s *String) objType() Type    { return TypeString }
func (s *String) gcMark(m *Memory) {}

// Get returns the string contents.
func (s *String) Get() string { return s.s }

// Len returns the length in code points.
func (s *String) Len() int64 { return int64(len([]rune(s.s))) }

// StringTable is the VM-wide intern table. It is owned by the VM; there
// are no process-global tables.
type StringTable struct {
	mem     *Memory
	strings map[string]*String
}

func newStringTable(mem *Memory) *StringTable {
	return &StringTable{
		mem:     mem,
		strings: make(map[string]*String),
	}
}

// Intern returns the canonical String for s, creating it on first use.
func (st *StringTable) Intern(s string) *String {
	if obj, ok := st.strings[s]; ok {
		return obj
	}
	obj := &String{s: s}
	st.mem.allocate(obj, &obj.gcHeader, uint64(len(s))+16)
	st.strings[s] = obj
	return obj
}

// Lookup returns the canonical String for s if it has been interned.
func (st *StringTable) Lookup(s string) (*String, bool) {
	obj, ok := st.strings[s]
	return obj, ok
}

// Len returns the number of interned strings.
func (st *StringTable) Len() int { return len(st.strings) }

func (st *StringTable) gcMarkAll(m *Memory) {
	for _, s := range st.strings {
		m.markObject(s)
	}
}

// NewString interns s in this VM and returns it as a Value.
func (vm *VM) NewString(s string) Value {
	return FromObject(vm.Strings.Intern(s))
}

// DetachedString makes a string Value that belongs to no VM. Builders
// and decoders use it for constants; LoadFuncDef re-interns detached
// strings when a def is adopted, restoring the identity invariant.
func DetachedString(s string) Value {
	return FromObject(&String{s: s})
}
