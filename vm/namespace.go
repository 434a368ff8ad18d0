package vm

// ---------------------------------------------------------------------------
// Namespace: named binding map with parent chain
// ---------------------------------------------------------------------------

// Namespace is the module-like environment object: a name, an optional
// parent, and a map of string bindings. Global lookup walks the parent
// chain; global assignment requires the name to already exist somewhere
// on the chain.
type Namespace struct {
	gcHeader
	mem      *Memory
	name     *String
	parent   *Namespace
	bindings map[*String]Value
}

func (ns *Namespace) objType() Type { return TypeNamespace }

func (ns *Namespace) gcMark(m *Memory) {
	m.markObject(ns.name)
	if ns.parent != nil {
		m.markObject(ns.parent)
	}
	for k, v := range ns.bindings {
		m.markObject(k)
		m.markValue(v)
	}
}

// NewNamespace allocates a namespace. parent may be nil.
func (vm *VM) NewNamespace(name string, parent *Namespace) *Namespace {
	ns := &Namespace{
		mem:      vm.mem,
		name:     vm.Strings.Intern(name),
		parent:   parent,
		bindings: make(map[*String]Value),
	}
	vm.mem.allocate(ns, &ns.gcHeader, 64)
	return ns
}

// Name returns the namespace's own name.
func (ns *Namespace) Name() *String { return ns.name }

// Parent returns the parent namespace, or nil.
func (ns *Namespace) Parent() *Namespace { return ns.parent }

// FullName renders the dotted path from the root namespace.
func (ns *Namespace) FullName() string {
	if ns.parent == nil || ns.parent.name.Get() == "" {
		return ns.name.Get()
	}
	return ns.parent.FullName() + "." + ns.name.Get()
}

// Get returns the binding for name in this namespace only.
func (ns *Namespace) Get(name *String) (Value, bool) {
	v, ok := ns.bindings[name]
	return v, ok
}

// Set stores a binding in this namespace, creating it if absent.
func (ns *Namespace) Set(name *String, v Value) {
	ns.mem.WriteBarrier(ns)
	ns.bindings[name] = v
}

// Contains reports whether name is bound in this namespace only.
func (ns *Namespace) Contains(name *String) bool {
	_, ok := ns.bindings[name]
	return ok
}

// Remove deletes a binding from this namespace.
func (ns *Namespace) Remove(name *String) {
	ns.mem.WriteBarrier(ns)
	delete(ns.bindings, name)
}

// Len returns the number of bindings in this namespace only.
func (ns *Namespace) Len() int64 { return int64(len(ns.bindings)) }

// Each calls fn for every binding until fn returns false.
func (ns *Namespace) Each(fn func(name *String, v Value) bool) {
	for k, v := range ns.bindings {
		if !fn(k, v) {
			return
		}
	}
}

// resolve walks the parent chain for name, returning the namespace that
// binds it.
func (ns *Namespace) resolve(name *String) (*Namespace, bool) {
	for cur := ns; cur != nil; cur = cur.parent {
		if cur.Contains(name) {
			return cur, true
		}
	}
	return nil, false
}
