package vm

// ---------------------------------------------------------------------------
// WeakRef: a reference that doesn't keep its target alive
// ---------------------------------------------------------------------------

// WeakRef holds a reference the collector is allowed to break. When the
// target becomes unreachable, Deref yields null from then on.
type WeakRef struct {
	gcHeader
	target GCObject
}

func (wr *WeakRef) objType() Type { return TypeWeakRef }

// gcMark deliberately does not mark the target.
func (wr *WeakRef) gcMark(m *Memory) {}

// NewWeakRef creates a weak reference to v's object. Weakly referring
// to a scalar is allowed and is permanently dead.
func (vm *VM) NewWeakRef(v Value) *WeakRef {
	wr := &WeakRef{target: v.obj}
	vm.mem.allocate(wr, &wr.gcHeader, 32)
	vm.mem.weakRefs = append(vm.mem.weakRefs, wr)
	return wr
}

// Deref returns the target value, or null if it has been collected.
func (wr *WeakRef) Deref() Value {
	if wr.target == nil {
		return Null
	}
	return FromObject(wr.target)
}

// IsAlive reports whether the target has not been collected.
func (wr *WeakRef) IsAlive() bool { return wr.target != nil }
