package vm

// ---------------------------------------------------------------------------
// Upvalue: shared reference cell for closed-over variables
// ---------------------------------------------------------------------------

// Upvalue is the reference cell shared between closures and a variable
// of an enclosing scope. While the variable's frame is live the upvalue
// is open: it designates a slot of the owning thread's stack. When the
// scope exits the value moves into the cell itself and the upvalue is
// closed.
type Upvalue struct {
	gcHeader

	owner *Thread  // non-nil while open
	slot  AbsStack // valid while open
	value Value    // storage once closed
	next  *Upvalue // open list link, slot strictly descending
}

// Upvalues never escape to scripts as Values; the type tag is only for
// the GC interface.
func (uv *Upvalue) objType() Type { return TypeNativeObj }

func (uv *Upvalue) gcMark(m *Memory) {
	if uv.owner != nil {
		m.markObject(uv.owner)
	} else {
		m.markValue(uv.value)
	}
}

// isOpen reports whether the upvalue still designates a stack slot.
func (uv *Upvalue) isOpen() bool { return uv.owner != nil }

// Get reads through the cell.
func (uv *Upvalue) Get() Value {
	if uv.owner != nil {
		return uv.owner.stack[uv.slot]
	}
	return uv.value
}

// Set writes through the cell. The caller has already run the write
// barrier on the upvalue.
func (uv *Upvalue) Set(v Value) {
	if uv.owner != nil {
		uv.owner.stack[uv.slot] = v
		return
	}
	uv.value = v
}

// findUpval returns the open upvalue for slot, creating and linking one
// if none exists. The open list is ordered by slot descending and holds
// at most one upvalue per slot, so closures closing over the same
// variable share a cell.
func (t *Thread) findUpval(slot AbsStack) *Upvalue {
	cur := &t.openUpvals
	for *cur != nil && (*cur).slot > slot {
		cur = &(*cur).next
	}
	if *cur != nil && (*cur).slot == slot {
		return *cur
	}

	uv := &Upvalue{owner: t, slot: slot, next: *cur}
	t.vm.mem.allocate(uv, &uv.gcHeader, 48)
	*cur = uv
	return uv
}

// closeUpvals closes every open upvalue at or above slot: the current
// stack value transfers into the cell and the cell leaves the open
// list. Called on scope exit, return and unwind.
func (t *Thread) closeUpvals(slot AbsStack) {
	for t.openUpvals != nil && t.openUpvals.slot >= slot {
		uv := t.openUpvals
		uv.value = t.stack[uv.slot]
		uv.owner = nil
		t.openUpvals = uv.next
		uv.next = nil
	}
}
