package vm

// ---------------------------------------------------------------------------
// Memory: allocation accounting, write barrier, collection
// ---------------------------------------------------------------------------

// GCObject is implemented by every heap-allocated runtime object. The
// interpreter only ever manipulates objects through Values; the Memory
// manager reaches them through this interface when tracing.
type GCObject interface {
	objType() Type
	objID() uint64
	// gcMark calls m.markValue / m.markObject on every value and object
	// the receiver keeps alive.
	gcMark(m *Memory)
}

// gcHeader is embedded in every heap object. It carries the allocation
// identity and the per-cycle mark bit.
type gcHeader struct {
	id     uint64
	marked bool
}

func (h *gcHeader) objID() uint64 { return h.id }

// Memory owns the heap bookkeeping for one VM: the set of live objects,
// the allocation budget that drives collection, the remembered set fed
// by the write barrier, and the weak references to clear on sweep.
//
// The collector is a stop-the-world mark-sweep over the VM's roots.
// The write barrier exists so the contract with mutators stays honest
// even if the collector becomes generational: every publishable heap
// write (upvalue store, namespace store, class member set, table set,
// array set) must go through WriteBarrier before the store.
type Memory struct {
	vm *VM

	objects    map[GCObject]struct{}
	remembered map[GCObject]struct{}
	weakRefs   []*WeakRef

	// keepAlive pins objects the host holds outside any VM root.
	keepAlive map[GCObject]int

	nextID     uint64
	allocBytes uint64
	threshold  uint64

	// Collection statistics
	cycles   uint64
	lastSwept int
}

// DefaultGCThreshold is the allocation budget, in accounted bytes,
// between collections.
const DefaultGCThreshold = 1 << 20

func newMemory(vm *VM, threshold uint64) *Memory {
	if threshold == 0 {
		threshold = DefaultGCThreshold
	}
	return &Memory{
		vm:         vm,
		objects:    make(map[GCObject]struct{}),
		remembered: make(map[GCObject]struct{}),
		keepAlive:  make(map[GCObject]int),
		threshold:  threshold,
	}
}

// allocate registers a new object and charges size bytes against the
// collection budget. Every object constructor routes through here.
func (m *Memory) allocate(o GCObject, h *gcHeader, size uint64) {
	m.nextID++
	h.id = m.nextID
	m.objects[o] = struct{}{}
	m.allocBytes += size
}

// WriteBarrier must be called immediately before a publishable write
// into owner. It records the owner in the remembered set, which the
// next mark phase treats as an additional root.
func (m *Memory) WriteBarrier(owner GCObject) {
	m.remembered[owner] = struct{}{}
}

// maybeCollect runs a collection if the allocation budget since the
// last cycle has been exceeded. Called by the interpreter at every
// allocating opcode.
func (m *Memory) maybeCollect() {
	if m.allocBytes >= m.threshold {
		m.Collect()
	}
}

// Collect runs a full mark-sweep cycle. Roots are every thread's value
// stack, AR stack, EH frames, open upvalue list and results buffer,
// plus the VM's globals, type metatables, intern table and keep-alive
// set.
func (m *Memory) Collect() {
	m.cycles++

	// Mark
	m.vm.markRoots(m)
	for o := range m.keepAlive {
		m.markObject(o)
	}
	for o := range m.remembered {
		if _, live := m.objects[o]; live {
			m.markObject(o)
		}
	}

	// Clear weak references to unmarked targets before sweeping.
	kept := m.weakRefs[:0]
	for _, wr := range m.weakRefs {
		if wr.target != nil && !objMarked(wr.target) {
			wr.target = nil
		}
		if wr.marked {
			kept = append(kept, wr)
		}
	}
	m.weakRefs = kept

	// Sweep
	swept := 0
	for o := range m.objects {
		if !objMarked(o) {
			delete(m.objects, o)
			swept++
			continue
		}
		clearMark(o)
	}
	m.lastSwept = swept
	m.allocBytes = 0
	m.remembered = make(map[GCObject]struct{})

	if m.vm.gcLog != nil {
		m.vm.gcLog.Debugf("collect cycle=%d swept=%d live=%d", m.cycles, swept, len(m.objects))
	}
}

// markValue marks the object behind v, if any.
func (m *Memory) markValue(v Value) {
	if v.obj != nil {
		m.markObject(v.obj)
	}
}

// markObject marks o and traces its children.
func (m *Memory) markObject(o GCObject) {
	if o == nil || objMarked(o) {
		return
	}
	setMark(o)
	o.gcMark(m)
}

// KeepAlive pins v's object against collection until a matching
// Release. Host code holding Values outside any VM root (stack,
// globals, table) must pin them; calls nest.
func (m *Memory) KeepAlive(v Value) {
	if v.obj != nil {
		m.keepAlive[v.obj]++
	}
}

// Release undoes one KeepAlive.
func (m *Memory) Release(v Value) {
	if v.obj == nil {
		return
	}
	if n := m.keepAlive[v.obj]; n <= 1 {
		delete(m.keepAlive, v.obj)
	} else {
		m.keepAlive[v.obj] = n - 1
	}
}

// Stats reports cycle count and objects swept by the last cycle.
func (m *Memory) Stats() (cycles uint64, lastSwept int, live int) {
	return m.cycles, m.lastSwept, len(m.objects)
}

// Every GCObject embeds gcHeader; these helpers reach it through the
// interface without a second method set.
type headed interface{ header() *gcHeader }

func objMarked(o GCObject) bool { return o.(headed).header().marked }
func setMark(o GCObject)        { o.(headed).header().marked = true }
func clearMark(o GCObject)      { o.(headed).header().marked = false }

func (h *gcHeader) header() *gcHeader { return h }
