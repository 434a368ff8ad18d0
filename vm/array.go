package vm

// ---------------------------------------------------------------------------
// Array: mutable value vector
// ---------------------------------------------------------------------------

// Array is the script array object.
type Array struct {
	gcHeader
	mem  *Memory
	data []Value
}

func (a *Array) objType() Type { return TypeArray }

func (a *Array) gcMark(m *Memory) {
	for _, v := range a.data {
		m.markValue(v)
	}
}

// NewArray allocates an array of length size, filled with null.
func (vm *VM) NewArray(size int) *Array {
	a := &Array{mem: vm.mem, data: make([]Value, size)}
	vm.mem.allocate(a, &a.gcHeader, uint64(size)*16+32)
	return a
}

// Len returns the number of elements.
func (a *Array) Len() int64 { return int64(len(a.data)) }

// Get returns the element at i. The caller has bounds-checked i.
func (a *Array) Get(i int64) Value { return a.data[i] }

// Set stores v at i. The caller has bounds-checked i.
func (a *Array) Set(i int64, v Value) {
	a.mem.WriteBarrier(a)
	a.data[i] = v
}

// Append adds v at the end.
func (a *Array) Append(v Value) {
	a.mem.WriteBarrier(a)
	a.data = append(a.data, v)
}

// SetBlock stores vals starting at placement index block. Used by array
// literal construction, where the compiler emits the elements in
// register-window-sized blocks.
func (a *Array) SetBlock(block int, vals []Value) {
	a.mem.WriteBarrier(a)
	need := block + len(vals)
	for len(a.data) < need {
		a.data = append(a.data, Null)
	}
	copy(a.data[block:], vals)
}

// Resize sets the length to n, truncating or extending with null.
func (a *Array) Resize(n int64) {
	a.mem.WriteBarrier(a)
	cur := int64(len(a.data))
	switch {
	case n < cur:
		// clear the tail so truncated elements don't linger
		for i := n; i < cur; i++ {
			a.data[i] = Null
		}
		a.data = a.data[:n]
	case n > cur:
		for i := cur; i < n; i++ {
			a.data = append(a.data, Null)
		}
	}
}

// Slice returns a new backing slice copy of [lo, hi).
func (a *Array) Slice(lo, hi int64) []Value {
	out := make([]Value, hi-lo)
	copy(out, a.data[lo:hi])
	return out
}

// Data returns the backing slice. Callers must not grow it.
func (a *Array) Data() []Value { return a.data }

// ---------------------------------------------------------------------------
// Memblock: raw byte buffer
// ---------------------------------------------------------------------------

// Memblock is a fixed-size byte buffer exposed to scripts.
type Memblock struct {
	gcHeader
	Data []byte
}

func (mb *Memblock) objType() Type    { return TypeMemblock }
func (mb *Memblock) gcMark(m *Memory) {}

// NewMemblock allocates a zeroed memblock of the given size.
func (vm *VM) NewMemblock(size int) *Memblock {
	mb := &Memblock{Data: make([]byte, size)}
	vm.mem.allocate(mb, &mb.gcHeader, uint64(size)+32)
	return mb
}

// ---------------------------------------------------------------------------
// NativeObj: opaque host value
// ---------------------------------------------------------------------------

// NativeObj wraps an arbitrary host Go value for scripts to carry
// around opaquely.
type NativeObj struct {
	gcHeader
	Obj any
}

func (n *NativeObj) objType() Type    { return TypeNativeObj }
func (n *NativeObj) gcMark(m *Memory) {}

// NewNativeObj wraps obj as a script value.
func (vm *VM) NewNativeObj(obj any) Value {
	n := &NativeObj{Obj: obj}
	vm.mem.allocate(n, &n.gcHeader, 32)
	return FromObject(n)
}
