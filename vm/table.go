package vm

// ---------------------------------------------------------------------------
// Table: mutable mapping
// ---------------------------------------------------------------------------

// Table maps values to values. Null keys and null values are forbidden;
// storing null removes the key. Int and Float keys with the same
// numeric value are the same key.
type Table struct {
	gcHeader
	mem  *Memory
	data map[Value]Value
}

func (t *Table) objType() Type { return TypeTable }

func (t *Table) gcMark(m *Memory) {
	for k, v := range t.data {
		m.markValue(k)
		m.markValue(v)
	}
}

// NewTable allocates an empty table.
func (vm *VM) NewTable() *Table {
	t := &Table{mem: vm.mem, data: make(map[Value]Value)}
	vm.mem.allocate(t, &t.gcHeader, 64)
	return t
}

// Get returns the value for key, or null when absent.
func (t *Table) Get(key Value) Value {
	return t.data[key.tableKey()]
}

// Contains reports whether key is present.
func (t *Table) Contains(key Value) bool {
	_, ok := t.data[key.tableKey()]
	return ok
}

// Set stores value under key. A null value removes the key. The caller
// has verified the key is hashable and non-null.
func (t *Table) Set(key, value Value) {
	t.mem.WriteBarrier(t)
	k := key.tableKey()
	if value.IsNull() {
		delete(t.data, k)
		return
	}
	t.data[k] = value
}

// Len returns the number of entries.
func (t *Table) Len() int64 { return int64(len(t.data)) }

// Each calls fn for every entry until fn returns false.
func (t *Table) Each(fn func(k, v Value) bool) {
	for k, v := range t.data {
		if !fn(k, v) {
			return
		}
	}
}
