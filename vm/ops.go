package vm

import "strings"

// ---------------------------------------------------------------------------
// Metamethods
// ---------------------------------------------------------------------------

// MM identifies a metamethod: a user override of a built-in operation,
// discovered by name on an instance's class or on the per-type
// metatable namespace.
type MM int

const (
	MMAdd MM = iota
	MMSub
	MMMul
	MMDiv
	MMMod
	MMAddR
	MMSubR
	MMMulR
	MMDivR
	MMModR
	MMCmp
	MMEquals
	MMIn
	MMApply
	MMIndex
	MMIndexAssign
	MMField
	MMFieldAssign
	MMLength
	MMLengthAssign
	MMSlice
	MMSliceAssign
	MMCat
	MMCatR
	MMCatAssign
	MMCall

	NumMMs = int(MMCall) + 1
)

var mmNames = [NumMMs]string{
	"opAdd", "opSub", "opMul", "opDiv", "opMod",
	"opAdd_r", "opSub_r", "opMul_r", "opDiv_r", "opMod_r",
	"opCmp", "opEquals", "opIn", "opApply",
	"opIndex", "opIndexAssign", "opField", "opFieldAssign",
	"opLength", "opLengthAssign", "opSlice", "opSliceAssign",
	"opCat", "opCat_r", "opCatAssign", "opCall",
}

// Name returns the script-visible metamethod name.
func (mm MM) Name() string { return mmNames[mm] }

// getMM looks up the metamethod mm for v: on the class for instances,
// on the per-type metatable namespace otherwise. The result is only
// useful if it is callable.
func (vm *VM) getMM(v Value, mm MM) (Value, bool) {
	name := vm.mmStrings[mm]
	if v.kind == TypeInstance {
		if m, ok := v.Instance().Method(name); ok {
			return m, true
		}
		return Null, false
	}
	if mt := vm.typeMetatables[v.kind]; mt != nil {
		if m, ok := mt.Get(name); ok {
			return m, true
		}
	}
	return Null, false
}

// SetTypeMetatable installs ns as the metatable namespace for ty.
// Instances resolve metamethods through their class instead.
func (vm *VM) SetTypeMetatable(ty Type, ns *Namespace) {
	vm.typeMetatables[ty] = ns
}

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

// cmp3 is the three-way comparison: -1, 0 or 1. Int and Float
// cross-promote, strings compare lexicographically, anything else needs
// an opCmp metamethod returning an Int.
func (t *Thread) cmp3(a, b Value) int64 {
	switch {
	case a.kind == TypeNull && b.kind == TypeNull:
		return 0
	case a.kind == TypeInt && b.kind == TypeInt:
		return cmpOrder(a.n, b.n)
	case a.kind == TypeString && b.kind == TypeString:
		s1, s2 := a.String().Get(), b.String().Get()
		switch {
		case s1 < s2:
			return -1
		case s1 > s2:
			return 1
		}
		return 0
	}

	if f1, f2, ok := floatPair(a, b); ok {
		switch {
		case f1 < f2:
			return -1
		case f1 > f2:
			return 1
		}
		return 0
	}

	if mm, ok := t.vm.getMM(a, MMCmp); ok {
		res := t.runMM(mm, a, b)
		if res.kind != TypeInt {
			t.throwStd(ExTypeError, "opCmp is expected to return an int, not a '%s'", res.kind.Name())
		}
		return res.n
	}
	if mm, ok := t.vm.getMM(b, MMCmp); ok {
		res := t.runMM(mm, b, a)
		if res.kind != TypeInt {
			t.throwStd(ExTypeError, "opCmp is expected to return an int, not a '%s'", res.kind.Name())
		}
		return -res.n
	}

	t.throwStd(ExTypeError, "Attempting to compare a '%s' and a '%s'",
		a.kind.Name(), b.kind.Name())
	return 0
}

func cmpOrder(a, b int64) int64 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// equals is the script equality protocol: value equality where types
// allow it, opEquals metamethod fallback otherwise.
func (t *Thread) equals(a, b Value) bool {
	if eq, ok := rawEquals(a, b); ok {
		return eq
	}

	if mm, found := t.vm.getMM(a, MMEquals); found {
		res := t.runMM(mm, a, b)
		if res.kind != TypeBool {
			t.throwStd(ExTypeError, "opEquals is expected to return a bool, not a '%s'", res.kind.Name())
		}
		return res.n != 0
	}
	if mm, found := t.vm.getMM(b, MMEquals); found {
		res := t.runMM(mm, b, a)
		if res.kind != TypeBool {
			t.throwStd(ExTypeError, "opEquals is expected to return a bool, not a '%s'", res.kind.Name())
		}
		return res.n != 0
	}

	t.throwStd(ExTypeError, "Attempting to compare a '%s' and a '%s' for equality",
		a.kind.Name(), b.kind.Name())
	return false
}

// switchCmp is the exact-value equality used for switch tables: no
// Int/Float promotion and no metamethods, so 10 and 10.0 are distinct
// cases.
func switchCmp(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case TypeNull:
		return true
	case TypeBool, TypeInt:
		return a.n == b.n
	case TypeFloat:
		return a.f == b.f
	default:
		return a.obj == b.obj
	}
}

// in implements the 'in' operator: membership in strings, tables,
// arrays and namespaces, opIn metamethod otherwise.
func (t *Thread) in(item, container Value) bool {
	switch container.kind {
	case TypeString:
		if item.kind != TypeString {
			t.throwStd(ExTypeError, "Attempting to look up a '%s' in a string", item.kind.Name())
		}
		return strings.Contains(container.String().Get(), item.String().Get())
	case TypeTable:
		return container.Table().Contains(item)
	case TypeArray:
		for _, v := range container.Array().Data() {
			if eq, ok := rawEquals(v, item); ok && eq {
				return true
			}
		}
		return false
	case TypeNamespace:
		if item.kind != TypeString {
			t.throwStd(ExTypeError, "Attempting to look up a '%s' in a namespace", item.kind.Name())
		}
		return container.Namespace().Contains(item.String())
	}

	if mm, ok := t.vm.getMM(container, MMIn); ok {
		return !t.runMM(mm, container, item).IsFalse()
	}

	t.throwStd(ExTypeError, "No implementation of operator 'in' for type '%s'",
		container.kind.Name())
	return false
}

// ---------------------------------------------------------------------------
// Indexing
// ---------------------------------------------------------------------------

// normIndex wraps negative indices and bounds-checks against length.
func (t *Thread) normIndex(idx, length int64, what string) int64 {
	i := idx
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		t.throwStd(ExBoundsError, "Invalid %s index: %d (length: %d)", what, idx, length)
	}
	return i
}

// index implements container[key] into stack[dest].
func (t *Thread) index(dest AbsStack, container, key Value) {
	switch container.kind {
	case TypeArray:
		if key.kind != TypeInt {
			t.throwStd(ExTypeError, "Attempting to index an array with a '%s'", key.kind.Name())
		}
		a := container.Array()
		t.stack[dest] = a.Get(t.normIndex(key.n, a.Len(), "array"))
		return

	case TypeString:
		if key.kind != TypeInt {
			t.throwStd(ExTypeError, "Attempting to index a string with a '%s'", key.kind.Name())
		}
		runes := []rune(container.String().Get())
		i := t.normIndex(key.n, int64(len(runes)), "string")
		t.stack[dest] = t.vm.NewString(string(runes[i]))
		return

	case TypeMemblock:
		if key.kind != TypeInt {
			t.throwStd(ExTypeError, "Attempting to index a memblock with a '%s'", key.kind.Name())
		}
		mb := container.Memblock()
		i := t.normIndex(key.n, int64(len(mb.Data)), "memblock")
		t.stack[dest] = FromInt(int64(mb.Data[i]))
		return

	case TypeTable:
		if key.IsNull() {
			t.throwStd(ExTypeError, "Attempting to index a table with a null key")
		}
		if !key.Hashable() {
			t.throwStd(ExTypeError, "Attempting to index a table with a '%s'", key.kind.Name())
		}
		t.stack[dest] = container.Table().Get(key)
		return
	}

	if mm, ok := t.vm.getMM(container, MMIndex); ok {
		t.stack[dest] = t.runMM(mm, container, key)
		return
	}

	t.throwStd(ExTypeError, "Attempting to index a value of type '%s'", container.kind.Name())
}

// indexAssign implements container[key] = value.
func (t *Thread) indexAssign(container, key, value Value) {
	switch container.kind {
	case TypeArray:
		if key.kind != TypeInt {
			t.throwStd(ExTypeError, "Attempting to index-assign an array with a '%s'", key.kind.Name())
		}
		a := container.Array()
		a.Set(t.normIndex(key.n, a.Len(), "array"), value)
		return

	case TypeMemblock:
		if key.kind != TypeInt {
			t.throwStd(ExTypeError, "Attempting to index-assign a memblock with a '%s'", key.kind.Name())
		}
		if value.kind != TypeInt {
			t.throwStd(ExTypeError, "Attempting to store a '%s' in a memblock", value.kind.Name())
		}
		mb := container.Memblock()
		i := t.normIndex(key.n, int64(len(mb.Data)), "memblock")
		mb.Data[i] = byte(value.n)
		return

	case TypeTable:
		if key.IsNull() {
			t.throwStd(ExTypeError, "Attempting to index-assign a table with a null key")
		}
		if !key.Hashable() {
			t.throwStd(ExTypeError, "Attempting to index-assign a table with a '%s'", key.kind.Name())
		}
		container.Table().Set(key, value)
		return
	}

	if mm, ok := t.vm.getMM(container, MMIndexAssign); ok {
		t.runMMVoid(mm, container, key, value)
		return
	}

	t.throwStd(ExTypeError, "Attempting to index-assign a value of type '%s'", container.kind.Name())
}

// ---------------------------------------------------------------------------
// Fields
// ---------------------------------------------------------------------------

// field implements container.(name) into stack[dest].
func (t *Thread) field(dest AbsStack, container Value, name *String) {
	switch container.kind {
	case TypeTable:
		t.stack[dest] = container.Table().Get(FromObject(name))
		return

	case TypeNamespace:
		ns := container.Namespace()
		if v, ok := ns.Get(name); ok {
			t.stack[dest] = v
			return
		}
		t.throwStd(ExFieldError, "Attempting to access nonexistent field '%s' from namespace '%s'",
			name.Get(), ns.FullName())

	case TypeInstance:
		inst := container.Instance()
		if v, ok := inst.Field(name); ok {
			t.stack[dest] = v
			return
		}
		if v, ok := inst.Method(name); ok {
			t.stack[dest] = v
			return
		}
		if mm, ok := t.vm.getMM(container, MMField); ok {
			t.stack[dest] = t.runMM(mm, container, FromObject(name))
			return
		}
		t.throwStd(ExFieldError, "Attempting to access nonexistent field '%s' from instance of class '%s'",
			name.Get(), inst.Class().Name().Get())

	case TypeClass:
		c := container.Class()
		if v, ok := c.Field(name); ok {
			t.stack[dest] = v
			return
		}
		if v, ok := c.Method(name); ok {
			t.stack[dest] = v
			return
		}
		t.throwStd(ExFieldError, "Attempting to access nonexistent field '%s' from class '%s'",
			name.Get(), c.Name().Get())
	}

	if mm, ok := t.vm.getMM(container, MMField); ok {
		t.stack[dest] = t.runMM(mm, container, FromObject(name))
		return
	}

	t.throwStd(ExTypeError, "Attempting to access field '%s' from a value of type '%s'",
		name.Get(), container.kind.Name())
}

// fieldAssign implements container.(name) = value.
func (t *Thread) fieldAssign(container Value, name *String, value Value) {
	switch container.kind {
	case TypeTable:
		container.Table().Set(FromObject(name), value)
		return

	case TypeNamespace:
		container.Namespace().Set(name, value)
		return

	case TypeInstance:
		inst := container.Instance()
		if inst.SetField(name, value) {
			return
		}
		if mm, ok := t.vm.getMM(container, MMFieldAssign); ok {
			t.runMMVoid(mm, container, FromObject(name), value)
			return
		}
		t.throwStd(ExFieldError, "Attempting to assign to nonexistent field '%s' in instance of class '%s'",
			name.Get(), inst.Class().Name().Get())

	case TypeClass:
		c := container.Class()
		if c.AddField(name, value, true) {
			return
		}
		t.throwStd(ExFieldError, "Attempting to assign to nonexistent field '%s' in class '%s'",
			name.Get(), c.Name().Get())
	}

	if mm, ok := t.vm.getMM(container, MMFieldAssign); ok {
		t.runMMVoid(mm, container, FromObject(name), value)
		return
	}

	t.throwStd(ExTypeError, "Attempting to assign field '%s' into a value of type '%s'",
		name.Get(), container.kind.Name())
}

// ---------------------------------------------------------------------------
// Slicing
// ---------------------------------------------------------------------------

// sliceBounds normalizes a [lo, hi) pair: null means the respective
// end, negatives wrap once.
func (t *Thread) sliceBounds(lo, hi Value, length int64, what string) (int64, int64) {
	l, h := int64(0), length
	switch lo.kind {
	case TypeNull:
	case TypeInt:
		l = lo.n
		if l < 0 {
			l += length
		}
	default:
		t.throwStd(ExTypeError, "Attempting to slice a %s with a '%s' low index", what, lo.kind.Name())
	}
	switch hi.kind {
	case TypeNull:
	case TypeInt:
		h = hi.n
		if h < 0 {
			h += length
		}
	default:
		t.throwStd(ExTypeError, "Attempting to slice a %s with a '%s' high index", what, hi.kind.Name())
	}
	if l < 0 || l > h || h > length {
		t.throwStd(ExBoundsError, "Invalid %s slice indices: %s .. %s (length: %d)",
			what, lo.rawToString(), hi.rawToString(), length)
	}
	return l, h
}

// slice implements container[lo .. hi] into stack[dest].
func (t *Thread) slice(dest AbsStack, container, lo, hi Value) {
	switch container.kind {
	case TypeArray:
		a := container.Array()
		l, h := t.sliceBounds(lo, hi, a.Len(), "array")
		na := t.vm.NewArray(0)
		na.data = a.Slice(l, h)
		t.stack[dest] = FromObject(na)
		return

	case TypeString:
		runes := []rune(container.String().Get())
		l, h := t.sliceBounds(lo, hi, int64(len(runes)), "string")
		t.stack[dest] = t.vm.NewString(string(runes[l:h]))
		return

	case TypeMemblock:
		mb := container.Memblock()
		l, h := t.sliceBounds(lo, hi, int64(len(mb.Data)), "memblock")
		nmb := t.vm.NewMemblock(int(h - l))
		copy(nmb.Data, mb.Data[l:h])
		t.stack[dest] = FromObject(nmb)
		return
	}

	if mm, ok := t.vm.getMM(container, MMSlice); ok {
		t.stack[dest] = t.runMM(mm, container, lo, hi)
		return
	}

	t.throwStd(ExTypeError, "Attempting to slice a value of type '%s'", container.kind.Name())
}

// sliceAssign implements container[lo .. hi] = value.
func (t *Thread) sliceAssign(container, lo, hi, value Value) {
	switch container.kind {
	case TypeArray:
		a := container.Array()
		l, h := t.sliceBounds(lo, hi, a.Len(), "array")
		switch value.kind {
		case TypeArray:
			src := value.Array()
			if src.Len() != h-l {
				t.throwStd(ExValueError,
					"Array slice-assign length mismatch: %d values into a slice of length %d",
					src.Len(), h-l)
			}
			for i := int64(0); i < h-l; i++ {
				a.Set(l+i, src.Get(i))
			}
		default:
			for i := l; i < h; i++ {
				a.Set(i, value)
			}
		}
		return
	}

	if mm, ok := t.vm.getMM(container, MMSliceAssign); ok {
		t.runMMVoid(mm, container, lo, hi, value)
		return
	}

	t.throwStd(ExTypeError, "Attempting to slice-assign a value of type '%s'", container.kind.Name())
}

// ---------------------------------------------------------------------------
// Length
// ---------------------------------------------------------------------------

// length implements #container into stack[dest].
func (t *Thread) length(dest AbsStack, container Value) {
	switch container.kind {
	case TypeString:
		t.stack[dest] = FromInt(container.String().Len())
		return
	case TypeArray:
		t.stack[dest] = FromInt(container.Array().Len())
		return
	case TypeTable:
		t.stack[dest] = FromInt(container.Table().Len())
		return
	case TypeNamespace:
		t.stack[dest] = FromInt(container.Namespace().Len())
		return
	case TypeMemblock:
		t.stack[dest] = FromInt(int64(len(container.Memblock().Data)))
		return
	}

	if mm, ok := t.vm.getMM(container, MMLength); ok {
		t.stack[dest] = t.runMM(mm, container)
		return
	}

	t.throwStd(ExTypeError, "Cannot get the length of a '%s'", container.kind.Name())
}

// lengthAssign implements #container = value.
func (t *Thread) lengthAssign(container, value Value) {
	switch container.kind {
	case TypeArray:
		if value.kind != TypeInt {
			t.throwStd(ExTypeError, "Attempting to set the length of an array to a '%s'", value.kind.Name())
		}
		if value.n < 0 {
			t.throwStd(ExValueError, "Invalid array length: %d", value.n)
		}
		container.Array().Resize(value.n)
		return
	}

	if mm, ok := t.vm.getMM(container, MMLengthAssign); ok {
		t.runMMVoid(mm, container, value)
		return
	}

	t.throwStd(ExTypeError, "Cannot set the length of a '%s'", container.kind.Name())
}

// ---------------------------------------------------------------------------
// Catenation
// ---------------------------------------------------------------------------

// cat concatenates vals left to right: strings join into a string,
// a leading array collects into a new array, and user types fold
// through opCat / opCat_r.
func (t *Thread) cat(dest AbsStack, vals []Value) {
	acc := vals[0]
	for i := 1; i < len(vals); i++ {
		next := vals[i]
		switch {
		case acc.kind == TypeString && next.kind == TypeString:
			acc = t.vm.NewString(acc.String().Get() + next.String().Get())

		case acc.kind == TypeArray:
			na := t.vm.NewArray(0)
			na.data = append(na.data, acc.Array().data...)
			if next.kind == TypeArray {
				na.data = append(na.data, next.Array().data...)
			} else {
				na.data = append(na.data, next)
			}
			acc = FromObject(na)

		default:
			if mm, ok := t.vm.getMM(acc, MMCat); ok {
				acc = t.runMM(mm, acc, next)
			} else if mm, ok := t.vm.getMM(next, MMCatR); ok {
				acc = t.runMM(mm, next, acc)
			} else {
				t.throwStd(ExTypeError, "Attempting to concatenate a '%s' and a '%s'",
					acc.kind.Name(), next.kind.Name())
			}
		}
	}
	t.stack[dest] = acc
}

// catEq appends vals to the container at stack[dest] in place.
func (t *Thread) catEq(dest AbsStack, vals []Value) {
	dv := t.stack[dest]
	switch dv.kind {
	case TypeString:
		s := dv.String().Get()
		for _, v := range vals {
			if v.kind != TypeString {
				t.throwStd(ExTypeError, "Attempting to append a '%s' to a string", v.kind.Name())
			}
			s += v.String().Get()
		}
		t.stack[dest] = t.vm.NewString(s)
		return

	case TypeArray:
		a := dv.Array()
		for _, v := range vals {
			if v.kind == TypeArray {
				for _, e := range v.Array().Slice(0, v.Array().Len()) {
					a.Append(e)
				}
			} else {
				a.Append(v)
			}
		}
		return
	}

	if mm, ok := t.vm.getMM(dv, MMCatAssign); ok {
		t.runMMVoid(mm, append([]Value{dv}, vals...)...)
		return
	}

	t.throwStd(ExTypeError, "Attempting to append to a value of type '%s'", dv.kind.Name())
}

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

// getGlobal resolves name through env's parent chain.
func (t *Thread) getGlobal(name *String, env *Namespace) Value {
	if owner, ok := env.resolve(name); ok {
		v, _ := owner.Get(name)
		return v
	}
	t.throwStd(ExNameError, "Attempting to get a nonexistent global '%s'", name.Get())
	return Null
}

// setGlobal assigns to an existing global on env's parent chain.
func (t *Thread) setGlobal(name *String, env *Namespace, v Value) {
	if owner, ok := env.resolve(name); ok {
		owner.Set(name, v)
		return
	}
	t.throwStd(ExNameError, "Attempting to set a nonexistent global '%s'", name.Get())
}

// newGlobal declares name in env itself.
func (t *Thread) newGlobal(name *String, env *Namespace, v Value) {
	if env.Contains(name) {
		t.throwStd(ExNameError, "Attempting to create a global '%s' that already exists", name.Get())
	}
	env.Set(name, v)
}

// ---------------------------------------------------------------------------
// Miscellaneous generic operations
// ---------------------------------------------------------------------------

// superOf implements the super-of operator: the base of a class, the
// class of an instance, the parent of a namespace.
func (t *Thread) superOf(v Value) Value {
	switch v.kind {
	case TypeClass:
		if base := v.Class().SuperClass(); base != nil {
			return FromObject(base)
		}
		return Null
	case TypeInstance:
		return FromObject(v.Instance().Class())
	case TypeNamespace:
		if p := v.Namespace().Parent(); p != nil {
			return FromObject(p)
		}
		return Null
	}
	t.throwStd(ExTypeError, "Cannot get the super of a '%s'", v.kind.Name())
	return Null
}

// toString renders v for AsString and host display. Instances render
// through their class name; everything else uses the raw protocol,
// which round-trips for Int/Float/Bool/Null/String.
func (t *Thread) toString(v Value) Value {
	if v.kind == TypeInstance {
		return t.vm.NewString("instance of " + v.Instance().Class().Name().Get())
	}
	if v.kind == TypeString {
		return v
	}
	return t.vm.NewString(v.rawToString())
}
