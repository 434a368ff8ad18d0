package vm

// ---------------------------------------------------------------------------
// Class and Instance
// ---------------------------------------------------------------------------

// Class is the script class object: a name, a field map with default
// values, a method map, and the list of base classes it derives from.
// Metamethods (opAdd, opIndex, ...) are ordinary methods found by name.
type Class struct {
	gcHeader
	mem     *Memory
	name    *String
	fields  map[*String]Value
	methods map[*String]Value
	bases   []*Class
}

func (c *Class) objType() Type { return TypeClass }

func (c *Class) gcMark(m *Memory) {
	m.markObject(c.name)
	for k, v := range c.fields {
		m.markObject(k)
		m.markValue(v)
	}
	for k, v := range c.methods {
		m.markObject(k)
		m.markValue(v)
	}
	for _, b := range c.bases {
		m.markObject(b)
	}
}

// NewClass allocates an empty class.
func (vm *VM) NewClass(name string) *Class {
	c := &Class{
		mem:     vm.mem,
		name:    vm.Strings.Intern(name),
		fields:  make(map[*String]Value),
		methods: make(map[*String]Value),
	}
	vm.mem.allocate(c, &c.gcHeader, 96)
	return c
}

// Name returns the class name.
func (c *Class) Name() *String { return c.name }

// AddField adds (override=false) or replaces (override=true) a field.
// It fails when the name's current status doesn't match the flag.
func (c *Class) AddField(name *String, v Value, override bool) bool {
	_, exists := c.fields[name]
	if exists != override {
		return false
	}
	c.mem.WriteBarrier(c)
	c.fields[name] = v
	return true
}

// AddMethod adds (override=false) or replaces (override=true) a method.
func (c *Class) AddMethod(name *String, v Value, override bool) bool {
	_, exists := c.methods[name]
	if exists != override {
		return false
	}
	c.mem.WriteBarrier(c)
	c.methods[name] = v
	return true
}

// Method returns the method bound to name, if any.
func (c *Class) Method(name *String) (Value, bool) {
	v, ok := c.methods[name]
	return v, ok
}

// Field returns the field default bound to name, if any.
func (c *Class) Field(name *String) (Value, bool) {
	v, ok := c.fields[name]
	return v, ok
}

// Derive copies base's fields and methods into c and records the base
// link. Duplicate names fail so conflicting multiple bases are caught
// at class construction.
func (c *Class) Derive(base *Class) (conflict *String, ok bool) {
	c.mem.WriteBarrier(c)
	for k, v := range base.fields {
		if _, dup := c.fields[k]; dup {
			return k, false
		}
		c.fields[k] = v
	}
	for k, v := range base.methods {
		if _, dup := c.methods[k]; dup {
			return k, false
		}
		c.methods[k] = v
	}
	c.bases = append(c.bases, base)
	return nil, true
}

// DerivesFrom reports whether c is other or transitively derives from
// it.
func (c *Class) DerivesFrom(other *Class) bool {
	if c == other {
		return true
	}
	for _, b := range c.bases {
		if b.DerivesFrom(other) {
			return true
		}
	}
	return false
}

// SuperClass returns the sole base, or nil for root or multiple-base
// classes.
func (c *Class) SuperClass() *Class {
	if len(c.bases) == 1 {
		return c.bases[0]
	}
	return nil
}

// ---------------------------------------------------------------------------
// Instance
// ---------------------------------------------------------------------------

// Instance is an object of a class: a class pointer plus its own copy
// of the class's fields.
type Instance struct {
	gcHeader
	mem    *Memory
	class  *Class
	fields map[*String]Value
}

func (i *Instance) objType() Type { return TypeInstance }

func (i *Instance) gcMark(m *Memory) {
	m.markObject(i.class)
	for k, v := range i.fields {
		m.markObject(k)
		m.markValue(v)
	}
}

// NewInstance allocates an instance of c with the class's field
// defaults copied in.
func (vm *VM) NewInstance(c *Class) *Instance {
	inst := &Instance{
		mem:    vm.mem,
		class:  c,
		fields: make(map[*String]Value, len(c.fields)),
	}
	for k, v := range c.fields {
		inst.fields[k] = v
	}
	vm.mem.allocate(inst, &inst.gcHeader, uint64(len(c.fields))*16+48)
	return inst
}

// Class returns the instance's class.
func (i *Instance) Class() *Class { return i.class }

// DerivesFrom reports whether the instance's class derives from c.
func (i *Instance) DerivesFrom(c *Class) bool { return i.class.DerivesFrom(c) }

// Field returns the instance field bound to name, if any.
func (i *Instance) Field(name *String) (Value, bool) {
	v, ok := i.fields[name]
	return v, ok
}

// SetField stores an existing instance field. Unknown names fail so
// field sets can't silently grow instances.
func (i *Instance) SetField(name *String, v Value) bool {
	if _, ok := i.fields[name]; !ok {
		return false
	}
	i.mem.WriteBarrier(i)
	i.fields[name] = v
	return true
}

// Method resolves a method through the instance's class.
func (i *Instance) Method(name *String) (Value, bool) {
	return i.class.Method(name)
}
