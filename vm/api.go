package vm

// ---------------------------------------------------------------------------
// Embedding surface
// ---------------------------------------------------------------------------
//
// The host API is stack-shaped, like the native function convention:
// values push onto the current thread's stack, calls consume a window
// and leave results. Failures surface as *ScriptError at this boundary
// and nowhere else.

// tryCode runs fn under a native catch frame, converting an escaping
// script exception into a *ScriptError. The longjmp equivalent (a Go
// panic) is confined to this boundary.
func (vm *VM) tryCode(t *Thread, fn func(*Thread)) (err error) {
	t.pushNativeEH()
	savedNativeDepth := t.nativeCallDepth

	defer func() {
		if r := recover(); r != nil {
			if nu, ok := r.(nativeUnwound); ok {
				t.nativeCallDepth = savedNativeDepth
				err = vm.scriptError(nu.ex)
				return
			}
			panic(r)
		}
	}()

	fn(t)
	t.popEH()
	return nil
}

// Call invokes fn with the given 'this' and arguments on the main
// thread and returns every result. An uncaught exception invokes the
// unhandled-exception hook and then surfaces as a panic carrying the
// *ScriptError; use PCall to receive it as an error instead.
func (vm *VM) Call(fn Value, this Value, args ...Value) []Value {
	t := vm.curThread
	slot := t.callOut(fn, -1, append([]Value{this}, args...))
	results := make([]Value, t.stackIndex-slot)
	copy(results, t.stack[slot:t.stackIndex])
	t.stackIndex = slot
	return results
}

// PCall is Call behind a native catch frame: script exceptions come
// back as a *ScriptError.
func (vm *VM) PCall(fn Value, this Value, args ...Value) (results []Value, err error) {
	err = vm.tryCode(vm.curThread, func(t *Thread) {
		results = vm.Call(fn, this, args...)
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// CallMethod resolves name on obj and calls it.
func (vm *VM) CallMethod(obj Value, name string, args ...Value) (results []Value, err error) {
	err = vm.tryCode(vm.curThread, func(t *Thread) {
		m := t.lookupMethod(obj, vm.Strings.Intern(name))
		results = vm.Call(m, obj, args...)
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ---------------------------------------------------------------------------
// Globals, fields, indexing
// ---------------------------------------------------------------------------

// GetGlobal reads a global from the root namespace chain.
func (vm *VM) GetGlobal(name string) (Value, bool) {
	s := vm.Strings.Intern(name)
	if owner, ok := vm.globals.resolve(s); ok {
		v, _ := owner.Get(s)
		return v, true
	}
	return Null, false
}

// SetGlobal writes a global into the root namespace, creating it.
func (vm *VM) SetGlobal(name string, v Value) {
	vm.globals.Set(vm.Strings.Intern(name), v)
}

// GetField reads obj.(name) through the generic field protocol.
func (vm *VM) GetField(obj Value, name string) (v Value, err error) {
	err = vm.tryCode(vm.curThread, func(t *Thread) {
		slot := t.stackIndex
		t.checkStack(slot + 1)
		t.stackIndex = slot + 1
		t.field(slot, obj, vm.Strings.Intern(name))
		v = t.stack[slot]
		t.stackIndex = slot
	})
	return v, err
}

// SetField writes obj.(name) through the generic field protocol.
func (vm *VM) SetField(obj Value, name string, v Value) error {
	return vm.tryCode(vm.curThread, func(t *Thread) {
		t.fieldAssign(obj, vm.Strings.Intern(name), v)
	})
}

// GetIndex reads obj[key] through the generic index protocol.
func (vm *VM) GetIndex(obj, key Value) (v Value, err error) {
	err = vm.tryCode(vm.curThread, func(t *Thread) {
		slot := t.stackIndex
		t.checkStack(slot + 1)
		t.stackIndex = slot + 1
		t.index(slot, obj, key)
		v = t.stack[slot]
		t.stackIndex = slot
	})
	return v, err
}

// SetIndex writes obj[key] through the generic index protocol.
func (vm *VM) SetIndex(obj, key, v Value) error {
	return vm.tryCode(vm.curThread, func(t *Thread) {
		t.indexAssign(obj, key, v)
	})
}

// ---------------------------------------------------------------------------
// Errors and control
// ---------------------------------------------------------------------------

// ThrowStd raises a standard exception in the current thread. Only
// meaningful from inside a native function.
func (vm *VM) ThrowStd(kind, format string, args ...any) {
	vm.curThread.throwStd(kind, format, args...)
}

// Display renders a value for human consumption (CLI output, logs).
func (vm *VM) Display(v Value) string {
	var out string
	err := vm.tryCode(vm.curThread, func(t *Thread) {
		out = t.toString(v).String().Get()
	})
	if err != nil {
		return v.rawToString()
	}
	return out
}

// CollectGarbage forces a full collection cycle.
func (vm *VM) CollectGarbage() { vm.mem.Collect() }

// Halt requests that thread raise HaltException at its next dispatch
// iteration.
func (vm *VM) Halt(thread Value) error {
	if thread.Type() != TypeThread {
		return &ScriptError{Kind: ExTypeError,
			Message: "Attempting to halt a value of type '" + thread.Type().Name() + "'"}
	}
	thread.Thread().PendingHalt()
	return nil
}

// ---------------------------------------------------------------------------
// Modules
// ---------------------------------------------------------------------------

// LoadFuncDef adopts a compiled definition (e.g. deserialized from
// wire format) into this VM's heap and instantiates it as a function
// in a fresh child namespace of globals named after the def.
func (vm *VM) LoadFuncDef(def *FuncDef) (Value, error) {
	if len(def.Upvals) != 0 {
		return Null, &ScriptError{Kind: ExValueError,
			Message: "A top-level function definition may not have upvalues"}
	}
	def.register(vm.mem)
	vm.internConstants(def)
	env := vm.NewNamespace(def.Name, vm.globals)
	fn := vm.newScriptFunction(def, env)
	if fn == nil {
		return Null, &ScriptError{Kind: ExRuntimeError,
			Message: "Function definition is already bound to another namespace"}
	}
	return FromObject(fn), nil
}

// internConstants rebinds every string constant in def (and its inner
// defs) to this VM's intern table, preserving the identity==equality
// invariant for defs built elsewhere.
func (vm *VM) internConstants(def *FuncDef) {
	for i, c := range def.Constants {
		if c.Type() == TypeString {
			def.Constants[i] = vm.NewString(c.String().Get())
		}
	}
	for _, st := range def.SwitchTables {
		for k, off := range st.Offsets {
			if k.Type() == TypeString {
				delete(st.Offsets, k)
				st.Offsets[vm.NewString(k.String().Get())] = off
			}
		}
	}
	for _, inner := range def.InnerFuncs {
		vm.internConstants(inner)
	}
}

// RunModule loads def and runs it on the main thread, returning its
// results. Exceptions come back as *ScriptError.
func (vm *VM) RunModule(def *FuncDef, args ...Value) ([]Value, error) {
	fn, err := vm.LoadFuncDef(def)
	if err != nil {
		return nil, err
	}
	return vm.PCall(fn, Null, args...)
}
