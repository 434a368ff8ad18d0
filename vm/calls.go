package vm

// ---------------------------------------------------------------------------
// Call machinery
// ---------------------------------------------------------------------------
//
// A call window at slot s looks like:
//
//	stack[s]   the callee
//	stack[s+1] 'this'
//	stack[s+2] first explicit parameter, ...
//
// numParams counts 'this' plus the explicit parameters. numReturns is
// the caller's expectation: -1 keeps every result on the stack,
// otherwise exactly numReturns values are produced (padded with null).
// Results land back at slot s.

// ctorName is the method a class call invokes on the fresh instance.
const ctorName = "constructor"

// adjustParams decodes a numParams operand word against the live stack
// top: 0 means every value above the 'this' slot (vararg chaining from
// a previous all-results call), anything else is count+1 and trims the
// stack top to match.
func (t *Thread) adjustParams(slot AbsStack, word uint32) int {
	if word == 0 {
		return t.stackIndex - (slot + 1)
	}
	numParams := int(word) - 1
	t.stackIndex = slot + 1 + numParams
	return numParams
}

// callPrologue dispatches a call window. It reports whether a script
// frame was pushed (the dispatch loop must re-enter); native callees,
// class construction and thread resumes complete inline.
func (t *Thread) callPrologue(slot AbsStack, numReturns, numParams int, isTailcall bool) bool {
	if isTailcall {
		slot, numReturns = t.tailcallRelocate(slot, numParams)
	}

	callee := t.stack[slot]
	switch callee.kind {
	case TypeFunction:
		f := callee.Function()
		if f.IsNative() {
			t.nativeCall(slot, f, numReturns, numParams)
			return false
		}
		t.scriptPrologue(slot, f, numReturns, numParams)
		return true

	case TypeClass:
		t.classCall(slot, callee.Class(), numReturns, numParams)
		return false

	case TypeThread:
		target := callee.Thread()
		args := make([]Value, numParams-1)
		copy(args, t.stack[slot+2:slot+1+numParams])
		results := t.vm.resume(target, t, args)
		t.placeResults(slot, numReturns, results)
		return false
	}

	if mm, ok := t.vm.getMM(callee, MMCall); ok {
		// The callee object becomes 'this' for its opCall.
		t.stack[slot] = mm
		t.stack[slot+1] = callee
		return t.callPrologue(slot, numReturns, numParams, false)
	}

	t.throwStd(ExTypeError, "Attempting to call a value of type '%s'", callee.kind.Name())
	return false
}

// methodCallPrologue resolves name on obj and dispatches the resulting
// call window with obj as 'this'.
func (t *Thread) methodCallPrologue(slot AbsStack, obj Value, name *String, numReturns, numParams int, isTailcall bool) bool {
	callee := t.lookupMethod(obj, name)
	t.stack[slot] = callee
	t.stack[slot+1] = obj
	return t.callPrologue(slot, numReturns, numParams, isTailcall)
}

// lookupMethod is the method-resolution protocol: class/instance
// members, namespace bindings, table entries, then the per-type
// metatable. Misses raise FieldError.
func (t *Thread) lookupMethod(obj Value, name *String) Value {
	switch obj.kind {
	case TypeInstance:
		inst := obj.Instance()
		if m, ok := inst.Method(name); ok {
			return m
		}
		if f, ok := inst.Field(name); ok {
			return f
		}
		t.throwStd(ExFieldError, "Attempting to call a nonexistent method '%s' of instance of class '%s'",
			name.Get(), inst.Class().Name().Get())

	case TypeClass:
		c := obj.Class()
		if m, ok := c.Method(name); ok {
			return m
		}
		if f, ok := c.Field(name); ok {
			return f
		}
		t.throwStd(ExFieldError, "Attempting to call a nonexistent method '%s' of class '%s'",
			name.Get(), c.Name().Get())

	case TypeNamespace:
		if v, ok := obj.Namespace().Get(name); ok {
			return v
		}
		t.throwStd(ExFieldError, "Attempting to call a nonexistent function '%s' from namespace '%s'",
			name.Get(), obj.Namespace().FullName())

	case TypeTable:
		if v := obj.Table().Get(FromObject(name)); !v.IsNull() {
			return v
		}
		t.throwStd(ExFieldError, "Attempting to call a nonexistent method '%s' of a table", name.Get())
	}

	if mt := t.vm.typeMetatables[obj.kind]; mt != nil {
		if v, ok := mt.Get(name); ok {
			return v
		}
	}
	t.throwStd(ExFieldError, "No implementation of method '%s' for type '%s'",
		name.Get(), obj.kind.Name())
	return Null
}

// scriptPrologue pushes the activation record for a script call:
// missing fixed parameters pad with null, excess arguments either pack
// in front of the frame (vararg functions) or raise ParamError.
func (t *Thread) scriptPrologue(slot AbsStack, f *Function, numReturns, numParams int) {
	def := f.def
	base := slot + 1 // 'this'

	if numParams < def.NumParams {
		t.checkStack(base + def.NumParams)
		for i := numParams; i < def.NumParams; i++ {
			t.stack[base+i] = Null
		}
		numParams = def.NumParams
	}

	vargBase := base
	stackBase := base
	if numParams > def.NumParams {
		if !def.IsVararg {
			t.throwStd(ExParamError, "Function %s expects at most %d parameters but was given %d",
				f.Name(), def.NumParams-1, numParams-1)
		}
		// Relocate so the frame reads [varargs...]['this'][fixed...]:
		// vargBase marks the packed excess, stackBase the new 'this'.
		extra := numParams - def.NumParams
		fixed := make([]Value, def.NumParams)
		copy(fixed, t.stack[base:base+def.NumParams])
		copy(t.stack[base:], t.stack[base+def.NumParams:base+numParams])
		copy(t.stack[base+extra:], fixed)
		stackBase = base + extra
	}

	newTop := stackBase + def.StackSize
	t.checkStack(newTop)
	for i := stackBase + def.NumParams; i < newTop; i++ {
		t.stack[i] = Null
	}

	t.pushAR(ActivationRecord{
		fn:           f,
		pc:           0,
		stackBase:    stackBase,
		vargBase:     vargBase,
		savedTop:     newTop,
		returnSlot:   slot,
		numReturns:   numReturns,
		firstResult:  t.resultIndex,
		unwindReturn: -1,
	})
	t.stackIndex = newTop
}

// tailcallRelocate replaces the current frame in place: the call window
// moves down onto the slot the current frame was called at, the
// caller's result expectations are inherited, and the dying frame is
// recorded for traceback purposes. Returns the new window slot and the
// inherited numReturns.
func (t *Thread) tailcallRelocate(slot AbsStack, numParams int) (AbsStack, int) {
	cur := t.currentAR()
	dst := cur.returnSlot
	numReturns := cur.numReturns
	tailcalls := cur.numTailcalls + 1

	t.closeUpvals(cur.stackBase)
	n := 1 + numParams
	copy(t.stack[dst:dst+n], t.stack[slot:slot+n])
	t.stackIndex = dst + n
	t.popAR()

	// The replacement frame owes the traceback an entry per replaced
	// frame; stash the count where the next pushAR picks it up.
	t.pendingTailcalls = tailcalls
	return dst, numReturns
}

// nativeCall runs a native callback inline: the callback sees 'this' at
// register 0; it returns how many values off its stack top are results.
func (t *Thread) nativeCall(slot AbsStack, f *Function, numReturns, numParams int) {
	base := slot + 1
	t.pushAR(ActivationRecord{
		fn:           f,
		stackBase:    base,
		vargBase:     base,
		savedTop:     base + numParams,
		returnSlot:   slot,
		numReturns:   numReturns,
		firstResult:  t.resultIndex,
		unwindReturn: -1,
		isNative:     true,
	})
	t.stackIndex = base + numParams

	t.nativeCallDepth++
	n := f.native(t)
	t.nativeCallDepth--

	if n < 0 || n > t.stackIndex-base {
		n = 0
	}
	t.saveResults(t.stack[t.stackIndex-n : t.stackIndex])
	t.callEpilogue()
}

// classCall instantiates the class and runs its constructor, if any.
// The call's result is the instance.
func (t *Thread) classCall(slot AbsStack, c *Class, numReturns, numParams int) {
	inst := t.vm.NewInstance(c)
	ctor, hasCtor := c.Method(t.vm.Strings.Intern(ctorName))

	if !hasCtor {
		if numParams > 1 {
			t.throwStd(ExParamError, "Class %s has no constructor but was called with %d arguments",
				c.Name().Get(), numParams-1)
		}
	} else {
		t.stack[slot] = ctor
		t.stack[slot+1] = FromObject(inst)
		t.nativeCallDepth++
		if t.callPrologue(slot, 0, numParams, false) {
			t.vm.execute(t, t.arIndex())
		}
		t.nativeCallDepth--
	}

	t.placeResults(slot, numReturns, []Value{FromObject(inst)})
	t.vm.mem.maybeCollect()
}

// callEpilogue tears down the current frame: upvalues close at the
// frame base, saved results copy back to the call slot padded to the
// caller's expectation, and the results region is released.
func (t *Thread) callEpilogue() {
	ar := t.currentAR()
	t.closeUpvals(ar.stackBase)

	results := t.takeResults()
	retSlot := ar.returnSlot
	expect := ar.numReturns
	firstResult := ar.firstResult

	t.popAR()
	caller := t.currentAR()

	n := len(results)
	if expect < 0 {
		t.checkStack(retSlot + n)
		copy(t.stack[retSlot:], results)
		t.stackIndex = retSlot + n
	} else {
		t.checkStack(retSlot + expect)
		m := n
		if m > expect {
			m = expect
		}
		copy(t.stack[retSlot:retSlot+m], results[:m])
		for i := m; i < expect; i++ {
			t.stack[retSlot+i] = Null
		}
		if caller != nil && !caller.isNative {
			t.stackIndex = caller.savedTop
		} else {
			t.stackIndex = retSlot + expect
		}
	}
	t.releaseResults(firstResult)
}

// placeResults copies an inline call's results to the call slot with
// the same padding rules the epilogue uses.
func (t *Thread) placeResults(slot AbsStack, expect int, results []Value) {
	n := len(results)
	if expect < 0 {
		t.checkStack(slot + n)
		copy(t.stack[slot:], results)
		t.stackIndex = slot + n
		return
	}
	t.checkStack(slot + expect)
	m := n
	if m > expect {
		m = expect
	}
	copy(t.stack[slot:slot+m], results[:m])
	for i := m; i < expect; i++ {
		t.stack[slot+i] = Null
	}
	if cur := t.currentAR(); cur != nil && !cur.isNative {
		t.stackIndex = cur.savedTop
	} else {
		t.stackIndex = slot + expect
	}
}

// ---------------------------------------------------------------------------
// Metamethod invocation
// ---------------------------------------------------------------------------

// runMM calls a metamethod with args (args[0] is 'this') and returns
// its single result. Yield across a metamethod call is forbidden, like
// any native boundary.
func (t *Thread) runMM(mm Value, args ...Value) Value {
	slot := t.callOut(mm, 1, args)
	return t.stack[slot]
}

// runMMVoid calls a metamethod for effect only.
func (t *Thread) runMMVoid(mm Value, args ...Value) {
	t.callOut(mm, 0, args)
}

// callOut builds a call window above the live stack and runs it to
// completion, returning the window slot where results were placed.
func (t *Thread) callOut(callee Value, numReturns int, args []Value) AbsStack {
	slot := t.stackIndex
	t.checkStack(slot + 1 + len(args))
	t.stack[slot] = callee
	copy(t.stack[slot+1:], args)
	t.stackIndex = slot + 1 + len(args)

	t.nativeCallDepth++
	if t.callPrologue(slot, numReturns, len(args), false) {
		t.vm.execute(t, t.arIndex())
	}
	t.nativeCallDepth--
	return slot
}
