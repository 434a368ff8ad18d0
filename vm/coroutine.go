package vm

// ---------------------------------------------------------------------------
// Coroutine transfer
// ---------------------------------------------------------------------------
//
// Threads are cooperative: the whole VM runs on one OS thread, and a
// resume is an ordinary nested call into the target thread's dispatch
// loop. Yield returns out of that loop with the target suspended; the
// suspended thread's stacks stay intact until the next resume.

// resume transfers control from thread `from` into `target`, passing
// args as the resume values. It returns the values the target yields or
// returns. An exception that kills the target re-raises in `from`.
func (vm *VM) resume(target *Thread, from *Thread, args []Value) []Value {
	switch {
	case target == from:
		from.throwStd(ExStateError, "Attempting to resume a thread from within itself")
	case target.state == ThreadRunning:
		from.throwStd(ExStateError, "Attempting to resume a running thread")
	case target.state == ThreadDead:
		from.throwStd(ExStateError, "Attempting to resume a dead thread")
	case target.parent != nil:
		// A suspended resumer somewhere up the chain.
		from.throwStd(ExStateError, "Attempting to resume a thread that is waiting on another thread")
	}

	target.parent = from
	from.state = ThreadSuspended
	target.state = ThreadRunning
	vm.curThread = target

	restore := func() {
		target.parent = nil
		vm.curThread = from
		from.state = ThreadRunning
	}

	// An uncaught exception in the target kills it and re-raises here.
	died, ex := vm.runResumed(target, args)
	restore()
	if died {
		vm.throwImpl(from, ex, true)
	}

	if target.state == ThreadSuspended {
		vals := target.yieldVals
		target.yieldVals = nil
		return vals
	}

	// The thread's main function returned: it is dead, and its results
	// sit at the bottom of its stack.
	target.state = ThreadDead
	vals := make([]Value, target.stackIndex-1)
	copy(vals, target.stack[1:target.stackIndex])
	return vals
}

// runResumed enters the target's dispatch loop, translating a
// threadDeath panic into a (died, exception) result.
func (vm *VM) runResumed(target *Thread, args []Value) (died bool, ex Value) {
	defer func() {
		if r := recover(); r != nil {
			if d, ok := r.(threadDeath); ok {
				died, ex = true, d.ex
				return
			}
			panic(r)
		}
	}()

	if target.state == ThreadRunning && target.arIndex() == 0 {
		// First resume: build the initial call window for the body.
		slot := AbsStack(1)
		target.checkStack(slot + 2 + len(args))
		target.stack[slot] = FromObject(target.coroFunc)
		target.stack[slot+1] = Null // 'this'
		copy(target.stack[slot+2:], args)
		target.stackIndex = slot + 2 + len(args)

		if target.callPrologue(slot, -1, 1+len(args), false) {
			vm.execute(target, 1)
		}
		return false, Null
	}

	// Re-entry after a yield: the resume values land where the yield
	// expression wants its results, with the usual padding rules.
	target.placeResults(target.yieldSlot, target.yieldExpect, args)
	vm.execute(target, target.savedStartARIndex)
	return false, Null
}

// yieldImpl suspends the current thread, packing the values at
// stack[slot : slot+numVals] as the resume's results. expect is how
// many values the yield expression wants back.
func (t *Thread) yieldImpl(slot AbsStack, numVals, expect int) {
	t.yieldVals = make([]Value, numVals)
	copy(t.yieldVals, t.stack[slot:slot+numVals])
	t.yieldSlot = slot
	t.yieldExpect = expect
	t.state = ThreadSuspended
}

// Resume is the host-facing resume: it runs target from the main
// thread (or whichever thread is current) and returns the yielded or
// returned values.
func (vm *VM) Resume(thread Value, args ...Value) (vals []Value, err error) {
	if thread.Type() != TypeThread {
		return nil, &ScriptError{Kind: ExTypeError,
			Message: "Attempting to resume a value of type '" + thread.Type().Name() + "'"}
	}
	err = vm.tryCode(vm.curThread, func(t *Thread) {
		vals = vm.resume(thread.Thread(), t, args)
	})
	if err != nil {
		return nil, err
	}
	return vals, nil
}
