package vm

import "fmt"

// ---------------------------------------------------------------------------
// Exception handling and unwinding
// ---------------------------------------------------------------------------
//
// The EH frame stack is the single source of truth for unwinding. It
// holds four kinds of frames:
//
//   - script catch:   branch target + destination register
//   - script finally: branch target; runs before unwinding continues
//   - native catch:   a tryCode/PCall boundary that converts the
//     exception into a Go error
//   - exec boundary:  pushed by each execute() invocation so unwinding
//     re-enters the dispatch loop that owns the target frame
//
// Go panics are used only as the longjmp equivalent between a throw
// site and the enclosing dispatch loop or native boundary; all routing
// decisions happen here, on the explicit frame stack.

type ehKind int8

const (
	ehScriptCatch ehKind = iota
	ehScriptFinally
	ehNativeCatch
	ehExecBoundary
)

// ehFrame records what must be restored when unwinding lands on it.
type ehFrame struct {
	kind       ehKind
	slot       RelStack // catch destination register
	pc         int      // handler pc for script frames
	arDepth    int      // AR stack depth to restore
	stackIndex AbsStack // stack height to restore
}

// Panic sentinels. unwoundToScript is recovered by the dispatch loop
// owning the handler; execUnwound terminates one execute() invocation
// so unwinding continues in its caller; threadDeath carries an uncaught
// exception out of a dying coroutine into its resumer.
type (
	unwoundToScript struct{ thread *Thread }
	execUnwound     struct{ ex Value }
	threadDeath     struct{ ex Value }
	nativeUnwound   struct{ ex Value }
)

// pushScriptEH installs a catch or finally frame. pc is the absolute
// handler address.
func (t *Thread) pushScriptEH(isCatch bool, slot RelStack, pc int) {
	kind := ehScriptFinally
	if isCatch {
		kind = ehScriptCatch
	}
	t.pushEH(ehFrame{
		kind:       kind,
		slot:       slot,
		pc:         pc,
		arDepth:    t.arIndex(),
		stackIndex: t.stackIndex,
	})
}

func (t *Thread) pushNativeEH() {
	t.pushEH(ehFrame{kind: ehNativeCatch, arDepth: t.arIndex(), stackIndex: t.stackIndex})
}

func (t *Thread) pushExecEH() {
	t.pushEH(ehFrame{kind: ehExecBoundary, arDepth: t.arIndex(), stackIndex: t.stackIndex})
}

func (t *Thread) pushEH(f ehFrame) {
	if len(t.ehFrames) >= t.vm.limits.MaxEHFrames {
		t.throwStd(ExRuntimeError, "Exception handler stack overflow")
	}
	t.ehFrames = append(t.ehFrames, f)
}

func (t *Thread) popEH() ehFrame {
	f := t.ehFrames[len(t.ehFrames)-1]
	t.ehFrames = t.ehFrames[:len(t.ehFrames)-1]
	return f
}

// ---------------------------------------------------------------------------
// Throwing
// ---------------------------------------------------------------------------

// Throw raises ex in this thread. It does not return.
func (t *Thread) Throw(ex Value) {
	t.vm.throwImpl(t, ex, false)
}

// ThrowStd raises a standard exception built from a class name and a
// message. It does not return.
func (t *Thread) ThrowStd(kind, format string, args ...any) {
	t.throwStd(kind, format, args...)
}

func (t *Thread) throwStd(kind, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	t.vm.throwImpl(t, t.vm.newStdException(kind, msg), false)
}

// captureTraceback records the thread's live frames, topmost first.
// Tailcall-replaced frames appear as pseudo-entries.
func captureTraceback(t *Thread) []TracebackEntry {
	var tb []TracebackEntry
	for i := len(t.ars) - 1; i >= 0; i-- {
		ar := t.ars[i]
		e := TracebackEntry{IsNative: ar.isNative}
		if ar.fn != nil {
			e.Name = ar.fn.Name()
			if !ar.isNative && ar.fn.def != nil {
				e.Line = ar.fn.def.Line(ar.pc - 1)
			}
		}
		tb = append(tb, e)
		for n := 0; n < ar.numTailcalls; n++ {
			tb = append(tb, TracebackEntry{Tailcall: true})
		}
	}
	return tb
}

// throwImpl is the unwind engine. It stashes the exception on the VM,
// walks the EH frame stack to the nearest handler, restores the
// recorded thread state, and transfers control with a panic sentinel.
// It never returns normally.
func (vm *VM) throwImpl(t *Thread, ex Value, rethrow bool) {
	if rethrow {
		vm.traceback = append(vm.traceback, captureTraceback(t)...)
	} else {
		vm.traceback = captureTraceback(t)
	}
	vm.exception = ex

	for len(t.ehFrames) > 0 {
		f := t.ehFrames[len(t.ehFrames)-1]

		switch f.kind {
		case ehScriptCatch, ehScriptFinally:
			t.popEH()
			t.unwindARsTo(f.arDepth)
			t.closeUpvals(f.stackIndex)
			t.stackIndex = f.stackIndex
			ar := t.currentAR()
			ar.pc = f.pc
			if f.kind == ehScriptCatch {
				// The handler owns the exception from here.
				t.stack[ar.stackBase+f.slot] = ex
				vm.exception = Null
			}
			// A finally leaves vm.exception set; EndFinal re-raises it
			// unless the finally itself returns or throws.
			panic(unwoundToScript{thread: t})

		case ehNativeCatch:
			t.popEH()
			t.unwindARsTo(f.arDepth)
			t.closeUpvals(f.stackIndex)
			t.stackIndex = f.stackIndex
			vm.exception = Null
			panic(nativeUnwound{ex: ex})

		case ehExecBoundary:
			// Do not pop: the owning execute() pops it and rethrows so
			// unwinding continues in its caller's dispatch loop.
			panic(execUnwound{ex: ex})
		}
	}

	// No handler in this thread: the thread dies and the exception
	// surfaces in the resumer, or at the very top in the host.
	t.unwindARsTo(0)
	t.releaseResults(0)
	t.stackIndex = 1
	t.state = ThreadDead
	vm.exception = Null

	if t.parent != nil {
		panic(threadDeath{ex: ex})
	}
	err := vm.scriptError(ex)
	if t == vm.mainThread && vm.unhandledHook != nil {
		vm.unhandledHook(err)
	}
	panic(err)
}

// scriptError converts an exception value plus the VM's captured
// traceback into the embedding-boundary error.
func (vm *VM) scriptError(ex Value) *ScriptError {
	err := &ScriptError{
		Kind:      exceptionKind(ex),
		Message:   exceptionMessage(vm, ex),
		Exception: ex,
		Traceback: vm.traceback,
	}
	vm.traceback = nil
	return err
}

// ---------------------------------------------------------------------------
// Return-through-finally unwinding
// ---------------------------------------------------------------------------

// unwind traverses pending EH frames on the way out of a returning
// frame. The Unwind opcode seeds unwindReturn/unwindCounter; each
// finally met on the way runs, and its EndFinal calls back in here
// until the counter is spent, at which point control resumes at the
// recorded return point.
func (t *Thread) unwind() {
	ar := t.currentAR()
	for ar.unwindCounter > 0 {
		f := t.popEH()
		ar.unwindCounter--
		if f.kind == ehScriptFinally {
			ar.pc = f.pc
			return
		}
		// Skipped catches just get popped.
	}
	ar.pc = ar.unwindReturn
	ar.unwindReturn = -1
}
