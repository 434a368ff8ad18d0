package vm

import (
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Debug hooks
// ---------------------------------------------------------------------------

// HookMask selects which hooks fire for a thread.
type HookMask uint8

const (
	// HookLine fires when execution reaches a new source line, jumps
	// backwards, or enters a function.
	HookLine HookMask = 1 << iota
	// HookDelay fires every hookDelay instructions.
	HookDelay
)

// HookEvent tells a HookFunc why it fired.
type HookEvent int8

const (
	HookEventLine HookEvent = iota
	HookEventDelay
)

// HookFunc is called from inside the dispatch loop. The thread is
// mid-instruction; the hook may inspect it but must not resume or
// yield it.
type HookFunc func(t *Thread, event HookEvent, line int32)

// SetHook installs fn for the hooks in mask. delay is the instruction
// interval for HookDelay. A zero mask removes all hooks.
func (t *Thread) SetHook(mask HookMask, delay int, fn HookFunc) {
	if mask == 0 || fn == nil {
		t.hooks = 0
		t.hookFunc = nil
		return
	}
	if mask&HookDelay != 0 && delay <= 0 {
		delay = 1
	}
	t.hooks = mask
	t.hookFunc = fn
	t.hookDelay = delay
	t.hookCounter = delay
}

// runHooks fires the delay and line hooks for the instruction at
// ar.pc-1. oldPC is the index of the previously executed instruction;
// -1 right after entering a frame, returning from a call, or catching
// an exception.
func (t *Thread) runHooks(ar *ActivationRecord, def *FuncDef, oldPC int) {
	if t.hooks&HookDelay != 0 {
		t.hookCounter--
		if t.hookCounter == 0 {
			t.hookCounter = t.hookDelay
			t.callHook(HookEventDelay, def.Line(ar.pc-1))
		}
	}

	if t.hooks&HookLine != 0 {
		curPC := ar.pc - 1
		// Fire on the first instruction of a function, on a back-jump
		// (loop iteration), and whenever the source line changes.
		if curPC == 0 || curPC < oldPC || def.Line(curPC) != def.Line(oldPC) {
			t.callHook(HookEventLine, def.Line(curPC))
		}
	}
}

func (t *Thread) callHook(event HookEvent, line int32) {
	// The hook runs at native depth so it cannot yield the thread
	// out from under the dispatch loop.
	t.nativeCallDepth++
	t.hookFunc(t, event, line)
	t.nativeCallDepth--
}

// ---------------------------------------------------------------------------
// Trace hook
// ---------------------------------------------------------------------------

// EnableTrace installs a line hook on the thread that logs every line
// transition through the VM's trace logger. Used by the CLI's -trace
// flag and handy when debugging compiler output.
func (t *Thread) EnableTrace() {
	log := t.vm.vmLog
	t.SetHook(HookLine, 0, func(t *Thread, event HookEvent, line int32) {
		ar := t.currentAR()
		log.Debugf("line %d in %s (pc=%d, depth=%d)", line, ar.fn.Name(), ar.pc-1, t.arIndex())
	})
}

// newVMLoggers builds the VM's scoped loggers.
func newVMLoggers() (vmLog, gcLog commonlog.Logger) {
	return commonlog.GetLogger("croc.vm"), commonlog.GetLogger("croc.gc")
}
