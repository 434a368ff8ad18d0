package vm

import (
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// VM: The Croc Virtual Machine
// ---------------------------------------------------------------------------

// Limits caps the VM's growable structures. Zero fields take defaults.
type Limits struct {
	MaxStack     int // value stack slots per thread
	MaxCallDepth int // activation records per thread
	MaxEHFrames  int // exception frames per thread
	GCThreshold  uint64
}

// DefaultLimits are the caps used when a field is zero.
var DefaultLimits = Limits{
	MaxStack:     1 << 20,
	MaxCallDepth: 1 << 16,
	MaxEHFrames:  1 << 14,
	GCThreshold:  DefaultGCThreshold,
}

// VM owns all runtime-global state: the heap, the string intern table,
// the globals namespace, the standard exception classes, the per-type
// metatables and the thread roster. There are no hidden process-wide
// singletons; creating two VMs gives two fully independent runtimes.
type VM struct {
	// Strings is the VM-wide intern table.
	Strings *StringTable

	mem     *Memory
	globals *Namespace
	limits  Limits

	mainThread *Thread
	curThread  *Thread

	// In-flight exception during finally execution; Null otherwise.
	exception Value
	traceback []TracebackEntry

	stdClasses     map[string]*Class
	typeMetatables [NumTypes]*Namespace
	mmStrings      [NumMMs]*String

	// unhandledHook runs when an exception reaches the bottom of the
	// main thread with no native frame to catch it.
	unhandledHook func(*ScriptError)

	vmLog commonlog.Logger
	gcLog commonlog.Logger
}

// New creates and bootstraps a VM.
func New() *VM {
	return NewWithLimits(DefaultLimits)
}

// NewWithLimits creates a VM with explicit caps.
func NewWithLimits(limits Limits) *VM {
	if limits.MaxStack == 0 {
		limits.MaxStack = DefaultLimits.MaxStack
	}
	if limits.MaxCallDepth == 0 {
		limits.MaxCallDepth = DefaultLimits.MaxCallDepth
	}
	if limits.MaxEHFrames == 0 {
		limits.MaxEHFrames = DefaultLimits.MaxEHFrames
	}
	if limits.GCThreshold == 0 {
		limits.GCThreshold = DefaultLimits.GCThreshold
	}

	vm := &VM{
		limits:     limits,
		stdClasses: make(map[string]*Class),
	}
	vm.vmLog, vm.gcLog = newVMLoggers()
	vm.mem = newMemory(vm, limits.GCThreshold)
	vm.Strings = newStringTable(vm.mem)
	vm.globals = vm.NewNamespace("", nil)

	for mm := 0; mm < NumMMs; mm++ {
		vm.mmStrings[mm] = vm.Strings.Intern(mmNames[mm])
	}

	vm.bootstrapExceptionClasses()

	vm.mainThread = vm.newThread(nil)
	vm.mainThread.state = ThreadRunning
	vm.curThread = vm.mainThread

	return vm
}

// Close tears the VM down. The VM must not be used afterwards.
func (vm *VM) Close() {
	vm.mainThread = nil
	vm.curThread = nil
	vm.globals = nil
	vm.mem.objects = nil
}

// Globals returns the root namespace.
func (vm *VM) Globals() *Namespace { return vm.globals }

// MainThread returns the VM's main thread.
func (vm *VM) MainThread() *Thread { return vm.mainThread }

// CurrentThread returns the unique running thread.
func (vm *VM) CurrentThread() *Thread { return vm.curThread }

// Memory returns the VM's memory manager.
func (vm *VM) Memory() *Memory { return vm.mem }

// SetUnhandledExceptionHook installs fn to observe exceptions that
// reach the bottom of the main thread outside any PCall. Pass nil to
// restore the default (none).
func (vm *VM) SetUnhandledExceptionHook(fn func(*ScriptError)) {
	vm.unhandledHook = fn
}

// markRoots traces everything the VM keeps alive, for the collector.
func (vm *VM) markRoots(m *Memory) {
	vm.Strings.gcMarkAll(m)
	m.markObject(vm.globals)
	m.markObject(vm.mainThread)
	if vm.curThread != nil {
		m.markObject(vm.curThread)
	}
	m.markValue(vm.exception)
	for _, c := range vm.stdClasses {
		m.markObject(c)
	}
	for _, mt := range vm.typeMetatables {
		if mt != nil {
			m.markObject(mt)
		}
	}
}
