package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Standard exception classes
// ---------------------------------------------------------------------------

// Names of the standard exception classes, in bootstrap order. These
// surface to embedders as the Kind of a ScriptError.
const (
	ExThrowable     = "Throwable"
	ExException     = "Exception"
	ExError         = "Error"
	ExTypeError     = "TypeError"
	ExValueError    = "ValueError"
	ExBoundsError   = "BoundsError"
	ExFieldError    = "FieldError"
	ExNameError     = "NameError"
	ExStateError    = "StateError"
	ExSwitchError   = "SwitchError"
	ExParamError    = "ParamError"
	ExAssertError   = "AssertError"
	ExRuntimeError  = "RuntimeError"
	ExHaltException = "HaltException"
	ExVMError       = "VMError"
)

// fieldMsg is the message field on standard exception instances.
const fieldMsg = "msg"

func (vm *VM) bootstrapExceptionClasses() {
	newEx := func(name string, base *Class) *Class {
		c := vm.NewClass(name)
		if base != nil {
			c.Derive(base)
		} else {
			c.AddField(vm.Strings.Intern(fieldMsg), vm.NewString(""), false)
		}
		vm.stdClasses[name] = c
		vm.globals.Set(c.Name(), FromObject(c))
		return c
	}

	throwable := newEx(ExThrowable, nil)

	// Exception is for recoverable conditions, Error for bug-class
	// conditions.
	exception := newEx(ExException, throwable)
	errClass := newEx(ExError, throwable)

	newEx(ExTypeError, exception)
	valueError := newEx(ExValueError, exception)
	newEx(ExBoundsError, valueError)
	newEx(ExFieldError, exception)
	newEx(ExNameError, exception)
	newEx(ExStateError, exception)
	newEx(ExSwitchError, exception)
	newEx(ExParamError, exception)
	newEx(ExAssertError, exception)
	newEx(ExRuntimeError, exception)

	newEx(ExHaltException, throwable)
	newEx(ExVMError, errClass)
}

// StdClass returns a standard exception class by name.
func (vm *VM) StdClass(name string) *Class { return vm.stdClasses[name] }

// newStdException builds an instance of a standard exception class with
// its msg field set.
func (vm *VM) newStdException(class string, msg string) Value {
	c, ok := vm.stdClasses[class]
	if !ok {
		c = vm.stdClasses[ExVMError]
		msg = fmt.Sprintf("unknown exception class %q: %s", class, msg)
	}
	inst := vm.NewInstance(c)
	inst.SetField(vm.Strings.Intern(fieldMsg), vm.NewString(msg))
	return FromObject(inst)
}

// exceptionKind extracts the class name of an exception value, for
// error reporting. Non-instance throwables report their type name.
func exceptionKind(ex Value) string {
	if ex.Type() == TypeInstance {
		return ex.Instance().Class().Name().Get()
	}
	return ex.Type().Name()
}

// exceptionMessage extracts a human-readable message from an exception
// value.
func exceptionMessage(vm *VM, ex Value) string {
	if ex.Type() == TypeInstance {
		if msg, ok := ex.Instance().Field(vm.Strings.Intern(fieldMsg)); ok && msg.Type() == TypeString {
			return msg.String().Get()
		}
	}
	return ex.rawToString()
}

// ---------------------------------------------------------------------------
// ScriptError: the embedding-boundary error value
// ---------------------------------------------------------------------------

// TracebackEntry is one frame of a captured traceback.
type TracebackEntry struct {
	Name     string
	Line     int32
	IsNative bool
	Tailcall bool
}

// ScriptError is how an uncaught script exception surfaces to Go
// callers at the native boundary.
type ScriptError struct {
	Kind      string // exception class name, e.g. "TypeError"
	Message   string
	Exception Value
	Traceback []TracebackEntry
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// TracebackString renders the traceback one frame per line.
func (e *ScriptError) TracebackString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", e.Kind, e.Message)
	for _, fr := range e.Traceback {
		switch {
		case fr.Tailcall:
			b.WriteString("\tat <tailcall>\n")
		case fr.IsNative:
			fmt.Fprintf(&b, "\tat %s (native)\n", fr.Name)
		default:
			fmt.Fprintf(&b, "\tat %s (line %d)\n", fr.Name, fr.Line)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
