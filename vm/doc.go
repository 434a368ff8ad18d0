// Package vm implements the Croc virtual machine.
//
// This package contains:
//   - Tagged value representation
//   - Heap object contracts (strings, arrays, tables, classes, namespaces)
//   - Register-based bytecode interpreter
//   - Upvalue and closure machinery
//   - Exception handling with catch/finally unwinding
//   - Cooperative coroutine threads
//   - Memory manager with write barrier and collection hooks
package vm
