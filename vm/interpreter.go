package vm

// ---------------------------------------------------------------------------
// The dispatch loop
// ---------------------------------------------------------------------------

// execute runs the current activation record of t until the frame at
// startARIndex returns or the thread yields. It pushes an exec boundary
// on the EH stack so that unwinding which crosses this invocation
// re-enters the correct dispatch loop.
func (vm *VM) execute(t *Thread, startARIndex int) {
	t.pushExecEH()
	savedNativeDepth := t.nativeCallDepth

	for {
		finished, ex, rethrow := vm.interpretLoop(t, startARIndex, savedNativeDepth)
		if rethrow {
			// Unwinding wants out of this invocation: drop the
			// boundary and continue in the caller's loop.
			t.popEH()
			vm.throwImpl(t, ex, true)
		}
		if finished {
			t.popEH()
			return
		}
		// An exception landed on a script handler owned by this loop;
		// go around again.
	}
}

// decode resolves an operand word to a register or constant value.
func decode(t *Thread, word uint32, constants []Value) Value {
	if word&ConstBit != 0 {
		return constants[word&^ConstBit]
	}
	return t.stack[t.stackBase+int(word)]
}

// interpretLoop is one entry into the dispatch loop proper. It reports
// finished=true when the start frame returned or the thread yielded,
// and rethrow=true when unwinding must continue in the calling loop.
func (vm *VM) interpretLoop(t *Thread, startARIndex, savedNativeDepth int) (finished bool, rethrowEx Value, rethrow bool) {
	defer func() {
		if r := recover(); r != nil {
			switch u := r.(type) {
			case unwoundToScript:
				if u.thread != t {
					panic(r)
				}
				t.nativeCallDepth = savedNativeDepth
				// finished=false: the caller re-enters the loop.
			case execUnwound:
				t.nativeCallDepth = savedNativeDepth
				rethrowEx, rethrow = u.ex, true
			default:
				panic(r)
			}
		}
	}()

reentry:
	for {
		// Reload the cached per-frame state. Everything here is
		// invalidated whenever the current AR changes, so all call
		// paths come back through this point.
		ar := t.currentAR()
		def := ar.fn.def
		constants := def.Constants
		env := ar.fn.env
		upvals := ar.fn.upvals
		oldPC := -1

		for {
			if t.shouldHalt {
				t.shouldHalt = false
				t.throwStd(ExHaltException, "Thread halted")
			}

			inst := &def.Code[ar.pc]
			ar.pc++
			rd := int(inst.Rd)

			if t.hooks != 0 {
				t.runHooks(ar, def, oldPC)
			}
			oldPC = ar.pc - 1

			switch inst.Op {
			// --- Binary arithmetic ---
			case OpAdd, OpSub, OpMul, OpDiv, OpMod:
				t.binOp(inst.Op, t.stackBase+rd, decode(t, inst.A, constants), decode(t, inst.B, constants))

			// --- Reflexive arithmetic ---
			case OpAddEq, OpSubEq, OpMulEq, OpDivEq, OpModEq:
				t.reflBinOp(inst.Op, t.stackBase+rd, decode(t, inst.A, constants))

			// --- Binary bitwise ---
			case OpAnd, OpOr, OpXor, OpShl, OpShr, OpUShr:
				t.bitOp(inst.Op, t.stackBase+rd, decode(t, inst.A, constants), decode(t, inst.B, constants))

			// --- Reflexive bitwise ---
			case OpAndEq, OpOrEq, OpXorEq, OpShlEq, OpShrEq, OpUShrEq:
				t.reflBitOp(inst.Op, t.stackBase+rd, decode(t, inst.A, constants))

			// --- Unary ---
			case OpNeg:
				rs := decode(t, inst.A, constants)
				switch rs.kind {
				case TypeInt:
					t.set(rd, FromInt(-rs.n))
				case TypeFloat:
					t.set(rd, FromFloat(-rs.f))
				default:
					t.throwStd(ExTypeError, "Cannot perform negation on a '%s'", rs.kind.Name())
				}

			case OpCom:
				rs := decode(t, inst.A, constants)
				if rs.kind != TypeInt {
					t.throwStd(ExTypeError, "Cannot perform bitwise complement on a '%s'", rs.kind.Name())
				}
				t.set(rd, FromInt(^rs.n))

			case OpNot:
				t.set(rd, FromBool(decode(t, inst.A, constants).IsFalse()))

			case OpAsBool:
				t.set(rd, FromBool(!decode(t, inst.A, constants).IsFalse()))

			case OpAsInt:
				rs := decode(t, inst.A, constants)
				switch rs.kind {
				case TypeBool:
					t.set(rd, FromInt(rs.n))
				case TypeInt:
					t.set(rd, rs)
				case TypeFloat:
					t.set(rd, FromInt(int64(rs.f)))
				default:
					t.throwStd(ExTypeError, "Cannot convert type '%s' to int", rs.kind.Name())
				}

			case OpAsFloat:
				rs := decode(t, inst.A, constants)
				switch rs.kind {
				case TypeInt:
					t.set(rd, FromFloat(float64(rs.n)))
				case TypeFloat:
					t.set(rd, rs)
				default:
					t.throwStd(ExTypeError, "Cannot convert type '%s' to float", rs.kind.Name())
				}

			case OpAsString:
				t.set(rd, t.toString(decode(t, inst.A, constants)))
				vm.mem.maybeCollect()

			case OpInc:
				dest := t.stackBase + rd
				switch t.stack[dest].kind {
				case TypeInt:
					t.stack[dest].n++
				case TypeFloat:
					t.stack[dest].f++
				default:
					t.throwStd(ExTypeError, "Cannot increment a '%s'", t.stack[dest].kind.Name())
				}

			case OpDec:
				dest := t.stackBase + rd
				switch t.stack[dest].kind {
				case TypeInt:
					t.stack[dest].n--
				case TypeFloat:
					t.stack[dest].f--
				default:
					t.throwStd(ExTypeError, "Cannot decrement a '%s'", t.stack[dest].kind.Name())
				}

			case OpLength:
				t.length(t.stackBase+rd, decode(t, inst.A, constants))

			case OpLengthAssign:
				t.lengthAssign(t.get(rd), decode(t, inst.A, constants))

			// --- Data transfer ---
			case OpMove:
				t.set(rd, decode(t, inst.A, constants))

			case OpNewGlobal:
				t.newGlobal(constants[inst.A].String(), env, t.get(rd))

			case OpGetGlobal:
				t.set(rd, t.getGlobal(constants[inst.A].String(), env))

			case OpSetGlobal:
				t.setGlobal(constants[inst.A].String(), env, t.get(rd))

			case OpGetUpval:
				t.set(rd, upvals[inst.A].Get())

			case OpSetUpval:
				uv := upvals[inst.A]
				vm.mem.WriteBarrier(uv)
				uv.Set(t.get(rd))

			// --- Comparison and branching ---
			case OpCmp3:
				t.set(rd, FromInt(t.cmp3(decode(t, inst.A, constants), decode(t, inst.B, constants))))

			case OpCmp:
				cmp := t.cmp3(decode(t, inst.A, constants), decode(t, inst.B, constants))
				var take bool
				switch inst.Rd {
				case CmpLT:
					take = cmp < 0
				case CmpLE:
					take = cmp <= 0
				case CmpGT:
					take = cmp > 0
				case CmpGE:
					take = cmp >= 0
				}
				if take {
					ar.pc += int(inst.Imm)
				}

			case OpSwitchCmp:
				if switchCmp(decode(t, inst.A, constants), decode(t, inst.B, constants)) {
					ar.pc += int(inst.Imm)
				}

			case OpEquals:
				if t.equals(decode(t, inst.A, constants), decode(t, inst.B, constants)) == (inst.Rd != 0) {
					ar.pc += int(inst.Imm)
				}

			case OpIs:
				if decode(t, inst.A, constants).Is(decode(t, inst.B, constants)) == (inst.Rd != 0) {
					ar.pc += int(inst.Imm)
				}

			case OpIn:
				if t.in(decode(t, inst.A, constants), decode(t, inst.B, constants)) == (inst.Rd != 0) {
					ar.pc += int(inst.Imm)
				}

			case OpIsTrue:
				if decode(t, inst.A, constants).IsFalse() != (inst.Rd != 0) {
					ar.pc += int(inst.Imm)
				}

			case OpJmp:
				if inst.Rd != 0 {
					ar.pc += int(inst.Imm)
				}

			case OpSwitch:
				st := &def.SwitchTables[rd]
				rs := decode(t, inst.A, constants)
				if off, ok := st.Offsets[rs]; ok {
					ar.pc += int(off)
				} else if st.DefaultOffset == NoDefault {
					t.throwStd(ExSwitchError, "Switch without default")
				} else {
					ar.pc += int(st.DefaultOffset)
				}

			case OpClose:
				t.closeUpvals(t.stackBase + rd)

			// --- Loops ---
			case OpFor:
				lo := t.stackBase + rd
				idx, hi, step := t.stack[lo], t.stack[lo+1], t.stack[lo+2]
				if idx.kind != TypeInt || hi.kind != TypeInt || step.kind != TypeInt {
					t.throwStd(ExTypeError, "Numeric for loop low, high, and step values must be integers")
				}
				intIdx, intHi, intStep := idx.n, hi.n, step.n
				if intStep == 0 {
					t.throwStd(ExValueError, "Numeric for loop step value may not be 0")
				}
				if (intIdx > intHi && intStep > 0) || (intIdx < intHi && intStep < 0) {
					intStep = -intStep
				}
				if intStep < 0 {
					newIdx := ((intIdx - intHi) / intStep) * intStep
					if newIdx == intIdx {
						newIdx += intStep
					}
					t.stack[lo] = FromInt(newIdx)
				}
				t.stack[lo+2] = FromInt(intStep)
				ar.pc += int(inst.Imm)

			case OpForLoop:
				lo := t.stackBase + rd
				idx, hi, step := t.stack[lo].n, t.stack[lo+1].n, t.stack[lo+2].n
				if step > 0 {
					if idx < hi {
						t.stack[lo+3] = FromInt(idx)
						t.stack[lo] = FromInt(idx + step)
						ar.pc += int(inst.Imm)
					}
				} else {
					if idx >= hi {
						t.stack[lo+3] = FromInt(idx)
						t.stack[lo] = FromInt(idx + step)
						ar.pc += int(inst.Imm)
					}
				}

			case OpForeach:
				lo := t.stackBase + rd
				src := t.stack[lo]
				if src.kind != TypeFunction && src.kind != TypeThread {
					mm, ok := vm.getMM(src, MMApply)
					if !ok {
						t.throwStd(ExTypeError, "No implementation of %s for type '%s'",
							MMApply.Name(), src.kind.Name())
					}
					t.stack[lo+2] = t.stack[lo+1]
					t.stack[lo+1] = src
					t.stack[lo] = mm
					t.stackIndex = lo + 3
					t.commonCall(lo, 2, 3)
					t.stackIndex = t.currentAR().savedTop

					src = t.stack[lo]
					if src.kind != TypeFunction && src.kind != TypeThread {
						t.throwStd(ExTypeError, "Invalid iterable type '%s' returned from opApply",
							src.kind.Name())
					}
				}
				if src.kind == TypeThread && src.Thread().state != ThreadInitial {
					t.throwStd(ExStateError,
						"Attempting to iterate over a thread that is not in the 'initial' state")
				}
				ar.pc += int(inst.Imm)

			case OpForeachLoop:
				lo := t.stackBase + rd
				numIndices := int(inst.A)
				funcReg := lo + 3
				t.stack[funcReg+2] = t.stack[lo+2]
				t.stack[funcReg+1] = t.stack[lo+1]
				t.stack[funcReg] = t.stack[lo]
				t.stackIndex = funcReg + 3
				t.commonCall(funcReg, 2, numIndices)
				t.stackIndex = t.currentAR().savedTop

				if t.stack[lo].kind == TypeFunction {
					if !t.stack[funcReg].IsNull() {
						t.stack[lo+2] = t.stack[funcReg]
						ar.pc += int(inst.Imm)
					}
				} else {
					if t.stack[lo].Thread().state != ThreadDead {
						ar.pc += int(inst.Imm)
					}
				}

			// --- Exception handling ---
			case OpPushCatch, OpPushFinally:
				t.pushScriptEH(inst.Op == OpPushCatch, rd, ar.pc+int(inst.Imm))

			case OpPopEH:
				t.popEH()

			case OpEndFinal:
				if !vm.exception.IsNull() {
					ex := vm.exception
					vm.throwImpl(t, ex, true)
				}
				if ar.unwindReturn >= 0 {
					t.unwind()
				}

			case OpThrow:
				rs := decode(t, inst.A, constants)
				if rs.IsNull() {
					t.throwStd(ExTypeError, "Attempting to throw a null value")
				}
				vm.throwImpl(t, rs, inst.Rd != 0)

			// --- Calls ---
			case OpCall, OpTailCall, OpMethod, OpTailMethod:
				slot := t.stackBase + rd
				isTail := inst.Op == OpTailCall || inst.Op == OpTailMethod
				var numParams, numReturns int
				var isScript bool

				if inst.Op == OpMethod || inst.Op == OpTailMethod {
					npWord, nrWord := unpackCounts(inst.Imm)
					numReturns = int(nrWord) - 1
					if isTail {
						numReturns = -1
					}
					obj := decode(t, inst.A, constants)
					nameV := decode(t, inst.B, constants)
					if nameV.kind != TypeString {
						t.throwStd(ExTypeError,
							"Attempting to get a method with a non-string name (type '%s' instead)",
							nameV.kind.Name())
					}
					numParams = t.adjustParams(slot, npWord)
					isScript = t.methodCallPrologue(slot, obj, nameV.String(), numReturns, numParams, isTail)
				} else {
					numReturns = int(inst.B) - 1
					if isTail {
						numReturns = -1
					}
					numParams = t.adjustParams(slot, inst.A)
					isScript = t.callPrologue(slot, numReturns, numParams, isTail)
				}

				vm.mem.maybeCollect()

				if !isScript {
					if t.arIndex() < startARIndex {
						// A native tailcall replaced the start frame.
						return true, Null, false
					}
					if !isTail && numReturns >= 0 {
						t.stackIndex = t.currentAR().savedTop
					}
				}
				continue reentry

			case OpSaveRets:
				first := t.stackBase + rd
				if inst.A == 0 {
					t.saveResults(t.stack[first:t.stackIndex])
					t.stackIndex = ar.savedTop
				} else {
					t.saveResults(t.stack[first : first+int(inst.A)-1])
				}

			case OpRet:
				t.callEpilogue()
				if t.arIndex() < startARIndex {
					return true, Null, false
				}
				continue reentry

			case OpUnwind:
				ar.unwindReturn = ar.pc
				ar.unwindCounter = rd
				t.unwind()

			// --- Varargs ---
			case OpVararg:
				numVarargs := t.stackBase - ar.vargBase
				dest := t.stackBase + rd
				numNeeded := int(inst.A)
				if numNeeded == 0 {
					numNeeded = numVarargs
					t.checkStack(dest + numVarargs)
					t.stackIndex = dest + numVarargs
				} else {
					numNeeded--
					t.checkStack(dest + numNeeded)
				}
				src := ar.vargBase
				n := numNeeded
				if n > numVarargs {
					n = numVarargs
				}
				copy(t.stack[dest:dest+n], t.stack[src:src+n])
				for i := n; i < numNeeded; i++ {
					t.stack[dest+i] = Null
				}

			case OpVargLen:
				t.set(rd, FromInt(int64(t.stackBase-ar.vargBase)))

			case OpVargIndex:
				rs := decode(t, inst.A, constants)
				numVarargs := int64(t.stackBase - ar.vargBase)
				if rs.kind != TypeInt {
					t.throwStd(ExTypeError, "Attempting to index 'vararg' with a '%s'", rs.kind.Name())
				}
				index := rs.n
				if index < 0 {
					index += numVarargs
				}
				if index < 0 || index >= numVarargs {
					t.throwStd(ExBoundsError, "Invalid 'vararg' index: %d (only have %d)", rs.n, numVarargs)
				}
				t.set(rd, t.stack[ar.vargBase+int(index)])

			case OpVargIndexAssign:
				rs := decode(t, inst.A, constants)
				rt := decode(t, inst.B, constants)
				numVarargs := int64(t.stackBase - ar.vargBase)
				if rs.kind != TypeInt {
					t.throwStd(ExTypeError, "Attempting to index 'vararg' with a '%s'", rs.kind.Name())
				}
				index := rs.n
				if index < 0 {
					index += numVarargs
				}
				if index < 0 || index >= numVarargs {
					t.throwStd(ExBoundsError, "Invalid 'vararg' index: %d (only have %d)", rs.n, numVarargs)
				}
				t.stack[ar.vargBase+int(index)] = rt

			// --- Yield ---
			case OpYield:
				if t == vm.mainThread {
					t.throwStd(ExRuntimeError, "Attempting to yield out of the main thread")
				}
				if t.nativeCallDepth > 0 {
					t.throwStd(ExRuntimeError, "Attempting to yield across native / metamethod call boundary")
				}
				first := t.stackBase + rd
				numVals := int(inst.A)
				if numVals == 0 {
					numVals = t.stackIndex - first
				} else {
					numVals--
				}
				expect := int(inst.B) - 1
				t.savedStartARIndex = startARIndex
				t.yieldImpl(first, numVals, expect)
				return true, Null, false

			// --- Parameter checks ---
			case OpCheckParams:
				for idx, mask := range def.ParamMasks {
					val := t.stack[t.stackBase+idx]
					if mask&(1<<uint(val.kind)) == 0 {
						if idx == 0 {
							t.throwStd(ExTypeError, "'this' parameter: type '%s' is not allowed", val.kind.Name())
						}
						t.throwStd(ExTypeError, "Parameter %d: type '%s' is not allowed", idx, val.kind.Name())
					}
				}

			case OpCheckObjParam:
				rdv := t.get(rd)
				rs := decode(t, inst.A, constants)
				if rdv.kind != TypeInstance {
					ar.pc += int(inst.Imm)
				} else {
					if rs.kind != TypeClass {
						if rd == 0 {
							t.throwStd(ExTypeError,
								"'this' parameter: instance type constraint type must be 'class', not '%s'",
								rs.kind.Name())
						}
						t.throwStd(ExTypeError,
							"Parameter %d: instance type constraint type must be 'class', not '%s'",
							rd, rs.kind.Name())
					}
					if rdv.Instance().DerivesFrom(rs.Class()) {
						ar.pc += int(inst.Imm)
					}
				}

			case OpObjParamFail:
				val := t.get(rd)
				if rd == 0 {
					t.throwStd(ExTypeError, "'this' parameter: type '%s' is not allowed", val.kind.Name())
				}
				t.throwStd(ExTypeError, "Parameter %d: type '%s' is not allowed", rd, val.kind.Name())

			case OpCustomParamFail:
				rs := decode(t, inst.A, constants)
				if rd == 0 {
					t.throwStd(ExTypeError, "'this' parameter: value does not satisfy constraint '%s'",
						rs.rawToString())
				}
				t.throwStd(ExTypeError, "Parameter %d: value does not satisfy constraint '%s'",
					rd, rs.rawToString())

			// --- Return checks ---
			case OpCheckRets:
				actual := ar.numResults
				if !def.IsVarret && actual > def.NumReturns {
					t.throwStd(ExParamError, "Function %s expects at most %d returns but was given %d",
						ar.fn.Name(), def.NumReturns, actual)
				}
				for idx, mask := range def.ReturnMasks {
					val := Null
					if idx < actual {
						val = t.results[ar.firstResult+idx]
					}
					if mask&(1<<uint(val.kind)) == 0 {
						t.throwStd(ExTypeError, "Return %d: type '%s' is not allowed", idx+1, val.kind.Name())
					}
				}

			case OpCheckObjRet:
				val := Null
				if rd < ar.numResults {
					val = t.results[ar.firstResult+rd]
				}
				rs := decode(t, inst.A, constants)
				if val.kind != TypeInstance {
					ar.pc += int(inst.Imm)
				} else {
					if rs.kind != TypeClass {
						t.throwStd(ExTypeError,
							"Return %d: instance type constraint type must be 'class', not '%s'",
							rd+1, rs.kind.Name())
					}
					if val.Instance().DerivesFrom(rs.Class()) {
						ar.pc += int(inst.Imm)
					}
				}

			case OpObjRetFail:
				val := Null
				if rd < ar.numResults {
					val = t.results[ar.firstResult+rd]
				}
				t.throwStd(ExTypeError, "Return %d: type '%s' is not allowed", rd+1, val.kind.Name())

			case OpCustomRetFail:
				rs := decode(t, inst.A, constants)
				t.throwStd(ExTypeError, "Return %d: value does not satisfy constraint '%s'",
					rd+1, rs.rawToString())

			case OpMoveRet:
				val := Null
				if ret := int(inst.A); ret < ar.numResults {
					val = t.results[ar.firstResult+ret]
				}
				t.set(rd, val)

			case OpRetAsFloat:
				val := Null
				if rd < ar.numResults {
					val = t.results[ar.firstResult+rd]
				}
				switch val.kind {
				case TypeInt:
					if rd < ar.numResults {
						t.results[ar.firstResult+rd] = FromFloat(float64(val.n))
					}
				case TypeFloat:
					// already a float
				default:
					t.throwStd(ExTypeError, "Cannot convert type '%s' to float", val.kind.Name())
				}

			case OpAssertFail:
				msg := t.get(rd)
				if msg.kind != TypeString {
					t.throwStd(ExAssertError,
						"Assertion failed, but the message is a '%s', not a 'string'", msg.kind.Name())
				}
				t.throwStd(ExAssertError, "%s", msg.String().Get())

			// --- Arrays, tables, catenation ---
			case OpAppend:
				t.get(rd).Array().Append(decode(t, inst.A, constants))

			case OpSetArray:
				a := t.get(rd).Array()
				sliceBegin := t.stackBase + rd + 1
				if inst.A == 0 {
					a.SetBlock(int(inst.B), t.stack[sliceBegin:t.stackIndex])
					t.stackIndex = ar.savedTop
				} else {
					a.SetBlock(int(inst.B), t.stack[sliceBegin:sliceBegin+int(inst.A)-1])
				}

			case OpCat:
				first := t.stackBase + int(inst.A)
				t.cat(t.stackBase+rd, t.stack[first:first+int(inst.B)])
				vm.mem.maybeCollect()

			case OpCatEq:
				first := t.stackBase + int(inst.A)
				t.catEq(t.stackBase+rd, t.stack[first:first+int(inst.B)])
				vm.mem.maybeCollect()

			case OpIndex:
				t.index(t.stackBase+rd, decode(t, inst.A, constants), decode(t, inst.B, constants))

			case OpIndexAssign:
				t.indexAssign(t.get(rd), decode(t, inst.A, constants), decode(t, inst.B, constants))

			case OpField:
				rs := decode(t, inst.A, constants)
				rt := decode(t, inst.B, constants)
				if rt.kind != TypeString {
					t.throwStd(ExTypeError, "Field name must be a string, not a '%s'", rt.kind.Name())
				}
				t.field(t.stackBase+rd, rs, rt.String())

			case OpFieldAssign:
				rs := decode(t, inst.A, constants)
				rt := decode(t, inst.B, constants)
				if rs.kind != TypeString {
					t.throwStd(ExTypeError, "Field name must be a string, not a '%s'", rs.kind.Name())
				}
				t.fieldAssign(t.get(rd), rs.String(), rt)

			case OpSlice:
				base := t.stackBase + int(inst.A)
				t.slice(t.stackBase+rd, t.stack[base], t.stack[base+1], t.stack[base+2])
				vm.mem.maybeCollect()

			case OpSliceAssign:
				base := t.stackBase + rd
				t.sliceAssign(t.stack[base], t.stack[base+1], t.stack[base+2], decode(t, inst.A, constants))

			// --- Value creation ---
			case OpNewArray:
				size := constants[inst.A].Int()
				t.set(rd, FromObject(vm.NewArray(int(size))))
				vm.mem.maybeCollect()

			case OpNewTable:
				t.set(rd, FromObject(vm.NewTable()))
				vm.mem.maybeCollect()

			case OpClosure, OpClosureWithEnv:
				newDef := def.InnerFuncs[inst.A]
				funcEnv := env
				if inst.Op == OpClosureWithEnv {
					ev := t.get(rd)
					if ev.kind != TypeNamespace {
						t.throwStd(ExTypeError, "Closure environment must be a namespace, not a '%s'",
							ev.kind.Name())
					}
					funcEnv = ev.Namespace()
				}
				fn := vm.newScriptFunction(newDef, funcEnv)
				if fn == nil {
					t.throwStd(ExRuntimeError,
						"Attempting to instantiate %s with a different namespace than was associated with it",
						newDef.Name)
				}
				for i, uvDesc := range newDef.Upvals {
					if uvDesc.IsUpval {
						fn.upvals[i] = upvals[uvDesc.Index]
					} else {
						fn.upvals[i] = t.findUpval(t.stackBase + int(uvDesc.Index))
					}
				}
				t.set(rd, FromObject(fn))
				vm.mem.maybeCollect()

			case OpClass:
				nameV := decode(t, inst.A, constants)
				cls := vm.NewClass(nameV.String().Get())
				firstBase := t.stackBase + int(inst.B)
				for i := 0; i < int(inst.Imm); i++ {
					base := t.stack[firstBase+i]
					if base.kind != TypeClass {
						t.throwStd(ExTypeError, "Attempting to derive a class from a value of type '%s'",
							base.kind.Name())
					}
					if conflict, ok := cls.Derive(base.Class()); !ok {
						t.throwStd(ExFieldError,
							"Class '%s' already has a member '%s' inherited from another base",
							cls.Name().Get(), conflict.Get())
					}
				}
				t.set(rd, FromObject(cls))
				vm.mem.maybeCollect()

			case OpNamespace:
				name := constants[inst.A].String()
				rt := decode(t, inst.B, constants)
				switch rt.kind {
				case TypeNull:
					t.set(rd, FromObject(vm.NewNamespace(name.Get(), nil)))
				case TypeNamespace:
					t.set(rd, FromObject(vm.NewNamespace(name.Get(), rt.Namespace())))
				default:
					t.throwStd(ExTypeError,
						"Attempted to use a '%s' as a parent namespace for namespace '%s'",
						rt.kind.Name(), name.Get())
				}
				vm.mem.maybeCollect()

			case OpNamespaceNP:
				name := constants[inst.A].String()
				t.set(rd, FromObject(vm.NewNamespace(name.Get(), env)))
				vm.mem.maybeCollect()

			case OpSuperOf:
				t.set(rd, t.superOf(decode(t, inst.A, constants)))

			case OpAddMember:
				cls := t.get(rd)
				rs := decode(t, inst.A, constants)
				rt := decode(t, inst.B, constants)
				if cls.kind != TypeClass || rs.kind != TypeString {
					t.throwStd(ExVMError, "Malformed addmember operands")
				}
				isMethod := inst.Imm&MemberMethod != 0
				isOverride := inst.Imm&MemberOverride != 0
				var ok bool
				if isMethod {
					ok = cls.Class().AddMethod(rs.String(), rt, isOverride)
				} else {
					ok = cls.Class().AddField(rs.String(), rt, isOverride)
				}
				if !ok {
					kind := "field"
					if isMethod {
						kind = "method"
					}
					if isOverride {
						t.throwStd(ExFieldError,
							"Attempting to override %s '%s' in class '%s', but no such member already exists",
							kind, rs.String().Get(), cls.Class().Name().Get())
					}
					t.throwStd(ExFieldError,
						"Attempting to add a %s '%s' which already exists to class '%s'",
						kind, rs.String().Get(), cls.Class().Name().Get())
				}

			default:
				t.throwStd(ExVMError, "Unimplemented opcode %s", inst.Op)
			}
		}
	}
}

// commonCall is the Foreach/ForeachLoop helper: a fixed-shape call that
// runs to completion before the loop continues.
func (t *Thread) commonCall(slot AbsStack, numParams, numReturns int) {
	t.nativeCallDepth++
	if t.callPrologue(slot, numReturns, numParams, false) {
		t.vm.execute(t, t.arIndex())
	}
	t.nativeCallDepth--
}
