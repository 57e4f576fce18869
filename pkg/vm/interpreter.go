package vm

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/minivm/minijvm/pkg/classfile"
)

// DefaultMaxSteps bounds the number of dispatch iterations per run; a
// fuse against pathological input, not a semantic contract.
const DefaultMaxSteps = 1_000_000

// DefaultMaxFrames bounds the call-stack depth.
const DefaultMaxFrames = 1024

// ctlKind tells the thread driver what an instruction asked for.
type ctlKind int

const (
	ctlNext ctlKind = iota
	ctlInvokeStatic
	ctlReturnValue
	ctlReturnVoid
)

type control struct {
	kind    ctlKind
	value   Value
	cpIndex uint16
}

// Thread owns the frame stack and drives the fetch-decode-execute loop.
// Method calls are frame pushes, not host-language recursion, so call
// depth is bounded only by maxFrames.
type Thread struct {
	frames    []*Frame
	maxSteps  int
	maxFrames int
	steps     int
	log       zerolog.Logger
}

// NewThread creates a thread with an empty frame stack.
func NewThread(maxSteps, maxFrames int, log zerolog.Logger) *Thread {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	return &Thread{maxSteps: maxSteps, maxFrames: maxFrames, log: log}
}

// PushFrame installs a frame as the new active frame.
func (t *Thread) PushFrame(f *Frame) error {
	if len(t.frames) >= t.maxFrames {
		return &FrameLimitExceededError{Max: t.maxFrames}
	}
	t.frames = append(t.frames, f)
	t.log.Debug().
		Str("class", f.Class.Descriptor).
		Str("method", f.Method.ID).
		Int("depth", len(t.frames)).
		Msg("frame push")
	return nil
}

func (t *Thread) popFrame() *Frame {
	f := t.frames[len(t.frames)-1]
	t.frames = t.frames[:len(t.frames)-1]
	t.log.Debug().
		Str("method", f.Method.ID).
		Int("depth", len(t.frames)).
		Msg("frame pop")
	return f
}

// Top returns the active frame.
func (t *Thread) Top() *Frame {
	return t.frames[len(t.frames)-1]
}

// Depth returns the number of frames on the stack.
func (t *Thread) Depth() int {
	return len(t.frames)
}

// Steps returns the number of dispatch iterations so far.
func (t *Thread) Steps() int {
	return t.steps
}

// Run drains the frame stack. It returns the value delivered by the
// final ireturn, or hasValue=false when the program ends with a plain
// return. Every error is fatal to the thread.
func (t *Thread) Run() (result Value, hasValue bool, err error) {
	for len(t.frames) > 0 {
		frame := t.Top()

		if t.steps >= t.maxSteps {
			return Value{}, false, &InstructionLimitExceededError{Steps: t.steps}
		}
		t.steps++

		if frame.PC < 0 {
			return Value{}, false, &CodeOverrunError{PC: frame.PC}
		}
		if frame.PC >= len(frame.Code()) {
			// fell off the end: implicit return for void methods
			t.popFrame()
			continue
		}

		opcodePC := frame.PC
		op, _ := frame.ReadU8()
		t.log.Debug().
			Int("pc", opcodePC).
			Str("op", Mnemonic(op)).
			Int("sp", frame.SP).
			Msg("dispatch")

		ctl, err := t.execute(frame, op, opcodePC)
		if err != nil {
			return Value{}, false, errors.Wrapf(err, "in %s.%s at pc=%d",
				frame.Class.Descriptor, frame.Method.ID, opcodePC)
		}

		switch ctl.kind {
		case ctlNext:
			// fall through to the next opcode

		case ctlInvokeStatic:
			if err := t.invokeStatic(frame, ctl.cpIndex); err != nil {
				return Value{}, false, errors.Wrapf(err, "in %s.%s at pc=%d",
					frame.Class.Descriptor, frame.Method.ID, opcodePC)
			}

		case ctlReturnValue:
			t.popFrame()
			if len(t.frames) == 0 {
				return ctl.value, true, nil
			}
			if err := t.Top().Push(ctl.value); err != nil {
				return Value{}, false, err
			}

		case ctlReturnVoid:
			t.popFrame()
			if len(t.frames) == 0 {
				return Value{}, false, nil
			}
		}
	}
	return Value{}, false, nil
}

// execute runs a single instruction. opcodePC is the address at which
// the opcode byte was fetched; branch targets are computed from it.
func (t *Thread) execute(frame *Frame, op byte, opcodePC int) (control, error) {
	next := control{kind: ctlNext}

	switch op {
	case OpNop:
		return next, nil

	// --- Constants ---
	case OpAconstNull:
		return next, frame.Push(NullValue())
	case OpIconstM1:
		return next, frame.Push(IntValue(-1))
	case OpIconst0:
		return next, frame.Push(IntValue(0))
	case OpIconst1:
		return next, frame.Push(IntValue(1))
	case OpIconst2:
		return next, frame.Push(IntValue(2))
	case OpIconst3:
		return next, frame.Push(IntValue(3))
	case OpIconst4:
		return next, frame.Push(IntValue(4))
	case OpIconst5:
		return next, frame.Push(IntValue(5))

	case OpBipush:
		v, err := frame.ReadI8()
		if err != nil {
			return next, err
		}
		return next, frame.Push(IntValue(int32(v))) // sign-extended

	case OpSipush:
		v, err := frame.ReadI16()
		if err != nil {
			return next, err
		}
		return next, frame.Push(IntValue(int32(v))) // sign-extended

	case OpLdc:
		index, err := frame.ReadU8()
		if err != nil {
			return next, err
		}
		return next, t.loadConstant(frame, uint16(index))
	case OpLdcW, OpLdc2W:
		index, err := frame.ReadU16()
		if err != nil {
			return next, err
		}
		return next, t.loadConstant(frame, index)

	// --- Local variable loads ---
	case OpIload:
		index, err := frame.ReadU8()
		if err != nil {
			return next, err
		}
		return next, loadLocal(frame, int(index))
	case OpIload0:
		return next, loadLocal(frame, 0)
	case OpIload1:
		return next, loadLocal(frame, 1)
	case OpIload2:
		return next, loadLocal(frame, 2)
	case OpIload3:
		return next, loadLocal(frame, 3)

	// --- Local variable stores ---
	case OpIstore:
		index, err := frame.ReadU8()
		if err != nil {
			return next, err
		}
		return next, storeLocal(frame, int(index))
	case OpIstore0:
		return next, storeLocal(frame, 0)
	case OpIstore1:
		return next, storeLocal(frame, 1)
	case OpIstore2:
		return next, storeLocal(frame, 2)
	case OpIstore3:
		return next, storeLocal(frame, 3)

	case OpIinc:
		index, err := frame.ReadU8()
		if err != nil {
			return next, err
		}
		konst, err := frame.ReadI8()
		if err != nil {
			return next, err
		}
		v, err := frame.Local(int(index))
		if err != nil {
			return next, err
		}
		return next, frame.SetLocal(int(index), IntValue(v.Int+int32(konst)))

	// --- Stack manipulation ---
	case OpPop:
		_, err := frame.Pop()
		return next, err

	case OpDup:
		v, err := frame.Pop()
		if err != nil {
			return next, err
		}
		if err := frame.Push(v); err != nil {
			return next, err
		}
		return next, frame.Push(v)

	case OpSwap:
		v2, err := frame.Pop()
		if err != nil {
			return next, err
		}
		v1, err := frame.Pop()
		if err != nil {
			return next, err
		}
		if err := frame.Push(v2); err != nil {
			return next, err
		}
		return next, frame.Push(v1)

	// --- Arithmetic (signed 32-bit, wrapping) ---
	case OpIadd:
		return next, arith(frame, func(a, b int32) int32 { return a + b })
	case OpIsub:
		return next, arith(frame, func(a, b int32) int32 { return a - b })
	case OpImul:
		return next, arith(frame, func(a, b int32) int32 { return a * b })

	case OpIdiv:
		return next, divide(frame, opcodePC, func(a, b int32) int32 { return a / b })
	case OpIrem:
		return next, divide(frame, opcodePC, func(a, b int32) int32 { return a % b })

	case OpIneg:
		v, err := frame.PopInt()
		if err != nil {
			return next, err
		}
		return next, frame.Push(IntValue(-v))

	// --- Branches ---
	case OpIfeq:
		return next, branchUnary(frame, opcodePC, func(v int32) bool { return v == 0 })
	case OpIfne:
		return next, branchUnary(frame, opcodePC, func(v int32) bool { return v != 0 })
	case OpIflt:
		return next, branchUnary(frame, opcodePC, func(v int32) bool { return v < 0 })
	case OpIfge:
		return next, branchUnary(frame, opcodePC, func(v int32) bool { return v >= 0 })
	case OpIfgt:
		return next, branchUnary(frame, opcodePC, func(v int32) bool { return v > 0 })
	case OpIfle:
		return next, branchUnary(frame, opcodePC, func(v int32) bool { return v <= 0 })

	case OpIfIcmpeq:
		return next, branchBinary(frame, opcodePC, func(a, b int32) bool { return a == b })
	case OpIfIcmpne:
		return next, branchBinary(frame, opcodePC, func(a, b int32) bool { return a != b })
	case OpIfIcmplt:
		return next, branchBinary(frame, opcodePC, func(a, b int32) bool { return a < b })
	case OpIfIcmpge:
		return next, branchBinary(frame, opcodePC, func(a, b int32) bool { return a >= b })
	case OpIfIcmpgt:
		return next, branchBinary(frame, opcodePC, func(a, b int32) bool { return a > b })
	case OpIfIcmple:
		return next, branchBinary(frame, opcodePC, func(a, b int32) bool { return a <= b })

	case OpGoto:
		offset, err := frame.ReadI16()
		if err != nil {
			return next, err
		}
		frame.PC = opcodePC + int(offset)
		return next, nil

	// --- Invoke / return ---
	case OpInvokestatic:
		index, err := frame.ReadU16()
		if err != nil {
			return next, err
		}
		return control{kind: ctlInvokeStatic, cpIndex: index}, nil

	case OpIreturn:
		v, err := frame.Pop()
		if err != nil {
			return next, err
		}
		return control{kind: ctlReturnValue, value: v}, nil

	case OpReturn:
		return control{kind: ctlReturnVoid}, nil

	default:
		return next, &UnimplementedOpcodeError{Opcode: op, PC: opcodePC}
	}
}

func loadLocal(frame *Frame, index int) error {
	v, err := frame.Local(index)
	if err != nil {
		return err
	}
	return frame.Push(v)
}

func storeLocal(frame *Frame, index int) error {
	v, err := frame.Pop()
	if err != nil {
		return err
	}
	return frame.SetLocal(index, v)
}

func arith(frame *Frame, op func(a, b int32) int32) error {
	b, err := frame.PopInt()
	if err != nil {
		return err
	}
	a, err := frame.PopInt()
	if err != nil {
		return err
	}
	return frame.Push(IntValue(op(a, b)))
}

func divide(frame *Frame, opcodePC int, op func(a, b int32) int32) error {
	b, err := frame.PopInt()
	if err != nil {
		return err
	}
	a, err := frame.PopInt()
	if err != nil {
		return err
	}
	if b == 0 {
		return &ArithmeticError{Reason: "/ by zero", PC: opcodePC}
	}
	return frame.Push(IntValue(op(a, b)))
}

// branchUnary pops one value; a taken branch jumps by the signed offset
// relative to the opcode address. The offset is consumed either way.
func branchUnary(frame *Frame, opcodePC int, cond func(int32) bool) error {
	offset, err := frame.ReadI16()
	if err != nil {
		return err
	}
	v, err := frame.PopInt()
	if err != nil {
		return err
	}
	if cond(v) {
		frame.PC = opcodePC + int(offset)
	}
	return nil
}

// branchBinary pops b then a and branches when cond(a, b) holds.
func branchBinary(frame *Frame, opcodePC int, cond func(a, b int32) bool) error {
	offset, err := frame.ReadI16()
	if err != nil {
		return err
	}
	b, err := frame.PopInt()
	if err != nil {
		return err
	}
	a, err := frame.PopInt()
	if err != nil {
		return err
	}
	if cond(a, b) {
		frame.PC = opcodePC + int(offset)
	}
	return nil
}

// loadConstant pushes the typed constant at a pool index.
func (t *Thread) loadConstant(frame *Frame, index uint16) error {
	c, err := frame.Class.TypedConstantAt(index)
	if err != nil {
		return err
	}
	switch c.Kind {
	case classfile.KindInt:
		return frame.Push(IntValue(c.Int))
	case classfile.KindLong:
		return frame.Push(LongValue(c.Long))
	case classfile.KindFloat:
		return frame.Push(FloatValue(c.Float))
	case classfile.KindDouble:
		return frame.Push(DoubleValue(c.Double))
	case classfile.KindString:
		return frame.Push(RefValue(c.Str))
	default:
		return frame.Push(NullValue())
	}
}
