package vm

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/minivm/minijvm/pkg/classfile"
)

func runFrame(t *testing.T, frame *Frame) (Value, bool, error) {
	t.Helper()
	th := NewThread(0, 0, zerolog.Nop())
	if err := th.PushFrame(frame); err != nil {
		t.Fatalf("PushFrame: %v", err)
	}
	return th.Run()
}

func TestSumOfOneAndTwo(t *testing.T) {
	// iconst_1 istore_1 iconst_2 istore_2 iload_1 iload_2 iadd ireturn
	frame := codeFrame(2, 3, []byte{0x04, 0x3C, 0x05, 0x3D, 0x1B, 0x1C, 0x60, 0xAC})

	v, hasValue, err := runFrame(t, frame)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !hasValue {
		t.Fatal("expected an ireturn value")
	}
	if v.Int != 3 {
		t.Errorf("result: got %d, want 3", v.Int)
	}
}

func TestCountedLoopToTenThousand(t *testing.T) {
	// sum = 0; i = 0; while i < 10000 { sum += i; i++ }; return sum
	code := []byte{
		0x03, 0x3B, // iconst_0 istore_0
		0x03, 0x3C, // iconst_0 istore_1
		0x1B,             // iload_1
		0x11, 0x27, 0x10, // sipush 10000
		0xA2, 0x00, 0x0D, // if_icmpge +13
		0x1A, 0x1B, 0x60, 0x3B, // iload_0 iload_1 iadd istore_0
		0x84, 0x01, 0x01, // iinc 1 1
		0xA7, 0xFF, 0xF2, // goto -14
		0x1A, // iload_0
		0xAC, // ireturn
	}
	frame := codeFrame(2, 2, code)

	v, hasValue, err := runFrame(t, frame)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !hasValue {
		t.Fatal("expected an ireturn value")
	}
	if v.Int != 49995000 {
		t.Errorf("result: got %d, want 49995000", v.Int)
	}
}

// fibClass builds a class whose constant pool index 7 is a self
// reference to fib:(I)I, matching the recursive fixture.
func fibClass() *Class {
	pool := make([]string, 8)
	pool[7] = "Self.fib:(I)I"
	method := &Method{
		ID:          "fib:(I)I",
		Name:        "fib",
		Descriptor:  "(I)I",
		AccessFlags: classfile.AccStatic,
		Code: &classfile.CodeAttribute{
			MaxStack:  3,
			MaxLocals: 1,
			Code: []byte{
				0x1A,             // iload_0
				0x9D, 0x00, 0x05, // ifgt +5
				0x03, 0xAC, // iconst_0 ireturn
				0x1A, 0x04, // iload_0 iconst_1
				0xA0, 0x00, 0x05, // if_icmpne +5
				0x04, 0xAC, // iconst_1 ireturn
				0x1A, 0x04, 0x64, // iload_0 iconst_1 isub
				0xB8, 0x00, 0x07, // invokestatic #7
				0x1A, 0x05, 0x64, // iload_0 iconst_2 isub
				0xB8, 0x00, 0x07, // invokestatic #7
				0x60, // iadd
				0xAC, // ireturn
			},
		},
	}
	return &Class{
		Descriptor:   "Self",
		ConstantPool: pool,
		Methods:      map[string]*Method{method.ID: method},
		Fields:       map[string]*Field{},
	}
}

func TestRecursiveFibonacci(t *testing.T) {
	tests := []struct {
		n    int32
		want int32
	}{
		{0, 0},
		{1, 1},
		{2, 1},
		{3, 2},
		{10, 55},
	}
	for _, tt := range tests {
		class := fibClass()
		frame := NewFrame(class, class.Methods["fib:(I)I"])
		frame.SetLocal(0, IntValue(tt.n))

		v, hasValue, err := runFrame(t, frame)
		if err != nil {
			t.Fatalf("fib(%d): %v", tt.n, err)
		}
		if !hasValue || v.Int != tt.want {
			t.Errorf("fib(%d): got %d (hasValue=%v), want %d", tt.n, v.Int, hasValue, tt.want)
		}
	}
}

func TestBranchSemantics(t *testing.T) {
	t.Run("goto offset -1 targets the preceding byte", func(t *testing.T) {
		th := NewThread(0, 0, zerolog.Nop())
		frame := codeFrame(1, 0, []byte{0x00, 0xA7, 0xFF, 0xFF})
		frame.PC = 2 // opcode byte at 1 consumed

		_, err := th.execute(frame, OpGoto, 1)
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if frame.PC != 0 {
			t.Errorf("PC after goto -1: got %d, want 0", frame.PC)
		}
	})

	t.Run("if_icmpge taken on equal", func(t *testing.T) {
		th := NewThread(0, 0, zerolog.Nop())
		frame := codeFrame(2, 0, []byte{0xA2, 0x00, 0x10})
		frame.Push(IntValue(7))
		frame.Push(IntValue(7))
		frame.PC = 1

		if _, err := th.execute(frame, OpIfIcmpge, 0); err != nil {
			t.Fatalf("execute: %v", err)
		}
		if frame.PC != 16 {
			t.Errorf("PC: got %d, want 16 (branch taken)", frame.PC)
		}
	})

	t.Run("if_icmpge falls through on a == b-1", func(t *testing.T) {
		th := NewThread(0, 0, zerolog.Nop())
		frame := codeFrame(2, 0, []byte{0xA2, 0x00, 0x10})
		frame.Push(IntValue(6))
		frame.Push(IntValue(7))
		frame.PC = 1

		if _, err := th.execute(frame, OpIfIcmpge, 0); err != nil {
			t.Fatalf("execute: %v", err)
		}
		if frame.PC != 3 {
			t.Errorf("PC: got %d, want 3 (fall through past the offset)", frame.PC)
		}
	})

	t.Run("untaken branch still consumes the offset", func(t *testing.T) {
		// ifgt over a zero: falls through to iconst_5, ireturn
		frame := codeFrame(1, 0, []byte{0x03, 0x9D, 0x00, 0x7F, 0x08, 0xAC})
		v, hasValue, err := runFrame(t, frame)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if !hasValue || v.Int != 5 {
			t.Errorf("got %d, want 5", v.Int)
		}
	})
}

func TestSignExtension(t *testing.T) {
	t.Run("bipush", func(t *testing.T) {
		// bipush -100, ireturn
		frame := codeFrame(1, 0, []byte{0x10, 0x9C, 0xAC})
		v, _, err := runFrame(t, frame)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if v.Int != -100 {
			t.Errorf("bipush 0x9C: got %d, want -100", v.Int)
		}
	})

	t.Run("sipush", func(t *testing.T) {
		// sipush -1000, ireturn
		frame := codeFrame(1, 0, []byte{0x11, 0xFC, 0x18, 0xAC})
		v, _, err := runFrame(t, frame)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if v.Int != -1000 {
			t.Errorf("sipush 0xFC18: got %d, want -1000", v.Int)
		}
	})

	t.Run("iinc negative constant", func(t *testing.T) {
		// iconst_5 istore_0, iinc 0 -3, iload_0, ireturn
		frame := codeFrame(1, 1, []byte{0x08, 0x3B, 0x84, 0x00, 0xFD, 0x1A, 0xAC})
		v, _, err := runFrame(t, frame)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if v.Int != 2 {
			t.Errorf("5 + (-3): got %d, want 2", v.Int)
		}
	})
}

func TestArithmeticWrapAround(t *testing.T) {
	// ldc of large ints is not needed: 32767 * 32767 * 2 * 2 exceeds
	// 0x7FFFFFFF and wraps
	class := fibClass()
	method := &Method{
		ID:         "wrap:()I",
		Name:       "wrap",
		Descriptor: "()I",
		Code: &classfile.CodeAttribute{
			MaxStack:  2,
			MaxLocals: 0,
			Code: []byte{
				0x11, 0x7F, 0xFF, // sipush 32767
				0x11, 0x7F, 0xFF, // sipush 32767
				0x68,       // imul
				0x05,       // iconst_2
				0x68,       // imul
				0x05,       // iconst_2
				0x68,       // imul
				0xAC,       // ireturn
			},
		},
	}
	class.Methods[method.ID] = method
	frame := NewFrame(class, method)

	v, _, err := runFrame(t, frame)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	x := int32(32767)
	want := x * x * 2 * 2
	if v.Int != want {
		t.Errorf("got %d, want %d", v.Int, want)
	}
}

func TestUnimplementedOpcode(t *testing.T) {
	// 0xBB (new) is outside the supported set
	frame := codeFrame(1, 0, []byte{0xBB, 0x00, 0x01})
	_, _, err := runFrame(t, frame)
	if err == nil {
		t.Fatal("expected error for unimplemented opcode")
	}
	var uErr *UnimplementedOpcodeError
	if !errors.As(err, &uErr) {
		t.Fatalf("expected *UnimplementedOpcodeError, got %T: %v", err, err)
	}
	if uErr.Opcode != 0xBB || uErr.PC != 0 {
		t.Errorf("got opcode=0x%02X pc=%d, want 0xBB/0", uErr.Opcode, uErr.PC)
	}
}

func TestInstructionLimit(t *testing.T) {
	// goto 0: spins in place until the fuse blows
	frame := codeFrame(1, 0, []byte{0xA7, 0x00, 0x00})

	th := NewThread(1000, 0, zerolog.Nop())
	if err := th.PushFrame(frame); err != nil {
		t.Fatalf("PushFrame: %v", err)
	}
	_, _, err := th.Run()
	if err == nil {
		t.Fatal("expected instruction limit error")
	}
	var lErr *InstructionLimitExceededError
	if !errors.As(err, &lErr) {
		t.Fatalf("expected *InstructionLimitExceededError, got %T: %v", err, err)
	}
	if lErr.Steps != 1000 {
		t.Errorf("steps: got %d, want 1000", lErr.Steps)
	}
}

func TestImplicitVoidReturn(t *testing.T) {
	// running off the end of the code array behaves like return
	frame := codeFrame(1, 0, []byte{0x00})
	_, hasValue, err := runFrame(t, frame)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if hasValue {
		t.Error("void method must not produce a value")
	}
}

func TestStackDisciplineAcrossInvoke(t *testing.T) {
	// main pushes a sentinel, then calls add(2, 3). After the call the
	// stack must hold exactly sentinel and the returned sum.
	pool := make([]string, 2)
	pool[1] = "Calc.add:(II)I"
	add := &Method{
		ID: "add:(II)I", Name: "add", Descriptor: "(II)I",
		Code: &classfile.CodeAttribute{
			MaxStack: 2, MaxLocals: 2,
			Code: []byte{0x1A, 0x1B, 0x60, 0xAC}, // iload_0 iload_1 iadd ireturn
		},
	}
	main := &Method{
		ID: "main:()I", Name: "main", Descriptor: "()I",
		Code: &classfile.CodeAttribute{
			MaxStack: 3, MaxLocals: 0,
			Code: []byte{
				0x10, 0x2A, // bipush 42 (sentinel)
				0x05,             // iconst_2
				0x06,             // iconst_3
				0xB8, 0x00, 0x01, // invokestatic #1
				0x60, // iadd: sentinel + sum
				0xAC, // ireturn
			},
		},
	}
	class := &Class{
		Descriptor:   "Calc",
		ConstantPool: pool,
		Methods:      map[string]*Method{add.ID: add, main.ID: main},
		Fields:       map[string]*Field{},
	}

	frame := NewFrame(class, main)
	v, hasValue, err := runFrame(t, frame)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !hasValue || v.Int != 47 {
		t.Errorf("got %d (hasValue=%v), want 47", v.Int, hasValue)
	}
}

func TestInvokeArgumentOrder(t *testing.T) {
	// sub(5, 2) must compute 5-2: the last-pushed value is the last
	// parameter.
	pool := make([]string, 2)
	pool[1] = "Calc.sub:(II)I"
	sub := &Method{
		ID: "sub:(II)I", Name: "sub", Descriptor: "(II)I",
		Code: &classfile.CodeAttribute{
			MaxStack: 2, MaxLocals: 2,
			Code: []byte{0x1A, 0x1B, 0x64, 0xAC}, // iload_0 iload_1 isub ireturn
		},
	}
	main := &Method{
		ID: "main:()I", Name: "main", Descriptor: "()I",
		Code: &classfile.CodeAttribute{
			MaxStack: 2, MaxLocals: 0,
			Code: []byte{
				0x08,             // iconst_5
				0x05,             // iconst_2
				0xB8, 0x00, 0x01, // invokestatic #1
				0xAC, // ireturn
			},
		},
	}
	class := &Class{
		Descriptor:   "Calc",
		ConstantPool: pool,
		Methods:      map[string]*Method{sub.ID: sub, main.ID: main},
		Fields:       map[string]*Field{},
	}

	v, _, err := runFrame(t, NewFrame(class, main))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v.Int != 3 {
		t.Errorf("sub(5,2): got %d, want 3", v.Int)
	}
}

func TestInvokeCrossClassFails(t *testing.T) {
	pool := make([]string, 2)
	pool[1] = "Elsewhere.helper:()V"
	main := &Method{
		ID: "main:()I", Name: "main", Descriptor: "()I",
		Code: &classfile.CodeAttribute{
			MaxStack: 1, MaxLocals: 0,
			Code: []byte{0xB8, 0x00, 0x01, 0xAC},
		},
	}
	class := &Class{
		Descriptor:   "Here",
		ConstantPool: pool,
		Methods:      map[string]*Method{main.ID: main},
		Fields:       map[string]*Field{},
	}

	_, _, err := runFrame(t, NewFrame(class, main))
	if err == nil {
		t.Fatal("expected cross-class invoke to fail")
	}
	var uErr *UnresolvedMethodError
	if !errors.As(err, &uErr) {
		t.Fatalf("expected *UnresolvedMethodError, got %T: %v", err, err)
	}
}

func TestFrameLimit(t *testing.T) {
	// a self-call that never bottoms out: loop:()I calls itself
	pool := make([]string, 2)
	pool[1] = "Deep.loop:()I"
	loop := &Method{
		ID: "loop:()I", Name: "loop", Descriptor: "()I",
		Code: &classfile.CodeAttribute{
			MaxStack: 1, MaxLocals: 0,
			Code: []byte{0xB8, 0x00, 0x01, 0xAC},
		},
	}
	class := &Class{
		Descriptor:   "Deep",
		ConstantPool: pool,
		Methods:      map[string]*Method{loop.ID: loop},
		Fields:       map[string]*Field{},
	}

	th := NewThread(0, 16, zerolog.Nop())
	if err := th.PushFrame(NewFrame(class, loop)); err != nil {
		t.Fatalf("PushFrame: %v", err)
	}
	_, _, err := th.Run()
	if err == nil {
		t.Fatal("expected frame limit error")
	}
	var fErr *FrameLimitExceededError
	if !errors.As(err, &fErr) {
		t.Fatalf("expected *FrameLimitExceededError, got %T: %v", err, err)
	}
}
