package asm

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Opcode metadata tests
// ---------------------------------------------------------------------------

func TestOpcodeInfo(t *testing.T) {
	tests := []struct {
		op         Opcode
		name       string
		operandLen int
	}{
		{OpNop, "nop", 0},
		{OpBipush, "bipush", 1},
		{OpSipush, "sipush", 2},
		{OpLdc, "ldc", 1},
		{OpLdcW, "ldc_w", 2},
		{OpIload, "iload", 1},
		{OpIinc, "iinc", 2},
		{OpDup2X1, "dup2_x1", 0},
		{OpGoto, "goto", 2},
		{OpTableswitch, "tableswitch", -1},
		{OpReturn, "return", 0},
		{OpInvokeinterface, "invokeinterface", 4},
		{OpInvokedynamic, "invokedynamic", 4},
		{OpNew, "new", 2},
		{OpNewarray, "newarray", 1},
	}

	for _, tt := range tests {
		info := GetOpcodeInfo(tt.op)
		if info.Name != tt.name {
			t.Errorf("%s: Name = %q, want %q", tt.op, info.Name, tt.name)
		}
		if info.OperandLen != tt.operandLen {
			t.Errorf("%s: OperandLen = %d, want %d", tt.op, info.OperandLen, tt.operandLen)
		}
	}
}

func TestOpcodeStringUnknown(t *testing.T) {
	if got := Opcode(0xCA).String(); got != "unknown(0xCA)" {
		t.Errorf("String() = %q, want unknown(0xCA)", got)
	}
}

func TestAllOpcodesNamed(t *testing.T) {
	ops := AllOpcodes()
	for i, op := range ops {
		if strings.HasPrefix(op.String(), "unknown") {
			t.Errorf("opcode 0x%02X has no name", byte(op))
		}
		if i > 0 && ops[i-1] >= op {
			t.Errorf("AllOpcodes not sorted at %d", i)
		}
	}
}

func TestNegate(t *testing.T) {
	for _, op := range AllOpcodes() {
		neg, ok := op.Negate()
		if ok != op.IsConditional() {
			t.Errorf("%s: Negate ok = %v, IsConditional = %v", op, ok, op.IsConditional())
			continue
		}
		if !ok {
			continue
		}
		if back, _ := neg.Negate(); back != op {
			t.Errorf("%s: Negate twice = %s", op, back)
		}
	}
}

func TestEndsBlock(t *testing.T) {
	for _, op := range []Opcode{OpGoto, OpReturn, OpAreturn, OpAthrow, OpLookupswitch} {
		if !op.EndsBlock() {
			t.Errorf("%s.EndsBlock() = false", op)
		}
	}
	for _, op := range []Opcode{OpIfeq, OpIadd, OpInvokestatic} {
		if op.EndsBlock() {
			t.Errorf("%s.EndsBlock() = true", op)
		}
	}
}
