package asm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/chazu/classasm/pool"
)

var arrayTypeNames = map[byte]string{
	4: "boolean", 5: "char", 6: "float", 7: "double",
	8: "byte", 9: "short", 10: "int", 11: "long",
}

// Listing renders an encoded tree one instruction per line, prefixed with
// its method offset. Pool references are resolved through v.
func Listing(e Encoded, v pool.View) string {
	var sb strings.Builder
	writeListing(&sb, e, v)
	return sb.String()
}

func writeListing(sb *strings.Builder, e Encoded, v pool.View) {
	switch e := e.(type) {
	case *EncodedBlock:
		for _, c := range e.children {
			writeListing(sb, c, v)
		}
	case *EncodedBranch:
		writeListing(sb, e.cond, v)
		writeListing(sb, e.then, v)
		if e.jump != nil {
			writeListing(sb, e.jump, v)
		}
		if e.els != nil {
			writeListing(sb, e.els, v)
		}
	case *EncodedSwitch:
		fmt.Fprintf(sb, "%04X  %s\n", e.at, e.op)
		for _, p := range e.pairs {
			fmt.Fprintf(sb, "        %d: %04X\n", p.Key, e.at+int(p.Delta))
		}
		fmt.Fprintf(sb, "        default: %04X\n", e.at+int(e.def))
	case *EncodedInsn:
		fmt.Fprintf(sb, "%04X  %s\n", e.at, insnText(e, v))
	}
}

func insnText(e *EncodedInsn, v pool.View) string {
	name := e.op.String()
	if e.wide {
		name = "wide " + name
	}
	ops := e.operands
	switch {
	case e.ref != 0:
		if e.op == OpInvokeinterface {
			return fmt.Sprintf("%s #%d, %d ; %s", name, e.ref, ops[2], v.Resolve(e.ref))
		}
		return fmt.Sprintf("%s #%d ; %s", name, e.ref, v.Resolve(e.ref))
	case e.op.IsBranch():
		delta := int16(binary.BigEndian.Uint16(ops))
		return fmt.Sprintf("%s %04X", name, e.at+int(delta))
	case e.op == OpIinc && e.wide:
		return fmt.Sprintf("%s %d, %d", name, binary.BigEndian.Uint16(ops), int16(binary.BigEndian.Uint16(ops[2:])))
	case e.op == OpIinc:
		return fmt.Sprintf("%s %d, %d", name, ops[0], int8(ops[1]))
	case e.op == OpBipush:
		return fmt.Sprintf("%s %d", name, int8(ops[0]))
	case e.op == OpSipush:
		return fmt.Sprintf("%s %d", name, int16(binary.BigEndian.Uint16(ops)))
	case e.op == OpNewarray:
		return fmt.Sprintf("%s %s", name, arrayTypeNames[ops[0]])
	case len(ops) == 1:
		return fmt.Sprintf("%s %d", name, ops[0])
	case len(ops) == 2:
		return fmt.Sprintf("%s %d", name, binary.BigEndian.Uint16(ops))
	}
	return name
}
