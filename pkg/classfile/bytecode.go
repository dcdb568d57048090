package classfile

import (
	"encoding/binary"
	"fmt"
)

// Opcode is a JVM instruction opcode.
type Opcode uint8

// Opcodes referenced by name. The full set is covered by the length table.
const (
	OpNop             Opcode = 0x00
	OpAconstNull      Opcode = 0x01
	OpIconst0         Opcode = 0x03
	OpIconst1         Opcode = 0x04
	OpBipush          Opcode = 0x10
	OpSipush          Opcode = 0x11
	OpLdc             Opcode = 0x12
	OpLdcW            Opcode = 0x13
	OpLdc2W           Opcode = 0x14
	OpIload           Opcode = 0x15
	OpAload           Opcode = 0x19
	OpIload0          Opcode = 0x1a
	OpAload0          Opcode = 0x2a
	OpAload3          Opcode = 0x2d
	OpIstore          Opcode = 0x36
	OpAstore          Opcode = 0x3a
	OpIstore0         Opcode = 0x3b
	OpAstore3         Opcode = 0x4e
	OpPop             Opcode = 0x57
	OpIadd            Opcode = 0x60
	OpIinc            Opcode = 0x84
	OpIfeq            Opcode = 0x99
	OpIfAcmpne        Opcode = 0xa6
	OpGoto            Opcode = 0xa7
	OpJsr             Opcode = 0xa8
	OpRet             Opcode = 0xa9
	OpTableswitch     Opcode = 0xaa
	OpLookupswitch    Opcode = 0xab
	OpIreturn         Opcode = 0xac
	OpReturn          Opcode = 0xb1
	OpGetstatic       Opcode = 0xb2
	OpPutstatic       Opcode = 0xb3
	OpGetfield        Opcode = 0xb4
	OpPutfield        Opcode = 0xb5
	OpInvokevirtual   Opcode = 0xb6
	OpInvokespecial   Opcode = 0xb7
	OpInvokestatic    Opcode = 0xb8
	OpInvokeinterface Opcode = 0xb9
	OpInvokedynamic   Opcode = 0xba
	OpNew             Opcode = 0xbb
	OpNewarray        Opcode = 0xbc
	OpAnewarray       Opcode = 0xbd
	OpArraylength     Opcode = 0xbe
	OpAthrow          Opcode = 0xbf
	OpCheckcast       Opcode = 0xc0
	OpInstanceof      Opcode = 0xc1
	OpWide            Opcode = 0xc4
	OpMultianewarray  Opcode = 0xc5
	OpIfnull          Opcode = 0xc6
	OpIfnonnull       Opcode = 0xc7
	OpGotoW           Opcode = 0xc8
	OpJsrW            Opcode = 0xc9
)

// Category groups opcodes for metric counting.
type Category uint8

// Instruction categories.
const (
	CatOther Category = iota
	CatBranch
	CatMethodCall
	CatFieldLoad
	CatFieldStore
	CatLocalLoad
	CatLocalStore
	CatConstant
	CatIncrement
	CatType
	CatThrow
)

// Category classifies the opcode. Conditional jumps and switches count as
// branches; unconditional jumps do not.
func (op Opcode) Category() Category {
	switch {
	case op >= OpIfeq && op <= OpIfAcmpne, op == OpIfnull, op == OpIfnonnull,
		op == OpTableswitch, op == OpLookupswitch:
		return CatBranch
	case op >= OpInvokevirtual && op <= OpInvokedynamic:
		return CatMethodCall
	case op == OpGetstatic, op == OpGetfield:
		return CatFieldLoad
	case op == OpPutstatic, op == OpPutfield:
		return CatFieldStore
	case op >= OpIload && op <= OpAload3:
		return CatLocalLoad
	case op >= OpIstore && op <= OpAstore3:
		return CatLocalStore
	case op >= OpAconstNull && op <= OpLdc2W:
		return CatConstant
	case op == OpIinc:
		return CatIncrement
	case op == OpNew, op == OpNewarray, op == OpAnewarray, op == OpCheckcast,
		op == OpInstanceof, op == OpMultianewarray:
		return CatType
	case op == OpAthrow:
		return CatThrow
	default:
		return CatOther
	}
}

// fixedLength returns the encoded length of fixed-size instructions and 0 for
// the variable-length ones (tableswitch, lookupswitch, wide).
func fixedLength(op Opcode) int {
	switch {
	case op == OpBipush, op == OpLdc, op >= OpIload && op <= OpAload,
		op >= OpIstore && op <= OpAstore, op == OpRet, op == OpNewarray:
		return 2
	case op == OpSipush, op == OpLdcW, op == OpLdc2W, op == OpIinc,
		op >= OpIfeq && op <= OpJsr, op >= OpGetstatic && op <= OpInvokestatic,
		op == OpNew, op == OpAnewarray, op == OpCheckcast, op == OpInstanceof,
		op == OpIfnull, op == OpIfnonnull:
		return 3
	case op == OpMultianewarray:
		return 4
	case op == OpInvokeinterface, op == OpInvokedynamic, op == OpGotoW, op == OpJsrW:
		return 5
	case op == OpTableswitch, op == OpLookupswitch, op == OpWide:
		return 0
	case op > OpJsrW && op < 0xfe:
		return -1
	default:
		return 1
	}
}

// walkBytecode decodes the instruction stream of one Code attribute.
func walkBytecode(code []byte, pool *constantPool) ([]Instruction, error) {
	var insns []Instruction

	for pc := 0; pc < len(code); {
		op := Opcode(code[pc])
		insn := Instruction{Offset: pc, Opcode: op}

		size := fixedLength(op)

		switch {
		case size < 0:
			return nil, fmt.Errorf("%w: invalid opcode 0x%02x at %d", ErrMalformed, op, pc)
		case op == OpWide:
			if pc+1 >= len(code) {
				return nil, ErrTruncated
			}

			insn.Opcode = Opcode(code[pc+1])
			size = 4

			if insn.Opcode == OpIinc {
				size = 6
			}
		case op == OpTableswitch, op == OpLookupswitch:
			var err error

			size, err = switchLength(code, pc)
			if err != nil {
				return nil, err
			}
		}

		if pc+size > len(code) {
			return nil, ErrTruncated
		}

		owner, err := instructionOwner(op, code[pc:pc+size], pool)
		if err != nil {
			return nil, fmt.Errorf("at %d: %w", pc, err)
		}

		insn.Owner = owner
		insns = append(insns, insn)
		pc += size
	}

	return insns, nil
}

// switchLength computes the encoded size of a tableswitch or lookupswitch,
// whose operands are aligned to four bytes from the start of the code array.
func switchLength(code []byte, pc int) (int, error) {
	const word = 4

	pad := (word - (pc+1)%word) % word
	base := pc + 1 + pad

	if base+2*word > len(code) {
		return 0, ErrTruncated
	}

	word1 := int(int32(binary.BigEndian.Uint32(code[base+word:])))

	if Opcode(code[pc]) == OpTableswitch {
		if base+3*word > len(code) {
			return 0, ErrTruncated
		}

		low := word1
		high := int(int32(binary.BigEndian.Uint32(code[base+2*word:])))

		if high < low {
			return 0, fmt.Errorf("%w: tableswitch high < low at %d", ErrMalformed, pc)
		}

		return 1 + pad + 3*word + (high-low+1)*word, nil
	}

	npairs := word1
	if npairs < 0 {
		return 0, fmt.Errorf("%w: negative lookupswitch pairs at %d", ErrMalformed, pc)
	}

	return 1 + pad + 2*word + npairs*2*word, nil
}

func instructionOwner(op Opcode, raw []byte, pool *constantPool) (string, error) {
	switch {
	case op >= OpGetstatic && op <= OpInvokedynamic:
		return pool.memberOwner(binary.BigEndian.Uint16(raw[1:]))
	case op == OpNew, op == OpAnewarray, op == OpCheckcast, op == OpInstanceof, op == OpMultianewarray:
		return pool.className(binary.BigEndian.Uint16(raw[1:]))
	default:
		return "", nil
	}
}
