package wasm

import (
	"fmt"

	"github.com/wippyai/wasm-trampoline/wasm/internal/binary"
)

// memarg alignment bit announcing an explicit memory index
const memArgMultiMemBit = 0x40

// ref value types followed by a heap type
const (
	valRef     = 0x64
	valRefNull = 0x63
)

// Instruction is one decoded instruction. Index immediates (table, element
// segment, function, type and label indices) are kept in Imm in encoding
// order; other immediates are skipped.
type Instruction struct {
	Imm       [2]uint32
	SubOpcode uint32 // for 0xFC, 0xFD and 0xFE prefixed opcodes
	Opcode    byte
}

// WritesTable reports whether the instruction can change entries of the
// table at tableIdx.
func (i Instruction) WritesTable(tableIdx uint32) bool {
	switch i.Opcode {
	case OpTableSet:
		return i.Imm[0] == tableIdx
	case OpPrefixMisc:
		switch i.SubOpcode {
		case MiscTableGrow, MiscTableFill:
			return i.Imm[0] == tableIdx
		case MiscTableCopy:
			return i.Imm[0] == tableIdx // destination
		case MiscTableInit:
			return i.Imm[1] == tableIdx
		}
	}
	return false
}

// Instructions decodes the body's code, skipping the local declarations,
// and calls fn for every instruction in order.
func (b FuncBody) Instructions(fn func(Instruction) error) error {
	r := binary.NewReader(b.Body)
	groups, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < groups; i++ {
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		if err := skipValType(r); err != nil {
			return err
		}
	}
	return decodeInstructions(r, fn)
}

// DecodeInstructions decodes raw code (without local declarations).
func DecodeInstructions(code []byte, fn func(Instruction) error) error {
	return decodeInstructions(binary.NewReader(code), fn)
}

// TableWriters returns the defined functions whose code can change entries
// of the table at tableIdx. Code that cannot be decoded is an error; callers
// should then assume the table is written.
func (m *Module) TableWriters(tableIdx uint32) ([]uint32, error) {
	base := uint32(m.NumImportedFuncs())
	var out []uint32
	for i, body := range m.Code {
		writes := false
		err := body.Instructions(func(in Instruction) error {
			if in.WritesTable(tableIdx) {
				writes = true
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("function %d: %w", base+uint32(i), err)
		}
		if writes {
			out = append(out, base+uint32(i))
		}
	}
	return out, nil
}

func decodeInstructions(r *binary.Reader, fn func(Instruction) error) error {
	for r.Len() > 0 {
		op, err := r.ReadByte()
		if err != nil {
			return err
		}
		in := Instruction{Opcode: op}
		if err := readImmediates(r, &in); err != nil {
			return r.WrapError(fmt.Sprintf("opcode 0x%02x", op), err)
		}
		if err := fn(in); err != nil {
			return err
		}
	}
	return nil
}

func readImmediates(r *binary.Reader, in *Instruction) error {
	op := in.Opcode
	switch {
	case op == OpBlock, op == OpLoop, op == OpIf, op == 0x06: // try
		_, err := r.ReadS64()
		return err

	case op == 0x1F: // try_table
		if _, err := r.ReadS64(); err != nil {
			return err
		}
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			kind, err := r.ReadByte()
			if err != nil {
				return err
			}
			if kind == 0x00 || kind == 0x01 { // catch, catch_ref
				if _, err := r.ReadU32(); err != nil {
					return err
				}
			}
			if _, err := r.ReadU32(); err != nil {
				return err
			}
		}
		return nil

	case op == OpBrTable:
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i <= n; i++ {
			if _, err := r.ReadU32(); err != nil {
				return err
			}
		}
		return nil

	case op == OpCallIndirect, op == 0x13: // return_call_indirect
		return readIndices(r, in, 2)

	case op == 0x07, op == 0x08, op == 0x09, op == OpBr, op == OpBrIf, // catch, throw, rethrow
		op == OpCall, op == 0x12, op == 0x14, op == 0x15, op == 0x18, // return_call, call_ref, return_call_ref, delegate
		op >= OpLocalGet && op <= OpTableSet,
		op == OpRefFunc, op == 0xD5, op == 0xD6: // br_on_null, br_on_non_null
		return readIndices(r, in, 1)

	case op == 0x1C: // select t*
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			if err := skipValType(r); err != nil {
				return err
			}
		}
		return nil

	case op >= OpI32Load && op <= 0x3E:
		return skipMemArg(r)

	case op == 0x3F, op == 0x40: // memory.size, memory.grow
		_, err := r.ReadU32()
		return err

	case op == OpI32Const:
		_, err := r.ReadS32()
		return err
	case op == OpI64Const:
		_, err := r.ReadS64()
		return err
	case op == OpF32Const:
		_, err := r.ReadBytes(4)
		return err
	case op == OpF64Const:
		_, err := r.ReadBytes(8)
		return err

	case op == OpRefNull:
		_, err := r.ReadS64()
		return err

	case op <= 0x05, op == 0x0A, op == OpEnd, op == OpReturn, // unreachable..else, throw_ref
		op == 0x19, op == OpDrop, op == 0x1B, // catch_all, select
		op >= OpI32Eqz && op <= 0xC4,
		op == OpRefIsNull, op == 0xD3, op == 0xD4: // ref.eq, ref.as_non_null
		return nil

	case op == OpPrefixMisc:
		return readMisc(r, in)
	case op == OpPrefixSIMD:
		return readSIMD(r, in)
	case op == OpPrefixAtomic:
		return readAtomic(r, in)
	case op == OpPrefixGC:
		return fmt.Errorf("%w: GC instructions", ErrUnsupported)
	}
	return fmt.Errorf("unknown opcode 0x%02x", op)
}

func readIndices(r *binary.Reader, in *Instruction, n int) error {
	for i := 0; i < n; i++ {
		v, err := r.ReadU32()
		if err != nil {
			return err
		}
		in.Imm[i] = v
	}
	return nil
}

func readMisc(r *binary.Reader, in *Instruction) error {
	sub, err := r.ReadU32()
	if err != nil {
		return err
	}
	in.SubOpcode = sub
	switch sub {
	case 0, 1, 2, 3, 4, 5, 6, 7: // saturating truncations
		return nil
	case MiscMemoryInit, MiscMemoryCopy, MiscTableInit, MiscTableCopy:
		return readIndices(r, in, 2)
	case MiscDataDrop, MiscMemoryFill, MiscElemDrop,
		MiscTableGrow, MiscTableSize, MiscTableFill, MiscMemoryDiscard:
		return readIndices(r, in, 1)
	}
	return fmt.Errorf("unknown 0xFC sub-opcode %d", sub)
}

func readSIMD(r *binary.Reader, in *Instruction) error {
	sub, err := r.ReadU32()
	if err != nil {
		return err
	}
	in.SubOpcode = sub
	switch {
	case sub <= 0x0B, sub == 0x5C, sub == 0x5D: // loads, v128.store, load_zero
		return skipMemArg(r)
	case sub == 0x0C, sub == 0x0D: // v128.const, i8x16.shuffle
		_, err := r.ReadBytes(16)
		return err
	case sub >= 0x15 && sub <= 0x22: // extract_lane, replace_lane
		_, err := r.ReadByte()
		return err
	case sub >= 0x54 && sub <= 0x5B: // load_lane, store_lane
		if err := skipMemArg(r); err != nil {
			return err
		}
		_, err := r.ReadByte()
		return err
	}
	return nil
}

func readAtomic(r *binary.Reader, in *Instruction) error {
	sub, err := r.ReadU32()
	if err != nil {
		return err
	}
	in.SubOpcode = sub
	if sub == 0x03 { // atomic.fence
		_, err := r.ReadByte()
		return err
	}
	return skipMemArg(r)
}

func skipMemArg(r *binary.Reader) error {
	align, err := r.ReadU32()
	if err != nil {
		return err
	}
	if align&memArgMultiMemBit != 0 {
		if _, err := r.ReadU32(); err != nil {
			return err
		}
	}
	_, err = r.ReadU64()
	return err
}

func skipValType(r *binary.Reader) error {
	t, err := r.ReadByte()
	if err != nil {
		return err
	}
	if t == valRef || t == valRefNull {
		_, err = r.ReadS64()
	}
	return err
}
