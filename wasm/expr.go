package wasm

import (
	"github.com/wippyai/wasm-trampoline/wasm/internal/binary"
)

// Expr emits an instruction sequence. Methods return the receiver so
// sequences read top to bottom the way they execute.
type Expr struct {
	w binary.Writer
}

// NewExpr creates an empty instruction sequence.
func NewExpr() *Expr {
	return &Expr{}
}

// Bytes returns the encoded instructions.
func (e *Expr) Bytes() []byte {
	return e.w.Bytes()
}

func (e *Expr) op(b byte) *Expr {
	e.w.Byte(b)
	return e
}

func (e *Expr) Unreachable() *Expr { return e.op(OpUnreachable) }
func (e *Expr) End() *Expr         { return e.op(OpEnd) }
func (e *Expr) Return() *Expr      { return e.op(OpReturn) }
func (e *Expr) Drop() *Expr        { return e.op(OpDrop) }
func (e *Expr) I32Add() *Expr      { return e.op(OpI32Add) }
func (e *Expr) I32Sub() *Expr      { return e.op(OpI32Sub) }
func (e *Expr) I32Mul() *Expr      { return e.op(OpI32Mul) }
func (e *Expr) I32Eqz() *Expr      { return e.op(OpI32Eqz) }
func (e *Expr) I32And() *Expr      { return e.op(OpI32And) }

// Block opens a block with no parameters and no results.
func (e *Expr) Block() *Expr {
	e.w.Byte(OpBlock)
	e.w.Byte(BlockVoid)
	return e
}

// If opens an if with no results.
func (e *Expr) If() *Expr {
	e.w.Byte(OpIf)
	e.w.Byte(BlockVoid)
	return e
}

// Br branches to the label at depth.
func (e *Expr) Br(depth uint32) *Expr {
	e.w.Byte(OpBr)
	e.w.WriteU32(depth)
	return e
}

// BrTable branches on the i32 operand; out-of-range values take def.
func (e *Expr) BrTable(labels []uint32, def uint32) *Expr {
	e.w.Byte(OpBrTable)
	e.w.WriteU32(uint32(len(labels)))
	for _, l := range labels {
		e.w.WriteU32(l)
	}
	e.w.WriteU32(def)
	return e
}

// Call calls a function by index.
func (e *Expr) Call(funcIdx uint32) *Expr {
	e.w.Byte(OpCall)
	e.w.WriteU32(funcIdx)
	return e
}

// CallIndirect calls through a table with the expected signature typeIdx.
func (e *Expr) CallIndirect(typeIdx, tableIdx uint32) *Expr {
	e.w.Byte(OpCallIndirect)
	e.w.WriteU32(typeIdx)
	e.w.WriteU32(tableIdx)
	return e
}

// TableSet stores a reference into the table at tableIdx.
func (e *Expr) TableSet(tableIdx uint32) *Expr {
	e.w.Byte(OpTableSet)
	e.w.WriteU32(tableIdx)
	return e
}

// RefFunc pushes a reference to a function.
func (e *Expr) RefFunc(funcIdx uint32) *Expr {
	e.w.Byte(OpRefFunc)
	e.w.WriteU32(funcIdx)
	return e
}

func (e *Expr) LocalGet(idx uint32) *Expr {
	e.w.Byte(OpLocalGet)
	e.w.WriteU32(idx)
	return e
}

func (e *Expr) LocalSet(idx uint32) *Expr {
	e.w.Byte(OpLocalSet)
	e.w.WriteU32(idx)
	return e
}

func (e *Expr) GlobalGet(idx uint32) *Expr {
	e.w.Byte(OpGlobalGet)
	e.w.WriteU32(idx)
	return e
}

func (e *Expr) GlobalSet(idx uint32) *Expr {
	e.w.Byte(OpGlobalSet)
	e.w.WriteU32(idx)
	return e
}

func (e *Expr) I32Const(v int32) *Expr {
	e.w.Byte(OpI32Const)
	e.w.WriteS32(v)
	return e
}

// I32Load loads with 4-byte alignment at the static offset.
func (e *Expr) I32Load(offset uint32) *Expr {
	e.w.Byte(OpI32Load)
	e.w.WriteU32(2)
	e.w.WriteU32(offset)
	return e
}

// I32Store stores with 4-byte alignment at the static offset.
func (e *Expr) I32Store(offset uint32) *Expr {
	e.w.Byte(OpI32Store)
	e.w.WriteU32(2)
	e.w.WriteU32(offset)
	return e
}

// Body assembles a function body from its extra locals and code.
// The code must end with End.
func Body(locals []ValType, code *Expr) FuncBody {
	w := binary.NewWriter()

	type group struct {
		t ValType
		n uint32
	}
	var groups []group
	for _, t := range locals {
		if len(groups) > 0 && groups[len(groups)-1].t == t {
			groups[len(groups)-1].n++
			continue
		}
		groups = append(groups, group{t: t, n: 1})
	}
	w.WriteU32(uint32(len(groups)))
	for _, g := range groups {
		w.WriteU32(g.n)
		w.Byte(byte(g.t))
	}
	w.WriteBytes(code.Bytes())
	return FuncBody{Body: w.Bytes()}
}

// I32ConstExpr encodes the constant expression `i32.const v; end`.
func I32ConstExpr(v int32) []byte {
	return NewExpr().I32Const(v).End().Bytes()
}

// ConstI32 evaluates a constant expression of the form `i32.const v; end`.
func ConstI32(expr []byte) (uint32, bool) {
	r := binary.NewReader(expr)
	op, err := r.ReadByte()
	if err != nil || op != OpI32Const {
		return 0, false
	}
	v, err := r.ReadS32()
	if err != nil {
		return 0, false
	}
	end, err := r.ReadByte()
	if err != nil || end != OpEnd || r.Len() != 0 {
		return 0, false
	}
	return uint32(v), true
}

// globalGetExpr decodes a constant expression of the form `global.get idx; end`.
func globalGetExpr(expr []byte) (uint32, bool) {
	r := binary.NewReader(expr)
	op, err := r.ReadByte()
	if err != nil || op != OpGlobalGet {
		return 0, false
	}
	idx, err := r.ReadU32()
	if err != nil {
		return 0, false
	}
	end, err := r.ReadByte()
	if err != nil || end != OpEnd || r.Len() != 0 {
		return 0, false
	}
	return idx, true
}

// evalRefExpr resolves `ref.func idx; end` and `ref.null t; end`.
func evalRefExpr(expr []byte) (ElemEntry, bool) {
	r := binary.NewReader(expr)
	op, err := r.ReadByte()
	if err != nil {
		return ElemEntry{}, false
	}
	var entry ElemEntry
	switch op {
	case OpRefFunc:
		idx, err := r.ReadU32()
		if err != nil {
			return ElemEntry{}, false
		}
		entry.Func = idx
	case OpRefNull:
		if _, err := r.ReadByte(); err != nil {
			return ElemEntry{}, false
		}
		entry.Null = true
	default:
		return ElemEntry{}, false
	}
	end, err := r.ReadByte()
	if err != nil || end != OpEnd {
		return ElemEntry{}, false
	}
	return entry, true
}
