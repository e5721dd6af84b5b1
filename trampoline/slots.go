package trampoline

import (
	"fmt"
	"sort"

	"github.com/wippyai/wasm-trampoline/errors"
	"github.com/wippyai/wasm-trampoline/wasm"
)

// Class is how a table slot behaves under the fixed three-argument call.
type Class uint8

const (
	// ClassEmpty slots hold no statically known function. Calling one is a
	// host fault.
	ClassEmpty Class = iota
	// ClassCallable slots take at most three i32 arguments and return i32.
	ClassCallable
	// ClassTooMany slots declare more than three parameters.
	ClassTooMany
	// ClassIncompatible slots take at most three parameters but not the
	// (i32...) -> i32 shape. Calling one is a host fault.
	ClassIncompatible
)

func (c Class) String() string {
	switch c {
	case ClassEmpty:
		return "empty"
	case ClassCallable:
		return "callable"
	case ClassTooMany:
		return "too-many-args"
	case ClassIncompatible:
		return "incompatible"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Slot describes one entry of the indirect table.
type Slot struct {
	Func   uint32 // function index in the guest
	Params int
	Class  Class
}

// SlotIndex is the statically known content of a guest's indirect table,
// taken from its active element segments. It is immutable once built.
//
// Classification is static. When the guest can write the table at run time
// (table.set, table.grow, table.fill, table.copy, table.init, or an imported
// table) the index is Dynamic: strategies then resolve callable slots against
// the live table with the static signature, so a rewritten entry of another
// type faults under both.
type SlotIndex struct {
	slots   []Slot
	writers []uint32
	table   uint32
	dynamic bool
}

// ClassifySignature reports how a function type behaves as a call target.
func ClassifySignature(ft *wasm.FuncType) Class {
	if ft == nil {
		return ClassEmpty
	}
	if len(ft.Params) > MaxArity {
		return ClassTooMany
	}
	for _, p := range ft.Params {
		if p != wasm.ValI32 {
			return ClassIncompatible
		}
	}
	if len(ft.Results) != 1 || ft.Results[0] != wasm.ValI32 {
		return ClassIncompatible
	}
	return ClassCallable
}

// NewSlotIndex indexes the table the module exports under tableExport.
func NewSlotIndex(m *wasm.Module, tableExport string) (*SlotIndex, error) {
	exp, ok := m.FindExport(tableExport, wasm.KindTable)
	if !ok {
		return nil, errors.MissingExport(errors.PhaseLoad, tableExport, "indirect function table")
	}
	return IndexTable(m, exp.Idx)
}

// IndexTable indexes the module's table at tableIdx. Segments that do not
// fit the table are rejected with ErrInvalidTable.
func IndexTable(m *wasm.Module, tableIdx uint32) (*SlotIndex, error) {
	tt := m.TableType(tableIdx)
	if tt == nil {
		return nil, fmt.Errorf("table %d out of range", tableIdx)
	}
	if tt.ElemType != wasm.ValFuncRef {
		return nil, fmt.Errorf("table %d holds %s, not funcref", tableIdx, tt.ElemType)
	}

	imported := int(tableIdx) < m.NumImportedTables()
	limit := tt.Limits.Min
	if imported && tt.Limits.Max != nil {
		// an imported table may be larger than it declares
		limit = *tt.Limits.Max
	}

	idx := &SlotIndex{table: tableIdx, dynamic: imported}
	for i := range m.Elements {
		elem := &m.Elements[i]
		if !elem.Active() || elem.TableIdx != tableIdx {
			continue
		}
		offset, ok := m.ElementOffset(elem)
		if !ok {
			Logger().Sugar().Warnf("element segment %d: offset is not a constant, its slots are treated as empty", i)
			continue
		}
		entries, ok := elem.Entries()
		if !ok {
			Logger().Sugar().Warnf("element segment %d: non-constant entries, its slots are treated as empty", i)
			continue
		}
		end := uint64(offset) + uint64(len(entries))
		if end > limit {
			return nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).
				Value(offset).
				Detail("element segment %d: %d entries at offset %d exceed table size %d", i, len(entries), offset, limit).
				Build()
		}
		idx.grow(end)
		for j, e := range entries {
			slot := offset + uint32(j)
			if e.Null {
				idx.slots[slot] = Slot{Class: ClassEmpty}
				continue
			}
			ft := m.FuncType(e.Func)
			if ft == nil {
				return nil, fmt.Errorf("element segment %d: function %d out of range", i, e.Func)
			}
			idx.slots[slot] = Slot{
				Func:   e.Func,
				Params: len(ft.Params),
				Class:  ClassifySignature(ft),
			}
		}
	}

	writers, err := m.TableWriters(tableIdx)
	if err != nil {
		Logger().Sugar().Debugf("table %d: code not fully decoded, assuming run-time writes: %v", tableIdx, err)
		idx.dynamic = true
	} else if len(writers) > 0 {
		idx.writers = writers
		idx.dynamic = true
	}
	return idx, nil
}

func (s *SlotIndex) grow(n uint64) {
	if n <= uint64(len(s.slots)) {
		return
	}
	grown := make([]Slot, n)
	copy(grown, s.slots)
	s.slots = grown
}

// Table returns the guest's index of the indexed table.
func (s *SlotIndex) Table() uint32 {
	return s.table
}

// Dynamic reports whether the table may change after instantiation.
func (s *SlotIndex) Dynamic() bool {
	return s.dynamic
}

// Writers returns the guest functions whose code writes the table.
func (s *SlotIndex) Writers() []uint32 {
	return s.writers
}

// Len returns one past the highest statically populated slot.
func (s *SlotIndex) Len() uint32 {
	return uint32(len(s.slots))
}

// Lookup returns the slot at target. Slots past Len are empty.
func (s *SlotIndex) Lookup(target uint32) Slot {
	if int(target) >= len(s.slots) {
		return Slot{Class: ClassEmpty}
	}
	return s.slots[target]
}

// Funcs returns the distinct function indices referenced by non-empty
// slots, in ascending order.
func (s *SlotIndex) Funcs() []uint32 {
	seen := make(map[uint32]bool)
	var out []uint32
	for _, slot := range s.slots {
		if slot.Class == ClassEmpty || seen[slot.Func] {
			continue
		}
		seen[slot.Func] = true
		out = append(out, slot.Func)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
