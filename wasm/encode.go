package wasm

import (
	"github.com/wippyai/wasm-trampoline/wasm/internal/binary"
)

// Encode encodes the module to WebAssembly binary format.
func (m *Module) Encode() []byte {
	w := binary.NewWriter()
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	if len(m.Types) > 0 {
		writeVecSection(w, SectionType, len(m.Types), func(sec *binary.Writer, i int) {
			sec.Byte(FuncTypeByte)
			writeValTypes(sec, m.Types[i].Params)
			writeValTypes(sec, m.Types[i].Results)
		})
	}

	if len(m.Imports) > 0 {
		writeVecSection(w, SectionImport, len(m.Imports), func(sec *binary.Writer, i int) {
			imp := m.Imports[i]
			sec.WriteName(imp.Module)
			sec.WriteName(imp.Name)
			sec.Byte(imp.Desc.Kind)
			switch imp.Desc.Kind {
			case KindFunc:
				sec.WriteU32(imp.Desc.TypeIdx)
			case KindTable:
				writeTableType(sec, *imp.Desc.Table)
			case KindMemory:
				writeLimits(sec, imp.Desc.Memory.Limits)
			case KindGlobal:
				writeGlobalType(sec, *imp.Desc.Global)
			}
		})
	}

	if len(m.Funcs) > 0 {
		writeVecSection(w, SectionFunction, len(m.Funcs), func(sec *binary.Writer, i int) {
			sec.WriteU32(m.Funcs[i])
		})
	}

	if len(m.Tables) > 0 {
		writeVecSection(w, SectionTable, len(m.Tables), func(sec *binary.Writer, i int) {
			writeTableType(sec, m.Tables[i])
		})
	}

	if len(m.Memories) > 0 {
		writeVecSection(w, SectionMemory, len(m.Memories), func(sec *binary.Writer, i int) {
			writeLimits(sec, m.Memories[i].Limits)
		})
	}

	if len(m.Globals) > 0 {
		writeVecSection(w, SectionGlobal, len(m.Globals), func(sec *binary.Writer, i int) {
			writeGlobalType(sec, m.Globals[i].Type)
			sec.WriteBytes(m.Globals[i].Init)
		})
	}

	if len(m.Exports) > 0 {
		w.WriteBytes(encodeExportSection(m.Exports))
	}

	if m.Start != nil {
		sec := binary.NewWriter()
		sec.WriteU32(*m.Start)
		writeSection(w, SectionStart, sec.Bytes())
	}

	if len(m.Elements) > 0 {
		writeVecSection(w, SectionElement, len(m.Elements), func(sec *binary.Writer, i int) {
			writeElement(sec, &m.Elements[i])
		})
	}

	if len(m.Code) > 0 {
		writeVecSection(w, SectionCode, len(m.Code), func(sec *binary.Writer, i int) {
			sec.WriteU32(uint32(len(m.Code[i].Body)))
			sec.WriteBytes(m.Code[i].Body)
		})
	}

	if len(m.Data) > 0 {
		writeVecSection(w, SectionData, len(m.Data), func(sec *binary.Writer, i int) {
			sec.WriteBytes(m.Data[i].Raw)
		})
	}

	for _, cs := range m.CustomSections {
		sec := binary.NewWriter()
		sec.WriteName(cs.Name)
		sec.WriteBytes(cs.Data)
		writeSection(w, SectionCustom, sec.Bytes())
	}

	return w.Bytes()
}

func writeVecSection(w *binary.Writer, id byte, n int, item func(sec *binary.Writer, i int)) {
	sec := binary.NewWriter()
	sec.WriteU32(uint32(n))
	for i := 0; i < n; i++ {
		item(sec, i)
	}
	writeSection(w, id, sec.Bytes())
}

func writeSection(w *binary.Writer, id byte, data []byte) {
	w.Byte(id)
	w.WriteU32(uint32(len(data)))
	w.WriteBytes(data)
}

func encodeExportSection(exports []Export) []byte {
	w := binary.NewWriter()
	writeVecSection(w, SectionExport, len(exports), func(sec *binary.Writer, i int) {
		sec.WriteName(exports[i].Name)
		sec.Byte(exports[i].Kind)
		sec.WriteU32(exports[i].Idx)
	})
	return w.Bytes()
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func writeLimits(w *binary.Writer, l Limits) {
	var flags byte
	if l.Max != nil {
		flags |= LimitsHasMax
	}
	if l.Shared {
		flags |= LimitsShared
	}
	if l.Memory64 {
		flags |= LimitsMemory64
	}
	w.Byte(flags)

	if l.Memory64 {
		w.WriteU64(l.Min)
		if l.Max != nil {
			w.WriteU64(*l.Max)
		}
		return
	}
	w.WriteU32(uint32(l.Min))
	if l.Max != nil {
		w.WriteU32(uint32(*l.Max))
	}
}

func writeTableType(w *binary.Writer, t TableType) {
	w.Byte(byte(t.ElemType))
	writeLimits(w, t.Limits)
}

func writeGlobalType(w *binary.Writer, g GlobalType) {
	w.Byte(byte(g.ValType))
	if g.Mutable {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}

func writeElement(w *binary.Writer, e *Element) {
	w.WriteU32(e.Flags)
	active := e.Flags&0x01 == 0
	if active && e.Flags&0x02 != 0 {
		w.WriteU32(e.TableIdx)
	}
	if active {
		w.WriteBytes(e.Offset)
	}
	usesExprs := e.Flags&0x04 != 0
	if e.Flags&0x03 != 0 {
		if usesExprs {
			w.Byte(byte(e.Type))
		} else {
			w.Byte(e.ElemKind)
		}
	}
	if usesExprs {
		w.WriteU32(uint32(len(e.Exprs)))
		for _, expr := range e.Exprs {
			w.WriteBytes(expr)
		}
		return
	}
	w.WriteU32(uint32(len(e.FuncIdxs)))
	for _, idx := range e.FuncIdxs {
		w.WriteU32(idx)
	}
}
