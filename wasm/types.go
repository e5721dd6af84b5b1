package wasm

// Module is a decoded core WebAssembly module.
//
// Only the parts needed to reason about a module's indirect function table
// are decoded structurally. Function bodies and data segments are kept as
// raw bytes.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // type indices of defined functions
	Tables   []TableType
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Start    *uint32
	Elements []Element
	Code     []FuncBody
	Data     []DataSegment

	CustomSections []CustomSection
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two signatures are identical.
func (f FuncType) Equal(o FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// ValType is a WebAssembly value type.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	default:
		return "unknown"
	}
}

// Import is an imported function, table, memory or global.
type Import struct {
	Desc   ImportDesc
	Module string
	Name   string
}

// ImportDesc describes an imported item. Kind selects the populated field.
type ImportDesc struct {
	Table   *TableType
	Memory  *MemoryType
	Global  *GlobalType
	TypeIdx uint32
	Kind    byte
}

// TableType describes a table.
type TableType struct {
	Limits   Limits
	ElemType ValType
}

// MemoryType describes a linear memory.
type MemoryType struct {
	Limits Limits
}

// Limits are size constraints for tables and memories.
type Limits struct {
	Max      *uint64
	Min      uint64
	Shared   bool
	Memory64 bool
}

// GlobalType describes a global's type and mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global is a defined global with its raw init expression (including end).
type Global struct {
	Type GlobalType
	Init []byte
}

// Export describes an exported item.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Element is an element segment.
// Flags select the encoding:
//   - 0: active, table 0, offset, vec(funcidx)
//   - 1: passive, elemkind, vec(funcidx)
//   - 2: active, table, offset, elemkind, vec(funcidx)
//   - 3: declarative, elemkind, vec(funcidx)
//   - 4-7: as 0-3 with vec(expr) and reftype
type Element struct {
	Offset   []byte
	FuncIdxs []uint32
	Exprs    [][]byte
	Flags    uint32
	TableIdx uint32
	ElemKind byte
	Type     ValType
}

// Active reports whether the segment initializes a table at instantiation.
func (e *Element) Active() bool {
	return e.Flags&0x01 == 0
}

// ElemEntry is one resolved element: a function reference or null.
type ElemEntry struct {
	Func uint32
	Null bool
}

// Entries resolves the segment's items. Expressions other than ref.func and
// ref.null yield ok=false.
func (e *Element) Entries() ([]ElemEntry, bool) {
	if e.Flags&0x04 == 0 {
		out := make([]ElemEntry, len(e.FuncIdxs))
		for i, idx := range e.FuncIdxs {
			out[i] = ElemEntry{Func: idx}
		}
		return out, true
	}
	out := make([]ElemEntry, len(e.Exprs))
	for i, expr := range e.Exprs {
		entry, ok := evalRefExpr(expr)
		if !ok {
			return nil, false
		}
		out[i] = entry
	}
	return out, true
}

// OffsetI32 evaluates an active segment's offset when it is an i32.const.
// Use Module.ElementOffset to also follow defined globals.
func (e *Element) OffsetI32() (uint32, bool) {
	return ConstI32(e.Offset)
}

// ElementOffset evaluates an active segment's offset. Besides i32.const it
// follows global.get of defined immutable i32 globals with constant
// initializers. Offsets from imported globals are known only at
// instantiation and yield ok=false.
func (m *Module) ElementOffset(e *Element) (uint32, bool) {
	if v, ok := ConstI32(e.Offset); ok {
		return v, true
	}
	idx, ok := globalGetExpr(e.Offset)
	if !ok {
		return 0, false
	}
	return m.constGlobalI32(idx)
}

// constGlobalI32 resolves a defined immutable i32 global. Initializers may
// only refer to lower indices, which bounds the walk.
func (m *Module) constGlobalI32(idx uint32) (uint32, bool) {
	imported := uint32(m.countImports(KindGlobal))
	for {
		if idx < imported || idx-imported >= uint32(len(m.Globals)) {
			return 0, false
		}
		g := m.Globals[idx-imported]
		if g.Type.Mutable || g.Type.ValType != ValI32 {
			return 0, false
		}
		if v, ok := ConstI32(g.Init); ok {
			return v, true
		}
		next, ok := globalGetExpr(g.Init)
		if !ok || next >= idx {
			return 0, false
		}
		idx = next
	}
}

// FuncBody is a function's raw body (locals and code, without the size prefix).
type FuncBody struct {
	Body []byte
}

// DataSegment is a raw data segment entry.
type DataSegment struct {
	Raw []byte
}

// CustomSection holds a named custom section's payload.
type CustomSection struct {
	Name string
	Data []byte
}

// NumImportedFuncs returns the number of imported functions.
func (m *Module) NumImportedFuncs() int {
	return m.countImports(KindFunc)
}

// NumImportedTables returns the number of imported tables.
func (m *Module) NumImportedTables() int {
	return m.countImports(KindTable)
}

// NumImportedMemories returns the number of imported memories.
func (m *Module) NumImportedMemories() int {
	return m.countImports(KindMemory)
}

func (m *Module) countImports(kind byte) int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == kind {
			n++
		}
	}
	return n
}

// FuncType returns the signature of the function at funcIdx in the
// function index space (imports first), or nil if out of range.
func (m *Module) FuncType(funcIdx uint32) *FuncType {
	for _, imp := range m.Imports {
		if imp.Desc.Kind != KindFunc {
			continue
		}
		if funcIdx == 0 {
			return m.typeAt(imp.Desc.TypeIdx)
		}
		funcIdx--
	}
	if int(funcIdx) >= len(m.Funcs) {
		return nil
	}
	return m.typeAt(m.Funcs[funcIdx])
}

func (m *Module) typeAt(idx uint32) *FuncType {
	if int(idx) >= len(m.Types) {
		return nil
	}
	return &m.Types[idx]
}

// TableType returns the type of the table at tableIdx (imports first).
func (m *Module) TableType(tableIdx uint32) *TableType {
	for _, imp := range m.Imports {
		if imp.Desc.Kind != KindTable {
			continue
		}
		if tableIdx == 0 {
			return imp.Desc.Table
		}
		tableIdx--
	}
	if int(tableIdx) >= len(m.Tables) {
		return nil
	}
	return &m.Tables[tableIdx]
}

// FindExport returns the export with the given name and kind.
func (m *Module) FindExport(name string, kind byte) (Export, bool) {
	for _, exp := range m.Exports {
		if exp.Name == name && exp.Kind == kind {
			return exp, true
		}
	}
	return Export{}, false
}

// AddType appends ft unless an equal signature exists and returns its index.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}
