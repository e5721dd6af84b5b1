package wasm

import (
	"fmt"

	"github.com/wippyai/wasm-trampoline/wasm/internal/binary"
)

// AddExports returns a copy of the module binary with extra exports appended
// to its export section. All other sections are copied byte for byte.
func AddExports(data []byte, extra []Export) ([]byte, error) {
	if len(extra) == 0 {
		return data, nil
	}

	type section struct {
		payload []byte
		id      byte
	}
	var sections []section
	err := walkSections(data, func(id byte, payload []byte) error {
		sections = append(sections, section{id: id, payload: payload})
		return nil
	})
	if err != nil {
		return nil, err
	}

	var existing []Export
	exportAt := -1
	for i, s := range sections {
		if s.id != SectionExport {
			continue
		}
		m := &Module{}
		r := binary.NewReader(s.payload)
		if err := parseExportSection(r, m); err != nil {
			return nil, r.WrapError("export section", err)
		}
		existing = m.Exports
		exportAt = i
		break
	}

	taken := make(map[string]bool, len(existing))
	for _, e := range existing {
		taken[e.Name] = true
	}
	merged := append([]Export(nil), existing...)
	for _, e := range extra {
		if taken[e.Name] {
			return nil, fmt.Errorf("export %q already exists", e.Name)
		}
		taken[e.Name] = true
		merged = append(merged, e)
	}
	exportSection := encodeExportSection(merged)

	w := binary.NewWriter()
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)
	inserted := false
	for i, s := range sections {
		if i == exportAt {
			w.WriteBytes(exportSection)
			inserted = true
			continue
		}
		if !inserted && exportAt < 0 && s.id != SectionCustom && sectionOrder(s.id) > sectionOrder(SectionExport) {
			w.WriteBytes(exportSection)
			inserted = true
		}
		writeSection(w, s.id, s.payload)
	}
	if !inserted {
		w.WriteBytes(exportSection)
	}
	return w.Bytes(), nil
}
