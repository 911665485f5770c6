package sink

import (
	"sync"

	"ipfixcore/pkg/record"
)

// Memory is an in-process Sink that retains every record it receives, in
// order. It is used by the tests and is the sink cmd/ipfixcored runs with
// when no postgres sink is configured.
type Memory struct {
	mu        sync.Mutex
	Records   [][]byte
	extMaps   map[uint16]record.ExtensionMap
	mapRefs   map[uint16]int    // mapID -> number of templates currently holding it
	tmplMap   map[uint16]uint16 // templateID -> its current mapID
	nextMapID uint16

	Exporters []ExporterInfo
	Samplers  []SamplerInfo

	cursor int
}

// NewMemory returns an empty Memory sink.
func NewMemory() *Memory {
	return &Memory{
		extMaps: make(map[uint16]record.ExtensionMap),
		mapRefs: make(map[uint16]int),
		tmplMap: make(map[uint16]uint16),
	}
}

func (m *Memory) RegisterExtensionMap(templateID uint16, em record.ExtensionMap) (uint16, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.tmplMap[templateID]; ok {
		if m.extMaps[prev].Equal(em) {
			return prev, false
		}
		m.releaseMap(prev)
	}

	for id, existing := range m.extMaps {
		if existing.Equal(em) {
			m.tmplMap[templateID] = id
			m.mapRefs[id]++
			return id, false
		}
	}
	m.nextMapID++
	id := m.nextMapID
	m.extMaps[id] = em
	m.tmplMap[templateID] = id
	m.mapRefs[id] = 1
	return id, true
}

// RemoveExtensionMap releases templateID's reference to its extension
// map, evicting the map once no template holds it any longer.
func (m *Memory) RemoveExtensionMap(templateID uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.tmplMap[templateID]
	if !ok {
		return
	}
	delete(m.tmplMap, templateID)
	m.releaseMap(id)
}

// releaseMap must be called with mu held.
func (m *Memory) releaseMap(id uint16) {
	m.mapRefs[id]--
	if m.mapRefs[id] <= 0 {
		delete(m.mapRefs, id)
		delete(m.extMaps, id)
	}
}

func (m *Memory) WriteRecord(rec []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(rec))
	copy(cp, rec)
	m.Records = append(m.Records, cp)
	m.cursor++
	return nil
}

func (m *Memory) Flush() error { return nil }

func (m *Memory) FlushExporterInfo(info ExporterInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.Exporters {
		if e.Addr == info.Addr && e.Domain == info.Domain {
			m.Exporters[i] = info
			return nil
		}
	}
	m.Exporters = append(m.Exporters, info)
	return nil
}

func (m *Memory) FlushSamplerInfo(info SamplerInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.Samplers {
		if s.Addr == info.Addr && s.Domain == info.Domain && s.ID == info.ID {
			m.Samplers[i] = info
			return nil
		}
	}
	m.Samplers = append(m.Samplers, info)
	return nil
}

// EnsureOutputSpace grows Records' backing array ahead of time so the
// next n WriteRecord calls don't reallocate mid-batch.
func (m *Memory) EnsureOutputSpace(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cap(m.Records)-len(m.Records) >= n {
		return nil
	}
	grown := make([][]byte, len(m.Records), len(m.Records)+n)
	copy(grown, m.Records)
	m.Records = grown
	return nil
}

// CurrentOutputCursor reports how many written records have not yet been
// passed to AdvanceCursor.
func (m *Memory) CurrentOutputCursor() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// AdvanceCursor lowers the pending-record count CurrentOutputCursor
// reports by n, never below zero; Memory writes are synchronous so this is
// pure bookkeeping.
func (m *Memory) AdvanceCursor(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor -= n
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// Len reports how many records have been written so far.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Records)
}

// Reset discards all retained records, keeping registered extension maps.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = nil
	m.cursor = 0
}
