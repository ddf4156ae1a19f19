package retrieval

import (
	"context"
	"math"
	"sync"

	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	"github.com/zatekoja/handoff/backend/internal/domain/providers"
)

// MemoryIndex is an in-process index partitioned by patient
type MemoryIndex struct {
	mu        sync.RWMutex
	byPatient map[string]map[string]entities.RetrievalEntry
}

// NewMemoryIndex creates an empty index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{byPatient: make(map[string]map[string]entities.RetrievalEntry)}
}

var _ providers.RetrievalIndex = (*MemoryIndex)(nil)

// Upsert stores or replaces the entry for a report
func (m *MemoryIndex) Upsert(_ context.Context, entry entities.RetrievalEntry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// a report never changes patient, but drop a stale copy if it did
	for patient, entries := range m.byPatient {
		if patient != entry.PatientID {
			delete(entries, entry.ReportID)
		}
	}
	entries, ok := m.byPatient[entry.PatientID]
	if !ok {
		entries = make(map[string]entities.RetrievalEntry)
		m.byPatient[entry.PatientID] = entries
	}
	entry.Vector = append([]float32(nil), entry.Vector...)
	entries[entry.ReportID] = entry
	return nil
}

// Search scans only the requesting patient's partition
func (m *MemoryIndex) Search(_ context.Context, q entities.RetrievalQuery) ([]entities.RetrievalMatch, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []entities.RetrievalMatch
	for _, entry := range m.byPatient[q.PatientID] {
		matches = append(matches, entities.RetrievalMatch{
			ReportID:   entry.ReportID,
			PatientID:  entry.PatientID,
			Similarity: cosineSimilarity(q.Vector, entry.Vector),
		})
	}
	return finalize(matches, q), nil
}

// Len returns the number of stored entries
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, entries := range m.byPatient {
		n += len(entries)
	}
	return n
}

// cosineSimilarity returns 0 for mismatched lengths or zero vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
