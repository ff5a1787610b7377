package vectorindex

import (
	"context"
	"sort"
	"sync"

	"gwi.com/rag-assistant/internal/utils"
)

// Memory is an in-process index that scores every record by cosine similarity.
// It is meant for development and tests.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
	order   []string
}

var _ Index = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{records: map[string]Record{}}
}

type scoredRecord struct {
	Record     Record
	Similarity float32
}

func (m *Memory) Query(_ context.Context, vector []float32, topK int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	scored := make([]scoredRecord, 0, len(m.records))
	for _, id := range m.order {
		rec := m.records[id]
		similarity, err := utils.CosineSimilarity(vector, rec.Values)
		if err != nil {
			continue // dimension mismatch or empty vector
		}
		scored = append(scored, scoredRecord{Record: rec, Similarity: similarity})
	}

	// Sort by similarity in descending order, insertion order breaks ties
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	out := make([]Match, 0, len(scored))
	for _, s := range scored {
		out = append(out, Match{ID: s.Record.ID, Score: s.Similarity, Text: s.Record.Text})
	}
	return out, nil
}

func (m *Memory) Upsert(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if _, exists := m.records[r.ID]; !exists {
			m.order = append(m.order, r.ID)
		}
		r.Values = append([]float32(nil), r.Values...)
		m.records[r.ID] = r
	}
	return nil
}

// Len reports how many records are stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
