package research

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve"
	"github.com/google/uuid"
)

// Note is one completed research result retained for later recall.
type Note struct {
	ID          string    `json:"id"`
	UserAddress string    `json:"user_address,omitempty"`
	Operation   string    `json:"operation"`
	Query       string    `json:"query,omitempty"`
	Token       string    `json:"token,omitempty"`
	Summary     string    `json:"summary"`
	Degraded    bool      `json:"degraded"`
	CreatedAt   time.Time `json:"created_at"`
}

// Hit is one search result from the note index.
type Hit struct {
	Note  Note    `json:"note"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// Index keeps a BM25 index over research notes plus a side map with the full
// payloads, since bleve stores only what it indexes.
type Index struct {
	mu    sync.RWMutex
	index bleve.Index
	notes map[string]Note
}

// NewIndex opens the note index at path, creating it when absent. An empty
// path keeps the whole index in memory.
func NewIndex(path string) (*Index, error) {
	var (
		idx bleve.Index
		err error
	)
	if strings.TrimSpace(path) == "" {
		idx, err = bleve.NewMemOnly(bleve.NewIndexMapping())
	} else {
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, bleve.NewIndexMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("opening research index: %w", err)
	}
	return &Index{index: idx, notes: make(map[string]Note)}, nil
}

// Add indexes a note. A missing ID or timestamp is filled in.
func (ix *Index) Add(note Note) error {
	if strings.TrimSpace(note.ID) == "" {
		note.ID = uuid.New().String()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.index.Index(note.ID, note); err != nil {
		return fmt.Errorf("indexing research note: %w", err)
	}
	ix.notes[note.ID] = note
	return nil
}

// Search runs a query-string search and returns up to limit notes by score.
func (ix *Index) Search(query string, limit int) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query is empty")
	}
	if limit <= 0 {
		limit = 10
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit*3, 0, false)
	res, err := ix.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching research notes: %w", err)
	}

	hits := make([]Hit, 0, limit)
	for i, hit := range res.Hits {
		note, ok := ix.notes[hit.ID]
		if !ok {
			continue
		}
		hits = append(hits, Hit{Note: note, Score: hit.Score, Rank: i + 1})
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

// Len reports how many notes the index holds.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.notes)
}

// Close releases the underlying index.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.index.Close()
}
