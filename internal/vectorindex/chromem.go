package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	chromem "github.com/philippgille/chromem-go"
)

// errNoEmbedder guards against chromem embedding content on its own;
// every record and query arrives with a vector already computed.
var errNoEmbedder = errors.New("vectorindex: embeddings must be supplied by the caller")

func noEmbedding(context.Context, string) ([]float32, error) { return nil, errNoEmbedder }

// Chromem stores vectors in a chromem-go collection, persisted to disk when opened
// with OpenChromem.
type Chromem struct {
	col *chromem.Collection
}

var _ Index = (*Chromem)(nil)

// OpenChromem opens (or creates) a persistent database under dir.
func OpenChromem(dir, collection string) (*Chromem, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create vector dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	return NewChromem(db, collection)
}

// NewChromem uses an existing database, e.g. chromem.NewDB() for an in-memory index.
func NewChromem(db *chromem.DB, collection string) (*Chromem, error) {
	col, err := db.GetOrCreateCollection(collection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("open collection %q: %w", collection, err)
	}
	return &Chromem{col: col}, nil
}

func (c *Chromem) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	count := c.col.Count()
	if count == 0 || topK <= 0 {
		return nil, nil
	}
	// chromem rejects nResults greater than the collection size
	if topK > count {
		topK = count
	}

	results, err := c.col.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(results))
	for _, r := range results {
		text := r.Metadata[MetadataTextKey]
		if text == "" {
			text = r.Content
		}
		out = append(out, Match{ID: r.ID, Score: r.Similarity, Text: text})
	}
	return out, nil
}

func (c *Chromem) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		docs = append(docs, chromem.Document{
			ID:        r.ID,
			Content:   r.Text,
			Embedding: r.Values,
			Metadata:  map[string]string{MetadataTextKey: r.Text},
		})
	}
	return c.col.AddDocuments(ctx, docs, runtime.NumCPU())
}
