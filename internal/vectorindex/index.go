// Package vectorindex abstracts the similarity-search service the retrieval step queries
// and the ingestion step writes to.
package vectorindex

import "context"

// MetadataTextKey is the metadata field holding a record's source text.
const MetadataTextKey = "text"

// Record is one vector written by ingestion.
type Record struct {
	ID     string
	Values []float32
	Text   string
}

// Match is one search hit. Text is empty when the stored record carried none.
type Match struct {
	ID    string
	Score float32
	Text  string
}

// Index is a nearest-neighbour store. Query returns hits ordered by descending similarity.
type Index interface {
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
	Upsert(ctx context.Context, records []Record) error
}
