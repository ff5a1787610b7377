package vectorindex

import (
	"context"
	"fmt"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

const pineconeUpsertBatch = 100

// pineconeConn is the part of *pinecone.IndexConnection the adapter uses.
type pineconeConn interface {
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	Close() error
}

// Pinecone queries and writes a hosted Pinecone index through the official SDK.
type Pinecone struct {
	conn pineconeConn
}

var _ Index = (*Pinecone)(nil)

// NewPinecone connects to the index host shown in the Pinecone console.
func NewPinecone(host, apiKey string) (*Pinecone, error) {
	pc, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create pinecone client: %w", err)
	}
	conn, err := pc.Index(pinecone.NewIndexConnParams{Host: host})
	if err != nil {
		return nil, fmt.Errorf("connect pinecone index %s: %w", host, err)
	}
	return &Pinecone{conn: conn}, nil
}

func (p *Pinecone) Close() error { return p.conn.Close() }

func (p *Pinecone) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	res, err := p.conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("pinecone query: %w", err)
	}

	out := make([]Match, 0, len(res.Matches))
	for _, m := range res.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		out = append(out, Match{ID: m.Vector.Id, Score: m.Score, Text: metadataText(m.Vector.Metadata)})
	}
	return out, nil
}

func (p *Pinecone) Upsert(ctx context.Context, records []Record) error {
	for start := 0; start < len(records); start += pineconeUpsertBatch {
		end := min(start+pineconeUpsertBatch, len(records))
		batch := make([]*pinecone.Vector, 0, end-start)
		for _, r := range records[start:end] {
			metadata, err := structpb.NewStruct(map[string]any{MetadataTextKey: r.Text})
			if err != nil {
				return fmt.Errorf("pinecone metadata for %s: %w", r.ID, err)
			}
			values := r.Values
			batch = append(batch, &pinecone.Vector{Id: r.ID, Values: &values, Metadata: metadata})
		}
		if _, err := p.conn.UpsertVectors(ctx, batch); err != nil {
			return fmt.Errorf("pinecone upsert: %w", err)
		}
	}
	return nil
}

func metadataText(md *pinecone.Metadata) string {
	if md == nil {
		return ""
	}
	return md.GetFields()[MetadataTextKey].GetStringValue()
}
