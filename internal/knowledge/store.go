// Package knowledge backs the agent's knowledge-base tool with vector
// search over qdrant. Documents about products, prices and services are
// embedded once at ingest time; at answer time the customer's question
// is embedded and matched against the collection.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/atendezap/atendezap/internal/config"
	"github.com/atendezap/atendezap/internal/providers"
)

// Snippet is one retrieved knowledge-base passage.
type Snippet struct {
	Title   string
	Content string
	Score   float32
}

// Document is an ingestable knowledge-base entry.
type Document struct {
	ID      string
	Title   string
	Content string
}

// Searcher is the retrieval capability the knowledge tool consumes.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Snippet, error)
}

// Store is a qdrant-backed Searcher.
type Store struct {
	client     *qdrant.Client
	collection string
	embedder   providers.Embedder
	minScore   float32
}

// NewStore connects to qdrant over gRPC. The collection is created on
// first ingest, not here, so a read-only deployment can start without
// create permissions.
func NewStore(cfg config.KnowledgeConfig, embedder providers.Embedder) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.QdrantHost,
		Port: cfg.QdrantPort,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Store{
		client:     client,
		collection: cfg.Collection,
		embedder:   embedder,
		minScore:   0.3,
	}, nil
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// EnsureCollection creates the collection with the given vector size if
// it does not exist yet.
func (s *Store) EnsureCollection(ctx context.Context, dim uint64) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("qdrant collection check: %w", err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dim,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	slog.Info("knowledge collection created", "collection", s.collection, "dim", dim)
	return nil
}

// UpsertDocument embeds and stores one document. A document with the
// same ID replaces the previous version.
func (s *Store) UpsertDocument(ctx context.Context, doc Document) error {
	text := strings.TrimSpace(doc.Content)
	if text == "" {
		return fmt.Errorf("document %q has no content", doc.ID)
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed document %q: %w", doc.ID, err)
	}
	if err := s.EnsureCollection(ctx, uint64(len(vec))); err != nil {
		return err
	}

	id := doc.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(id),
			Vectors: qdrant.NewVectors(vec...),
			Payload: qdrant.NewValueMap(map[string]any{
				"title":   doc.Title,
				"content": text,
			}),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// Search embeds the query and returns the closest passages above the
// similarity floor, best first.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]Snippet, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 3
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	snippets := make([]Snippet, 0, len(points))
	for _, p := range points {
		if p.GetScore() < s.minScore {
			continue
		}
		payload := p.GetPayload()
		snippets = append(snippets, Snippet{
			Title:   payload["title"].GetStringValue(),
			Content: payload["content"].GetStringValue(),
			Score:   p.GetScore(),
		})
	}
	return snippets, nil
}

// FormatSnippets renders retrieved passages for the model's tool result.
func FormatSnippets(snippets []Snippet) string {
	if len(snippets) == 0 {
		return "Nenhuma informação encontrada na base de conhecimento."
	}
	var b strings.Builder
	for i, s := range snippets {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if s.Title != "" {
			fmt.Fprintf(&b, "%d. %s\n%s", i+1, s.Title, s.Content)
		} else {
			fmt.Fprintf(&b, "%d. %s", i+1, s.Content)
		}
	}
	return b.String()
}
