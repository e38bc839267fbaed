// Package rag orchestrates the two pipelines of the service: ingestion
// (document text to stored, embedded chunks) and retrieval (question to
// ranked context and a synthesized answer). The pipelines share only the
// embedding provider cache and the vector store.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/notabene-labs/notabene/internal/chunker"
	"github.com/notabene-labs/notabene/internal/embedding"
	"github.com/notabene-labs/notabene/internal/observability"
	"github.com/notabene-labs/notabene/internal/vector"
)

// chunkMetadata is the provenance attached to every chunk, serialized to
// JSON at the storage boundary. The store treats it as an opaque blob.
type chunkMetadata struct {
	DocumentName string `json:"document_name"`
	ChunkIndex   int    `json:"chunk_index"`
	UploadDate   string `json:"upload_date"`
}

// IngestResult reports a completed ingestion.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
}

// RetrievalResult is the ephemeral outcome of a similarity search. It is
// never persisted.
type RetrievalResult struct {
	// Contents holds the matched chunk texts in descending similarity
	// order, ties left in store order.
	Contents []string
	// Scores holds the similarity score per content entry.
	Scores []float32
	// Sources is the deduplicated set of contributing document names,
	// sorted for stable output.
	Sources []string
}

// Answer is the response to an ask request.
type Answer struct {
	Answer            string   `json:"answer"`
	Sources           []string `json:"sources"`
	ContextChunkCount int      `json:"context_chunk_count"`
}

// DocumentInfo summarizes one ingested document for listing.
type DocumentInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ChunkCount int    `json:"chunk_count"`
	UploadDate string `json:"upload_date"`
}

// Health reports service dependency status.
type Health struct {
	StoreConnected bool     `json:"store_connected"`
	LoadedModels   []string `json:"loaded_models"`
}

// Service wires the chunker, embedding cache, vector store and synthesizer
// into the ingestion and retrieval pipelines. It is safe for concurrent use.
type Service struct {
	splitter  *chunker.Splitter
	providers *embedding.Cache
	store     vector.Store
	synth     *Synthesizer
	logger    *slog.Logger
}

// NewService creates the orchestration service.
func NewService(splitter *chunker.Splitter, providers *embedding.Cache, store vector.Store, synth *Synthesizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		splitter:  splitter,
		providers: providers,
		store:     store,
		synth:     synth,
		logger:    logger,
	}
}

// Ingest chunks the document text, embeds every chunk in order, and stores
// the batch under a fresh document id. The insert is a single batch that is
// durable before Ingest returns; a failure anywhere leaves no chunks
// observable as a successful document.
func (s *Service) Ingest(ctx context.Context, name, text, model string) (*IngestResult, error) {
	ctx, span := otel.Tracer(observability.TracerName).Start(ctx, "rag.ingest")
	defer span.End()
	span.SetAttributes(attribute.String("document.name", name))

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("document %q: %w", name, ErrEmptyDocument)
	}

	chunks := s.splitter.Split(text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %q: %w", name, ErrEmptyDocument)
	}

	provider, err := s.providers.Get(ctx, model)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	embedCtx, embedSpan := observability.StartEmbeddingSpan(ctx, model, len(chunks))
	vectors, err := provider.EmbedBatch(embedCtx, chunks)
	if err != nil {
		observability.RecordError(embedSpan, err)
		embedSpan.End()
		observability.RecordError(span, err)
		return nil, fmt.Errorf("embedding %d chunks with %s: %w", len(chunks), provider.Name(), err)
	}
	embedSpan.End()
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding %d chunks with %s: got %d vectors", len(chunks), provider.Name(), len(vectors))
	}

	if err := s.store.EnsureReady(ctx, provider.Dimension()); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	docUUID := uuid.New()
	uploaded := time.Now().UTC().Format(time.RFC3339)

	rows := make([]vector.Chunk, len(chunks))
	for i, content := range chunks {
		meta, err := json.Marshal(chunkMetadata{
			DocumentName: name,
			ChunkIndex:   i,
			UploadDate:   uploaded,
		})
		if err != nil {
			return nil, fmt.Errorf("serializing chunk metadata: %w", err)
		}
		rows[i] = vector.Chunk{
			// Chunk ids are derived from (document id, index) so the same
			// document position always maps to the same id.
			ID:         uuid.NewSHA1(docUUID, []byte(strconv.Itoa(i))).String(),
			DocumentID: docUUID.String(),
			Content:    content,
			Vector:     vectors[i],
			Metadata:   string(meta),
		}
	}

	if err := s.store.Insert(ctx, rows); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("document.chunks", len(chunks)))
	s.logger.Info("document ingested",
		"document_id", docUUID.String(), "name", name,
		"chunks", len(chunks), "model", model)

	return &IngestResult{DocumentID: docUUID.String(), ChunkCount: len(chunks)}, nil
}

// Retrieve embeds the question and runs a top-k similarity search. A search
// that matches nothing returns ErrNoRelevantDocuments; a dimension mismatch
// between the model and the collection fails before any search runs.
func (s *Service) Retrieve(ctx context.Context, question, model string, topK int) (*RetrievalResult, error) {
	ctx, span := otel.Tracer(observability.TracerName).Start(ctx, "rag.retrieve")
	defer span.End()
	span.SetAttributes(attribute.Int("retrieve.top_k", topK))

	if topK <= 0 {
		return nil, fmt.Errorf("top_k %d: %w", topK, ErrInvalidTopK)
	}

	provider, err := s.providers.Get(ctx, model)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	embedCtx, embedSpan := observability.StartEmbeddingSpan(ctx, model, 1)
	vectors, err := provider.EmbedBatch(embedCtx, []string{question})
	if err != nil {
		observability.RecordError(embedSpan, err)
		embedSpan.End()
		observability.RecordError(span, err)
		return nil, fmt.Errorf("embedding question with %s: %w", provider.Name(), err)
	}
	embedSpan.End()
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding question with %s: got %d vectors", provider.Name(), len(vectors))
	}

	if err := s.store.EnsureReady(ctx, provider.Dimension()); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	matches, err := s.store.Search(ctx, vectors[0], topK)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNoRelevantDocuments
	}

	result := &RetrievalResult{
		Contents: make([]string, 0, len(matches)),
		Scores:   make([]float32, 0, len(matches)),
	}
	sources := make(map[string]struct{})
	for _, m := range matches {
		result.Contents = append(result.Contents, m.Content)
		result.Scores = append(result.Scores, m.Score)

		var meta chunkMetadata
		if err := json.Unmarshal([]byte(m.Metadata), &meta); err != nil || meta.DocumentName == "" {
			// Metadata written by an older or foreign writer; fall back to
			// the document id so the source is still attributable.
			sources[m.DocumentID] = struct{}{}
			continue
		}
		sources[meta.DocumentName] = struct{}{}
	}
	for name := range sources {
		result.Sources = append(result.Sources, name)
	}
	sort.Strings(result.Sources)

	span.SetAttributes(attribute.Int("retrieve.matches", len(matches)))
	return result, nil
}

// Ask runs retrieval then synthesis. Retrieval failures propagate; synthesis
// never fails, falling back to a deterministic answer built from the
// retrieved context.
func (s *Service) Ask(ctx context.Context, question, model string, topK int) (*Answer, error) {
	ctx, span := otel.Tracer(observability.TracerName).Start(ctx, "rag.ask")
	defer span.End()

	res, err := s.Retrieve(ctx, question, model, topK)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	answer := s.synth.Synthesize(ctx, question, res.Contents)
	return &Answer{
		Answer:            answer,
		Sources:           res.Sources,
		ContextChunkCount: len(res.Contents),
	}, nil
}

// ListDocuments enumerates ingested documents by scanning stored chunk rows
// and grouping them by document id. There is no separate document registry;
// the scan is linear in the total chunk count.
func (s *Service) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := s.store.Rows(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*DocumentInfo)
	for _, row := range rows {
		info, ok := byID[row.DocumentID]
		if !ok {
			info = &DocumentInfo{ID: row.DocumentID}
			byID[row.DocumentID] = info
		}
		info.ChunkCount++

		if info.Name == "" {
			var meta chunkMetadata
			if err := json.Unmarshal([]byte(row.Metadata), &meta); err == nil {
				info.Name = meta.DocumentName
				info.UploadDate = meta.UploadDate
			}
		}
	}

	docs := make([]DocumentInfo, 0, len(byID))
	for _, info := range byID {
		docs = append(docs, *info)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Name != docs[j].Name {
			return docs[i].Name < docs[j].Name
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

// DeleteDocument removes every chunk of the document. Deleting an unknown
// id is a no-op, not an error.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	s.logger.Info("document deleted", "document_id", documentID)
	return nil
}

// CheckHealth reports store connectivity and the embedding models loaded so
// far. It never returns an error; an unreachable store is a reported state.
func (s *Service) CheckHealth(ctx context.Context) Health {
	h := Health{LoadedModels: s.providers.Loaded()}
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("vector store unreachable", "error", err)
		return h
	}
	h.StoreConnected = true
	return h
}
