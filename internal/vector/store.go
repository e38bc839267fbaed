// Package vector defines the chunk storage and similarity search contract.
package vector

import "context"

// MaxContentLen bounds the stored content of a single chunk.
const MaxContentLen = 65535

// MaxMetadataLen bounds the serialized metadata blob of a single chunk.
const MaxMetadataLen = 1000

// Chunk is one storage row: a text span of a document with its embedding.
type Chunk struct {
	ID         string
	DocumentID string
	Content    string
	Vector     []float32
	// Metadata is an opaque serialized blob; the store never interprets it.
	Metadata string
}

// SearchResult is a single match from a similarity search.
type SearchResult struct {
	ID         string
	DocumentID string
	Score      float32
	Content    string
	Metadata   string
}

// Row is the projection used to enumerate documents by scanning chunks.
type Row struct {
	DocumentID string
	Metadata   string
}

// Store provides vector storage with similarity search over one collection.
type Store interface {
	// EnsureReady verifies the store is reachable and the collection exists
	// with the given embedding dimension, creating it if absent. It is called
	// on every request and must be a cheap no-op once the collection exists.
	// A pre-existing collection with a different dimension is a
	// configuration error (*DimensionMismatchError), never migrated.
	EnsureReady(ctx context.Context, dimension int) error

	// Insert writes all chunks as one batch and waits until they are
	// durable before returning.
	Insert(ctx context.Context, chunks []Chunk) error

	// Search returns the topK most similar chunks in descending score order.
	Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)

	// Rows scans document id and metadata for every stored chunk.
	Rows(ctx context.Context) ([]Row, error)

	// DeleteDocument removes every chunk belonging to the document.
	DeleteDocument(ctx context.Context, documentID string) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
