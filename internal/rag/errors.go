package rag

import "errors"

var (
	// ErrEmptyDocument rejects ingestion of a document with no text.
	ErrEmptyDocument = errors.New("document text is empty")

	// ErrInvalidTopK rejects retrieval with a non-positive result count.
	ErrInvalidTopK = errors.New("top_k must be positive")

	// ErrNoRelevantDocuments reports a search that matched nothing. The
	// store itself is healthy; nothing relevant has been indexed.
	ErrNoRelevantDocuments = errors.New("no relevant documents found")
)
