package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks docwise-ai/internal/vectorstore VectorStore

import "context"

// Point represents a vector point with metadata.
type Point struct {
	ID   string
	Vec  []float32
	Meta map[string]any
}

// RawHit is a nearest-neighbor match as reported by the store. Distance is
// the store's native distance (cosine distance in [0,2] for the qdrant
// backend); score normalization happens in the retrieval layer.
type RawHit struct {
	PointID  string
	Distance float64
	Meta     map[string]any
}

// Filter restricts a search by chunk metadata. Zero-value fields are
// ignored.
type Filter struct {
	// DocumentIDs restricts hits to chunks of the given documents.
	DocumentIDs []string
	// Source restricts hits by origin ("document" or "email").
	Source string
}

// VectorStore defines the interface for the approximate-nearest-neighbor
// store backing retrieval.
type VectorStore interface {
	// Upsert inserts or updates points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns the k nearest points to query, subject to filter.
	Search(ctx context.Context, collection string, query []float32, k int, filter Filter) ([]RawHit, error)

	// Delete removes points by their IDs.
	Delete(ctx context.Context, collection string, ids []string) error

	// Count returns the number of points in the collection.
	Count(ctx context.Context, collection string) (int, error)

	// CollectionExists checks if a collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)
}
