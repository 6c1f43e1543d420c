package domain

import "context"

// SourceAdapter is the uniform contract every upstream implements.
// Adapters must honor the supplied deadline at every external I/O
// boundary and normalize output to the Listing contract;
// adapter-specific fields belong in the open attributes map, never in
// core columns.
type SourceAdapter interface {
	Tag() string
	Kind() SourceKind

	Search(ctx context.Context, query string, filters FilterSet, page, perPage int) ([]Listing, SourceMeta, error)
	GetDetails(ctx context.Context, sourceListingID string) (*Listing, error)
	Health(ctx context.Context) (Health, error)
}
