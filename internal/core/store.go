package core

import "context"

// SourceRepository stores raw tables, including the outputs of merges.
type SourceRepository interface {
	// GetSource returns a *NotFoundError when id is unknown.
	GetSource(ctx context.Context, id string) (TableSource, error)
	PutSource(ctx context.Context, src TableSource) error
	ListSources(ctx context.Context) ([]SourceInfo, error)
	DeleteSource(ctx context.Context, id string) error
}

// MergeRepository stores the specs of derived tables, keyed by DerivedID.
type MergeRepository interface {
	PutMerge(ctx context.Context, spec MergeSpec) error
	// GetMerge returns a *NotFoundError when derivedID has no spec.
	GetMerge(ctx context.Context, derivedID string) (MergeSpec, error)
	ListMerges(ctx context.Context) ([]MergeSpec, error)
	DeleteMerge(ctx context.Context, derivedID string) error
}

// Store is the persistence boundary of the engine.
type Store interface {
	SourceRepository
	MergeRepository
	SettingsStore
	Close() error
}
