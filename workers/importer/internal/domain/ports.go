package domain

import (
	"context"

	"adimporter/shared/domain/entity/creative"
)

// Asset is a downloaded media file held in memory.
type Asset struct {
	URL         string
	Data        []byte
	ContentType string
}

// HTTPClient fetches remote assets. Implementations retry on their own and
// take an IO slot per attempt.
type HTTPClient interface {
	Download(ctx context.Context, url string) (*Asset, error)
}

// CreativeStore persists creative metadata. Every write is an upsert.
type CreativeStore interface {
	Exists(ctx context.Context, adArchiveID string) (bool, error)
	UpsertCreative(ctx context.Context, row *creative.Row) error
	UpsertCard(ctx context.Context, row *creative.CardRow) error
	// PruneCards drops card rows with an index of keep or higher.
	PruneCards(ctx context.Context, adArchiveID string, keep int) error
}

// Hasher produces a perceptual digest of encoded image bytes.
type Hasher interface {
	HashBytes(data []byte) (string, error)
}
