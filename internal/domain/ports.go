package domain

import "context"

// Backend is the review service the dashboard talks to. It owns all
// persistence; the dashboard only reads and requests changes.
type Backend interface {
	ListListings(ctx context.Context) ([]Listing, error)
	GetListing(ctx context.Context, id int64) (Listing, error)
	ListReviews(ctx context.Context, f FilterState) ([]Review, error)
	ListPublicReviews(ctx context.Context, listingID int64) ([]Review, error)
	SetReviewApproval(ctx context.Context, reviewID int64, approved bool) (Review, error)
	SyncListingReviews(ctx context.Context, listingID int64) (SyncResult, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	DelPrefix(ctx context.Context, prefix string) error
	// Incr atomically bumps an integer counter and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
}

// Journal records the dashboard's own moderation actions.
type Journal interface {
	Record(ctx context.Context, e ModerationEvent) error
	Recent(ctx context.Context, limit int) ([]ModerationEvent, error)
}
