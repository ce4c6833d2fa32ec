package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ArshadYameen/flex-living-dashboard/internal/domain"
)

// ---- fakes ----

// fakeBackend keeps reviews in memory and applies the same filter rules as
// the real backend.
type fakeBackend struct {
	mu          sync.Mutex
	listings    []domain.Listing
	listingsErr error
	reviews     []domain.Review
	reviewsErr  error
	approveErr  error
	syncErr     error
	syncNew     []domain.Review
	calls       map[string]int

	// hooks run outside the lock before the matching call answers
	beforeReviews func(f domain.FilterState)
	beforeApprove func()
	beforeSync    func()
}

func (b *fakeBackend) count(op string) {
	if b.calls == nil {
		b.calls = map[string]int{}
	}
	b.calls[op]++
}

func (b *fakeBackend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

func (b *fakeBackend) ListListings(ctx context.Context) ([]domain.Listing, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("listings")
	if b.listingsErr != nil {
		return nil, b.listingsErr
	}
	return slices.Clone(b.listings), nil
}

func (b *fakeBackend) GetListing(ctx context.Context, id int64) (domain.Listing, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("listing")
	for _, l := range b.listings {
		if l.ID == id {
			return l, nil
		}
	}
	return domain.Listing{}, &domain.NetworkError{Op: "listing", Status: http.StatusNotFound, Err: domain.ErrNotFound}
}

func (b *fakeBackend) ListReviews(ctx context.Context, f domain.FilterState) ([]domain.Review, error) {
	if b.beforeReviews != nil {
		b.beforeReviews(f)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("reviews")
	if b.reviewsErr != nil {
		return nil, b.reviewsErr
	}
	out := []domain.Review{}
	for _, r := range b.reviews {
		if f.ListingID != nil && r.ListingID != *f.ListingID {
			continue
		}
		if f.MinRating != nil && r.OverallRating < float64(*f.MinRating) {
			continue
		}
		if f.Channel != "" && r.Channel != f.Channel {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (b *fakeBackend) ListPublicReviews(ctx context.Context, listingID int64) ([]domain.Review, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("public")
	if b.reviewsErr != nil {
		return nil, b.reviewsErr
	}
	out := []domain.Review{}
	for _, r := range b.reviews {
		if r.ListingID == listingID && r.IsApproved {
			out = append(out, r)
		}
	}
	return out, nil
}

func (b *fakeBackend) SetReviewApproval(ctx context.Context, id int64, approved bool) (domain.Review, error) {
	if b.beforeApprove != nil {
		b.beforeApprove()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("approve")
	if b.approveErr != nil {
		return domain.Review{}, b.approveErr
	}
	for i := range b.reviews {
		if b.reviews[i].ID == id {
			b.reviews[i].IsApproved = approved
			return b.reviews[i], nil
		}
	}
	return domain.Review{}, &domain.BackendRejection{Op: "approve", Status: http.StatusNotFound, Detail: "Review not found"}
}

func (b *fakeBackend) SyncListingReviews(ctx context.Context, listingID int64) (domain.SyncResult, error) {
	if b.beforeSync != nil {
		b.beforeSync()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("sync")
	if b.syncErr != nil {
		return domain.SyncResult{}, b.syncErr
	}
	added := 0
	for _, r := range b.syncNew {
		if r.ListingID == listingID {
			b.reviews = append(b.reviews, r)
			added++
		}
	}
	return domain.SyncResult{NewReviewsAdded: added}, nil
}

func (b *fakeBackend) set(fn func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *fakeBackend) review(id int64) domain.Review {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.reviews {
		if r.ID == id {
			return r
		}
	}
	return domain.Review{}
}

// fakeCache stores JSON like the redis adapter does, so cached values never
// alias the caller's slices.
type fakeCache struct {
	mu    sync.Mutex
	store map[string][]byte
	dels  []string
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}

func (c *fakeCache) Incr(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	var n int64
	if b, ok := c.store[key]; ok {
		if err := json.Unmarshal(b, &n); err != nil {
			return 0, err
		}
	}
	n++
	c.store[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

func (c *fakeCache) DelPrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dels = append(c.dels, prefix)
	for k := range c.store {
		if strings.HasPrefix(k, prefix) {
			delete(c.store, k)
		}
	}
	return nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.store[key]
	return ok
}

type fakeJournal struct {
	mu     sync.Mutex
	events []domain.ModerationEvent
	err    error
}

func (j *fakeJournal) Record(ctx context.Context, e domain.ModerationEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.events = append(j.events, e)
	return nil
}

func (j *fakeJournal) Recent(ctx context.Context, limit int) ([]domain.ModerationEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := slices.Clone(j.events)
	slices.Reverse(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (j *fakeJournal) all() []domain.ModerationEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.events)
}

// ---- fixtures ----

func ptr[T any](v T) *T { return &v }

func at(day int) domain.Timestamp {
	return domain.Timestamp{Time: time.Date(2024, 3, day, 12, 0, 0, 0, time.UTC)}
}

func seedBackend() *fakeBackend {
	return &fakeBackend{
		listings: []domain.Listing{
			{ID: 1, Name: "Shoreditch Heights"},
			{ID: 2, Name: "Camden Loft"},
		},
		reviews: []domain.Review{
			{ID: 10, ListingID: 1, GuestName: "Ana", Channel: "hostaway", OverallRating: 7, SubmittedAt: at(1),
				CategoryRatings: []*domain.CategoryRating{{Category: "cleanliness", Rating: 8}, {Category: "respect_house_rules", Rating: 10}}},
			{ID: 11, ListingID: 1, GuestName: "Ben", Channel: "google", OverallRating: 8, SubmittedAt: at(2), IsApproved: true,
				CategoryRatings: []*domain.CategoryRating{{Category: "cleanliness", Rating: 9}, nil}},
			{ID: 12, ListingID: 2, GuestName: "Cleo", Channel: "hostaway", OverallRating: 9, SubmittedAt: at(3)},
		},
	}
}
