package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ArshadYameen/flex-living-dashboard/internal/domain"
)

// Cache keys are "<operation>:<serialized params>" so that a mutation can
// drop every variant of an operation with one prefix delete. Operations a
// mutation can change also carry an epoch, "<operation>:v<epoch>:<params>".
// A mutation bumps the epoch before deleting, so a read that started
// earlier can only write its result under a key nobody reads any more.
const (
	keyListings      = "listings"
	prefixListing    = "listing:"
	prefixReviews    = "reviews:"
	prefixPublicRevs = "public:"
)

func epochKey(prefix string) string { return "epoch:" + strings.TrimSuffix(prefix, ":") }

// QueryService is the read side of the data-access layer: backend reads
// behind a cache-aside lookup. Failed reads are never cached.
type QueryService struct {
	backend  domain.Backend
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(b domain.Backend, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{backend: b, cache: c, cacheTTL: ttl}
}

func (s *QueryService) Listings(ctx context.Context) ([]domain.Listing, error) {
	var out []domain.Listing
	if s.cached(ctx, keyListings, &out) {
		return out, nil
	}
	ls, err := s.backend.ListListings(ctx)
	if err != nil {
		return nil, err
	}
	if ls == nil {
		ls = []domain.Listing{}
	}
	s.store(ctx, keyListings, ls)
	return ls, nil
}

func (s *QueryService) Listing(ctx context.Context, id int64) (domain.Listing, error) {
	key := fmt.Sprintf("%s%d", prefixListing, id)
	var out domain.Listing
	if s.cached(ctx, key, &out) {
		return out, nil
	}
	l, err := s.backend.GetListing(ctx, id)
	if err != nil {
		return domain.Listing{}, err
	}
	s.store(ctx, key, l)
	return l, nil
}

// Reviews returns the reviews matching f.
func (s *QueryService) Reviews(ctx context.Context, f domain.FilterState) ([]domain.Review, error) {
	key, ok := s.versionedKey(ctx, prefixReviews, f.Key())
	var out []domain.Review
	if ok && s.cached(ctx, key, &out) {
		return out, nil
	}
	rs, err := s.backend.ListReviews(ctx, f)
	if err != nil {
		return nil, err
	}
	if rs == nil {
		rs = []domain.Review{}
	}
	if ok {
		s.store(ctx, key, rs)
	}
	return rs, nil
}

func (s *QueryService) PublicReviews(ctx context.Context, listingID int64) ([]domain.Review, error) {
	key, ok := s.versionedKey(ctx, prefixPublicRevs, strconv.FormatInt(listingID, 10))
	var out []domain.Review
	if ok && s.cached(ctx, key, &out) {
		return out, nil
	}
	rs, err := s.backend.ListPublicReviews(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if rs == nil {
		rs = []domain.Review{}
	}
	if ok {
		s.store(ctx, key, rs)
	}
	return rs, nil
}

// versionedKey builds the key for params under the prefix's current epoch.
// ok is false when caching is off or the epoch cannot be read; the caller
// then bypasses the cache for both lookup and store.
func (s *QueryService) versionedKey(ctx context.Context, prefix, params string) (key string, ok bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return "", false
	}
	var epoch int64
	if _, err := s.cache.Get(ctx, epochKey(prefix), &epoch); err != nil {
		log.Debug().Err(err).Str("prefix", prefix).Msg("cache epoch read failed")
		return "", false
	}
	return prefix + "v" + strconv.FormatInt(epoch, 10) + ":" + params, true
}

// cached reports whether key was found and decoded into dst. Cache errors
// count as misses; the backend is always the fallback.
func (s *QueryService) cached(ctx context.Context, key string, dst any) bool {
	if s.cache == nil || s.cacheTTL <= 0 {
		return false
	}
	ok, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("cache get failed")
		return false
	}
	return ok
}

func (s *QueryService) store(ctx context.Context, key string, v any) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	if err := s.cache.Set(ctx, key, v, int(s.cacheTTL.Seconds())); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("cache set failed")
	}
}
