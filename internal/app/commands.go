package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ArshadYameen/flex-living-dashboard/internal/adapters/observability"
	"github.com/ArshadYameen/flex-living-dashboard/internal/domain"
)

const syncFailedFallback = "Failed to sync reviews"

// CommandService is the write side: it forwards mutations to the backend,
// drops cached reads the mutation may have changed, and journals the
// outcome.
type CommandService struct {
	backend domain.Backend
	cache   domain.Cache
	journal domain.Journal
	now     func() time.Time
}

func NewCommandService(b domain.Backend, cache domain.Cache, j domain.Journal) *CommandService {
	if j == nil {
		j = NopJournal{}
	}
	return &CommandService{backend: b, cache: cache, journal: j, now: time.Now}
}

// SetApproval changes a review's public visibility. Failures come back as
// *domain.UpdateError.
func (s *CommandService) SetApproval(ctx context.Context, reviewID int64, approved bool) (domain.Review, error) {
	rv, err := s.backend.SetReviewApproval(ctx, reviewID, approved)

	ev := domain.ModerationEvent{Kind: domain.EventApproval, ReviewID: &reviewID, Approved: &approved, Outcome: domain.OutcomeOK}
	if err != nil {
		ev.Outcome, ev.Detail = domain.OutcomeFailed, err.Error()
		s.record(ctx, ev)
		log.Warn().Err(err).Int64("review_id", reviewID).Bool("approved", approved).Msg("approval update failed")
		return domain.Review{}, &domain.UpdateError{ReviewID: reviewID, Err: err}
	}
	ev.ListingID = &rv.ListingID
	s.record(ctx, ev)

	// Both the dashboard sets and the public page depend on the flag.
	s.invalidate(ctx, prefixReviews, prefixPublicRevs)
	log.Info().Int64("review_id", reviewID).Bool("approved", approved).Msg("approval updated")
	return rv, nil
}

// SyncListing asks the backend to import new reviews for one listing.
func (s *CommandService) SyncListing(ctx context.Context, listingID int64) (domain.SyncResult, error) {
	start := s.now()
	res, err := s.backend.SyncListingReviews(ctx, listingID)

	ev := domain.ModerationEvent{Kind: domain.EventSync, ListingID: &listingID, Outcome: domain.OutcomeOK}
	if err != nil {
		ev.Outcome, ev.Detail = domain.OutcomeFailed, domain.RejectionDetail(err, err.Error())
		s.record(ctx, ev)
		observability.ObserveSync(domain.OutcomeFailed)
		log.Warn().Err(err).Int64("listing_id", listingID).Msg("sync failed")
		return domain.SyncResult{}, err
	}
	ev.Added = &res.NewReviewsAdded
	s.record(ctx, ev)
	observability.ObserveSync(domain.OutcomeOK)

	// Even zero new reviews invalidates; the backend is the source of truth.
	s.invalidate(ctx, prefixReviews, prefixPublicRevs)
	log.Info().Int64("listing_id", listingID).Int("added", res.NewReviewsAdded).
		Dur("took", s.now().Sub(start)).Msg("sync complete")
	return res, nil
}

// Recent returns the latest journal entries, newest first.
func (s *CommandService) Recent(ctx context.Context, limit int) ([]domain.ModerationEvent, error) {
	return s.journal.Recent(ctx, limit)
}

func (s *CommandService) invalidate(ctx context.Context, prefixes ...string) {
	if s.cache == nil {
		return
	}
	for _, p := range prefixes {
		// epoch first: a read racing this mutation must not land on a live key
		if _, err := s.cache.Incr(ctx, epochKey(p)); err != nil {
			log.Warn().Err(err).Str("prefix", p).Msg("cache epoch bump failed")
		}
		if err := s.cache.DelPrefix(ctx, p); err != nil {
			log.Warn().Err(err).Str("prefix", p).Msg("cache invalidation failed")
		}
	}
}

// record never fails the caller: the journal is a side channel.
func (s *CommandService) record(ctx context.Context, ev domain.ModerationEvent) {
	ev.ID = uuid.NewString()
	ev.CreatedAt = s.now().UTC()
	// the action already happened; don't let a cancelled request lose the entry
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.journal.Record(ctx, ev); err != nil {
		observability.ObserveJournalFailure(err)
		log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("journal record failed")
	}
}

// NopJournal is used when no journal store is configured.
type NopJournal struct{}

func (NopJournal) Record(context.Context, domain.ModerationEvent) error { return nil }

func (NopJournal) Recent(context.Context, int) ([]domain.ModerationEvent, error) {
	return []domain.ModerationEvent{}, nil
}
