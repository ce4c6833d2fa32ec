package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ArshadYameen/flex-living-dashboard/internal/adapters/observability"
	"github.com/ArshadYameen/flex-living-dashboard/internal/domain"
)

var (
	ErrNoListingSelected = errors.New("select a specific listing to sync")
	ErrSyncInProgress    = errors.New("a sync is already running")
	ErrSessionClosed     = errors.New("session closed")
)

const approvalFailedText = "Failed to update review status"

type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is the one user-facing message a session shows at a time.
type Notice struct {
	Kind NoticeKind `json:"kind"`
	Text string     `json:"text"`
}

type SessionOptions struct {
	FetchTimeout time.Duration
	SyncTimeout  time.Duration
	// RetryInterval is the minimum gap between a failed fetch and its retry.
	RetryInterval time.Duration
}

// Session is the dashboard view model for one browser. It owns the filter
// state and the fetched data, and runs backend calls in background tasks
// whose outcomes are applied under mu, one at a time.
//
// Review fetches are numbered; an outcome whose number is not the latest is
// dropped, so a slow response for an old filter never overwrites a newer one.
type Session struct {
	ID string

	q    *QueryService
	cmd  *CommandService
	opts SessionOptions

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	mu     sync.Mutex
	closed bool
	filter domain.FilterState
	sort   SortSpec

	listings         []domain.Listing
	listingsGen      uint64
	listingsReady    bool
	listingsFetching bool
	listingsDegraded bool
	listingsFailedAt time.Time

	reviews         []domain.Review
	reviewsGen      uint64
	reviewsReady    bool
	reviewsFetching bool
	reviewsDegraded bool
	reviewsFailedAt time.Time

	pendingApprovals int
	syncing          bool
	syncListingID    int64
	notice           *Notice
	lastSeen         time.Time
}

// NewSession creates a session with the "all" filter and immediately starts
// fetching listings and reviews in parallel.
func NewSession(id string, q *QueryService, cmd *CommandService, opts SessionOptions) *Session {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 20 * time.Second
	}
	if opts.SyncTimeout < opts.FetchTimeout {
		opts.SyncTimeout = opts.FetchTimeout
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:       id,
		q:        q,
		cmd:      cmd,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		sort:     DefaultSort,
		lastSeen: time.Now(),
	}
	s.mu.Lock()
	s.fetchListingsLocked()
	s.fetchReviewsLocked(false)
	s.mu.Unlock()
	return s
}

// ---- filter state ----

func (s *Session) Filter() domain.FilterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.Clone()
}

// SetFilter replaces the whole filter and refetches reviews under it.
// Setting the current filter again is a no-op.
func (s *Session) SetFilter(f domain.FilterState) error {
	return s.UpdateFilter(func(cur *domain.FilterState) { *cur = f.Clone() })
}

// UpdateFilter applies fn to a copy of the filter and swaps it in. fn runs
// under the session lock and must not call back into the session.
func (s *Session) UpdateFilter(fn func(*domain.FilterState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	next := s.filter.Clone()
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	if next.Key() == s.filter.Key() {
		return nil
	}
	s.filter = next
	s.fetchReviewsLocked(false)
	return nil
}

func (s *Session) SetSort(spec SortSpec) {
	s.mu.Lock()
	s.sort = spec
	s.mu.Unlock()
}

// ---- fetching ----

// Touch marks the session as used.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// RetryDegraded refetches any set that degraded to empty after a failure,
// once RetryInterval has passed since that failure.
func (s *Session) RetryDegraded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if s.listingsDegraded && !s.listingsFetching && now.Sub(s.listingsFailedAt) >= s.opts.RetryInterval {
		s.fetchListingsLocked()
	}
	if s.reviewsDegraded && !s.reviewsFetching && now.Sub(s.reviewsFailedAt) >= s.opts.RetryInterval {
		s.fetchReviewsLocked(true)
	}
}

// Refresh refetches both sets, keeping the current data on screen.
func (s *Session) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchListingsLocked()
	s.fetchReviewsLocked(true)
}

func (s *Session) fetchListingsLocked() {
	if s.closed {
		return
	}
	s.listingsGen++
	gen := s.listingsGen
	s.listingsFetching = true
	s.submit(s.opts.FetchTimeout, func(ctx context.Context) {
		ls, err := s.q.Listings(ctx)
		s.applyListings(gen, ls, err)
	})
}

// fetchReviewsLocked starts a review fetch for the current filter. With
// keep, the current rows stay visible until the result lands.
func (s *Session) fetchReviewsLocked(keep bool) {
	if s.closed {
		return
	}
	s.reviewsGen++
	gen, f := s.reviewsGen, s.filter.Clone()
	if !keep {
		s.reviewsReady = false
	}
	s.reviewsFetching = true
	s.submit(s.opts.FetchTimeout, func(ctx context.Context) {
		rs, err := s.q.Reviews(ctx, f)
		s.applyReviews(gen, f, rs, err)
	})
}

func (s *Session) applyListings(gen uint64, ls []domain.Listing, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.listingsGen {
		observability.ObserveStale("listings")
		return
	}
	s.listingsFetching = false
	s.listingsReady = true
	if err != nil {
		log.Warn().Err(err).Str("session", s.ID).Msg("listing fetch failed, property names unavailable")
		s.listingsDegraded, s.listingsFailedAt = true, time.Now()
		if s.listings == nil {
			s.listings = []domain.Listing{}
		}
		return
	}
	s.listings, s.listingsDegraded = ls, false
}

func (s *Session) applyReviews(gen uint64, f domain.FilterState, rs []domain.Review, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.reviewsGen {
		observability.ObserveStale("reviews")
		log.Debug().Str("session", s.ID).Str("filter", f.Key()).Msg("dropping superseded review result")
		return
	}
	s.reviewsFetching = false
	s.reviewsReady = true
	if err != nil {
		log.Warn().Err(err).Str("session", s.ID).Str("filter", f.Key()).Msg("review fetch failed, showing empty set")
		s.reviews, s.reviewsDegraded, s.reviewsFailedAt = []domain.Review{}, true, time.Now()
		return
	}
	s.reviews, s.reviewsDegraded = rs, false
}

// submit runs task in the background under a timeout derived from the
// session's own context. Callers hold mu.
func (s *Session) submit(timeout time.Duration, task func(ctx context.Context)) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()
		task(ctx)
	}()
}

// ---- mutations ----

// ToggleApproval shows the new value at once and sends it to the backend.
// A failure puts the old value back and raises an error notice; a success
// refetches the reviews, and that result is what the table keeps.
func (s *Session) ToggleApproval(reviewID int64, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	prior, found := s.setApprovedLocked(reviewID, approved)
	s.pendingApprovals++
	s.notice = nil

	s.submit(s.opts.FetchTimeout, func(ctx context.Context) {
		_, err := s.cmd.SetApproval(ctx, reviewID, approved)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.pendingApprovals--
		if err != nil {
			if found {
				s.setApprovedLocked(reviewID, prior)
			}
			s.notice = &Notice{Kind: NoticeError, Text: approvalFailedText}
			return
		}
		s.fetchReviewsLocked(true)
	})
	return nil
}

// setApprovedLocked swaps in a copy of the review slice with one flag
// changed and returns the previous value.
func (s *Session) setApprovedLocked(reviewID int64, approved bool) (prior, found bool) {
	i := slices.IndexFunc(s.reviews, func(r domain.Review) bool { return r.ID == reviewID })
	if i < 0 {
		return false, false
	}
	next := slices.Clone(s.reviews)
	prior = next[i].IsApproved
	next[i].IsApproved = approved
	s.reviews = next
	return prior, true
}

// Sync imports new reviews for the selected listing. Only one sync runs per
// session; the outcome arrives as a notice.
func (s *Session) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.filter.ListingID == nil {
		return ErrNoListingSelected
	}
	if s.syncing {
		return ErrSyncInProgress
	}
	id := *s.filter.ListingID
	s.syncing, s.syncListingID, s.notice = true, id, nil

	s.submit(s.opts.SyncTimeout, func(ctx context.Context) {
		res, err := s.cmd.SyncListing(ctx, id)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.syncing = false
		if err != nil {
			s.notice = &Notice{Kind: NoticeError, Text: "Sync failed: " + domain.RejectionDetail(err, syncFailedFallback)}
			return
		}
		s.notice = &Notice{Kind: NoticeSuccess, Text: fmt.Sprintf("Sync complete! Added %d new reviews.", res.NewReviewsAdded)}
		s.fetchReviewsLocked(true)
	})
	return nil
}

func (s *Session) DismissNotice() {
	s.mu.Lock()
	s.notice = nil
	s.mu.Unlock()
}

// ---- reading ----

// View is everything the dashboard renders, taken at one instant.
type View struct {
	Filter           domain.FilterState    `json:"filter"`
	Sort             SortSpec              `json:"sort"`
	Loading          bool                  `json:"loading"`
	StatsLoading     bool                  `json:"stats_loading"`
	Refreshing       bool                  `json:"refreshing"`
	Listings         []domain.Listing      `json:"listings"`
	ListingsReady    bool                  `json:"listings_ready"`
	ListingsDegraded bool                  `json:"listings_degraded"`
	ReviewsDegraded  bool                  `json:"reviews_degraded"`
	Rows             []Row                 `json:"rows"`
	Stats            domain.AggregateStats `json:"stats"`
	CanSync          bool                  `json:"can_sync"`
	Syncing          bool                  `json:"syncing"`
	SyncListingID    int64                 `json:"sync_listing_id,omitempty"`
	ApprovalPending  bool                  `json:"approval_pending"`
	Notice           *Notice               `json:"notice,omitempty"`
}

// Busy reports whether a page showing v should poll for a newer view.
func (v View) Busy() bool {
	return v.Loading || v.StatsLoading || v.Refreshing || v.Syncing || v.ApprovalPending
}

// Snapshot derives the current view. Stats are recomputed from the current
// review set every time.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked := s.pendingApprovals > 0
	v := View{
		Filter:           s.filter.Clone(),
		Sort:             s.sort,
		Loading:          !(s.listingsReady && s.reviewsReady),
		StatsLoading:     !s.reviewsReady,
		Refreshing:       s.reviewsReady && s.reviewsFetching,
		Listings:         slices.Clone(s.listings),
		ListingsReady:    s.listingsReady && !s.listingsDegraded,
		ListingsDegraded: s.listingsDegraded,
		ReviewsDegraded:  s.reviewsDegraded,
		Rows:             []Row{},
		Stats:            Aggregate(nil),
		CanSync:          s.filter.ListingID != nil,
		Syncing:          s.syncing,
		ApprovalPending:  locked,
	}
	if v.Listings == nil {
		v.Listings = []domain.Listing{}
	}
	if s.syncing {
		v.SyncListingID = s.syncListingID
	}
	if s.notice != nil {
		n := *s.notice
		v.Notice = &n
	}
	if s.reviewsReady {
		v.Stats = Aggregate(s.reviews)
	}
	if !v.Loading {
		v.Rows = BuildRows(s.reviews, ListingNames(s.listings), locked)
		SortRows(v.Rows, s.sort)
	}
	return v
}

func (s *Session) idleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// Wait blocks until every background task submitted so far, and any task
// those tasks submit, has finished.
func (s *Session) Wait() { s.tasks.Wait() }

// Close stops new work, cancels in-flight calls and waits for them.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.tasks.Wait()
}
