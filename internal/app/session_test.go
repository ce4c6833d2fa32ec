package app_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/ArshadYameen/flex-living-dashboard/internal/adapters/observability"
	"github.com/ArshadYameen/flex-living-dashboard/internal/app"
	"github.com/ArshadYameen/flex-living-dashboard/internal/domain"
)

func newTestSession(t *testing.T, b *fakeBackend) (*app.Session, *fakeJournal) {
	t.Helper()
	j := &fakeJournal{}
	q := app.NewQueryService(b, nil, 0)
	cmd := app.NewCommandService(b, nil, j)
	s := app.NewSession("test", q, cmd, app.SessionOptions{FetchTimeout: 2 * time.Second, RetryInterval: time.Nanosecond})
	t.Cleanup(s.Close)
	return s, j
}

func rowByID(t *testing.T, v app.View, id int64) app.Row {
	t.Helper()
	for _, r := range v.Rows {
		if r.ReviewID == id {
			return r
		}
	}
	t.Fatalf("row %d not in view", id)
	return app.Row{}
}

func TestSession_InitialLoad(t *testing.T) {
	s, _ := newTestSession(t, seedBackend())
	s.Wait()

	v := s.Snapshot()
	require.False(t, v.Loading)
	require.False(t, v.Busy())
	require.False(t, v.CanSync)
	require.True(t, v.ListingsReady)
	require.Len(t, v.Listings, 2)
	require.Len(t, v.Rows, 3)
	require.Equal(t, int64(12), v.Rows[0].ReviewID, "newest first")
	require.Equal(t, "Camden Loft", v.Rows[0].Property)

	require.Equal(t, 3, v.Stats.TotalReviews)
	require.Equal(t, 1, v.Stats.ApprovedCount)
	require.Equal(t, "8.0", v.Stats.AverageRating)
	require.Equal(t, []domain.CategoryAverage{
		{Label: "Cleanliness", MeanRating: 8.5, MaxScale: 10},
		{Label: "Respect House Rules", MeanRating: 10, MaxScale: 10},
	}, v.Stats.CategoryAverages)
}

func TestSession_LoadingHidesRows(t *testing.T) {
	gate := make(chan struct{})
	b := seedBackend()
	b.beforeReviews = func(domain.FilterState) { <-gate }
	s, _ := newTestSession(t, b)

	v := s.Snapshot()
	require.True(t, v.Loading)
	require.True(t, v.StatsLoading)
	require.True(t, v.Busy())
	require.Empty(t, v.Rows)
	require.Equal(t, "0.0", v.Stats.AverageRating)

	close(gate)
	s.Wait()
	require.Len(t, s.Snapshot().Rows, 3)
}

func TestSession_FilterRoundTrip(t *testing.T) {
	b := seedBackend()
	s, _ := newTestSession(t, b)
	s.Wait()

	f, err := domain.ParseFilter("1", "8", "all")
	require.NoError(t, err)
	require.NoError(t, s.SetFilter(f))
	s.Wait()

	v := s.Snapshot()
	require.True(t, v.CanSync)
	require.Equal(t, "1", v.Filter.ListingValue())
	require.Equal(t, "8", v.Filter.MinRatingValue())
	require.Equal(t, domain.All, v.Filter.ChannelValue())
	require.Len(t, v.Rows, 1)
	require.Equal(t, int64(11), v.Rows[0].ReviewID)
	require.Equal(t, 1, v.Stats.TotalReviews)

	// back to all
	require.NoError(t, s.SetFilter(domain.FilterState{}))
	s.Wait()
	require.Len(t, s.Snapshot().Rows, 3)
	require.Equal(t, 3, b.Calls("reviews"))
}

func TestSession_SameFilterIsNoop(t *testing.T) {
	b := seedBackend()
	s, _ := newTestSession(t, b)
	s.Wait()

	require.NoError(t, s.SetFilter(domain.FilterState{}))
	require.NoError(t, s.UpdateFilter(func(f *domain.FilterState) { f.Channel = "" }))
	s.Wait()
	require.Equal(t, 1, b.Calls("reviews"))
}

func TestSession_InvalidFilterRejected(t *testing.T) {
	s, _ := newTestSession(t, seedBackend())
	s.Wait()

	err := s.UpdateFilter(func(f *domain.FilterState) { f.MinRating = ptr(11) })
	require.ErrorIs(t, err, domain.ErrInvalidFilter)
	require.Nil(t, s.Filter().MinRating)
}

func TestSession_StaleResultDropped(t *testing.T) {
	gate := make(chan struct{})
	b := seedBackend()
	b.beforeReviews = func(f domain.FilterState) {
		if f.Channel == "google" {
			<-gate
		}
	}
	s, _ := newTestSession(t, b)
	s.Wait()
	before := testutil.ToFloat64(observability.StaleResponses.WithLabelValues("reviews"))

	require.NoError(t, s.UpdateFilter(func(f *domain.FilterState) { f.Channel = "google" }))
	require.NoError(t, s.UpdateFilter(func(f *domain.FilterState) { f.Channel = "hostaway" }))

	require.Eventually(t, func() bool { return !s.Snapshot().Loading }, time.Second, 5*time.Millisecond)

	// the slow google answer lands after the hostaway one
	close(gate)
	s.Wait()

	v := s.Snapshot()
	require.Equal(t, "hostaway", v.Filter.Channel)
	require.Len(t, v.Rows, 2)
	for _, r := range v.Rows {
		require.Equal(t, "hostaway", r.Channel)
	}
	require.Equal(t, before+1, testutil.ToFloat64(observability.StaleResponses.WithLabelValues("reviews")))
}

func TestSession_ApprovalIsOptimistic(t *testing.T) {
	gate := make(chan struct{})
	b := seedBackend()
	b.beforeApprove = func() { <-gate }
	s, j := newTestSession(t, b)
	s.Wait()

	require.NoError(t, s.ToggleApproval(10, true))
	v := s.Snapshot()
	require.True(t, rowByID(t, v, 10).Approved)
	require.True(t, v.ApprovalPending)
	require.True(t, v.Busy())
	for _, r := range v.Rows {
		require.True(t, r.ToggleLocked)
	}
	require.Equal(t, 2, v.Stats.ApprovedCount)

	close(gate)
	s.Wait()

	v = s.Snapshot()
	require.True(t, rowByID(t, v, 10).Approved)
	require.False(t, rowByID(t, v, 10).ToggleLocked)
	require.False(t, v.ApprovalPending)
	require.Nil(t, v.Notice)
	require.True(t, b.review(10).IsApproved)
	require.Equal(t, 2, b.Calls("reviews"), "success refetches")
	require.Len(t, j.all(), 1)
}

func TestSession_ApprovalFailureReverts(t *testing.T) {
	b := seedBackend()
	b.approveErr = &domain.NetworkError{Op: "approve", Err: errors.New("connection refused")}
	s, _ := newTestSession(t, b)
	s.Wait()

	require.NoError(t, s.ToggleApproval(11, false))
	s.Wait()

	v := s.Snapshot()
	require.True(t, rowByID(t, v, 11).Approved)
	require.Equal(t, 1, v.Stats.ApprovedCount)
	require.NotNil(t, v.Notice)
	require.Equal(t, app.NoticeError, v.Notice.Kind)
	require.Equal(t, "Failed to update review status", v.Notice.Text)

	s.DismissNotice()
	require.Nil(t, s.Snapshot().Notice)
}

func TestSession_SyncRequiresListing(t *testing.T) {
	b := seedBackend()
	s, _ := newTestSession(t, b)
	s.Wait()

	require.ErrorIs(t, s.Sync(), app.ErrNoListingSelected)
	require.Equal(t, 0, b.Calls("sync"))
}

func TestSession_SyncAddsReviews(t *testing.T) {
	b := seedBackend()
	b.syncNew = []domain.Review{{ID: 20, ListingID: 1, GuestName: "Dev", Channel: "google", OverallRating: 10, SubmittedAt: at(5)}}
	s, _ := newTestSession(t, b)
	require.NoError(t, s.SetFilter(domain.FilterState{ListingID: ptr(int64(1))}))
	s.Wait()

	require.NoError(t, s.Sync())
	s.Wait()

	v := s.Snapshot()
	require.False(t, v.Syncing)
	require.Equal(t, &app.Notice{Kind: app.NoticeSuccess, Text: "Sync complete! Added 1 new reviews."}, v.Notice)
	require.Len(t, v.Rows, 3)
	require.Equal(t, int64(20), v.Rows[0].ReviewID)
}

func TestSession_SyncSingleFlight(t *testing.T) {
	gate := make(chan struct{})
	b := seedBackend()
	b.beforeSync = func() { <-gate }
	s, _ := newTestSession(t, b)
	require.NoError(t, s.SetFilter(domain.FilterState{ListingID: ptr(int64(2))}))
	s.Wait()

	require.NoError(t, s.Sync())
	v := s.Snapshot()
	require.True(t, v.Syncing)
	require.Equal(t, int64(2), v.SyncListingID)
	require.ErrorIs(t, s.Sync(), app.ErrSyncInProgress)

	close(gate)
	s.Wait()
	require.Equal(t, 1, b.Calls("sync"))
	require.Equal(t, "Sync complete! Added 0 new reviews.", s.Snapshot().Notice.Text)
}

func TestSession_SyncFailureNotice(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"rejection", &domain.BackendRejection{Op: "sync", Status: 400, Detail: "Listing has no Google Place ID"}, "Sync failed: Listing has no Google Place ID"},
		{"network", &domain.NetworkError{Op: "sync", Err: errors.New("timeout")}, "Sync failed: Failed to sync reviews"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := seedBackend()
			b.syncErr = c.err
			s, j := newTestSession(t, b)
			require.NoError(t, s.SetFilter(domain.FilterState{ListingID: ptr(int64(2))}))
			s.Wait()

			require.NoError(t, s.Sync())
			s.Wait()
			v := s.Snapshot()
			require.Equal(t, app.NoticeError, v.Notice.Kind)
			require.Equal(t, c.want, v.Notice.Text)
			require.Equal(t, domain.OutcomeFailed, j.all()[0].Outcome)
		})
	}
}

func TestSession_ListingFailureDegrades(t *testing.T) {
	b := seedBackend()
	b.listingsErr = &domain.NetworkError{Op: "listings", Status: 500}
	s, _ := newTestSession(t, b)
	s.Wait()

	v := s.Snapshot()
	require.False(t, v.Loading)
	require.True(t, v.ListingsDegraded)
	require.False(t, v.ListingsReady)
	require.Empty(t, v.Listings)
	require.Equal(t, "Unknown", rowByID(t, v, 10).Property)

	b.set(func(b *fakeBackend) { b.listingsErr = nil })
	s.RetryDegraded()
	s.Wait()

	v = s.Snapshot()
	require.False(t, v.ListingsDegraded)
	require.Equal(t, "Shoreditch Heights", rowByID(t, v, 10).Property)
}

func TestSession_ReviewFailureShowsEmptySet(t *testing.T) {
	b := seedBackend()
	b.reviewsErr = &domain.NetworkError{Op: "reviews", Status: 502}
	s, _ := newTestSession(t, b)
	s.Wait()

	v := s.Snapshot()
	require.False(t, v.Loading)
	require.True(t, v.ReviewsDegraded)
	require.Empty(t, v.Rows)
	require.Equal(t, 0, v.Stats.TotalReviews)
	require.Equal(t, "0.0", v.Stats.AverageRating)

	b.set(func(b *fakeBackend) { b.reviewsErr = nil })
	s.RetryDegraded()
	s.Wait()
	require.Len(t, s.Snapshot().Rows, 3)
}

func TestSession_RetryWaitsForInterval(t *testing.T) {
	b := seedBackend()
	b.reviewsErr = &domain.NetworkError{Op: "reviews", Status: 502}
	q := app.NewQueryService(b, nil, 0)
	s := app.NewSession("slow-retry", q, app.NewCommandService(b, nil, nil), app.SessionOptions{RetryInterval: time.Hour})
	t.Cleanup(s.Close)
	s.Wait()

	s.RetryDegraded()
	s.Touch()
	s.Wait()
	require.Equal(t, 1, b.Calls("reviews"))
	require.True(t, s.Snapshot().ReviewsDegraded)
}

func TestSession_SortDoesNotRefetch(t *testing.T) {
	b := seedBackend()
	s, _ := newTestSession(t, b)
	s.Wait()

	s.SetSort(app.SortSpec{Key: app.SortGuest})
	v := s.Snapshot()
	require.Equal(t, "Ana", v.Rows[0].Guest)
	require.Equal(t, 1, b.Calls("reviews"))
}

func TestSession_ClosedRejectsWork(t *testing.T) {
	s, _ := newTestSession(t, seedBackend())
	s.Close()

	require.ErrorIs(t, s.ToggleApproval(10, true), app.ErrSessionClosed)
	require.ErrorIs(t, s.Sync(), app.ErrSessionClosed)
	require.ErrorIs(t, s.SetFilter(domain.FilterState{Channel: "google"}), app.ErrSessionClosed)
}
