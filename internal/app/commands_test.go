package app_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/ArshadYameen/flex-living-dashboard/internal/adapters/observability"
	"github.com/ArshadYameen/flex-living-dashboard/internal/app"
	"github.com/ArshadYameen/flex-living-dashboard/internal/domain"
)

func TestCommandService_SetApprovalInvalidates(t *testing.T) {
	ctx := context.Background()
	b, c, j := seedBackend(), &fakeCache{}, &fakeJournal{}
	q := app.NewQueryService(b, c, time.Minute)
	cmd := app.NewCommandService(b, c, j)

	_, err := q.Reviews(ctx, domain.FilterState{})
	require.NoError(t, err)
	_, err = q.PublicReviews(ctx, 1)
	require.NoError(t, err)
	_, err = q.Listings(ctx)
	require.NoError(t, err)

	rv, err := cmd.SetApproval(ctx, 10, true)
	require.NoError(t, err)
	require.True(t, rv.IsApproved)
	require.True(t, b.review(10).IsApproved)

	require.False(t, c.has("reviews:v0:all"))
	require.False(t, c.has("public:v0:1"))
	require.True(t, c.has("listings"), "listings do not depend on approval")
	require.True(t, c.has("epoch:reviews"))
	require.True(t, c.has("epoch:public"))

	evs := j.all()
	require.Len(t, evs, 1)
	require.Equal(t, domain.EventApproval, evs[0].Kind)
	require.Equal(t, domain.OutcomeOK, evs[0].Outcome)
	require.Equal(t, int64(10), *evs[0].ReviewID)
	require.Equal(t, int64(1), *evs[0].ListingID)
	require.True(t, *evs[0].Approved)
	require.NotEmpty(t, evs[0].ID)
	require.False(t, evs[0].CreatedAt.IsZero())
}

func TestCommandService_SetApprovalFailure(t *testing.T) {
	ctx := context.Background()
	b, c, j := seedBackend(), &fakeCache{}, &fakeJournal{}
	b.approveErr = &domain.NetworkError{Op: "approve", Status: http.StatusBadGateway}
	q := app.NewQueryService(b, c, time.Minute)
	cmd := app.NewCommandService(b, c, j)

	_, err := q.Reviews(ctx, domain.FilterState{})
	require.NoError(t, err)

	_, err = cmd.SetApproval(ctx, 10, true)
	var ue *domain.UpdateError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, int64(10), ue.ReviewID)
	var ne *domain.NetworkError
	require.ErrorAs(t, err, &ne)

	require.True(t, c.has("reviews:v0:all"), "failed mutation keeps cached reads")
	evs := j.all()
	require.Len(t, evs, 1)
	require.Equal(t, domain.OutcomeFailed, evs[0].Outcome)
	require.NotEmpty(t, evs[0].Detail)
}

func TestCommandService_SyncListing(t *testing.T) {
	ctx := context.Background()
	b, c, j := seedBackend(), &fakeCache{}, &fakeJournal{}
	b.syncNew = []domain.Review{
		{ID: 20, ListingID: 1, GuestName: "Dev", Channel: "google", OverallRating: 10, SubmittedAt: at(4)},
		{ID: 21, ListingID: 2, GuestName: "Eli", Channel: "google", OverallRating: 6, SubmittedAt: at(4)},
	}
	cmd := app.NewCommandService(b, c, j)

	res, err := cmd.SyncListing(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, res.NewReviewsAdded)
	require.ElementsMatch(t, []string{"reviews:", "public:"}, c.dels)

	evs := j.all()
	require.Len(t, evs, 1)
	require.Equal(t, domain.EventSync, evs[0].Kind)
	require.Equal(t, 1, *evs[0].Added)
}

func TestCommandService_SyncRejectionDetail(t *testing.T) {
	b, j := seedBackend(), &fakeJournal{}
	b.syncErr = &domain.BackendRejection{Op: "sync", Status: 400, Detail: "Listing has no Google Place ID"}
	cmd := app.NewCommandService(b, &fakeCache{}, j)

	_, err := cmd.SyncListing(context.Background(), 2)
	var br *domain.BackendRejection
	require.ErrorAs(t, err, &br)
	require.Equal(t, "Listing has no Google Place ID", j.all()[0].Detail)
}

func TestCommandService_JournalFailureIsIgnored(t *testing.T) {
	b := seedBackend()
	cmd := app.NewCommandService(b, nil, &fakeJournal{err: errors.New("db down")})
	failures := observability.JournalFailures.WithLabelValues("*errors.errorString")
	before := testutil.ToFloat64(failures)

	_, err := cmd.SetApproval(context.Background(), 12, true)
	require.NoError(t, err)
	require.True(t, b.review(12).IsApproved)
	require.Equal(t, before+1, testutil.ToFloat64(failures))
}

func TestCommandService_RecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	b, j := seedBackend(), &fakeJournal{}
	cmd := app.NewCommandService(b, nil, j)

	_, _ = cmd.SetApproval(ctx, 10, true)
	_, _ = cmd.SetApproval(ctx, 11, false)
	_, _ = cmd.SyncListing(ctx, 1)

	evs, err := cmd.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	require.Equal(t, domain.EventSync, evs[0].Kind)
	require.Equal(t, int64(11), *evs[1].ReviewID)

	none, err := app.NewCommandService(b, nil, nil).Recent(ctx, 5)
	require.NoError(t, err)
	require.Empty(t, none)
}
