package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ArshadYameen/flex-living-dashboard/internal/domain"
)

type PublicReview struct {
	ID     int64  `json:"id"`
	Guest  string `json:"guest"`
	Rating string `json:"rating"`
	Text   string `json:"text"`
	Date   string `json:"date"`
}

// PropertyView is the public page for one listing.
type PropertyView struct {
	ListingID int64          `json:"listing_id"`
	Name      string         `json:"name"`
	ImageURL  string         `json:"image_url,omitempty"`
	Found     bool           `json:"found"`
	Reviews   []PublicReview `json:"reviews"`
}

// Property loads the listing and its approved reviews in parallel. Neither
// failure is fatal: a missing listing gets a placeholder name, and a failed
// review fetch shows no reviews.
func (s *QueryService) Property(ctx context.Context, listingID int64) PropertyView {
	var (
		listing    domain.Listing
		listingErr error
		reviews    []domain.Review
		reviewsErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		listing, listingErr = s.Listing(gctx, listingID)
		return nil
	})
	g.Go(func() error {
		reviews, reviewsErr = s.PublicReviews(gctx, listingID)
		return nil
	})
	_ = g.Wait()

	v := PropertyView{ListingID: listingID, Name: fmt.Sprintf("Property #%d", listingID), Reviews: []PublicReview{}}
	switch {
	case listingErr == nil:
		v.Found = true
		if listing.Name != "" {
			v.Name = listing.Name
		}
		if listing.ImageURL != nil {
			v.ImageURL = *listing.ImageURL
		}
	case !errors.Is(listingErr, domain.ErrNotFound):
		log.Warn().Err(listingErr).Int64("listing_id", listingID).Msg("listing fetch failed")
	}
	if reviewsErr != nil {
		log.Warn().Err(reviewsErr).Int64("listing_id", listingID).Msg("public review fetch failed")
		return v
	}
	for _, r := range reviews {
		if !r.IsApproved {
			continue
		}
		v.Reviews = append(v.Reviews, PublicReview{
			ID:     r.ID,
			Guest:  r.GuestName,
			Rating: formatRating(r.OverallRating),
			Text:   r.ReviewText,
			Date:   formatDate(r.SubmittedAt.Time),
		})
	}
	return v
}
