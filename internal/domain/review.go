package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type CategoryRating struct {
	ID       int64   `json:"id,omitempty"`
	Category string  `json:"category"`
	Rating   float64 `json:"rating"`
	ReviewID int64   `json:"review_id,omitempty"`
}

// Review mirrors the backend's ReviewRead payload. Only IsApproved ever
// changes from the dashboard, and only through the approval endpoint.
type Review struct {
	ID              int64             `json:"id"`
	ExternalID      int64             `json:"hostaway_id"`
	GuestName       string            `json:"guest_name"`
	ReviewText      string            `json:"review_text"`
	Channel         string            `json:"channel"`
	SubmittedAt     Timestamp         `json:"submitted_at"`
	OverallRating   float64           `json:"overall_rating"`
	IsApproved      bool              `json:"is_approved"`
	ListingID       int64             `json:"listing_id"`
	CategoryRatings []*CategoryRating `json:"category_ratings"` // entries may be null
}

type SyncResult struct {
	NewReviewsAdded int `json:"new_reviews_added"`
}

// Timestamp accepts RFC3339 as well as the zone-less ISO-8601 the backend
// emits for naive datetimes. It is used for display only.
type Timestamp struct{ time.Time }

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: unsupported format %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}
