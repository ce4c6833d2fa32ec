package app

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArshadYameen/flex-living-dashboard/internal/domain"
)

const unknownListing = "Unknown"

// Row is one rendered line of the review table.
type Row struct {
	ReviewID      int64     `json:"review_id"`
	ListingID     int64     `json:"listing_id"`
	Property      string    `json:"property"`
	Guest         string    `json:"guest"`
	Channel       string    `json:"channel"`
	OverallRating float64   `json:"overall_rating"`
	Rating        string    `json:"rating"`
	Text          string    `json:"text"`
	Date          string    `json:"date"`
	SubmittedAt   time.Time `json:"submitted_at"`
	Approved      bool      `json:"approved"`
	ToggleLocked  bool      `json:"toggle_locked"`
}

func ListingNames(ls []domain.Listing) map[int64]string {
	m := make(map[int64]string, len(ls))
	for _, l := range ls {
		m[l.ID] = l.Name
	}
	return m
}

// ListingName resolves id, falling back to "Unknown" for listings the
// backend no longer returns.
func ListingName(names map[int64]string, id int64) string {
	if n, ok := names[id]; ok && n != "" {
		return n
	}
	return unknownListing
}

func BuildRows(reviews []domain.Review, names map[int64]string, locked bool) []Row {
	rows := make([]Row, 0, len(reviews))
	for _, r := range reviews {
		rows = append(rows, Row{
			ReviewID:      r.ID,
			ListingID:     r.ListingID,
			Property:      ListingName(names, r.ListingID),
			Guest:         r.GuestName,
			Channel:       r.Channel,
			OverallRating: r.OverallRating,
			Rating:        formatRating(r.OverallRating),
			Text:          r.ReviewText,
			Date:          formatDate(r.SubmittedAt.Time),
			SubmittedAt:   r.SubmittedAt.Time,
			Approved:      r.IsApproved,
			ToggleLocked:  locked,
		})
	}
	return rows
}

func formatRating(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("Jan 2, 2006")
}

type SortKey string

const (
	SortDate     SortKey = "date"
	SortRating   SortKey = "rating"
	SortGuest    SortKey = "guest"
	SortProperty SortKey = "property"
	SortChannel  SortKey = "channel"
)

type SortSpec struct {
	Key  SortKey `json:"key"`
	Desc bool    `json:"desc"`
}

// DefaultSort matches the backend's own order: newest first.
var DefaultSort = SortSpec{Key: SortDate, Desc: true}

// ParseSort reads ?sort=&dir= values; unknown keys give DefaultSort.
func ParseSort(key, dir string) SortSpec {
	k := SortKey(strings.ToLower(strings.TrimSpace(key)))
	switch k {
	case SortDate, SortRating, SortGuest, SortProperty, SortChannel:
	default:
		return DefaultSort
	}
	desc := k == SortDate || k == SortRating // numbers and dates read best high-to-low
	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "asc":
		desc = false
	case "desc":
		desc = true
	}
	return SortSpec{Key: k, Desc: desc}
}

// SortRows orders rows in place. Ties keep their incoming order.
func SortRows(rows []Row, spec SortSpec) {
	less := func(a, b Row) bool {
		switch spec.Key {
		case SortRating:
			return a.OverallRating < b.OverallRating
		case SortGuest:
			return strings.ToLower(a.Guest) < strings.ToLower(b.Guest)
		case SortProperty:
			return strings.ToLower(a.Property) < strings.ToLower(b.Property)
		case SortChannel:
			return a.Channel < b.Channel
		default:
			return a.SubmittedAt.Before(b.SubmittedAt)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if spec.Desc {
			return less(rows[j], rows[i])
		}
		return less(rows[i], rows[j])
	})
}
