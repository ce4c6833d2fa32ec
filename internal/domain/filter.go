package domain

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// All is the sentinel used on the wire and in forms for "no filter on this
// dimension".
const All = "all"

// FilterState holds the three dashboard filter dimensions. A nil pointer or
// an empty Channel means All.
type FilterState struct {
	ListingID *int64 `json:"listing_id" validate:"omitempty,gt=0"`
	MinRating *int   `json:"min_rating" validate:"omitempty,gte=0,lte=10"`
	Channel   string `json:"channel" validate:"omitempty,max=64,printascii"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func filterValidator() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New(validator.WithRequiredStructEnabled()) })
	return validate
}

// ParseFilter builds a FilterState from form or query values. Empty strings
// and "all" select every value of a dimension.
func ParseFilter(listingID, minRating, channel string) (FilterState, error) {
	var f FilterState
	if v := strings.TrimSpace(listingID); v != "" && v != All {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return FilterState{}, fmt.Errorf("%w: listing_id %q", ErrInvalidFilter, v)
		}
		f.ListingID = &id
	}
	if v := strings.TrimSpace(minRating); v != "" && v != All {
		n, err := strconv.Atoi(v)
		if err != nil {
			return FilterState{}, fmt.Errorf("%w: min_rating %q", ErrInvalidFilter, v)
		}
		f.MinRating = &n
	}
	if v := strings.TrimSpace(channel); v != All {
		f.Channel = v
	}
	if err := f.Validate(); err != nil {
		return FilterState{}, err
	}
	return f, nil
}

func (f FilterState) Validate() error {
	if err := filterValidator().Struct(f); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return nil
}

// Query serializes the filter into backend query parameters, leaving out
// every dimension set to All.
func (f FilterState) Query() url.Values {
	q := url.Values{}
	if f.ListingID != nil {
		q.Set("listing_id", strconv.FormatInt(*f.ListingID, 10))
	}
	if f.MinRating != nil {
		q.Set("min_rating", strconv.Itoa(*f.MinRating))
	}
	if f.Channel != "" {
		q.Set("channel", f.Channel)
	}
	return q
}

// Key is a stable identifier for the filter, suitable for cache keys.
func (f FilterState) Key() string {
	if enc := f.Query().Encode(); enc != "" {
		return enc
	}
	return All
}

func (f FilterState) String() string { return f.Key() }

func (f FilterState) ListingValue() string {
	if f.ListingID == nil {
		return All
	}
	return strconv.FormatInt(*f.ListingID, 10)
}

func (f FilterState) MinRatingValue() string {
	if f.MinRating == nil {
		return All
	}
	return strconv.Itoa(*f.MinRating)
}

func (f FilterState) ChannelValue() string {
	if f.Channel == "" {
		return All
	}
	return f.Channel
}

// Clone returns a copy that shares no pointers with f.
func (f FilterState) Clone() FilterState {
	out := FilterState{Channel: f.Channel}
	if f.ListingID != nil {
		id := *f.ListingID
		out.ListingID = &id
	}
	if f.MinRating != nil {
		n := *f.MinRating
		out.MinRating = &n
	}
	return out
}
