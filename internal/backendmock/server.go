// Package backendmock is an in-memory stand-in for the reviews backend. It
// serves the same routes and error payloads, so the dashboard can run and be
// tested without the real service.
package backendmock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ArshadYameen/flex-living-dashboard/internal/domain"
)

// Listing is a backend listing plus the place id the sync endpoint needs.
type Listing struct {
	domain.Listing
	GooglePlaceID string `json:"google_place_id,omitempty"`
}

// Seed is the data set loaded at start-up. GoogleReviews are what a sync of
// each listing imports; reviews already imported (same hostaway_id) are
// skipped.
type Seed struct {
	Listings      []Listing                 `json:"listings"`
	Reviews       []domain.Review           `json:"reviews"`
	GoogleReviews map[int64][]domain.Review `json:"google_reviews"`
}

func Load(path string) (Seed, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed: %w", err)
	}
	var s Seed
	if err := json.Unmarshal(b, &s); err != nil {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}
	return s, nil
}

type failure struct {
	method, prefix string
	status         int
	detail         string
}

type Server struct {
	mu       sync.Mutex
	listings []Listing
	reviews  []domain.Review
	google   map[int64][]domain.Review
	nextID   int64
	failures []failure
	router   chi.Router
}

func New(seed Seed) *Server {
	s := &Server{
		listings: slices.Clone(seed.Listings),
		reviews:  slices.Clone(seed.Reviews),
		google:   map[int64][]domain.Review{},
	}
	for id, rs := range seed.GoogleReviews {
		s.google[id] = slices.Clone(rs)
	}
	for _, r := range s.reviews {
		s.nextID = max(s.nextID, r.ID)
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.injectFailures)
	r.Route("/api", func(r chi.Router) {
		r.Get("/listings", s.listListings)
		r.Get("/listings/{id}", s.getListing)
		r.Get("/reviews", s.listReviews)
		r.Get("/reviews/public/{id}", s.publicReviews)
		r.Patch("/reviews/{id}/approve", s.approve)
		r.Post("/google/sync/{id}", s.sync)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// Fail makes every request whose method matches and whose path starts with
// prefix answer status with detail, until Reset. An empty method matches all.
func (s *Server) Fail(method, prefix string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{method: method, prefix: prefix, status: status, detail: detail})
}

func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = nil
}

// Review returns the stored review with id.
func (s *Server) Review(id int64) (domain.Review, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.reviews, func(r domain.Review) bool { return r.ID == id })
	if i < 0 {
		return domain.Review{}, false
	}
	return s.reviews[i], true
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		var hit *failure
		for i := range s.failures {
			f := s.failures[i]
			if (f.method == "" || f.method == r.Method) && strings.HasPrefix(r.URL.Path, f.prefix) {
				hit = &f
				break
			}
		}
		s.mu.Unlock()
		if hit != nil {
			writeDetail(w, hit.status, hit.detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ---- handlers ----

func (s *Server) listListings(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]domain.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		out = append(out, l.Listing)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getListing(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	l, found := s.listing(id)
	if !found {
		writeDetail(w, http.StatusNotFound, "Listing not found")
		return
	}
	writeJSON(w, http.StatusOK, l.Listing)
}

func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		listingID int64
		minRating float64
		err       error
	)
	if v := q.Get("listing_id"); v != "" {
		if listingID, err = strconv.ParseInt(v, 10, 64); err != nil {
			writeValidation(w, "listing_id", "Input should be a valid integer")
			return
		}
	}
	if v := q.Get("min_rating"); v != "" {
		if minRating, err = strconv.ParseFloat(v, 64); err != nil {
			writeValidation(w, "min_rating", "Input should be a valid number")
			return
		}
	}
	channel := q.Get("channel")

	s.mu.Lock()
	out := []domain.Review{}
	for _, rv := range s.reviews {
		if listingID != 0 && rv.ListingID != listingID {
			continue
		}
		if minRating != 0 && rv.OverallRating < minRating {
			continue
		}
		if channel != "" && rv.Channel != channel {
			continue
		}
		out = append(out, rv)
	}
	s.mu.Unlock()
	newestFirst(out)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) publicReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	out := []domain.Review{}
	for _, rv := range s.reviews {
		if rv.ListingID == id && rv.IsApproved {
			out = append(out, rv)
		}
	}
	s.mu.Unlock()
	newestFirst(out)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	raw := r.URL.Query().Get("is_approved")
	if raw == "" {
		writeValidation(w, "is_approved", "Field required")
		return
	}
	approved, err := strconv.ParseBool(raw)
	if err != nil {
		writeValidation(w, "is_approved", "Input should be a valid boolean")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.reviews, func(rv domain.Review) bool { return rv.ID == id })
	if i < 0 {
		writeDetail(w, http.StatusNotFound, "Review not found")
		return
	}
	s.reviews[i].IsApproved = approved
	writeJSON(w, http.StatusOK, s.reviews[i])
}

func (s *Server) sync(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	l, found := s.listing(id)
	switch {
	case !found:
		writeDetail(w, http.StatusNotFound, "Listing not found")
		return
	case l.GooglePlaceID == "":
		writeDetail(w, http.StatusBadRequest, "Listing has no Google Place ID")
		return
	}

	s.mu.Lock()
	added := 0
	for _, g := range s.google[id] {
		if slices.ContainsFunc(s.reviews, func(rv domain.Review) bool { return rv.ExternalID == g.ExternalID }) {
			continue
		}
		s.nextID++
		g.ID = s.nextID
		g.ListingID = id
		g.Channel = "google"
		g.IsApproved = false
		s.reviews = append(s.reviews, g)
		added++
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "new_reviews_added": added})
}

func (s *Server) listing(id int64) (Listing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listings {
		if l.ID == id {
			return l, true
		}
	}
	return Listing{}, false
}

// ---- helpers ----

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeValidation(w, "id", "Input should be a valid integer")
		return 0, false
	}
	return id, true
}

func newestFirst(rs []domain.Review) {
	slices.SortStableFunc(rs, func(a, b domain.Review) int {
		return b.SubmittedAt.Compare(a.SubmittedAt.Time)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeValidation answers like a request-validation failure: 422 with a list
// under detail.
func writeValidation(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]any{{"loc": []string{"query", field}, "msg": msg, "type": "value_error"}},
	})
}
