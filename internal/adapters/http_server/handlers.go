package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ArshadYameen/flex-living-dashboard/internal/app"
	"github.com/ArshadYameen/flex-living-dashboard/internal/domain"
)

const (
	sessionCookie  = "fl_session"
	activityOnPage = 10
	activityMax    = 100
)

type Handlers struct {
	Sessions *app.SessionStore
	Q        *app.QueryService
	Cmd      *app.CommandService
	// SecureCookie forces the Secure flag on the session cookie. Requests
	// that arrive over https get it without this.
	SecureCookie bool
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	})

	s.mux.Group(func(r chi.Router) {
		r.Use(NoStore)
		r.Get("/dashboard", h.dashboard)
		r.Post("/dashboard/filters", h.setFilters)
		r.Post("/dashboard/reviews/{id}/approval", h.setApproval)
		r.Post("/dashboard/sync", h.sync)
		r.Post("/dashboard/notice/dismiss", h.dismissNotice)
		r.Get("/api/dashboard", h.dashboardJSON)
		r.Get("/api/activity", h.activity)
	})
	s.mux.Get("/property/{id}", h.property)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeJSON answers with v, or 304 when the client already holds it.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if body == nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "response encoding failed")
		return
	}
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write JSON body")
	}
}

// session returns the caller's session, starting a new one (and setting the
// cookie) when the request carries no known id.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) *app.Session {
	var id string
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	}
	s, created := h.Sessions.GetOrCreate(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    s.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   h.SecureCookie || overTLS(r),
			SameSite: http.SameSiteLaxMode,
		})
		log.Debug().Str("session", s.ID).Msg("session started")
	}
	noteSession(r, s.ID, created)
	s.Touch()
	return s
}

// overTLS reports whether the client reached us over https, either directly
// or through a proxy that sets X-Forwarded-Proto.
func overTLS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func backToDashboard(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// ---- dashboard ----

func (h *Handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	s.RetryDegraded()
	if q := r.URL.Query(); q.Has("sort") {
		s.SetSort(app.ParseSort(q.Get("sort"), q.Get("dir")))
	}
	v := s.Snapshot()
	render(w, http.StatusOK, "dashboard.html", newDashboardPage(v, h.recent(r, activityOnPage)))
}

func (h *Handlers) dashboardJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, h.session(w, r).Snapshot())
}

func (h *Handlers) setFilters(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid form", err.Error())
		return
	}
	f, err := domain.ParseFilter(formValue(r, "listing_id"), formValue(r, "min_rating"), formValue(r, "channel"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid filter", err.Error())
		return
	}
	if err := h.session(w, r).SetFilter(f); err != nil {
		h.sessionProblem(w, err)
		return
	}
	backToDashboard(w, r)
}

// formValue treats a missing field as "all".
func formValue(r *http.Request, key string) string {
	if !r.Form.Has(key) {
		return domain.All
	}
	return r.Form.Get(key)
}

func (h *Handlers) setApproval(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "review id must be a positive number")
		return
	}
	approved, err := strconv.ParseBool(r.FormValue("approved"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid value", "approved must be true or false")
		return
	}
	if err := h.session(w, r).ToggleApproval(id, approved); err != nil {
		h.sessionProblem(w, err)
		return
	}
	backToDashboard(w, r)
}

func (h *Handlers) sync(w http.ResponseWriter, r *http.Request) {
	if err := h.session(w, r).Sync(); err != nil {
		h.sessionProblem(w, err)
		return
	}
	backToDashboard(w, r)
}

func (h *Handlers) dismissNotice(w http.ResponseWriter, r *http.Request) {
	h.session(w, r).DismissNotice()
	backToDashboard(w, r)
}

func (h *Handlers) sessionProblem(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrNoListingSelected):
		writeProblem(w, http.StatusConflict, "No listing selected", err.Error())
	case errors.Is(err, app.ErrSyncInProgress):
		writeProblem(w, http.StatusConflict, "Sync in progress", err.Error())
	case errors.Is(err, domain.ErrInvalidFilter):
		writeProblem(w, http.StatusBadRequest, "Invalid filter", err.Error())
	case errors.Is(err, app.ErrSessionClosed):
		writeProblem(w, http.StatusServiceUnavailable, "Session closed", "please reload the page")
	default:
		log.Error().Err(err).Msg("session action failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// ---- activity ----

func (h *Handlers) activity(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > activityMax {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 100")
			return
		}
		limit = l
	}
	evs, err := h.Cmd.Recent(r.Context(), limit)
	if err != nil {
		log.Warn().Err(err).Msg("journal read failed")
		writeProblem(w, http.StatusServiceUnavailable, "Journal unavailable", "")
		return
	}
	writeJSON(w, r, evs)
}

// recent is the dashboard's activity panel; a journal failure just hides it.
func (h *Handlers) recent(r *http.Request, limit int) []domain.ModerationEvent {
	evs, err := h.Cmd.Recent(r.Context(), limit)
	if err != nil {
		log.Warn().Err(err).Msg("journal read failed")
		return nil
	}
	return evs
}

// ---- public page ----

func (h *Handlers) property(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		render(w, http.StatusBadRequest, "error.html", errorPage{Title: "Invalid property", Message: "\"" + raw + "\" is not a property id."})
		return
	}
	render(w, http.StatusOK, "property.html", h.Q.Property(r.Context(), id))
}
