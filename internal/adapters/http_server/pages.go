package httpserver

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/ArshadYameen/flex-living-dashboard/internal/app"
	"github.com/ArshadYameen/flex-living-dashboard/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("").Funcs(template.FuncMap{
	"when": func(e domain.ModerationEvent) string { return e.CreatedAt.Local().Format("Jan 2 15:04") },
}).ParseFS(templateFS, "templates/*.html"))

// render executes into a buffer first so a template error never leaves a
// half-written page behind.
func render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("render failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "page rendering failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		log.Error().Err(err).Str("template", name).Msg("write page failed")
	}
}

type option struct {
	Value, Label string
	Selected     bool
}

type activityItem struct {
	Event  domain.ModerationEvent
	Text   string
	Failed bool
}

type dashboardPage struct {
	app.View
	ListingOptions []option
	RatingOptions  []option
	ChannelOptions []option
	Activity       []activityItem
}

type errorPage struct {
	Title, Message string
}

var knownChannels = []option{{Value: "hostaway", Label: "Hostaway"}, {Value: "google", Label: "Google"}}

func newDashboardPage(v app.View, evs []domain.ModerationEvent) dashboardPage {
	p := dashboardPage{View: v}

	cur := v.Filter.ListingValue()
	p.ListingOptions = append(p.ListingOptions, option{Value: domain.All, Label: "All Properties", Selected: cur == domain.All})
	for _, l := range v.Listings {
		val := strconv.FormatInt(l.ID, 10)
		p.ListingOptions = append(p.ListingOptions, option{Value: val, Label: l.Name, Selected: cur == val})
	}
	p.ListingOptions = keepSelected(p.ListingOptions, cur, "Property #"+cur)

	cur = v.Filter.MinRatingValue()
	p.RatingOptions = append(p.RatingOptions, option{Value: domain.All, Label: "Any Rating", Selected: cur == domain.All})
	for n := 9; n >= 1; n-- {
		val := strconv.Itoa(n)
		p.RatingOptions = append(p.RatingOptions, option{Value: val, Label: val + "+ Stars", Selected: cur == val})
	}
	p.RatingOptions = keepSelected(p.RatingOptions, cur, cur+"+ Stars")

	cur = v.Filter.ChannelValue()
	p.ChannelOptions = append(p.ChannelOptions, option{Value: domain.All, Label: "All Channels", Selected: cur == domain.All})
	for _, c := range knownChannels {
		c.Selected = cur == c.Value
		p.ChannelOptions = append(p.ChannelOptions, c)
	}
	p.ChannelOptions = keepSelected(p.ChannelOptions, cur, cur)

	for _, e := range evs {
		p.Activity = append(p.Activity, activityItem{Event: e, Text: describe(e), Failed: e.Outcome == domain.OutcomeFailed})
	}
	return p
}

// keepSelected appends the current value when no option matches it, so a
// filter set through the API still shows in the form.
func keepSelected(opts []option, cur, label string) []option {
	for _, o := range opts {
		if o.Selected {
			return opts
		}
	}
	return append(opts, option{Value: cur, Label: label, Selected: true})
}

func describe(e domain.ModerationEvent) string {
	var s string
	switch e.Kind {
	case domain.EventApproval:
		verb := "hidden from"
		if e.Approved != nil && *e.Approved {
			verb = "approved for"
		}
		s = fmt.Sprintf("Review #%d %s website", deref(e.ReviewID), verb)
	case domain.EventSync:
		s = fmt.Sprintf("Google sync for listing #%d", deref(e.ListingID))
		if e.Added != nil {
			s += fmt.Sprintf(", %d new", *e.Added)
		}
	default:
		s = string(e.Kind)
	}
	if e.Outcome == domain.OutcomeFailed {
		s += " failed"
		if e.Detail != "" {
			s += ": " + e.Detail
		}
	}
	return s
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// SortHref links a column header: the active column flips direction, any
// other column starts in its default direction.
func (p dashboardPage) SortHref(key string) string {
	spec := app.ParseSort(key, "")
	if spec.Key == p.Sort.Key {
		spec.Desc = !p.Sort.Desc
	}
	dir := "asc"
	if spec.Desc {
		dir = "desc"
	}
	return "/dashboard?sort=" + string(spec.Key) + "&dir=" + dir
}

func (p dashboardPage) SortMark(key string) string {
	if string(p.Sort.Key) != key {
		return ""
	}
	if p.Sort.Desc {
		return "▼"
	}
	return "▲"
}
