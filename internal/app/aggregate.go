package app

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/ArshadYameen/flex-living-dashboard/internal/domain"
)

// Aggregate derives the dashboard summary from the filtered review set.
// Means are rounded half-up to one decimal place. Category groups appear in
// the order their category is first seen.
func Aggregate(reviews []domain.Review) domain.AggregateStats {
	stats := domain.AggregateStats{
		TotalReviews:     len(reviews),
		AverageRating:    "0.0",
		CategoryAverages: []domain.CategoryAverage{},
	}
	if len(reviews) == 0 {
		return stats
	}

	type group struct {
		sum   decimal.Decimal
		count int64
	}
	groups := make(map[string]*group)
	var order []string

	total := decimal.Zero
	for _, r := range reviews {
		total = total.Add(decimal.NewFromFloat(r.OverallRating))
		if r.IsApproved {
			stats.ApprovedCount++
		}
		for _, cr := range r.CategoryRatings {
			if cr == nil || cr.Category == "" {
				continue
			}
			g, ok := groups[cr.Category]
			if !ok {
				g = &group{}
				groups[cr.Category] = g
				order = append(order, cr.Category)
			}
			g.sum = g.sum.Add(decimal.NewFromFloat(cr.Rating))
			g.count++
		}
	}

	stats.AverageRating = mean(total, int64(len(reviews))).StringFixed(1)
	for _, cat := range order {
		g := groups[cat]
		stats.CategoryAverages = append(stats.CategoryAverages, domain.CategoryAverage{
			Label:      FormatCategoryLabel(cat),
			MeanRating: mean(g.sum, g.count).InexactFloat64(),
			MaxScale:   domain.CategoryScale,
		})
	}
	return stats
}

// mean rounds half away from zero, which is half-up for ratings.
func mean(sum decimal.Decimal, n int64) decimal.Decimal {
	return sum.Div(decimal.NewFromInt(n)).Round(1)
}

// FormatCategoryLabel turns a snake_case category into a display label:
// "respect_house_rules" -> "Respect House Rules". Only the first letter of
// each word changes.
func FormatCategoryLabel(category string) string {
	words := strings.Split(category, "_")
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if size == 0 {
			continue
		}
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
