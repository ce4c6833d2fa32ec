package domain

// CategoryScale is the upper bound of every category rating.
const CategoryScale = 10

// AggregateStats is derived from the currently filtered review set and is
// never stored.
type AggregateStats struct {
	TotalReviews     int               `json:"total_reviews"`
	AverageRating    string            `json:"average_rating"`
	ApprovedCount    int               `json:"approved_count"`
	CategoryAverages []CategoryAverage `json:"category_averages"`
}

type CategoryAverage struct {
	Label      string  `json:"label"`
	MeanRating float64 `json:"mean_rating"`
	MaxScale   int     `json:"max_scale"`
}
