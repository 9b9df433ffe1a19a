// Package analysis aggregates citizen feedback into officer performance figures.
package analysis

import (
	"math"

	"civictrack/backend/internal/config"
)

// OfficerSummary is the feedback aggregate for one officer.
type OfficerSummary struct {
	TotalFeedbacks     int         `json:"totalFeedbacks"`
	AverageRating      float64     `json:"averageRating"`
	RatingDistribution map[int]int `json:"ratingDistribution"`
}

// Summarize builds an OfficerSummary from per-rating counts. Every rating in
// the allowed range is present in the distribution, zero or not; ratings
// outside it are ignored.
func Summarize(counts map[int]int) OfficerSummary {
	dist := make(map[int]int, config.MaxRating-config.MinRating+1)
	total, sum := 0, 0
	for r := config.MinRating; r <= config.MaxRating; r++ {
		n := counts[r]
		dist[r] = n
		total += n
		sum += n * r
	}

	s := OfficerSummary{TotalFeedbacks: total, RatingDistribution: dist}
	if total > 0 {
		s.AverageRating = math.Round(float64(sum)/float64(total)*100) / 100
	}
	return s
}
