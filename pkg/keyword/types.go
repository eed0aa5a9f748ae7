// Package keyword holds the domain types shared across the cache,
// adapters, queue and HTTP surface.
package keyword

import (
	"math"
	"time"
)

// MetricRecord is the cached value for a single keyword. Nil fields mean
// "not determined"; a zero volume means the upstream reported zero.
type MetricRecord struct {
	AdsMonthlyVolume *int64   `json:"googleAdsAvgMonthlySearches"`
	TrendsScore      *float64 `json:"googleTrendsScore"`
	CachedAt         int64    `json:"cached_at"`
}

// Metric is the per-keyword result returned to callers.
type Metric struct {
	Keyword          string   `json:"keyword"`
	AdsMonthlyVolume *int64   `json:"googleAdsAvgMonthlySearches"`
	TrendsScore      *float64 `json:"googleTrendsScore"`
}

// NewRecord builds a MetricRecord stamped with now. The trends score is
// rounded to one decimal before storage.
func NewRecord(adsVolume *int64, trendsScore *float64, now time.Time) MetricRecord {
	return MetricRecord{
		AdsMonthlyVolume: adsVolume,
		TrendsScore:      RoundScorePtr(trendsScore),
		CachedAt:         now.Unix(),
	}
}

// RoundScore rounds a trends score to one decimal place.
func RoundScore(score float64) float64 {
	return math.Round(score*10) / 10
}

// RoundScorePtr rounds a possibly-absent trends score to one decimal.
func RoundScorePtr(score *float64) *float64 {
	if score == nil {
		return nil
	}
	rounded := RoundScore(*score)
	return &rounded
}

// Dedupe removes duplicate keywords preserving first-occurrence order.
func Dedupe(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	unique := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		unique = append(unique, kw)
	}
	return unique
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 { return &v }

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 { return &v }
