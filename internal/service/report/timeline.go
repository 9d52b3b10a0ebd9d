// Package report builds the sentiment timeline and the downloadable call artifacts.
package report

import (
	"math"

	"call-assist-service/internal/models"
)

// Range is an inclusive span of sealed-block indices tied to one sentiment result.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Ranges partitions the sealed history by sentiment result, in result order.
// Range j runs from the previous result's InsertAfterIndex+1 to this one's. Results
// may resolve out of order, so a reversed pair is swapped rather than dropped.
func Ranges(results []models.SentimentResult) []Range {
	out := make([]Range, 0, len(results))
	for j, r := range results {
		lo := -1
		if j > 0 {
			lo = results[j-1].InsertAfterIndex
		}
		hi := r.InsertAfterIndex
		if hi < lo {
			lo, hi = hi, lo
		}
		start, end := lo+1, hi
		if start > end {
			start = end
		}
		if start < 0 {
			start = 0
		}
		if end < start {
			end = start
		}
		out = append(out, Range{Start: start, End: end})
	}
	return out
}

// ScoreToBar maps a score in [-1, 1] to a 0..100 display bar.
func ScoreToBar(score float64) int {
	bar := int(math.Round((score + 1) * 50))
	switch {
	case bar < 0:
		return 0
	case bar > 100:
		return 100
	}
	return bar
}

// TimelineEntry is one sentiment result prepared for display.
type TimelineEntry struct {
	models.SentimentResult
	Range Range `json:"range"`
	Bar   int   `json:"bar"`
}

// Timeline pairs each result with its range and bar.
func Timeline(results []models.SentimentResult) []TimelineEntry {
	ranges := Ranges(results)
	out := make([]TimelineEntry, len(results))
	for i, r := range results {
		out[i] = TimelineEntry{SentimentResult: r, Range: ranges[i], Bar: ScoreToBar(r.Score)}
	}
	return out
}
