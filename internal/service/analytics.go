package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"highlight_courier/internal/domain"
)

// Stats is the basic aggregate view of the corpus.
type Stats struct {
	TotalHighlights int                     `json:"total_highlights"`
	TotalSources    int                     `json:"total_sources"`
	ByCategory      map[domain.Category]int `json:"by_category"`
	TopCategory     domain.Category         `json:"top_category"`
	WithNotes       int                     `json:"with_notes"`
}

// TagCount is one entry of a tag frequency ranking.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// SourceCount identifies the source holding the most highlights.
type SourceCount struct {
	SourceID string `json:"source_id"`
	Title    string `json:"title"`
	Count    int    `json:"count"`
}

// AdvancedStats is the extended aggregate view.
type AdvancedStats struct {
	DistinctTags  int          `json:"distinct_tags"`
	TopTags       []TagCount   `json:"top_tags"`
	BusiestSource *SourceCount `json:"busiest_source,omitempty"`
	SpanDays      int          `json:"span_days"`
	AvgPerDay     float64      `json:"avg_per_day"`
}

// AnalyticsService computes read-only aggregates over the current store
// state. Outputs are deterministic for a given store state.
type AnalyticsService struct {
	sources    SourceStore
	highlights HighlightStore
}

func NewAnalyticsService(sources SourceStore, highlights HighlightStore) *AnalyticsService {
	return &AnalyticsService{sources: sources, highlights: highlights}
}

func (a *AnalyticsService) Stats(ctx context.Context) (*Stats, error) {
	highlights, err := a.highlights.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list highlights: %w", err)
	}
	sources, err := a.sources.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	stats := &Stats{
		TotalHighlights: len(highlights),
		TotalSources:    len(sources),
		ByCategory:      make(map[domain.Category]int),
	}
	for i := range highlights {
		stats.ByCategory[highlights[i].Category]++
		if highlights[i].HasNote() {
			stats.WithNotes++
		}
	}

	best := 0
	for _, cat := range domain.Categories {
		if n := stats.ByCategory[cat]; n > best {
			best = n
			stats.TopCategory = cat
		}
	}
	return stats, nil
}

func (a *AnalyticsService) AdvancedStats(ctx context.Context, topN int) (*AdvancedStats, error) {
	highlights, err := a.highlights.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list highlights: %w", err)
	}
	sources, err := a.sources.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	stats := &AdvancedStats{}
	if len(highlights) == 0 {
		return stats, nil
	}

	tagFreq := make(map[string]int)
	perSource := make(map[string]int)
	oldest, newest := highlights[0].DateCreated, highlights[0].DateCreated
	for i := range highlights {
		h := &highlights[i]
		for _, t := range h.Tags {
			tagFreq[strings.ToLower(t)]++
		}
		perSource[h.SourceID]++
		if h.DateCreated.Before(oldest) {
			oldest = h.DateCreated
		}
		if h.DateCreated.After(newest) {
			newest = h.DateCreated
		}
	}

	stats.DistinctTags = len(tagFreq)
	stats.TopTags = topTags(tagFreq, topN)
	stats.BusiestSource = busiestSource(perSource, sources)

	// A single-day corpus still spans one day, so the average never divides
	// by zero.
	spanDays := int(newest.Sub(oldest).Hours() / 24)
	if spanDays < 1 {
		spanDays = 1
	}
	stats.SpanDays = spanDays
	stats.AvgPerDay = float64(len(highlights)) / float64(spanDays)

	return stats, nil
}

func topTags(freq map[string]int, n int) []TagCount {
	counts := make([]TagCount, 0, len(freq))
	for tag, count := range freq {
		counts = append(counts, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Tag < counts[j].Tag
	})
	if n > 0 && len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

// busiestSource picks the source with the most highlights; ties go to the
// most recently updated source.
func busiestSource(perSource map[string]int, sources []domain.Source) *SourceCount {
	byID := make(map[string]*domain.Source, len(sources))
	for i := range sources {
		byID[sources[i].ID] = &sources[i]
	}

	var best *SourceCount
	var bestSrc *domain.Source
	ids := make([]string, 0, len(perSource))
	for id := range perSource {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		count := perSource[id]
		src := byID[id]
		if best == nil || count > best.Count {
			best = &SourceCount{SourceID: id, Count: count}
			bestSrc = src
		} else if count == best.Count && src != nil && bestSrc != nil &&
			src.LastUpdated.After(bestSrc.LastUpdated) {
			best = &SourceCount{SourceID: id, Count: count}
			bestSrc = src
		}
	}
	if best != nil && bestSrc != nil {
		best.Title = bestSrc.Title
	}
	return best
}
