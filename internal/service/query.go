package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"highlight_courier/internal/domain"
)

// SearchFilters narrows a search. Zero values impose no restriction.
type SearchFilters struct {
	SourceID      string
	Category      *domain.Category
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	HasNote       *bool
}

// SortKey names a highlight ordering.
type SortKey string

const (
	SortByIngested SortKey = "ingested"
	SortByCreated  SortKey = "created"
	SortByCategory SortKey = "category"
	SortByPosition SortKey = "position"
)

// ParseSortKey validates a raw sort key. Empty maps to ingestion order.
func ParseSortKey(raw string) (SortKey, error) {
	if raw == "" {
		return SortByIngested, nil
	}
	k := SortKey(raw)
	switch k {
	case SortByIngested, SortByCreated, SortByCategory, SortByPosition:
		return k, nil
	}
	return "", domain.NewValidation("unknown sort key %q", raw)
}

// QueryService provides search, ordering and paging over the highlight store.
type QueryService struct {
	highlights HighlightStore
}

func NewQueryService(highlights HighlightStore) *QueryService {
	return &QueryService{highlights: highlights}
}

// Search returns highlights whose text, note, or any tag contains the query
// case-insensitively, narrowed by the filters. An empty query matches
// everything.
func (q *QueryService) Search(ctx context.Context, text string, filters SearchFilters) ([]domain.Highlight, error) {
	var (
		all []domain.Highlight
		err error
	)
	if filters.SourceID != "" {
		all, err = q.highlights.ListBySource(ctx, filters.SourceID)
	} else {
		all, err = q.highlights.List(ctx)
	}
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(text))
	out := make([]domain.Highlight, 0, len(all))
	for _, h := range all {
		if !matchesFilters(&h, filters) {
			continue
		}
		if needle != "" && !matchesText(&h, needle) {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func matchesText(h *domain.Highlight, needle string) bool {
	if strings.Contains(strings.ToLower(h.Text), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(h.Note), needle) {
		return true
	}
	for _, t := range h.Tags {
		if strings.Contains(strings.ToLower(t), needle) {
			return true
		}
	}
	return false
}

func matchesFilters(h *domain.Highlight, f SearchFilters) bool {
	if f.Category != nil && h.Category != *f.Category {
		return false
	}
	if f.CreatedAfter != nil && h.DateCreated.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && h.DateCreated.After(*f.CreatedBefore) {
		return false
	}
	if f.HasNote != nil && h.HasNote() != *f.HasNote {
		return false
	}
	return true
}

// SortHighlights returns a sorted copy; the input is never mutated.
func SortHighlights(highlights []domain.Highlight, key SortKey) []domain.Highlight {
	sorted := make([]domain.Highlight, len(highlights))
	copy(sorted, highlights)

	switch key {
	case SortByCreated:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].DateCreated.Before(sorted[j].DateCreated)
		})
	case SortByCategory:
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].Category != sorted[j].Category {
				return sorted[i].Category < sorted[j].Category
			}
			return sorted[i].DateCreated.After(sorted[j].DateCreated)
		})
	case SortByPosition:
		sort.SliceStable(sorted, func(i, j int) bool {
			return positionLess(&sorted[i], &sorted[j])
		})
	default:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].DateIngested.After(sorted[j].DateIngested)
		})
	}
	return sorted
}

// positionLess orders by the leading integer of the location label when both
// sides carry one, falls back to comparing the labels lexicographically, and
// breaks ties by creation date descending.
func positionLess(a, b *domain.Highlight) bool {
	pa, aok := domain.LeadingPosition(a.LocationLabel)
	pb, bok := domain.LeadingPosition(b.LocationLabel)

	switch {
	case aok && bok && pa != pb:
		return pa < pb
	case aok != bok:
		return aok
	case !aok && !bok && a.LocationLabel != b.LocationLabel:
		return a.LocationLabel < b.LocationLabel
	}
	return a.DateCreated.After(b.DateCreated)
}

// Paginate is a pure window over the slice. Pages are 1-based; out-of-range
// pages yield an empty slice, never an error.
func Paginate(highlights []domain.Highlight, pageSize, pageNumber int) []domain.Highlight {
	if pageSize <= 0 || pageNumber <= 0 {
		return []domain.Highlight{}
	}
	start := (pageNumber - 1) * pageSize
	if start >= len(highlights) {
		return []domain.Highlight{}
	}
	end := start + pageSize
	if end > len(highlights) {
		end = len(highlights)
	}
	return highlights[start:end]
}
