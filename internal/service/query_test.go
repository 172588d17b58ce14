package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"highlight_courier/internal/domain"
	"highlight_courier/internal/service/mocks"
)

func day(n int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestParseSortKey(t *testing.T) {
	tests := []struct {
		raw     string
		want    SortKey
		wantErr bool
	}{
		{"", SortByIngested, false},
		{"created", SortByCreated, false},
		{"category", SortByCategory, false},
		{"position", SortByPosition, false},
		{"shuffle", "", true},
	}

	for _, tt := range tests {
		t.Run("key_"+tt.raw, func(t *testing.T) {
			got, err := ParseSortKey(tt.raw)
			if tt.wantErr {
				assert.True(t, domain.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearch_TextAndFilters(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockHighlightStore(ctrl)
	q := NewQueryService(store)
	ctx := context.Background()

	stored := []domain.Highlight{
		{ID: "h1", SourceID: "s1", Text: "The map is not the territory", Category: domain.CategoryIdea, DateCreated: day(0)},
		{ID: "h2", SourceID: "s1", Text: "Plain sentence", Note: "about maps", Category: domain.CategoryGeneral, DateCreated: day(5)},
		{ID: "h3", SourceID: "s2", Text: "Unrelated", Tags: []string{"Mapping"}, Category: domain.CategoryIdea, DateCreated: day(10)},
	}
	store.EXPECT().List(ctx).Return(stored, nil).AnyTimes()

	// Case-insensitive match across text, note, and tags.
	got, err := q.Search(ctx, "MAP", SearchFilters{})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	// Category filter narrows further.
	idea := domain.CategoryIdea
	got, err = q.Search(ctx, "map", SearchFilters{Category: &idea})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "h1", got[0].ID)

	// Date window.
	after := day(3)
	got, err = q.Search(ctx, "", SearchFilters{CreatedAfter: &after})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Note presence.
	hasNote := true
	got, err = q.Search(ctx, "", SearchFilters{HasNote: &hasNote})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "h2", got[0].ID)
}

func TestSearch_BySourceUsesSourceListing(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockHighlightStore(ctrl)
	q := NewQueryService(store)
	ctx := context.Background()

	store.EXPECT().ListBySource(ctx, "s2").Return([]domain.Highlight{
		{ID: "h3", SourceID: "s2", Text: "Only one here", DateCreated: day(0)},
	}, nil)

	got, err := q.Search(ctx, "", SearchFilters{SourceID: "s2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "h3", got[0].ID)
}

func TestSortHighlights_Position(t *testing.T) {
	highlights := []domain.Highlight{
		{ID: "late", LocationLabel: "120", DateCreated: day(1)},
		{ID: "early", LocationLabel: "15 (page)", DateCreated: day(2)},
		{ID: "nolabel-b", LocationLabel: "chapter two", DateCreated: day(3)},
		{ID: "nolabel-a", LocationLabel: "appendix", DateCreated: day(4)},
	}

	sorted := SortHighlights(highlights, SortByPosition)

	// Numeric labels first in numeric order, then label-less lexicographically.
	assert.Equal(t, []string{"early", "late", "nolabel-a", "nolabel-b"},
		[]string{sorted[0].ID, sorted[1].ID, sorted[2].ID, sorted[3].ID})

	// Input order untouched.
	assert.Equal(t, "late", highlights[0].ID)
}

func TestSortHighlights_IngestedIsDefault(t *testing.T) {
	highlights := []domain.Highlight{
		{ID: "old", DateIngested: day(0)},
		{ID: "new", DateIngested: day(9)},
	}

	sorted := SortHighlights(highlights, SortByIngested)
	assert.Equal(t, "new", sorted[0].ID)

	sorted = SortHighlights(highlights, SortByCreated)
	assert.Equal(t, "old", sorted[0].ID)
}

func TestPaginate(t *testing.T) {
	highlights := make([]domain.Highlight, 7)
	for i := range highlights {
		highlights[i].ID = string(rune('a' + i))
	}

	assert.Len(t, Paginate(highlights, 3, 1), 3)
	assert.Len(t, Paginate(highlights, 3, 3), 1)
	assert.Empty(t, Paginate(highlights, 3, 4))
	assert.Empty(t, Paginate(highlights, 0, 1))
	assert.Empty(t, Paginate(highlights, 3, 0))

	page2 := Paginate(highlights, 3, 2)
	require.Len(t, page2, 3)
	assert.Equal(t, "d", page2[0].ID)
}
