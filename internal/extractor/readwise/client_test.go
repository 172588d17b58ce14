package readwise

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"highlight_courier/internal/domain"
)

func testClient(baseURL string) *Client {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(Config{
		BaseURL:        baseURL,
		Token:          "secret-token",
		PageSize:       100,
		Timeout:        5 * time.Second,
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}, logger)
}

func TestFetchBatch_TransformsExport(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(APIResponse{
			Count:    1,
			Page:     1,
			NumPages: 1,
			Results: []Book{
				{
					ID:            42,
					Title:         "Meditations",
					Author:        "Marcus Aurelius",
					CoverImageURL: "https://covers.example.com/42.jpg",
					Updated:       "2026-05-01T12:00:00Z",
					Highlights: []BookExcerpt{
						{
							Text:          "You have power over your mind.",
							Location:      128,
							LocationType:  "page",
							Note:          "core idea",
							Tags:          []APITag{{Name: "idea"}, {Name: "stoicism"}},
							HighlightedAt: "2026-04-30T08:00:00Z",
						},
						{Text: "   "}, // blank text becomes a per-item error
					},
				},
			},
		})
	}))
	defer srv.Close()

	batch, err := testClient(srv.URL).FetchBatch(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Token secret-token", gotAuth)

	require.Len(t, batch.Sources, 1)
	src := batch.Sources[0]
	assert.Equal(t, "42", src.ID)
	assert.Equal(t, "Meditations", src.Title)
	require.NotNil(t, src.CoverRef)
	assert.Equal(t, "https://covers.example.com/42.jpg", *src.CoverRef)
	assert.Equal(t, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC), src.LastUpdated)

	require.Len(t, batch.Highlights, 1)
	h := batch.Highlights[0]
	assert.Equal(t, domain.HighlightID("42", "You have power over your mind."), h.ID)
	assert.Equal(t, "128 (page)", h.LocationLabel)
	assert.Equal(t, "core idea", h.Note)
	// The tag matching a known category name doubles as the category.
	assert.Equal(t, domain.CategoryIdea, h.Category)
	assert.Equal(t, []string{"idea", "stoicism"}, h.Tags)
	assert.Equal(t, time.Date(2026, 4, 30, 8, 0, 0, 0, time.UTC), h.DateCreated)

	require.Len(t, batch.Errors, 1)
	assert.Contains(t, batch.Errors[0], "empty highlight text")
}

func TestFetchBatch_SurrogateIDWithoutCatalogID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(APIResponse{
			NumPages: 1,
			Results:  []Book{{Title: "Untitled Export", Author: "Anon"}},
		})
	}))
	defer srv.Close()

	batch, err := testClient(srv.URL).FetchBatch(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, batch.Sources, 1)
	assert.Equal(t, domain.SurrogateSourceID("Untitled Export", "Anon"), batch.Sources[0].ID)
}

func TestFetchBatch_StopsAtLastPage(t *testing.T) {
	pages := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		_ = json.NewEncoder(w).Encode(APIResponse{
			Page:     pages,
			NumPages: 2,
			Results:  []Book{{ID: int64(pages), Title: "Vol"}},
		})
	}))
	defer srv.Close()

	batch, err := testClient(srv.URL).FetchBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
	assert.Len(t, batch.Sources, 2)
}

func TestFetchBatch_KeepsPartialResultsOnPageError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_ = json.NewEncoder(w).Encode(APIResponse{
				Page:     1,
				NumPages: 3,
				Results:  []Book{{ID: 1, Title: "Kept"}},
			})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	batch, err := testClient(srv.URL).FetchBatch(context.Background(), 3)
	require.NoError(t, err)

	require.Len(t, batch.Sources, 1)
	assert.Equal(t, "Kept", batch.Sources[0].Title)
	require.Len(t, batch.Errors, 1)
	assert.Contains(t, batch.Errors[0], "fetch page 2")
}

func TestFetchBatch_RetriesBeforeFailing(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchBatch(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "after 2 attempts")
}
