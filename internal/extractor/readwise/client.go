// Package readwise implements the content-extractor boundary against a
// Readwise-style export API. It never fails a whole batch on one bad item:
// per-item problems are reported in the batch's error list.
package readwise

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"highlight_courier/internal/domain"
)

const (
	SourceID   = "readwise"
	SourceName = "Readwise Export"
)

type Config struct {
	BaseURL        string
	Token          string
	PageSize       int
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Client struct {
	httpClient     *http.Client
	baseURL        string
	token          string
	pageSize       int
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		token:          cfg.Token,
		pageSize:       cfg.PageSize,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("extractor", SourceID),
	}
}

func (c *Client) ID() string {
	return SourceID
}

func (c *Client) Name() string {
	return SourceName
}

// FetchBatch pulls up to maxPages export pages and transforms them. Pages
// fetched before an error still make it into the batch.
func (c *Client) FetchBatch(ctx context.Context, maxPages int) (*domain.ExtractBatch, error) {
	var books []Book

	for page := 1; page <= maxPages; page++ {
		resp, err := c.fetchPage(ctx, page)
		if err != nil {
			if len(books) == 0 {
				return nil, fmt.Errorf("fetch page %d: %w", page, err)
			}
			batch := c.transform(books)
			batch.Errors = append(batch.Errors, fmt.Sprintf("fetch page %d: %v", page, err))
			return batch, nil
		}

		books = append(books, resp.Results...)

		c.logger.Debug("fetched page",
			"page", page,
			"books", len(resp.Results),
			"total", len(books),
		)

		if page >= resp.NumPages {
			break
		}
	}

	return c.transform(books), nil
}

func (c *Client) fetchPage(ctx context.Context, page int) (*APIResponse, error) {
	url := fmt.Sprintf("%s/export/?page_size=%d&page=%d", c.baseURL, c.pageSize, page)

	var resp *APIResponse
	var err error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err = c.doRequest(ctx, url)
		if err == nil {
			return resp, nil
		}

		if attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", c.maxAttempts, err)
}

func (c *Client) doRequest(ctx context.Context, url string) (*APIResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("User-Agent", "HighlightCourier/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var apiResp APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &apiResp, nil
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}

func (c *Client) transform(books []Book) *domain.ExtractBatch {
	batch := &domain.ExtractBatch{}

	for _, b := range books {
		sourceID := strconv.FormatInt(b.ID, 10)
		if b.ID == 0 {
			sourceID = domain.SurrogateSourceID(b.Title, b.Author)
		}

		src := domain.Source{
			ID:      sourceID,
			Title:   b.Title,
			Creator: b.Author,
		}
		if b.CoverImageURL != "" {
			cover := b.CoverImageURL
			src.CoverRef = &cover
		}
		if b.Updated != "" {
			if t, err := time.Parse(time.RFC3339, b.Updated); err == nil {
				src.LastUpdated = t
			}
		}
		batch.Sources = append(batch.Sources, src)

		for _, e := range b.Highlights {
			if strings.TrimSpace(e.Text) == "" {
				batch.Errors = append(batch.Errors,
					fmt.Sprintf("source %s: empty highlight text", sourceID))
				continue
			}

			h := domain.Highlight{
				ID:            domain.HighlightID(sourceID, e.Text),
				SourceID:      sourceID,
				Text:          e.Text,
				LocationLabel: locationLabel(e),
				Note:          e.Note,
				Category:      categoryFromTags(e.Tags),
			}
			for _, t := range e.Tags {
				if t.Name != "" {
					h.Tags = append(h.Tags, t.Name)
				}
			}
			if e.HighlightedAt != "" {
				t, err := time.Parse(time.RFC3339, e.HighlightedAt)
				if err != nil {
					batch.Errors = append(batch.Errors,
						fmt.Sprintf("highlight %s: bad date %q", h.ID, e.HighlightedAt))
				} else {
					h.DateCreated = t
				}
			}
			batch.Highlights = append(batch.Highlights, h)
		}
	}

	return batch
}

func locationLabel(e BookExcerpt) string {
	if e.Location == 0 {
		return ""
	}
	if e.LocationType != "" {
		return fmt.Sprintf("%d (%s)", e.Location, e.LocationType)
	}
	return strconv.Itoa(e.Location)
}

// categoryFromTags picks up a category when the user tagged the highlight
// with one of the known category names.
func categoryFromTags(tags []APITag) domain.Category {
	for _, t := range tags {
		c := domain.Category(strings.ToLower(t.Name))
		for _, known := range domain.Categories {
			if c == known {
				return c
			}
		}
	}
	return domain.CategoryGeneral
}
