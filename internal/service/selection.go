package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"highlight_courier/internal/domain"
	"highlight_courier/internal/selection"
)

// SelectionService previews and commits selection cycles. Select is a pure
// read over a store snapshot; only CommitSelection touches show history.
type SelectionService struct {
	highlights HighlightStore
	logger     *slog.Logger
	newRng     func() *rand.Rand
	now        func() time.Time
}

func NewSelectionService(highlights HighlightStore, logger *slog.Logger) *SelectionService {
	return &SelectionService{
		highlights: highlights,
		logger:     logger,
		// A fresh generator per call: rand.Rand is not safe for concurrent
		// use, and Select runs from both the scheduler and request handlers.
		newRng: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
		now: time.Now,
	}
}

// Select chooses up to count highlights without mutating anything. Fewer
// matches than count shortens the result; zero matches is a valid empty
// result.
func (s *SelectionService) Select(ctx context.Context, count int, mode selection.Mode, c selection.Constraints) ([]domain.Highlight, error) {
	all, err := s.highlights.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list highlights: %w", err)
	}

	picked, err := selection.Pick(all, count, mode, c, s.now(), s.newRng())
	if err != nil {
		return nil, err
	}

	s.logger.Debug("selection preview",
		"mode", string(mode),
		"requested", count,
		"picked", len(picked),
		"candidates", len(all),
	)
	return picked, nil
}

// CommitSelection marks exactly the given ids as shown, one atomic increment
// per id. A failure on one id is collected and does not stop the others.
func (s *SelectionService) CommitSelection(ctx context.Context, ids []string) error {
	shownAt := s.now()
	var errs []error
	for _, id := range ids {
		if err := s.highlights.CommitShown(ctx, id, shownAt); err != nil {
			s.logger.Error("commit shown failed", "highlight_id", id, "error", err)
			errs = append(errs, fmt.Errorf("commit %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
