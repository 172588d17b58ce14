// Package selection implements the strategies that choose which highlights
// get resurfaced in a delivery cycle. Every strategy is a pure function over
// a store snapshot; randomness comes from an injected rand source so tests
// stay deterministic.
package selection

import (
	"math/rand"
	"sort"
	"time"

	"highlight_courier/internal/domain"
)

// Mode names a selection strategy.
type Mode string

const (
	ModeRandom           Mode = "random"
	ModeSpacedRepetition Mode = "spaced-repetition"
	ModeOldestFirst      Mode = "oldest-first"
	ModeNewestFirst      Mode = "newest-first"
	ModeBalancedBySource Mode = "balanced-by-source"
	ModeWeighted         Mode = "weighted"
)

// DefaultMode is used when no mode is configured.
const DefaultMode = ModeSpacedRepetition

// ParseMode validates a raw mode string. An empty string maps to the default.
func ParseMode(raw string) (Mode, error) {
	if raw == "" {
		return DefaultMode, nil
	}
	m := Mode(raw)
	switch m {
	case ModeRandom, ModeSpacedRepetition, ModeOldestFirst, ModeNewestFirst,
		ModeBalancedBySource, ModeWeighted:
		return m, nil
	}
	return "", domain.NewValidation("unknown selection mode %q", raw)
}

// Constraints narrows the candidate set before ranking. Empty allow-lists
// impose no restriction.
type Constraints struct {
	Sources    []string
	Categories []domain.Category
	MinAge     time.Duration
}

// Apply returns the highlights satisfying every constraint.
func (c Constraints) Apply(highlights []domain.Highlight, now time.Time) []domain.Highlight {
	sources := toSet(c.Sources)
	categories := make(map[domain.Category]struct{}, len(c.Categories))
	for _, cat := range c.Categories {
		categories[cat] = struct{}{}
	}

	out := make([]domain.Highlight, 0, len(highlights))
	for _, h := range highlights {
		if len(sources) > 0 {
			if _, ok := sources[h.SourceID]; !ok {
				continue
			}
		}
		if len(categories) > 0 {
			if _, ok := categories[h.Category]; !ok {
				continue
			}
		}
		if c.MinAge > 0 && now.Sub(h.DateCreated) < c.MinAge {
			continue
		}
		out = append(out, h)
	}
	return out
}

// Pick chooses up to count highlights with the given mode. Fewer candidates
// than count is not an error; the result is simply shorter, possibly empty.
func Pick(highlights []domain.Highlight, count int, mode Mode, c Constraints, now time.Time, rng *rand.Rand) ([]domain.Highlight, error) {
	if count < 0 {
		return nil, domain.NewValidation("negative selection count %d", count)
	}

	candidates := c.Apply(highlights, now)
	if len(candidates) == 0 || count == 0 {
		return []domain.Highlight{}, nil
	}

	switch mode {
	case ModeRandom:
		return pickRandom(candidates, count, rng), nil
	case ModeOldestFirst:
		return pickByCreation(candidates, count, true), nil
	case ModeNewestFirst:
		return pickByCreation(candidates, count, false), nil
	case ModeSpacedRepetition:
		return pickSpacedRepetition(candidates, count, now, rng), nil
	case ModeBalancedBySource:
		return pickBalanced(candidates, count), nil
	case ModeWeighted:
		return pickWeighted(candidates, count, DefaultWeights, now, rng), nil
	}
	return nil, domain.NewValidation("unknown selection mode %q", mode)
}

func pickRandom(candidates []domain.Highlight, count int, rng *rand.Rand) []domain.Highlight {
	shuffled := make([]domain.Highlight, len(candidates))
	copy(shuffled, candidates)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:min(count, len(shuffled))]
}

func pickByCreation(candidates []domain.Highlight, count int, oldestFirst bool) []domain.Highlight {
	sorted := make([]domain.Highlight, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if oldestFirst {
			return sorted[i].DateCreated.Before(sorted[j].DateCreated)
		}
		return sorted[i].DateCreated.After(sorted[j].DateCreated)
	})
	return sorted[:min(count, len(sorted))]
}

// pickBalanced round-robins one highlight per source, largest sources first,
// preferring never-shown entries within each source, wrapping around until
// count is met or every source is drained.
func pickBalanced(candidates []domain.Highlight, count int) []domain.Highlight {
	bySource := make(map[string][]domain.Highlight)
	for _, h := range candidates {
		bySource[h.SourceID] = append(bySource[h.SourceID], h)
	}

	sourceIDs := make([]string, 0, len(bySource))
	for id := range bySource {
		sourceIDs = append(sourceIDs, id)
	}
	sort.Slice(sourceIDs, func(i, j int) bool {
		a, b := sourceIDs[i], sourceIDs[j]
		if len(bySource[a]) != len(bySource[b]) {
			return len(bySource[a]) > len(bySource[b])
		}
		return a < b
	})

	for _, id := range sourceIDs {
		queue := bySource[id]
		sort.SliceStable(queue, func(i, j int) bool {
			if queue[i].NeverShown() != queue[j].NeverShown() {
				return queue[i].NeverShown()
			}
			return queue[i].DateCreated.Before(queue[j].DateCreated)
		})
	}

	picked := make([]domain.Highlight, 0, count)
	for len(picked) < count {
		drained := true
		for _, id := range sourceIDs {
			queue := bySource[id]
			if len(queue) == 0 {
				continue
			}
			drained = false
			picked = append(picked, queue[0])
			bySource[id] = queue[1:]
			if len(picked) == count {
				return picked
			}
		}
		if drained {
			break
		}
	}
	return picked
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
