package selection

import (
	"math/rand"
	"sort"
	"time"

	"highlight_courier/internal/domain"
)

// IntervalLadder is the ascending review schedule in days: a highlight shown
// n times is due again ladder[min(n, len-1)] days after its last showing.
// Scores are always recomputed from the current ladder; which ladder produced
// an existing times_shown value is not persisted.
var IntervalLadder = []float64{1, 3, 7, 14, 30, 90, 180, 365}

// neverShownDays stands in for "never shown" so untouched highlights rank as
// maximally overdue.
const neverShownDays = 3650

const jitterSpan = 0.05

// OverdueRatio is the base spaced-repetition score: days since the last
// showing divided by the target interval for the current show count. Older
// last-shown times always score at least as high as newer ones.
func OverdueRatio(h *domain.Highlight, now time.Time) float64 {
	days := float64(neverShownDays)
	if h.LastShownAt != nil {
		days = now.Sub(*h.LastShownAt).Hours() / 24
		if days < 0 {
			days = 0
		}
	}

	idx := h.TimesShown
	if idx >= len(IntervalLadder) {
		idx = len(IntervalLadder) - 1
	}
	return days / IntervalLadder[idx]
}

// SpacedRepetitionScore applies the engagement multipliers and tie-breaking
// jitter on top of the overdue ratio: noted highlights get a 1.5x boost,
// tagged ones 1.2x, and heavily shown ones (more than 5 times) decay to 0.8x.
func SpacedRepetitionScore(h *domain.Highlight, now time.Time, rng *rand.Rand) float64 {
	score := OverdueRatio(h, now)
	if h.HasNote() {
		score *= 1.5
	}
	if len(h.Tags) > 0 {
		score *= 1.2
	}
	if h.TimesShown > 5 {
		score *= 0.8
	}
	return score + rng.Float64()*jitterSpan
}

// pickSpacedRepetition ranks by score descending, then samples count entries
// without replacement from the top 2*count, so the very top of the ranking
// does not monopolize every cycle.
func pickSpacedRepetition(candidates []domain.Highlight, count int, now time.Time, rng *rand.Rand) []domain.Highlight {
	type scored struct {
		h     domain.Highlight
		score float64
	}

	ranked := make([]scored, len(candidates))
	for i, h := range candidates {
		ranked[i] = scored{h: h, score: SpacedRepetitionScore(&candidates[i], now, rng)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	pool := ranked[:min(2*count, len(ranked))]
	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	picked := make([]domain.Highlight, 0, count)
	for i := 0; i < len(pool) && len(picked) < count; i++ {
		picked = append(picked, pool[i].h)
	}
	return picked
}

// WeightedConfig is the weight vector of the multi-criteria strategy. The
// fields should sum to 1 so component scores stay comparable across configs.
type WeightedConfig struct {
	SpacedRep    float64
	HasNote      float64
	Recency      float64
	InverseShown float64
	HasTags      float64
	Random       float64
}

// DefaultWeights favors overdue highlights while still nudging noted, fresh,
// and rarely shown ones upward.
var DefaultWeights = WeightedConfig{
	SpacedRep:    0.40,
	HasNote:      0.20,
	Recency:      0.15,
	InverseShown: 0.10,
	HasTags:      0.10,
	Random:       0.05,
}

// WeightedScore combines normalized components under the given weights.
// maxOverdue is the largest overdue ratio across the candidate set, used to
// normalize the spaced-repetition component into [0, 1].
func WeightedScore(h *domain.Highlight, cfg WeightedConfig, maxOverdue float64, now time.Time, rng *rand.Rand) float64 {
	srNorm := 0.0
	if maxOverdue > 0 {
		srNorm = OverdueRatio(h, now) / maxOverdue
	}

	ageDays := now.Sub(h.DateCreated).Hours() / 24
	recency := 1 - ageDays/365
	if recency < 0 {
		recency = 0
	}

	score := cfg.SpacedRep * srNorm
	if h.HasNote() {
		score += cfg.HasNote
	}
	score += cfg.Recency * recency
	score += cfg.InverseShown / float64(1+h.TimesShown)
	if len(h.Tags) > 0 {
		score += cfg.HasTags
	}
	score += cfg.Random * rng.Float64()
	return score
}

func pickWeighted(candidates []domain.Highlight, count int, cfg WeightedConfig, now time.Time, rng *rand.Rand) []domain.Highlight {
	maxOverdue := 0.0
	for i := range candidates {
		if r := OverdueRatio(&candidates[i], now); r > maxOverdue {
			maxOverdue = r
		}
	}

	type scored struct {
		h     domain.Highlight
		score float64
	}
	ranked := make([]scored, len(candidates))
	for i := range candidates {
		ranked[i] = scored{h: candidates[i], score: WeightedScore(&candidates[i], cfg, maxOverdue, now, rng)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	picked := make([]domain.Highlight, 0, count)
	for i := 0; i < len(ranked) && len(picked) < count; i++ {
		picked = append(picked, ranked[i].h)
	}
	return picked
}
