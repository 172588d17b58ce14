package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"
)

// Category classifies a highlight. Unknown values collapse to CategoryGeneral.
type Category string

const (
	CategoryGeneral    Category = "general"
	CategoryQuote      Category = "quote"
	CategoryIdea       Category = "idea"
	CategoryReference  Category = "reference"
	CategoryVocabulary Category = "vocabulary"
)

// Categories lists every valid category.
var Categories = []Category{
	CategoryGeneral,
	CategoryQuote,
	CategoryIdea,
	CategoryReference,
	CategoryVocabulary,
}

// Valid reports whether the category is one of the known values.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory maps a raw string to a Category, defaulting to general.
func ParseCategory(raw string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	if c.Valid() {
		return c
	}
	return CategoryGeneral
}

// Source is a work (e.g. a book) that highlights belong to.
type Source struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Creator     string    `db:"creator" json:"creator"`
	CoverRef    *string   `db:"cover_ref" json:"cover_ref,omitempty"`
	LastUpdated time.Time `db:"last_updated" json:"last_updated"`
}

// Highlight is one stored excerpt with its show history.
type Highlight struct {
	ID            string     `db:"id" json:"id"`
	SourceID      string     `db:"source_id" json:"source_id"`
	Text          string     `db:"text" json:"text"`
	LocationLabel string     `db:"location_label" json:"location_label"`
	PageNumber    *int       `db:"page_number" json:"page_number,omitempty"`
	DateCreated   time.Time  `db:"date_created" json:"date_created"`
	DateIngested  time.Time  `db:"date_ingested" json:"date_ingested"`
	Category      Category   `db:"category" json:"category"`
	Note          string     `db:"note" json:"note,omitempty"`
	Tags          []string   `db:"-" json:"tags"`
	TimesShown    int        `db:"times_shown" json:"times_shown"`
	LastShownAt   *time.Time `db:"last_shown_at" json:"last_shown_at,omitempty"`
}

// HasNote reports whether the highlight carries a non-empty user note.
func (h *Highlight) HasNote() bool {
	return strings.TrimSpace(h.Note) != ""
}

// NeverShown reports whether the highlight has never been delivered.
func (h *Highlight) NeverShown() bool {
	return h.TimesShown == 0 || h.LastShownAt == nil
}

// Validate checks the invariants a highlight must satisfy before storage.
func (h *Highlight) Validate() error {
	if h.ID == "" {
		return NewValidation("highlight id is empty")
	}
	if h.SourceID == "" {
		return NewValidation("highlight %s: source id is empty", h.ID)
	}
	if strings.TrimSpace(h.Text) == "" {
		return NewValidation("highlight %s: text is empty", h.ID)
	}
	if h.TimesShown < 0 {
		return NewValidation("highlight %s: negative times_shown", h.ID)
	}
	if (h.TimesShown == 0) != (h.LastShownAt == nil) {
		return NewValidation("highlight %s: times_shown and last_shown_at disagree", h.ID)
	}
	if h.LastShownAt != nil && h.LastShownAt.After(time.Now().Add(time.Minute)) {
		return NewValidation("highlight %s: last_shown_at is in the future", h.ID)
	}
	return nil
}

// Validate checks the invariants a source must satisfy before storage.
func (s *Source) Validate() error {
	if s.ID == "" {
		return NewValidation("source id is empty")
	}
	if strings.TrimSpace(s.Title) == "" {
		return NewValidation("source %s: title is empty", s.ID)
	}
	return nil
}

// HighlightPatch names the user-editable fields of a highlight. Nil fields
// are left as they are.
type HighlightPatch struct {
	Text          *string   `json:"text,omitempty"`
	Note          *string   `json:"note,omitempty"`
	Category      *Category `json:"category,omitempty"`
	Tags          *[]string `json:"tags,omitempty"`
	LocationLabel *string   `json:"location_label,omitempty"`
}

// Validate rejects patches that would break a stored highlight's invariants:
// text must stay non-empty and category must be a known value.
func (p HighlightPatch) Validate() error {
	if p.Text != nil && strings.TrimSpace(*p.Text) == "" {
		return NewValidation("patch text is empty")
	}
	if p.Category != nil && !p.Category.Valid() {
		return NewValidation("unknown category %q", string(*p.Category))
	}
	return nil
}

// NormalizeText lowercases and collapses whitespace so that the same excerpt
// always hashes to the same id regardless of extraction artifacts.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// HighlightID derives the deterministic id for an excerpt. Re-ingesting the
// same text under the same source yields the same id.
func HighlightID(sourceID, text string) string {
	sum := sha256.Sum256([]byte(sourceID + "\n" + NormalizeText(text)))
	return hex.EncodeToString(sum[:])[:16]
}

// SurrogateSourceID derives a stable id for sources the extractor could not
// identify by catalog id.
func SurrogateSourceID(title, creator string) string {
	sum := sha256.Sum256([]byte(NormalizeText(title) + "|" + NormalizeText(creator)))
	return hex.EncodeToString(sum[:])[:16]
}

// LeadingPosition extracts the first integer in a location label, e.g.
// "Page 212 · Location 3241" yields 212. The second result is false when the
// label contains no digits.
func LeadingPosition(label string) (int, bool) {
	start := -1
	for i, r := range label {
		if unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return atoiSafe(label[start:i])
		}
	}
	if start >= 0 {
		return atoiSafe(label[start:])
	}
	return 0, false
}

func atoiSafe(s string) (int, bool) {
	n := 0
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return 0, false
		}
		n = n*10 + int(r-'0')
		if n > 1<<30 {
			return 0, false
		}
	}
	return n, true
}

// PageNumber derives an optional page number from a location label.
func PageNumber(label string) *int {
	if n, ok := LeadingPosition(label); ok {
		return &n
	}
	return nil
}
