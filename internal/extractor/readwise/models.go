package readwise

// APIResponse is one page of the export endpoint.
type APIResponse struct {
	Count    int    `json:"count"`
	Page     int    `json:"page"`
	NumPages int    `json:"num_pages"`
	Results  []Book `json:"results"`
}

// Book is one source work with its highlights inlined.
type Book struct {
	ID            int64          `json:"user_book_id"`
	Title         string         `json:"title"`
	Author        string         `json:"author"`
	CoverImageURL string         `json:"cover_image_url"`
	Updated       string         `json:"last_highlight_at"`
	Highlights    []BookExcerpt  `json:"highlights"`
}

// BookExcerpt is one raw highlight as the export API reports it.
type BookExcerpt struct {
	Text          string   `json:"text"`
	Location      int      `json:"location"`
	LocationType  string   `json:"location_type"`
	Note          string   `json:"note"`
	Tags          []APITag `json:"tags"`
	HighlightedAt string   `json:"highlighted_at"`
}

type APITag struct {
	Name string `json:"name"`
}
