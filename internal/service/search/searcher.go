package search

import "context"

// ImageQuery is one call to the external image search.
type ImageQuery struct {
	Query     string `json:"query"`
	ImageType string `json:"image_type,omitempty"`
	ImageSize string `json:"image_size,omitempty"`
	Safe      string `json:"safe"`
	Count     int64  `json:"count"`
}

// SearchHit is one raw result item.
type SearchHit struct {
	Link        string `json:"link"`
	Title       string `json:"title"`
	DisplayLink string `json:"display_link,omitempty"`
}

// ImageSearcher runs image searches. Implementations report quota exhaustion
// as *errors.QuotaExceededError.
type ImageSearcher interface {
	SearchImages(ctx context.Context, q ImageQuery) ([]SearchHit, error)
}
