package domain

// Candidate sources
const (
	SourceImageSearch = "image_search"
	SourceWiki        = "wiki"
)

// AvatarCandidate is a possible replacement image found by search.
type AvatarCandidate struct {
	URL      string `json:"url"`
	Query    string `json:"query"`
	Title    string `json:"title"`
	Priority int    `json:"priority"`
	Source   string `json:"source"`
}

// NormalizedImage is an encoded square avatar ready to be published.
type NormalizedImage struct {
	Data        []byte
	Width       int
	Height      int
	Format      string
	Extension   string
	ContentType string
	Stem        string
	SourceURL   string
}

// FileName joins the stem and extension, e.g. "ada-lovelace-1700000000.jpg".
func (n *NormalizedImage) FileName() string {
	return n.Stem + "." + n.Extension
}
