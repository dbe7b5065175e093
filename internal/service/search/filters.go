package search

import (
	"net/url"
	"path"
	"strings"

	"github.com/kapu/persona-avatar-bot-go/internal/constants"
	"github.com/kapu/persona-avatar-bot-go/internal/util"
)

// Filters decide which search results become candidates and how they rank.
type Filters struct {
	BlockedDomains  []string
	TextIndicators  []string
	QualityKeywords []string
	TrustedDomains  []string
	ImageExtensions []string

	DefaultPriority int
	ExtensionBoost  int
	QualityBoost    int
	TrustedBoost    int
}

func DefaultFilters() Filters {
	return Filters{
		BlockedDomains: []string{
			"shutterstock.com", "istockphoto.com", "gettyimages.com", "alamy.com",
			"dreamstime.com", "123rf.com", "depositphotos.com", "stock.adobe.com",
			"vectorstock.com", "freepik.com", "pond5.com",
			"facebook.com", "fbsbx.com", "instagram.com", "twitter.com", "twimg.com",
			"tiktok.com", "pinterest.com", "pinimg.com", "linkedin.com", "licdn.com",
			"reddit.com", "redd.it",
		},
		TextIndicators: []string{
			"quote", "quotes", "meme", "poster", "banner", "logo", "typography",
			"infographic", "flyer", "caption", "wordart", "slogan", "lettering",
			"text-", "_text", "saying",
		},
		QualityKeywords: []string{"portrait", "headshot", "face", "official"},
		TrustedDomains: []string{
			"wikipedia.org", "wikimedia.org", "britannica.com", "metmuseum.org",
			"nga.gov", "artic.edu", "wikiart.org", "npg.org.uk", "loc.gov",
			"fandom.com", "si.edu",
		},
		ImageExtensions: []string{".jpg", ".jpeg", ".png", ".webp"},

		DefaultPriority: constants.SearchConfig.DefaultPriority,
		ExtensionBoost:  constants.SearchConfig.ExtensionBoost,
		QualityBoost:    constants.SearchConfig.QualityBoost,
		TrustedBoost:    constants.SearchConfig.TrustedBoost,
	}
}

// WithBlockedDomains returns a copy with extra blocked domains appended.
func (f Filters) WithBlockedDomains(domains ...string) Filters {
	blocked := make([]string, 0, len(f.BlockedDomains)+len(domains))
	blocked = append(blocked, f.BlockedDomains...)
	for _, d := range domains {
		if d = strings.TrimSpace(d); d != "" {
			blocked = append(blocked, d)
		}
	}
	f.BlockedDomains = blocked
	return f
}

// Rejection returns why a hit is not admitted, or "" when it is.
func (f Filters) Rejection(hit SearchHit) string {
	for _, field := range []string{hit.Link, hit.DisplayLink} {
		if blocked := util.FirstMatch(field, f.BlockedDomains); blocked != "" {
			return "blocked domain " + blocked
		}
	}
	for _, field := range []string{hit.Title, hit.Link} {
		if indicator := util.FirstMatch(field, f.TextIndicators); indicator != "" {
			return "text-heavy indicator " + indicator
		}
	}
	return ""
}

// Score ranks an admitted hit.
func (f Filters) Score(hit SearchHit) int {
	priority := f.DefaultPriority
	lowerURL := strings.ToLower(hit.Link)

	if f.hasImageExtension(lowerURL) {
		priority += f.ExtensionBoost
	}

	if util.ContainsAny(hit.Title+" "+hit.Link, f.QualityKeywords) {
		priority += f.QualityBoost
	}

	if f.IsTrusted(hit.Link) {
		priority += f.TrustedBoost
	}
	return priority
}

// IsTrusted reports whether rawURL is hosted on an allowlisted domain.
func (f Filters) IsTrusted(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, trusted := range f.TrustedDomains {
		trusted = strings.ToLower(trusted)
		if host == trusted || strings.HasSuffix(host, "."+trusted) {
			return true
		}
	}
	return false
}

func (f Filters) hasImageExtension(lowerURL string) bool {
	u, err := url.Parse(lowerURL)
	if err != nil {
		return false
	}
	ext := path.Ext(u.Path)
	for _, allowed := range f.ImageExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
