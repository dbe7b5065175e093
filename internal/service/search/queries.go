package search

import (
	"strings"

	"github.com/kapu/persona-avatar-bot-go/internal/constants"
	"github.com/kapu/persona-avatar-bot-go/internal/domain"
)

// Request describes the persona being searched for.
type Request struct {
	Name        string
	Title       string
	Category    string
	Description string
	Type        domain.PersonaType
}

// QueryTemplates maps a persona type to its query templates. Templates use
// {name}, {title} and {category} placeholders.
type QueryTemplates map[domain.PersonaType][]string

func DefaultQueryTemplates() QueryTemplates {
	return QueryTemplates{
		domain.PersonaHistorical: {
			"{name} portrait painting",
			"{name} historical portrait",
			"{name} bust sculpture",
			"{name} engraving",
			"{name}",
		},
		domain.PersonaFictional: {
			"{name} character official art",
			"{name} character portrait",
			"{name} {category} character",
			"{name} fan art portrait",
			"{name}",
		},
		domain.PersonaCoach: {
			"{title} professional illustration avatar",
			"{title} cartoon portrait",
			"friendly {category} coach illustration",
			"professional {title} character illustration",
		},
		domain.PersonaMythological: {
			"{name} mythology art",
			"{name} god statue",
			"{name} classical painting",
			"{name} mythological illustration",
		},
		domain.PersonaUnknown: {
			"{name} portrait",
			"{name} {title} portrait",
			"{name} illustration",
			"{name}",
		},
	}
}

// ImageTypeFor returns the image-type restriction for a persona type.
func ImageTypeFor(t domain.PersonaType) string {
	switch t {
	case domain.PersonaHistorical:
		return "face"
	case domain.PersonaCoach:
		return "clipart"
	case domain.PersonaFictional, domain.PersonaMythological:
		return ""
	default:
		return "photo"
	}
}

// BuildQueries renders the queries for req: up to MaxTitleQueries
// title-specific queries (never for coaches) followed by the type templates,
// deduplicated and truncated to limit.
func (t QueryTemplates) BuildQueries(req Request, limit int) []string {
	personaType := req.Type
	if personaType == "" {
		personaType = domain.PersonaUnknown
	}
	templates, ok := t[personaType]
	if !ok {
		templates = t[domain.PersonaUnknown]
	}

	name := strings.TrimSpace(req.Name)
	title := strings.TrimSpace(req.Title)
	if title == "" && personaType == domain.PersonaCoach {
		title = name
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = "life"
	}

	raw := make([]string, 0, len(templates)+constants.SearchConfig.MaxTitleQueries)
	if title != "" && personaType != domain.PersonaCoach {
		titled := []string{name + " " + title, name + " " + title + " portrait"}
		raw = append(raw, titled[:min(len(titled), constants.SearchConfig.MaxTitleQueries)]...)
	}

	replacer := strings.NewReplacer("{name}", name, "{title}", title, "{category}", category)
	for _, tpl := range templates {
		raw = append(raw, replacer.Replace(tpl))
	}

	seen := make(map[string]bool, len(raw))
	queries := make([]string, 0, len(raw))
	for _, q := range raw {
		q = strings.Join(strings.Fields(q), " ")
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		queries = append(queries, q)
		if limit > 0 && len(queries) == limit {
			break
		}
	}
	return queries
}
