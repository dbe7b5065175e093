package domain

import (
	"strings"

	"github.com/kapu/persona-avatar-bot-go/internal/util"
)

// PersonaRecord is one catalog entry as read from the record store.
type PersonaRecord struct {
	ID          string
	Name        string
	Title       string
	Category    string
	Description string
	Avatar      AvatarReference
}

// Record store field names. Title and description have a legacy and a current name.
const (
	FieldName                 = "Name"
	FieldCharacterTitle       = "Character_Title"
	FieldTitle                = "Title"
	FieldCategory             = "Category"
	FieldCharacterDescription = "Character_Description"
	FieldDescription          = "Description"
)

// NewPersonaRecord reads a record from the raw field map returned by the store.
func NewPersonaRecord(id string, fields map[string]any, avatarField string) *PersonaRecord {
	return &PersonaRecord{
		ID:          id,
		Name:        stringField(fields, FieldName),
		Title:       util.FirstNonEmpty(stringField(fields, FieldCharacterTitle), stringField(fields, FieldTitle)),
		Category:    categoryField(fields[FieldCategory]),
		Description: util.FirstNonEmpty(stringField(fields, FieldCharacterDescription), stringField(fields, FieldDescription)),
		Avatar:      ParseAvatarReference(fields[avatarField]),
	}
}

// SearchText is the lower-cased text used for persona type tagging.
func (p *PersonaRecord) SearchText() string {
	return strings.ToLower(strings.Join([]string{p.Name, p.Title, p.Description, p.Category}, " "))
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return strings.TrimSpace(s)
}

// categoryField accepts a single-select string or a multi-select list.
func categoryField(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}
