package domain

import (
	"strings"

	"github.com/kapu/persona-avatar-bot-go/internal/util"
)

// AvatarReference is the stored pointer to a persona image. It is one of
// NoAvatar, PlainURL, AttachmentList or AttachmentObject.
type AvatarReference interface {
	avatarReference()
}

// NoAvatar marks a missing or unrecognised avatar field.
type NoAvatar struct{}

// PlainURL is an avatar stored as a bare string.
type PlainURL string

// AttachmentItem is one element of an attachment list. Legacy rows hold either
// bare strings (IsObject false) or structures carrying a "url" key.
type AttachmentItem struct {
	URL      string
	IsObject bool
	Fields   map[string]any
}

// AttachmentList is an avatar stored as a list of attachments; only the first
// element is significant.
type AttachmentList []AttachmentItem

// AttachmentObject is an avatar stored as a single structure with a "url" key.
type AttachmentObject struct {
	URL    string
	Fields map[string]any
}

func (NoAvatar) avatarReference()         {}
func (PlainURL) avatarReference()         {}
func (AttachmentList) avatarReference()   {}
func (AttachmentObject) avatarReference() {}

// DefaultPlaceholderKeywords mark URLs that point at stock placeholder images.
var DefaultPlaceholderKeywords = []string{
	"placeholder", "default", "generic", "blank", "empty", "no-image", "no_image",
	"noimage", "missing", "no-photo", "nophoto", "silhouette", "anonymous", "dummy",
}

// ParseAvatarReference maps a decoded JSON value onto an AvatarReference.
func ParseAvatarReference(raw any) AvatarReference {
	switch v := raw.(type) {
	case nil:
		return NoAvatar{}
	case string:
		return PlainURL(v)
	case []string:
		items := make(AttachmentList, 0, len(v))
		for _, s := range v {
			items = append(items, AttachmentItem{URL: s})
		}
		return items
	case []any:
		items := make(AttachmentList, 0, len(v))
		for _, elem := range v {
			items = append(items, parseAttachmentItem(elem))
		}
		return items
	case []map[string]any:
		items := make(AttachmentList, 0, len(v))
		for _, elem := range v {
			items = append(items, parseAttachmentItem(elem))
		}
		return items
	case map[string]any:
		u, ok := v["url"]
		if !ok {
			return NoAvatar{}
		}
		s, _ := u.(string)
		return AttachmentObject{URL: s, Fields: v}
	default:
		return NoAvatar{}
	}
}

func parseAttachmentItem(elem any) AttachmentItem {
	switch e := elem.(type) {
	case string:
		return AttachmentItem{URL: e}
	case map[string]any:
		s, _ := e["url"].(string)
		return AttachmentItem{URL: s, IsObject: true, Fields: e}
	default:
		return AttachmentItem{}
	}
}

// NormalizeAvatar extracts the single usable URL from ref. It returns false
// when the avatar is absent, blank, or points at a placeholder image.
func NormalizeAvatar(ref AvatarReference, placeholderKeywords []string) (string, bool) {
	var candidate string

	switch r := ref.(type) {
	case PlainURL:
		candidate = string(r)
	case AttachmentList:
		if len(r) > 0 {
			candidate = r[0].URL
		}
	case AttachmentObject:
		candidate = r.URL
	default:
		return "", false
	}

	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", false
	}
	if IsPlaceholderURL(candidate, placeholderKeywords) {
		return "", false
	}
	return candidate, true
}

// IsPlaceholderURL reports whether rawURL contains any placeholder keyword, ignoring case.
func IsPlaceholderURL(rawURL string, keywords []string) bool {
	return util.ContainsAny(rawURL, keywords)
}

// AvatarValue builds the field value written back to the record store.
func AvatarValue(publicURL, shape string) any {
	if shape == "attachment" {
		return []map[string]any{{"url": publicURL}}
	}
	return publicURL
}
