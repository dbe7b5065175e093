package classifier

import (
	"strings"
	"unicode"

	"github.com/kapu/persona-avatar-bot-go/internal/domain"
)

// TypeKeywords are the keyword sets checked, in order, by InferType.
type TypeKeywords struct {
	Historical   []string
	Fictional    []string
	Coach        []string
	Mythological []string
}

func DefaultTypeKeywords() TypeKeywords {
	return TypeKeywords{
		Historical: []string{
			"historical", "history", "ancient", "medieval", "renaissance", "century",
			"emperor", "empress", "king", "queen", "pharaoh", "president", "prime minister",
			"philosopher", "scientist", "inventor", "explorer", "revolutionary", "founding father",
			"composer", "poet", "general", "napoleon", "einstein", "lincoln", "cleopatra",
			"shakespeare", "socrates", "aristotle", "plato", "da vinci", "tesla", "gandhi",
			"churchill", "caesar", "newton", "darwin", "curie", "lovelace",
		},
		Fictional: []string{
			"fictional", "character", "anime", "manga", "marvel", "dc comics", "superhero",
			"villain", "disney", "pixar", "star wars", "star trek", "harry potter", "pokemon",
			"naruto", "one piece", "video game", "franchise", "cartoon", "tv series", "sitcom",
			"movie", "film", "novel", "sci-fi", "fantasy",
		},
		Coach: []string{
			"coach", "coaching", "mentor", "mentoring", "tutor", "trainer", "therapist",
			"counselor", "counsellor", "advisor", "consultant", "instructor", "teacher",
			"nutritionist", "fitness", "career", "productivity", "wellness", "mindfulness",
		},
		Mythological: []string{
			"myth", "mythology", "mythological", "god", "goddess", "deity", "demigod",
			"legend", "legendary", "olympian", "titan", "norse", "zeus", "athena", "odin",
			"thor", "loki", "apollo", "hercules", "anubis", "osiris", "isis", "shiva",
			"krishna", "poseidon", "hades", "aphrodite",
		},
	}
}

// InferType returns the first keyword set matching text, in the order
// historical, fictional, coach, mythological. Keywords match on word boundaries.
func InferType(text string, kw TypeKeywords) domain.PersonaType {
	padded := " " + tokenize(text) + " "

	ordered := []struct {
		kind     domain.PersonaType
		keywords []string
	}{
		{domain.PersonaHistorical, kw.Historical},
		{domain.PersonaFictional, kw.Fictional},
		{domain.PersonaCoach, kw.Coach},
		{domain.PersonaMythological, kw.Mythological},
	}

	for _, set := range ordered {
		for _, keyword := range set.keywords {
			token := tokenize(keyword)
			if token != "" && strings.Contains(padded, " "+token+" ") {
				return set.kind
			}
		}
	}
	return domain.PersonaUnknown
}

// tokenize lower-cases s and collapses every run of non-alphanumerics into one space.
func tokenize(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}
