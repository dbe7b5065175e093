package classifier

import (
	"testing"

	"github.com/kapu/persona-avatar-bot-go/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestInferType(t *testing.T) {
	kw := DefaultTypeKeywords()

	cases := []struct {
		rec  domain.PersonaRecord
		want domain.PersonaType
	}{
		{domain.PersonaRecord{Name: "Marcus Aurelius", Title: "Roman Emperor"}, domain.PersonaHistorical},
		{domain.PersonaRecord{Name: "Naruto Uzumaki", Category: "Anime"}, domain.PersonaFictional},
		{domain.PersonaRecord{Name: "Sam", Title: "Career Coach"}, domain.PersonaCoach},
		{domain.PersonaRecord{Name: "Athena", Description: "Goddess of wisdom"}, domain.PersonaMythological},
		{domain.PersonaRecord{Name: "Bob", Description: "Friendly chat companion"}, domain.PersonaUnknown},
		// marvel (fictional) outranks thor (mythological)
		{domain.PersonaRecord{Name: "Thor", Category: "Marvel"}, domain.PersonaFictional},
		// historical outranks coach
		{domain.PersonaRecord{Name: "Mr Smith", Title: "History Teacher"}, domain.PersonaHistorical},
	}

	for _, tc := range cases {
		t.Run(tc.rec.Name, func(t *testing.T) {
			assert.Equal(t, tc.want, InferType(tc.rec.SearchText(), kw))
		})
	}
}

func TestInferTypeMatchesWholeWords(t *testing.T) {
	kw := TypeKeywords{Historical: []string{"king"}, Mythological: []string{"god"}}

	assert.Equal(t, domain.PersonaUnknown, InferType("thinking about goodness", kw))
	assert.Equal(t, domain.PersonaHistorical, InferType("The Lion-King", kw))
	assert.Equal(t, domain.PersonaMythological, InferType("a GOD of thunder", kw))
}
