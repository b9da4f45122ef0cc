package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lowercase and trim",
			input:    "  The Great Gatsby  ",
			expected: "the great gatsby",
		},
		{
			name:     "strips diacritics",
			input:    "Émile Zolà — Thérèse Raquin",
			expected: "emile zola therese raquin",
		},
		{
			name:     "strips punctuation and quotes",
			input:    `"Mrs. Dalloway" (Annotated!)`,
			expected: "mrs dalloway annotated",
		},
		{
			name:     "collapses whitespace",
			input:    "war   and\tpeace",
			expected: "war and peace",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "german umlauts",
			input:    "Die Verwandlung für Anfänger",
			expected: "die verwandlung fur anfanger",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	input := "Cent Ans de Solitude: Édition Intégrale"
	first := Normalize(input)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Normalize(input))
	}
}

func TestTitleTokens(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		expected []string
	}{
		{
			name:     "removes english articles",
			title:    "The Name of the Wind",
			expected: []string{"name", "wind"},
		},
		{
			name:     "removes german articles",
			title:    "Der Prozess und das Schloss",
			expected: []string{"prozess", "schloss"},
		},
		{
			name:     "removes french articles",
			title:    "Le Comte de Monte-Cristo",
			expected: []string{"comte", "monte", "cristo"},
		},
		{
			name:     "all stopwords",
			title:    "The Of And",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TitleTokens(tt.title))
		})
	}
}

func TestTitleTokenKey(t *testing.T) {
	assert.Equal(t, "name wind", TitleTokenKey("The Name of the Wind"))

	// Only the first ten filtered tokens contribute.
	long := "one two three four five six seven eight nine ten eleven twelve"
	assert.Equal(t, "one two three four five six seven eight nine ten", TitleTokenKey(long))

	// Subtitle punctuation does not change the key.
	assert.Equal(t, TitleTokenKey("Dune"), TitleTokenKey("Dune!"))
}

func TestPrimaryAuthor(t *testing.T) {
	assert.Equal(t, "Ursula K. Le Guin", PrimaryAuthor("Ursula K. Le Guin, Margaret Atwood"))
	assert.Equal(t, "Solo Author", PrimaryAuthor("Solo Author"))
	assert.Equal(t, "", PrimaryAuthor(""))
}

func TestAuthorLastToken(t *testing.T) {
	assert.Equal(t, "guin", AuthorLastToken("Ursula K. Le Guin, Other Person"))
	assert.Equal(t, "tolstoi", AuthorLastToken("Léon Tolstoï"))
	assert.Equal(t, "", AuthorLastToken(""))
}

func TestSplitAuthors(t *testing.T) {
	assert.Equal(t, []string{"A One", "B Two"}, SplitAuthors("A One, B Two"))
	assert.Equal(t, []string{"A One"}, SplitAuthors("A One,, "))
	assert.Empty(t, SplitAuthors(""))
}
