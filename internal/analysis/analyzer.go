package analysis

import (
	"fmt"

	"github.com/DeafMist/headline-radar/internal/models"
)

// PlaceholderEntityType labels every extracted token. No real named-entity
// classification happens yet.
const PlaceholderEntityType = "person"

// Analyzer tokenizes and scores headline text. Implementations must be
// deterministic for annotation runs to be idempotent.
type Analyzer interface {
	Tokenize(text string) ([]string, error)
	Score(text string) (float64, error)
}

// Lexicon is the default Analyzer: whitespace tokenization and a word
// valence sum over an AFINN-style lexicon.
type Lexicon struct {
	weights map[string]int
}

// NewLexicon returns an analyzer over the embedded headline lexicon.
func NewLexicon() *Lexicon {
	return &Lexicon{weights: defaultWeights}
}

// NewLexiconWithWeights returns an analyzer using caller-provided valences.
func NewLexiconWithWeights(weights map[string]int) *Lexicon {
	return &Lexicon{weights: weights}
}

// Tokenize implements Analyzer.
func (l *Lexicon) Tokenize(text string) ([]string, error) {
	return Tokenize(text), nil
}

// Score implements Analyzer.
func (l *Lexicon) Score(text string) (float64, error) {
	return float64(scoreWords(l.weights, text)), nil
}

// Annotation holds the derived fields for one headline.
type Annotation struct {
	Entities    []string
	EntityTypes []string
	Score       float64
	Sentiment   models.Sentiment
}

// Apply copies the derived fields onto h, replacing earlier values.
func (a Annotation) Apply(h models.Headline) models.Headline {
	h.Entities = a.Entities
	h.EntityTypes = a.EntityTypes
	h.Sentiment = a.Sentiment
	return h
}

// Annotate runs both analyzer calls for text. Entities and EntityTypes are
// always non-nil and of equal length.
func Annotate(a Analyzer, text string) (Annotation, error) {
	tokens, err := a.Tokenize(text)
	if err != nil {
		return Annotation{}, fmt.Errorf("tokenize: %w", err)
	}
	score, err := a.Score(text)
	if err != nil {
		return Annotation{}, fmt.Errorf("score: %w", err)
	}

	entities := make([]string, len(tokens))
	copy(entities, tokens)
	types := make([]string, len(tokens))
	for i := range types {
		types[i] = PlaceholderEntityType
	}

	return Annotation{
		Entities:    entities,
		EntityTypes: types,
		Score:       score,
		Sentiment:   models.SentimentFromScore(score),
	}, nil
}
