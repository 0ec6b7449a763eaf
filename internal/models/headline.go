package models

// Sentiment is the coarse polarity label attached to an annotated headline.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// SentimentFromScore maps a signed analyzer score onto a label.
func SentimentFromScore(score float64) Sentiment {
	switch {
	case score > 0:
		return SentimentPositive
	case score < 0:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// Headline represents the canonical structure stored in Elasticsearch.
// Derived fields stay nil (null in the index) until the annotator has
// processed the record; an annotated headline without tokens keeps [].
type Headline struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Entities    []string  `json:"entities"`
	EntityTypes []string  `json:"entity_types"`
	Sentiment   Sentiment `json:"sentiment,omitempty"`
}

// Annotated reports whether the derived fields are present.
func (h Headline) Annotated() bool {
	return h.Sentiment != "" && h.Entities != nil && h.EntityTypes != nil
}

// PageRequest is a read window over the stored headlines.
// A non-empty After selects key pagination; otherwise Skip is an offset.
type PageRequest struct {
	After string
	Skip  int
	Limit int
}
