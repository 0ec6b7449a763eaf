package analysis

import (
	"bufio"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
)

//go:embed lexicon.tsv
var lexiconTSV string

var defaultWeights = mustParseWeights(lexiconTSV)

var negators = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "without": {}, "nor": {},
	"don't": {}, "doesn't": {}, "didn't": {}, "isn't": {}, "aren't": {},
	"wasn't": {}, "weren't": {}, "won't": {}, "can't": {}, "cannot": {},
	"shouldn't": {}, "wouldn't": {}, "couldn't": {}, "hasn't": {}, "haven't": {},
}

// ParseWeights reads a word<TAB>score list. Blank lines and lines starting
// with # are ignored.
func ParseWeights(raw string) (map[string]int, error) {
	weights := make(map[string]int)
	scanner := bufio.NewScanner(strings.NewReader(raw))
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		word, value, ok := strings.Cut(text, "\t")
		if !ok {
			return nil, fmt.Errorf("lexicon line %d: missing tab separator", line)
		}
		score, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("lexicon line %d: %w", line, err)
		}
		weights[strings.ToLower(strings.TrimSpace(word))] = score
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan lexicon: %w", err)
	}
	return weights, nil
}

func mustParseWeights(raw string) map[string]int {
	weights, err := ParseWeights(raw)
	if err != nil {
		panic(fmt.Sprintf("embedded lexicon: %v", err))
	}
	return weights
}

// scoreWords sums word valences. A negator directly before a scored word
// flips the sign of that word only.
func scoreWords(weights map[string]int, text string) int {
	words := Tokenize(text)
	for i, word := range words {
		words[i] = strings.ToLower(word)
	}
	total := 0
	for i, word := range words {
		value, ok := weights[word]
		if !ok {
			continue
		}
		if i > 0 {
			if _, negated := negators[words[i-1]]; negated {
				value = -value
			}
		}
		total += value
	}
	return total
}
