// Package classifier derives category labels from image filenames using
// curated keyword lists.
package classifier

import (
	"regexp"
	"strings"

	"github.com/pablobfonseca/go-photo-organizer/models"
)

// KeywordConfidence is the fixed confidence of every keyword match.
const KeywordConfidence = 1.0

var separators = strings.NewReplacer("_", " ", "-", " ", ".", " ")

type compiledList struct {
	keywordList
	pattern *regexp.Regexp
}

type categoryRules struct {
	category models.Category
	lists    []keywordList
}

type compiledCategory struct {
	category models.Category
	lists    []compiledList
}

// KeywordClassifier maps filenames to zero or more categories. It is safe for
// concurrent use.
type KeywordClassifier struct {
	categories []compiledCategory
}

// NewKeywordClassifier compiles the built-in keyword lists.
func NewKeywordClassifier() *KeywordClassifier {
	return newKeywordClassifier(defaultRules())
}

func newKeywordClassifier(rules []categoryRules) *KeywordClassifier {
	k := &KeywordClassifier{}
	for _, r := range rules {
		cc := compiledCategory{category: r.category}
		for _, l := range r.lists {
			cc.lists = append(cc.lists, compiledList{keywordList: l, pattern: wordPattern(l.words)})
		}
		k.categories = append(k.categories, cc)
	}
	return k
}

func wordPattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Normalize lower-cases filename and turns "_", "-" and "." into spaces.
func Normalize(filename string) string {
	return separators.Replace(strings.ToLower(filename))
}

// Classify returns one match per category with at least one matching keyword,
// in canonical category order. A filename matching nothing yields a single
// "other" match.
func (k *KeywordClassifier) Classify(filename string) []models.CategoryMatch {
	normalized := Normalize(filename)

	var matches []models.CategoryMatch
	for _, c := range k.categories {
		if m, ok := c.match(normalized); ok {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return []models.CategoryMatch{{Category: models.CategoryOther, Confidence: KeywordConfidence}}
	}
	return matches
}

func (c compiledCategory) match(normalized string) (models.CategoryMatch, bool) {
	for _, l := range c.lists {
		word, ok := l.find(normalized)
		if !ok {
			continue
		}
		return models.CategoryMatch{
			Category:   c.category,
			Confidence: KeywordConfidence,
			SubType:    l.subType(word),
		}, true
	}
	return models.CategoryMatch{}, false
}

// find returns the first keyword of the list present in normalized.
func (l compiledList) find(normalized string) (string, bool) {
	if w := l.pattern.FindString(normalized); w != "" {
		return w, true
	}
	if l.strict {
		return "", false
	}
	for _, w := range l.words {
		if strings.Contains(normalized, w) {
			return w, true
		}
	}
	return "", false
}
