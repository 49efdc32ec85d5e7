package trendscout

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Title tokens shorter than this are dropped.
const minTokenLength = 4

var stopWords = map[string]struct{}{
	// articles and determiners
	"that": {}, "this": {}, "these": {}, "those": {}, "some": {}, "every": {},
	// auxiliaries
	"been": {}, "being": {}, "have": {}, "having": {}, "does": {}, "doing": {},
	"will": {}, "would": {}, "shall": {}, "should": {}, "could": {}, "might": {},
	"must": {}, "were": {}, "wasn't": {}, "isn't": {}, "aren't": {}, "don't": {},
	// pronouns
	"your": {}, "yours": {}, "they": {}, "them": {}, "their": {}, "theirs": {},
	"ours": {}, "mine": {}, "hers": {}, "itself": {}, "what": {}, "which": {},
	"whom": {}, "whose": {},
	// conjunctions and prepositions
	"with": {}, "from": {}, "into": {}, "onto": {}, "about": {}, "than": {},
	"then": {}, "when": {}, "while": {}, "where": {}, "because": {}, "after": {},
	"before": {}, "until": {}, "unless": {}, "although": {}, "though": {},
	"also": {}, "just": {}, "only": {}, "very": {}, "more": {}, "most": {},
}

// ExtractKeywords returns the sorted, de-duplicated keyword set of one video:
// lowercased title words longer than three characters that are not stop
// words, plus every non-empty tag lowercased as a whole.
func ExtractKeywords(title string, tags []string) []string {
	set := make(map[string]struct{})

	for _, field := range strings.Fields(strings.ToLower(title)) {
		token := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if utf8.RuneCountInString(token) < minTokenLength {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		set[token] = struct{}{}
	}

	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			set[tag] = struct{}{}
		}
	}

	keywords := make([]string, 0, len(set))
	for k := range set {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)
	return keywords
}
