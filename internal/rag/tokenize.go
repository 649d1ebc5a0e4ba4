package rag

import (
	"strings"
	"unicode"
)

// stopwords covers English and Turkish function words plus common filler in
// both languages. Tokens on this list never count as query keywords.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		// English
		"the", "and", "for", "are", "but", "not", "you", "all", "can",
		"had", "her", "was", "one", "our", "out", "has", "have", "what",
		"when", "where", "which", "who", "whom", "why", "how", "this",
		"that", "these", "those", "with", "from", "they", "them", "then",
		"than", "will", "would", "could", "should", "there", "their",
		"about", "into", "over", "under", "again", "been", "being",
		"does", "did", "doing", "some", "such", "only", "very", "just",
		"also", "any", "each", "other", "its", "his", "she", "him",
		"were", "your", "yours", "mine", "ours", "please", "tell",
		// Turkish
		"bir", "bu", "da", "de", "ve", "ile", "mi", "mu", "ne",
		"neden", "nasil", "nasıl", "için", "icin", "gibi", "ama",
		"ancak", "daha", "çok", "cok", "en", "ya", "veya", "ki",
		"şu", "su", "o", "ben", "sen", "biz", "siz", "onlar",
		"var", "yok", "olan", "oldu", "olarak", "kadar", "sonra",
		"önce", "once", "şey", "sey", "misin", "mısın", "midir",
		"lütfen", "lutfen",
	} {
		stopwords[w] = struct{}{}
	}
}

// ExtractKeywords tokenizes a query into significant keywords: lowercased,
// punctuation-stripped tokens longer than 2 runes that are not stopwords.
func ExtractKeywords(query string) []string {
	var keywords []string
	seen := make(map[string]struct{})
	for _, tok := range tokenize(query) {
		if len([]rune(tok)) <= 2 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}
	return keywords
}

// tokenize lowercases and splits text on anything that is not a letter or
// digit. Numbers survive as their own tokens.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// significantWordCount counts tokens that are neither stopwords nor shorter
// than 3 runes. Used by the very-short-query check.
func significantWordCount(query string) int {
	n := 0
	for _, tok := range tokenize(query) {
		if len([]rune(tok)) <= 2 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		n++
	}
	return n
}

// containsNumber reports whether text contains a digit run.
func containsNumber(text string) bool {
	for _, r := range text {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// extractNumbers returns the distinct digit runs in text.
func extractNumbers(text string) []string {
	var nums []string
	seen := make(map[string]struct{})
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		n := cur.String()
		cur.Reset()
		if _, dup := seen[n]; dup {
			return
		}
		seen[n] = struct{}{}
		nums = append(nums, n)
	}
	for _, r := range text {
		if unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return nums
}

// extractEntities returns capitalized words from the original-cased query,
// skipping the first word of the text and of each sentence. A crude proper
// noun heuristic that works the same for English and Turkish.
func extractEntities(query string) []string {
	var entities []string
	seen := make(map[string]struct{})
	sentenceStart := true
	for _, f := range strings.Fields(query) {
		word := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		endsSentence := strings.ContainsAny(f, ".!?")
		if word == "" {
			sentenceStart = sentenceStart || endsSentence
			continue
		}
		runes := []rune(word)
		if !sentenceStart && unicode.IsUpper(runes[0]) && len(runes) > 2 {
			lower := strings.ToLower(word)
			if _, stop := stopwords[lower]; !stop {
				if _, dup := seen[lower]; !dup {
					seen[lower] = struct{}{}
					entities = append(entities, word)
				}
			}
		}
		sentenceStart = endsSentence
	}
	return entities
}
