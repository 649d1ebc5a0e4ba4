package rag

import "strings"

// chitchat greetings and pleasantries, English and Turkish.
var chitchatPhrases = []string{
	"hello", "hi", "hey", "good morning", "good afternoon", "good evening",
	"thanks", "thank you", "thx", "bye", "goodbye", "see you",
	"how are you", "whats up", "what's up",
	"merhaba", "selam", "günaydın", "gunaydin", "iyi akşamlar", "iyi aksamlar",
	"iyi günler", "iyi gunler", "teşekkürler", "tesekkurler", "teşekkür ederim",
	"tesekkur ederim", "sağol", "sagol", "görüşürüz", "gorusuruz", "nasılsın",
	"nasilsin", "naber",
}

// definitionPrefixes mark "what is X" style questions.
var definitionPrefixes = []string{
	"what is ", "what are ", "what does ", "define ", "definition of ",
	"meaning of ", "nedir", "ne demek", "tanımı", "tanimi", "anlamı", "anlami",
}

// docIntentPhrases signal the query is about the user's own content.
var docIntentPhrases = []string{
	"in this document", "in the document", "in this file", "in the file",
	"in this email", "in the email", "in my email", "in my emails",
	"in my document", "in my documents", "in my files",
	"according to the document", "according to this",
	"analyze", "summarize", "summarise", "extract",
	"the attached", "the attachment", "this pdf", "the pdf",
	"bu belgede", "bu dosyada", "bu dokümanda", "bu dokumanda",
	"bu mailde", "bu e-postada", "bu epostada", "maillerimde",
	"belgelerimde", "dosyalarımda", "dosyalarimda", "özetle", "ozetle",
	"analiz et", "çıkar", "cikar",
}

// lookupPhrases mark narrow find-me-the-item requests.
var lookupPhrases = []string{
	"find the email", "find the mail", "find the document", "find the file",
	"find the message", "look up", "search for", "which email", "which document",
	"maili bul", "mail bul", "belgeyi bul", "dosyayı bul", "dosyayi bul",
	"hangi mail", "hangi belge", "ara",
}

// mathRunes are operators whose presence alongside digits marks arithmetic.
const mathRunes = "+-*/=%"

// generalKnowledgeTopics are broad topic words; "what is email?" asks about
// the concept, not the user's inbox.
var generalKnowledgeTopics = []string{
	"email", "internet", "computer", "software", "ai", "weather", "history",
	"science", "math", "mathematics", "physics", "chemistry",
	"e-posta", "eposta", "bilgisayar", "yazılım", "yazilim", "hava durumu",
	"tarih", "bilim", "matematik", "fizik", "kimya",
}

// Classify inspects a query and the explicit document selection and returns
// its classification. Pure function: identical inputs always classify
// identically.
func Classify(query string, selectedDocIDs []string) QueryClassification {
	normalized := strings.ToLower(strings.TrimSpace(query))
	keywords := ExtractKeywords(query)

	c := QueryClassification{
		QueryType:   QueryTypeQA,
		Keywords:    keywords,
		IsVeryShort: significantWordCount(query) <= 2,
	}

	// Explicit selection is document intent regardless of phrasing.
	c.DocIntent = len(selectedDocIDs) > 0 || containsAny(normalized, docIntentPhrases)

	switch {
	case isChitchat(normalized):
		c.QueryType = QueryTypeChitchat
	case isGeneralMath(normalized):
		c.QueryType = QueryTypeGeneralMath
	case containsAny(normalized, lookupPhrases):
		c.QueryType = QueryTypeLookup
		c.DocIntent = true
	case !c.DocIntent && (hasPrefixAny(normalized, definitionPrefixes) || containsAny(normalized, []string{" nedir", " ne demek"})):
		// "what is X" about a broad topic is general knowledge; about
		// anything else it is a definition request. A "what does ..." over
		// the user's own content stays plain qa.
		if isGeneralTopic(keywords) {
			c.QueryType = QueryTypeGeneralKnowledge
		} else {
			c.QueryType = QueryTypeDefinition
		}
	}

	return c
}

func isChitchat(normalized string) bool {
	for _, p := range chitchatPhrases {
		if normalized == p || normalized == p+"!" || normalized == p+"." {
			return true
		}
	}
	// Short queries that open with a greeting still count.
	if len(strings.Fields(normalized)) <= 3 {
		for _, p := range chitchatPhrases {
			if strings.HasPrefix(normalized, p+" ") || strings.HasPrefix(normalized, p+",") {
				return true
			}
		}
	}
	return false
}

func isGeneralMath(normalized string) bool {
	if !containsNumber(normalized) {
		return false
	}
	if strings.ContainsAny(normalized, mathRunes) {
		return true
	}
	for _, p := range []string{"calculate", "how much is", "hesapla", "kaç eder", "kac eder"} {
		if strings.Contains(normalized, p) {
			return true
		}
	}
	return false
}

func isGeneralTopic(keywords []string) bool {
	if len(keywords) != 1 {
		return false
	}
	for _, t := range generalKnowledgeTopics {
		if keywords[0] == t {
			return true
		}
	}
	return false
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func hasPrefixAny(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
