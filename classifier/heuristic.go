package classifier

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"commentguard/moderation"

	"github.com/jonreiter/govader"
	"github.com/russross/blackfriday/v2"
	"golang.org/x/text/unicode/norm"
)

// MaxHeuristicConfidence caps the confidence of a pattern-based
// classification.
const MaxHeuristicConfidence = 0.3

// offensiveCompound is the VADER compound score at or below which a comment
// with no other signal is labelled offensive.
const offensiveCompound = -0.6

var (
	gamblingTerms = []string{
		"judi", "judol", "slot", "casino", "kasino", "gacor", "maxwin", "zeus",
		"pragmatic", "gates of olympus", "togel", "toto", "scatter", "jackpot", "sbobet",
	}
	promoTerms = []string{
		"bonus", "deposit", "daftar", "link alternatif", "situs terpercaya", "promo",
		"check my channel", "subscribe to my channel", "free followers",
	}
	ctaTerms = []string{
		"klik link", "daftar sekarang", "bonus new member", "link di bio", "link in bio",
		"click the link", "click here", "dm me", "message me",
	}
	scamTerms = []string{
		"whatsapp", "telegram", "investment", "crypto", "bitcoin", "forex", "giveaway",
	}

	gamblingRe = termRegexp(gamblingTerms)
	promoRe    = termRegexp(promoTerms)
	ctaRe      = termRegexp(ctaTerms)
	scamRe     = termRegexp(scamTerms)

	wordNumberRe = regexp.MustCompile(`\b[A-Z]{3,}[0-9]{2,}\b`)
	urlRe        = regexp.MustCompile(`(?i)https?://\S+|www\.\S+|\b[a-z0-9-]+\.(?:com|net|org|xyz|site|online|vip|io|link|id|me|bet)\b`)
	tagRe        = regexp.MustCompile(`<[^>]*>`)
)

func termRegexp(terms []string) *regexp.Regexp {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Heuristic is the deterministic keyword and pattern classifier used when
// the AI response cannot be trusted.
type Heuristic struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// NewHeuristic creates a Heuristic.
func NewHeuristic() *Heuristic {
	return &Heuristic{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

// Classify never fails. Its confidence never exceeds MaxHeuristicConfidence.
func (h *Heuristic) Classify(text string) moderation.Classification {
	folded := norm.NFKC.String(text)
	plain := markdownToText(folded)
	lower := strings.ToLower(plain)

	var patterns []string
	add := func(kind string, hits []string) {
		for _, hit := range hits {
			patterns = append(patterns, kind+":"+hit)
		}
	}

	gambling := distinct(gamblingRe.FindAllString(lower, -1))
	promo := distinct(promoRe.FindAllString(lower, -1))
	cta := distinct(ctaRe.FindAllString(lower, -1))
	scam := distinct(scamRe.FindAllString(lower, -1))
	wordNumbers := distinct(wordNumberRe.FindAllString(plain, -1))
	urls := urlRe.FindAllString(folded, -1)

	add("gambling", gambling)
	add("word_numbers", wordNumbers)
	add("promotional", promo)
	add("cta", cta)
	add("scam", scam)
	if len(urls) > 0 {
		patterns = append(patterns, "url")
	}

	lure := len(promo) + len(cta) + len(urls) + len(wordNumbers)

	var spamType moderation.SpamType
	switch {
	case len(gambling) > 0, len(wordNumbers) > 0 && lure > len(wordNumbers):
		spamType = moderation.SpamGambling
	case len(scam) > 0 && lure > 0:
		spamType = moderation.SpamScam
	case lure >= 2:
		spamType = moderation.SpamPromotional
	case len(patterns) == 0 && plain != "" && h.analyzer.PolarityScores(plain).Compound <= offensiveCompound:
		spamType = moderation.SpamOffensive
		patterns = append(patterns, "negative_sentiment")
	default:
		spamType = moderation.SpamNone
	}

	isSpam := spamType != moderation.SpamNone
	confidence := 0.2
	if isSpam {
		confidence = min(0.1+0.05*float64(len(patterns)), MaxHeuristicConfidence)
	}

	return moderation.Classification{
		IsSpam:     isSpam,
		Confidence: confidence,
		SpamType:   spamType,
		Reason:     fmt.Sprintf("pattern heuristic: %d signal(s)", len(patterns)),
		Patterns:   patterns,
		Source:     moderation.SourceHeuristic,
	}
}

// markdownToText renders YouTube's lightweight markup and drops the tags,
// leaving single-spaced text.
func markdownToText(s string) string {
	out := blackfriday.Run([]byte(s), blackfriday.WithNoExtensions())
	text := html.UnescapeString(tagRe.ReplaceAllString(string(out), " "))
	return strings.Join(strings.Fields(text), " ")
}

func distinct(hits []string) []string {
	if len(hits) < 2 {
		return hits
	}
	seen := make(map[string]bool, len(hits))
	out := hits[:0]
	for _, h := range hits {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	return out
}
