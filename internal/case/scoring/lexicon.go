package scoring

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tier is a group of terms worth a fixed number of points when any of them appears
type Tier struct {
	Name   string
	Points int
	Terms  []string
}

// Lexicon is an ordered set of keyword tiers
type Lexicon []Tier

// FrenchLexicon is the default lexicon for Tunisian village reports
var FrenchLexicon = Lexicon{
	{Name: "severe", Points: 10, Terms: []string{"suicide", "viol", "agression", "arme", "menace de mort", "étrangler"}},
	{Name: "moderate", Points: 5, Terms: []string{"saignement", "fracture", "hospital", "abus", "harcèlement", "peur"}},
	{Name: "mild", Points: 2, Terms: []string{"fugue", "crise", "angoisse", "insomnie"}},
}

// Matches returns the tiers with at least one term present in text.
// Matching is case-insensitive and on whole words, so "viol" does not match "violet".
func (l Lexicon) Matches(text string) []Tier {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	lowered := strings.ToLower(text)

	var matched []Tier
	for _, tier := range l {
		for _, term := range tier.Terms {
			if containsWord(lowered, strings.ToLower(term)) {
				matched = append(matched, tier)
				break
			}
		}
	}
	return matched
}

// containsWord reports whether term occurs in text delimited by non-word runes
func containsWord(text, term string) bool {
	if term == "" {
		return false
	}
	for offset := 0; offset <= len(text)-len(term); {
		i := strings.Index(text[offset:], term)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(term)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		offset = start + 1
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
