// Package scoring implements Behaviorally-Anchored Rating Scales (BARS)
// assessment of interview answers.
//
// A transcript is matched against a node's success criteria and snapped to
// one of four anchors (0.0, 0.3, 0.7, 1.0). Per-answer scores aggregate into
// per-block weighted means and a role-weighted overall score.
package scoring

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Anchors are the discrete BARS score levels.
var Anchors = [4]float64{0.0, 0.3, 0.7, 1.0}

// jaroWinklerMin is the similarity above which a token counts as a fuzzy
// match for a single-word criterion. High enough to accept inflected forms
// ("проектов" vs "проекты") without matching unrelated words.
const jaroWinklerMin = 0.92

// Result is the outcome of scoring one answer against one node's criteria.
type Result struct {
	// Score is the BARS anchor in {0.0, 0.3, 0.7, 1.0}.
	Score float64 `json:"score"`

	// Confidence estimates how reliable the score is, in [0, 1].
	Confidence float64 `json:"confidence"`

	// Matched lists the criteria found in the transcript.
	Matched []string `json:"matched_criteria"`
}

// ScoreAnswer evaluates a transcript against success criteria.
//
// Each criterion matches if it appears as an exact substring, as a
// whole-word token, or as a fuzzy token match (Jaro-Winkler). Coverage is
// matched/total; the BARS anchor is derived from coverage and transcript
// length, so a terse answer cannot reach the top anchor even with full
// criterion coverage.
func ScoreAnswer(transcript string, criteria []string) Result {
	text := strings.ToLower(strings.TrimSpace(transcript))
	chars := utf8.RuneCountInString(text)
	tokens := Tokenize(text)

	var matched []string
	for _, c := range criteria {
		if criterionMatches(text, tokens, strings.ToLower(strings.TrimSpace(c))) {
			matched = append(matched, c)
		}
	}

	var coverage float64
	if len(criteria) > 0 {
		coverage = float64(len(matched)) / float64(len(criteria))
	}

	var score float64
	switch {
	case len(matched) == 0 && chars < 20:
		score = 0.0
	case coverage >= 0.75 && chars >= 120:
		score = 1.0
	case coverage < 0.33 || chars < 60:
		score = 0.3
	default:
		score = 0.7
	}

	lengthFactor := min(1, float64(len(tokens))/40) * 0.3
	confidence := min(1, coverage+lengthFactor)

	return Result{Score: score, Confidence: confidence, Matched: matched}
}

// criterionMatches applies the three match tiers in order of strictness.
func criterionMatches(text string, tokens []string, criterion string) bool {
	if criterion == "" {
		return false
	}
	if strings.Contains(text, criterion) {
		return true
	}
	for _, tok := range tokens {
		if tok == criterion {
			return true
		}
	}
	// Fuzzy tier only makes sense for single-word criteria.
	if strings.ContainsRune(criterion, ' ') {
		return false
	}
	for _, tok := range tokens {
		if matchr.JaroWinkler(tok, criterion, false) >= jaroWinklerMin {
			return true
		}
	}
	return false
}

// Tokenize splits text into lowercase word tokens, Unicode-aware so Cyrillic
// answers tokenize the same way Latin ones do.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// SnapToAnchor rounds an arbitrary score in [0, 1] to the nearest BARS
// anchor. Used to normalize model-proposed scores onto the scale.
func SnapToAnchor(score float64) float64 {
	best := Anchors[0]
	bestDist := absf(score - best)
	for _, a := range Anchors[1:] {
		if d := absf(score - a); d < bestDist {
			best, bestDist = a, d
		}
	}
	return best
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
