package scoring

import (
	"strings"
	"unicode/utf8"
)

// Red flag labels surfaced in turn records and reports.
const (
	FlagEmptyAnswer       = "empty_answer"
	FlagVeryShortResponse = "very_short_response"
	FlagLowConfidence     = "low_confidence"
)

// uncertaintyMarkers are phrases that signal the candidate is guessing.
var uncertaintyMarkers = []string{"не уверен", "не знаю точно", "затрудняюсь"}

// RedFlags derives flag labels from a transcript and the scoring confidence.
// Flags do not affect the score; they are attached to the turn record.
func RedFlags(transcript string, confidence float64) []string {
	text := strings.ToLower(strings.TrimSpace(transcript))

	var flags []string
	if text == "" {
		return append(flags, FlagEmptyAnswer)
	}
	if utf8.RuneCountInString(text) < 10 {
		flags = append(flags, FlagVeryShortResponse)
	}

	lowConfidence := confidence < 0.4
	for _, marker := range uncertaintyMarkers {
		if strings.Contains(text, marker) {
			lowConfidence = true
			break
		}
	}
	if lowConfidence {
		flags = append(flags, FlagLowConfidence)
	}
	return flags
}
