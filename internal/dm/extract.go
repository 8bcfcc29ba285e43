package dm

// largestJSONObject returns the largest balanced {...} substring of s, or ""
// when no balanced object exists. Models that ignore the JSON instruction
// often wrap the object in prose or a code fence; this salvages it.
//
// Braces inside JSON strings are skipped, including escaped quotes.
func largestJSONObject(s string) string {
	best := ""
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		if end := matchBrace(s, i); end > 0 && end-i > len(best) {
			best = s[i:end]
		}
	}
	return best
}

// matchBrace returns the index just past the brace matching s[start], or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++ // skip escaped character
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
