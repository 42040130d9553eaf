package llm

// ExtractJSON locates the first balanced {...} span in s and returns
// it. Models rarely return bare JSON; they wrap it in prose, markdown
// fences, or explanations. Centralizing the extraction here keeps the
// agents' parsers honest: they only ever see a candidate object, or
// nothing.
//
// Braces inside JSON strings (and escaped quotes inside those strings)
// do not affect the balance count. Returns ("", false) when no
// balanced object exists.
func ExtractJSON(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}

	return "", false
}
