package migrate

import "strings"

// SplitStatements splits a script into individual statements on ; terminators
//
// terminators inside quoted strings, quoted identifiers, comments and postgres dollar quoted bodies are ignored,
// comments are kept with the statement that follows them and empty statements are dropped
func SplitStatements(script string) []string {
	result := make([]string, 0)
	var sb strings.Builder
	flush := func() {
		if stmt := strings.TrimSpace(sb.String()); stmt != "" && !onlyComments(stmt) {
			result = append(result, stmt)
		}
		sb.Reset()
	}
	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'' || r == '"' || r == '`':
			end := closingQuote(runes, i, r)
			sb.WriteString(string(runes[i:end]))
			i = end - 1
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			end := i
			for end < len(runes) && runes[end] != '\n' {
				end++
			}
			sb.WriteString(string(runes[i:end]))
			i = end - 1
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			end := indexFrom(runes, i+2, "*/")
			sb.WriteString(string(runes[i:end]))
			i = end - 1
		case r == '$':
			if tag, ok := dollarTag(runes, i); ok {
				end := indexFrom(runes, i+len(tag), tag)
				sb.WriteString(string(runes[i:end]))
				i = end - 1
			} else {
				sb.WriteRune(r)
			}
		case r == ';':
			flush()
		default:
			sb.WriteRune(r)
		}
	}
	flush()
	return result
}

// closingQuote returns the index just past the quote closing the one at start (doubled quotes are escapes)
func closingQuote(runes []rune, start int, q rune) int {
	for i := start + 1; i < len(runes); i++ {
		switch {
		case runes[i] == '\\' && q != '`':
			i++
		case runes[i] == q:
			if i+1 < len(runes) && runes[i+1] == q {
				i++
				continue
			}
			return i + 1
		}
	}
	return len(runes)
}

// indexFrom returns the index just past the first occurrence of token at or after from, or len(runes)
func indexFrom(runes []rune, from int, token string) int {
	t := []rune(token)
	for i := from; i+len(t) <= len(runes); i++ {
		if string(runes[i:i+len(t)]) == token {
			return i + len(t)
		}
	}
	return len(runes)
}

// dollarTag returns a postgres dollar quote tag ($$ or $name$) starting at i
func dollarTag(runes []rune, i int) (string, bool) {
	for j := i + 1; j < len(runes); j++ {
		r := runes[j]
		if r == '$' {
			return string(runes[i : j+1]), true
		}
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (j > i+1 && r >= '0' && r <= '9')) {
			return "", false
		}
	}
	return "", false
}

func onlyComments(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			if !(strings.HasPrefix(line, "/*") && strings.HasSuffix(line, "*/")) {
				return false
			}
		}
	}
	return true
}
