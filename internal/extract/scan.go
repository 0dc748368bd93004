package extract

import "strings"

// attrs holds the named arguments of one call
type attrs struct {
	name        string
	table       string
	nullable    bool
	hasNullable bool
}

// parseAttrs reads name, table and nullable from an argument list. The first
// occurrence of each wins.
func parseAttrs(args string) attrs {
	var a attrs

	var seenName, seenTable bool

	for _, m := range attrRegex.FindAllStringSubmatch(args, -1) {
		switch {
		case m[1] == "name" && !seenName:
			a.name, seenName = m[2], true
		case m[1] == "table" && !seenTable:
			a.table, seenTable = m[2], true
		case m[3] != "" && !a.hasNullable:
			a.nullable = strings.EqualFold(m[3], "true")
			a.hasNullable = true
		}
	}

	return a
}

// genericArg reads the type argument of `<...>` starting at text[open] == '<'.
// Nested brackets are balanced so Nullable<Int32> survives intact. It returns
// the inner text and the index just past the closing bracket.
func genericArg(text string, open int) (string, int, bool) {
	if open >= len(text) || text[open] != '<' {
		return "", 0, false
	}

	depth := 0

	for i := open; i < len(text); i++ {
		switch text[i] {
		case '<':
			depth++
		case '>':
			depth--
			if depth == 0 {
				if i == open+1 {
					return "", 0, false
				}

				return text[open+1 : i], i + 1, true
			}
		case '(', ')', ';', '"', '{', '}':
			return "", 0, false
		}
	}

	return "", 0, false
}

// argList reads a parenthesised argument list beginning at the first
// non-space character at or after start. String literals are skipped so a
// ')' inside a default value does not end the list. It returns the text
// between the parentheses and the index just past the closing one.
func argList(text string, start int) (string, int, bool) {
	open := skipSpace(text, start)
	if open >= len(text) || text[open] != '(' {
		return "", 0, false
	}

	depth := 0
	inString := false

	for i := open; i < len(text); i++ {
		c := text[i]

		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}

			continue
		}

		switch c {
		case '"':
			inString = true
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return text[open+1 : i], i + 1, true
			}
		}
	}

	return "", 0, false
}

func skipSpace(text string, i int) int {
	for i < len(text) {
		switch text[i] {
		case ' ', '\t', '\r', '\n':
			i++
		default:
			return i
		}
	}

	return i
}
