package finder

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// EscapeIdent serializes s as a CSS identifier, following the CSSOM
// CSS.escape() rules, so it can follow '#' or '.' or stand as a tag or
// attribute name in a selector. A leading "--" is written as `-\-`.
func EscapeIdent(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))

	first, _ := utf8.DecodeRuneInString(s)
	n := utf8.RuneCountInString(s)

	i := 0
	for _, r := range s {
		switch {
		case r == 0:
			sb.WriteRune(utf8.RuneError)
		case (r >= 0x1 && r <= 0x1f) || r == 0x7f:
			writeHexEscape(&sb, r)
		case i == 0 && isDigit(r):
			writeHexEscape(&sb, r)
		case i == 1 && isDigit(r) && first == '-':
			writeHexEscape(&sb, r)
		case i == 0 && r == '-' && n == 1:
			sb.WriteString(`\-`)
		case i == 1 && r == '-' && first == '-':
			// "--" opens a custom-property name, which selector parsers
			// reject as an identifier start.
			sb.WriteString(`\-`)
		case r >= 0x80 || r == '-' || r == '_' || isDigit(r) || isASCIILetter(r):
			sb.WriteRune(r)
		default:
			sb.WriteByte('\\')
			sb.WriteRune(r)
		}
		i++
	}
	return sb.String()
}

// EscapeString serializes s as the body of a double-quoted CSS string.
func EscapeString(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	for _, r := range s {
		switch {
		case r == 0:
			sb.WriteRune(utf8.RuneError)
		case (r >= 0x1 && r <= 0x1f) || r == 0x7f:
			writeHexEscape(&sb, r)
		case r == '"' || r == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// writeHexEscape writes r as "\<hex> ". The trailing space terminates the
// escape so a following hex digit is not swallowed.
func writeHexEscape(sb *strings.Builder, r rune) {
	sb.WriteByte('\\')
	sb.WriteString(strconv.FormatInt(int64(r), 16))
	sb.WriteByte(' ')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
