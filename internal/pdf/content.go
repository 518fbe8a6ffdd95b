package pdf

import (
	"strings"
	"unicode"
)

// TextFromContent pulls the shown text out of a decoded page content stream.
// It understands the text-showing operators (Tj, TJ, ' and ") and treats
// positioning operators as word or line breaks. Font encodings are not
// resolved, so CID-keyed fonts produce little usable output.
func TextFromContent(data []byte) string {
	var (
		sb      strings.Builder
		pending []string
	)

	flush := func(sep byte) {
		if sep != 0 && sb.Len() > 0 {
			sb.WriteByte(sep)
		}
		for _, s := range pending {
			sb.WriteString(s)
		}
		pending = pending[:0]
	}

	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case c == '(':
			s, n := readLiteral(data[i:])
			pending = append(pending, s)
			i += n
		case c == '<' && i+1 < len(data) && data[i+1] == '<':
			i += 2
		case c == '<':
			s, n := readHexString(data[i:])
			pending = append(pending, s)
			i += n
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '/':
			_, n := readToken(data[i+1:])
			i += 1 + n
		case isDelimiter(c) || isSpace(c):
			i++
		default:
			tok, n := readToken(data[i:])
			i += n
			if n == 0 {
				i++
				continue
			}
			if isNumeric(tok) {
				continue
			}
			switch tok {
			case "Tj", "TJ":
				flush(0)
			case "'", "\"":
				flush('\n')
			case "Td", "TD", "Tm":
				flush(0)
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
			case "T*", "ET":
				flush(0)
				if sb.Len() > 0 {
					sb.WriteByte('\n')
				}
			default:
				pending = pending[:0]
			}
		}
	}
	return tidyLines(sb.String())
}

// readLiteral decodes a balanced (...) string starting at data[0].
func readLiteral(data []byte) (string, int) {
	var sb strings.Builder
	depth := 0
	i := 0
	for i < len(data) {
		c := data[i]
		switch c {
		case '(':
			if depth > 0 {
				sb.WriteByte(c)
			}
			depth++
			i++
		case ')':
			depth--
			i++
			if depth == 0 {
				return sb.String(), i
			}
			sb.WriteByte(c)
		case '\\':
			i++
			if i >= len(data) {
				return sb.String(), i
			}
			e := data[i]
			switch e {
			case 'n':
				sb.WriteByte('\n')
				i++
			case 'r':
				sb.WriteByte('\r')
				i++
			case 't':
				sb.WriteByte('\t')
				i++
			case 'b', 'f':
				i++
			case '\r':
				i++
				if i < len(data) && data[i] == '\n' {
					i++
				}
			case '\n':
				i++
			default:
				if e >= '0' && e <= '7' {
					val := 0
					for k := 0; k < 3 && i < len(data) && data[i] >= '0' && data[i] <= '7'; k++ {
						val = val*8 + int(data[i]-'0')
						i++
					}
					sb.WriteByte(byte(val))
				} else {
					sb.WriteByte(e)
					i++
				}
			}
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), i
}

// readHexString decodes <48656C6C6F>. Non-printable results are dropped.
func readHexString(data []byte) (string, int) {
	var (
		raw []byte
		hi  = -1
	)
	i := 1
	for ; i < len(data) && data[i] != '>'; i++ {
		v := hexVal(data[i])
		if v < 0 {
			continue
		}
		if hi < 0 {
			hi = v
			continue
		}
		raw = append(raw, byte(hi<<4|v))
		hi = -1
	}
	if hi >= 0 {
		raw = append(raw, byte(hi<<4))
	}
	if i < len(data) {
		i++
	}
	for _, b := range raw {
		if b < 0x20 || b > 0x7e {
			return "", i
		}
	}
	return string(raw), i
}

func readToken(data []byte) (string, int) {
	n := 0
	for n < len(data) && !isSpace(data[n]) && !isDelimiter(data[n]) {
		n++
	}
	return string(data[:n]), n
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isNumeric(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if !unicode.IsDigit(r) && r != '.' && r != '-' && r != '+' {
			return false
		}
	}
	return true
}

// tidyLines collapses runs of spaces inside lines and drops blank lines.
func tidyLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
