package parser

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"
)

var responseKey = regexp.MustCompile(`"response"\s*:\s*"`)

// ResponseScanner extracts the "response" string of a record while the
// record's JSON text is still arriving, so the answer can be shown before the
// document is complete.
type ResponseScanner struct {
	buf   strings.Builder
	start int // offset of the first value byte, -1 until the key is seen
	pos   int // next unread offset
	done  bool
}

// NewResponseScanner creates an empty scanner.
func NewResponseScanner() *ResponseScanner {
	return &ResponseScanner{start: -1}
}

// Feed appends a fragment of JSON text and returns the newly decoded part of
// the response value, which may be empty.
func (s *ResponseScanner) Feed(fragment string) string {
	s.buf.WriteString(fragment)
	if s.done {
		return ""
	}

	text := s.buf.String()
	if s.start < 0 {
		loc := responseKey.FindStringIndex(text)
		if loc == nil {
			return ""
		}
		s.start = loc[1]
		s.pos = loc[1]
	}

	var out strings.Builder
	for s.pos < len(text) {
		c := text[s.pos]
		switch {
		case c == '"':
			s.done = true
			return out.String()
		case c != '\\':
			out.WriteByte(c)
			s.pos++
			continue
		}

		// Escape sequence; wait for the rest of it if it is split.
		if s.pos+1 >= len(text) {
			return out.String()
		}
		switch e := text[s.pos+1]; e {
		case 'n':
			out.WriteByte('\n')
		case 't':
			out.WriteByte('\t')
		case 'r':
			out.WriteByte('\r')
		case 'b':
			out.WriteByte('\b')
		case 'f':
			out.WriteByte('\f')
		case 'u':
			r, width, ok := decodeUnicodeEscape(text[s.pos:])
			if !ok {
				return out.String()
			}
			out.WriteRune(r)
			s.pos += width
			continue
		default:
			out.WriteByte(e)
		}
		s.pos += 2
	}
	return out.String()
}

// decodeUnicodeEscape decodes \uXXXX, including surrogate pairs, at the start
// of text. ok is false when more input is needed.
func decodeUnicodeEscape(text string) (rune, int, bool) {
	if len(text) < 6 {
		return 0, 0, false
	}
	v, err := strconv.ParseUint(text[2:6], 16, 32)
	if err != nil {
		return '�', 6, true
	}
	r := rune(v)
	if !utf16.IsSurrogate(r) {
		return r, 6, true
	}
	if len(text) < 12 {
		if len(text) >= 7 && text[6] != '\\' {
			return '�', 6, true
		}
		return 0, 0, false
	}
	if text[6] != '\\' || text[7] != 'u' {
		return '�', 6, true
	}
	lo, err := strconv.ParseUint(text[8:12], 16, 32)
	if err != nil {
		return '�', 6, true
	}
	return utf16.DecodeRune(r, rune(lo)), 12, true
}

// Text returns everything fed so far.
func (s *ResponseScanner) Text() string {
	return s.buf.String()
}
