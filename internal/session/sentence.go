package session

import (
	"strings"
	"unicode/utf8"
)

// sentenceSplitter accumulates streamed LLM tokens and emits complete
// sentences for incremental TTS synthesis. A sentence shorter than minRunes
// is held back and merged with the following one so the synthesiser is not
// fed fragments like "Dr." or "1.".
type sentenceSplitter struct {
	buf      strings.Builder
	minRunes int
}

// push appends text to the buffer and returns any complete sentences that are
// now ready, in order.
func (sp *sentenceSplitter) push(text string) []string {
	sp.buf.WriteString(text)

	var out []string
	for {
		s := sp.buf.String()
		idx := sentenceBoundary(s, sp.minRunes)
		if idx < 0 {
			break
		}
		out = append(out, s[:idx+1])
		sp.buf.Reset()
		sp.buf.WriteString(strings.TrimLeft(s[idx+1:], " \t\n\r"))
	}
	return out
}

// flush returns whatever partial text remains and resets the splitter.
func (sp *sentenceSplitter) flush() string {
	s := sp.buf.String()
	sp.buf.Reset()
	return s
}

// sentenceBoundary returns the index of the first '.', '!', or '?' that is
// immediately followed by whitespace and yields a prefix of at least minRunes
// runes. Returns -1 if no such boundary exists in s.
func sentenceBoundary(s string, minRunes int) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			switch s[i+1] {
			case ' ', '\n', '\r', '\t':
				if utf8.RuneCountInString(s[:i+1]) >= minRunes {
					return i
				}
			}
		}
	}
	return -1
}
