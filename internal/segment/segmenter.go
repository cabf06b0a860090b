// Package segment groups a streaming token sequence into speakable segments.
//
// The segmenter sits between the LLM token stream and speech synthesis: it
// accumulates fragments and flushes a segment as soon as one is complete, so
// synthesis can start while the model is still generating. A segment ends at
// sentence-terminating punctuation followed by whitespace, when the buffer
// exceeds a hard length bound, or when the stream ends with text remaining.
//
// A Segmenter is single-turn state: create one per turn and discard it. It is
// not safe for concurrent use; the turn task that feeds it owns it.
package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxLen is the hard segment length bound in bytes. A buffer that
// grows past this without a sentence boundary is flushed as-is so synthesis
// latency stays bounded on degenerate output (lists, code, languages without
// terminal punctuation).
const DefaultMaxLen = 180

// terminators are the sentence-ending runes recognised by the segmenter.
// Covers Latin and CJK full-width punctuation.
var terminators = map[rune]bool{
	'.': true, '?': true, '!': true,
	'。': true, '？': true, '！': true,
}

// Segment is one speakable unit of a turn. Index is monotonically increasing
// from 0 within the turn.
type Segment struct {
	Index int
	Text  string
}

// Segmenter accumulates token fragments and emits complete segments.
type Segmenter struct {
	maxLen int
	buf    strings.Builder
	index  int
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithMaxLen overrides the hard segment length bound. Values < 1 are ignored.
func WithMaxLen(n int) Option {
	return func(s *Segmenter) {
		if n >= 1 {
			s.maxLen = n
		}
	}
}

// New returns a Segmenter ready for one turn's token stream.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{maxLen: DefaultMaxLen}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Push appends a token fragment and returns the segments completed by it, in
// order. Most calls return nil; a fragment that carries a sentence boundary
// (or overflows the length bound) returns one or more segments.
func (s *Segmenter) Push(fragment string) []Segment {
	if fragment == "" {
		return nil
	}
	s.buf.WriteString(fragment)

	var out []Segment
	for {
		text := s.buf.String()
		idx := boundary(text)
		if idx < 0 {
			if len(text) > s.maxLen {
				out = s.emit(out, text)
				s.buf.Reset()
				continue
			}
			break
		}
		out = s.emit(out, text[:idx])
		s.buf.Reset()
		s.buf.WriteString(strings.TrimLeft(text[idx:], " \t\n\r"))
	}
	return out
}

// Flush returns the remaining buffered text as a final segment, or nil if the
// buffer is empty or whitespace. Call it once when the token stream ends.
func (s *Segmenter) Flush() []Segment {
	text := s.buf.String()
	s.buf.Reset()
	return s.emit(nil, text)
}

// emit appends a segment for text unless it is blank.
func (s *Segmenter) emit(out []Segment, text string) []Segment {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return out
	}
	out = append(out, Segment{Index: s.index, Text: trimmed})
	s.index++
	return out
}

// boundary returns the byte index just past the first sentence terminator
// that is followed by whitespace, or -1 if the text holds no complete
// sentence. A terminator at the very end of the text does not count: the next
// fragment may continue it (e.g. "3." followed by "5").
func boundary(text string) int {
	for i, r := range text {
		if !terminators[r] {
			continue
		}
		next := i + utf8.RuneLen(r)
		if next >= len(text) {
			return -1
		}
		nr, _ := utf8.DecodeRuneInString(text[next:])
		if unicode.IsSpace(nr) {
			return next
		}
		// CJK terminators are not followed by spaces; any following rune
		// closes the sentence.
		if r == '。' || r == '？' || r == '！' {
			return next
		}
	}
	return -1
}
