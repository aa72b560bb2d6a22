// Package decoder implements the UTF-8-safe stream decoder (C1): it
// turns arbitrary byte chunks from a PTY into valid text, carrying an
// incomplete trailing code unit across calls instead of corrupting it.
package decoder

import "unicode/utf8"

// maxCarryover is the longest a UTF-8 code unit can be — a leading
// byte plus up to 3 continuation bytes. A carried incomplete prefix is
// always shorter than this.
const maxCarryover = 4

// Stream is a per-connection UTF-8 decoder. It is not safe for
// concurrent use; each PTY session owns exactly one.
type Stream struct {
	carry []byte
}

// New returns a decoder with empty carryover.
func New() *Stream {
	return &Stream{}
}

// Decode accepts the next chunk of raw bytes and returns the valid
// text decoded so far. All input bytes are consumed: a trailing
// incomplete-but-plausible code unit is buffered for the next call,
// and any byte that cannot even be the head of one is dropped.
func (s *Stream) Decode(chunk []byte) string {
	buf := append(append([]byte(nil), s.carry...), chunk...)
	s.carry = s.carry[:0]

	validLen := validUTF8Prefix(buf)
	text := buf[:validLen]
	rest := buf[validLen:]

	for len(rest) > 0 {
		if n := incompletePrefixLen(rest); n > 0 {
			s.carry = append(s.carry[:0], rest[:n]...)
			break
		}
		// Not a valid prefix of an unfinished code unit: drop one byte
		// and look again from the next position — the remainder may
		// still resolve to a fresh valid prefix plus a new incomplete tail.
		rest = rest[1:]
		if n := validUTF8Prefix(rest); n > 0 {
			text = append(append([]byte{}, text...), rest[:n]...)
			rest = rest[n:]
		}
	}

	return string(text)
}

// validUTF8Prefix returns the length of the longest prefix of b that
// is valid UTF-8.
func validUTF8Prefix(b []byte) int {
	valid := 0
	for valid < len(b) {
		r, size := utf8.DecodeRune(b[valid:])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		valid += size
	}
	return valid
}

// incompletePrefixLen reports whether b (fewer than maxCarryover bytes) is
// itself a valid but not-yet-complete prefix of one multi-byte code
// unit — i.e. a leading byte announcing N continuation bytes, followed
// by fewer than N actual continuation bytes, none of them invalid.
// Returns 0 if b does not look like such a prefix.
func incompletePrefixLen(b []byte) int {
	if len(b) == 0 || len(b) >= maxCarryover {
		return 0
	}
	lead := b[0]
	var want int
	switch {
	case lead&0x80 == 0x00:
		return 0 // ASCII: always complete, never carryover
	case lead&0xE0 == 0xC0:
		want = 2
	case lead&0xF0 == 0xE0:
		want = 3
	case lead&0xF8 == 0xF0:
		want = 4
	default:
		return 0 // stray continuation byte or invalid lead
	}
	if len(b) >= want {
		return 0 // already complete (or over), not a carry case
	}
	for _, c := range b[1:] {
		if c&0xC0 != 0x80 {
			return 0
		}
	}
	return len(b)
}
