package codex

import "bytes"

// lineSplitter turns arbitrary byte chunks into complete lines. It owns the
// carry-over between calls, so a line (or a multibyte sequence) split across
// read boundaries is reassembled before parsing. Independent of the I/O
// mechanism; tests feed it chunk patterns directly.
type lineSplitter struct {
	buf []byte
}

// Feed appends chunk and returns every complete line accumulated so far,
// without the trailing newline. A trailing "\r" (CRLF input) is stripped.
func (s *lineSplitter) Feed(chunk []byte) []string {
	s.buf = append(s.buf, chunk...)
	var lines []string
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			return lines
		}
		line := s.buf[:i]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		lines = append(lines, string(line))
		s.buf = s.buf[i+1:]
	}
}

// Flush returns any unterminated final line. The stream may end without a
// newline; that remainder still counts as a line.
func (s *lineSplitter) Flush() (string, bool) {
	if len(s.buf) == 0 {
		return "", false
	}
	line := s.buf
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	s.buf = nil
	return string(line), true
}
