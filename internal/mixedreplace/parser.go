// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mixedreplace

import (
	"bytes"
	"errors"
	"regexp"
	"strconv"
)

// maxHeaderBytes bounds a part header block; anything longer is not a frame.
const maxHeaderBytes = 64 << 10

var (
	// ErrMalformedPart is returned when a complete header block carries no usable Content-Length.
	ErrMalformedPart = errors.New("mixedreplace: malformed part header")

	boundaryToken = []byte("--" + Boundary)
	headerEnd     = []byte(crlf + crlf)
	contentLength = regexp.MustCompile(`Content-Length: (\d+)`)
)

// Parser incrementally extracts part payloads from a byte stream. Bytes are
// fed as they arrive; incomplete frames stay buffered until more data comes.
// A Parser is not safe for concurrent use.
type Parser struct {
	buf    []byte
	closed bool
}

// Feed appends freshly received bytes.
func (p *Parser) Feed(b []byte) {
	if p.closed {
		return
	}
	p.buf = append(p.buf, b...)
}

// Closed reports whether the closing boundary has been seen.
func (p *Parser) Closed() bool {
	return p.closed
}

// Buffered returns the number of bytes waiting for completion.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Next returns the next complete part payload. ok is false when more bytes
// are needed (or the stream is closed).
func (p *Parser) Next() (part []byte, ok bool, err error) {
	for {
		if p.closed {
			return nil, false, nil
		}

		start := bytes.Index(p.buf, boundaryToken)
		if start < 0 {
			p.keepTail()
			return nil, false, nil
		}

		after := start + len(boundaryToken)
		if len(p.buf) < after+2 {
			p.discard(start)
			return nil, false, nil
		}
		switch {
		case p.buf[after] == '-' && p.buf[after+1] == '-':
			p.closed = true
			p.buf = nil
			return nil, false, nil
		case p.buf[after] != '\r' || p.buf[after+1] != '\n':
			// "--myboundary" followed by something else is not a delimiter.
			p.discard(after)
			continue
		}

		hdrStart := after + len(crlf)
		end := bytes.Index(p.buf[hdrStart:], headerEnd)
		if end < 0 {
			if len(p.buf)-hdrStart > maxHeaderBytes {
				return nil, false, ErrMalformedPart
			}
			p.discard(start)
			return nil, false, nil
		}

		header := p.buf[hdrStart : hdrStart+end]
		m := contentLength.FindSubmatch(header)
		if m == nil {
			return nil, false, ErrMalformedPart
		}
		n, convErr := strconv.Atoi(string(m[1]))
		if convErr != nil || n < 0 {
			return nil, false, ErrMalformedPart
		}

		bodyStart := hdrStart + end + len(headerEnd)
		if len(p.buf)-bodyStart < n {
			p.discard(start)
			return nil, false, nil
		}

		part = make([]byte, n)
		copy(part, p.buf[bodyStart:bodyStart+n])

		consumed := bodyStart + n
		for i := 0; i < len(crlf) && consumed < len(p.buf) && p.buf[consumed] == crlf[i]; i++ {
			consumed++
		}
		p.discard(consumed)
		return part, true, nil
	}
}

// discard drops the first n buffered bytes.
func (p *Parser) discard(n int) {
	if n <= 0 {
		return
	}
	rest := len(p.buf) - n
	copy(p.buf, p.buf[n:])
	p.buf = p.buf[:rest]
}

// keepTail drops bytes that can no longer start a boundary.
func (p *Parser) keepTail() {
	keep := len(boundaryToken) - 1
	if len(p.buf) > keep {
		p.discard(len(p.buf) - keep)
	}
}
