package process

import (
	"strings"
	"unicode/utf8"
)

// decoder turns a byte stream into valid UTF-8 text. Invalid bytes are
// dropped; a rune split across two reads is held back until it completes.
type decoder struct {
	pending []byte
}

func (d *decoder) decode(p []byte) string {
	if len(d.pending) > 0 {
		p = append(d.pending, p...)
		d.pending = nil
	}

	var b strings.Builder
	b.Grow(len(p))
	for len(p) > 0 {
		if p[0] < utf8.RuneSelf {
			b.WriteByte(p[0])
			p = p[1:]
			continue
		}
		if !utf8.FullRune(p) {
			d.pending = append([]byte(nil), p...)
			break
		}
		r, size := utf8.DecodeRune(p)
		if r != utf8.RuneError || size > 1 {
			b.Write(p[:size])
		}
		p = p[size:]
	}
	return b.String()
}
