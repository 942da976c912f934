// Package sanitize provides streaming byte filters applied between archive
// extraction and database loading.
//
// The primary filter removes NUL (0x00) bytes: the Postgres text protocol
// cannot represent NUL inside a TEXT column, while upstream document sources
// happily emit it. The filter is implemented as a golang.org/x/text
// transform.Transformer so it composes with bufio readers and never buffers
// more than one chunk, regardless of input size.
package sanitize

import (
	"io"

	"golang.org/x/text/transform"
)

// remover is a transform.Transformer that drops every byte present in the
// drop set. It is stateless, so Reset is a no-op and the transformer is safe
// to reuse across streams of any size.
type remover struct {
	transform.NopResetter
	drop [256]bool
}

// Transform copies src to dst, skipping dropped bytes. Output length is
// always <= input length; input without dropped bytes passes through
// unchanged.
func (t remover) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		b := src[nSrc]
		if t.drop[b] {
			nSrc++
			continue
		}
		if nDst >= len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		dst[nDst] = b
		nDst++
		nSrc++
	}
	return nDst, nSrc, nil
}

// NUL returns a transformer that removes NUL bytes only. This is the default
// filter applied to every payload.
func NUL() transform.Transformer { return remover{drop: dropSet(0x00)} }

// Strict returns a transformer that removes NUL bytes plus the given reserved
// bytes (typically a target's delimiter and quote). Use this when the payload
// cannot be trusted to honor the reserved-byte assumption of raw copy mode.
func Strict(reserved ...byte) transform.Transformer {
	return remover{drop: dropSet(append([]byte{0x00}, reserved...)...)}
}

// Reader wraps r so that all reads pass through the NUL filter.
func Reader(r io.Reader) io.Reader { return transform.NewReader(r, NUL()) }

// StrictReader wraps r so that all reads pass through the strict filter.
func StrictReader(r io.Reader, reserved ...byte) io.Reader {
	return transform.NewReader(r, Strict(reserved...))
}

func dropSet(bs ...byte) (set [256]bool) {
	for _, b := range bs {
		set[b] = true
	}
	return set
}
