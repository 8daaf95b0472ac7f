package parser

// streaming.go provides constant-memory readers used in front of the CSV
// decoder:
//
//   - bomSkippingReader: removes a UTF-8 BOM (0xEF 0xBB 0xBF) left by Windows tools
//   - strictUTF8Reader: fails the parse on the first invalid UTF-8 sequence
//   - countingReader: tracks bytes read for logging and metrics
//
// decodeStream chooses between strict UTF-8 and a GB18030 fallback by
// sniffing the first block of the file.

import (
	"bufio"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// sniffSize is how much of a CSV file is inspected to choose its encoding.
const sniffSize = 64 << 10

// Encoding names accepted by Options.FallbackEncoding.
const (
	EncodingNone    = "none"
	EncodingGB18030 = "gb18030"
)

// bomSkippingReader skips the UTF-8 BOM if present.
type bomSkippingReader struct {
	reader  *bufio.Reader
	checked bool
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{reader: bufio.NewReader(r)}
}

func (r *bomSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true
		head, err := r.reader.Peek(3)
		if err == nil && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
			if _, err := r.reader.Discard(3); err != nil {
				return 0, err
			}
		}
	}
	return r.reader.Read(p)
}

// strictUTF8Reader passes bytes through unchanged and returns an encoding
// error as soon as an invalid sequence is seen. Incomplete sequences at a
// buffer boundary are carried into the next Read.
type strictUTF8Reader struct {
	reader  io.Reader
	pending []byte
	offset  int64
}

func newStrictUTF8Reader(r io.Reader) *strictUTF8Reader {
	return &strictUTF8Reader{reader: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *strictUTF8Reader) Read(p []byte) (int, error) {
	if len(p) < utf8.UTFMax {
		return 0, io.ErrShortBuffer
	}

	offset := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.reader.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	data := p[:n]
	if err == nil {
		if trailing := incompleteTrailingBytes(data); trailing > 0 {
			s.pending = append(s.pending, data[n-trailing:]...)
			data = data[:n-trailing]
		}
	}

	if !isAllASCII(data) && !utf8.Valid(data) {
		at := s.offset + int64(firstInvalid(data))
		return 0, fmt.Errorf("%w: encoding error at byte %d", core.ErrMalformedFile, at)
	}

	s.offset += int64(len(data))
	return len(data), err
}

// isAllASCII returns true if all bytes are ASCII (< 128).
func isAllASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

func firstInvalid(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(data)
}

// incompleteTrailingBytes returns the number of bytes at the end of data
// that could be the start of an incomplete multi-byte UTF-8 sequence.
func incompleteTrailingBytes(data []byte) int {
	for i := 1; i <= 3 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b >= 0xC0 {
			if i < runeLen(b) {
				return i
			}
			return 0
		}
		if b&0xC0 != 0x80 {
			return 0
		}
	}
	return 0
}

// runeLen returns the expected length of a UTF-8 sequence starting with b.
func runeLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	}
	return 4
}

// countingReader tracks bytes read.
type countingReader struct {
	reader    io.Reader
	BytesRead int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// decodeStream wraps a CSV byte stream so the decoder always sees UTF-8.
// The order matters: the BOM goes first, then the encoding decision.
func decodeStream(r io.Reader, fallback string) (io.Reader, error) {
	br := bufio.NewReaderSize(newBOMSkippingReader(r), sniffSize)
	head, err := br.Peek(sniffSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedFile, err)
	}
	if len(head) == 0 {
		return nil, fmt.Errorf("%w: empty file", core.ErrMalformedFile)
	}

	if len(head) == sniffSize {
		head = head[:len(head)-incompleteTrailingBytes(head)]
	}
	if utf8.Valid(head) {
		return newStrictUTF8Reader(br), nil
	}

	if fallback == EncodingGB18030 {
		return transform.NewReader(br, simplifiedchinese.GB18030.NewDecoder()), nil
	}
	return nil, fmt.Errorf("%w: encoding error, file is not UTF-8", core.ErrMalformedFile)
}
