package push

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	uerrors "github.com/vango-dev/uidl/internal/errors"
)

// Framing constants shared with the client.
const (
	// MessageDelimiter ends the length prefix of a message.
	MessageDelimiter = '|'

	// FragmentSize is the largest frame the client sends, in UTF-16 code
	// units.
	FragmentSize = 4096

	// BufferSize is the read buffer size of the push transports.
	BufferSize = 65536
)

// UTF16Len returns the length of s in UTF-16 code units, the unit message
// lengths are expressed in.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// Frame prefixes a message with its length: <len>|<message>.
func Frame(message string) string {
	return strconv.Itoa(UTF16Len(message)) + string(MessageDelimiter) + message
}

// Fragment frames message and splits it into chunks of at most size
// UTF-16 code units. Chunks never split a character.
func Fragment(message string, size int) []string {
	if size <= 1 {
		size = FragmentSize
	}
	framed := Frame(message)

	var chunks []string
	start, units := 0, 0
	for i, r := range framed {
		n := utf16.RuneLen(r)
		if units+n > size {
			chunks = append(chunks, framed[start:i])
			start, units = i, 0
		}
		units += n
	}
	return append(chunks, framed[start:])
}

// FragmentBuffer reassembles messages sent as <len>|<payload> across one
// or more frames. A frame may end inside a multi-byte character; the
// incomplete bytes are carried over to the next frame.
type FragmentBuffer struct {
	expected int
	units    int
	buf      strings.Builder
	partial  []byte
}

// NewFragmentBuffer returns an empty buffer.
func NewFragmentBuffer() *FragmentBuffer {
	return &FragmentBuffer{expected: -1}
}

// Receive consumes one frame. It returns a reader over the complete
// message once the declared length has been reached, and nil before that.
func (b *FragmentBuffer) Receive(r io.Reader) (io.Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(b.partial) > 0 {
		data = append(b.partial, data...)
		b.partial = nil
	}

	if b.expected < 0 {
		i := bytes.IndexByte(data, MessageDelimiter)
		if i < 0 {
			b.Reset()
			return nil, malformedFragment(fmt.Errorf("no length prefix in %q", truncate(data)))
		}
		n, err := strconv.Atoi(string(data[:i]))
		if err != nil || n < 0 {
			b.Reset()
			return nil, malformedFragment(fmt.Errorf("invalid length prefix %q", data[:i]))
		}
		b.expected = n
		data = data[i+1:]
	}

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size <= 1 {
			if !utf8.FullRune(data) {
				b.partial = append([]byte(nil), data...)
				break
			}
			b.Reset()
			return nil, malformedFragment(fmt.Errorf("invalid UTF-8 in message"))
		}
		b.buf.WriteRune(r)
		b.units += utf16.RuneLen(r)
		data = data[size:]
	}

	switch {
	case b.units < b.expected:
		return nil, nil
	case b.units > b.expected:
		expected, got := b.expected, b.units
		b.Reset()
		return nil, malformedFragment(fmt.Errorf("message longer than declared: want %d, got %d", expected, got))
	}
	if len(b.partial) > 0 {
		return nil, nil
	}

	msg := b.buf.String()
	b.Reset()
	return strings.NewReader(msg), nil
}

// Pending reports whether a message is partially received.
func (b *FragmentBuffer) Pending() bool {
	return b.expected >= 0
}

// Reset discards any partially received message.
func (b *FragmentBuffer) Reset() {
	b.expected = -1
	b.units = 0
	b.buf.Reset()
	b.partial = nil
}

func truncate(data []byte) []byte {
	if len(data) > 32 {
		return data[:32]
	}
	return data
}

func malformedFragment(err error) error {
	return uerrors.New("U013").Wrap(err)
}
