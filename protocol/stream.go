package protocol

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// DefaultMaxMessageBytes bounds the size of a single framed message
const DefaultMaxMessageBytes = 1 << 20

var ErrMessageTooLarge = errors.New("message exceeds maximum size")

// ReadMessage reads one framed message from r and returns it without the
// terminator. max <= 0 uses DefaultMaxMessageBytes.
func ReadMessage(r *bufio.Reader, max int) (string, error) {
	if max <= 0 {
		max = DefaultMaxMessageBytes
	}
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		b.WriteString(line)
		if b.Len() > max {
			return "", ErrMessageTooLarge
		}
		if err != nil {
			if err == io.EOF && b.Len() > 0 {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		if strings.HasSuffix(b.String(), Terminator) {
			return strings.TrimSuffix(b.String(), Terminator), nil
		}
	}
}

// WriteMessage writes an already encoded message to w
func WriteMessage(w io.Writer, msg string) error {
	if !strings.HasSuffix(msg, Terminator) {
		msg = msg + Terminator
	}
	_, err := io.WriteString(w, msg)
	return errors.Wrap(err, "write message")
}
