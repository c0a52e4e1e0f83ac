package protocol

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeTerminatesWithDoubleNewline(t *testing.T) {
	assert.Equal(t, "CHECK\n\n", Encode(Check))
	assert.Equal(t, "BACKUP 10.0.0.2:8000\n\n", Encode(Backup, "10.0.0.2:8000"))
}

func TestDecodeWithoutSeparator(t *testing.T) {
	msgType, rest := Decode("  NAMES \n\n")
	assert.Equal(t, "NAMES", msgType)
	assert.Equal(t, "", rest)

	msgType, rest = Decode("")
	assert.Equal(t, "", msgType)
	assert.Equal(t, "", rest)
}

func TestRoundTrip(t *testing.T) {
	msg := Encode("game", "Alice", "2", "extra")
	msgType, rest := Decode(msg)
	require.Equal(t, "game", msgType)

	a, rest := Decode(rest)
	b, rest := Decode(rest)
	c, rest := Decode(rest)
	assert.Equal(t, "Alice", a)
	assert.Equal(t, "2", b)
	assert.Equal(t, "extra", c)
	assert.Equal(t, "", rest)
}

func TestCustomSeparator(t *testing.T) {
	codec := NewCodec("|")
	msg := codec.Encode("T", "a b", "c")
	assert.Equal(t, "T|a b|c\n\n", msg)

	msgType, rest := codec.Decode(msg)
	assert.Equal(t, "T", msgType)
	assert.Equal(t, "a b|c", rest)
	assert.Equal(t, []string{"a b", "c"}, codec.Fields(rest))
}

func TestLists(t *testing.T) {
	assert.Equal(t, "a,b,c", JoinList([]string{"a", "b", "c"}))
	assert.Equal(t, []string{"a", "b", "c"}, SplitList("a,b,c"))
	assert.Equal(t, []string{}, SplitList(""))
	assert.Equal(t, []string{"a"}, SplitList("a,"))

	records := []string{"1 x,y", "2 z"}
	assert.Equal(t, records, SplitRecords(JoinRecords(records)))
}

func TestValidField(t *testing.T) {
	assert.True(t, ValidField("Alice"))
	assert.False(t, ValidField(""))
	assert.False(t, ValidField("Al ice"))
	assert.False(t, ValidField("Al,ice"))
	assert.False(t, ValidField("Al\nice"))
}

func TestReadMessageFraming(t *testing.T) {
	stream := Encode(GameSessions, JoinRecords([]string{"1 a", "2 b"})) + Ack() + Encode(Check)
	r := bufio.NewReader(strings.NewReader(stream))

	msg, err := ReadMessage(r, 0)
	require.NoError(t, err)
	assert.Equal(t, "GAME_SESSIONS 1 a\n2 b", msg)

	msg, err = ReadMessage(r, 0)
	require.NoError(t, err)
	assert.Equal(t, "", msg)

	msg, err = ReadMessage(r, 0)
	require.NoError(t, err)
	assert.Equal(t, "CHECK", msg)

	_, err = ReadMessage(r, 0)
	assert.Equal(t, io.EOF, err)
}

func TestReadMessageTruncated(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("CHECK\n"))
	_, err := ReadMessage(r, 0)
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestReadMessageTooLarge(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(strings.Repeat("a", 64) + "\n\n"))
	_, err := ReadMessage(r, 16)
	assert.Equal(t, ErrMessageTooLarge, err)
}

func TestWriteMessage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, Encode(Names)))
	require.NoError(t, WriteMessage(&buf, "CHECK"))
	assert.Equal(t, "NAMES\n\nCHECK\n\n", buf.String())
}

func TestClientResponses(t *testing.T) {
	assert.Equal(t, "success checkname Alice\n\n", SuccessResponse(VerbCheckName, "Alice"))
	assert.Equal(t, "failure cancel not in queue\n\n", FailureResponse(VerbCancel, "not in queue"))
	assert.Equal(t, "error unknown request\n\n", ErrorResponse("unknown request"))
}
