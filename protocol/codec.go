// Package protocol implements the text wire format shared by discovery,
// replication and the client facing acceptor.
//
// A message is a type token followed by fields, joined by a separator
// (a space by default) and terminated by two newline characters. Lists
// inside a field are comma joined and multi record payloads are newline
// joined. Nothing is escaped, so field values must not contain any of
// the separators.
package protocol

import "strings"

const (
	DefaultSeparator = " "
	ListSeparator    = ","
	RecordSeparator  = "\n"
	Terminator       = "\n\n"
)

// Codec encodes and decodes messages using a configurable field separator
type Codec struct {
	separator string
}

// DefaultCodec separates fields with a single space
var DefaultCodec = NewCodec(DefaultSeparator)

func NewCodec(separator string) *Codec {
	if separator == "" {
		separator = DefaultSeparator
	}
	return &Codec{separator: separator}
}

func (c *Codec) Separator() string {
	return c.separator
}

// Encode joins the type and the fields with the separator and appends the terminator
func (c *Codec) Encode(msgType string, fields ...string) string {
	parts := make([]string, 0, len(fields)+1)
	parts = append(parts, msgType)
	parts = append(parts, fields...)
	return strings.Join(parts, c.separator) + Terminator
}

// Decode splits msg on the first separator. The remainder is trimmed.
// When msg has no separator the whole trimmed message is the type.
func (c *Codec) Decode(msg string) (string, string) {
	msg = strings.TrimSpace(msg)
	idx := strings.Index(msg, c.separator)
	if idx < 0 {
		return msg, ""
	}
	return msg[:idx], strings.TrimSpace(msg[idx+len(c.separator):])
}

// Fields splits a payload into its separator delimited fields, dropping empty ones
func (c *Codec) Fields(payload string) []string {
	raw := strings.Split(strings.TrimSpace(payload), c.separator)
	fields := make([]string, 0, len(raw))
	for _, f := range raw {
		if f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

func Encode(msgType string, fields ...string) string {
	return DefaultCodec.Encode(msgType, fields...)
}

func Decode(msg string) (string, string) {
	return DefaultCodec.Decode(msg)
}

func Fields(payload string) []string {
	return DefaultCodec.Fields(payload)
}

// JoinList comma joins items
func JoinList(items []string) string {
	return strings.Join(items, ListSeparator)
}

// SplitList is the inverse of JoinList. An empty payload is an empty list.
func SplitList(payload string) []string {
	return splitNonEmpty(payload, ListSeparator)
}

// JoinRecords newline joins records
func JoinRecords(records []string) string {
	return strings.Join(records, RecordSeparator)
}

// SplitRecords is the inverse of JoinRecords
func SplitRecords(payload string) []string {
	return splitNonEmpty(payload, RecordSeparator)
}

func splitNonEmpty(payload, sep string) []string {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return []string{}
	}
	raw := strings.Split(payload, sep)
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

// ValidField reports whether v can travel as a single field without
// breaking the framing
func ValidField(v string) bool {
	return v != "" && !strings.ContainsAny(v, " ,\n\r\t")
}
