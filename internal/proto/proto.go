// Package proto implements the line-oriented text dialect sqkvd speaks
// over its TCP socket: parsing a request line into a Command, and
// rendering a Router result back into one of five reply encodings
// (simple string, bulk string/null, integer, multi-line, error).
//
// Grounded on the connection-handling style of EchoVault's server.go —
// a line-buffered reader, one goroutine per connection, a handler
// keyed by uppercased command verb — but simplified to space-separated
// tokens rather than full RESP arrays, since the dialect here is
// explicitly a subset, not a RESP implementation.
package proto

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is a parsed request line: an uppercased verb and its
// remaining whitespace-separated arguments.
type Command struct {
	Verb string
	Args []string
}

// ParseCommand splits a request line into a Command. Leading/trailing
// whitespace is trimmed; an empty or whitespace-only line yields an
// empty verb, which the dispatcher treats as a no-op.
func ParseCommand(line string) Command {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}
	}
	return Command{
		Verb: strings.ToUpper(fields[0]),
		Args: fields[1:],
	}
}

// EncodeSimpleString renders a one-line, always-successful reply, e.g.
// "+OK\r\n" or "+PONG\r\n".
func EncodeSimpleString(s string) []byte {
	return []byte("+" + s + "\r\n")
}

// EncodeError renders a typed failure as a single-line error reply,
// "-ERR <message>\r\n". It is the only place a Go error's text reaches
// the socket; no stack trace or %+v formatting is ever written.
func EncodeError(err error) []byte {
	return []byte("-ERR " + err.Error() + "\r\n")
}

// EncodeInteger renders an integer reply, e.g. ":1\r\n".
func EncodeInteger(n int64) []byte {
	return []byte(":" + strconv.FormatInt(n, 10) + "\r\n")
}

// EncodeBulkString renders a present value as a length-prefixed bulk
// reply: "$<len>\r\n<data>\r\n".
func EncodeBulkString(value []byte) []byte {
	header := "$" + strconv.Itoa(len(value)) + "\r\n"
	out := make([]byte, 0, len(header)+len(value)+2)
	out = append(out, header...)
	out = append(out, value...)
	out = append(out, '\r', '\n')
	return out
}

// EncodeBulkNil renders the absent-value reply, "$-1\r\n".
func EncodeBulkNil() []byte {
	return []byte("$-1\r\n")
}

// EncodeMultiLine renders a fixed count of lines as a small array reply:
// a count header followed by one simple-string line per entry. Used
// only by STATS, which always reports a known, fixed set of fields.
func EncodeMultiLine(lines []string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d\r\n", len(lines))
	for _, line := range lines {
		b.WriteString("+")
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}
