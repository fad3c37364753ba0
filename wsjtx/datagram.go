package wsjtx

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic opens every WSJT-X UDP message.
const Magic uint32 = 0xADBCCBDA

// MessageType is the WSJT-X network message type.
type MessageType uint32

const (
	TypeHeartbeat  MessageType = 0
	TypeStatus     MessageType = 1
	TypeDecode     MessageType = 2
	TypeQSOLogged  MessageType = 5
	TypeClose      MessageType = 6
	TypeLoggedADIF MessageType = 12
)

const nullString = 0xffffffff

var (
	ErrShortDatagram = errors.New("wsjtx: datagram truncated")
	ErrBadMagic      = errors.New("wsjtx: bad magic number")
	// ErrIgnored is returned for well-formed messages other than Logged ADIF.
	ErrIgnored = errors.New("wsjtx: message type not handled")
)

// Message is a decoded Logged ADIF datagram.
type Message struct {
	Schema uint32
	Type   MessageType
	ID     string
	// Payload is the ADIF text of the logged record.
	Payload []byte
}

// DecodeDatagram unpacks the WSJT-X framing: magic, schema, type, then a
// length-prefixed client id. Only Logged ADIF messages carry a payload;
// every other type returns ErrIgnored with the header fields filled in.
func DecodeDatagram(b []byte) (Message, error) {
	if len(b) < 12 {
		return Message{}, ErrShortDatagram
	}
	if binary.BigEndian.Uint32(b[0:4]) != Magic {
		return Message{}, ErrBadMagic
	}
	msg := Message{
		Schema: binary.BigEndian.Uint32(b[4:8]),
		Type:   MessageType(binary.BigEndian.Uint32(b[8:12])),
	}
	id, rest, err := readString(b[12:])
	if err != nil {
		return msg, err
	}
	msg.ID = string(id)
	if msg.Type != TypeLoggedADIF {
		return msg, ErrIgnored
	}
	payload, _, err := readString(rest)
	if err != nil {
		return msg, err
	}
	msg.Payload = payload
	return msg, nil
}

// EncodeLoggedADIF builds a Logged ADIF datagram.
func EncodeLoggedADIF(schema uint32, id string, payload []byte) []byte {
	out := make([]byte, 0, 20+len(id)+len(payload))
	out = binary.BigEndian.AppendUint32(out, Magic)
	out = binary.BigEndian.AppendUint32(out, schema)
	out = binary.BigEndian.AppendUint32(out, uint32(TypeLoggedADIF))
	out = appendString(out, []byte(id))
	out = appendString(out, payload)
	return out
}

func readString(b []byte) (value, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, ErrShortDatagram
	}
	n := binary.BigEndian.Uint32(b[0:4])
	b = b[4:]
	if n == nullString {
		return nil, b, nil
	}
	if uint64(n) > uint64(len(b)) {
		return nil, nil, fmt.Errorf("%w: string of %d bytes, %d left", ErrShortDatagram, n, len(b))
	}
	return b[:n], b[n:], nil
}

func appendString(out, s []byte) []byte {
	out = binary.BigEndian.AppendUint32(out, uint32(len(s)))
	return append(out, s...)
}
