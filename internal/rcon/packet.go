package rcon

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxPacketSize is the largest packet the server accepts or emits.
	MaxPacketSize = 16384

	headerSize = 12

	flagFromClient = uint32(1) << 31
	flagResponse   = uint32(1) << 30
	sequenceMask   = flagResponse - 1
)

// ErrPacketTooLarge is returned when an encoded packet would exceed MaxPacketSize.
var ErrPacketTooLarge = errors.New("rcon packet exceeds maximum size")

// Packet is a single Frostbite remote administration packet.
//
// Layout (little endian):
//
//	uint32 header   bit31 originated on client, bit30 is response, bits 0-29 sequence
//	uint32 size     total packet size in bytes
//	uint32 words    number of words
//	words...        uint32 length, bytes, 0x00
type Packet struct {
	Sequence   uint32
	FromClient bool
	IsResponse bool
	Words      []string
}

// Status returns the first word of a response packet.
func (p Packet) Status() string {
	if len(p.Words) == 0 {
		return ""
	}
	return p.Words[0]
}

// MarshalBinary encodes the packet into its wire form.
func (p Packet) MarshalBinary() ([]byte, error) {
	size := headerSize
	for _, w := range p.Words {
		size += 4 + len(w) + 1
	}
	if size > MaxPacketSize {
		return nil, ErrPacketTooLarge
	}

	header := p.Sequence & sequenceMask
	if p.FromClient {
		header |= flagFromClient
	}
	if p.IsResponse {
		header |= flagResponse
	}

	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], header)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(size))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(p.Words)))

	offset := headerSize
	for _, w := range p.Words {
		binary.LittleEndian.PutUint32(buf[offset:], uint32(len(w)))
		offset += 4
		offset += copy(buf[offset:], w)
		buf[offset] = 0
		offset++
	}
	return buf, nil
}

// ReadPacket reads and decodes one packet from r.
func ReadPacket(r io.Reader) (Packet, error) {
	var head [headerSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return Packet{}, err
	}

	header := binary.LittleEndian.Uint32(head[0:4])
	size := binary.LittleEndian.Uint32(head[4:8])
	count := binary.LittleEndian.Uint32(head[8:12])

	if size < headerSize || size > MaxPacketSize {
		return Packet{}, fmt.Errorf("invalid rcon packet size %d", size)
	}

	body := make([]byte, size-headerSize)
	if _, err := io.ReadFull(r, body); err != nil {
		return Packet{}, fmt.Errorf("failed to read rcon packet body: %w", err)
	}

	words, err := decodeWords(body, count)
	if err != nil {
		return Packet{}, err
	}

	return Packet{
		Sequence:   header & sequenceMask,
		FromClient: header&flagFromClient != 0,
		IsResponse: header&flagResponse != 0,
		Words:      words,
	}, nil
}

func decodeWords(body []byte, count uint32) ([]string, error) {
	words := make([]string, 0, count)
	offset := 0
	for i := uint32(0); i < count; i++ {
		if offset+4 > len(body) {
			return nil, fmt.Errorf("truncated rcon word %d", i)
		}
		n := int(binary.LittleEndian.Uint32(body[offset:]))
		offset += 4
		if n < 0 || offset+n+1 > len(body) {
			return nil, fmt.Errorf("rcon word %d overruns packet", i)
		}
		words = append(words, string(body[offset:offset+n]))
		offset += n
		if body[offset] != 0 {
			return nil, fmt.Errorf("rcon word %d missing terminator", i)
		}
		offset++
	}
	return words, nil
}
