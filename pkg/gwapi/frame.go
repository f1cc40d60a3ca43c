package gwapi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	StartDelimiter = 0xC5
	MaxPayloadSize = 28
	// delimiter, length, options, command, payload and crc
	MaxFrameSize  = headerSize + MaxPayloadSize + 1
	headerSize    = 4
	crcPolynomial = 0x97
)

var (
	ErrPayloadTooLong = errors.New("gwapi: payload exceeds 28 bytes")
	ErrFrameTooShort  = errors.New("gwapi: frame too short")
	ErrBadDelimiter   = errors.New("gwapi: missing start delimiter")
	ErrBadLength      = errors.New("gwapi: declared length out of range")
	ErrCRCMismatch    = errors.New("gwapi: crc mismatch")
)

// Frame is one gateway protocol message. The backing buffer is fixed size and
// zero padded, so fixed offset reads past the declared length return 0.
type Frame struct {
	buf [MaxFrameSize]byte
}

// Build assembles a frame and appends its CRC8
func Build(cmd Command, opt Option, payload []byte) (Frame, error) {
	var f Frame
	if len(payload) > MaxPayloadSize {
		return f, fmt.Errorf("failed to build %s frame with %d byte payload: %w", cmd, len(payload), ErrPayloadTooLong)
	}
	f.buf[0] = StartDelimiter
	f.buf[1] = byte(len(payload) + 2)
	f.buf[2] = byte(opt)
	f.buf[3] = byte(cmd)
	copy(f.buf[headerSize:], payload)
	f.buf[int(f.buf[1])+2] = f.crc()
	return f, nil
}

// Parse validates raw bytes received from a gateway. Trailing bytes after the
// declared frame size are ignored.
func Parse(raw []byte) (Frame, error) {
	var f Frame
	if len(raw) < headerSize+1 {
		return f, ErrFrameTooShort
	}
	if raw[0] != StartDelimiter {
		return f, ErrBadDelimiter
	}
	length := int(raw[1])
	if length < 2 || length+3 > MaxFrameSize {
		return f, fmt.Errorf("%w: %d", ErrBadLength, length)
	}
	if len(raw) < length+3 {
		return f, ErrFrameTooShort
	}
	copy(f.buf[:], raw[:length+3])
	if f.crc() != f.buf[length+2] {
		return Frame{}, ErrCRCMismatch
	}
	return f, nil
}

// CRC8 computes the gateway checksum: polynomial 0x97, MSB first, no reflection
func CRC8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func (obj *Frame) crc() byte {
	return CRC8(obj.buf[2 : 2+int(obj.buf[1])])
}

func (obj *Frame) Len() int {
	return int(obj.buf[1])
}

func (obj *Frame) Options() Option {
	return Option(obj.buf[2])
}

func (obj *Frame) Command() Command {
	return Command(obj.buf[3])
}

func (obj *Frame) IsLocal() bool {
	return obj.Command().IsLocal()
}

func (obj *Frame) Payload() []byte {
	return obj.buf[headerSize : obj.Len()+2]
}

// Bytes returns the wire representation, crc included
func (obj *Frame) Bytes() []byte {
	return obj.buf[:obj.Len()+3]
}

func (obj *Frame) CRC() byte {
	return obj.buf[obj.Len()+2]
}

// At returns the byte at an absolute frame offset, 0 when out of range
func (obj *Frame) At(offset int) byte {
	if offset < 0 || offset >= MaxFrameSize {
		return 0
	}
	return obj.buf[offset]
}

// Uint16At reads a little-endian value at an absolute frame offset
func (obj *Frame) Uint16At(offset int) uint16 {
	return uint16(obj.At(offset)) | uint16(obj.At(offset+1))<<8
}

// Uint32At reads a little-endian value at an absolute frame offset
func (obj *Frame) Uint32At(offset int) uint32 {
	return uint32(obj.Uint16At(offset)) | uint32(obj.Uint16At(offset+2))<<16
}

// From returns the zero padded buffer starting at an absolute frame offset
func (obj *Frame) From(offset int) []byte {
	if offset < 0 || offset > MaxFrameSize {
		return nil
	}
	return obj.buf[offset:]
}

// ID extracts the sensor id embedded in wireless frames.
// Local frames have no id, the caller knows which gateway they came from.
func (obj *Frame) ID() (uint32, bool) {
	if obj.IsLocal() || obj.Len() < 6 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(obj.buf[headerSize : headerSize+4]), true
}

func (obj Frame) String() string {
	return fmt.Sprintf("%s opts=0x%02X % X", obj.Command(), uint8(obj.Options()), obj.Payload())
}
