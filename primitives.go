package bacnet

import "fmt"

// Date represents a BACnet Date primitive. Year is stored as the actual
// calendar year; 0xFF sentinels on any field mean "unspecified" per
// ASHRAE 135 clause 20.2.13. DayOfWeek is 1=Monday..7=Sunday, 0xFF
// unspecified.
type Date struct {
	Year      int // calendar year, or -1 for unspecified
	Month     uint8
	Day       uint8
	DayOfWeek uint8
}

const dateUnspecified = 0xFF

// EncodeDate encodes a Date as its 4-byte wire representation.
func EncodeDate(d Date) []byte {
	yearByte := byte(dateUnspecified)
	if d.Year >= 1900 && d.Year <= 1900+0xFE {
		yearByte = byte(d.Year - 1900)
	}
	return []byte{yearByte, d.Month, d.Day, d.DayOfWeek}
}

// EncodeDateTag encodes a Date with its application tag.
func EncodeDateTag(d Date) []byte {
	data := EncodeDate(d)
	tag := EncodeTag(uint8(TagDate), TagClassApplication, len(data))
	return append(tag, data...)
}

// DecodeDate decodes a 4-byte Date.
func DecodeDate(data []byte) (Date, error) {
	if len(data) != 4 {
		return Date{}, fmt.Errorf("%w: date must be 4 bytes, got %d", ErrInvalidAPDU, len(data))
	}
	d := Date{Month: data[1], Day: data[2], DayOfWeek: data[3]}
	if data[0] == dateUnspecified {
		d.Year = -1
	} else {
		d.Year = 1900 + int(data[0])
	}
	return d, nil
}

func (d Date) String() string {
	if d.Year < 0 {
		return "unspecified-date"
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Time represents a BACnet Time primitive; 0xFF on any field is
// "unspecified" for that field (commonly used for wildcarded schedules).
type Time struct {
	Hour       uint8
	Minute     uint8
	Second     uint8
	Hundredths uint8
}

// EncodeTime encodes a Time as its 4-byte wire representation.
func EncodeTime(t Time) []byte {
	return []byte{t.Hour, t.Minute, t.Second, t.Hundredths}
}

// EncodeTimeTag encodes a Time with its application tag.
func EncodeTimeTag(t Time) []byte {
	data := EncodeTime(t)
	tag := EncodeTag(uint8(TagTime), TagClassApplication, len(data))
	return append(tag, data...)
}

// DecodeTime decodes a 4-byte Time.
func DecodeTime(data []byte) (Time, error) {
	if len(data) != 4 {
		return Time{}, fmt.Errorf("%w: time must be 4 bytes, got %d", ErrInvalidAPDU, len(data))
	}
	return Time{Hour: data[0], Minute: data[1], Second: data[2], Hundredths: data[3]}, nil
}

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d:%02d.%02d", t.Hour, t.Minute, t.Second, t.Hundredths)
}

// BitString represents a BACnet BitString primitive: a packed sequence
// of bits with the unused-bit count in the last byte recorded
// separately, per ASHRAE 135 clause 20.2.10.
type BitString struct {
	Bits []bool
}

// NewBitString builds a BitString from a slice of booleans.
func NewBitString(bits ...bool) BitString {
	return BitString{Bits: bits}
}

// Bit returns the value of bit i, or false if out of range.
func (b BitString) Bit(i int) bool {
	if i < 0 || i >= len(b.Bits) {
		return false
	}
	return b.Bits[i]
}

// Encode packs the bit string into unused-bit-count + packed bytes.
func (b BitString) Encode() []byte {
	nBytes := (len(b.Bits) + 7) / 8
	if nBytes == 0 {
		return []byte{0}
	}
	unused := nBytes*8 - len(b.Bits)
	out := make([]byte, 1+nBytes)
	out[0] = byte(unused)
	for i, bit := range b.Bits {
		if bit {
			out[1+i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}

// EncodeTag encodes the bit string with its application tag.
func (b BitString) EncodeTag() []byte {
	data := b.Encode()
	tag := EncodeTag(uint8(TagBitString), TagClassApplication, len(data))
	return append(tag, data...)
}

// DecodeBitString decodes a packed bit string.
func DecodeBitString(data []byte) (BitString, error) {
	if len(data) < 1 {
		return BitString{}, fmt.Errorf("%w: bit string needs at least 1 byte", ErrInvalidAPDU)
	}
	unused := int(data[0])
	total := (len(data)-1)*8 - unused
	if total < 0 {
		return BitString{}, fmt.Errorf("%w: bit string unused-bit count exceeds payload", ErrInvalidAPDU)
	}
	bits := make([]bool, total)
	for i := 0; i < total; i++ {
		byteIdx := 1 + i/8
		bits[i] = data[byteIdx]&(1<<uint(7-i%8)) != 0
	}
	return BitString{Bits: bits}, nil
}

// EncodeStatusFlags encodes StatusFlags as the 4-bit BitString required
// by ASHRAE 135 clause 12.1.19: {in-alarm, fault, overridden, out-of-service}.
func EncodeStatusFlags(s StatusFlags) BitString {
	return NewBitString(s.InAlarm, s.Fault, s.Overridden, s.OutOfService)
}
