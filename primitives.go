package isobmff

import "encoding/binary"

var be = binary.BigEndian

// reader walks a caller-supplied byte slice with a cursor, never allocating
// proportional to an untrusted count. Every read is bounds-checked before
// it dereferences; a short buffer reports InvalidData rather than panicking.
type reader struct {
	buf  []byte
	pos  int
	crumb []string
}

func newReader(buf []byte, crumb []string) *reader {
	return &reader{buf: buf, crumb: crumb}
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) need(n int) error {
	if n < 0 || r.remaining() < n {
		return errInvalidData(r.crumb, "need %d bytes, have %d", n, r.remaining())
	}
	return nil
}

func (r *reader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := be.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := be.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := be.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) i16() (int16, error) {
	v, err := r.u16()
	return int16(v), err
}

func (r *reader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err
}

func (r *reader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

func (r *reader) skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// fixed16 is a 16.16 fixed-point rational (e.g. mvhd.rate, tkhd matrix entries).
type fixed16 int32

func newFixed16(v float64) fixed16 { return fixed16(int32(v * 65536)) }
func (f fixed16) Float() float64   { return float64(f) / 65536 }

// fixed8 is an 8.8 fixed-point rational (e.g. mvhd.volume).
type fixed8 int16

func newFixed8(v float64) fixed8 { return fixed8(int16(v * 256)) }
func (f fixed8) Float() float64  { return float64(f) / 256 }

// packLanguage encodes an ISO 639-2/T three-character code into the 15-bit
// packed form used by mdhd/mdia ("elng"-less path): each character minus
// 0x60, five bits each, high bit of the 16-bit field always zero.
func packLanguage(lang string) uint16 {
	var c [3]byte
	copy(c[:], lang)
	return uint16(c[0]-0x60)<<10 | uint16(c[1]-0x60)<<5 | uint16(c[2]-0x60)
}

func unpackLanguage(v uint16) string {
	var c [3]byte
	c[0] = byte((v>>10)&0x1f) + 0x60
	c[1] = byte((v>>5)&0x1f) + 0x60
	c[2] = byte(v&0x1f) + 0x60
	return string(c[:])
}

// cstring reads opaque bytes up to a NUL terminator or the end of buf,
// whichever comes first. Per §4.1, null-terminated strings are decoded as
// opaque bytes rather than validated UTF-8, because hdlr.name in the wild
// routinely violates the spec.
func cstring(buf []byte) []byte {
	for i, c := range buf {
		if c == 0 {
			return buf[:i]
		}
	}
	return buf
}

// appendCstring appends s followed by a single NUL terminator, always
// emitting valid null-terminated bytes on encode regardless of what was
// tolerated on decode.
func appendCstring(dst []byte, s []byte) []byte {
	dst = append(dst, s...)
	return append(dst, 0)
}

// boxHeader is the decoded form of an 8- or 16-byte box header.
type boxHeader struct {
	size     uint64 // total box size including header; 0 means "to end of container"
	typ      BoxType
	largeLen int // 8 or 16, header length actually consumed
}

// decodeBoxHeader reads a box header at buf[0:], returning the header and
// the number of bytes it occupied. size==1 signals a 64-bit largesize
// follows the type; size==0 signals "extends to end of enclosing container".
func decodeBoxHeader(buf []byte, crumb []string) (boxHeader, error) {
	r := newReader(buf, crumb)
	size32, err := r.u32()
	if err != nil {
		return boxHeader{}, err
	}
	typBytes, err := r.bytes(4)
	if err != nil {
		return boxHeader{}, err
	}
	var t BoxType
	copy(t[:], typBytes)

	if size32 == 1 {
		size64, err := r.u64()
		if err != nil {
			return boxHeader{}, err
		}
		return boxHeader{size: size64, typ: t, largeLen: 16}, nil
	}
	return boxHeader{size: uint64(size32), typ: t, largeLen: 8}, nil
}

// encodeBoxHeader writes a box header for a box of the given total size.
// It uses the largesize form if and only if size demands it — it never
// auto-promotes a box that would fit in 32 bits.
func encodeBoxHeader(dst []byte, t BoxType, size uint64) []byte {
	if size > 0xFFFFFFFF {
		dst = be.AppendUint32(dst, 1)
		dst = append(dst, t[:]...)
		dst = be.AppendUint64(dst, size)
		return dst
	}
	dst = be.AppendUint32(dst, uint32(size))
	dst = append(dst, t[:]...)
	return dst
}

func headerLen(size uint64) int {
	if size > 0xFFFFFFFF {
		return 16
	}
	return 8
}
