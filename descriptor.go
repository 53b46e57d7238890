package isobmff

// MPEG-4 descriptor codec for esds payloads (ISO/IEC 14496-1 §8.3). Each
// descriptor is tag-length-value: one tag byte, a big-endian variable-length
// size (7 payload bits per byte, high bit set means "more bytes follow"),
// then the payload. The historical bug in some encoders emitted this size
// little-endian; this codec only ever reads and writes the big-endian form.

const (
	descTagESDescriptor            = 0x03
	descTagDecoderConfigDescriptor = 0x04
	descTagDecoderSpecificInfo     = 0x05
	descTagSLConfigDescriptor      = 0x06
)

// descriptor is the decoded form of one MPEG-4 descriptor, with its
// recognized children indexed by tag for esds's small, fixed descriptor
// tree (ES_Descriptor → DecoderConfigDescriptor → DecoderSpecificInfo).
type descriptor struct {
	tag      byte
	oti      byte // objectTypeIndication, only meaningful for DecoderConfigDescriptor
	buffer   []byte
	children map[byte]*descriptor
}

// decodeDescriptorSize reads the variable-length size field starting at
// buf[pos], returning the decoded size and the new cursor position. Per
// §4.1's security requirement, it rejects any chain whose total would
// overflow u32 or exceed end, never allocating proportional to the bogus
// value.
func decodeDescriptorSize(buf []byte, pos, end int) (uint32, int, error) {
	var size uint32
	for i := 0; ; i++ {
		if pos >= end {
			return 0, 0, errInvalidData(nil, "esds: descriptor size truncated")
		}
		if i >= 5 {
			return 0, 0, errInvalidData(nil, "esds: descriptor size exceeds 5 continuation bytes")
		}
		b := buf[pos]
		pos++
		if size > (0xFFFFFFFF >> 7) {
			return 0, 0, errInvalidData(nil, "esds: descriptor size overflows u32")
		}
		size = size<<7 | uint32(b&0x7f)
		if b&0x80 == 0 {
			break
		}
	}
	if pos+int(size) > end || int(size) < 0 {
		return 0, 0, errInvalidData(nil, "esds: descriptor size %d exceeds parent payload", size)
	}
	return size, pos, nil
}

// encodeDescriptorSize appends n's big-endian variable-length encoding.
// Always emits at least one byte; never emits the little-endian form.
func encodeDescriptorSize(dst []byte, n uint32) []byte {
	var tmp [5]byte
	i := len(tmp)
	for {
		i--
		tmp[i] = byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			break
		}
	}
	for j := i; j < len(tmp)-1; j++ {
		tmp[j] |= 0x80
	}
	return append(dst, tmp[i:]...)
}

func decodeDescriptor(buf []byte, start, end int) (*descriptor, int, error) {
	if start >= end {
		return nil, start, errInvalidData(nil, "esds: descriptor truncated before tag byte")
	}
	tag := buf[start]
	size, payloadStart, err := decodeDescriptorSize(buf, start+1, end)
	if err != nil {
		return nil, 0, err
	}
	payloadEnd := payloadStart + int(size)

	d := &descriptor{tag: tag, children: make(map[byte]*descriptor)}
	switch tag {
	case descTagESDescriptor:
		if err := decodeESDescriptor(d, buf, payloadStart, payloadEnd); err != nil {
			return nil, 0, err
		}
	case descTagDecoderConfigDescriptor:
		if err := decodeDecoderConfigDescriptor(d, buf, payloadStart, payloadEnd); err != nil {
			return nil, 0, err
		}
	default:
		d.buffer = buf[payloadStart:payloadEnd]
	}
	return d, payloadEnd, nil
}

func decodeDescriptorArray(buf []byte, start, end int) (map[byte]*descriptor, error) {
	m := make(map[byte]*descriptor)
	pos := start
	for pos+2 <= end {
		d, next, err := decodeDescriptor(buf, pos, end)
		if err != nil {
			return nil, err
		}
		m[d.tag] = d
		pos = next
	}
	return m, nil
}

func decodeESDescriptor(d *descriptor, buf []byte, start, end int) error {
	if start+3 > end {
		return errInvalidData(nil, "esds: ES_Descriptor truncated")
	}
	flags := buf[start+2]
	pos := start + 3
	if flags&0x80 != 0 { // streamDependenceFlag
		pos += 2
	}
	if flags&0x40 != 0 { // URL_Flag
		if pos >= end {
			return errInvalidData(nil, "esds: ES_Descriptor URL length truncated")
		}
		l := int(buf[pos])
		pos += l + 1
	}
	if flags&0x20 != 0 { // OCRstreamFlag
		pos += 2
	}
	if pos > end {
		return errInvalidData(nil, "esds: ES_Descriptor optional fields overrun payload")
	}
	children, err := decodeDescriptorArray(buf, pos, end)
	if err != nil {
		return err
	}
	d.children = children
	return nil
}

// decodeDecoderConfigDescriptor parses the 13-byte fixed prefix
// (objectTypeIndication, streamType/upStream/reserved, bufferSizeDB,
// maxBitrate, avgBitrate) and then any DecoderSpecificInfo child.
// DecoderConfigDescriptor is optional for AAC; its absence is not fatal —
// callers that don't find one simply see a zero oti.
func decodeDecoderConfigDescriptor(d *descriptor, buf []byte, start, end int) error {
	if start >= end {
		return errInvalidData(nil, "esds: DecoderConfigDescriptor empty")
	}
	d.oti = buf[start]
	prefixEnd := start + 13
	if prefixEnd > end {
		prefixEnd = end
	}
	children, err := decodeDescriptorArray(buf, prefixEnd, end)
	if err != nil {
		return err
	}
	d.children = children
	return nil
}

// decoderSpecificInfo returns the DecoderSpecificInfo child, whose first
// byte packs the 5-bit MPEG-4 audio object type used to build codec strings
// like "mp4a.40.2".
func (d *descriptor) decoderSpecificInfo() (*descriptor, bool) {
	dsi, ok := d.children[descTagDecoderSpecificInfo]
	return dsi, ok
}

func (d *descriptor) decoderConfig() (*descriptor, bool) {
	dcd, ok := d.children[descTagDecoderConfigDescriptor]
	return dcd, ok
}
