package isobmff

// Box is the typed representation of one ISO-BMFF box. Containers hold
// further boxes in Children, file order preserved; leaves hold exactly one
// of the typed payload fields below, selected by Type. A box the registry
// does not recognize is retained verbatim as an opaque (type, bytes) pair
// with Unknown set, so that round-tripping a file with unfamiliar side-boxes
// preserves them exactly.
type Box struct {
	Type    BoxType
	Size    uint64 // total encoded size including header, as last decoded/sized
	Version uint8
	Flags   uint32
	Large   bool // true if this box was decoded from a 64-bit largesize header; Encode does not consult it and picks the header form from the size alone

	Children []*Box
	Unknown  bool
	Raw      []byte // opaque payload bytes for Unknown boxes, and for mdat/free/skip

	Ftyp   *Ftyp
	Mvhd   *Mvhd
	Tkhd   *Tkhd
	Mdhd   *Mdhd
	Hdlr   *Hdlr
	Vmhd   *Vmhd
	Smhd   *Smhd
	Dref   *DrefBox
	Stsd   *Stsd
	Stts   *Stts
	Ctts   *Ctts
	Stsc   *Stsc
	Stsz   *Stsz
	Stco   *Stco
	Co64   *Co64
	Stss   *Stss
	Esds   *Esds
	Config *ConfigBox // avcC / hvcC / av1C / vpcC / dOps / dfLa
	Visual *VisualSampleEntry
	Audio  *AudioSampleEntry
}

// Child returns the first direct child of the given type, or nil.
func (b *Box) Child(t BoxType) *Box {
	for _, c := range b.Children {
		if c.Type == t {
			return c
		}
	}
	return nil
}

// ChildList returns every direct child of the given type, in file order.
func (b *Box) ChildList(t BoxType) []*Box {
	var out []*Box
	for _, c := range b.Children {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// codecOps is the per-box-type decode/encode/size triple the registry
// dispatches on. Container boxes (IsContainerBox) and sample entries
// (isSampleEntry) are handled generically in Decode/encodeBox instead of
// going through this table.
type codecOps struct {
	decode func(box *Box, buf []byte, start, end int, crumb []string) error
	encode func(box *Box, dst []byte) []byte
	length func(box *Box) int
}

var codecs = map[BoxType]*codecOps{}

func registerCodec(t BoxType, ops *codecOps) { codecs[t] = ops }

// Decode parses one box (and, recursively, its children) from
// buf[start:end]. end bounds the enclosing container: a size==0 header
// ("extends to end of container") resolves to end, and a declared size that
// overruns end is rejected rather than read out of bounds.
func Decode(buf []byte, start, end int, crumb []string) (*Box, error) {
	if start < 0 || end > len(buf) || start > end {
		return nil, errInvalidData(crumb, "decode: invalid bounds [%d:%d) in buffer of length %d", start, end, len(buf))
	}
	hdr, err := decodeBoxHeader(buf[start:end], crumb)
	if err != nil {
		return nil, err
	}

	size := hdr.size
	if size == 0 {
		size = uint64(end - start)
	}
	boxEnd := start + int(size)
	if size > uint64(end-start) || boxEnd > end || boxEnd < start {
		return nil, errInvalidData(crumb, "box %q size %d overruns container end", hdr.typ, size)
	}

	box := &Box{Type: hdr.typ, Size: size, Large: hdr.largeLen == 16}
	crumb = withBox(crumb, hdr.typ)

	payloadStart := start + hdr.largeLen
	payloadEnd := boxEnd

	if IsFullBox(hdr.typ) {
		if payloadEnd-payloadStart < 4 {
			return nil, errInvalidData(crumb, "full box payload too short for version/flags")
		}
		vf, err := newReader(buf[payloadStart:payloadStart+4], crumb).u32()
		if err != nil {
			return nil, err
		}
		box.Version = uint8(vf >> 24)
		box.Flags = vf & 0x00FFFFFF
		payloadStart += 4
	}

	switch {
	case hdr.typ == TypeStsd:
		if err := decodeStsd(box, buf, payloadStart, payloadEnd, crumb); err != nil {
			return nil, err
		}
	case IsContainerBox(hdr.typ):
		if err := decodeChildren(box, buf, payloadStart, payloadEnd, crumb); err != nil {
			return nil, err
		}
	case isSampleEntry(hdr.typ):
		if err := decodeSampleEntry(box, buf, payloadStart, payloadEnd, crumb); err != nil {
			return nil, err
		}
	default:
		if ops, ok := codecs[hdr.typ]; ok {
			if err := ops.decode(box, buf, payloadStart, payloadEnd, crumb); err != nil {
				return nil, err
			}
		} else {
			box.Unknown = true
			box.Raw = append([]byte(nil), buf[payloadStart:payloadEnd]...)
		}
	}

	return box, nil
}

// decodeChildren walks buf[start:end] as a sequence of sibling boxes.
func decodeChildren(box *Box, buf []byte, start, end int, crumb []string) error {
	pos := start
	for pos < end {
		child, err := Decode(buf, pos, end, crumb)
		if err != nil {
			return err
		}
		box.Children = append(box.Children, child)
		pos += int(child.Size)
	}
	return nil
}

// EncodingLength returns the number of bytes Encode will write for box,
// including its header and any version/flags prefix.
func EncodingLength(box *Box) int {
	var payload int
	switch {
	case box.Type == TypeStsd:
		payload = encodingLengthStsd(box)
	case box.Unknown, box.Raw != nil && len(box.Children) == 0 && box.Type != TypeStsd:
		if box.Raw != nil {
			payload = len(box.Raw)
		}
	case len(box.Children) > 0 || IsContainerBox(box.Type):
		for _, c := range box.Children {
			payload += EncodingLength(c)
		}
	case box.Visual != nil:
		payload = encodingLengthSampleEntry(box)
	case box.Audio != nil:
		payload = encodingLengthSampleEntry(box)
	default:
		if ops, ok := codecs[box.Type]; ok {
			payload = ops.length(box)
		}
	}
	total := payload
	if IsFullBox(box.Type) {
		total += 4
	}
	size := uint64(total + 8)
	return headerLen(size) + total
}

// Encode appends box's encoded bytes (header, version/flags if any, and
// payload) to dst and returns the extended slice.
func Encode(box *Box, dst []byte) ([]byte, error) {
	total := EncodingLength(box)
	size := uint64(total)
	dst = encodeBoxHeader(dst, box.Type, size)

	if IsFullBox(box.Type) {
		vf := uint32(box.Version)<<24 | (box.Flags & 0x00FFFFFF)
		dst = be.AppendUint32(dst, vf)
	}

	switch {
	case box.Type == TypeStsd:
		return encodeStsd(box, dst)
	case (len(box.Children) > 0 || IsContainerBox(box.Type)) && !box.Unknown:
		var err error
		for _, c := range box.Children {
			dst, err = Encode(c, dst)
			if err != nil {
				return nil, err
			}
		}
		return dst, nil
	case box.Unknown:
		return append(dst, box.Raw...), nil
	case box.Visual != nil || box.Audio != nil:
		return encodeSampleEntry(box, dst)
	default:
		if ops, ok := codecs[box.Type]; ok {
			return ops.encode(box, dst), nil
		}
		return append(dst, box.Raw...), nil
	}
}
