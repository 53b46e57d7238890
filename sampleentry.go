package isobmff

// Sample description (sample entry) handling. stsd's payload is a count
// followed by that many boxes, each itself a sample entry tagged by the
// codec's 4-CC (avc1, hev1, hvc1, vp08, vp09, av01, mp4a, Opus, fLaC).
// Every supported sample entry shares one of two fixed prefixes — visual
// (78 bytes) or audio (28 bytes) — per ISO/IEC 14496-12 §8.5.2, followed by
// codec-specific configuration boxes as children.

// Stsd is the sample description box: a list of codec-tagged entries.
type Stsd struct {
	Entries []*Box
}

func decodeStsd(box *Box, buf []byte, start, end int, crumb []string) error {
	r := newReader(buf[start:end], crumb)
	num, err := r.u32()
	if err != nil {
		return err
	}
	s := &Stsd{Entries: make([]*Box, 0, min(int(num), 64))}
	pos := start + 4
	for i := uint32(0); i < num; i++ {
		entry, err := Decode(buf, pos, end, crumb)
		if err != nil {
			return err
		}
		s.Entries = append(s.Entries, entry)
		pos += int(entry.Size)
	}
	box.Stsd = s
	return nil
}

func encodeStsd(box *Box, dst []byte) ([]byte, error) {
	s := box.Stsd
	dst = be.AppendUint32(dst, uint32(len(s.Entries)))
	var err error
	for _, e := range s.Entries {
		dst, err = Encode(e, dst)
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func encodingLengthStsd(box *Box) int {
	total := 4
	for _, e := range box.Stsd.Entries {
		total += EncodingLength(e)
	}
	return total
}

// VisualSampleEntry holds the fixed fields of a video sample entry
// (avc1/hev1/hvc1/vp08/vp09/av01), plus its codec-specific children
// (avcC/hvcC/av1C/vpcC, plus optional btrt/pasp/clap).
type VisualSampleEntry struct {
	DataReferenceIndex uint16
	Width              uint16
	Height             uint16
	HorizResolution    fixed16
	VertResolution     fixed16
	FrameCount         uint16
	CompressorName     [32]byte // Pascal string: length byte + up to 31 bytes
	Depth              uint16
	Children           []*Box
}

// AudioSampleEntry holds the fixed fields of an audio sample entry
// (mp4a/Opus/fLaC), plus its codec-specific children (esds/dOps/dfLa).
type AudioSampleEntry struct {
	DataReferenceIndex uint16
	ChannelCount       uint16
	SampleSize         uint16
	SampleRate         uint32 // 16.16 fixed-point, integer Hz in the top 16 bits
	Children           []*Box
}

const (
	visualSampleEntryFixedLen = 78
	audioSampleEntryFixedLen  = 28
)

func decodeSampleEntry(box *Box, buf []byte, start, end int, crumb []string) error {
	if isVisualSampleEntry(box.Type) {
		return decodeVisualSampleEntry(box, buf, start, end, crumb)
	}
	return decodeAudioSampleEntry(box, buf, start, end, crumb)
}

func decodeVisualSampleEntry(box *Box, buf []byte, start, end int, crumb []string) error {
	r := newReader(buf[start:end], crumb)
	if err := r.skip(6); err != nil { // reserved
		return err
	}
	v := &VisualSampleEntry{}
	var err error
	if v.DataReferenceIndex, err = r.u16(); err != nil {
		return err
	}
	if err := r.skip(2 + 2 + 12); err != nil { // pre_defined, reserved, pre_defined[3]
		return err
	}
	if v.Width, err = r.u16(); err != nil {
		return err
	}
	if v.Height, err = r.u16(); err != nil {
		return err
	}
	hr, err := r.u32()
	if err != nil {
		return err
	}
	v.HorizResolution = fixed16(hr)
	vr, err := r.u32()
	if err != nil {
		return err
	}
	v.VertResolution = fixed16(vr)
	if err := r.skip(4); err != nil { // reserved
		return err
	}
	if v.FrameCount, err = r.u16(); err != nil {
		return err
	}
	name, err := r.bytes(32)
	if err != nil {
		return err
	}
	copy(v.CompressorName[:], name)
	if v.Depth, err = r.u16(); err != nil {
		return err
	}
	if err := r.skip(2); err != nil { // pre_defined = -1
		return err
	}
	childStart := start + visualSampleEntryFixedLen
	if err := decodeChildren(box, buf, childStart, end, crumb); err != nil {
		return err
	}
	v.Children = box.Children
	box.Children = nil
	box.Visual = v
	return nil
}

func decodeAudioSampleEntry(box *Box, buf []byte, start, end int, crumb []string) error {
	r := newReader(buf[start:end], crumb)
	if err := r.skip(6); err != nil { // reserved
		return err
	}
	a := &AudioSampleEntry{}
	var err error
	if a.DataReferenceIndex, err = r.u16(); err != nil {
		return err
	}
	if err := r.skip(8); err != nil { // reserved[2]
		return err
	}
	if a.ChannelCount, err = r.u16(); err != nil {
		return err
	}
	if a.SampleSize, err = r.u16(); err != nil {
		return err
	}
	if err := r.skip(4); err != nil { // pre_defined, reserved
		return err
	}
	if a.SampleRate, err = r.u32(); err != nil {
		return err
	}
	childStart := start + audioSampleEntryFixedLen
	if err := decodeChildren(box, buf, childStart, end, crumb); err != nil {
		return err
	}
	a.Children = box.Children
	box.Children = nil
	box.Audio = a
	return nil
}

func encodeSampleEntry(box *Box, dst []byte) ([]byte, error) {
	if box.Visual != nil {
		return encodeVisualSampleEntry(box, dst)
	}
	return encodeAudioSampleEntry(box, dst)
}

func encodeVisualSampleEntry(box *Box, dst []byte) ([]byte, error) {
	v := box.Visual
	dst = append(dst, make([]byte, 6)...)
	dst = be.AppendUint16(dst, v.DataReferenceIndex)
	dst = append(dst, make([]byte, 2+2+12)...)
	dst = be.AppendUint16(dst, v.Width)
	dst = be.AppendUint16(dst, v.Height)
	hr := v.HorizResolution
	if hr == 0 {
		hr = fixed16(0x00480000)
	}
	dst = be.AppendUint32(dst, uint32(hr))
	vr := v.VertResolution
	if vr == 0 {
		vr = fixed16(0x00480000)
	}
	dst = be.AppendUint32(dst, uint32(vr))
	dst = append(dst, make([]byte, 4)...)
	fc := v.FrameCount
	if fc == 0 {
		fc = 1
	}
	dst = be.AppendUint16(dst, fc)
	dst = append(dst, v.CompressorName[:]...)
	depth := v.Depth
	if depth == 0 {
		depth = 0x18
	}
	dst = be.AppendUint16(dst, depth)
	dst = be.AppendUint16(dst, 0xffff)
	var err error
	for _, c := range v.Children {
		dst, err = Encode(c, dst)
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func encodeAudioSampleEntry(box *Box, dst []byte) ([]byte, error) {
	a := box.Audio
	dst = append(dst, make([]byte, 6)...)
	dst = be.AppendUint16(dst, a.DataReferenceIndex)
	dst = append(dst, make([]byte, 8)...)
	cc := a.ChannelCount
	if cc == 0 {
		cc = 2
	}
	dst = be.AppendUint16(dst, cc)
	ss := a.SampleSize
	if ss == 0 {
		ss = 16
	}
	dst = be.AppendUint16(dst, ss)
	dst = append(dst, make([]byte, 4)...)
	dst = be.AppendUint32(dst, a.SampleRate)
	var err error
	for _, c := range a.Children {
		dst, err = Encode(c, dst)
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func encodingLengthSampleEntry(box *Box) int {
	if box.Visual != nil {
		n := visualSampleEntryFixedLen
		for _, c := range box.Visual.Children {
			n += EncodingLength(c)
		}
		return n
	}
	n := audioSampleEntryFixedLen
	for _, c := range box.Audio.Children {
		n += EncodingLength(c)
	}
	return n
}

// CodecMime returns the RFC 6381-style codec string for a decoded sample
// entry (e.g. "avc1.64001e", "mp4a.40.2", "opus", "vp09.00", "av01.0.04"),
// used by dump tooling to report the codec for each sample description.
func CodecMime(entry *Box) string {
	switch entry.Type {
	case TypeAvc1:
		if c := entry.Visual.Children; len(c) > 0 {
			if avcC := childConfig(c, TypeAvcC); avcC != nil && avcC.Config.MimeCodec != "" {
				return avcC.Config.MimeCodec
			}
		}
		return "avc1"
	case TypeHev1, TypeHvc1:
		if hvcC := childConfig(entry.Visual.Children, TypeHvcC); hvcC != nil && hvcC.Config.MimeCodec != "" {
			return hvcC.Config.MimeCodec
		}
		return entry.Type.String()
	case TypeVp08:
		return "vp08"
	case TypeVp09:
		if vpcC := childConfig(entry.Visual.Children, TypeVpcC); vpcC != nil && vpcC.Config.MimeCodec != "" {
			return vpcC.Config.MimeCodec
		}
		return "vp09"
	case TypeAv01:
		if av1C := childConfig(entry.Visual.Children, TypeAv1C); av1C != nil && av1C.Config.MimeCodec != "" {
			return av1C.Config.MimeCodec
		}
		return "av01"
	case TypeMp4a:
		for _, c := range entry.Audio.Children {
			if c.Type == TypeEsds && c.Esds != nil && c.Esds.MimeCodec != "" {
				return "mp4a." + c.Esds.MimeCodec
			}
		}
		return "mp4a"
	case TypeOpus:
		return "opus"
	case TypeFLaC:
		return "flac"
	default:
		return entry.Type.String()
	}
}

func childConfig(children []*Box, t BoxType) *Box {
	for _, c := range children {
		if c.Type == t {
			return c
		}
	}
	return nil
}
