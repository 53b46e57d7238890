package isobmff

// Per-box-type typed payloads and their decode/encode/length triples,
// registered into the codecs table. Field layouts follow ISO/IEC 14496-12.

func init() {
	registerCodec(TypeFtyp, &codecOps{decodeFtyp, encodeFtyp, encodingLengthFtyp})
	registerCodec(TypeMvhd, &codecOps{decodeMvhd, encodeMvhd, encodingLengthMvhd})
	registerCodec(TypeTkhd, &codecOps{decodeTkhd, encodeTkhd, encodingLengthTkhd})
	registerCodec(TypeMdhd, &codecOps{decodeMdhd, encodeMdhd, encodingLengthMdhd})
	registerCodec(TypeHdlr, &codecOps{decodeHdlr, encodeHdlr, encodingLengthHdlr})
	registerCodec(TypeVmhd, &codecOps{decodeVmhd, encodeVmhd, encodingLengthVmhd})
	registerCodec(TypeSmhd, &codecOps{decodeSmhd, encodeSmhd, encodingLengthSmhd})
	registerCodec(TypeDref, &codecOps{decodeDref, encodeDref, encodingLengthDref})
	registerCodec(TypeStts, &codecOps{decodeStts, encodeStts, encodingLengthStts})
	registerCodec(TypeCtts, &codecOps{decodeCtts, encodeCtts, encodingLengthCtts})
	registerCodec(TypeStsc, &codecOps{decodeStsc, encodeStsc, encodingLengthStsc})
	registerCodec(TypeStsz, &codecOps{decodeStsz, encodeStsz, encodingLengthStsz})
	registerCodec(TypeStz2, &codecOps{decodeStz2, encodeStz2, encodingLengthStz2})
	registerCodec(TypeStco, &codecOps{decodeStco, encodeStco, encodingLengthStco})
	registerCodec(TypeCo64, &codecOps{decodeCo64, encodeCo64, encodingLengthCo64})
	registerCodec(TypeStss, &codecOps{decodeStss, encodeStss, encodingLengthStss})
	registerCodec(TypeEsds, &codecOps{decodeEsds, encodeEsds, encodingLengthEsds})
	registerCodec(TypeAvcC, &codecOps{decodeConfigBox, encodeConfigBox, encodingLengthConfigBox})
	registerCodec(TypeHvcC, &codecOps{decodeConfigBox, encodeConfigBox, encodingLengthConfigBox})
	registerCodec(TypeAv1C, &codecOps{decodeConfigBox, encodeConfigBox, encodingLengthConfigBox})
	registerCodec(TypeVpcC, &codecOps{decodeConfigBox, encodeConfigBox, encodingLengthConfigBox})
	registerCodec(TypeDOps, &codecOps{decodeConfigBox, encodeConfigBox, encodingLengthConfigBox})
	registerCodec(TypeDFLa, &codecOps{decodeConfigBox, encodeConfigBox, encodingLengthConfigBox})
	registerCodec(TypeBtrt, &codecOps{decodeConfigBox, encodeConfigBox, encodingLengthConfigBox})
	registerCodec(TypePasp, &codecOps{decodeConfigBox, encodeConfigBox, encodingLengthConfigBox})
	registerCodec(TypeMdat, &codecOps{decodeRawBox, encodeRawBox, encodingLengthRawBox})
	registerCodec(TypeFree, &codecOps{decodeRawBox, encodeRawBox, encodingLengthRawBox})
	registerCodec(TypeSkip, &codecOps{decodeRawBox, encodeRawBox, encodingLengthRawBox})
}

// --- ftyp ---

// Ftyp is the file type and compatibility box.
type Ftyp struct {
	MajorBrand       [4]byte
	MinorVersion     uint32
	CompatibleBrands [][4]byte
}

func decodeFtyp(box *Box, buf []byte, start, end int, crumb []string) error {
	r := newReader(buf[start:end], crumb)
	f := &Ftyp{}
	mb, err := r.bytes(4)
	if err != nil {
		return err
	}
	copy(f.MajorBrand[:], mb)
	if f.MinorVersion, err = r.u32(); err != nil {
		return err
	}
	for r.remaining() >= 4 {
		cb, err := r.bytes(4)
		if err != nil {
			return err
		}
		var brand [4]byte
		copy(brand[:], cb)
		f.CompatibleBrands = append(f.CompatibleBrands, brand)
	}
	box.Ftyp = f
	return nil
}

func encodeFtyp(box *Box, dst []byte) []byte {
	f := box.Ftyp
	dst = append(dst, f.MajorBrand[:]...)
	dst = be.AppendUint32(dst, f.MinorVersion)
	for _, b := range f.CompatibleBrands {
		dst = append(dst, b[:]...)
	}
	return dst
}

func encodingLengthFtyp(box *Box) int { return 8 + len(box.Ftyp.CompatibleBrands)*4 }

// --- mvhd ---

// Mvhd is the movie header box.
type Mvhd struct {
	CreationTime     uint64
	ModificationTime uint64
	TimeScale        uint32
	Duration         uint64
	Rate             fixed16
	Volume           fixed8
	Matrix           [9]int32
	NextTrackID      uint32
	V1               bool
}

var unityMatrix = [9]int32{0x10000, 0, 0, 0, 0x10000, 0, 0, 0, 0x40000000}

func decodeMvhd(box *Box, buf []byte, start, end int, crumb []string) error {
	r := newReader(buf[start:end], crumb)
	m := &Mvhd{}
	m.V1 = box.Version == 1
	var err error
	if m.V1 {
		var ct, mt, dur uint64
		if ct, err = r.u64(); err != nil {
			return err
		}
		if mt, err = r.u64(); err != nil {
			return err
		}
		ts, err := r.u32()
		if err != nil {
			return err
		}
		if dur, err = r.u64(); err != nil {
			return err
		}
		m.CreationTime, m.ModificationTime, m.TimeScale, m.Duration = ct, mt, ts, dur
	} else {
		ct, err := r.u32()
		if err != nil {
			return err
		}
		mt, err := r.u32()
		if err != nil {
			return err
		}
		ts, err := r.u32()
		if err != nil {
			return err
		}
		dur, err := r.u32()
		if err != nil {
			return err
		}
		m.CreationTime, m.ModificationTime, m.TimeScale, m.Duration = uint64(ct), uint64(mt), ts, uint64(dur)
	}
	rate, err := r.u32()
	if err != nil {
		return err
	}
	m.Rate = fixed16(rate)
	vol, err := r.u16()
	if err != nil {
		return err
	}
	m.Volume = fixed8(vol)
	if err := r.skip(2 + 8); err != nil { // reserved(2) + reserved(2*u32)
		return err
	}
	for i := range m.Matrix {
		v, err := r.u32()
		if err != nil {
			return err
		}
		m.Matrix[i] = int32(v)
	}
	if err := r.skip(6 * 4); err != nil { // pre_defined[6]
		return err
	}
	if m.NextTrackID, err = r.u32(); err != nil {
		return err
	}
	box.Mvhd = m
	return nil
}

func encodeMvhd(box *Box, dst []byte) []byte {
	m := box.Mvhd
	if m.V1 {
		dst = be.AppendUint64(dst, m.CreationTime)
		dst = be.AppendUint64(dst, m.ModificationTime)
		dst = be.AppendUint32(dst, m.TimeScale)
		dst = be.AppendUint64(dst, m.Duration)
	} else {
		dst = be.AppendUint32(dst, uint32(m.CreationTime))
		dst = be.AppendUint32(dst, uint32(m.ModificationTime))
		dst = be.AppendUint32(dst, m.TimeScale)
		dst = be.AppendUint32(dst, uint32(m.Duration))
	}
	dst = be.AppendUint32(dst, uint32(m.Rate))
	dst = be.AppendUint16(dst, uint16(m.Volume))
	dst = append(dst, make([]byte, 2+8)...)
	for _, v := range m.Matrix {
		dst = be.AppendUint32(dst, uint32(v))
	}
	dst = append(dst, make([]byte, 6*4)...)
	dst = be.AppendUint32(dst, m.NextTrackID)
	return dst
}

func encodingLengthMvhd(box *Box) int {
	if box.Mvhd.V1 {
		return 28 + 4 + 2 + 10 + 36 + 24 + 4
	}
	return 16 + 4 + 2 + 10 + 36 + 24 + 4
}

// --- tkhd ---

// Tkhd is the track header box.
type Tkhd struct {
	CreationTime     uint64
	ModificationTime uint64
	TrackID          uint32
	Duration         uint64
	Layer            int16
	AlternateGroup   int16
	Volume           fixed8
	Matrix           [9]int32
	Width            fixed16
	Height           fixed16
	V1               bool
}

func decodeTkhd(box *Box, buf []byte, start, end int, crumb []string) error {
	r := newReader(buf[start:end], crumb)
	t := &Tkhd{V1: box.Version == 1}
	var err error
	if t.V1 {
		if t.CreationTime, err = r.u64(); err != nil {
			return err
		}
		if t.ModificationTime, err = r.u64(); err != nil {
			return err
		}
		if t.TrackID, err = r.u32(); err != nil {
			return err
		}
		if err = r.skip(4); err != nil {
			return err
		}
		if t.Duration, err = r.u64(); err != nil {
			return err
		}
	} else {
		ct, err := r.u32()
		if err != nil {
			return err
		}
		mt, err := r.u32()
		if err != nil {
			return err
		}
		if t.TrackID, err = r.u32(); err != nil {
			return err
		}
		if err = r.skip(4); err != nil {
			return err
		}
		dur, err := r.u32()
		if err != nil {
			return err
		}
		t.CreationTime, t.ModificationTime, t.Duration = uint64(ct), uint64(mt), uint64(dur)
	}
	if err := r.skip(8); err != nil { // reserved[2]
		return err
	}
	layer, err := r.i16()
	if err != nil {
		return err
	}
	t.Layer = layer
	ag, err := r.i16()
	if err != nil {
		return err
	}
	t.AlternateGroup = ag
	vol, err := r.u16()
	if err != nil {
		return err
	}
	t.Volume = fixed8(vol)
	if err := r.skip(2); err != nil {
		return err
	}
	for i := range t.Matrix {
		v, err := r.u32()
		if err != nil {
			return err
		}
		t.Matrix[i] = int32(v)
	}
	w, err := r.u32()
	if err != nil {
		return err
	}
	t.Width = fixed16(w)
	h, err := r.u32()
	if err != nil {
		return err
	}
	t.Height = fixed16(h)
	box.Tkhd = t
	return nil
}

func encodeTkhd(box *Box, dst []byte) []byte {
	t := box.Tkhd
	if t.V1 {
		dst = be.AppendUint64(dst, t.CreationTime)
		dst = be.AppendUint64(dst, t.ModificationTime)
		dst = be.AppendUint32(dst, t.TrackID)
		dst = append(dst, 0, 0, 0, 0)
		dst = be.AppendUint64(dst, t.Duration)
	} else {
		dst = be.AppendUint32(dst, uint32(t.CreationTime))
		dst = be.AppendUint32(dst, uint32(t.ModificationTime))
		dst = be.AppendUint32(dst, t.TrackID)
		dst = append(dst, 0, 0, 0, 0)
		dst = be.AppendUint32(dst, uint32(t.Duration))
	}
	dst = append(dst, make([]byte, 8)...)
	dst = be.AppendUint16(dst, uint16(t.Layer))
	dst = be.AppendUint16(dst, uint16(t.AlternateGroup))
	dst = be.AppendUint16(dst, uint16(t.Volume))
	dst = append(dst, 0, 0)
	for _, v := range t.Matrix {
		dst = be.AppendUint32(dst, uint32(v))
	}
	dst = be.AppendUint32(dst, uint32(t.Width))
	dst = be.AppendUint32(dst, uint32(t.Height))
	return dst
}

func encodingLengthTkhd(box *Box) int {
	if box.Tkhd.V1 {
		return 32 + 8 + 8 + 36 + 8
	}
	return 20 + 8 + 8 + 36 + 8
}

// --- mdhd ---

// Mdhd is the media header box.
type Mdhd struct {
	CreationTime     uint64
	ModificationTime uint64
	TimeScale        uint32
	Duration         uint64
	Language         string // ISO 639-2/T, three characters
	V1               bool
}

func decodeMdhd(box *Box, buf []byte, start, end int, crumb []string) error {
	r := newReader(buf[start:end], crumb)
	m := &Mdhd{V1: box.Version == 1}
	var err error
	if m.V1 {
		if m.CreationTime, err = r.u64(); err != nil {
			return err
		}
		if m.ModificationTime, err = r.u64(); err != nil {
			return err
		}
		if m.TimeScale, err = r.u32(); err != nil {
			return err
		}
		if m.Duration, err = r.u64(); err != nil {
			return err
		}
	} else {
		ct, err := r.u32()
		if err != nil {
			return err
		}
		mt, err := r.u32()
		if err != nil {
			return err
		}
		if m.TimeScale, err = r.u32(); err != nil {
			return err
		}
		dur, err := r.u32()
		if err != nil {
			return err
		}
		m.CreationTime, m.ModificationTime, m.Duration = uint64(ct), uint64(mt), uint64(dur)
	}
	lang, err := r.u16()
	if err != nil {
		return err
	}
	m.Language = unpackLanguage(lang & 0x7fff)
	if err := r.skip(2); err != nil { // pre_defined
		return err
	}
	box.Mdhd = m
	return nil
}

func encodeMdhd(box *Box, dst []byte) []byte {
	m := box.Mdhd
	if m.V1 {
		dst = be.AppendUint64(dst, m.CreationTime)
		dst = be.AppendUint64(dst, m.ModificationTime)
		dst = be.AppendUint32(dst, m.TimeScale)
		dst = be.AppendUint64(dst, m.Duration)
	} else {
		dst = be.AppendUint32(dst, uint32(m.CreationTime))
		dst = be.AppendUint32(dst, uint32(m.ModificationTime))
		dst = be.AppendUint32(dst, m.TimeScale)
		dst = be.AppendUint32(dst, uint32(m.Duration))
	}
	dst = be.AppendUint16(dst, packLanguage(m.Language))
	dst = append(dst, 0, 0)
	return dst
}

func encodingLengthMdhd(box *Box) int {
	if box.Mdhd.V1 {
		return 28 + 4
	}
	return 16 + 4
}

// --- hdlr ---

// Hdlr is the handler reference box. Name is kept as opaque bytes on
// decode (never UTF-8-validated) but always emitted as valid
// null-terminated UTF-8 on encode.
type Hdlr struct {
	HandlerType [4]byte
	Name        []byte
}

func decodeHdlr(box *Box, buf []byte, start, end int, crumb []string) error {
	r := newReader(buf[start:end], crumb)
	h := &Hdlr{}
	if err := r.skip(4); err != nil { // pre_defined
		return err
	}
	ht, err := r.bytes(4)
	if err != nil {
		return err
	}
	copy(h.HandlerType[:], ht)
	if err := r.skip(12); err != nil { // reserved[3]
		return err
	}
	rest, err := r.bytes(r.remaining())
	if err != nil {
		return err
	}
	h.Name = append([]byte(nil), cstring(rest)...)
	box.Hdlr = h
	return nil
}

func encodeHdlr(box *Box, dst []byte) []byte {
	h := box.Hdlr
	dst = append(dst, 0, 0, 0, 0)
	dst = append(dst, h.HandlerType[:]...)
	dst = append(dst, make([]byte, 12)...)
	dst = appendCstring(dst, h.Name)
	return dst
}

func encodingLengthHdlr(box *Box) int { return 4 + 4 + 12 + len(box.Hdlr.Name) + 1 }

// --- vmhd ---

// Vmhd is the video media header box.
type Vmhd struct {
	GraphicsMode uint16
	Opcolor      [3]uint16
}

func decodeVmhd(box *Box, buf []byte, start, end int, crumb []string) error {
	r := newReader(buf[start:end], crumb)
	v := &Vmhd{}
	var err error
	if v.GraphicsMode, err = r.u16(); err != nil {
		return err
	}
	for i := range v.Opcolor {
		if v.Opcolor[i], err = r.u16(); err != nil {
			return err
		}
	}
	box.Vmhd = v
	return nil
}

func encodeVmhd(box *Box, dst []byte) []byte {
	v := box.Vmhd
	dst = be.AppendUint16(dst, v.GraphicsMode)
	for _, c := range v.Opcolor {
		dst = be.AppendUint16(dst, c)
	}
	return dst
}

func encodingLengthVmhd(*Box) int { return 8 }

// --- smhd ---

// Smhd is the sound media header box.
type Smhd struct {
	Balance fixed8
}

func decodeSmhd(box *Box, buf []byte, start, end int, crumb []string) error {
	r := newReader(buf[start:end], crumb)
	v, err := r.u16()
	if err != nil {
		return err
	}
	box.Smhd = &Smhd{Balance: fixed8(v)}
	return nil
}

func encodeSmhd(box *Box, dst []byte) []byte {
	dst = be.AppendUint16(dst, uint16(box.Smhd.Balance))
	return append(dst, 0, 0)
}

func encodingLengthSmhd(*Box) int { return 4 }

// --- dref ---

// DrefEntry is one data reference entry (e.g. a "url " box).
type DrefEntry struct {
	Type  [4]byte
	Flags uint32
	Data  []byte
}

// DrefBox is the data reference box.
type DrefBox struct {
	Entries []DrefEntry
}

func decodeDref(box *Box, buf []byte, start, end int, crumb []string) error {
	r := newReader(buf[start:end], crumb)
	num, err := r.u32()
	if err != nil {
		return err
	}
	entries := make([]DrefEntry, 0, min(int(num), 64))
	// Data reference entries are themselves small full boxes (typically
	// "url " or "urn "); decode them generically like any other box.
	pos := start + 4
	for i := uint32(0); i < num; i++ {
		child, err := Decode(buf, pos, end, crumb)
		if err != nil {
			return err
		}
		var e DrefEntry
		e.Type = child.Type
		e.Flags = child.Flags
		e.Data = child.Raw
		entries = append(entries, e)
		pos += int(child.Size)
	}
	box.Dref = &DrefBox{Entries: entries}
	return nil
}

func encodeDref(box *Box, dst []byte) []byte {
	d := box.Dref
	dst = be.AppendUint32(dst, uint32(len(d.Entries)))
	for _, e := range d.Entries {
		size := uint64(12 + len(e.Data))
		dst = encodeBoxHeader(dst, e.Type, size)
		vf := e.Flags & 0x00FFFFFF
		dst = be.AppendUint32(dst, vf)
		dst = append(dst, e.Data...)
	}
	return dst
}

func encodingLengthDref(box *Box) int {
	total := 4
	for _, e := range box.Dref.Entries {
		total += 12 + len(e.Data)
	}
	return total
}

// --- stts ---

// SttsEntry is a run of samples sharing one decode-time delta.
type SttsEntry struct {
	Count uint32
	Delta uint32
}

// Stts is the decoding time-to-sample box.
type Stts struct{ Entries []SttsEntry }

func decodeStts(box *Box, buf []byte, start, end int, crumb []string) error {
	r := newReader(buf[start:end], crumb)
	num, err := r.u32()
	if err != nil {
		return err
	}
	entries := make([]SttsEntry, num)
	for i := range entries {
		c, err := r.u32()
		if err != nil {
			return err
		}
		d, err := r.u32()
		if err != nil {
			return err
		}
		entries[i] = SttsEntry{Count: c, Delta: d}
	}
	box.Stts = &Stts{Entries: entries}
	return nil
}

func encodeStts(box *Box, dst []byte) []byte {
	s := box.Stts
	dst = be.AppendUint32(dst, uint32(len(s.Entries)))
	for _, e := range s.Entries {
		dst = be.AppendUint32(dst, e.Count)
		dst = be.AppendUint32(dst, e.Delta)
	}
	return dst
}

func encodingLengthStts(box *Box) int { return 4 + len(box.Stts.Entries)*8 }

// --- ctts ---

// CttsEntry is a run of samples sharing one composition offset.
type CttsEntry struct {
	Count  uint32
	Offset int32
}

// Ctts is the composition time-to-sample box.
type Ctts struct{ Entries []CttsEntry }

func decodeCtts(box *Box, buf []byte, start, end int, crumb []string) error {
	r := newReader(buf[start:end], crumb)
	num, err := r.u32()
	if err != nil {
		return err
	}
	entries := make([]CttsEntry, num)
	for i := range entries {
		c, err := r.u32()
		if err != nil {
			return err
		}
		o, err := r.i32()
		if err != nil {
			return err
		}
		entries[i] = CttsEntry{Count: c, Offset: o}
	}
	box.Ctts = &Ctts{Entries: entries}
	return nil
}

func encodeCtts(box *Box, dst []byte) []byte {
	s := box.Ctts
	dst = be.AppendUint32(dst, uint32(len(s.Entries)))
	for _, e := range s.Entries {
		dst = be.AppendUint32(dst, e.Count)
		dst = be.AppendUint32(dst, uint32(e.Offset))
	}
	return dst
}

func encodingLengthCtts(box *Box) int { return 4 + len(box.Ctts.Entries)*8 }

// --- stsc ---

// StscEntry is one run-length row of the sample-to-chunk table.
type StscEntry struct {
	FirstChunk      uint32
	SamplesPerChunk uint32
	SampleDescIndex uint32
}

// Stsc is the sample-to-chunk box.
type Stsc struct{ Entries []StscEntry }

func decodeStsc(box *Box, buf []byte, start, end int, crumb []string) error {
	r := newReader(buf[start:end], crumb)
	num, err := r.u32()
	if err != nil {
		return err
	}
	entries := make([]StscEntry, num)
	for i := range entries {
		fc, err := r.u32()
		if err != nil {
			return err
		}
		spc, err := r.u32()
		if err != nil {
			return err
		}
		sdi, err := r.u32()
		if err != nil {
			return err
		}
		entries[i] = StscEntry{FirstChunk: fc, SamplesPerChunk: spc, SampleDescIndex: sdi}
	}
	box.Stsc = &Stsc{Entries: entries}
	return nil
}

func encodeStsc(box *Box, dst []byte) []byte {
	s := box.Stsc
	dst = be.AppendUint32(dst, uint32(len(s.Entries)))
	for _, e := range s.Entries {
		dst = be.AppendUint32(dst, e.FirstChunk)
		dst = be.AppendUint32(dst, e.SamplesPerChunk)
		dst = be.AppendUint32(dst, e.SampleDescIndex)
	}
	return dst
}

func encodingLengthStsc(box *Box) int { return 4 + len(box.Stsc.Entries)*12 }

// --- stsz ---

// Stsz is the sample size box. SampleSize>0 means every sample shares that
// size and Entries is empty; SampleSize==0 means Entries holds one size
// per sample.
type Stsz struct {
	SampleSize uint32
	Count      uint32
	Entries    []uint32
}

func decodeStsz(box *Box, buf []byte, start, end int, crumb []string) error {
	r := newReader(buf[start:end], crumb)
	ss, err := r.u32()
	if err != nil {
		return err
	}
	count, err := r.u32()
	if err != nil {
		return err
	}
	s := &Stsz{SampleSize: ss, Count: count}
	if ss == 0 {
		s.Entries = make([]uint32, count)
		for i := range s.Entries {
			if s.Entries[i], err = r.u32(); err != nil {
				return err
			}
		}
	}
	box.Stsz = s
	return nil
}

func encodeStsz(box *Box, dst []byte) []byte {
	s := box.Stsz
	dst = be.AppendUint32(dst, s.SampleSize)
	dst = be.AppendUint32(dst, s.Count)
	if s.SampleSize == 0 {
		for _, e := range s.Entries {
			dst = be.AppendUint32(dst, e)
		}
	}
	return dst
}

func encodingLengthStsz(box *Box) int {
	if box.Stsz.SampleSize != 0 {
		return 8
	}
	return 8 + len(box.Stsz.Entries)*4
}

// --- stz2 (compact sample sizes, ISO/IEC 14496-12 §8.7.3) ---

// Stz2 is the compact sample size box: each entry is a 4-, 8- or 16-bit
// field selected by FieldSize.
type Stz2 struct {
	FieldSize uint8
	Entries   []uint32
}

func decodeStz2(box *Box, buf []byte, start, end int, crumb []string) error {
	r := newReader(buf[start:end], crumb)
	if err := r.skip(3); err != nil { // reserved
		return err
	}
	fs, err := r.u8()
	if err != nil {
		return err
	}
	count, err := r.u32()
	if err != nil {
		return err
	}
	s := &Stz2{FieldSize: fs, Entries: make([]uint32, count)}
	switch fs {
	case 4:
		for i := 0; i < int(count); i += 2 {
			b, err := r.u8()
			if err != nil {
				return err
			}
			s.Entries[i] = uint32(b >> 4)
			if i+1 < int(count) {
				s.Entries[i+1] = uint32(b & 0x0f)
			}
		}
	case 8:
		for i := range s.Entries {
			b, err := r.u8()
			if err != nil {
				return err
			}
			s.Entries[i] = uint32(b)
		}
	case 16:
		for i := range s.Entries {
			v, err := r.u16()
			if err != nil {
				return err
			}
			s.Entries[i] = uint32(v)
		}
	default:
		return errInvalidData(crumb, "stz2: unsupported field size %d", fs)
	}
	box.Stsz = &Stsz{Count: count, Entries: s.Entries}
	return nil
}

func encodeStz2(box *Box, dst []byte) []byte {
	s := box.Stsz
	dst = append(dst, 0, 0, 0, 16)
	dst = be.AppendUint32(dst, s.Count)
	for _, e := range s.Entries {
		dst = be.AppendUint16(dst, uint16(e))
	}
	return dst
}

func encodingLengthStz2(box *Box) int { return 8 + len(box.Stsz.Entries)*2 }

// --- stco / co64 ---

// Stco is the 32-bit chunk offset box.
type Stco struct{ Entries []uint32 }

func decodeStco(box *Box, buf []byte, start, end int, crumb []string) error {
	r := newReader(buf[start:end], crumb)
	num, err := r.u32()
	if err != nil {
		return err
	}
	entries := make([]uint32, num)
	for i := range entries {
		if entries[i], err = r.u32(); err != nil {
			return err
		}
	}
	box.Stco = &Stco{Entries: entries}
	return nil
}

func encodeStco(box *Box, dst []byte) []byte {
	s := box.Stco
	dst = be.AppendUint32(dst, uint32(len(s.Entries)))
	for _, e := range s.Entries {
		dst = be.AppendUint32(dst, e)
	}
	return dst
}

func encodingLengthStco(box *Box) int { return 4 + len(box.Stco.Entries)*4 }

// Co64 is the 64-bit chunk offset box.
type Co64 struct{ Entries []uint64 }

func decodeCo64(box *Box, buf []byte, start, end int, crumb []string) error {
	r := newReader(buf[start:end], crumb)
	num, err := r.u32()
	if err != nil {
		return err
	}
	entries := make([]uint64, num)
	for i := range entries {
		if entries[i], err = r.u64(); err != nil {
			return err
		}
	}
	box.Co64 = &Co64{Entries: entries}
	return nil
}

func encodeCo64(box *Box, dst []byte) []byte {
	s := box.Co64
	dst = be.AppendUint32(dst, uint32(len(s.Entries)))
	for _, e := range s.Entries {
		dst = be.AppendUint64(dst, e)
	}
	return dst
}

func encodingLengthCo64(box *Box) int { return 4 + len(box.Co64.Entries)*8 }

// --- stss ---

// Stss is the sync sample table; absence (nil *Stss on the owning Box)
// means every sample is sync.
type Stss struct{ SampleNumbers []uint32 } // 1-based, per ISO/IEC 14496-12

func decodeStss(box *Box, buf []byte, start, end int, crumb []string) error {
	r := newReader(buf[start:end], crumb)
	num, err := r.u32()
	if err != nil {
		return err
	}
	entries := make([]uint32, num)
	for i := range entries {
		if entries[i], err = r.u32(); err != nil {
			return err
		}
	}
	box.Stss = &Stss{SampleNumbers: entries}
	return nil
}

func encodeStss(box *Box, dst []byte) []byte {
	s := box.Stss
	dst = be.AppendUint32(dst, uint32(len(s.SampleNumbers)))
	for _, e := range s.SampleNumbers {
		dst = be.AppendUint32(dst, e)
	}
	return dst
}

func encodingLengthStss(box *Box) int { return 4 + len(box.Stss.SampleNumbers)*4 }

// --- raw passthrough (mdat / free / skip) ---

func decodeRawBox(box *Box, buf []byte, start, end int, _ []string) error {
	box.Raw = append([]byte(nil), buf[start:end]...)
	return nil
}

func encodeRawBox(box *Box, dst []byte) []byte { return append(dst, box.Raw...) }

func encodingLengthRawBox(box *Box) int { return len(box.Raw) }

// --- esds ---

// Esds is the elementary stream descriptor box, used by mp4a (AAC).
// MimeCodec is derived during decode, e.g. "40.2" (objectTypeIndication
// "." audioObjectType), matching the suffix RFC 6381 appends to "mp4a.".
type Esds struct {
	MimeCodec string
	Buffer    []byte
}

func decodeEsds(box *Box, buf []byte, start, end int, crumb []string) error {
	e := &Esds{Buffer: append([]byte(nil), buf[start:end]...)}
	if d, _, err := decodeDescriptor(buf, start, end); err == nil && d.tag == descTagESDescriptor {
		if dcd, ok := d.decoderConfig(); ok && dcd.oti != 0 {
			e.MimeCodec = hexByte(dcd.oti)
			if dsi, ok := dcd.decoderSpecificInfo(); ok && len(dsi.buffer) > 0 {
				aot := (dsi.buffer[0] & 0xf8) >> 3
				if aot != 0 {
					e.MimeCodec += "." + decimalByte(aot)
				}
			}
		}
	}
	box.Esds = e
	return nil
}

func encodeEsds(box *Box, dst []byte) []byte { return append(dst, box.Esds.Buffer...) }

func encodingLengthEsds(box *Box) int { return len(box.Esds.Buffer) }

func hexByte(b byte) string {
	const hex = "0123456789abcdef"
	return string([]byte{hex[b>>4], hex[b&0xf]})
}

func decimalByte(b byte) string {
	if b < 10 {
		return string([]byte{'0' + b})
	}
	return string([]byte{'0' + b/10, '0' + b%10})
}

// --- ConfigBox: avcC / hvcC / av1C / vpcC / dOps / dfLa / btrt / pasp ---

// ConfigBox is an opaque codec configuration record. The library stores
// its raw bytes verbatim (so unusual or truncated records round-trip
// exactly) and separately derives a codec MIME suffix where one is
// well-defined.
type ConfigBox struct {
	MimeCodec string
	Buffer    []byte
}

func decodeConfigBox(box *Box, buf []byte, start, end int, _ []string) error {
	c := &ConfigBox{Buffer: append([]byte(nil), buf[start:end]...)}
	switch box.Type {
	case TypeAvcC:
		// avcC: configurationVersion(1) profile(1) profile_compat(1) level(1)...
		// Per §4.2's avcC tolerance, a buffer shorter than this is not an
		// error here — MimeCodec is simply left blank.
		if len(c.Buffer) >= 4 {
			c.MimeCodec = "avc1." + hexByte(c.Buffer[1]) + hexByte(c.Buffer[2]) + hexByte(c.Buffer[3])
		}
	case TypeHvcC:
		if len(c.Buffer) >= 2 {
			c.MimeCodec = "hev1." + hexByte(c.Buffer[1])
		}
	case TypeAv1C:
		if len(c.Buffer) >= 2 {
			profile := c.Buffer[1] >> 5
			level := c.Buffer[1] & 0x1f
			lvl := decimalByte(level)
			if level < 10 {
				lvl = "0" + lvl
			}
			c.MimeCodec = "av01." + decimalByte(profile) + "." + lvl
		}
	case TypeVpcC:
		if len(c.Buffer) >= 2 {
			p := decimalByte(c.Buffer[0])
			if c.Buffer[0] < 10 {
				p = "0" + p
			}
			c.MimeCodec = "vp09." + p
		}
	}
	box.Config = c
	return nil
}

func encodeConfigBox(box *Box, dst []byte) []byte { return append(dst, box.Config.Buffer...) }

func encodingLengthConfigBox(box *Box) int { return len(box.Config.Buffer) }
