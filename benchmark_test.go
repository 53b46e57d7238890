package isobmff

import "testing"

// buildBenchFile constructs a small, structurally valid ftyp/moov/mdat file
// with one video track and n samples, for use as benchmark input. Its single
// chunk offset (48) is a fixed placeholder and does not point at the mdat
// payload.
func buildBenchFile(n int) []byte {
	avcC := &Box{Type: TypeAvcC, Config: &ConfigBox{Buffer: make([]byte, 32)}}
	avc1 := &Box{Type: TypeAvc1, Visual: &VisualSampleEntry{
		DataReferenceIndex: 1, Width: 1920, Height: 1080,
		HorizResolution: newFixed16(72), VertResolution: newFixed16(72),
		FrameCount: 1, Depth: 24, Children: []*Box{avcC},
	}}

	sizes := make([]uint32, n)
	for i := range sizes {
		sizes[i] = 1500
	}
	durations := []SttsEntry{{Count: uint32(n), Delta: 1001}}

	stbl := &Box{Type: TypeStbl, Children: []*Box{
		{Type: TypeStsd, Stsd: &Stsd{Entries: []*Box{avc1}}},
		{Type: TypeStts, Stts: &Stts{Entries: durations}},
		{Type: TypeStsc, Stsc: &Stsc{Entries: []StscEntry{{FirstChunk: 1, SamplesPerChunk: uint32(n), SampleDescIndex: 1}}}},
		{Type: TypeStsz, Stsz: &Stsz{Count: uint32(n), Entries: sizes}},
		{Type: TypeStco, Stco: &Stco{Entries: []uint32{48}}},
	}}

	dref := &Box{Type: TypeDref, Dref: &DrefBox{Entries: []DrefEntry{{Type: [4]byte{'u', 'r', 'l', ' '}, Flags: 1}}}}
	minf := &Box{Type: TypeMinf, Children: []*Box{
		{Type: TypeVmhd, Flags: 1, Vmhd: &Vmhd{}},
		{Type: TypeDinf, Children: []*Box{dref}},
		stbl,
	}}
	mdia := &Box{Type: TypeMdia, Children: []*Box{
		{Type: TypeMdhd, Mdhd: &Mdhd{TimeScale: 30000, Duration: uint64(n) * 1001, Language: "und"}},
		{Type: TypeHdlr, Hdlr: &Hdlr{HandlerType: [4]byte{'v', 'i', 'd', 'e'}, Name: []byte("VideoHandler")}},
		minf,
	}}
	trak := &Box{Type: TypeTrak, Children: []*Box{
		{Type: TypeTkhd, Flags: 3, Tkhd: &Tkhd{TrackID: 1, Duration: uint64(n) * 1001, Width: newFixed16(1920), Height: newFixed16(1080)}},
		mdia,
	}}
	moov := &Box{Type: TypeMoov, Children: []*Box{
		{Type: TypeMvhd, Mvhd: &Mvhd{TimeScale: 30000, Duration: uint64(n) * 1001, NextTrackID: 2}},
		trak,
	}}
	ftyp := &Box{Type: TypeFtyp, Ftyp: &Ftyp{MajorBrand: [4]byte{'i', 's', 'o', 'm'}, CompatibleBrands: [][4]byte{{'i', 's', 'o', 'm'}}}}

	mdat := &Box{Type: TypeMdat, Raw: make([]byte, int(sizes[0])*n)}

	var buf []byte
	var err error
	for _, b := range []*Box{ftyp, moov, mdat} {
		buf, err = Encode(b, buf)
		if err != nil {
			panic(err)
		}
	}
	return buf
}

func BenchmarkDecode(b *testing.B) {
	data := buildBenchFile(500)
	b.SetBytes(int64(len(data)))

	for b.Loop() {
		pos := 0
		for pos < len(data) {
			box, err := Decode(data, pos, len(data), nil)
			if err != nil {
				b.Fatal(err)
			}
			pos += int(box.Size)
		}
	}
}

func BenchmarkEncode(b *testing.B) {
	data := buildBenchFile(500)
	box, err := Decode(data, 0, len(data), nil)
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(data)))

	for b.Loop() {
		if _, err := Encode(box, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDemuxFullFile(b *testing.B) {
	data := buildBenchFile(500)
	b.SetBytes(int64(len(data)))

	for b.Loop() {
		d := NewDemuxer()
		for d.State() == DemuxNeedInput {
			pos, size := d.RequiredInput()
			if size == 0 {
				break
			}
			n := size
			if size < 0 {
				n = int64(len(data)) - pos
			}
			d.HandleInput(pos, data[pos:pos+n])
		}
		if d.State() != DemuxReady {
			b.Fatalf("demuxer did not reach ready: %v", d.LastError())
		}
		count := 0
		for {
			if _, ok := d.NextSample(); !ok {
				break
			}
			count++
		}
	}
}
