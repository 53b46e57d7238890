package isobmff

// MuxState is the muxer's position in its sans-I/O state machine.
type MuxState int

const (
	MuxFresh MuxState = iota
	MuxInitialized
	MuxFinalized
	MuxFailed
)

const (
	chunkMaxBytes          = 1 << 20 // 1 MiB
	chunkMaxDurationTicksN = 2       // seconds, scaled by a track's timescale
)

// MuxTrackConfig describes one track to be produced. SampleDescription is
// a single, fully-formed sample entry box (avc1/hev1/mp4a/Opus/...); muxing
// more than one sample description per track is out of scope (§1 Non-goals).
type MuxTrackConfig struct {
	TimeScale         uint32
	Kind              TrackKind
	SampleDescription *Box
	Width, Height     uint16 // only meaningful for KindVideo
}

// OutputChunk is one unit of muxer output: Data belongs at absolute file
// offset Position. Most chunks are sequential appends; faststart placement
// and the mdat size fixup are patches into already-designated regions.
type OutputChunk struct {
	Position int64
	Data     []byte
}

type pendingSample struct {
	offset   int64
	size     uint32
	duration uint32
	ctsDelta int32
	sync     bool
	descIdx  uint32
	dts      int64
}

type muxChunk struct {
	offset         int64
	firstSampleIdx int
	sampleCount    int
	bytes          int64
	startDTS       int64
}

type muxTrack struct {
	id      uint32
	cfg     MuxTrackConfig
	samples []pendingSample
	chunks  []muxChunk
	nextDTS int64
}

func (t *muxTrack) durationTicks() int64 { return t.nextDTS }

// Muxer is the push-based sans-I/O writer. The caller drives it by calling
// Initialize, then AppendSample per encoded sample (writing that sample's
// bytes itself, at the offset the muxer expects), then Finalize; NextOutput
// drains the header/index bytes the muxer produces along the way.
type Muxer struct {
	state MuxState
	err   *Error

	majorBrand       [4]byte
	minorVersion     uint32
	compatibleBrands [][4]byte

	reservedMoovSize   uint32
	creationTimeMicros uint64

	tracks      []*muxTrack
	nextTrackID uint32

	pending []OutputChunk

	mdatHeaderPos    int64
	mdatPayloadStart int64
	mdatBytes        int64
	nextWriteOffset  int64

	freeBoxPos int64
	freeBoxLen int64
}

// NewMuxer returns a fresh muxer in the Fresh state, defaulting to the
// "isom" major brand with isom/iso2/mp41 compatible brands.
func NewMuxer() *Muxer {
	m := &Muxer{
		majorBrand:   [4]byte{'i', 's', 'o', 'm'},
		minorVersion: 0x200,
		compatibleBrands: [][4]byte{
			{'i', 's', 'o', 'm'}, {'i', 's', 'o', '2'}, {'m', 'p', '4', '1'},
		},
		nextTrackID: 1,
	}
	return m
}

func (m *Muxer) State() MuxState  { return m.state }
func (m *Muxer) LastError() *Error { return m.err }

// SetFileType overrides the default ftyp brand/compatible-brands list.
// Must be called before Initialize.
func (m *Muxer) SetFileType(major [4]byte, minor uint32, compatible [][4]byte) {
	m.majorBrand, m.minorVersion, m.compatibleBrands = major, minor, compatible
}

// SetReservedMoovSize reserves room (via a placeholder free box) for the
// moov to be written in faststart position at Finalize. Zero disables
// faststart: the moov is appended after mdat.
func (m *Muxer) SetReservedMoovSize(n uint32) { m.reservedMoovSize = n }

// SetCreationTimestampMicros fixes mvhd/tkhd/mdhd creation and modification
// times. The muxer never reads the wall clock itself (§9 Design Notes).
func (m *Muxer) SetCreationTimestampMicros(us uint64) { m.creationTimeMicros = us }

// AddTrack registers a track and returns its track_id.
func (m *Muxer) AddTrack(cfg MuxTrackConfig) uint32 {
	id := m.nextTrackID
	m.nextTrackID++
	m.tracks = append(m.tracks, &muxTrack{id: id, cfg: cfg})
	return id
}

func (m *Muxer) fail(err *Error) *Error {
	m.state = MuxFailed
	m.err = err
	return err
}

func (m *Muxer) track(id uint32) *muxTrack {
	for _, t := range m.tracks {
		if t.id == id {
			return t
		}
	}
	return nil
}

// Initialize emits ftyp, an optional reserved free box, and the mdat
// header (written up front in 16-byte largesize form so its length never
// shifts once the real size is known).
func (m *Muxer) Initialize() *Error {
	if m.state != MuxFresh {
		return m.fail(errInvalidState(nil, "initialize: called in state %d, want Fresh", m.state))
	}
	var pos int64

	ftyp := &Box{Type: TypeFtyp, Ftyp: &Ftyp{MajorBrand: m.majorBrand, MinorVersion: m.minorVersion, CompatibleBrands: m.compatibleBrands}}
	ftypBytes, err := Encode(ftyp, nil)
	if err != nil {
		return m.fail(err.(*Error))
	}
	m.pending = append(m.pending, OutputChunk{Position: pos, Data: ftypBytes})
	pos += int64(len(ftypBytes))

	if m.reservedMoovSize > 0 {
		free := &Box{Type: TypeFree, Raw: make([]byte, int(m.reservedMoovSize)-8)}
		freeBytes, err := Encode(free, nil)
		if err != nil {
			return m.fail(err.(*Error))
		}
		m.freeBoxPos = pos
		m.freeBoxLen = int64(len(freeBytes))
		m.pending = append(m.pending, OutputChunk{Position: pos, Data: freeBytes})
		pos += int64(len(freeBytes))
	}

	m.mdatHeaderPos = pos
	mdatHeader := make([]byte, 0, 16)
	mdatHeader = be.AppendUint32(mdatHeader, 1)
	mdatHeader = append(mdatHeader, 'm', 'd', 'a', 't')
	mdatHeader = be.AppendUint64(mdatHeader, 0) // patched at Finalize
	m.pending = append(m.pending, OutputChunk{Position: pos, Data: mdatHeader})
	pos += 16

	m.mdatPayloadStart = pos
	m.nextWriteOffset = pos
	m.state = MuxInitialized
	return nil
}

// AppendSample records one encoded sample. offset must equal the position
// the muxer expects the caller to have written this sample's bytes at
// (monotonically increasing from the start of mdat's payload); a mismatch
// is a caller-contract violation (§6 PositionMismatch), not a data error.
func (m *Muxer) AppendSample(trackID uint32, offset int64, size uint32, duration uint32, ctsDelta int32, sync bool, descIndex uint32) *Error {
	if m.state != MuxInitialized {
		return m.fail(errInvalidState(nil, "append_sample: called in state %d, want Initialized", m.state))
	}
	if len(m.pending) > 0 {
		return errUnsupported(nil, "append_sample: drain pending output before appending more samples")
	}
	t := m.track(trackID)
	if t == nil {
		return m.fail(errInvalidData(nil, "append_sample: unknown track_id %d", trackID))
	}
	if offset != m.nextWriteOffset {
		return m.fail(errPositionMismatch(nil, "append_sample: offset %d does not match expected mdat write position %d", offset, m.nextWriteOffset))
	}

	dts := t.nextDTS
	t.nextDTS += int64(duration)
	m.nextWriteOffset += int64(size)
	m.mdatBytes += int64(size)

	durationSpan := int64(chunkMaxDurationTicksN) * int64(t.cfg.TimeScale)
	needNewChunk := len(t.chunks) == 0
	if !needNewChunk {
		cur := &t.chunks[len(t.chunks)-1]
		if cur.bytes+int64(size) > chunkMaxBytes || dts-cur.startDTS >= durationSpan {
			needNewChunk = true
		}
	}
	if needNewChunk {
		t.chunks = append(t.chunks, muxChunk{offset: offset, firstSampleIdx: len(t.samples), startDTS: dts})
	}
	cur := &t.chunks[len(t.chunks)-1]
	cur.sampleCount++
	cur.bytes += int64(size)

	t.samples = append(t.samples, pendingSample{
		offset: offset, size: size, duration: duration,
		ctsDelta: ctsDelta, sync: sync, descIdx: descIndex, dts: dts,
	})
	return nil
}

// Finalize computes per-track durations, builds moov, and places it either
// in the reserved faststart slot (if it fits) or appended after mdat, then
// patches the mdat box's size field now that it is finally known.
func (m *Muxer) Finalize() *Error {
	if m.state != MuxInitialized {
		return m.fail(errInvalidState(nil, "finalize: called in state %d, want Initialized", m.state))
	}
	if len(m.pending) > 0 {
		return errUnsupported(nil, "finalize: drain pending output before finalizing")
	}

	moov := m.buildMoov()
	moovBytes, err := Encode(moov, nil)
	if err != nil {
		return m.fail(err.(*Error))
	}

	leftover := int64(-1)
	if m.reservedMoovSize > 0 && int64(len(moovBytes)) <= m.freeBoxLen {
		leftover = m.freeBoxLen - int64(len(moovBytes))
	}
	switch {
	case leftover == 0:
		m.pending = append(m.pending, OutputChunk{Position: m.freeBoxPos, Data: moovBytes})
	case leftover >= 8:
		free := &Box{Type: TypeFree, Raw: make([]byte, int(leftover)-8)}
		freeBytes, ferr := Encode(free, nil)
		if ferr != nil {
			return m.fail(ferr.(*Error))
		}
		patch := append(append([]byte(nil), moovBytes...), freeBytes...)
		m.pending = append(m.pending, OutputChunk{Position: m.freeBoxPos, Data: patch})
	default:
		// No reserved space, or the leftover is too small to hold a valid
		// free box: fall back to appending moov after mdat.
		m.pending = append(m.pending, OutputChunk{Position: m.nextWriteOffset, Data: moovBytes})
		m.nextWriteOffset += int64(len(moovBytes))
	}

	mdatSize := uint64(16) + uint64(m.mdatBytes)
	mdatHeader := make([]byte, 0, 16)
	mdatHeader = be.AppendUint32(mdatHeader, 1)
	mdatHeader = append(mdatHeader, 'm', 'd', 'a', 't')
	mdatHeader = be.AppendUint64(mdatHeader, mdatSize)
	m.pending = append(m.pending, OutputChunk{Position: m.mdatHeaderPos, Data: mdatHeader})

	m.state = MuxFinalized
	return nil
}

// NextOutput pops the next pending output chunk. ok is false once every
// chunk produced so far has been drained; further progress requires
// calling Initialize/AppendSample/Finalize again (or, after Finalize, the
// muxer is done).
func (m *Muxer) NextOutput() (OutputChunk, bool) {
	if len(m.pending) == 0 {
		return OutputChunk{}, false
	}
	c := m.pending[0]
	m.pending = m.pending[1:]
	return c, true
}

func (m *Muxer) buildMoov() *Box {
	moov := &Box{Type: TypeMoov}

	ts := uint32(1000)
	if len(m.tracks) > 0 && m.tracks[0].cfg.TimeScale > 0 {
		ts = m.tracks[0].cfg.TimeScale
	}
	var maxDuration uint64
	for _, t := range m.tracks {
		d := uint64(t.durationTicks())
		if t.cfg.TimeScale != 0 && t.cfg.TimeScale != ts {
			d = d * uint64(ts) / uint64(t.cfg.TimeScale)
		}
		if d > maxDuration {
			maxDuration = d
		}
	}

	creationSeconds := m.creationTimeMicros / 1_000_000
	mvhd := &Box{Type: TypeMvhd, Mvhd: &Mvhd{
		CreationTime: creationSeconds, ModificationTime: creationSeconds,
		TimeScale: ts, Duration: maxDuration,
		Rate: newFixed16(1), Volume: newFixed8(1),
		Matrix: unityMatrix, NextTrackID: m.nextTrackID,
	}}
	moov.Children = append(moov.Children, mvhd)

	for _, t := range m.tracks {
		moov.Children = append(moov.Children, m.buildTrak(t, creationSeconds))
	}
	return moov
}

func (m *Muxer) buildTrak(t *muxTrack, creationSeconds uint64) *Box {
	trak := &Box{Type: TypeTrak}

	var width, height fixed16
	if t.cfg.Kind == KindVideo {
		width, height = newFixed16(float64(t.cfg.Width)), newFixed16(float64(t.cfg.Height))
	}
	tkhd := &Box{Type: TypeTkhd, Flags: 0x000003, Tkhd: &Tkhd{ // track_enabled | track_in_movie
		CreationTime: creationSeconds, ModificationTime: creationSeconds,
		TrackID: t.id, Duration: uint64(t.durationTicks()),
		Matrix: unityMatrix, Width: width, Height: height,
	}}
	trak.Children = append(trak.Children, tkhd)

	mdia := &Box{Type: TypeMdia}
	mdhd := &Box{Type: TypeMdhd, Mdhd: &Mdhd{
		CreationTime: creationSeconds, ModificationTime: creationSeconds,
		TimeScale: t.cfg.TimeScale, Duration: uint64(t.durationTicks()), Language: "und",
	}}
	mdia.Children = append(mdia.Children, mdhd)

	handlerType, handlerName := [4]byte{'m', 'e', 't', 'a'}, "DataHandler"
	switch t.cfg.Kind {
	case KindVideo:
		handlerType, handlerName = [4]byte{'v', 'i', 'd', 'e'}, "VideoHandler"
	case KindAudio:
		handlerType, handlerName = [4]byte{'s', 'o', 'u', 'n'}, "SoundHandler"
	}
	hdlr := &Box{Type: TypeHdlr, Hdlr: &Hdlr{HandlerType: handlerType, Name: []byte(handlerName)}}
	mdia.Children = append(mdia.Children, hdlr)

	minf := &Box{Type: TypeMinf}
	switch t.cfg.Kind {
	case KindVideo:
		minf.Children = append(minf.Children, &Box{Type: TypeVmhd, Flags: 1, Vmhd: &Vmhd{}})
	case KindAudio:
		minf.Children = append(minf.Children, &Box{Type: TypeSmhd, Smhd: &Smhd{}})
	}
	minf.Children = append(minf.Children, buildDinf())
	minf.Children = append(minf.Children, t.buildStbl())
	mdia.Children = append(mdia.Children, minf)

	trak.Children = append(trak.Children, mdia)
	return trak
}

func buildDinf() *Box {
	dref := &Box{Type: TypeDref, Dref: &DrefBox{Entries: []DrefEntry{
		{Type: [4]byte{'u', 'r', 'l', ' '}, Flags: 1}, // self-contained
	}}}
	return &Box{Type: TypeDinf, Children: []*Box{dref}}
}

func (t *muxTrack) buildStbl() *Box {
	stbl := &Box{Type: TypeStbl}

	stsd := &Box{Type: TypeStsd, Stsd: &Stsd{Entries: []*Box{t.cfg.SampleDescription}}}
	stbl.Children = append(stbl.Children, stsd)

	stbl.Children = append(stbl.Children, &Box{Type: TypeStts, Stts: &Stts{Entries: runLengthDurations(t.samples)}})

	if ctts := runLengthCTS(t.samples); ctts != nil {
		stbl.Children = append(stbl.Children, &Box{Type: TypeCtts, Ctts: &Ctts{Entries: ctts}})
	}

	stbl.Children = append(stbl.Children, &Box{Type: TypeStsc, Stsc: &Stsc{Entries: t.runLengthStsc()}})
	stbl.Children = append(stbl.Children, &Box{Type: TypeStsz, Stsz: sampleSizes(t.samples)})

	maxOffset := int64(0)
	for _, c := range t.chunks {
		if c.offset > maxOffset {
			maxOffset = c.offset
		}
	}
	if maxOffset > 0xFFFFFFFF {
		entries := make([]uint64, len(t.chunks))
		for i, c := range t.chunks {
			entries[i] = uint64(c.offset)
		}
		stbl.Children = append(stbl.Children, &Box{Type: TypeCo64, Co64: &Co64{Entries: entries}})
	} else {
		entries := make([]uint32, len(t.chunks))
		for i, c := range t.chunks {
			entries[i] = uint32(c.offset)
		}
		stbl.Children = append(stbl.Children, &Box{Type: TypeStco, Stco: &Stco{Entries: entries}})
	}

	if stss := syncSampleNumbers(t.samples); stss != nil {
		stbl.Children = append(stbl.Children, &Box{Type: TypeStss, Stss: &Stss{SampleNumbers: stss}})
	}

	return stbl
}

func runLengthDurations(samples []pendingSample) []SttsEntry {
	var out []SttsEntry
	for _, s := range samples {
		if n := len(out); n > 0 && out[n-1].Delta == s.duration {
			out[n-1].Count++
			continue
		}
		out = append(out, SttsEntry{Count: 1, Delta: s.duration})
	}
	return out
}

func runLengthCTS(samples []pendingSample) []CttsEntry {
	anyNonZero := false
	for _, s := range samples {
		if s.ctsDelta != 0 {
			anyNonZero = true
			break
		}
	}
	if !anyNonZero {
		return nil
	}
	var out []CttsEntry
	for _, s := range samples {
		if n := len(out); n > 0 && out[n-1].Offset == s.ctsDelta {
			out[n-1].Count++
			continue
		}
		out = append(out, CttsEntry{Count: 1, Offset: s.ctsDelta})
	}
	return out
}

func (t *muxTrack) runLengthStsc() []StscEntry {
	var out []StscEntry
	for i, c := range t.chunks {
		descIdx := uint32(1)
		if c.sampleCount > 0 {
			descIdx = t.samples[c.firstSampleIdx].descIdx
		}
		if n := len(out); n > 0 && out[n-1].SamplesPerChunk == uint32(c.sampleCount) && out[n-1].SampleDescIndex == descIdx {
			continue
		}
		out = append(out, StscEntry{FirstChunk: uint32(i + 1), SamplesPerChunk: uint32(c.sampleCount), SampleDescIndex: descIdx})
	}
	return out
}

func sampleSizes(samples []pendingSample) *Stsz {
	if len(samples) == 0 {
		return &Stsz{}
	}
	uniform := samples[0].size
	allEqual := true
	for _, s := range samples {
		if s.size != uniform {
			allEqual = false
			break
		}
	}
	if allEqual {
		return &Stsz{SampleSize: uniform, Count: uint32(len(samples))}
	}
	entries := make([]uint32, len(samples))
	for i, s := range samples {
		entries[i] = s.size
	}
	return &Stsz{Count: uint32(len(samples)), Entries: entries}
}

func syncSampleNumbers(samples []pendingSample) []uint32 {
	allSync := true
	for _, s := range samples {
		if !s.sync {
			allSync = false
			break
		}
	}
	if allSync {
		return nil
	}
	var out []uint32
	for i, s := range samples {
		if s.sync {
			out = append(out, uint32(i+1))
		}
	}
	return out
}
