package isobmff

// DemuxState is the demuxer's position in its sans-I/O state machine.
type DemuxState int

const (
	DemuxNeedInput DemuxState = iota
	DemuxReady
	DemuxExhausted
	DemuxFailed
)

// TrackKind classifies a track by which media header its minf carries.
type TrackKind int

const (
	KindOther TrackKind = iota
	KindVideo
	KindAudio
)

// TrackInfo describes one track as exposed by the demuxer. It is a
// reference into the demuxer's owned tree, valid for the demuxer's
// lifetime (§3 Ownership).
type TrackInfo struct {
	ID                  uint32
	Kind                TrackKind
	TimeScale           uint32
	Duration            uint64
	Width, Height       uint16
	SampleDescriptions  []*Box // stsd entries, in file order
	table               *SampleTable
	nextSampleIdx       int
}

// SampleDescriptionAt returns the 1-based sample description in use,
// matching Sample.DescIndex.
func (t *TrackInfo) SampleDescriptionAt(idx uint32) *Box {
	if idx == 0 || int(idx) > len(t.SampleDescriptions) {
		return nil
	}
	return t.SampleDescriptions[idx-1]
}

// Table returns the track's sample-table accessor.
func (t *TrackInfo) Table() *SampleTable { return t.table }

type demuxPhase int

const (
	phaseProbeHeader demuxPhase = iota
	phaseProbeLargeSize
	phaseCollectPayload
)

// DemuxedSample is one sample returned by next_sample, carrying back-
// references to the track and the sample description in effect.
type DemuxedSample struct {
	Track             *TrackInfo
	SampleDescription *Box
	Sample            Sample
}

// Demuxer is the pull-based sans-I/O reader. The caller drives it via
// RequiredInput/HandleInput until it reaches Ready, then pulls samples
// with NextSample.
type Demuxer struct {
	state DemuxState
	err   *Error

	pos        int64
	phase      demuxPhase
	size32     uint32
	boxType    BoxType
	boxSize    uint64 // 0 until known; resolved once header (and largesize) are read
	headerLen  int
	unknownEnd bool // true if boxSize was signalled as 0 ("extends to end")

	sawFtyp bool
	moov    *Box
	tracks  []*TrackInfo
}

// NewDemuxer returns a fresh demuxer in the NeedInput state.
func NewDemuxer() *Demuxer {
	return &Demuxer{state: DemuxNeedInput, phase: phaseProbeHeader}
}

// State returns the demuxer's current state.
func (d *Demuxer) State() DemuxState { return d.state }

// LastError returns the latched error, if any.
func (d *Demuxer) LastError() *Error { return d.err }

// RequiredInput reports the next byte range the demuxer needs, per §4.4's
// schedule. size==0 means no further input is required; size==-1 means
// "read from position through end of file".
func (d *Demuxer) RequiredInput() (position int64, size int64) {
	if d.state == DemuxFailed {
		return 0, 0
	}
	if d.moov != nil {
		return 0, 0
	}
	switch d.phase {
	case phaseProbeHeader:
		return d.pos, 8
	case phaseProbeLargeSize:
		return d.pos + 8, 8
	case phaseCollectPayload:
		if d.unknownEnd {
			return d.pos + int64(d.headerLen), -1
		}
		return d.pos + int64(d.headerLen), int64(d.boxSize) - int64(d.headerLen)
	}
	return 0, 0
}

// HandleInput delivers bytes at position, which must equal the position
// most recently returned by RequiredInput. Delivering fewer bytes than
// requested latches Failed, per §4.4's defensive-loop-termination contract.
func (d *Demuxer) HandleInput(position int64, data []byte) {
	if d.state == DemuxFailed {
		return
	}
	wantPos, wantSize := d.RequiredInput()
	if wantSize == 0 {
		return
	}
	if position != wantPos {
		d.fail(errInvalidState(nil, "handle_input: position %d does not match requested %d", position, wantPos))
		return
	}
	if wantSize >= 0 && int64(len(data)) < wantSize {
		d.fail(errInvalidState(nil, "handle_input: delivered %d bytes, requested %d", len(data), wantSize))
		return
	}

	switch d.phase {
	case phaseProbeHeader:
		d.handleHeaderBytes(data[:8])
	case phaseProbeLargeSize:
		large := be.Uint64(data[:8])
		d.boxSize = large
		d.headerLen = 16
		d.afterHeaderKnown()
	case phaseCollectPayload:
		d.handlePayload(data)
	}
}

func (d *Demuxer) handleHeaderBytes(hdr []byte) {
	d.size32 = be.Uint32(hdr[0:4])
	copy(d.boxType[:], hdr[4:8])
	if d.size32 == 1 {
		d.phase = phaseProbeLargeSize
		return
	}
	d.boxSize = uint64(d.size32)
	d.headerLen = 8
	d.afterHeaderKnown()
}

// afterHeaderKnown decides, once a top-level box's type and declared size
// are known, whether to skip its payload (mdat) or collect it.
func (d *Demuxer) afterHeaderKnown() {
	d.unknownEnd = d.boxSize == 0
	if d.boxType == TypeMdat {
		if d.unknownEnd {
			// Only the final box in a file may omit its size; the caller
			// delivers everything through EOF and we infer the length.
			d.phase = phaseCollectPayload
			return
		}
		d.advancePastBox(d.boxSize)
		return
	}
	d.phase = phaseCollectPayload
	if !d.unknownEnd && d.boxSize == uint64(d.headerLen) {
		// An empty payload would be requested with size 0, which callers
		// read as "no further input"; handle it now instead.
		d.handlePayload(nil)
	}
}

func (d *Demuxer) handlePayload(payload []byte) {
	size := d.boxSize
	if d.unknownEnd {
		size = uint64(d.headerLen) + uint64(len(payload))
	}
	if d.boxType == TypeMdat {
		d.advancePastBox(size)
		return
	}

	full := make([]byte, 0, size)
	full = append(full, d.pendingHeaderBytes()...)
	full = append(full, payload...)

	if d.boxType == TypeFtyp {
		d.sawFtyp = true
	} else if d.boxType == TypeMoov {
		box, err := Decode(full, 0, len(full), nil)
		if err != nil {
			d.fail(err.(*Error))
			return
		}
		if err := d.adoptMoov(box); err != nil {
			d.fail(err.(*Error))
			return
		}
	}
	d.advancePastBox(size)
}

// pendingHeaderBytes reconstructs the header bytes already consumed, so that
// a collected box's full encoding (header+payload) can be re-decoded; only
// moov is actually decoded from it.
func (d *Demuxer) pendingHeaderBytes() []byte {
	hdr := make([]byte, 0, 16)
	hdr = be.AppendUint32(hdr, d.size32)
	hdr = append(hdr, d.boxType[:]...)
	if d.headerLen == 16 {
		hdr = be.AppendUint64(hdr, d.boxSize)
	}
	return hdr
}

func (d *Demuxer) advancePastBox(size uint64) {
	d.pos += int64(size)
	d.phase = phaseProbeHeader
	d.headerLen = 0
	d.boxSize = 0
	d.unknownEnd = false
}

func (d *Demuxer) fail(err *Error) {
	d.state = DemuxFailed
	d.err = err
}

// adoptMoov validates structural invariants and builds the per-track
// sample tables, then transitions the demuxer to Ready.
func (d *Demuxer) adoptMoov(moov *Box) error {
	if !d.sawFtyp {
		return errInvalidData(nil, "moov decoded before any ftyp box was seen")
	}
	mvhd := moov.Child(TypeMvhd)
	if mvhd == nil {
		return errInvalidData(withBox(nil, TypeMoov), "missing required mvhd")
	}
	traks := moov.ChildList(TypeTrak)
	if len(traks) == 0 {
		return errInvalidData(withBox(nil, TypeMoov), "no trak boxes")
	}

	var tracks []*TrackInfo
	for _, trak := range traks {
		ti, err := buildTrackInfo(trak)
		if err != nil {
			return err
		}
		tracks = append(tracks, ti)
	}

	d.moov = moov
	d.tracks = tracks
	d.state = DemuxReady
	return nil
}

func buildTrackInfo(trak *Box) (*TrackInfo, error) {
	crumb := withBox(nil, TypeTrak)
	tkhd := trak.Child(TypeTkhd)
	if tkhd == nil {
		return nil, errInvalidData(crumb, "trak missing tkhd")
	}
	if tkhd.Tkhd.TrackID == 0 {
		return nil, errInvalidData(crumb, "track_id must be nonzero")
	}
	mdia := trak.Child(TypeMdia)
	if mdia == nil {
		return nil, errInvalidData(crumb, "trak missing mdia")
	}
	mdhd := mdia.Child(TypeMdhd)
	if mdhd == nil {
		return nil, errInvalidData(crumb, "mdia missing mdhd")
	}
	if mdhd.Mdhd.TimeScale < 1 {
		return nil, errInvalidData(crumb, "timescale must be >= 1")
	}
	minf := mdia.Child(TypeMinf)
	if minf == nil {
		return nil, errInvalidData(crumb, "mdia missing minf")
	}
	stbl := minf.Child(TypeStbl)
	if stbl == nil {
		return nil, errInvalidData(crumb, "minf missing stbl")
	}

	kind := KindOther
	hasVmhd := minf.Child(TypeVmhd) != nil
	hasSmhd := minf.Child(TypeSmhd) != nil
	switch {
	case hasVmhd:
		kind = KindVideo
	case hasSmhd:
		kind = KindAudio
	}

	table, err := buildSampleTable(stbl, crumb)
	if err != nil {
		return nil, err
	}

	var descs []*Box
	if stsd := stbl.Child(TypeStsd); stsd != nil {
		descs = stsd.Stsd.Entries
	}

	return &TrackInfo{
		ID:                 tkhd.Tkhd.TrackID,
		Kind:               kind,
		TimeScale:          mdhd.Mdhd.TimeScale,
		Duration:           mdhd.Mdhd.Duration,
		Width:              uint16(tkhd.Tkhd.Width.Float()),
		Height:             uint16(tkhd.Tkhd.Height.Float()),
		SampleDescriptions: descs,
		table:              table,
	}, nil
}

// Tracks returns the demuxed tracks; valid only once State() == DemuxReady.
func (d *Demuxer) Tracks() []*TrackInfo { return d.tracks }

// NextSample returns the next sample in ascending global decode-timestamp
// order, ties broken by ascending track ID then ascending sample index
// (§4.4, §5 Ordering). ok is false once every track is exhausted.
func (d *Demuxer) NextSample() (DemuxedSample, bool) {
	if d.state != DemuxReady {
		return DemuxedSample{}, false
	}
	best := -1
	var bestSample Sample
	for i, t := range d.tracks {
		if t.nextSampleIdx >= t.table.Count() {
			continue
		}
		s, err := t.table.Get(t.nextSampleIdx)
		if err != nil {
			continue
		}
		if best < 0 {
			best, bestSample = i, s
			continue
		}
		cur := d.tracks[best]
		if s.Timestamp < bestSample.Timestamp ||
			(s.Timestamp == bestSample.Timestamp && t.ID < cur.ID) {
			best, bestSample = i, s
		}
	}
	if best < 0 {
		d.state = DemuxExhausted
		return DemuxedSample{}, false
	}
	t := d.tracks[best]
	t.nextSampleIdx++
	return DemuxedSample{
		Track:             t,
		SampleDescription: t.SampleDescriptionAt(bestSample.DescIndex),
		Sample:            bestSample,
	}, true
}
