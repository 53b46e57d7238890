package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gomp4/isobmff"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

var remuxProfilePath string

var remuxCmd = &cobra.Command{
	Use:   "remux <in.mp4> <out.mp4>",
	Short: "Demux a file and re-mux it through the library's sample tables",
	Args:  cobra.ExactArgs(2),
	RunE:  runRemux,
}

func init() {
	remuxCmd.Flags().StringVar(&remuxProfilePath, "profile", "", "path to a YAML mux profile (brand/faststart overrides)")
}

// muxProfile holds the subset of Muxer setup a caller may want to pin
// instead of taking the library's defaults.
type muxProfile struct {
	MajorBrand       string   `yaml:"majorBrand"`
	MinorVersion     uint32   `yaml:"minorVersion"`
	CompatibleBrands []string `yaml:"compatibleBrands"`
	Faststart        bool     `yaml:"faststart"`
}

func loadMuxProfile(path string) (*muxProfile, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", path, err)
	}
	var p muxProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	return &p, nil
}

func runRemux(_ *cobra.Command, args []string) error {
	inPath, outPath := args[0], args[1]

	profile, err := loadMuxProfile(remuxProfilePath)
	if err != nil {
		return err
	}

	in, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", inPath, err)
	}
	defer in.Close()
	stat, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", inPath, err)
	}

	d := isobmff.NewDemuxer()
	if err := driveDemuxer(d, in, stat.Size()); err != nil {
		return err
	}
	if d.State() != isobmff.DemuxReady {
		if le := d.LastError(); le != nil {
			return fmt.Errorf("demuxing %s: %w", inPath, le)
		}
		return fmt.Errorf("demuxing %s: never reached ready state", inPath)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outPath, err)
	}
	defer out.Close()

	m := isobmff.NewMuxer()
	if profile != nil {
		if profile.MajorBrand != "" {
			var major [4]byte
			copy(major[:], profile.MajorBrand)
			compat := make([][4]byte, len(profile.CompatibleBrands))
			for i, b := range profile.CompatibleBrands {
				copy(compat[i][:], b)
			}
			m.SetFileType(major, profile.MinorVersion, compat)
		}
	}

	tracks := d.Tracks()
	trackIDs := make(map[uint32]uint32, len(tracks))
	var audioSamples, videoSamples int
	for _, t := range tracks {
		entry := t.SampleDescriptionAt(1)
		newID := m.AddTrack(isobmff.MuxTrackConfig{
			TimeScale:         t.TimeScale,
			Kind:              t.Kind,
			SampleDescription: entry,
			Width:             t.Width,
			Height:            t.Height,
		})
		trackIDs[t.ID] = newID
		switch t.Kind {
		case isobmff.KindAudio:
			audioSamples += t.Table().Count()
		case isobmff.KindVideo:
			videoSamples += t.Table().Count()
		}
	}

	faststart := profile == nil || profile.Faststart
	if faststart {
		m.SetReservedMoovSize(isobmff.EstimateMaxMoovSize(audioSamples, videoSamples))
	}

	if muxErr := m.Initialize(); muxErr != nil {
		return fmt.Errorf("initializing muxer: %w", muxErr)
	}
	nextOffset, err := drainMuxOutput(m, out)
	if err != nil {
		return err
	}

	buf := make([]byte, 0, 1<<16)
	var sampleCount int
	for {
		ds, ok := d.NextSample()
		if !ok {
			break
		}
		if cap(buf) < int(ds.Sample.Size) {
			buf = make([]byte, ds.Sample.Size)
		}
		buf = buf[:ds.Sample.Size]
		if _, err := in.ReadAt(buf, ds.Sample.Offset); err != nil {
			return fmt.Errorf("reading sample at %d: %w", ds.Sample.Offset, err)
		}
		if _, err := out.WriteAt(buf, nextOffset); err != nil {
			return fmt.Errorf("writing sample at %d: %w", nextOffset, err)
		}
		newID := trackIDs[ds.Track.ID]
		if muxErr := m.AppendSample(newID, nextOffset, ds.Sample.Size, ds.Sample.Duration, ds.Sample.CTSDelta, ds.Sample.Sync, ds.Sample.DescIndex); muxErr != nil {
			return fmt.Errorf("appending sample: %w", muxErr)
		}
		nextOffset += int64(ds.Sample.Size)
		sampleCount++
	}

	if muxErr := m.Finalize(); muxErr != nil {
		return fmt.Errorf("finalizing muxer: %w", muxErr)
	}
	if _, err := drainMuxOutput(m, out); err != nil {
		return err
	}

	slog.Info("remux complete", "in", inPath, "out", outPath, "tracks", len(tracks), "samples", sampleCount)
	return nil
}

// driveDemuxer feeds r to d until it reaches Ready or Failed, following the
// byte ranges d.RequiredInput reports.
func driveDemuxer(d *isobmff.Demuxer, r *os.File, size int64) error {
	for d.State() == isobmff.DemuxNeedInput {
		pos, want := d.RequiredInput()
		if want == 0 {
			break
		}
		n := want
		if want < 0 {
			n = size - pos
		}
		if n <= 0 {
			return fmt.Errorf("demuxer requested input past end of file at offset %d", pos)
		}
		buf := make([]byte, n)
		if _, err := r.ReadAt(buf, pos); err != nil {
			return fmt.Errorf("reading input at %d: %w", pos, err)
		}
		d.HandleInput(pos, buf)
	}
	return nil
}

// drainMuxOutput writes every pending chunk to w and returns the absolute
// offset immediately after the last chunk written, the caller's next
// expected mdat write position.
func drainMuxOutput(m *isobmff.Muxer, w *os.File) (int64, error) {
	var next int64
	for {
		chunk, ok := m.NextOutput()
		if !ok {
			break
		}
		if _, err := w.WriteAt(chunk.Data, chunk.Position); err != nil {
			return 0, fmt.Errorf("writing output at %d: %w", chunk.Position, err)
		}
		if end := chunk.Position + int64(len(chunk.Data)); end > next {
			next = end
		}
	}
	return next, nil
}
