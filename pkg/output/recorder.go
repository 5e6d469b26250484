package output

import (
	"fmt"
	"io"

	"gitlab.com/gomidi/midi/v2"
	gsmf "gitlab.com/gomidi/midi/v2/smf"

	"github.com/james-see/smfplay/pkg/smf"
)

type recorded struct {
	tick uint64
	msg  []byte
}

// Recorder collects decoded events into one track per source track and
// writes them back out as a format 1 file. The caller moves the recording
// position with Advance as it feeds ticks to the decoder.
type Recorder struct {
	tpq    uint16
	now    uint64
	tracks [][]recorded
}

// NewRecorder returns a Recorder writing with the given resolution.
func NewRecorder(ticksPerQuarterNote int) *Recorder {
	return &Recorder{tpq: uint16(ticksPerQuarterNote)}
}

// Advance moves the recording position forward.
func (r *Recorder) Advance(ticks uint64) {
	r.now += ticks
}

// Tick returns the current recording position.
func (r *Recorder) Tick() uint64 { return r.now }

func (r *Recorder) add(track int, msg []byte) {
	if track < 0 {
		return
	}
	for len(r.tracks) <= track {
		r.tracks = append(r.tracks, nil)
	}
	r.tracks[track] = append(r.tracks[track], recorded{tick: r.now, msg: msg})
}

func (r *Recorder) MIDIEvent(ev *smf.MIDIEvent) {
	r.add(ev.Track, ev.Bytes())
}

// SysexEvent keeps complete F0 messages only.
func (r *Recorder) SysexEvent(ev *smf.SysexEvent) {
	if ev.Truncated() || len(ev.Data) < 2 || ev.Data[0] != smf.SysExStart || ev.Data[len(ev.Data)-1] != 0xF7 {
		return
	}
	r.add(ev.Track, midi.SysEx(ev.Data[1:len(ev.Data)-1]))
}

// MetaEvent re-encodes meta events whose payload was kept in full. End of
// track markers are written by WriteTo.
func (r *Recorder) MetaEvent(ev *smf.MetaEvent) {
	if ev.Type == smf.MetaEndOfTrack {
		return
	}
	size := ev.Size
	if ev.Type == smf.MetaKeySignature {
		size = len(ev.Data)
	}
	if len(ev.Data) != size {
		return
	}
	msg := []byte{smf.MetaStatus, ev.Type}
	msg = smf.AppendVarLen(msg, uint32(len(ev.Data)))
	msg = append(msg, ev.Data...)
	r.add(ev.Track, msg)
}

// Events returns the number of events recorded on a track.
func (r *Recorder) Events(track int) int {
	if track < 0 || track >= len(r.tracks) {
		return 0
	}
	return len(r.tracks[track])
}

// WriteTo writes the recording as an SMF. Every track ends at the current
// position.
func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	s := gsmf.New()
	s.TimeFormat = gsmf.MetricTicks(r.tpq)

	tracks := r.tracks
	if len(tracks) == 0 {
		tracks = [][]recorded{nil}
	}
	for i, events := range tracks {
		var tr gsmf.Track
		var last uint64
		for _, e := range events {
			tr.Add(uint32(e.tick-last), e.msg)
			last = e.tick
		}
		tr.Close(uint32(r.now - last))
		if err := s.Add(tr); err != nil {
			return 0, fmt.Errorf("failed to add track %d: %w", i, err)
		}
	}

	n, err := s.WriteTo(w)
	if err != nil {
		return n, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return n, nil
}
