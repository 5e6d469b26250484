package smf

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// TrackInfo describes the state of one track.
type TrackInfo struct {
	ID         int   `json:"id"`
	Offset     int64 `json:"offset"`
	Length     int64 `json:"length"`
	Cursor     int64 `json:"cursor"`
	EndOfTrack bool  `json:"end_of_track"`
}

// FileInfo is a snapshot of the decoder state.
type FileInfo struct {
	Name                string      `json:"name"`
	Format              int         `json:"format"`
	TicksPerQuarterNote int         `json:"ticks_per_quarter_note"`
	Tempo               int         `json:"tempo"`
	TempoAdjust         int         `json:"tempo_adjust"`
	MicrosecondsPerTick uint32      `json:"microseconds_per_tick"`
	TimeSignature       [2]int      `json:"time_signature"`
	Ticks               uint64      `json:"ticks"`
	Paused              bool        `json:"paused"`
	Looping             bool        `json:"looping"`
	Tracks              []TrackInfo `json:"tracks"`
}

// Info returns a snapshot of the header fields, clock and every track.
func (d *Decoder) Info() FileInfo {
	info := FileInfo{
		Name:                d.name,
		Format:              int(d.format),
		TicksPerQuarterNote: d.tpq,
		Tempo:               d.tempo,
		TempoAdjust:         d.tempoDelta,
		MicrosecondsPerTick: d.MicrosecondsPerTick(),
		TimeSignature:       d.timeSig,
		Ticks:               d.ticks,
		Paused:              d.paused,
		Looping:             d.looping,
		Tracks:              make([]TrackInfo, len(d.tracks)),
	}
	for i := range d.tracks {
		t := &d.tracks[i]
		info.Tracks[i] = TrackInfo{
			ID:         t.id,
			Offset:     t.start,
			Length:     t.length,
			Cursor:     t.cursor,
			EndOfTrack: t.eot,
		}
	}
	return info
}

// Dump writes a human readable summary of the loaded file to w.
func (d *Decoder) Dump(w io.Writer) error {
	info := d.Info()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "File name:\t%s\n", info.Name)
	fmt.Fprintf(tw, "File format:\t%d (%s)\n", info.Format, Format(info.Format))
	fmt.Fprintf(tw, "Tracks:\t%d\n", len(info.Tracks))
	fmt.Fprintf(tw, "Time division:\t%d\n", info.TicksPerQuarterNote)
	fmt.Fprintf(tw, "Tempo:\t%d%+d bpm\n", info.Tempo, info.TempoAdjust)
	fmt.Fprintf(tw, "Microsec/tick:\t%d\n", info.MicrosecondsPerTick)
	fmt.Fprintf(tw, "Time signature:\t%d/%d\n", info.TimeSignature[0], info.TimeSignature[1])
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(info.Tracks) == 0 {
		return nil
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "TRACK\tOFFSET\tLENGTH\tCURSOR\tEOT")
	for _, t := range info.Tracks {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%t\n", t.ID, t.Offset, t.Length, t.Cursor, t.EndOfTrack)
	}
	return tw.Flush()
}
