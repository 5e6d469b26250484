package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	charmlog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
	gsmf "gitlab.com/gomidi/midi/v2/smf"

	"github.com/james-see/smfplay/pkg/smf"
)

// fixture writes a two track file with gomidi: a conductor track and a
// melody track with overlapping notes.
func fixture(t *testing.T) []byte {
	t.Helper()
	s := gsmf.New()
	s.TimeFormat = gsmf.MetricTicks(96)

	var conductor gsmf.Track
	conductor.Add(0, gsmf.MetaTrackSequenceName("conductor"))
	conductor.Add(0, gsmf.MetaMeter(3, 4))
	conductor.Add(0, gsmf.MetaTempo(120))
	conductor.Close(0)

	var melody gsmf.Track
	melody.Add(0, midi.NoteOn(2, 60, 100))
	melody.Add(48, midi.NoteOn(2, 64, 90))
	melody.Add(48, midi.NoteOff(2, 60))
	melody.Add(48, midi.NoteOff(2, 64))
	melody.Close(24)

	require.NoError(t, s.Add(conductor))
	require.NoError(t, s.Add(melody))

	var buf bytes.Buffer
	_, err := s.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

type sent struct {
	msgs []midi.Message
	fail bool
}

func (s *sent) send(msg midi.Message) error {
	if s.fail {
		return errors.New("port gone")
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func TestPortSinkForwardsChannelEvents(t *testing.T) {
	out := &sent{}
	sink := NewPortSink(out.send, charmlog.New(&bytes.Buffer{}))

	d := smf.NewDecoder(sink)
	require.NoError(t, d.LoadReader("fixture.mid", bytes.NewReader(fixture(t))))
	for i := 0; i < 200 && !d.IsEndOfFile(); i++ {
		d.ProcessEvents(1)
	}

	require.Len(t, out.msgs, 4)
	var ch, key, vel uint8
	assert.True(t, out.msgs[0].GetNoteOn(&ch, &key, &vel))
	assert.Equal(t, []uint8{2, 60, 100}, []uint8{ch, key, vel})
	assert.True(t, out.msgs[3].GetNoteOff(&ch, &key, &vel))
	assert.Equal(t, uint8(64), key)
	assert.Equal(t, int64(4), sink.Sent())
	assert.Zero(t, sink.Failed())
}

func TestPortSinkSysex(t *testing.T) {
	out := &sent{}
	sink := NewPortSink(out.send, charmlog.New(&bytes.Buffer{}))

	sink.SysexEvent(&smf.SysexEvent{Size: 4, Data: []byte{0xF0, 0x7E, 0x01, 0xF7}})
	sink.SysexEvent(&smf.SysexEvent{Size: 90, Data: []byte{0xF0, 0x7E, 0x01}})
	sink.SysexEvent(&smf.SysexEvent{Size: 2, Data: []byte{0x7F, 0xF7}})
	sink.MetaEvent(&smf.MetaEvent{Type: smf.MetaTempo, Data: []byte{0x07, 0xA1, 0x20}})

	require.Len(t, out.msgs, 1)
	assert.Equal(t, midi.Message{0xF0, 0x7E, 0x01, 0xF7}, out.msgs[0])
}

func TestPortSinkCountsFailures(t *testing.T) {
	var logs bytes.Buffer
	out := &sent{fail: true}
	sink := NewPortSink(out.send, charmlog.New(&logs))

	sink.MIDIEvent(&smf.MIDIEvent{Channel: 1, Size: 3, Data: [4]byte{smf.NoteOn, 60, 1}})

	assert.Equal(t, int64(1), sink.Failed())
	assert.Zero(t, sink.Sent())
	assert.Contains(t, logs.String(), "port gone")
}

func TestAllNotesOff(t *testing.T) {
	out := &sent{}
	NewPortSink(out.send, nil).AllNotesOff()

	require.Len(t, out.msgs, 32)
	seen := map[uint8]int{}
	for _, msg := range out.msgs {
		var ch, cc, val uint8
		require.True(t, msg.GetControlChange(&ch, &cc, &val))
		assert.Contains(t, []uint8{ccAllNotesOff, ccAllSoundOff}, cc)
		seen[ch]++
	}
	assert.Len(t, seen, 16)
}

func TestRenderNormalizesFile(t *testing.T) {
	fsys := fstest.MapFS{"song.mid": {Data: fixture(t)}}
	var buf bytes.Buffer
	require.NoError(t, Render("song.mid", &buf, smf.WithFS(fsys)))

	s, err := gsmf.ReadFrom(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, s.Tracks, 2)

	mt, ok := s.TimeFormat.(gsmf.MetricTicks)
	require.True(t, ok)
	assert.Equal(t, uint16(96), mt.Resolution())

	var bpm float64
	var name bool
	for _, ev := range s.Tracks[0] {
		if ev.Message.GetMetaTempo(&bpm) {
			assert.InDelta(t, 120, bpm, 0.001)
		}
		var text string
		if ev.Message.GetMetaTrackName(&text) {
			name = text == "conductor"
		}
	}
	assert.True(t, name, "track name kept")

	type note struct {
		at  uint32
		key uint8
		on  bool
	}
	var got []note
	var abs uint32
	for _, ev := range s.Tracks[1] {
		abs += ev.Delta
		var ch, key, vel uint8
		switch {
		case ev.Message.GetNoteOn(&ch, &key, &vel):
			got = append(got, note{abs, key, true})
		case ev.Message.GetNoteOff(&ch, &key, &vel):
			got = append(got, note{abs, key, false})
		}
	}
	assert.Equal(t, []note{{0, 60, true}, {48, 64, true}, {96, 60, false}, {144, 64, false}}, got)
	assert.Equal(t, uint32(168), abs, "track length kept")
}

func TestRenderLoadError(t *testing.T) {
	err := Render("missing.mid", &bytes.Buffer{}, smf.WithFS(fstest.MapFS{}))
	assert.ErrorIs(t, err, smf.ErrOpen)
}

func TestRecorderSkipsTruncatedPayloads(t *testing.T) {
	rec := NewRecorder(96)
	rec.MetaEvent(&smf.MetaEvent{Type: smf.MetaText, Size: 80, Data: []byte("cut")})
	rec.SysexEvent(&smf.SysexEvent{Size: 90, Data: []byte{0xF0, 0x01}})
	rec.MetaEvent(&smf.MetaEvent{Type: smf.MetaKeySignature, Size: 2, Data: []byte{0x00, 0x00}, Text: "CM"})
	rec.MetaEvent(&smf.MetaEvent{Type: smf.MetaEndOfTrack})

	assert.Equal(t, 1, rec.Events(0))
	assert.Zero(t, rec.Events(3))
}

func TestEventLogger(t *testing.T) {
	var logs bytes.Buffer
	logger := charmlog.New(&logs)
	logger.SetLevel(charmlog.DebugLevel)

	d := smf.NewDecoder(nil)
	l := &EventLogger{Logger: logger, Ticks: d.ProcessedTicks}
	d.SetHandler(l)
	require.NoError(t, d.LoadReader("fixture.mid", bytes.NewReader(fixture(t))))
	for i := 0; i < 200 && !d.IsEndOfFile(); i++ {
		d.ProcessEvents(1)
	}

	out := logs.String()
	assert.Contains(t, out, "conductor")
	assert.Contains(t, out, "us_per_quarter=500000")
	assert.Contains(t, out, "92 3C 64")
	assert.Equal(t, 4, strings.Count(out, "midi"))
}
