package smf

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1000, 0)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// capture records copies of every event delivered to it.
type capture struct {
	midi  []MIDIEvent
	sysex []SysexEvent
	meta  []MetaEvent
	order []int // track id of every event, in delivery order
}

func (c *capture) MIDIEvent(ev *MIDIEvent) {
	c.midi = append(c.midi, *ev)
	c.order = append(c.order, ev.Track)
}

func (c *capture) SysexEvent(ev *SysexEvent) {
	cp := *ev
	cp.Data = append([]byte(nil), ev.Data...)
	c.sysex = append(c.sysex, cp)
	c.order = append(c.order, ev.Track)
}

func (c *capture) MetaEvent(ev *MetaEvent) {
	cp := *ev
	cp.Data = append([]byte(nil), ev.Data...)
	c.meta = append(c.meta, cp)
	c.order = append(c.order, ev.Track)
}

func (c *capture) midiOnTrack(track int) []MIDIEvent {
	var out []MIDIEvent
	for _, ev := range c.midi {
		if ev.Track == track {
			out = append(out, ev)
		}
	}
	return out
}

// ev builds one track event: delta-time followed by the raw event bytes.
func ev(delta uint32, b ...byte) []byte {
	return append(AppendVarLen(nil, delta), b...)
}

var endOfTrack = ev(0, 0xFF, 0x2F, 0x00)

func trackChunk(events ...[]byte) []byte {
	var body []byte
	for _, e := range events {
		body = append(body, e...)
	}
	out := []byte("MTrk")
	out = binary.BigEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...)
}

func smfFile(format, division uint16, tracks ...[]byte) []byte {
	out := []byte("MThd")
	out = binary.BigEndian.AppendUint32(out, 6)
	out = binary.BigEndian.AppendUint16(out, format)
	out = binary.BigEndian.AppendUint16(out, uint16(len(tracks)))
	out = binary.BigEndian.AppendUint16(out, division)
	for _, t := range tracks {
		out = append(out, t...)
	}
	return out
}

func loadBytes(t *testing.T, data []byte, h Handler, opts ...Option) *Decoder {
	t.Helper()
	d := NewDecoder(h, opts...)
	if err := d.LoadReader("test.mid", bytes.NewReader(data)); err != nil {
		t.Fatalf("LoadReader() error = %v", err)
	}
	return d
}
