package smf

import "bytes"

var trackTag = []byte("MTrk")

// track holds the playback state of one track chunk. The event stream is not
// read at load time; each call to next repositions the shared source at the
// track's own cursor.
type track struct {
	id     int
	start  int64 // file offset of the first event
	length int64 // chunk length in bytes
	cursor int64 // offset from start of the next unread delta-time
	eot    bool

	// elapsed is in microseconds multiplied by ticks per quarter note, so a
	// delta of n ticks is due once elapsed >= n * microseconds per quarter note.
	elapsed uint64

	// running status, overwritten only by channel voice events
	mev MIDIEvent
}

func (t *track) reset() {
	t.start = 0
	t.length = 0
	t.restart()
	t.id = -1
}

func (t *track) close() {
	t.reset()
}

func (t *track) restart() {
	t.cursor = 0
	t.eot = false
	t.elapsed = 0
	t.mev = MIDIEvent{Track: t.id}
}

func (t *track) syncTime() {
	t.elapsed = 0
}

// load reads the chunk header at the current position and leaves the source
// positioned at the next chunk.
func (t *track) load(id int, d *Decoder) error {
	t.reset()
	t.id = id
	t.mev.Track = id
	src := d.src

	var tag [4]byte
	if err := src.readFull(tag[:]); err != nil || !bytes.Equal(tag[:], trackTag) {
		return ErrTrackTag
	}
	length, err := ReadFixed(src, 4)
	if err != nil {
		return ErrTrackTag
	}

	t.length = int64(length)
	t.start = src.pos()
	if err := src.seek(t.start + t.length); err != nil {
		return ErrTrackRange
	}
	return nil
}

// next adds elapsed to the accumulator and, if the next event is due, decodes
// and delivers exactly one event. It reports whether an event was consumed.
func (t *track) next(d *Decoder, elapsed uint64) bool {
	if t.eot {
		return false
	}
	if t.cursor >= t.length {
		t.eot = true
		return false
	}
	src := d.src
	if err := src.seek(t.start + t.cursor); err != nil {
		t.eot = true
		return false
	}
	src.setLimit(t.start + t.length)
	defer src.setLimit(-1)

	t.elapsed += elapsed

	// The cursor is only committed once the event fires, so an event that is
	// not yet due has its delta-time read again on the next call.
	deltaT, err := ReadVarLen(src)
	if err != nil {
		t.eot = true
		return false
	}
	due := uint64(deltaT) * d.quarterNote()
	if t.elapsed < due {
		return false
	}
	t.elapsed -= due

	if err := t.parseEvent(d); err != nil {
		t.eot = true
	}

	t.cursor = src.pos() - t.start
	if t.cursor >= t.length {
		t.eot = true
	}
	return true
}

func (t *track) parseEvent(d *Decoder) error {
	src := d.src
	status, err := src.ReadByte()
	if err != nil {
		return err
	}

	switch {
	case status < 0x80:
		return t.runningStatus(d, status)
	case status < 0xC0, status >= 0xE0 && status < 0xF0:
		return t.channelEvent(d, status, 3)
	case status < 0xE0:
		return t.channelEvent(d, status, 2)
	case status == SysExStart, status == SysExContinuation:
		return t.sysexEvent(d, status)
	case status == MetaStatus:
		return t.metaEvent(d)
	default:
		// unknown status, this track cannot be followed any further
		t.eot = true
		return nil
	}
}

func (t *track) channelEvent(d *Decoder, status byte, size int) error {
	t.mev.Size = size
	t.mev.Channel = status & 0x0F
	t.mev.Data = [4]byte{status & 0xF0}
	for i := 1; i < size; i++ {
		b, err := d.src.ReadByte()
		if err != nil {
			return err
		}
		t.mev.Data[i] = b
	}
	t.emitMIDI(d)
	return nil
}

func (t *track) runningStatus(d *Decoder, first byte) error {
	if t.mev.Size == 0 {
		// data byte with no channel event to run on
		t.eot = true
		return nil
	}
	t.mev.Data[1] = first
	for i := 2; i < t.mev.Size; i++ {
		b, err := d.src.ReadByte()
		if err != nil {
			return err
		}
		t.mev.Data[i] = b
	}
	t.emitMIDI(d)
	return nil
}

func (t *track) emitMIDI(d *Decoder) {
	if d.handler == nil {
		return
	}
	ev := t.mev
	d.handler.MIDIEvent(&ev)
}

// sysexEvent reads F0 <len:v> <bytes> or F7 <len:v> <bytes>. The payload is
// truncated to the buffer but the source always ends after the full length.
func (t *track) sysexEvent(d *Decoder, status byte) error {
	src := d.src
	length, err := ReadVarLen(src)
	if err != nil {
		return err
	}

	ev := SysexEvent{Track: t.id, Size: int(length)}
	buf := d.sysexBuf[:0]
	if status == SysExStart {
		buf = append(buf, status)
		ev.Size++
	}

	want := min(int64(length), int64(cap(buf)-len(buf)))
	if want < 0 {
		want = 0
	}
	n := len(buf)
	buf = buf[:n+int(want)]
	if err := src.readFull(buf[n:]); err != nil {
		return err
	}
	if rest := int64(length) - want; rest > 0 {
		if err := src.skip(rest); err != nil {
			return err
		}
	}

	ev.Data = buf
	if d.handler != nil {
		d.handler.SysexEvent(&ev)
	}
	return nil
}

// metaEvent reads FF <type:1> <len:v> <bytes>. Tempo and time signature
// events are applied to the decoder before the handler sees them.
func (t *track) metaEvent(d *Decoder) error {
	src := d.src
	typ, err := src.ReadByte()
	if err != nil {
		return err
	}
	length, err := ReadVarLen(src)
	if err != nil {
		return err
	}

	n := min(int64(length), int64(cap(d.metaBuf)))
	payload := d.metaBuf[:n]
	if err := src.readFull(payload); err != nil {
		return err
	}
	if rest := int64(length) - n; rest > 0 {
		if err := src.skip(rest); err != nil {
			return err
		}
	}

	ev := MetaEvent{Track: t.id, Type: typ, Size: int(length), Data: payload}

	switch typ {
	case MetaEndOfTrack:
		t.eot = true
		ev.Data = nil

	case MetaTempo:
		if len(payload) >= 3 {
			ev.Data = payload[:3]
			us, _ := ev.MicrosecondsPerQuarterNote()
			_ = d.SetMicrosecondsPerQuarterNote(us)
		}

	case MetaTimeSignature:
		if len(payload) >= 2 && payload[1] < 16 {
			_ = d.SetTimeSignature(int(payload[0]), 1<<payload[1])
		}

	case MetaKeySignature:
		ev.Text = "Err"
		if len(payload) >= 2 {
			ev.Text = KeyName(int8(payload[0]), payload[1])
		}
		ev.Size = len(ev.Text)

	case MetaSequenceNumber, MetaChannelPrefix, MetaPortPrefix:
		// fixed width values, left in Data

	default:
		if typ >= MetaText && typ <= 0x0F {
			ev.Text = string(payload)
		}
	}

	if d.handler != nil {
		d.handler.MetaEvent(&ev)
	}
	return nil
}
