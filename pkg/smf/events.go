package smf

import "fmt"

// Channel voice opcodes, as found in MIDIEvent.Data[0].
const (
	NoteOff           = 0x80
	NoteOn            = 0x90
	PolyKeyPressure   = 0xA0
	ControlChange     = 0xB0
	ProgramChange     = 0xC0
	ChannelPressure   = 0xD0
	PitchWheelChange  = 0xE0
	SysExStart        = 0xF0
	SysExContinuation = 0xF7
	MetaStatus        = 0xFF
)

// Meta event types.
const (
	MetaSequenceNumber    = 0x00
	MetaText              = 0x01
	MetaCopyright         = 0x02
	MetaTrackName         = 0x03
	MetaInstrumentName    = 0x04
	MetaLyric             = 0x05
	MetaMarker            = 0x06
	MetaCuePoint          = 0x07
	MetaChannelPrefix     = 0x20
	MetaPortPrefix        = 0x21
	MetaEndOfTrack        = 0x2F
	MetaTempo             = 0x51
	MetaSMPTEOffset       = 0x54
	MetaTimeSignature     = 0x58
	MetaKeySignature      = 0x59
	MetaSequencerSpecific = 0x7F
)

// MIDIEvent is a channel voice message decoded from a track.
type MIDIEvent struct {
	Track   int
	Channel uint8   // 0-15
	Size    int     // valid bytes in Data, status byte included
	Data    [4]byte // Data[0] is the opcode with the channel masked off
}

// Status returns the full status byte, opcode OR channel.
func (e *MIDIEvent) Status() byte {
	return e.Data[0] | e.Channel
}

// Bytes returns the message as it would go out on the wire.
func (e *MIDIEvent) Bytes() []byte {
	b := make([]byte, e.Size)
	copy(b, e.Data[:e.Size])
	if e.Size > 0 {
		b[0] = e.Status()
	}
	return b
}

func (e *MIDIEvent) String() string {
	return fmt.Sprintf("track=%d ch=%d % X", e.Track, e.Channel, e.Bytes())
}

// SysexEvent is a system exclusive message. Size is the declared length,
// including the leading 0xF0 when present; Data holds at most the configured
// buffer size and is shorter than Size when the payload was truncated. Data
// is only valid for the duration of the callback.
type SysexEvent struct {
	Track int
	Size  int
	Data  []byte
}

// Truncated reports whether the payload did not fit in the buffer.
func (e *SysexEvent) Truncated() bool {
	return len(e.Data) < e.Size
}

// MetaEvent is a meta event. For key signatures Text holds the key name and
// Size is the length of that name; for text types Text holds the payload.
// Data is only valid for the duration of the callback.
type MetaEvent struct {
	Track int
	Type  byte
	Size  int
	Data  []byte
	Text  string
}

// MicrosecondsPerQuarterNote decodes a tempo event payload.
func (e *MetaEvent) MicrosecondsPerQuarterNote() (uint32, bool) {
	if e.Type != MetaTempo || len(e.Data) < 3 {
		return 0, false
	}
	return uint32(e.Data[0])<<16 | uint32(e.Data[1])<<8 | uint32(e.Data[2]), true
}

// Handler receives decoded events synchronously from the decoder. Handlers
// must not call back into the decoder that is delivering the event.
type Handler interface {
	MIDIEvent(ev *MIDIEvent)
	SysexEvent(ev *SysexEvent)
	MetaEvent(ev *MetaEvent)
}

// HandlerFuncs adapts plain functions to a Handler. Nil fields are skipped.
type HandlerFuncs struct {
	MIDI  func(ev *MIDIEvent)
	Sysex func(ev *SysexEvent)
	Meta  func(ev *MetaEvent)
}

func (h HandlerFuncs) MIDIEvent(ev *MIDIEvent) {
	if h.MIDI != nil {
		h.MIDI(ev)
	}
}

func (h HandlerFuncs) SysexEvent(ev *SysexEvent) {
	if h.Sysex != nil {
		h.Sysex(ev)
	}
}

func (h HandlerFuncs) MetaEvent(ev *MetaEvent) {
	if h.Meta != nil {
		h.Meta(ev)
	}
}

// MultiHandler delivers every event to each handler in order.
type MultiHandler []Handler

func (m MultiHandler) MIDIEvent(ev *MIDIEvent) {
	for _, h := range m {
		h.MIDIEvent(ev)
	}
}

func (m MultiHandler) SysexEvent(ev *SysexEvent) {
	for _, h := range m {
		h.SysexEvent(ev)
	}
}

func (m MultiHandler) MetaEvent(ev *MetaEvent) {
	for _, h := range m {
		h.MetaEvent(ev)
	}
}

var keyNames = [...]string{
	"Cb", "Gb", "Db", "Ab", "Eb", "Bb", "F", "C", "G", "D", "A", "E", "B",
	"F#", "C#", "G#", "D#", "A#",
}

// KeyName renders a key signature as e.g. "GM" or "Em". Out of range values
// yield "Err".
func KeyName(sharpsFlats int8, minor byte) string {
	if sharpsFlats < -7 || sharpsFlats > 7 {
		return "Err"
	}
	switch minor {
	case 0:
		return keyNames[int(sharpsFlats)+7] + "M"
	case 1:
		return keyNames[int(sharpsFlats)+10] + "m"
	default:
		return "Err"
	}
}
