// Package output turns decoded events into MIDI traffic, SMF files or logs.
package output

import (
	"sync/atomic"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"

	"github.com/james-see/smfplay/pkg/smf"
)

// Controller numbers used to silence a channel.
const (
	ccAllSoundOff = 120
	ccAllNotesOff = 123
)

// SendFunc delivers one message, as returned by midi.SendTo.
type SendFunc func(msg midi.Message) error

// PortSink forwards channel and SysEx events to a MIDI output. Meta events
// are dropped. Send failures are logged and counted but never reach the
// decoder.
type PortSink struct {
	send   SendFunc
	logger *charmlog.Logger
	sent   atomic.Int64
	failed atomic.Int64
}

// NewPortSink returns a sink sending through send. A nil logger uses the
// package default.
func NewPortSink(send SendFunc, logger *charmlog.Logger) *PortSink {
	if logger == nil {
		logger = charmlog.Default()
	}
	return &PortSink{send: send, logger: logger}
}

func (p *PortSink) MIDIEvent(ev *smf.MIDIEvent) {
	p.deliver(midi.Message(ev.Bytes()))
}

// SysexEvent forwards complete F0 messages. Truncated payloads and F7
// escapes cannot be sent as one valid message and are skipped.
func (p *PortSink) SysexEvent(ev *smf.SysexEvent) {
	if ev.Truncated() || len(ev.Data) < 2 || ev.Data[0] != smf.SysExStart {
		p.logger.Debug("sysex not forwarded", "track", ev.Track, "size", ev.Size, "kept", len(ev.Data))
		return
	}
	msg := make(midi.Message, len(ev.Data))
	copy(msg, ev.Data)
	p.deliver(msg)
}

func (p *PortSink) MetaEvent(*smf.MetaEvent) {}

func (p *PortSink) deliver(msg midi.Message) {
	if err := p.send(msg); err != nil {
		p.failed.Add(1)
		p.logger.Warn("midi send failed", "msg", msg.String(), "err", err)
		return
	}
	p.sent.Add(1)
}

// AllNotesOff sends All Sound Off and All Notes Off on every channel.
func (p *PortSink) AllNotesOff() {
	for ch := uint8(0); ch < 16; ch++ {
		p.deliver(midi.ControlChange(ch, ccAllNotesOff, 0))
		p.deliver(midi.ControlChange(ch, ccAllSoundOff, 0))
	}
}

// Sent returns the number of messages delivered.
func (p *PortSink) Sent() int64 { return p.sent.Load() }

// Failed returns the number of messages the port rejected.
func (p *PortSink) Failed() int64 { return p.failed.Load() }
